// Package status builds the tiles shown by "crackomatic status": what
// the cracking host is doing right now and how the last audit went.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// Tone colors a tile.
type Tone int

const (
	ToneNeutral Tone = iota
	ToneSuccess
	ToneDanger
	ToneAccent
)

// Tile is one figure with a caption.
type Tile struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Tone  Tone   `json:"-"`
}

// Group is a titled row of tiles.
type Group struct {
	Title string `json:"title"`
	Tiles []Tile `json:"tiles"`
}

// Input is everything the tiles are computed from.
type Input struct {
	Now time.Time

	// Active is the running audit, nil when idle.
	Active *domain.Audit

	// Engine is the last recorded engine status. It is ignored unless it
	// belongs to Active.
	Engine *domain.StatusSnapshot

	// Next is the earliest scheduled audit, nil if none.
	Next *domain.Audit

	// Last is the most recent finished audit with its report, nil if none.
	Last *domain.Audit
}

// Build returns the "Current" group and, when an audit has finished
// before, the "Last Audit" group.
func Build(in Input) []Group {
	var current []Tile
	if in.Active == nil || in.Active.State.Terminal() {
		current = idleTiles(in)
	} else {
		current = busyTiles(in)
	}
	groups := []Group{{Title: "Current", Tiles: current}}
	if last := lastAuditTiles(in); last != nil {
		groups = append(groups, Group{Title: "Last Audit", Tiles: last})
	}
	return groups
}

func idleTiles(in Input) []Tile {
	next := "∞"
	if in.Next != nil {
		next = Until(in.Now, in.Next.Start)
	}
	return []Tile{
		{Value: "Ready", Label: "State", Tone: ToneSuccess},
		{Value: next, Label: "Time of next audit"},
	}
}

func busyTiles(in Input) []Tile {
	a := in.Active
	tiles := []Tile{
		{Value: "Running", Label: "State", Tone: ToneDanger},
		{Value: strings.ReplaceAll(a.State.String(), "_", " "), Label: "Stage"},
	}
	if a.State != domain.StateCracking {
		return tiles
	}
	snap := in.Engine
	if snap == nil || snap.AuditID != a.ID {
		return append(tiles, Tile{Value: "Status", Label: "Waiting for the engine"})
	}
	p := snap.Progress
	eta := "unknown"
	if !p.ETA.IsZero() {
		eta = Until(in.Now, p.ETA)
	}
	return append(tiles,
		Tile{Value: Speed(p.Speed), Label: "Hashes/Second", Tone: ToneAccent},
		Tile{Value: humanize.Comma(int64(p.Guesses)), Label: "Successful guesses"},
		Tile{Value: fmt.Sprintf("%d%%", int(p.Percent)), Label: "Progress"},
		Tile{Value: Since(in.Now, a.Start), Label: "Started"},
		Tile{Value: eta, Label: "ETA"},
	)
}

func lastAuditTiles(in Input) []Tile {
	a := in.Last
	if a == nil || a.Report == nil {
		return nil
	}
	r := a.Report
	return []Tile{
		{Value: Duration(a.End.Sub(a.Start)), Label: "Duration"},
		{Value: Since(in.Now, a.End), Label: "Time since"},
		{Value: humanize.Comma(int64(r.TotalHashes)), Label: "Total hashes"},
		{Value: humanize.Comma(int64(r.CrackedCount())), Label: "Hashes cracked"},
		{Value: humanize.Comma(int64(r.NonUniquePasswords())), Label: "Non-unique passwords"},
	}
}

// Speed abbreviates a hash rate with K, M or G.
func Speed(v float64) string {
	switch {
	case v > 1e9:
		return fmt.Sprintf("%.01fG", v/1e9)
	case v > 1e6:
		return fmt.Sprintf("%.01fM", v/1e6)
	case v > 1e3:
		return fmt.Sprintf("%.01fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// Duration renders d coarsely, e.g. "3 hours".
func Duration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Second {
		return "now"
	}
	base := time.Unix(0, 0)
	return strings.TrimSpace(humanize.RelTime(base, base.Add(d), "", ""))
}

// Until renders the time left until t, "now" when it has passed.
func Until(now, t time.Time) string {
	if !t.After(now) {
		return "now"
	}
	return Duration(t.Sub(now))
}

// Since renders how long ago t was.
func Since(now, t time.Time) string {
	return Duration(now.Sub(t))
}

// Render lays the groups out as rows of bordered tiles.
func Render(groups []Group) string {
	var b strings.Builder
	for _, g := range groups {
		b.WriteString(GroupTitle.Render(g.Title))
		b.WriteString("\n")
		cells := make([]string, len(g.Tiles))
		for i, t := range g.Tiles {
			body := lipgloss.JoinVertical(lipgloss.Left,
				TileValue.Foreground(valueColor(t.Tone)).Render(t.Value),
				TileLabel.Render(t.Label))
			cells[i] = TileBox.BorderForeground(t.Tone.color()).Render(body)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}
	return b.String()
}

// Plain renders the groups without styling, one "label: value" per line.
func Plain(groups []Group) string {
	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s\n", g.Title)
		for _, t := range g.Tiles {
			fmt.Fprintf(&b, "  %-22s %s\n", t.Label+":", t.Value)
		}
	}
	return b.String()
}

func valueColor(t Tone) lipgloss.Color {
	if t == ToneNeutral {
		return White
	}
	return t.color()
}
