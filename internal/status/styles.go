package status

import "github.com/charmbracelet/lipgloss"

// --- Color palette ---

var (
	White   = lipgloss.Color("#E2E2E2")
	Gray    = lipgloss.Color("#888888")
	Muted   = lipgloss.Color("#555555")
	DimGray = lipgloss.Color("#444444")

	Blue  = lipgloss.Color("#5FAFFF")
	Green = lipgloss.Color("#5FD787")
	Red   = lipgloss.Color("#FF8787")
)

var (
	// GroupTitle heads a row of tiles.
	GroupTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(White).
			MarginTop(1)

	// TileValue is the large figure of a tile.
	TileValue = lipgloss.NewStyle().
			Bold(true).
			Foreground(White)

	// TileLabel is the caption below the figure.
	TileLabel = lipgloss.NewStyle().
			Foreground(Gray)

	// TileBox is a rounded-border panel.
	TileBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(DimGray).
		Padding(0, 2).
		MarginRight(1)
)

func (t Tone) color() lipgloss.Color {
	switch t {
	case ToneSuccess:
		return Green
	case ToneDanger:
		return Red
	case ToneAccent:
		return Blue
	default:
		return DimGray
	}
}
