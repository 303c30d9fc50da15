package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// StatusWait is how long a John status request waits for the workers to
// print their status lines. Exported so tests can shorten it.
var StatusWait = time.Second

var (
	johnVersion = regexp.MustCompile(`(?:version|Ripper) ([0-9][0-9.a-zA-Z_+-]*)\s`)
	johnStatus  = regexp.MustCompile(`(?:^|\s)(\d+)g [0-9:]+ ([0-9.]+)% \(ETA: ([0-9: -]+)\).* ([0-9.]+)([KMG]?)p/s`)
)

const johnBanner = "NT [MD4"

type john struct{}

func (john) crackArgs(opts Options, potfile string) []string {
	args := []string{
		opts.HashFile,
		"--format=nt",
		"--pot=" + potfile,
		"--no-log",
		"--wordlist=" + opts.Wordlist,
	}
	if opts.RuleFile != "" {
		args = append(args, "--rules="+opts.RuleFile)
	}
	args = append(args, opts.ExtraArgs...)
	if cores := opts.cores(); cores > 1 {
		args = append(args, fmt.Sprintf("--fork=%d", cores))
	}
	return args
}

func (john) showArgs(opts Options, potfile string) []string {
	return []string{
		opts.HashFile,
		"--format=nt",
		"--pot=" + potfile,
		"--show",
	}
}

// parseShow reads "user:password:rid:lm:nt:::" lines until the summary
// line. When all six trailing pwdump fields are present the password may
// itself contain colons.
func (john) parseShow(output string) map[string]string {
	creds := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || !strings.Contains(line, ":") {
			break
		}
		fields := strings.Split(line, ":")
		password := fields[1]
		if len(fields) >= 8 {
			password = strings.Join(fields[1:len(fields)-6], ":")
		}
		creds[fields[0]] = password
	}
	return creds
}

// secretLine matches "<password>   (<user>)" lines and leaves the
// "Loaded N password hashes ... (NT [MD4 ...])" banner alone.
func (john) secretLine(line string) bool {
	trimmed := strings.TrimRight(line, " ")
	if !strings.HasSuffix(trimmed, ")") {
		return false
	}
	closing := len(trimmed) - 1
	for i := 1; i < closing; i++ {
		if line[i] != '(' || line[i-1] != ' ' {
			continue
		}
		if !strings.HasPrefix(line[i+1:], johnBanner) {
			return true
		}
	}
	return false
}

func (john) succeeded(code int) bool { return code == 0 }

// preflight rejects builds other than the community "jumbo" edition,
// which is the only one that understands --format=nt.
func (john) preflight(ctx context.Context, opts Options) error {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, opts.BinaryPath)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("engine: running %s: %w", opts.BinaryPath, err)
		}
	}
	m := johnVersion.FindStringSubmatch(out.String())
	if m == nil {
		return nil
	}
	if !strings.Contains(m[1], "jumbo") {
		return fmt.Errorf("engine: john is not the jumbo version: %s", m[1])
	}
	return nil
}

func (john) status(r *Run) domain.EngineStatus {
	before := len(r.lines(Stderr))
	if err := signalStatus(r.pid()); err != nil {
		return domain.StatusFailed(fmt.Errorf("engine: requesting status: %w", err))
	}
	time.Sleep(StatusWait)

	lines := r.lines(Stderr)
	if before > len(lines) {
		before = len(lines)
	}
	p, ok := AggregateJohnStatus(lines[before:], time.Now())
	if !ok {
		return domain.StatusFailed(errors.New("engine: john printed no status lines"))
	}
	return domain.Running(p)
}

var speedFactors = map[string]float64{"": 1, "K": 1e3, "M": 1e6, "G": 1e9}

// AggregateJohnStatus combines the status lines of all workers: guesses
// and speeds add up, percentages are averaged, the latest ETA wins.
func AggregateJohnStatus(lines []string, now time.Time) (domain.Progress, bool) {
	var (
		p       domain.Progress
		percent float64
		n       int
	)
	for _, line := range lines {
		m := johnStatus.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		guesses, err1 := strconv.Atoi(m[1])
		pct, err2 := strconv.ParseFloat(m[2], 64)
		eta, err3 := parseJohnETA(strings.TrimSpace(m[3]), now)
		speed, err4 := strconv.ParseFloat(m[4], 64)
		if errors.Join(err1, err2, err3, err4) != nil {
			continue
		}
		p.Guesses += guesses
		p.Speed += speed * speedFactors[m[5]]
		percent += pct
		if eta.After(p.ETA) {
			p.ETA = eta
		}
		n++
	}
	if n == 0 {
		return domain.Progress{}, false
	}
	p.Percent = percent / float64(n)
	return p, true
}

// parseJohnETA accepts "2006-01-02 15:04" or a time of day meaning today.
func parseJohnETA(s string, now time.Time) (time.Time, error) {
	if strings.Contains(s, "-") {
		return time.ParseInLocation("2006-01-02 15:04", s, now.Location())
	}
	clock, err := time.Parse("15:04:05", s)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := now.Date()
	return time.Date(y, mo, d, clock.Hour(), clock.Minute(), clock.Second(), 0, now.Location()), nil
}
