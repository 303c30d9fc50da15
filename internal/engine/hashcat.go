package engine

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// Hashcat exit codes that end a dictionary attack normally: every hash
// was cracked, or the wordlist and rules ran out.
const (
	hashcatCracked   = 0
	hashcatExhausted = 1
)

var hashcatSecret = regexp.MustCompile(`^[a-f0-9]{32}:.*$`)

type hashcat struct{}

func (hashcat) crackArgs(opts Options, potfile string) []string {
	args := []string{
		opts.HashFile,
		"-m", "1000",
		"-a", "0",
		"--outfile-autohex-disable",
		"--status",
		"--machine-readable",
		"--potfile-path", potfile,
	}
	if opts.RuleFile != "" {
		args = append(args, "--rules-file", opts.RuleFile)
	}
	args = append(args, opts.Wordlist)
	return append(args, opts.ExtraArgs...)
}

func (hashcat) showArgs(opts Options, potfile string) []string {
	return []string{
		opts.HashFile,
		"-m", "1000",
		"--potfile-path", potfile,
		"--show",
		"--username",
	}
}

// parseShow reads "user:hash:password" lines. The password keeps any
// colons it contains.
func (hashcat) parseShow(output string) map[string]string {
	creds := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			break
		}
		password := ""
		if len(parts) == 3 {
			password = parts[2]
		}
		creds[parts[0]] = password
	}
	return creds
}

func (hashcat) secretLine(line string) bool { return hashcatSecret.MatchString(line) }

func (hashcat) succeeded(code int) bool {
	return code == hashcatCracked || code == hashcatExhausted
}

func (hashcat) preflight(context.Context, Options) error { return nil }

func (hashcat) status(r *Run) domain.EngineStatus {
	lines := r.lines(Stdout)
	for i := len(lines) - 1; i >= 0; i-- {
		if p, ok := ParseHashcatStatus(lines[i], time.Now()); ok {
			return domain.Running(p)
		}
	}
	return domain.Running(domain.Progress{})
}

// ParseHashcatStatus parses one --machine-readable status line:
//
//	STATUS 3 SPEED <hashes> <ms> [<hashes> <ms>...] ... PROGRESS <done> <total> RECHASH <found> <count> ...
//
// Each SPEED pair is one device: hashes computed within ms milliseconds.
func ParseHashcatStatus(line string, now time.Time) (domain.Progress, bool) {
	fields := strings.Fields(line)
	speedAt := indexOf(fields, "SPEED")
	progressAt := indexOf(fields, "PROGRESS")
	rechashAt := indexOf(fields, "RECHASH")
	if speedAt < 0 || progressAt < 0 || rechashAt < 0 ||
		progressAt+2 >= len(fields) || rechashAt+1 >= len(fields) {
		return domain.Progress{}, false
	}

	var speed float64
	for i := speedAt + 1; i+1 < len(fields); i += 2 {
		count, err1 := strconv.ParseFloat(fields[i], 64)
		ms, err2 := strconv.ParseFloat(fields[i+1], 64)
		if err1 != nil || err2 != nil {
			break
		}
		if ms > 0 {
			speed += count * 1000 / ms
		}
	}

	progress, err1 := strconv.ParseFloat(fields[progressAt+1], 64)
	total, err2 := strconv.ParseFloat(fields[progressAt+2], 64)
	guesses, err3 := strconv.Atoi(fields[rechashAt+1])
	if err := errors.Join(err1, err2, err3); err != nil {
		return domain.Progress{}, false
	}

	p := domain.Progress{Speed: speed, Guesses: guesses}
	if total > 0 {
		p.Percent = 100 * progress / total
	}
	if remaining := total - progress; speed > 0 && remaining >= 0 {
		p.ETA = now.Add(time.Duration(remaining / speed * float64(time.Second)))
	}
	return p, true
}

func indexOf(fields []string, key string) int {
	for i, f := range fields {
		if f == key {
			return i
		}
	}
	return -1
}
