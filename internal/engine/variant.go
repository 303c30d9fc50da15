// Package engine supervises an external password-recovery process.
//
// Two engines are supported. Hashcat prints machine-readable status lines on
// its own and exits with 1 once the wordlist is exhausted, or 0 when every
// hash was cracked. John the Ripper (jumbo) prints status only when asked
// with SIGUSR1 and exits with 0. Recovered secrets never reach the retained
// transcript; credentials are read back through a separate "--show"
// invocation once the run is over, whatever the exit code. A run with an
// unexpected exit code fails only when "--show" recovers nothing.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// Variant selects the recovery engine.
type Variant int

const (
	VariantHashcat Variant = iota + 1
	VariantJohn
)

func (v Variant) String() string {
	switch v {
	case VariantHashcat:
		return "hashcat"
	case VariantJohn:
		return "john"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant maps a configured engine name to a Variant.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hashcat":
		return VariantHashcat, nil
	case "john", "johntheripper", "john-the-ripper":
		return VariantJohn, nil
	default:
		return 0, fmt.Errorf("unknown engine %q (valid: hashcat, john)", name)
	}
}

// dialect holds everything that differs between engines.
type dialect interface {
	crackArgs(opts Options, potfile string) []string
	showArgs(opts Options, potfile string) []string
	parseShow(output string) map[string]string
	secretLine(line string) bool
	succeeded(code int) bool
	preflight(ctx context.Context, opts Options) error
	status(r *Run) domain.EngineStatus
}

func dialectFor(v Variant) (dialect, error) {
	switch v {
	case VariantHashcat:
		return hashcat{}, nil
	case VariantJohn:
		return john{}, nil
	default:
		return nil, fmt.Errorf("engine: unsupported variant %v", v)
	}
}
