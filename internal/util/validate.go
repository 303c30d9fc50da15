package util

import (
	"fmt"
	"regexp"
	"strings"
)

// labelChars matches one DNS label: alphanumerics and inner hyphens.
var labelChars = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// ValidateDomainName checks that name is a fully qualified Active
// Directory domain name:
//   - At least two labels separated by periods
//   - Each label 1 to 63 characters of a-z, A-Z, 0-9 and inner hyphens
//   - At most 253 characters in total
func ValidateDomainName(name string) error {
	name = strings.TrimSuffix(name, ".")
	if len(name) > 253 {
		return fmt.Errorf("domain name must be at most 253 characters, got %d", len(name))
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return fmt.Errorf("domain name %q is not fully qualified", name)
	}
	for _, l := range labels {
		if l == "" {
			return fmt.Errorf("domain name %q contains an empty label", name)
		}
		if len(l) > 63 {
			return fmt.Errorf("label %q is longer than 63 characters", l)
		}
		if !labelChars.MatchString(l) {
			return fmt.Errorf("label %q contains invalid characters (only a-z, A-Z, 0-9 and inner hyphens are allowed)", l)
		}
	}
	return nil
}

// AccountName strips a NetBIOS "DOMAIN\" prefix from an account name.
func AccountName(s string) string {
	if i := strings.LastIndexByte(s, '\\'); i >= 0 {
		return s[i+1:]
	}
	return s
}
