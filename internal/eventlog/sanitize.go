package eventlog

import (
	"log/slog"
	"strings"
)

// Redacted replaces sensitive values in the event log.
const Redacted = "<redacted>"

var sensitiveFlags = map[string]struct{}{
	"--password":      {},
	"--smtp-password": {},
	"-p":              {},
}

var sensitiveKeys = []string{"password", "secret", "token", "credential"}

// SanitizeArgs redacts sensitive flag values of a command line.
func SanitizeArgs(args []string) []string {
	sanitized := make([]string, 0, len(args))
	skipNext := false

	for _, arg := range args {
		if skipNext {
			sanitized = append(sanitized, Redacted)
			skipNext = false
			continue
		}

		if _, ok := sensitiveFlags[arg]; ok {
			sanitized = append(sanitized, arg)
			skipNext = true
			continue
		}

		if key, _, ok := strings.Cut(arg, "="); ok {
			if _, ok := sensitiveFlags[key]; ok {
				sanitized = append(sanitized, key+"="+Redacted)
				continue
			}
		}

		sanitized = append(sanitized, arg)
	}

	if skipNext {
		sanitized = append(sanitized, Redacted)
	}

	return sanitized
}

// SensitiveKey reports whether an attribute key names a secret.
func SensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// RedactAttr is a slog ReplaceAttr function hiding secret values. The
// console handlers use it too.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindGroup && SensitiveKey(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	return a
}
