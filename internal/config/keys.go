package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KeySpec describes a single configuration key.
type KeySpec struct {
	// Name is the dotted key as used in the file, e.g. "email.host".
	Name string

	// Description is a short human-readable explanation shown in help text.
	Description string

	// Get returns the current value for this key from a loaded Config.
	Get func(cfg *Config) string

	// Set parses value and applies it to cfg (in memory only; the caller
	// is responsible for calling Save).
	Set func(cfg *Config, value string) error
}

func stringKey(name, desc string, field func(*Config) *string) KeySpec {
	return KeySpec{
		Name:        name,
		Description: desc,
		Get:         func(cfg *Config) string { return *field(cfg) },
		Set: func(cfg *Config, v string) error {
			*field(cfg) = v
			return nil
		},
	}
}

func intKey(name, desc string, field func(*Config) *int) KeySpec {
	return KeySpec{
		Name:        name,
		Description: desc,
		Get:         func(cfg *Config) string { return strconv.Itoa(*field(cfg)) },
		Set: func(cfg *Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %q is not a number", name, v)
			}
			*field(cfg) = n
			return nil
		},
	}
}

func boolKey(name, desc string, field func(*Config) *bool) KeySpec {
	return KeySpec{
		Name:        name,
		Description: desc,
		Get:         func(cfg *Config) string { return strconv.FormatBool(*field(cfg)) },
		Set: func(cfg *Config, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %q is not a boolean", name, v)
			}
			*field(cfg) = b
			return nil
		},
	}
}

// Keys is the authoritative list of all supported configuration keys.
// To add a new option: add a field to Config and append a KeySpec here.
// The SMTP password is deliberately absent; "auth login" stores it.
var Keys = []KeySpec{
	stringKey("cracker.engine", "Recovery engine: hashcat or john",
		func(c *Config) *string { return &c.Cracker.Engine }),
	stringKey("cracker.binary_path", "Path of the engine binary (default: looked up in PATH)",
		func(c *Config) *string { return &c.Cracker.BinaryPath }),
	stringKey("cracker.wordlist_path", "Path of the wordlist",
		func(c *Config) *string { return &c.Cracker.WordlistPath }),
	stringKey("cracker.rule_path", "Path of the optional rule file",
		func(c *Config) *string { return &c.Cracker.RulePath }),
	{
		Name:        "cracker.extra_args",
		Description: "Additional engine arguments, separated by spaces",
		Get:         func(cfg *Config) string { return strings.Join(cfg.Cracker.ExtraArgs, " ") },
		Set: func(cfg *Config, v string) error {
			cfg.Cracker.ExtraArgs = strings.Fields(v)
			return nil
		},
	},
	intKey("cracker.cores", "John fork count (0: all CPUs)",
		func(c *Config) *int { return &c.Cracker.Cores }),
	stringKey("email.host", "SMTP server host name",
		func(c *Config) *string { return &c.Email.Host }),
	intKey("email.port", "SMTP server port",
		func(c *Config) *int { return &c.Email.Port }),
	boolKey("email.tls", "Use implicit TLS for SMTP",
		func(c *Config) *bool { return &c.Email.TLS }),
	stringKey("email.ca_file", "CA bundle used to verify the SMTP server",
		func(c *Config) *string { return &c.Email.CAFile }),
	stringKey("email.user", "SMTP user name (password via 'auth login')",
		func(c *Config) *string { return &c.Email.User }),
	stringKey("email.sender", "From address of every message",
		func(c *Config) *string { return &c.Email.Sender }),
	stringKey("replication.method", "How hashes are fetched: drsr or samba",
		func(c *Config) *string { return &c.Replication.Method }),
	stringKey("replication.samba_tool", "samba-tool binary for the samba method",
		func(c *Config) *string { return &c.Replication.SambaTool }),
	stringKey("replication.pdbedit", "pdbedit binary for the samba method",
		func(c *Config) *string { return &c.Replication.Pdbedit }),
	{
		Name:        "scheduler.poll_interval",
		Description: "How often the daemon looks for due audits, e.g. 1s",
		Get:         func(cfg *Config) string { return cfg.Scheduler.PollInterval.String() },
		Set: func(cfg *Config, v string) error {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("scheduler.poll_interval: %w", err)
			}
			cfg.Scheduler.PollInterval = d
			return nil
		},
	},
	stringKey("report_url", "Base URL linked from admin reports",
		func(c *Config) *string { return &c.ReportURL }),
	stringKey("metrics_addr", "Listen address of the Prometheus endpoint (empty: disabled)",
		func(c *Config) *string { return &c.MetricsAddr }),
	stringKey("log_level", "Log level: debug, info, warn or error",
		func(c *Config) *string { return &c.LogLevel }),
	stringKey("log_format", "Console log format: text or json",
		func(c *Config) *string { return &c.LogFormat }),
}

// Lookup returns the KeySpec for the given name, or nil if not found.
// The name is matched case-insensitively after trimming whitespace.
func Lookup(name string) *KeySpec {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for i := range Keys {
		if Keys[i].Name == normalized {
			return &Keys[i]
		}
	}
	return nil
}

// KeyNames returns the names of all registered keys.
func KeyNames() []string {
	names := make([]string, len(Keys))
	for i, k := range Keys {
		names[i] = k.Name
	}
	return names
}

// KeysHelp builds a formatted block listing all available keys and their
// descriptions, suitable for inclusion in Cobra Long help text.
func KeysHelp() string {
	if len(Keys) == 0 {
		return ""
	}

	maxLen := 0
	for _, k := range Keys {
		if len(k.Name) > maxLen {
			maxLen = len(k.Name)
		}
	}

	var b strings.Builder
	b.WriteString("Available keys:\n")
	for _, k := range Keys {
		fmt.Fprintf(&b, "  %-*s   %s\n", maxLen, k.Name, k.Description)
	}
	return b.String()
}
