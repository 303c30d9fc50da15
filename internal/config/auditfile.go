package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/engine"
	"github.com/crackomatic/crackomatic/internal/util"
)

// StartLayout is the format of the start field, in local time.
const StartLayout = "2006-01-02 15:04:05"

// AuditSection is the audit part of an audit file.
type AuditSection struct {
	domain.Audit `yaml:",inline"`

	// Start is empty for "right now".
	Start     string `yaml:"start"`
	Frequency string `yaml:"frequency"`
}

// AuditFile is the document read by "audit add --file" and "audit run
// --file". It is YAML; JSON works as well. Sections other than audit
// default to the loaded configuration.
type AuditFile struct {
	Audit       AuditSection `yaml:"audit"`
	Email       Email        `yaml:"email"`
	Cracker     Cracker      `yaml:"cracker"`
	Replication Replication  `yaml:"replication"`
}

// NewAuditFile returns an audit file whose non-audit sections are taken
// from base.
func NewAuditFile(base *Config) *AuditFile {
	f := &AuditFile{}
	if base != nil {
		f.Email = base.Email
		f.Cracker = base.Cracker
		f.Cracker.ExtraArgs = append([]string(nil), base.Cracker.ExtraArgs...)
		f.Replication = base.Replication
	}
	f.Audit.EmailField = domain.DefaultEmailField
	return f
}

// LoadAuditFile reads path on top of the sections of base.
func LoadAuditFile(path string, base *Config) (*AuditFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read audit file: %w", err)
	}
	f := NewAuditFile(base)
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("config: failed to parse audit file %s: %w", path, err)
	}
	return f, nil
}

// Config returns base with the sections of f applied.
func (f *AuditFile) Config(base *Config) *Config {
	cfg := Default()
	if base != nil {
		c := *base
		cfg = &c
	}
	cfg.Email = f.Email
	cfg.Cracker = f.Cracker
	cfg.Replication = f.Replication
	return cfg
}

// Resolve turns the audit section into an audit. An empty start means
// now.
func (f *AuditFile) Resolve(now time.Time) (domain.Audit, error) {
	a := f.Audit.Audit
	freq, err := domain.ParseFrequency(f.Audit.Frequency)
	if err != nil {
		return domain.Audit{}, err
	}
	a.Frequency = freq
	a.Start = now
	if s := strings.TrimSpace(f.Audit.Start); s != "" {
		if a.Start, err = time.ParseInLocation(StartLayout, s, time.Local); err != nil {
			return domain.Audit{}, fmt.Errorf("start: expected %q: %w", "YYYY-MM-DD HH:MM:SS", err)
		}
	}
	if a.EmailField == "" {
		a.EmailField = domain.DefaultEmailField
	}
	a.State = domain.StateScheduled
	return a, nil
}

// Field is one settable value of an audit file.
type Field struct {
	Section     string
	Name        string
	Help        string
	Placeholder string
	Required    bool
	Secret      bool

	get   func(*AuditFile) string
	set   func(*AuditFile, string) error
	check func(*AuditFile, string) error
}

// Key returns the dotted name, e.g. "audit.domain".
func (fd Field) Key() string { return fd.Section + "." + fd.Name }

// Get returns the current value of the field.
func (fd Field) Get(f *AuditFile) string { return fd.get(f) }

// Set parses value into the field.
func (fd Field) Set(f *AuditFile, value string) error { return fd.set(f, value) }

// Problem returns why the current value is unacceptable, or nil.
func (fd Field) Problem(f *AuditFile) error {
	v := fd.get(f)
	if strings.TrimSpace(v) == "" {
		if fd.Required {
			return errors.New("is required")
		}
		return nil
	}
	if fd.check != nil {
		return fd.check(f, v)
	}
	return nil
}

func text(section, name, help, placeholder string, required bool, ptr func(*AuditFile) *string) Field {
	return Field{
		Section: section, Name: name, Help: help, Placeholder: placeholder, Required: required,
		get: func(f *AuditFile) string { return *ptr(f) },
		set: func(f *AuditFile, v string) error {
			*ptr(f) = strings.TrimSpace(v)
			return nil
		},
	}
}

func flag(section, name, help string, ptr func(*AuditFile) *bool) Field {
	return Field{
		Section: section, Name: name, Help: help, Placeholder: "false",
		get: func(f *AuditFile) string { return strconv.FormatBool(*ptr(f)) },
		set: func(f *AuditFile, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%q is not a boolean", v)
			}
			*ptr(f) = b
			return nil
		},
	}
}

func (fd Field) withCheck(check func(*AuditFile, string) error) Field {
	fd.check = check
	return fd
}

func (fd Field) secret() Field {
	fd.Secret = true
	return fd
}

// AuditFields lists every field of an audit file in document order.
var AuditFields = []Field{
	text("audit", "domain", "FQDN of the domain to be audited", "contoso.local", true,
		func(f *AuditFile) *string { return &f.Audit.Domain }).
		withCheck(func(_ *AuditFile, v string) error { return util.ValidateDomainName(v) }),
	text("audit", "user", "Name of an account with the permission 'Replicating Directory Changes'", "Administrator", true,
		func(f *AuditFile) *string { return &f.Audit.User }),
	text("audit", "password", "Password of the account", "", true,
		func(f *AuditFile) *string { return &f.Audit.Password }).secret(),
	text("audit", "start", "Leave empty for 'right now'", "YYYY-MM-DD HH:MM:SS", false,
		func(f *AuditFile) *string { return &f.Audit.Start }).
		withCheck(func(_ *AuditFile, v string) error {
			if _, err := time.ParseInLocation(StartLayout, strings.TrimSpace(v), time.Local); err != nil {
				return errors.New("must look like YYYY-MM-DD HH:MM:SS")
			}
			return nil
		}),
	text("audit", "frequency", "once, daily, weekly, monthly, quarterly or yearly; the password is stored on disk unless the audit runs once", "once", false,
		func(f *AuditFile) *string { return &f.Audit.Frequency }).
		withCheck(func(_ *AuditFile, v string) error {
			_, err := domain.ParseFrequency(v)
			return err
		}),
	text("audit", "dc_ip", "Optional IP address of the DC to use for replication", "10.10.10.10", false,
		func(f *AuditFile) *string { return &f.Audit.DCAddress }),
	text("audit", "ldap_url", "LDAP URL of the directory (use FQDN)", "ldaps://dc01.contoso.local:636", true,
		func(f *AuditFile) *string { return &f.Audit.LDAPURL }).
		withCheck(func(_ *AuditFile, v string) error {
			u := strings.ToLower(v)
			if !strings.HasPrefix(u, "ldap://") && !strings.HasPrefix(u, "ldaps://") {
				return errors.New("must start with ldap:// or ldaps://")
			}
			return nil
		}),
	text("audit", "ca_file", "Path to a file containing a CA certificate in PEM format that can authenticate the LDAP host", "/etc/ssl/certs/contoso_ROOT_CA.pem", false,
		func(f *AuditFile) *string { return &f.Audit.CAFile }).
		withCheck(fileExists),
	text("audit", "email_field", "Name of the email attribute in LDAP", domain.DefaultEmailField, true,
		func(f *AuditFile) *string { return &f.Audit.EmailField }),
	text("audit", "user_filter", "Only users passing this LDAP filter will be notified if their password was cracked", "(&(objectClass=person)(objectClass=user))", true,
		func(f *AuditFile) *string { return &f.Audit.UserFilter }),
	text("audit", "admin_filter", "Only admin users passing this LDAP filter will receive a report", "(&(objectClass=person)(memberOf=cn=crackomaticAdmins,ou=users,dc=contoso,dc=local))", true,
		func(f *AuditFile) *string { return &f.Audit.AdminFilter }),
	text("audit", "subject", "The subject field of the email that is sent to affected users", "A message regarding your password", true,
		func(f *AuditFile) *string { return &f.Audit.Subject }),
	text("audit", "message", "The message that is sent to affected users", "", false,
		func(f *AuditFile) *string { return &f.Audit.Message }),
	flag("audit", "include_cracked", "Whether to include a list of cracked accounts in the admin report",
		func(f *AuditFile) *bool { return &f.Audit.IncludeCracked }),

	text("email", "host", "Hostname of an SMTP server", "smtp.contoso.local", true,
		func(f *AuditFile) *string { return &f.Email.Host }),
	{
		Section: "email", Name: "port", Help: "Port of an SMTP service", Placeholder: "465", Required: true,
		get: func(f *AuditFile) string {
			if f.Email.Port == 0 {
				return ""
			}
			return strconv.Itoa(f.Email.Port)
		},
		set: func(f *AuditFile, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%q is not a number", v)
			}
			f.Email.Port = n
			return nil
		},
		check: func(f *AuditFile, _ string) error {
			if f.Email.Port <= 0 || f.Email.Port > 65535 {
				return errors.New("is out of range")
			}
			return nil
		},
	},
	flag("email", "tls", "Whether to use TLS; the port must match",
		func(f *AuditFile) *bool { return &f.Email.TLS }),
	text("email", "ca_file", "Path to a CA file in PEM format", "", false,
		func(f *AuditFile) *string { return &f.Email.CAFile }).
		withCheck(fileExists),
	text("email", "user", "Username for SMTP authentication (should be low privilege)", "", false,
		func(f *AuditFile) *string { return &f.Email.User }),
	text("email", "password", "Password for SMTP authentication", "", false,
		func(f *AuditFile) *string { return &f.Email.Password }).secret(),
	text("email", "sender", "This will be used in the 'From' field of outgoing mails", "crackomatic@contoso.local", true,
		func(f *AuditFile) *string { return &f.Email.Sender }).
		withCheck(func(_ *AuditFile, v string) error {
			if !strings.Contains(v, "@") {
				return errors.New("must be an e-mail address")
			}
			return nil
		}),

	text("cracker", "engine", "Choose 'john' or 'hashcat'", "hashcat", true,
		func(f *AuditFile) *string { return &f.Cracker.Engine }).
		withCheck(func(_ *AuditFile, v string) error {
			_, err := engine.ParseVariant(v)
			return err
		}),
	text("cracker", "binary_path", "Path to the binary (default: looked up in PATH)", "/usr/bin/hashcat", false,
		func(f *AuditFile) *string { return &f.Cracker.BinaryPath }),
	text("cracker", "wordlist_path", "Path to the wordlist", "/usr/share/wordlists/rockyou.txt", true,
		func(f *AuditFile) *string { return &f.Cracker.WordlistPath }).
		withCheck(fileExists),
	text("cracker", "rule_path", "Path to a rule file (optional)", "", false,
		func(f *AuditFile) *string { return &f.Cracker.RulePath }).
		withCheck(fileExists),

	text("replication", "method", "How hashes are fetched: drsr or samba", MethodDRSR, true,
		func(f *AuditFile) *string { return &f.Replication.Method }).
		withCheck(func(_ *AuditFile, v string) error {
			if v != MethodDRSR && v != MethodSamba {
				return fmt.Errorf("must be %s or %s", MethodDRSR, MethodSamba)
			}
			return nil
		}),
}

func fileExists(_ *AuditFile, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot be read: %w", err)
	}
	return nil
}

// LookupField returns the field with the given dotted key, or nil.
func LookupField(key string) *Field {
	key = strings.ToLower(strings.TrimSpace(key))
	for i := range AuditFields {
		if AuditFields[i].Key() == key {
			return &AuditFields[i]
		}
	}
	return nil
}

// FieldProblem pairs a field with what is wrong about it.
type FieldProblem struct {
	Field Field
	Err   error
}

// Problems lists the unacceptable fields of f in document order. LDAPS
// additionally demands a CA file.
func (f *AuditFile) Problems() []FieldProblem {
	var out []FieldProblem
	for _, fd := range AuditFields {
		if err := fd.Problem(f); err != nil {
			out = append(out, FieldProblem{Field: fd, Err: err})
			continue
		}
		if fd.Key() == "audit.ca_file" && f.Audit.CAFile == "" &&
			strings.HasPrefix(strings.ToLower(f.Audit.LDAPURL), "ldaps://") {
			out = append(out, FieldProblem{Field: fd, Err: errors.New("is required for ldaps://")})
		}
	}
	return out
}

// Validate returns one *domain.ConfigurationError per faulty section,
// joined.
func (f *AuditFile) Validate() error {
	var (
		order    []string
		sections = map[string]*domain.ConfigurationError{}
	)
	for _, p := range f.Problems() {
		ce, ok := sections[p.Field.Section]
		if !ok {
			ce = &domain.ConfigurationError{Section: p.Field.Section}
			sections[p.Field.Section] = ce
			order = append(order, p.Field.Section)
		}
		ce.Add("%s %v", p.Field.Name, p.Err)
	}
	errs := make([]error, 0, len(order))
	for _, s := range order {
		errs = append(errs, sections[s])
	}
	return errors.Join(errs...)
}

// Asker obtains a new value for a field. problem describes the current
// value.
type Asker func(fd Field, problem error) (string, error)

// Complete asks for every unacceptable field until none is left. Values
// that do not parse are asked for again. The asker's errors end the loop.
func (f *AuditFile) Complete(ask Asker) error {
	for {
		problems := f.Problems()
		if len(problems) == 0 {
			return nil
		}
		for _, p := range problems {
			problem := p.Err
			for problem != nil {
				v, err := ask(p.Field, problem)
				if err != nil {
					return err
				}
				problem = p.Field.Set(f, v)
			}
		}
	}
}

// Sample returns a commented audit file with placeholder values.
func Sample() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	var current *yaml.Node
	section := ""
	for _, fd := range AuditFields {
		if fd.Section != section {
			section = fd.Section
			current = &yaml.Node{Kind: yaml.MappingNode}
			root.Content = append(root.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: section}, current)
		}
		comment := "# " + fd.Help
		if fd.Required {
			comment += " (required)"
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: fd.Name, HeadComment: comment}
		val := &yaml.Node{Kind: yaml.ScalarNode, Value: fd.Placeholder}
		if fd.Placeholder == "" || strings.HasPrefix(fd.Placeholder, "(") || strings.Contains(fd.Placeholder, ": ") {
			val.Style = yaml.DoubleQuotedStyle
		}
		current.Content = append(current.Content, key, val)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("config: failed to render sample: %w", err)
	}
	return out, nil
}
