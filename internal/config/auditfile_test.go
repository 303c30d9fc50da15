package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/crackomatic/crackomatic/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// completeFile returns a valid audit file with files it references
// created below a temporary directory.
func completeFile(t *testing.T) *AuditFile {
	t.Helper()
	dir := t.TempDir()
	f := NewAuditFile(validConfig())
	f.Audit.Domain = "corp.example"
	f.Audit.User = "auditor"
	f.Audit.Password = "s3cret"
	f.Audit.LDAPURL = "ldaps://dc01.corp.example:636"
	f.Audit.CAFile = writeFile(t, dir, "ca.pem", "-----BEGIN CERTIFICATE-----\n")
	f.Audit.UserFilter = "(objectClass=user)"
	f.Audit.AdminFilter = "(memberOf=CN=Admins)"
	f.Audit.Subject = "Your password"
	f.Cracker.WordlistPath = writeFile(t, dir, "words.txt", "summer\n")
	return f
}

func TestLoadAuditFile_OverlaysBase(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "audit.yaml", `
audit:
  domain: corp.example
  user: auditor
  frequency: weekly
  start: "2024-06-01 08:30:00"
  include_cracked: true
email:
  port: 587
  tls: false
`)
	base := validConfig()

	f, err := LoadAuditFile(path, base)
	if err != nil {
		t.Fatalf("LoadAuditFile failed: %v", err)
	}
	if f.Email.Host != base.Email.Host || f.Email.Sender != base.Email.Sender {
		t.Errorf("expected base email settings to be kept, got %+v", f.Email)
	}
	if f.Email.Port != 587 || f.Email.TLS {
		t.Errorf("expected file email settings, got %+v", f.Email)
	}
	if f.Audit.EmailField != domain.DefaultEmailField {
		t.Errorf("expected default email field, got %q", f.Audit.EmailField)
	}

	a, err := f.Resolve(time.Now())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := time.Date(2024, 6, 1, 8, 30, 0, 0, time.Local)
	if !a.Start.Equal(want) {
		t.Errorf("expected start %v, got %v", want, a.Start)
	}
	if a.Frequency != domain.FrequencyWeekly || !a.IncludeCracked || a.State != domain.StateScheduled {
		t.Errorf("unexpected audit %+v", a)
	}

	cfg := f.Config(base)
	if cfg.Email.Port != 587 || cfg.LogLevel != base.LogLevel {
		t.Errorf("expected merged config, got %+v", cfg)
	}
}

func TestLoadAuditFile_AcceptsJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "audit.json",
		`{"audit": {"domain": "corp.example", "frequency": "daily"}, "cracker": {"engine": "john"}}`)

	f, err := LoadAuditFile(path, nil)
	if err != nil {
		t.Fatalf("LoadAuditFile failed: %v", err)
	}
	if f.Audit.Domain != "corp.example" || f.Cracker.Engine != "john" {
		t.Errorf("unexpected file %+v", f)
	}
}

func TestResolve_EmptyStartMeansNow(t *testing.T) {
	f := completeFile(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	a, err := f.Resolve(now)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Start.Equal(now) || a.Frequency != domain.FrequencyJustOnce {
		t.Errorf("expected immediate one-off audit, got start %v frequency %v", a.Start, a.Frequency)
	}

	f.Audit.Start = "tomorrow"
	if _, err := f.Resolve(now); err == nil {
		t.Error("expected error for malformed start")
	}
}

func TestProblems(t *testing.T) {
	if p := completeFile(t).Problems(); len(p) != 0 {
		t.Fatalf("expected no problems, got %v", p)
	}

	f := completeFile(t)
	f.Audit.Password = ""
	f.Audit.CAFile = ""
	f.Audit.Frequency = "fortnightly"
	f.Email.Sender = "nobody"
	f.Replication.Method = "ntdsutil"

	var keys []string
	for _, p := range f.Problems() {
		keys = append(keys, p.Field.Key())
	}
	want := []string{"audit.password", "audit.frequency", "audit.ca_file", "email.sender", "replication.method"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("problems mismatch (-want +got):\n%s", diff)
	}

	err := f.Validate()
	var ce *domain.ConfigurationError
	if !errors.As(err, &ce) || ce.Section != "audit" {
		t.Fatalf("expected audit ConfigurationError first, got %v", err)
	}
	if !strings.Contains(err.Error(), "ca_file is required for ldaps://") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestComplete_AsksUntilValid(t *testing.T) {
	f := completeFile(t)
	f.Audit.Password = ""
	f.Audit.Frequency = "fortnightly"
	f.Email.Port = 0

	answers := map[string][]string{
		"audit.password":  {"s3cret"},
		"audit.frequency": {"every now and then", "monthly"},
		"email.port":      {"twenty-five", "25"},
	}
	var asked []string
	ask := func(fd Field, problem error) (string, error) {
		if problem == nil {
			t.Fatalf("asked for %s without a problem", fd.Key())
		}
		asked = append(asked, fd.Key())
		queue := answers[fd.Key()]
		if len(queue) == 0 {
			return "", errors.New("no more answers")
		}
		answers[fd.Key()] = queue[1:]
		return queue[0], nil
	}

	if err := f.Complete(ask); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if f.Audit.Password != "s3cret" || f.Audit.Frequency != "monthly" || f.Email.Port != 25 {
		t.Errorf("answers not applied: %+v %+v", f.Audit, f.Email)
	}
	want := []string{"audit.password", "audit.frequency", "email.port", "email.port", "audit.frequency"}
	if diff := cmp.Diff(want, asked); diff != "" {
		t.Errorf("questions mismatch (-want +got):\n%s", diff)
	}
}

func TestComplete_StopsOnAskerError(t *testing.T) {
	f := completeFile(t)
	f.Audit.Domain = ""
	stop := errors.New("interrupted")

	err := f.Complete(func(Field, error) (string, error) { return "", stop })
	if !errors.Is(err, stop) {
		t.Errorf("expected asker error, got %v", err)
	}
}

func TestSample(t *testing.T) {
	out, err := Sample()
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	text := string(out)
	for _, want := range []string{"audit:", "email:", "cracker:", "replication:", "# FQDN of the domain to be audited (required)", "ldap_url: ldaps://dc01.contoso.local:636"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in sample:\n%s", want, text)
		}
	}

	path := writeFile(t, t.TempDir(), "sample.yaml", text)
	f, err := LoadAuditFile(path, nil)
	if err != nil {
		t.Fatalf("sample does not parse: %v", err)
	}
	if f.Audit.Domain != "contoso.local" || f.Email.Port != 465 || f.Cracker.Engine != "hashcat" {
		t.Errorf("unexpected sample values: %+v", f)
	}
}

func TestLookupField(t *testing.T) {
	fd := LookupField("Audit.Password")
	if fd == nil || !fd.Secret || !fd.Required {
		t.Fatalf("expected secret required password field, got %+v", fd)
	}
	if LookupField("audit.nope") != nil {
		t.Error("expected nil for unknown field")
	}
	for _, fd := range AuditFields {
		if fd.Help == "" {
			t.Errorf("field %s has no help", fd.Key())
		}
	}
}
