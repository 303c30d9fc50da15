package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crackomatic/crackomatic/internal/config"
)

// setupTestConfig points the config package at a temp file and returns its path.
func setupTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	config.SetPath(path)
	t.Cleanup(config.ResetPath)
	return path
}

// execConfig creates the config command, wires up output buffers, runs with the
// given args, and returns what was written to stdout and stderr.
func execConfig(t *testing.T, args ...string) (stdout, stderr string) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)
	cmd.Execute()
	return outBuf.String(), errBuf.String()
}

func TestGet_NotSet(t *testing.T) {
	setupTestConfig(t)

	stdout, stderr := execConfig(t, "get", "email.host")

	if stderr != "" {
		t.Errorf("unexpected stderr: %s", stderr)
	}
	if !strings.Contains(stdout, "not set") {
		t.Errorf("expected 'not set', got: %s", stdout)
	}
}

func TestGet_Default(t *testing.T) {
	setupTestConfig(t)

	stdout, _ := execConfig(t, "get", "cracker.engine")

	if strings.TrimSpace(stdout) != "hashcat" {
		t.Errorf("expected default engine, got: %s", stdout)
	}
}

func TestGet_Set(t *testing.T) {
	path := setupTestConfig(t)

	cfg := config.Default()
	cfg.Email.Host = "smtp.corp.example"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	stdout, stderr := execConfig(t, "get", "email.host")

	if stderr != "" {
		t.Errorf("unexpected stderr: %s", stderr)
	}
	if !strings.Contains(stdout, "smtp.corp.example") {
		t.Errorf("expected 'smtp.corp.example', got: %s", stdout)
	}
}

func TestGet_All(t *testing.T) {
	setupTestConfig(t)

	stdout, _ := execConfig(t, "get")

	for _, want := range []string{"cracker.engine: hashcat", "email.host: (not set)", "replication.method: drsr"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestGet_UnknownKey(t *testing.T) {
	setupTestConfig(t)

	_, stderr := execConfig(t, "get", "bogus-key")

	if !strings.Contains(stderr, "unknown configuration key") {
		t.Errorf("expected 'unknown configuration key' error, got: %s", stderr)
	}
}

func TestSet_Persists(t *testing.T) {
	path := setupTestConfig(t)

	stdout, stderr := execConfig(t, "set", "email.port", "587")

	if stderr != "" {
		t.Errorf("unexpected stderr: %s", stderr)
	}
	if !strings.Contains(stdout, `"587"`) {
		t.Errorf("expected confirmation with the value, got: %s", stdout)
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Email.Port != 587 {
		t.Errorf("expected port 587, got %d", cfg.Email.Port)
	}
}

func TestSet_InvalidValue(t *testing.T) {
	path := setupTestConfig(t)

	_, stderr := execConfig(t, "set", "email.port", "many")

	if !strings.Contains(stderr, "email.port") {
		t.Errorf("expected an error naming the key, got: %s", stderr)
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Email.Port != 465 {
		t.Errorf("expected the default port to be kept, got %d", cfg.Email.Port)
	}
}

func TestSet_DoesNotPersistEnvironment(t *testing.T) {
	path := setupTestConfig(t)
	t.Setenv("CRACKOMATIC_EMAIL_PASSWORD", "hunter2")

	execConfig(t, "set", "email.host", "smtp.corp.example")

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Email.Password != "" {
		t.Error("expected the password from the environment not to be saved")
	}
}

func TestSet_UnknownKey(t *testing.T) {
	setupTestConfig(t)

	_, stderr := execConfig(t, "set", "email.password", "hunter2")

	if !strings.Contains(stderr, "unknown configuration key") {
		t.Errorf("expected 'unknown configuration key' error, got: %s", stderr)
	}
	if !strings.Contains(stderr, "Valid keys:") {
		t.Errorf("expected list of valid keys, got: %s", stderr)
	}
}

func TestValidate_ReportsProblems(t *testing.T) {
	setupTestConfig(t)

	_, stderr := execConfig(t, "validate")

	if !strings.Contains(stderr, "host is required") {
		t.Errorf("expected the missing host to be reported, got: %s", stderr)
	}
}
