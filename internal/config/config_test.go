package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/engine"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Cracker.WordlistPath = "/usr/share/wordlists/rockyou.txt"
	cfg.Cracker.ExtraArgs = []string{"-O"}
	cfg.Email.Host = "smtp.corp.example"
	cfg.Email.Sender = "crackomatic@corp.example"
	return cfg
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent", "config.yaml")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crackomatic", "config.yaml")

	want := validConfig()
	want.Scheduler.PollInterval = 3 * time.Second
	want.ReportURL = "https://crackomatic.corp.example"
	if err := want.SaveTo(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_UsesPathOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "config.yaml")
	SetPath(path)
	t.Cleanup(ResetPath)

	if err := validConfig().Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file at %s: %v", path, err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "cracker:\n  engine: john\nemail:\n  host: mx\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cracker.Engine != "john" || cfg.Email.Host != "mx" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Email.Port != 465 || cfg.Replication.Method != MethodDRSR || cfg.Scheduler.PollInterval != time.Second {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("email:\n  host: file-host\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CRACKOMATIC_EMAIL_HOST", "env-host")
	t.Setenv("CRACKOMATIC_EMAIL_PASSWORD", "hunter2")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Email.Host != "env-host" {
		t.Errorf("expected env-host, got %q", cfg.Email.Host)
	}
	if cfg.Email.Password != "hunter2" {
		t.Errorf("expected password from environment, got %q", cfg.Email.Password)
	}

	fileOnly, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if fileOnly.Email.Host != "file-host" || fileOnly.Email.Password != "" {
		t.Errorf("expected LoadFile to ignore the environment, got %+v", fileOnly.Email)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("cracker: [unterminated"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg := Default()
	cfg.Cracker.Engine = "ophcrack"
	cfg.Replication.Method = "ntdsutil"
	cfg.LogLevel = "chatty"
	cfg.ReportURL = "ftp://example"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	var ce *domain.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
	for _, want := range []string{"engine", "wordlist_path", "host", "sender", "method", "log_level", "report_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestEngineOptions(t *testing.T) {
	c := Cracker{Engine: "John", WordlistPath: "/w", RulePath: "/r", ExtraArgs: []string{"--x"}, Cores: 2}
	got, err := c.EngineOptions()
	if err != nil {
		t.Fatal(err)
	}
	want := engine.Options{
		Variant:    engine.VariantJohn,
		BinaryPath: "john",
		Wordlist:   "/w",
		RuleFile:   "/r",
		ExtraArgs:  []string{"--x"},
		Cores:      2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	if _, err := (Cracker{Engine: "nope"}).EngineOptions(); err == nil {
		t.Error("expected error for unknown engine")
	}
}
