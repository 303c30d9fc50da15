package serve

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/crackomatic/crackomatic/internal/app"
	"github.com/crackomatic/crackomatic/internal/config"
	"github.com/crackomatic/crackomatic/internal/database"
	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/job"
	"github.com/crackomatic/crackomatic/internal/secrets"
)

func setupPaths(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	config.SetPath(filepath.Join(dir, "config.yaml"))
	t.Cleanup(config.ResetPath)
	database.SetPath(filepath.Join(dir, "crackomatic.db"))
	t.Cleanup(database.ResetPath)
}

func TestServe_RejectsInvalidConfig(t *testing.T) {
	setupPaths(t)

	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(nil)
	err := cmd.Execute()

	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected a ConfigurationError, got %v", err)
	}
}

func TestFailInterrupted_RespectsHostLock(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the host lock needs flock")
	}
	setupPaths(t)
	var stderr bytes.Buffer
	a, err := app.New(app.Options{Config: config.Default(), Stderr: &stderr, Secrets: secrets.NewMockStore()})
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	ctx := context.Background()
	running := &domain.Audit{
		Domain:    "corp.example",
		User:      "auditor",
		State:     domain.StateCracking,
		Frequency: domain.FrequencyJustOnce,
		Start:     time.Now(),
	}
	if err := a.Store.CreateAudit(ctx, running); err != nil {
		t.Fatal(err)
	}

	lockPath, err := database.LockPath()
	if err != nil {
		t.Fatal(err)
	}
	other := job.NewHostResource(lockPath)
	if err := other.TryAcquire(running.ID); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	if err := failInterrupted(ctx, a); err != nil {
		t.Fatalf("failInterrupted failed: %v", err)
	}
	got, err := a.Store.GetAudit(ctx, running.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.StateCracking {
		t.Errorf("audit of another process must stay active, got %s", got.State)
	}

	other.Release()
	if err := failInterrupted(ctx, a); err != nil {
		t.Fatalf("failInterrupted failed: %v", err)
	}
	got, err = a.Store.GetAudit(ctx, running.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.StateFailed {
		t.Errorf("expected interrupted audit to fail, got %s", got.State)
	}
	if a.Resource.Busy() {
		t.Error("expected the resource to be released after startup")
	}
}
