package mailer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crackomatic/crackomatic/internal/retry"
)

func newMailer(t *testing.T, opts Options) *Mailer {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Sender: "a@b"}); err == nil {
		t.Error("expected error without host")
	}
	if _, err := New(Options{Host: "mx"}); err == nil {
		t.Error("expected error without sender")
	}
	if _, err := New(Options{Host: "mx", Sender: "a@b", CAFile: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Error("expected error for missing CA file")
	}

	garbage := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(garbage, []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Options{Host: "mx", Sender: "a@b", CAFile: garbage}); err == nil {
		t.Error("expected error for CA file without certificates")
	}
}

func TestCompose_HidesRecipients(t *testing.T) {
	m := newMailer(t, Options{Host: "mx.corp.example", Sender: "crackomatic@corp.example"})

	msg, err := m.Compose([]string{"alice@corp.example", "bob@corp.example"}, "Your password", "Please change it.")
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"To: " + UndisclosedRecipients,
		"Subject: Your password",
		"crackomatic@corp.example",
		"Please change it.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in message:\n%s", want, out)
		}
	}
	if strings.Contains(out, "alice@corp.example") || strings.Contains(out, "Bcc:") {
		t.Errorf("recipients leaked into headers:\n%s", out)
	}

	rcpts, err := msg.GetRecipients()
	if err != nil {
		t.Fatal(err)
	}
	if len(rcpts) != 2 {
		t.Errorf("expected 2 envelope recipients, got %v", rcpts)
	}
}

func TestCompose_InvalidAddresses(t *testing.T) {
	m := newMailer(t, Options{Host: "mx", Sender: "not an address"})
	if _, err := m.Compose([]string{"a@b"}, "s", "b"); err == nil {
		t.Error("expected error for invalid sender")
	}

	m = newMailer(t, Options{Host: "mx", Sender: "a@b"})
	if _, err := m.Compose([]string{"<<broken"}, "s", "b"); err == nil {
		t.Error("expected error for invalid recipient")
	}
}

func TestSend_NoRecipients(t *testing.T) {
	m := newMailer(t, Options{Host: "mx", Sender: "a@b"})
	if err := m.Send(context.Background(), nil, "s", "b"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestSend_ConnectionFailure(t *testing.T) {
	m := newMailer(t, Options{
		Host:    "127.0.0.1",
		Port:    1,
		Sender:  "a@b",
		Timeout: time.Second,
		Retry:   retry.Config{MaxAttempts: 1},
	})
	if err := m.Send(context.Background(), []string{"c@d"}, "s", "b"); err == nil {
		t.Fatal("expected connection error")
	}
}
