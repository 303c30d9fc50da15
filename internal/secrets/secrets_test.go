package secrets

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestSMTPPassword(t *testing.T) {
	s := NewMockStore()

	pw, err := SMTPPassword(s, "mailer")
	if err != nil || pw != "" {
		t.Fatalf("expected empty password for missing entry, got %q, %v", pw, err)
	}

	if err := s.Set(SMTPKey("Mailer"), "hunter2"); err != nil {
		t.Fatal(err)
	}
	pw, err = SMTPPassword(s, " mailer ")
	if err != nil || pw != "hunter2" {
		t.Fatalf("expected stored password, got %q, %v", pw, err)
	}

	if pw, _ := SMTPPassword(s, ""); pw != "" {
		t.Errorf("expected no password without user, got %q", pw)
	}
}

func TestMockStore_Delete(t *testing.T) {
	s := NewMockStore()
	if err := s.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = s.Set("smtp:x", "y")
	if err := s.Delete("SMTP:X"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get("smtp:x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected entry to be gone, got %v", err)
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	s := NewKeyringStore("")

	if _, err := s.Get("smtp:mailer"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set("SMTP:Mailer", "hunter2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get("smtp:mailer")
	if err != nil || got != "hunter2" {
		t.Fatalf("expected hunter2, got %q, %v", got, err)
	}
	if err := s.Delete("smtp:mailer"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("smtp:mailer"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
