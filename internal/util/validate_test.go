package util

import (
	"strings"
	"testing"
)

func TestValidateDomainName_Valid(t *testing.T) {
	valid := []string{
		"contoso.local",
		"corp.example.com",
		"CORP.EXAMPLE",
		"a.b",
		"x-1.y-2.z",
		"corp.example.",
	}
	for _, name := range valid {
		t.Run(name, func(t *testing.T) {
			if err := ValidateDomainName(name); err != nil {
				t.Errorf("expected %q to be valid, got error: %v", name, err)
			}
		})
	}
}

func TestValidateDomainName_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		wantMsg string
	}{
		{"", "not fully qualified"},
		{"CONTOSO", "not fully qualified"},
		{"corp..example", "empty label"},
		{"-corp.example", "invalid characters"},
		{"corp-.example", "invalid characters"},
		{"corp_1.example", "invalid characters"},
		{"corp example.com", "invalid characters"},
		{strings.Repeat("a", 64) + ".example", "longer than 63"},
		{strings.Repeat("abcdefghi.", 26) + "com", "at most 253"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDomainName(tt.name)
			if err == nil {
				t.Errorf("expected %q to be invalid, got nil", tt.name)
				return
			}
			if got := err.Error(); !strings.Contains(got, tt.wantMsg) {
				t.Errorf("expected error containing %q, got %q", tt.wantMsg, got)
			}
		})
	}
}

func TestAccountName(t *testing.T) {
	tests := map[string]string{
		`CORP\alice`: "alice",
		"bob":        "bob",
		`A\B\carol`:  "carol",
		"":           "",
	}
	for in, want := range tests {
		if got := AccountName(in); got != want {
			t.Errorf("AccountName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey("  SMTP:Mailer "); got != "smtp:mailer" {
		t.Errorf("NormalizeKey = %q", got)
	}
}
