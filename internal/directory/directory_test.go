package directory

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/go-cmp/cmp"

	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/retry"
)

func writeCA(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "corp root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTLSConfig(t *testing.T) {
	ca := writeCA(t)

	cfg, err := TLSConfig("ldaps://dc01.corp.example:636", ca)
	if err != nil {
		t.Fatalf("TLSConfig failed: %v", err)
	}
	if cfg.ServerName != "dc01.corp.example" || cfg.RootCAs == nil {
		t.Errorf("unexpected TLS config: server %q", cfg.ServerName)
	}

	cfg, err = TLSConfig("ldap://dc01.corp.example", "")
	if err != nil || cfg != nil {
		t.Errorf("expected no TLS for ldap://, got %v, %v", cfg, err)
	}
}

func TestTLSConfig_Errors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name, url, ca string
	}{
		{"missing CA", "ldaps://dc01", ""},
		{"unreadable CA", "ldaps://dc01", filepath.Join(t.TempDir(), "missing.pem")},
		{"no certificates", "ldaps://dc01", garbage},
		{"bad scheme", "http://dc01", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := TLSConfig(tt.url, tt.ca); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEntries(t *testing.T) {
	in := []*ldap.Entry{
		ldap.NewEntry("CN=Alice,DC=corp", map[string][]string{
			"sAMAccountName": {"alice"},
			"mail":           {"alice@corp.example"},
		}),
		ldap.NewEntry("CN=Bob,DC=corp", map[string][]string{
			"samaccountname": {"bob"},
		}),
	}

	got := Entries(in, []string{"sAMAccountName", "mail"})
	want := domain.DirectoryEntries{
		"CN=Alice,DC=corp": {"sAMAccountName": {"alice"}, "mail": {"alice@corp.example"}},
		"CN=Bob,DC=corp":   {"sAMAccountName": {"bob"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestRetryable(t *testing.T) {
	network := ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset"))
	if !retryable(fmt.Errorf("directory: search: %w", network)) {
		t.Error("expected network errors to be retried")
	}
	creds := ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password"))
	if retryable(creds) {
		t.Error("expected invalid credentials not to be retried")
	}
}

func TestQuery_ConnectionFailure(t *testing.T) {
	c := New(Options{
		Timeout: time.Second,
		Retry:   retry.Config{MaxAttempts: 1},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := c.Query(context.Background(), domain.DirectoryQuery{
		URL:    "ldap://127.0.0.1:1",
		BaseDN: "DC=corp,DC=example",
		Filter: "(objectClass=user)",
	})
	if err == nil {
		t.Fatal("expected connection error")
	}
}
