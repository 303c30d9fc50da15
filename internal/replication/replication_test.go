package replication

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/oiweiwei/go-msrpc/ssp"
	"github.com/oiweiwei/go-msrpc/ssp/credential"
	"github.com/oiweiwei/go-msrpc/ssp/gssapi"

	"github.com/crackomatic/crackomatic/internal/config"
	"github.com/crackomatic/crackomatic/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDump(t *testing.T) {
	nt := []byte{0x31, 0xd6, 0xcf, 0xe0, 0xd1, 0x6a, 0xe9, 0x31, 0xb7, 0x3c, 0x59, 0xd7, 0xe0, 0xc0, 0x89, 0xc0}
	got := Dump([]Account{
		{Name: "Administrator", RID: 500, NTHash: nt},
		{Name: "nohash", RID: 501},
		{Name: "alice", RID: 1104, NTHash: nt},
	})
	want := "Administrator:500:aad3b435b51404eeaad3b435b51404ee:31d6cfe0d16ae931b73c59d7e0c089c0:::\n" +
		"alice:1104:aad3b435b51404eeaad3b435b51404ee:31d6cfe0d16ae931b73c59d7e0c089c0:::"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestDomainDN(t *testing.T) {
	tests := map[string]string{
		"corp.example":     "DC=corp,DC=example",
		"ad.corp.example.": "DC=ad,DC=corp,DC=example",
		"single":           "DC=single",
	}
	for in, want := range tests {
		if got := DomainDN(in); got != want {
			t.Errorf("DomainDN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePdbedit(t *testing.T) {
	out := "Administrator:500:AAD3B435B51404EEAAD3B435B51404EE:8846F7EAEE8FB117AD06BDD830B7586C:[U          ]:LCT-5F3A1B2C:\n" +
		"\n" +
		"garbage\n" +
		"DC01$:1000:NO PASSWORDXXXXXXXXXXXXXXXXXXXXX:0CB6948805F797BF2A82807973B89537:[S          ]:LCT-5F3A1B2D:\n"

	got := ParsePdbedit(out)
	want := "Administrator:500:aad3b435b51404eeaad3b435b51404ee:8846f7eaee8fb117ad06bdd830b7586c:::\n" +
		"DC01$:1000:no passwordxxxxxxxxxxxxxxxxxxxxx:0cb6948805f797bf2a82807973b89537:::"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parse mismatch (-want +got):\n%s", diff)
	}
}

type call struct {
	env  []string
	name string
	args []string
}

func fakeSamba(t *testing.T, pdbeditOut string, failOn string) (*Samba, *[]call) {
	t.Helper()
	var calls []call
	s := NewSamba("samba-tool", "pdbedit", discard)
	s.LookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	s.Run = func(_ context.Context, env []string, name string, args ...string) ([]byte, error) {
		calls = append(calls, call{env: env, name: name, args: args})
		if name == failOn {
			return nil, errors.New("exit status 1: NT_STATUS_LOGON_FAILURE")
		}
		if name == "pdbedit" {
			return []byte(pdbeditOut), nil
		}
		return nil, nil
	}
	return s, &calls
}

func TestSamba_RetrieveHashes(t *testing.T) {
	s, calls := fakeSamba(t, "alice:1104:AAD3B435B51404EEAAD3B435B51404EE:8846F7EAEE8FB117AD06BDD830B7586C:[U]:LCT-0:\n", "")
	work := t.TempDir()

	got, err := s.RetrieveHashes(context.Background(), domain.HashRequest{
		Domain:    "corp.example",
		User:      "auditor",
		Password:  "s3cret",
		DCAddress: "10.0.0.1",
		WorkDir:   work,
	})
	if err != nil {
		t.Fatalf("RetrieveHashes failed: %v", err)
	}
	if got != "alice:1104:aad3b435b51404eeaad3b435b51404ee:8846f7eaee8fb117ad06bdd830b7586c:::" {
		t.Errorf("unexpected dump %q", got)
	}

	if len(*calls) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(*calls))
	}
	join := (*calls)[0]
	root := filepath.Join(work, "smb_dc")
	for _, want := range []string{"join", "corp.example", "--server=10.0.0.1", "--username=auditor", "--targetdir=" + root, "--option=netbios name=CRACKREP"} {
		if !slices.Contains(join.args, want) {
			t.Errorf("expected %q in join args %v", want, join.args)
		}
	}
	for _, a := range join.args {
		if strings.Contains(a, "s3cret") {
			t.Error("password must not appear on the command line")
		}
	}
	if !slices.Contains(join.env, "PASSWD=s3cret") {
		t.Error("expected password in PASSWD environment variable")
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("expected joined instance to be removed, stat: %v", err)
	}
}

func TestSamba_DefaultsServerToDomain(t *testing.T) {
	args := JoinArgs("/w", domain.HashRequest{Domain: "corp.example", User: "u"})
	if !slices.Contains(args, "--server=corp.example") {
		t.Errorf("expected domain as server, got %v", args)
	}
}

func TestSamba_JoinFailure(t *testing.T) {
	s, calls := fakeSamba(t, "", "samba-tool")
	_, err := s.RetrieveHashes(context.Background(), domain.HashRequest{Domain: "corp.example", WorkDir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "LOGON_FAILURE") {
		t.Fatalf("expected join failure, got %v", err)
	}
	if errors.Is(err, domain.ErrToolUnavailable) {
		t.Error("authentication failures must not look like a missing tool")
	}
	if len(*calls) != 1 {
		t.Errorf("expected pdbedit not to run, got %d calls", len(*calls))
	}
}

func TestSamba_ToolUnavailable(t *testing.T) {
	s := NewSamba("", "", discard)
	s.LookPath = func(name string) (string, error) { return "", errors.New("not found") }

	_, err := s.RetrieveHashes(context.Background(), domain.HashRequest{Domain: "corp.example", WorkDir: t.TempDir()})
	if !errors.Is(err, domain.ErrToolUnavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %v", err)
	}
}

func TestNew(t *testing.T) {
	r, err := New(config.Replication{Method: config.MethodSamba}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(*Samba); !ok {
		t.Errorf("expected *Samba, got %T", r)
	}
	r, err = New(config.Replication{Method: config.MethodDRSR}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(*DRSR); !ok {
		t.Errorf("expected *DRSR, got %T", r)
	}
	if _, err := New(config.Replication{Method: "ntdsutil"}, nil); err == nil {
		t.Error("expected error for unknown method")
	}
}

func credentialUser(ctx context.Context) string {
	v := gssapi.GetCredentialValue(ctx, "", ssp.MechanismTypeNTLM, gssapi.InitiateOnly)
	cred, ok := v.(credential.Password)
	if !ok {
		return ""
	}
	return cred.UserName()
}

func TestSecurityContext_PerAudit(t *testing.T) {
	first := securityContext(context.Background(), domain.HashRequest{Domain: "corp.example", User: "first-audit-user", Password: "one"})
	second := securityContext(context.Background(), domain.HashRequest{Domain: "corp.example", User: "second-audit-user", Password: "two"})

	if got := credentialUser(first); got != "first-audit-user" {
		t.Errorf("first context authenticates as %q", got)
	}
	if got := credentialUser(second); got != "second-audit-user" {
		t.Errorf("second context authenticates as %q", got)
	}
	if v := gssapi.GetCredentialValue(context.Background(), "", ssp.MechanismTypeNTLM, gssapi.InitiateOnly); v != nil {
		t.Errorf("expected no process-wide credential, got %v", v)
	}
}

func TestDRSR_LeavesNoGlobalCredential(t *testing.T) {
	d := NewDRSR(discard)
	for _, user := range []string{"first-audit-user", "second-audit-user"} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := d.RetrieveHashes(ctx, domain.HashRequest{
			Domain:    "corp.example",
			User:      user,
			Password:  "secret",
			DCAddress: "127.0.0.1",
		})
		cancel()
		if err == nil {
			t.Fatal("expected replication against a closed port to fail")
		}
	}
	if v := gssapi.GetCredentialValue(context.Background(), "", ssp.MechanismTypeNTLM, gssapi.InitiateOnly); v != nil {
		t.Errorf("credential left in the process-wide store: %v", v)
	}
}
