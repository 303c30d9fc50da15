package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/crackomatic/crackomatic/internal/domain"
)

func TestParseVariant(t *testing.T) {
	tests := map[string]Variant{
		"hashcat": VariantHashcat,
		"Hashcat": VariantHashcat,
		"john":    VariantJohn,
		" JOHN ":  VariantJohn,
	}
	for in, want := range tests {
		got, err := ParseVariant(in)
		if err != nil {
			t.Fatalf("ParseVariant(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseVariant(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseVariant("ophcrack"); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestSecretLine(t *testing.T) {
	tests := []struct {
		name string
		d    dialect
		line string
		want bool
	}{
		{"hashcat cracked", hashcat{}, "8846f7eaee8fb117ad06bdd830b7586c:password", true},
		{"hashcat status", hashcat{}, "STATUS\t3\tSPEED\t100\t1000", false},
		{"hashcat upper hex", hashcat{}, "8846F7EAEE8FB117AD06BDD830B7586C:password", false},
		{"john cracked", john{}, "Summer2020       (alice)", true},
		{"john cracked trailing spaces", john{}, "hunter2 (bob)   ", true},
		{"john banner", john{}, "Loaded 12 password hashes with no different salts (NT [MD4 256/256 AVX2 8x3])", false},
		{"john progress", john{}, "Press 'q' or Ctrl-C to abort, almost any other key for status", false},
		{"john no space", john{}, "x(alice)", false},
		{"john two groups", john{}, "weird (word) (NT [MD4 foo])", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.secretLine(tt.line); got != tt.want {
				t.Errorf("secretLine(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseHashcatStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	line := "STATUS\t3\tSPEED\t5000\t1000\t3000\t500\tEXEC_RUNTIME\t1.2\tCURKU\t0\tPROGRESS\t2500\t10000\tRECHASH\t4\t20\tRECSALT\t1\t1\tREJECTED\t0"

	got, ok := ParseHashcatStatus(line, now)
	if !ok {
		t.Fatal("expected status line to parse")
	}
	remaining, speed := 7500.0, 11000.0
	want := domain.Progress{
		Speed:   11000,
		Percent: 25,
		Guesses: 4,
		ETA:     now.Add(time.Duration(remaining / speed * float64(time.Second))),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}

	if _, ok := ParseHashcatStatus("Session..........: hashcat", now); ok {
		t.Error("expected non-status line to be rejected")
	}
}

func TestAggregateJohnStatus(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	lines := []string{
		"1 2g 0:00:01:02 10.00% (ETA: 10:15:42) 0.03g/s 1500Kp/s 1500Kc/s 9000KC/s alpha..beta",
		"2 1g 0:00:01:02 30.00% (ETA: 2026-10-17 08:30) 0.01g/s 2.5Mp/s 2.5Mc/s 9000KC/s gamma..delta",
		"Will run 2 OpenMP threads",
	}
	got, ok := AggregateJohnStatus(lines, now)
	if !ok {
		t.Fatal("expected status lines to parse")
	}
	want := domain.Progress{
		Speed:   4_000_000,
		Percent: 20,
		Guesses: 3,
		ETA:     time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}

	if _, ok := AggregateJohnStatus([]string{"nothing here"}, now); ok {
		t.Error("expected no status without matching lines")
	}
}

func TestParseJohnETA_TimeOfDayIsToday(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	got, err := parseJohnETA("23:59:01", now)
	if err != nil {
		t.Fatalf("parseJohnETA error: %v", err)
	}
	if want := time.Date(2026, 10, 16, 23, 59, 1, 0, time.UTC); !got.Equal(want) {
		t.Errorf("ETA = %v, want %v", got, want)
	}
}

func TestParseShow(t *testing.T) {
	t.Run("hashcat", func(t *testing.T) {
		out := "alice:8846f7eaee8fb117ad06bdd830b7586c:Summer2020\nbob:aad3:pa:ss\n\ncarol:x:late\n"
		want := map[string]string{"alice": "Summer2020", "bob": "pa:ss"}
		if diff := cmp.Diff(want, hashcat{}.parseShow(out)); diff != "" {
			t.Errorf("credentials mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("john", func(t *testing.T) {
		out := "CONTOSO\\alice:Summer2020:1104:aad3b435b51404eeaad3b435b51404ee:8846f7eaee8fb117ad06bdd830b7586c:::\n" +
			"bob:a:b:1105:aad3b435b51404eeaad3b435b51404ee:0cb6948805f797bf2a82807973b89537:::\n" +
			"\n2 password hashes cracked, 3 left\n"
		want := map[string]string{"CONTOSO\\alice": "Summer2020", "bob": "a:b"}
		if diff := cmp.Diff(want, john{}.parseShow(out)); diff != "" {
			t.Errorf("credentials mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestJohnCrackArgs(t *testing.T) {
	opts := Options{HashFile: "h", Wordlist: "w", RuleFile: "r", ExtraArgs: []string{"--min-length=6"}, Cores: 4}
	got := john{}.crackArgs(opts, "/tmp/pot")
	want := []string{"h", "--format=nt", "--pot=/tmp/pot", "--no-log", "--wordlist=w", "--rules=r", "--min-length=6", "--fork=4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	opts.Cores = 1
	if got := (john{}).crackArgs(opts, "/tmp/pot"); strings.HasPrefix(got[len(got)-1], "--fork") {
		t.Errorf("single core run must not fork: %v", got)
	}
}

func TestHashcatCrackArgs(t *testing.T) {
	opts := Options{HashFile: "h", Wordlist: "w", RuleFile: "r"}
	got := hashcat{}.crackArgs(opts, "/tmp/pot")
	want := []string{"h", "-m", "1000", "-a", "0", "--outfile-autohex-disable", "--status", "--machine-readable", "--potfile-path", "/tmp/pot", "--rules-file", "r", "w"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

// writeScript creates an executable shell script standing in for an engine.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

const fakeHashcat = `
for a in "$@"; do
  if [ "$a" = "--show" ]; then
    [ -n "$FAKE_SHOW_EMPTY" ] || echo "alice:8846f7eaee8fb117ad06bdd830b7586c:Summer2020"
    exit 0
  fi
done
prev=""
for a in "$@"; do
  if [ "$prev" = "--potfile-path" ]; then echo "8846f7eaee8fb117ad06bdd830b7586c:Summer2020" > "$a"; fi
  prev="$a"
done
printf 'STATUS\t3\tSPEED\t100\t1000\tPROGRESS\t10\t10\tRECHASH\t1\t2\n'
echo "8846f7eaee8fb117ad06bdd830b7586c:Summer2020"
echo "hashcat warning" >&2
exit ${FAKE_EXIT:-1}
`

func startFake(t *testing.T, variant Variant, body string) (*Run, string) {
	t.Helper()
	dir := t.TempDir()
	bin := writeScript(t, dir, variant.String(), body)
	hashFile := filepath.Join(dir, "hashfile")
	if err := os.WriteFile(hashFile, []byte("alice:1104:aad3b435b51404eeaad3b435b51404ee:8846f7eaee8fb117ad06bdd830b7586c:::\n"), 0o600); err != nil {
		t.Fatalf("write hashfile: %v", err)
	}
	r, err := Start(context.Background(), Options{
		Variant:    variant,
		BinaryPath: bin,
		HashFile:   hashFile,
		Wordlist:   filepath.Join(dir, "wordlist"),
		WorkDir:    dir,
		Cores:      1,
	})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	return r, dir
}

func TestRun_HashcatSuccess(t *testing.T) {
	r, dir := startFake(t, VariantHashcat, fakeHashcat)
	r.Wait()

	if got := r.Status().Kind; got != domain.StatusFinished {
		t.Errorf("Status = %v, want finished", got)
	}
	want := map[string]string{"alice": "Summer2020"}
	if diff := cmp.Diff(want, r.Credentials()); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}

	transcript := r.Transcript()
	if strings.Contains(transcript.String(), "Summer2020") {
		t.Errorf("transcript leaks a secret:\n%s", transcript)
	}
	if diff := cmp.Diff([]string{"hashcat warning"}, transcript.Stderr); diff != "" {
		t.Errorf("stderr mismatch (-want +got):\n%s", diff)
	}
	if got := transcript.Stdout[len(transcript.Stdout)-1]; got != Placeholder {
		t.Errorf("last stdout line = %q, want placeholder", got)
	}
	if _, err := os.Stat(filepath.Join(dir, PotfileName)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("potfile still present: %v", err)
	}
}

func TestRun_HashcatExitCodes(t *testing.T) {
	tests := []struct {
		name string
		exit string
	}{
		{"exhausted", "1"},
		{"all cracked", "0"},
		{"unexpected code with results", "255"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FAKE_EXIT", tt.exit)
			r, _ := startFake(t, VariantHashcat, fakeHashcat)
			r.Wait()

			if st := r.Status(); st.Kind != domain.StatusFinished {
				t.Errorf("Status = %v, want finished", st.Kind)
			}
			if r.Err() != nil {
				t.Errorf("Err() = %v, want nil", r.Err())
			}
			want := map[string]string{"alice": "Summer2020"}
			if diff := cmp.Diff(want, r.Credentials()); diff != "" {
				t.Errorf("credentials mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_UnexpectedExitCodeWithoutResults(t *testing.T) {
	t.Setenv("FAKE_EXIT", "255")
	t.Setenv("FAKE_SHOW_EMPTY", "1")
	r, dir := startFake(t, VariantHashcat, fakeHashcat)
	r.Wait()

	if r.Credentials() != nil {
		t.Errorf("expected nil credentials, got %v", r.Credentials())
	}
	if st := r.Status(); st.Kind != domain.StatusError {
		t.Errorf("Status = %v, want error", st.Kind)
	}
	if _, err := os.Stat(filepath.Join(dir, PotfileName)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("potfile still present after failure: %v", err)
	}
}

func TestRun_ExpectedExitCodeWithoutResults(t *testing.T) {
	t.Setenv("FAKE_SHOW_EMPTY", "1")
	r, _ := startFake(t, VariantHashcat, fakeHashcat)
	r.Wait()

	creds := r.Credentials()
	if creds == nil || len(creds) != 0 {
		t.Errorf("expected an empty non-nil map, got %v", creds)
	}
	if st := r.Status(); st.Kind != domain.StatusFinished {
		t.Errorf("Status = %v, want finished", st.Kind)
	}
}

func TestRun_Abort(t *testing.T) {
	r, _ := startFake(t, VariantHashcat, "exec sleep 30\n")
	r.Abort()

	select {
	case <-r.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not exit after Abort")
	}
	if !r.Aborted() {
		t.Error("expected Aborted() to be true")
	}
	if !errors.Is(r.Err(), domain.ErrAborted) {
		t.Errorf("Err() = %v, want ErrAborted", r.Err())
	}
	if r.Credentials() != nil {
		t.Error("aborted run must not report credentials")
	}
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := Start(context.Background(), Options{
		Variant:    VariantHashcat,
		BinaryPath: filepath.Join(t.TempDir(), "does-not-exist"),
		WorkDir:    t.TempDir(),
	})
	var engineErr *domain.EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if !errors.Is(err, domain.ErrToolUnavailable) {
		t.Errorf("expected ErrToolUnavailable, got %v", err)
	}
}

const fakeJohn = `
if [ $# -eq 0 ]; then
  echo "John the Ripper password cracker, version ${FAKE_VERSION:-1.9.0-jumbo-1} [linux-gnu 64-bit]"
  exit 0
fi
for a in "$@"; do
  if [ "$a" = "--show" ]; then
    echo "alice:Summer2020:1104:aad3b435b51404eeaad3b435b51404ee:8846f7eaee8fb117ad06bdd830b7586c:::"
    echo ""
    echo "1 password hash cracked, 0 left"
    exit 0
  fi
done
trap 'echo "1 1g 0:00:00:03 25.00% (ETA: 23:59:59) 0.33g/s 1500Kp/s 1500Kc/s 1500KC/s a..b" >&2' USR1
echo "Loaded 1 password hash (NT [MD4 256/256 AVX2 8x3])" >&2
echo "Summer2020       (alice)" >&2
i=0
while [ "$i" -lt "${FAKE_LOOPS:-0}" ]; do
  sleep 0.1
  i=$((i+1))
done
exit 0
`

func TestRun_JohnRedactsAndShows(t *testing.T) {
	r, _ := startFake(t, VariantJohn, fakeJohn)
	r.Wait()

	want := map[string]string{"alice": "Summer2020"}
	if diff := cmp.Diff(want, r.Credentials()); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}
	stderr := r.Transcript().Stderr
	wantStderr := []string{"Loaded 1 password hash (NT [MD4 256/256 AVX2 8x3])", Placeholder}
	if diff := cmp.Diff(wantStderr, stderr); diff != "" {
		t.Errorf("stderr mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_JohnStatusOnRequest(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("status requests need procfs")
	}
	old := StatusWait
	StatusWait = 500 * time.Millisecond
	t.Cleanup(func() { StatusWait = old })
	t.Setenv("FAKE_LOOPS", "100")

	r, _ := startFake(t, VariantJohn, fakeJohn)
	t.Cleanup(func() {
		r.Abort()
		r.Wait()
	})
	time.Sleep(200 * time.Millisecond)

	st := r.Status()
	if st.Kind != domain.StatusRunning {
		t.Fatalf("Status = %v (%v), want running", st.Kind, st.Err)
	}
	if st.Progress.Guesses != 1 || st.Progress.Percent != 25 || st.Progress.Speed != 1_500_000 {
		t.Errorf("unexpected progress: %+v", st.Progress)
	}
}

func TestStart_JohnWithoutJumbo(t *testing.T) {
	t.Setenv("FAKE_VERSION", "1.8.0")
	dir := t.TempDir()
	bin := writeScript(t, dir, "john", fakeJohn)
	_, err := Start(context.Background(), Options{Variant: VariantJohn, BinaryPath: bin, WorkDir: dir})
	if err == nil || !strings.Contains(err.Error(), "jumbo") {
		t.Fatalf("expected jumbo error, got %v", err)
	}
}
