package replication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// NetbiosName is the name the temporary domain controller joins as.
const NetbiosName = "CRACKREP"

// CommandRunner runs a program and returns its standard output. Tests
// replace it.
type CommandRunner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

// Samba replicates by joining a private DC instance with samba-tool.
type Samba struct {
	SambaTool string
	Pdbedit   string
	Run       CommandRunner
	LookPath  func(string) (string, error)
	log       *slog.Logger
}

// NewSamba returns a Samba retriever using the given binaries.
func NewSamba(sambaTool, pdbedit string, logger *slog.Logger) *Samba {
	if sambaTool == "" {
		sambaTool = "samba-tool"
	}
	if pdbedit == "" {
		pdbedit = "pdbedit"
	}
	return &Samba{
		SambaTool: sambaTool,
		Pdbedit:   pdbedit,
		Run:       runCommand,
		LookPath:  exec.LookPath,
		log:       logger.With("component", "replication", "method", "samba"),
	}
}

// RetrieveHashes joins below req.WorkDir, dumps the SAM and removes the
// joined instance again.
func (s *Samba) RetrieveHashes(ctx context.Context, req domain.HashRequest) (string, error) {
	for _, bin := range []string{s.SambaTool, s.Pdbedit} {
		if _, err := s.LookPath(bin); err != nil {
			return "", fmt.Errorf("replication: %s: %w", bin, domain.ErrToolUnavailable)
		}
	}
	if req.WorkDir == "" {
		return "", errors.New("replication: work directory is required")
	}
	root := filepath.Join(req.WorkDir, "smb_dc")
	if err := os.MkdirAll(root, 0o700); err != nil {
		return "", fmt.Errorf("replication: %w", err)
	}
	defer os.RemoveAll(root)

	s.log.Info("Start replication", "domain", req.Domain, "server", target(req))
	env := append(os.Environ(), "PASSWD="+req.Password)
	if _, err := s.Run(ctx, env, s.SambaTool, JoinArgs(root, req)...); err != nil {
		return "", fmt.Errorf("replication: samba-tool domain join: %w", err)
	}

	out, err := s.Run(ctx, nil, s.Pdbedit, PdbeditArgs(root)...)
	if err != nil {
		return "", fmt.Errorf("replication: pdbedit: %w", err)
	}
	s.log.Debug("Read hashes from SAM", "dir", root)
	return ParsePdbedit(string(out)), nil
}

// JoinArgs returns the samba-tool arguments. Every state directory is
// moved below root so no privileges are needed. The password is passed
// in the PASSWD environment variable.
func JoinArgs(root string, req domain.HashRequest) []string {
	server := target(req)
	args := []string{
		"domain", "join", req.Domain, "DC",
		"--username=" + req.User,
		"--ipaddress=" + server,
		"--server=" + server,
		"--realm=" + req.Domain,
		"--targetdir=" + root,
	}
	options := [][2]string{
		{"server role", "active directory domain controller"},
		{"smb passwd file", root + "/smbpasswd"},
		{"log file", root + "/samba.log"},
		{"lock directory", root + "/samba"},
		{"bind dns directory", root + "/samba"},
		{"state directory", root + "/samba"},
		{"cache directory", root + "/samba"},
		{"pid directory", root + "/samba"},
		{"private dir", root + "/samba"},
		{"ncalrpc dir", root + "/samba"},
		{"netbios name", NetbiosName},
	}
	for _, o := range options {
		args = append(args, "--option="+o[0]+"="+o[1])
	}
	return args
}

// PdbeditArgs returns the arguments listing the SAM in smbpasswd format.
func PdbeditArgs(root string) []string {
	return []string{
		"-L", "-w",
		"-s", root + "/etc/smb.conf",
		"--option=private dir=" + root + "/samba",
	}
}

// ParsePdbedit converts smbpasswd lines to "user:rid:lm:nt:::" with
// lower-cased hashes. Malformed lines are skipped.
func ParsePdbedit(out string) string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), ":")
		if len(fields) < 4 || fields[0] == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s:%s:%s:%s:::",
			fields[0], fields[1], strings.ToLower(fields[2]), strings.ToLower(fields[3])))
	}
	return strings.Join(lines, "\n")
}

func runCommand(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if env != nil {
		cmd.Env = env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}
