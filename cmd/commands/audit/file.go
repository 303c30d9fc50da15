package audit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/crackomatic/crackomatic/internal/config"
)

func addFileFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "Audit file (YAML or JSON)")
	cmd.Flags().BoolP("interactive", "i", false, "Prompt for missing or invalid fields")
}

// readAuditFile loads --file on top of base and makes sure it is valid,
// prompting for problems when --interactive is set.
func readAuditFile(cmd *cobra.Command, base *config.Config) (*config.AuditFile, error) {
	path, _ := cmd.Flags().GetString("file")
	interactive, _ := cmd.Flags().GetBool("interactive")

	var f *config.AuditFile
	switch {
	case path != "":
		var err error
		if f, err = config.LoadAuditFile(path, base); err != nil {
			return nil, err
		}
	case interactive:
		f = config.NewAuditFile(base)
	default:
		return nil, errors.New("--file is required unless --interactive is set")
	}

	if interactive {
		ask := newAsker(cmd.InOrStdin(), cmd.OutOrStdout())
		if err := f.Complete(ask); err != nil {
			return nil, err
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// newAsker prompts on out and reads answers from in. Secret fields are
// read without echo when in is the terminal.
func newAsker(in io.Reader, out io.Writer) config.Asker {
	reader := bufio.NewReader(in)
	return func(fd config.Field, problem error) (string, error) {
		fmt.Fprintf(out, "%s %v\n  %s\n", fd.Key(), problem, fd.Help)
		fmt.Fprintf(out, "%s: ", fd.Name)

		if fd.Secret && in == os.Stdin && term.IsTerminal(int(os.Stdin.Fd())) {
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(b)), nil
		}

		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) && line == "" {
			return "", fmt.Errorf("no value for %s: %w", fd.Key(), io.ErrUnexpectedEOF)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
