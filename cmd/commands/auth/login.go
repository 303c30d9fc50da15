package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crackomatic/crackomatic/internal/secrets"

	"golang.org/x/term"

	"github.com/spf13/cobra"
)

func LoginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the SMTP password",
		Long: `Store the SMTP password in the local keychain.

Example:
  crackomatic auth login --user crackomatic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := smtpUser(cmd)
			if err != nil {
				return err
			}

			password, err := cmd.Flags().GetString("password")
			if err != nil {
				return err
			}
			if password == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Enter SMTP password for %s: ", user)
				password, err = readPassword(cmd.InOrStdin())
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}

			if err := secrets.DefaultStore().Set(secrets.SMTPKey(user), password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved SMTP password for %s\n", user)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().String("password", "", "SMTP password (optional, overrides prompt)")

	return cmd
}

// readPassword reads without echo from a terminal, otherwise one line.
func readPassword(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return strings.TrimSpace(string(b)), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
