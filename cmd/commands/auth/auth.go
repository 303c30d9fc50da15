package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crackomatic/crackomatic/internal/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the SMTP credential",
		Long: `Manage the SMTP password used to send notification mails.

The password is kept in the OS keychain under the SMTP user name, so it
does not have to appear in the config file. A password set in the config
file or in CRACKOMATIC_EMAIL_PASSWORD takes precedence.`,
	}

	cmd.AddCommand(LoginCommand())
	cmd.AddCommand(StatusCommand())
	cmd.AddCommand(LogoutCommand())

	cmd.PersistentFlags().String("user", "", "SMTP user name (default: email.user from the config)")

	return cmd
}

// smtpUser returns --user, falling back to the configured email.user.
func smtpUser(cmd *cobra.Command) (string, error) {
	user, _ := cmd.Flags().GetString("user")
	user = strings.TrimSpace(user)
	if user != "" {
		return user, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Email.User == "" {
		return "", errors.New("no SMTP user: pass --user or set email.user with 'crackomatic config set email.user <name>'")
	}
	return cfg.Email.User, nil
}
