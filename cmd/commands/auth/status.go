package auth

import (
	"errors"
	"fmt"

	"github.com/crackomatic/crackomatic/internal/secrets"

	"github.com/spf13/cobra"
)

func StatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether an SMTP password is stored",
		Long: `Show whether the keychain holds an SMTP password for the user.

Example:
  crackomatic auth status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := smtpUser(cmd)
			if err != nil {
				return err
			}

			_, err = secrets.DefaultStore().Get(secrets.SMTPKey(user))
			switch {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: logged in\n", user)
			case errors.Is(err, secrets.ErrNotFound):
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not logged in\n", user)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: error (%v)\n", user, err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	return cmd
}

func LogoutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored SMTP password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := smtpUser(cmd)
			if err != nil {
				return err
			}

			err = secrets.DefaultStore().Delete(secrets.SMTPKey(user))
			if errors.Is(err, secrets.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "No SMTP password stored for %s\n", user)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed SMTP password for %s\n", user)
			return nil
		},
		SilenceUsage: true,
	}

	return cmd
}
