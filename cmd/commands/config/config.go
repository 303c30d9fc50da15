package config

import (
	"github.com/crackomatic/crackomatic/internal/config"

	"github.com/spf13/cobra"
)

// NewCommand returns the "config" parent command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage crackomatic configuration",
		Long: "View and modify persistent crackomatic settings.\n\n" +
			"Configuration is read from --config, ./crackomatic.yaml or\n" +
			"~/.config/crackomatic/config.yaml. CRACKOMATIC_* environment variables\n" +
			"(e.g. CRACKOMATIC_EMAIL_HOST) override the file.\n\n" +
			config.KeysHelp(),
	}

	cmd.AddCommand(SetCommand())
	cmd.AddCommand(GetCommand())
	cmd.AddCommand(ValidateCommand())

	return cmd
}
