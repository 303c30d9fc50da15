package config

import (
	"fmt"

	"github.com/crackomatic/crackomatic/internal/config"

	"github.com/spf13/cobra"
)

// ValidateCommand returns the "config validate" command.
func ValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration",
		Long: `Check every configuration section and list the problems found.

Example:
  crackomatic config validate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
			return nil
		},
		SilenceUsage: true,
	}
}
