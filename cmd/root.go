package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crackomatic/crackomatic/cmd/commands/audit"
	"github.com/crackomatic/crackomatic/cmd/commands/auth"
	cfgcmd "github.com/crackomatic/crackomatic/cmd/commands/config"
	"github.com/crackomatic/crackomatic/cmd/commands/events"
	"github.com/crackomatic/crackomatic/cmd/commands/serve"
	"github.com/crackomatic/crackomatic/cmd/commands/status"
	"github.com/crackomatic/crackomatic/internal/config"
	"github.com/crackomatic/crackomatic/internal/database"
)

// rootCmd represents the base command when called without any subcommands.
func rootCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "crackomatic",
		Short: "Audit Active Directory password strength",
		Long: `crackomatic replicates the password hashes of an Active Directory domain,
runs a password cracker against them, analyzes the recovered passwords and
notifies the affected users and the administrators by e-mail.

Audits are scheduled in a local database and started by the daemon, one at
a time. A single audit can also be run directly from a file.

Quick start:
  crackomatic audit sample > audit.yaml    # Template with every field
  crackomatic audit add --file audit.yaml  # Schedule an audit
  crackomatic serve                        # Run scheduled audits
  crackomatic status                       # What is running right now`,
		SilenceErrors:     true,
		PersistentPreRunE: applyGlobalFlags,
	}

	cmd.PersistentFlags().String("config", "", "Config file (default ./crackomatic.yaml or the user config directory)")
	cmd.PersistentFlags().String("db-path", "", "SQLite database path (default crackomatic.db in the user config directory)")
	cmd.PersistentFlags().Bool("debug", false, "Log at debug level")
	cmd.PersistentFlags().String("log-format", "", "Console log format: text or json (overrides log_format)")

	cmd.AddCommand(audit.NewCommand())
	cmd.AddCommand(auth.NewCommand())
	cmd.AddCommand(cfgcmd.NewCommand())
	cmd.AddCommand(events.NewCommand())
	cmd.AddCommand(serve.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func applyGlobalFlags(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		config.SetPath(path)
	}
	if path, _ := cmd.Flags().GetString("db-path"); path != "" {
		database.SetPath(path)
	}
	return nil
}

// Execute runs the command tree and exits with status 1 on error.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	var root = rootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
