package events

import "github.com/spf13/cobra"

// NewCommand returns the "events" parent command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "View and prune the event log",
		Long: "View the log records kept by crackomatic and prune old ones.\n\n" +
			"Events are stored in the local database next to the audits.",
		SilenceUsage: true,
	}

	cmd.AddCommand(ListCommand())
	cmd.AddCommand(PruneCommand())

	return cmd
}
