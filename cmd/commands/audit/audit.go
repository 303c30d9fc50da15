package audit

import "github.com/spf13/cobra"

// NewCommand returns the "audit" parent command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Schedule, run and inspect password audits",
		Long: "Schedule audits for the daemon, run one directly, and view past results.\n\n" +
			"Audits are described by a YAML (or JSON) file; \"crackomatic audit sample\"\n" +
			"prints a template and \"crackomatic audit describe\" explains every field.",
		SilenceUsage: true,
	}

	cmd.AddCommand(AddCommand())
	cmd.AddCommand(ListCommand())
	cmd.AddCommand(ShowCommand())
	cmd.AddCommand(DeleteCommand())
	cmd.AddCommand(RunCommand())
	cmd.AddCommand(SampleCommand())
	cmd.AddCommand(DescribeCommand())

	return cmd
}
