package audit

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crackomatic/crackomatic/internal/config"
)

func SampleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Print a template audit file",
		Long: `Print an audit file with a placeholder and a comment for every field.

Example:
  crackomatic audit sample > audit.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := config.Sample()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
		SilenceUsage: true,
	}
}

func DescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [field]",
		Short: "Explain the fields of an audit file",
		Long: `List every audit file field with its meaning, or explain a single one.

Examples:
  crackomatic audit describe
  crackomatic audit describe audit.user_filter`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := config.AuditFields
			if len(args) == 1 {
				fd := config.LookupField(args[0])
				if fd == nil {
					return fmt.Errorf("unknown field %q", args[0])
				}
				fields = []config.Field{*fd}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tREQUIRED\tDESCRIPTION")
			for _, fd := range fields {
				required := ""
				if fd.Required {
					required = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", fd.Key(), required, strings.TrimSpace(fd.Help))
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}
}
