package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crackomatic/crackomatic/internal/app"
	"github.com/crackomatic/crackomatic/internal/domain"
)

func ListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled or past audits",
		Long: `List the scheduled audits, earliest first, or with --past the audits that
ended, most recent first.

Examples:
  crackomatic audit list
  crackomatic audit list --past --limit 10
  crackomatic audit list -o json`,
		Args:         cobra.NoArgs,
		RunE:         runList,
		SilenceUsage: true,
	}

	cmd.Flags().Bool("past", false, "List audits that ended instead of scheduled ones")
	cmd.Flags().Int("limit", 25, "Number of past audits to display")
	cmd.Flags().StringP("output", "o", "table", "Output format: table or json")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	past, _ := cmd.Flags().GetBool("past")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = "table"
	}
	if output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q", output)
	}

	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	var audits []domain.Audit
	if past {
		audits, err = a.Store.ListPast(ctx, limit)
	} else {
		audits, err = a.Store.ListScheduled(ctx)
	}
	if err != nil {
		return err
	}

	if output == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(audits)
	}

	if len(audits) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No audits found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOMAIN\tSTATE\tFREQUENCY\tSTART\tEND\tCRACKED")
	fmt.Fprintln(w, "--\t------\t-----\t---------\t-----\t---\t-------")
	for _, audit := range audits {
		cracked := "-"
		if audit.Report != nil {
			cracked = fmt.Sprintf("%d/%d", audit.Report.CrackedCount(), audit.Report.TotalHashes)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			audit.ID,
			audit.Domain,
			audit.State,
			audit.Frequency,
			formatTime(audit.Start),
			formatTime(audit.End),
			cracked,
		)
	}
	w.Flush()
	return nil
}
