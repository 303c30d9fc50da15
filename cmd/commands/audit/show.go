package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/crackomatic/crackomatic/internal/analyzer"
	"github.com/crackomatic/crackomatic/internal/app"
	"github.com/crackomatic/crackomatic/internal/domain"
)

// ShowCommand returns a cobra.Command that displays one audit and its report.
func ShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an audit and its report",
		Long: `Display the settings and outcome of one audit together with the
analysis report, if it has one.

Examples:
  crackomatic audit show 3f1c9a...
  crackomatic audit show 3f1c9a... -o json`,
		Args:         cobra.ExactArgs(1),
		RunE:         runShow,
		SilenceUsage: true,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format: text or json")

	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	audit, err := a.Store.GetAudit(context.Background(), args[0])
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(audit)
	case "", "text":
		printAudit(cmd.OutOrStdout(), audit)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
}

func printAudit(w io.Writer, a *domain.Audit) {
	fmt.Fprintf(w, "ID:            %s\n", a.ID)
	fmt.Fprintf(w, "Domain:        %s\n", a.Domain)
	fmt.Fprintf(w, "User:          %s\n", a.User)
	fmt.Fprintf(w, "LDAP URL:      %s\n", a.LDAPURL)
	fmt.Fprintf(w, "State:         %s\n", a.State)
	fmt.Fprintf(w, "Frequency:     %s\n", a.Frequency)
	fmt.Fprintf(w, "Start:         %s\n", formatTime(a.Start))
	fmt.Fprintf(w, "End:           %s\n", formatTime(a.End))

	if a.Report == nil {
		fmt.Fprintln(w, "\nNo report.")
		return
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, analyzer.TextReport(a.Report))
}
