package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crackomatic/crackomatic/internal/app"
)

func AddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule an audit",
		Long: `Schedule an audit described by an audit file. The daemon ("crackomatic
serve") starts it once its start time has passed. Only the audit section of
the file is used; e-mail, cracker and replication settings come from the
configuration when the audit runs.

Examples:
  crackomatic audit add --file audit.yaml
  crackomatic audit add --interactive`,
		Args:         cobra.NoArgs,
		RunE:         runAdd,
		SilenceUsage: true,
	}

	addFileFlags(cmd)

	return cmd
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := readAuditFile(cmd, a.Config)
	if err != nil {
		return err
	}
	audit, err := f.Resolve(time.Now())
	if err != nil {
		return err
	}
	if err := audit.Validate(); err != nil {
		return err
	}

	if err := a.Store.CreateAudit(context.Background(), &audit); err != nil {
		return err
	}
	a.Logger.Info("audit scheduled", "component", "cli", "audit_id", audit.ID, "domain", audit.Domain, "start", audit.Start)

	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled audit %s of %s (%s) for %s\n",
		audit.ID, audit.Domain, audit.Frequency, audit.Start.Local().Format(timeFormat))
	return nil
}

const timeFormat = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeFormat)
}
