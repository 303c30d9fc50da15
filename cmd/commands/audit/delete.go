package audit

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crackomatic/crackomatic/internal/app"
)

func DeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an audit that is not running",
		Long: `Delete a scheduled or past audit together with its report.
Running audits cannot be deleted.

Example:
  crackomatic audit delete 3f1c9a...`,
		Args:         cobra.ExactArgs(1),
		RunE:         runDelete,
		SilenceUsage: true,
	}

	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Store.DeleteAudit(context.Background(), args[0]); err != nil {
		return err
	}
	a.Logger.Info("audit deleted", "component", "cli", "audit_id", args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted audit %s\n", args[0])
	return nil
}
