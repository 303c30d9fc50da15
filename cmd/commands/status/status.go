package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/crackomatic/crackomatic/internal/app"
	"github.com/crackomatic/crackomatic/internal/status"
)

// NewCommand returns the "status" command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running audit and the last result",
		Long: `Show whether an audit is running, its stage and engine progress, when the
next audit is due and the figures of the last finished audit.

Styled tiles are printed in a terminal, plain text otherwise.

Examples:
  crackomatic status
  crackomatic status -o json`,
		Args:         cobra.NoArgs,
		RunE:         runStatus,
		SilenceUsage: true,
	}

	cmd.Flags().StringP("output", "o", "", "Output format: tiles, plain or json (default tiles in a terminal)")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	in, err := a.StatusInput(context.Background(), time.Now())
	if err != nil {
		return err
	}
	groups := status.Build(in)

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = "plain"
		if term.IsTerminal(int(os.Stdout.Fd())) {
			output = "tiles"
		}
	}

	switch output {
	case "tiles":
		fmt.Fprint(cmd.OutOrStdout(), status.Render(groups))
	case "plain":
		fmt.Fprint(cmd.OutOrStdout(), status.Plain(groups))
	case "json":
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(groups)
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
	return nil
}
