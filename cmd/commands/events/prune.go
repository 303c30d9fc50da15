package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/crackomatic/crackomatic/internal/eventlog"
	"github.com/crackomatic/crackomatic/internal/logging"

	"github.com/spf13/cobra"
)

func PruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete events by age, audit or level",
		Long: `Delete events from the event log.

At least one of --older-than or --audit is required. --below narrows
the selection to events logged under the given level.

Examples:
  crackomatic events prune --older-than 30d
  crackomatic events prune --older-than 7d --below warn
  crackomatic events prune --audit 0123456789abcdef --dry-run`,
		Args:         cobra.NoArgs,
		RunE:         runPrune,
		SilenceUsage: true,
	}

	cmd.Flags().String("older-than", "", "Remove events older than this duration (e.g. 30d, 72h)")
	cmd.Flags().String("audit", "", "Remove events recorded for this audit ID")
	cmd.Flags().String("below", "", "Only remove events below this level (info, warn, error)")
	cmd.Flags().Bool("dry-run", false, "Report how many events would be removed without deleting them")

	return cmd
}

func runPrune(cmd *cobra.Command, args []string) error {
	filter, err := pruneFilter(cmd, time.Now())
	if err != nil {
		return err
	}

	repo, err := eventlog.Open()
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := context.Background()
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		n, err := repo.CountPrunable(ctx, filter)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Would remove %d event(s).\n", n)
		return nil
	}

	removed, err := repo.Prune(ctx, filter)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d event(s).\n", removed)
	return nil
}

func pruneFilter(cmd *cobra.Command, now time.Time) (eventlog.PruneFilter, error) {
	var filter eventlog.PruneFilter

	olderThanRaw, _ := cmd.Flags().GetString("older-than")
	if olderThanRaw = strings.TrimSpace(olderThanRaw); olderThanRaw != "" {
		olderThan, err := parseDuration(olderThanRaw)
		if err != nil {
			return filter, err
		}
		filter.Before = now.Add(-olderThan)
	}

	auditID, _ := cmd.Flags().GetString("audit")
	filter.AuditID = strings.TrimSpace(auditID)

	if filter.Before.IsZero() && filter.AuditID == "" {
		return filter, fmt.Errorf("--older-than or --audit is required")
	}

	below, _ := cmd.Flags().GetString("below")
	if below = strings.TrimSpace(below); below != "" {
		threshold, err := logging.ParseLevel(below)
		if err != nil {
			return filter, err
		}
		filter.Levels = levelsBelow(threshold)
		if len(filter.Levels) == 0 {
			return filter, fmt.Errorf("no level is below %s", threshold)
		}
	}

	return filter, nil
}

func levelsBelow(threshold slog.Level) []string {
	var levels []string
	for _, l := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if l < threshold {
			levels = append(levels, l.String())
		}
	}
	return levels
}

func parseDuration(input string) (time.Duration, error) {
	if before, ok := strings.CutSuffix(input, "d"); ok {
		days, err := strconv.Atoi(before)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", input)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be positive")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(input)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", input)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}
