package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crackomatic/crackomatic/internal/analyzer"
	"github.com/crackomatic/crackomatic/internal/app"
	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/job"
)

func RunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one audit now, without the daemon",
		Long: `Run the audit described by an audit file immediately and wait for it to
end. The e-mail, cracker and replication sections of the file override the
configuration. The audit is recorded in the database like scheduled ones,
but it is not rescheduled.

Invalid fields are fatal unless --interactive is set, in which case they
are asked for. Interrupting the command aborts the audit.

Examples:
  crackomatic audit run --file audit.yaml
  crackomatic audit run --file audit.yaml --interactive`,
		Args:         cobra.NoArgs,
		RunE:         runRun,
		SilenceUsage: true,
	}

	addFileFlags(cmd)

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := readAuditFile(cmd, a.Config)
	if err != nil {
		return err
	}
	cfg := f.Config(a.Config)
	if err := errors.Join(cfg.Cracker.Validate(), cfg.Email.Validate(), cfg.Replication.Validate()); err != nil {
		return err
	}

	audit, err := f.Resolve(time.Now())
	if err != nil {
		return err
	}
	if audit.Frequency.Recurring() {
		a.Logger.Info("frequency is ignored when running directly", "component", "cli", "frequency", audit.Frequency)
	}
	audit.Frequency = domain.FrequencyJustOnce
	audit.Start = time.Now()
	if err := audit.Validate(); err != nil {
		return err
	}

	deps, err := a.Deps(cfg)
	if err != nil {
		return err
	}
	settings, err := app.Settings(cfg)
	if err != nil {
		return err
	}

	// The host lock is taken before the audit is recorded, so a daemon
	// sharing the database can neither start it nor run another one.
	ctx := context.Background()
	audit.ID = domain.NewID()
	if err := a.Resource.TryAcquire(audit.ID); err != nil {
		return err
	}
	if err := a.Store.CreateAudit(ctx, &audit); err != nil {
		a.Resource.Release()
		return err
	}

	j := job.New(audit, settings, deps)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-sigCtx.Done():
			j.Abort()
		case <-j.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Running audit %s of %s\n", audit.ID, audit.Domain)
	result, err := j.RunHeld(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Audit %s %s\n", result.ID, result.State)
	if result.Report != nil {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), analyzer.TextReport(result.Report))
	}
	if result.State != domain.StateFinished {
		return fmt.Errorf("audit %s ended %s; see \"crackomatic events list --audit %s\"", result.ID, result.State, result.ID)
	}
	return nil
}
