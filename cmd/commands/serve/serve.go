package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crackomatic/crackomatic/internal/app"
	"github.com/crackomatic/crackomatic/internal/domain"
)

// NewCommand returns the "serve" command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled audits",
		Long: `Run the scheduler: every poll interval the earliest due audit is started
when no other audit is running. Audits left running by a previous process
are marked as failed on startup.

With --metrics-addr (or metrics_addr in the config) Prometheus metrics are
served on /metrics.

On SIGINT or SIGTERM the scheduler stops, the running audit is aborted and
the process waits up to --shutdown-timeout for it to clean up.

Examples:
  crackomatic serve
  crackomatic serve --metrics-addr 127.0.0.1:9310`,
		Args:         cobra.NoArgs,
		RunE:         runServe,
		SilenceUsage: true,
	}

	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics (overrides metrics_addr)")
	cmd.Flags().Duration("shutdown-timeout", 30*time.Second, "How long to wait for the running audit on shutdown")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Config.Validate(); err != nil {
		return err
	}
	deps, err := a.Deps(a.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := failInterrupted(ctx, a); err != nil {
		return err
	}

	sched := a.Scheduler(deps)

	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		addr = a.Config.MetricsAddr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			a.Logger.Info("serving metrics", "component", "serve", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	timeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sched.Shutdown(shutdownCtx, true); err != nil {
		a.Logger.Error("running audit did not stop in time", "component", "serve", "error", err)
	}
	return runErr
}

// failInterrupted marks audits left active by a dead process as failed.
// It is skipped while another process holds the cracking host, whose
// audit is still running.
func failInterrupted(ctx context.Context, a *app.App) error {
	if err := a.Resource.TryAcquire("startup"); err != nil {
		if domain.IsResourceBusy(err) {
			a.Logger.Info("another process is running an audit", "component", "serve", "error", err)
			return nil
		}
		return err
	}
	defer a.Resource.Release()

	n, err := a.Store.FailInterrupted(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		a.Logger.Warn("marked interrupted audits as failed", "component", "serve", "count", n)
	}
	return nil
}
