// Package app wires the collaborators shared by the commands: settings,
// logging, the database, metrics and the adapters an audit job drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/crackomatic/crackomatic/internal/config"
	"github.com/crackomatic/crackomatic/internal/database"
	"github.com/crackomatic/crackomatic/internal/directory"
	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/eventlog"
	"github.com/crackomatic/crackomatic/internal/job"
	"github.com/crackomatic/crackomatic/internal/logging"
	"github.com/crackomatic/crackomatic/internal/mailer"
	"github.com/crackomatic/crackomatic/internal/metrics"
	"github.com/crackomatic/crackomatic/internal/replication"
	"github.com/crackomatic/crackomatic/internal/scheduler"
	"github.com/crackomatic/crackomatic/internal/secrets"
	"github.com/crackomatic/crackomatic/internal/status"
	"github.com/crackomatic/crackomatic/internal/store"
)

// Options configures New.
type Options struct {
	// Config is used as is when set; otherwise config.Load is called.
	Config *config.Config

	// Debug forces the console level to debug.
	Debug bool

	// LogFormat overrides the configured console format when non-empty.
	LogFormat string

	// Stderr receives console logs. Defaults to os.Stderr.
	Stderr io.Writer

	// Secrets defaults to the OS keyring.
	Secrets secrets.Store
}

// App holds the process-wide collaborators. Close releases them.
type App struct {
	Config   *config.Config
	Store    *store.SQLiteStore
	Events   *eventlog.SQLiteRepository
	Metrics  *metrics.Metrics
	Secrets  secrets.Store
	Logger   *slog.Logger
	Resource *job.Resource
}

// New loads the settings and opens the database.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(); err != nil {
			return nil, err
		}
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Secrets == nil {
		opts.Secrets = secrets.DefaultStore()
	}

	st, err := store.Open()
	if err != nil {
		return nil, err
	}
	events, err := eventlog.Open()
	if err != nil {
		st.Close()
		return nil, err
	}

	logger, err := newLogger(cfg, opts, events)
	if err != nil {
		st.Close()
		events.Close()
		return nil, err
	}
	lockPath, err := database.LockPath()
	if err != nil {
		st.Close()
		events.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Store:    st,
		Events:   events,
		Metrics:  metrics.New(),
		Secrets:  opts.Secrets,
		Logger:   logger,
		Resource: job.NewHostResource(lockPath),
	}, nil
}

func newLogger(cfg *config.Config, opts Options, events eventlog.Saver) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		level = slog.LevelDebug
	}
	format := cfg.LogFormat
	if opts.LogFormat != "" {
		format = opts.LogFormat
	}
	console, err := logging.NewConsoleHandler(opts.Stderr, format, level)
	if err != nil {
		return nil, err
	}
	stderr := opts.Stderr
	stored := eventlog.NewHandler(events, slog.LevelInfo, func(err error) {
		fmt.Fprintf(stderr, "event log: %v\n", err)
	})
	return slog.New(logging.Multi(console, stored)), nil
}

// Close releases the database handles.
func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.Events.Close())
}

// SMTPPassword returns the password of the email section, falling back to
// the one stored with "crackomatic auth login".
func (a *App) SMTPPassword(e config.Email) (string, error) {
	if e.Password != "" {
		return e.Password, nil
	}
	pw, err := secrets.SMTPPassword(a.Secrets, e.User)
	if err != nil {
		return "", fmt.Errorf("app: reading SMTP password: %w", err)
	}
	return pw, nil
}

// Deps builds the job collaborators for cfg.
func (a *App) Deps(cfg *config.Config) (job.Deps, error) {
	retriever, err := replication.New(cfg.Replication, a.Logger)
	if err != nil {
		return job.Deps{}, err
	}
	password, err := a.SMTPPassword(cfg.Email)
	if err != nil {
		return job.Deps{}, err
	}
	m, err := mailer.New(mailer.Options{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		TLS:      cfg.Email.TLS,
		CAFile:   cfg.Email.CAFile,
		User:     cfg.Email.User,
		Password: password,
		Sender:   cfg.Email.Sender,
		Logger:   a.Logger,
	})
	if err != nil {
		return job.Deps{}, err
	}
	return job.Deps{
		Retriever: retriever,
		Directory: directory.New(directory.Options{Logger: a.Logger}),
		Mailer:    m,
		Store:     a.Store,
		Resource:  a.Resource,
		Metrics:   a.Metrics,
		Logger:    a.Logger,
	}, nil
}

// Settings derives the job settings from cfg.
func Settings(cfg *config.Config) (job.Settings, error) {
	opts, err := cfg.Cracker.EngineOptions()
	if err != nil {
		return job.Settings{}, &domain.ConfigurationError{Section: "cracker", Problems: []string{err.Error()}}
	}
	return job.Settings{Engine: opts, ReportURL: cfg.ReportURL}, nil
}

// Scheduler returns the polling loop over the stored audits. Cracker
// settings are re-read from the config file whenever an audit starts, so
// "config set" takes effect without a restart.
func (a *App) Scheduler(deps job.Deps) *scheduler.Scheduler {
	fallback, err := Settings(a.Config)
	if err != nil {
		a.Logger.Warn("cracker settings are invalid", "error", err)
	}
	settings := func() job.Settings {
		cfg, err := config.Load()
		if err == nil {
			err = cfg.Cracker.Validate()
		}
		if err != nil {
			a.Logger.Warn("reloading settings failed, using startup settings", "error", err)
			return fallback
		}
		s, err := Settings(cfg)
		if err != nil {
			return fallback
		}
		return s
	}
	return scheduler.New(scheduler.Options{
		Source:   a.Store,
		Factory:  scheduler.JobFactory(settings, deps),
		Resource: a.Resource,
		Interval: a.Config.Scheduler.PollInterval,
		Logger:   a.Logger,
		Metrics:  a.Metrics,
	})
}

// StatusInput collects what the status tiles show.
func (a *App) StatusInput(ctx context.Context, now time.Time) (status.Input, error) {
	in := status.Input{Now: now}
	var err error
	if in.Active, err = a.Store.ActiveAudit(ctx); err != nil {
		return in, err
	}
	if in.Engine, err = a.Store.EngineStatus(ctx); err != nil {
		return in, err
	}
	scheduled, err := a.Store.ListScheduled(ctx)
	if err != nil {
		return in, err
	}
	if len(scheduled) > 0 {
		in.Next = &scheduled[0]
	}
	if in.Last, err = a.Store.LastFinished(ctx); err != nil {
		return in, err
	}
	return in, nil
}
