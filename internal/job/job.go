// Package job runs one audit through its lifecycle:
//
//	Scheduled -> Replicating -> Cracking -> Analyzing -> SendingEmails -> Finished
//
// Failed and Aborted are reachable from every active state. A job holds the
// shared Resource from entering Replicating until its terminal cleanup ran.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crackomatic/crackomatic/internal/analyzer"
	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/engine"
	"github.com/crackomatic/crackomatic/internal/metrics"
)

// StatusInterval is the delay between two engine status samples while
// cracking. Exported so tests can shorten it.
var StatusInterval = 10 * time.Second

// WorkDirPrefix names the temporary directory of a running audit.
const WorkDirPrefix = "crackomatic_job"

// Persister receives every state change synchronously.
type Persister interface {
	SaveAuditState(ctx context.Context, a *domain.Audit) error
	SaveReport(ctx context.Context, auditID string, r *domain.Report) error
	CreateAudit(ctx context.Context, a *domain.Audit) error
}

// StatusRecorder is implemented by persisters that keep the live engine
// status of the active audit.
type StatusRecorder interface {
	SaveEngineStatus(ctx context.Context, s domain.StatusSnapshot) error
}

// EngineRun is the part of *engine.Run a job drives.
type EngineRun interface {
	Status() domain.EngineStatus
	Abort()
	Wait()
	Aborted() bool
	Credentials() map[string]string
	Err() error
}

// EngineStarter launches a recovery engine.
type EngineStarter interface {
	Start(ctx context.Context, opts engine.Options) (EngineRun, error)
}

// ProcessStarter starts real engine processes.
type ProcessStarter struct{}

func (ProcessStarter) Start(ctx context.Context, opts engine.Options) (EngineRun, error) {
	run, err := engine.Start(ctx, opts)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Settings is the configuration a job reads. It is copied at job start.
type Settings struct {
	// Engine is the template for the engine run; HashFile and WorkDir
	// are filled in by the job.
	Engine engine.Options

	// ReportURL is the base URL used to link the report in admin mails.
	ReportURL string

	// TempDir is the parent of the work directory; "" means os.TempDir.
	TempDir string
}

// Deps are the collaborators of a job.
type Deps struct {
	Retriever domain.HashRetriever
	Directory domain.DirectoryQuerier
	Mailer    domain.MailSender
	Engine    EngineStarter
	Store     Persister
	Resource  *Resource
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Status is what a caller can observe of a running job.
type Status struct {
	State  domain.State
	Engine domain.EngineStatus
}

// Job executes one audit. It is used once.
type Job struct {
	settings Settings
	deps     Deps
	log      *slog.Logger

	// audit is owned by the goroutine running execute.
	audit   domain.Audit
	secret  string
	workDir string

	mu      sync.Mutex
	state   domain.State
	run     EngineRun
	cancel  context.CancelFunc
	result  domain.Audit
	started atomic.Bool
	aborted atomic.Bool
	done    chan struct{}
}

// New prepares a job for audit. The audit's password is captured here, so
// JustOnce audits can drop it from the persisted record once replication
// starts.
func New(audit domain.Audit, settings Settings, deps Deps) *Job {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Engine == nil {
		deps.Engine = ProcessStarter{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Resource == nil {
		deps.Resource = NewResource()
	}
	settings.Engine.ExtraArgs = append([]string(nil), settings.Engine.ExtraArgs...)
	return &Job{
		settings: settings,
		deps:     deps,
		log:      deps.Logger.With("component", "job", "audit_id", audit.ID),
		audit:    audit,
		secret:   audit.Password,
		state:    audit.State,
		result:   audit,
		done:     make(chan struct{}),
	}
}

// Start acquires the resource and runs the job in the background. When
// another audit is active it returns a ResourceBusyError and the audit is
// left untouched.
func (j *Job) Start(ctx context.Context) error {
	if err := j.acquire(); err != nil {
		return err
	}
	go j.execute(ctx)
	return nil
}

// Run is Start followed by Wait. It returns the audit as it ended.
func (j *Job) Run(ctx context.Context) (domain.Audit, error) {
	if err := j.acquire(); err != nil {
		return j.audit, err
	}
	j.execute(ctx)
	return j.Result(), nil
}

// RunHeld is Run for a caller that already took the resource for this
// audit, so that the audit can be recorded before anything else may start.
// The resource is released when the job ends.
func (j *Job) RunHeld(ctx context.Context) (domain.Audit, error) {
	if !j.started.CompareAndSwap(false, true) {
		return j.audit, fmt.Errorf("job: audit %s already started", j.audit.ID)
	}
	j.execute(ctx)
	return j.Result(), nil
}

func (j *Job) acquire() error {
	if !j.started.CompareAndSwap(false, true) {
		return fmt.Errorf("job: audit %s already started", j.audit.ID)
	}
	if err := j.deps.Resource.TryAcquire(j.audit.ID); err != nil {
		j.started.Store(false)
		return err
	}
	return nil
}

// Abort requests termination. The job reaches Aborted only after the
// engine exited and cleanup ran; use Wait to block until then.
func (j *Job) Abort() {
	if j.aborted.Swap(true) {
		return
	}
	j.log.Info("abort requested")
	j.mu.Lock()
	cancel, run := j.cancel, j.run
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if run != nil {
		run.Abort()
	}
}

// Wait blocks until the job reached a terminal state and released the
// resource.
func (j *Job) Wait() { <-j.done }

// Done is closed when Wait would return.
func (j *Job) Done() <-chan struct{} { return j.done }

// ID returns the audit ID.
func (j *Job) ID() string { return j.audit.ID }

// Status returns the current state and, while cracking, the engine status.
func (j *Job) Status() Status {
	j.mu.Lock()
	state, run := j.state, j.run
	j.mu.Unlock()
	st := Status{State: state, Engine: domain.NotStarted()}
	if run != nil {
		st.Engine = run.Status()
	}
	return st
}

// Result returns a snapshot of the audit as of the last transition.
func (j *Job) Result() domain.Audit {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

func (j *Job) execute(parent context.Context) {
	defer close(j.done)
	defer j.deps.Resource.Release()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
	if j.aborted.Load() {
		cancel()
	}

	outcome := domain.StateFailed
	defer func() {
		if p := recover(); p != nil {
			j.log.Error("job panicked", "panic", p, "stack", string(debug.Stack()))
			outcome = domain.StateFailed
		}
		j.finish(context.WithoutCancel(parent), outcome)
	}()

	outcome = j.stages(ctx)
}

// stages drives the audit from Replicating to its outcome.
func (j *Job) stages(ctx context.Context) domain.State {
	if j.audit.Frequency == domain.FrequencyJustOnce {
		j.audit.Password = ""
	}
	j.transition(ctx, domain.StateReplicating)

	dir, err := os.MkdirTemp(j.settings.TempDir, WorkDirPrefix+j.audit.ID)
	if err != nil {
		j.log.Error("creating work directory failed", "error", err)
		return domain.StateFailed
	}
	j.workDir = dir

	hashes, err := j.deps.Retriever.RetrieveHashes(ctx, domain.HashRequest{
		Domain:    j.audit.Domain,
		User:      j.audit.User,
		Password:  j.secret,
		DCAddress: j.audit.DCAddress,
		WorkDir:   dir,
	})
	if j.aborted.Load() {
		return domain.StateAborted
	}
	if err != nil {
		j.log.Error("replication failed", "error", &domain.ReplicationError{Err: err})
		return domain.StateFailed
	}

	j.transition(ctx, domain.StateCracking)
	creds, err := j.crack(ctx, hashes)
	if j.aborted.Load() {
		return domain.StateAborted
	}
	if err != nil {
		j.log.Error("cracking failed", "error", err)
		return domain.StateFailed
	}

	j.transition(ctx, domain.StateAnalyzing)
	report := j.analyze(ctx, creds, hashes)
	if j.aborted.Load() {
		return domain.StateAborted
	}

	j.transition(ctx, domain.StateSendingEmails)
	j.notify(ctx, creds, report)
	if j.aborted.Load() {
		return domain.StateAborted
	}
	return domain.StateFinished
}

func (j *Job) crack(ctx context.Context, hashes string) (map[string]string, error) {
	hashFile := filepath.Join(j.workDir, "hashfile")
	if err := os.WriteFile(hashFile, []byte(hashes), 0o600); err != nil {
		return nil, &domain.EngineError{Err: fmt.Errorf("writing hash file: %w", err)}
	}

	opts := j.settings.Engine
	opts.HashFile = hashFile
	opts.WorkDir = j.workDir
	opts.Logger = j.log

	run, err := j.deps.Engine.Start(ctx, opts)
	if err != nil {
		var engineErr *domain.EngineError
		if errors.As(err, &engineErr) {
			return nil, err
		}
		return nil, &domain.EngineError{Engine: opts.Variant.String(), Err: err}
	}
	j.mu.Lock()
	j.run = run
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.run = nil
		j.mu.Unlock()
	}()
	if j.aborted.Load() {
		run.Abort()
	}

	stop := make(chan struct{})
	sampled := make(chan struct{})
	go func() {
		defer close(sampled)
		j.sampleStatus(ctx, run, stop)
	}()
	run.Wait()
	close(stop)
	<-sampled

	if run.Aborted() {
		return nil, domain.ErrAborted
	}
	creds := run.Credentials()
	if len(creds) == 0 {
		cause := run.Err()
		if cause == nil {
			cause = errors.New("no credentials recovered")
		}
		return nil, &domain.EngineError{Engine: opts.Variant.String(), Err: cause}
	}
	j.log.Info("cracking finished", "recovered", len(creds))
	return creds, nil
}

func (j *Job) sampleStatus(ctx context.Context, run EngineRun, stop <-chan struct{}) {
	ticker := time.NewTicker(StatusInterval)
	defer ticker.Stop()
	recorder, _ := j.deps.Store.(StatusRecorder)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		st := run.Status()
		switch st.Kind {
		case domain.StatusRunning:
			j.deps.Metrics.ObserveProgress(st.Progress)
			if recorder == nil {
				continue
			}
			snap := domain.StatusSnapshot{
				AuditID:    j.audit.ID,
				State:      domain.StateCracking,
				Progress:   st.Progress,
				CapturedAt: j.deps.Now(),
			}
			if err := recorder.SaveEngineStatus(ctx, snap); err != nil {
				j.log.Warn("saving engine status failed", "error", err)
			}
		case domain.StatusError:
			j.log.Warn("engine status unavailable", "error", st.Err)
		}
	}
}

// analyze never fails the audit: errors and panics yield a placeholder
// report.
func (j *Job) analyze(ctx context.Context, creds map[string]string, hashDump string) *domain.Report {
	hashes := HashValues(hashDump)
	report, err := j.createReport(creds, hashes)
	if err != nil {
		j.log.Error("analysis failed", "error", &domain.AnalysisError{Err: err})
		report = analyzer.Placeholder(len(hashes))
	}
	j.audit.Report = report
	if err := j.deps.Store.SaveReport(ctx, j.audit.ID, report); err != nil {
		j.log.Error("saving report failed", "error", err)
	}
	return report
}

func (j *Job) createReport(creds map[string]string, hashes []string) (report *domain.Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			report, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	passwords := make([]string, 0, len(creds))
	for _, p := range creds {
		passwords = append(passwords, p)
	}
	return analyzer.CreateReport(passwords, hashes)
}

// HashValues extracts the NT hash column of a "user:rid:lm:nt:::" dump.
func HashValues(dump string) []string {
	var hashes []string
	for _, line := range strings.Split(dump, "\n") {
		fields := strings.Split(strings.TrimSpace(line), ":")
		if len(fields) < 4 {
			continue
		}
		hashes = append(hashes, fields[3])
	}
	return hashes
}

// transition moves the audit to state and persists it before returning.
func (j *Job) transition(ctx context.Context, state domain.State) {
	now := j.deps.Now()
	j.audit.State = state
	switch {
	case state == domain.StateReplicating:
		j.audit.Start = now
	case state.Terminal():
		j.audit.End = now
	}

	j.mu.Lock()
	j.state = state
	j.result = j.audit
	j.mu.Unlock()

	j.log.Info("audit has a new state", "state", state.String())
	j.deps.Metrics.ObserveState(state)
	if err := j.deps.Store.SaveAuditState(ctx, &j.audit); err != nil {
		j.log.Error("saving audit state failed", "state", state.String(), "error", err)
	}
}

// finish removes the work directory, then enters the terminal state and
// schedules the successor. The resource is released by the caller
// afterwards.
func (j *Job) finish(ctx context.Context, outcome domain.State) {
	if j.aborted.Load() && outcome != domain.StateFinished {
		outcome = domain.StateAborted
	}

	if j.workDir != "" {
		if err := os.RemoveAll(j.workDir); err != nil {
			j.log.Error("removing work directory failed", "path", j.workDir, "error", err)
		}
	}
	if recorder, ok := j.deps.Store.(StatusRecorder); ok {
		snap := domain.StatusSnapshot{AuditID: j.audit.ID, State: outcome, CapturedAt: j.deps.Now()}
		if err := recorder.SaveEngineStatus(ctx, snap); err != nil {
			j.log.Warn("clearing engine status failed", "error", err)
		}
	}
	j.transition(ctx, outcome)

	next, ok := domain.NextAudit(j.audit, outcome)
	if !ok {
		return
	}
	next.Password = j.secret
	if err := j.deps.Store.CreateAudit(ctx, &next); err != nil {
		j.log.Error("scheduling successor failed", "error", err)
		return
	}
	j.log.Info("scheduled successor", "next_id", next.ID, "start", next.Start)
}

// crackedUsers returns the recovered account names in sorted order.
func crackedUsers(creds map[string]string) []string {
	users := make([]string, 0, len(creds))
	for u := range creds {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
