package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/crackomatic/crackomatic/internal/domain"
)

// Placeholder replaces every transcript line that carries a recovered secret.
const Placeholder = "*** SENSITIVE DATA REMOVED ***"

// PotfileName is the engine's result store inside the work directory.
const PotfileName = "potfile"

// maxLineSize bounds a single line read from the engine.
const maxLineSize = 1 << 20

// Stream identifies one of the engine's output streams.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Options configures one engine run.
type Options struct {
	Variant    Variant
	BinaryPath string
	HashFile   string
	Wordlist   string
	RuleFile   string
	ExtraArgs  []string

	// WorkDir holds the potfile. It must exist and is owned by the caller.
	WorkDir string

	// Cores sets John's --fork count. Zero means runtime.NumCPU.
	Cores int

	Logger *slog.Logger
}

func (o Options) cores() int {
	if o.Cores > 0 {
		return o.Cores
	}
	return runtime.NumCPU()
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Transcript is the redacted output of a run, one entry per line.
type Transcript struct {
	Stdout []string
	Stderr []string
}

func (t Transcript) String() string {
	var b strings.Builder
	for _, section := range []struct {
		name  string
		lines []string
	}{{"stdout", t.Stdout}, {"stderr", t.Stderr}} {
		if len(section.lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n", section.name, strings.Join(section.lines, "\n"))
	}
	return b.String()
}

// Run is a handle on one engine invocation.
type Run struct {
	opts    Options
	dialect dialect
	cmd     *exec.Cmd
	potfile string
	log     *slog.Logger

	mu       sync.Mutex
	stdout   []string
	stderr   []string
	finished bool
	exitErr  error
	creds    map[string]string

	statusMu sync.Mutex
	aborted  atomic.Bool
	done     chan struct{}
}

// Start launches the engine and returns immediately. ctx bounds the run:
// cancelling it aborts the engine like Abort does.
func Start(ctx context.Context, opts Options) (*Run, error) {
	d, err := dialectFor(opts.Variant)
	if err != nil {
		return nil, err
	}
	if opts.BinaryPath == "" {
		return nil, &domain.EngineError{Engine: opts.Variant.String(), Err: errors.New("binary path is empty")}
	}
	if _, err := exec.LookPath(opts.BinaryPath); err != nil {
		return nil, &domain.EngineError{Engine: opts.Variant.String(), Err: fmt.Errorf("%w: %v", domain.ErrToolUnavailable, err)}
	}
	if err := d.preflight(ctx, opts); err != nil {
		return nil, &domain.EngineError{Engine: opts.Variant.String(), Err: err}
	}

	potfile := filepath.Join(opts.WorkDir, PotfileName)
	cmd := exec.Command(opts.BinaryPath, d.crackArgs(opts, potfile)...)
	cmd.Dir = opts.WorkDir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stderr pipe: %w", err)
	}

	r := &Run{
		opts:    opts,
		dialect: d,
		cmd:     cmd,
		potfile: potfile,
		log:     opts.logger().With("engine", opts.Variant.String()),
		done:    make(chan struct{}),
	}

	r.log.Debug("starting engine", "args", strings.Join(cmd.Args, " "))
	if err := cmd.Start(); err != nil {
		_ = os.Remove(potfile)
		return nil, &domain.EngineError{Engine: opts.Variant.String(), Err: err}
	}
	if err := lowerPriority(cmd.Process.Pid); err != nil {
		r.log.Warn("could not lower engine priority", "error", err)
	}

	go r.supervise(ctx, stdout, stderr)
	go func() {
		select {
		case <-ctx.Done():
			r.Abort()
		case <-r.done:
		}
	}()
	return r, nil
}

func (r *Run) supervise(ctx context.Context, stdout, stderr io.Reader) {
	defer close(r.done)
	defer func() {
		if err := os.Remove(r.potfile); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.Error("could not remove potfile", "path", r.potfile, "error", err)
		}
	}()

	var g errgroup.Group
	g.Go(func() error { return r.capture(stdout, Stdout) })
	g.Go(func() error { return r.capture(stderr, Stderr) })
	readErr := g.Wait()
	waitErr := r.cmd.Wait()

	code := exitCode(waitErr)
	var runErr error
	switch {
	case r.aborted.Load():
		runErr = domain.ErrAborted
		r.log.Info("engine aborted", "exit_code", code)
	case waitErr != nil && code < 0:
		runErr = waitErr
	case readErr != nil:
		runErr = fmt.Errorf("reading output: %w", readErr)
	}

	var creds map[string]string
	if runErr != nil {
		r.log.Error("engine failed", "error", runErr, "transcript", r.Transcript().String())
	} else {
		unexpected := !r.dialect.succeeded(code)
		if unexpected {
			r.log.Error("engine exited with unexpected code", "exit_code", code, "transcript", r.Transcript().String())
		} else {
			r.log.Debug("engine finished", "exit_code", code)
		}
		var err error
		creds, err = r.show(context.WithoutCancel(ctx))
		switch {
		case err != nil:
			creds, runErr = nil, err
			r.log.Error("reading recovered credentials failed", "error", err)
		case unexpected && len(creds) == 0:
			creds, runErr = nil, fmt.Errorf("unexpected exit code %d", code)
		}
	}

	r.mu.Lock()
	r.finished = true
	r.exitErr = runErr
	r.creds = creds
	r.mu.Unlock()
}

// capture reads one stream line by line, redacting secret lines before
// they are retained.
func (r *Run) capture(src io.Reader, stream Stream) error {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		if r.dialect.secretLine(line) {
			line = Placeholder
		}
		r.mu.Lock()
		if stream == Stderr {
			r.stderr = append(r.stderr, line)
		} else {
			r.stdout = append(r.stdout, line)
		}
		r.mu.Unlock()
	}
	if err := sc.Err(); err != nil {
		// Drain so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, src)
		return fmt.Errorf("%s: %w", stream, err)
	}
	return nil
}

// show runs the engine in "show results" mode against the potfile.
func (r *Run) show(ctx context.Context) (map[string]string, error) {
	var out, errOut bytes.Buffer
	cmd := exec.CommandContext(ctx, r.opts.BinaryPath, r.dialect.showArgs(r.opts, r.potfile)...)
	cmd.Dir = r.opts.WorkDir
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("engine: show results: %w: %s", err, strings.TrimSpace(errOut.String()))
	}
	return r.dialect.parseShow(out.String()), nil
}

// Status reports the engine's progress. John runs block for StatusWait.
func (r *Run) Status() domain.EngineStatus {
	r.mu.Lock()
	finished, exitErr := r.finished, r.exitErr
	r.mu.Unlock()

	switch {
	case r.cmd.Process == nil:
		return domain.NotStarted()
	case finished && exitErr != nil:
		return domain.StatusFailed(exitErr)
	case finished:
		return domain.Finished()
	}

	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	select {
	case <-r.done:
		return r.Status()
	default:
	}
	return r.dialect.status(r)
}

// Abort asks the engine to terminate. It returns at once; use Wait to
// block until the process exited and the potfile is gone.
func (r *Run) Abort() {
	select {
	case <-r.done:
		return
	default:
	}
	if r.aborted.Swap(true) {
		return
	}
	if err := terminate(r.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.log.Warn("could not terminate engine", "error", err)
	}
}

// Aborted reports whether Abort was called before the run ended.
func (r *Run) Aborted() bool { return r.aborted.Load() }

// Wait blocks until the process and both output readers are done.
func (r *Run) Wait() { <-r.done }

// Done is closed once Wait would return.
func (r *Run) Done() <-chan struct{} { return r.done }

// Credentials returns the recovered username to secret mapping. It is nil
// while running and when the run failed; an empty map means nothing was
// recovered.
func (r *Run) Credentials() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		return nil
	}
	return r.creds
}

// Err returns why the run failed, if it did.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitErr
}

// Transcript returns a copy of the redacted output captured so far.
func (r *Run) Transcript() Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Transcript{
		Stdout: append([]string(nil), r.stdout...),
		Stderr: append([]string(nil), r.stderr...),
	}
}

func (r *Run) lines(s Stream) []string {
	t := r.Transcript()
	if s == Stderr {
		return t.Stderr
	}
	return t.Stdout
}

func (r *Run) pid() int { return r.cmd.Process.Pid }

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
