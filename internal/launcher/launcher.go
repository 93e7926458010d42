// Package launcher runs the external application for one invocation:
// check the runtime, provision, start, relay output, and tear down.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"prompter/cli/internal/config"
	"prompter/cli/internal/driver"
	"prompter/cli/internal/readiness"
)

const (
	// InterruptExitCode is the shell code for a child ended by SIGINT.
	InterruptExitCode = 130

	stderrTailLines = 20
)

// Outcomes recorded for each launch.
const (
	OutcomeOK              = "ok"
	OutcomeInterrupted     = "interrupted"
	OutcomeExited          = "exited"
	OutcomeUnavailable     = "unavailable"
	OutcomeProvisionFailed = "provision_failed"
	OutcomePortInUse       = "port_in_use"
	OutcomeFailed          = "failed"
)

// ExitError carries a nonzero exit code of the external process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("external process exited with code %d", e.Code)
}

type Console interface {
	driver.Reporter
	Title(msg string)
	URL(label, url string)
	Line(line string)
	ErrLine(line string)
}

type Prober interface {
	Wait(ctx context.Context, url string) error
}

// Recorder keeps a history of launches. Failures to record never fail the
// launch.
type Recorder interface {
	Started(cfg config.LaunchConfig) (string, error)
	Finished(id string, exitCode int, outcome string) error
}

type Options struct {
	Driver   driver.Driver
	Console  Console
	Logger   *slog.Logger
	Prober   Prober
	Recorder Recorder
	// OpenURL opens the ready URL when the config asks for it.
	OpenURL func(url string) error
	// PortCheck runs right before the start and fails when the port is taken.
	PortCheck func(port int) error
	// Signals replaces the OS signal subscription.
	Signals <-chan os.Signal
}

type Launcher struct {
	driver   driver.Driver
	console  Console
	logger   *slog.Logger
	prober   Prober
	recorder Recorder
	openURL  func(string) error
	portFree func(int) error

	signals     <-chan os.Signal
	stopSignals func()

	mu           sync.Mutex
	current      *driver.Handle
	stopRequests int
	stopWG       sync.WaitGroup
}

// New builds a Launcher and registers its shutdown hook: from here until
// Close, SIGINT and SIGTERM are delivered to this instance.
func New(opts Options) (*Launcher, error) {
	if opts.Driver == nil {
		return nil, errors.New("driver is required")
	}
	if opts.Console == nil {
		return nil, errors.New("console is required")
	}
	l := &Launcher{
		driver:      opts.Driver,
		console:     opts.Console,
		logger:      opts.Logger,
		prober:      opts.Prober,
		recorder:    opts.Recorder,
		openURL:     opts.OpenURL,
		portFree:    opts.PortCheck,
		signals:     opts.Signals,
		stopSignals: func() {},
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if l.signals == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		l.signals = ch
		l.stopSignals = func() { signal.Stop(ch) }
	}
	return l, nil
}

// Close releases the signal subscription.
func (l *Launcher) Close() error {
	l.stopSignals()
	return nil
}

// Run performs one launch and returns once the external process has exited.
// A nil error means a clean exit or a user interrupt; a nonzero exit of the
// process is returned as *ExitError.
func (l *Launcher) Run(ctx context.Context, cfg config.LaunchConfig) (err error) {
	st := &runState{exitCode: -1}
	runID := l.recordStart(cfg)
	defer func() {
		l.recordFinish(runID, st, err)
	}()

	l.console.Title(fmt.Sprintf("Starting prompter with %s...", l.driver.DisplayName()))
	l.console.Hint(fmt.Sprintf("Serving files from: %s\nPort: %d", cfg.Directory, cfg.Port))

	preCtx, cancelPre := context.WithCancel(ctx)
	stopWatch := l.watchPreflight(preCtx, cancelPre, st)
	err = l.preflight(preCtx, cfg)
	stopWatch()
	cancelPre()
	if st.interrupted {
		l.console.Warn("Interrupted before the server started")
		return nil
	}
	if err != nil {
		return err
	}
	return l.runForeground(ctx, cfg, st)
}

type runState struct {
	interrupted bool
	exitCode    int
}

func (l *Launcher) preflight(ctx context.Context, cfg config.LaunchConfig) error {
	version, err := l.driver.CheckAvailable(ctx)
	if err != nil {
		l.console.Error(fmt.Sprintf("%s not found", l.driver.DisplayName()))
		var ue *driver.UnavailableError
		if errors.As(err, &ue) && ue.Remediation != "" {
			l.console.Hint(ue.Remediation)
		}
		return err
	}
	if version != "" {
		l.console.Success(fmt.Sprintf("%s found: %s", l.driver.DisplayName(), version))
	} else {
		l.console.Success(l.driver.DisplayName() + " found")
	}

	policy := driver.Policy{Force: cfg.ForceProvision, Required: l.driver.ProvisionRequired()}
	if err := l.driver.Provision(ctx, cfg, policy); err != nil {
		return err
	}

	if l.portFree != nil {
		if err := l.portFree(cfg.Port); err != nil {
			l.console.Error(fmt.Sprintf("Port %d is already in use", cfg.Port))
			l.console.Hint("Stop the program using it or choose another port with --port")
			return err
		}
	}
	return nil
}

// watchPreflight turns a signal during the pre-flight steps into
// cancellation of those steps. The returned func stops the watcher and waits
// for it so the foreground loop is the only signal reader afterwards.
func (l *Launcher) watchPreflight(ctx context.Context, cancel context.CancelFunc, st *runState) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case sig := <-l.signals:
			l.logger.Debug("signal during pre-flight", "signal", sig.String())
			st.interrupted = true
			cancel()
		case <-ctx.Done():
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (l *Launcher) recordStart(cfg config.LaunchConfig) string {
	if l.recorder == nil {
		return ""
	}
	id, err := l.recorder.Started(cfg)
	if err != nil {
		l.logger.Warn("record launch start", "err", err)
		return ""
	}
	return id
}

func (l *Launcher) recordFinish(id string, st *runState, err error) {
	if l.recorder == nil || id == "" {
		return
	}
	if rerr := l.recorder.Finished(id, st.exitCode, outcomeOf(st, err)); rerr != nil {
		l.logger.Warn("record launch finish", "err", rerr)
	}
}

func outcomeOf(st *runState, err error) string {
	var ee *ExitError
	switch {
	case err == nil && st.interrupted:
		return OutcomeInterrupted
	case err == nil:
		return OutcomeOK
	case errors.As(err, &ee):
		return OutcomeExited
	case errors.Is(err, driver.ErrRuntimeUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, driver.ErrProvision):
		return OutcomeProvisionFailed
	case errors.Is(err, readiness.ErrPortInUse):
		return OutcomePortInUse
	default:
		return OutcomeFailed
	}
}

func (l *Launcher) setCurrent(h *driver.Handle) {
	l.mu.Lock()
	l.current = h
	l.stopRequests = 0
	l.mu.Unlock()
}

// shutdown forwards a termination request to the running child. The first
// request forwards sig; any further request forces a kill. It never blocks
// on the child so later signals are still seen.
func (l *Launcher) shutdown(sig os.Signal) {
	l.mu.Lock()
	h := l.current
	n := l.stopRequests
	l.stopRequests++
	l.mu.Unlock()
	if h == nil {
		return
	}

	target := sig
	if n == 0 {
		l.console.Warn("Shutting down prompter...")
	} else {
		l.console.Warn("Forcing shutdown...")
		target = os.Kill
	}
	l.stopWG.Add(1)
	go func() {
		defer l.stopWG.Done()
		if err := l.driver.Stop(context.Background(), h, target); err != nil {
			l.logger.Warn("stop external process", "signal", target.String(), "err", err)
		}
	}()
}

func (l *Launcher) shutdownRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopRequests > 0
}
