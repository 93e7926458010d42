package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"prompter/cli/internal/config"
	"prompter/cli/internal/driver"
	"prompter/cli/internal/readiness"
)

type exitResult struct {
	code     int
	err      error
	relayErr error
}

// runForeground starts the child and blocks until it has exited and both of
// its output streams are drained.
func (l *Launcher) runForeground(ctx context.Context, cfg config.LaunchConfig, st *runState) error {
	// The child must outlive ctx: cancellation becomes a shutdown request
	// below rather than an immediate kill.
	h, err := l.driver.Start(context.WithoutCancel(ctx), cfg)
	if err != nil {
		l.console.Error(fmt.Sprintf("Failed to start %s: %v", l.driver.DisplayName(), err))
		return fmt.Errorf("start %s: %w", l.driver.ID(), err)
	}
	l.logger.Info("external process started", "pid", h.Process.Pid())
	l.setCurrent(h)
	defer l.setCurrent(nil)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	ready := &readyNotice{l: l, cfg: cfg}
	tail := newLineTail(stderrTailLines)

	var relays errgroup.Group
	relays.Go(func() error {
		return relayLines(h.Process.Stdout(), func(line string) {
			l.console.Line(line)
			if readiness.MatchesMarker(line, h.ReadyMarker) {
				ready.fire()
			}
		})
	})
	relays.Go(func() error {
		return relayLines(h.Process.Stderr(), func(line string) {
			if h.RelayStderr {
				l.console.ErrLine(line)
				return
			}
			tail.add(line)
		})
	})

	var probeWG sync.WaitGroup
	if h.ReadyURL != "" && l.prober != nil {
		probeWG.Add(1)
		go func() {
			defer probeWG.Done()
			if err := l.prober.Wait(runCtx, h.ReadyURL); err == nil {
				ready.fire()
			}
		}()
	}

	done := make(chan exitResult, 1)
	go func() {
		relayErr := relays.Wait()
		code, werr := h.Process.Wait()
		done <- exitResult{code: code, err: werr, relayErr: relayErr}
	}()

	ctxDone := ctx.Done()
	var res exitResult
wait:
	for {
		select {
		case res = <-done:
			break wait
		case sig := <-l.signals:
			l.logger.Info("signal received", "signal", sig.String())
			l.shutdown(sig)
		case <-ctxDone:
			ctxDone = nil
			l.logger.Info("context done, stopping external process", "err", ctx.Err())
			l.shutdown(interruptSignal)
		}
	}
	cancelRun()
	probeWG.Wait()
	l.stopWG.Wait()

	if res.relayErr != nil {
		l.logger.Warn("output relay", "err", res.relayErr)
	}
	if res.err != nil {
		l.console.Error(fmt.Sprintf("Lost track of %s: %v", l.driver.DisplayName(), res.err))
		return fmt.Errorf("wait %s: %w", l.driver.ID(), res.err)
	}
	st.exitCode = res.code
	if l.shutdownRequested() {
		st.interrupted = true
	}
	return l.finish(h, res.code, st, tail)
}

// finish reports the exit of the child and maps it onto the Run result.
func (l *Launcher) finish(h *driver.Handle, code int, st *runState, tail *lineTail) error {
	l.logger.Info("external process exited", "code", code, "interrupted", st.interrupted)
	switch {
	case code == 0 && !st.interrupted:
		l.console.Info("prompter exited")
		return nil
	case code == InterruptExitCode || (st.interrupted && cleanAfterShutdown(code)):
		st.interrupted = true
		l.console.Success("prompter stopped")
		return nil
	}

	if msg, ok := l.driver.ExplainExit(code); ok {
		l.console.Info(msg)
		return &ExitError{Code: code}
	}
	if !h.RelayStderr {
		if lines := tail.lines(); len(lines) > 0 {
			l.console.Error("Last error output:")
			for _, line := range lines {
				l.console.ErrLine(line)
			}
		}
	}
	l.console.Error(fmt.Sprintf("%s exited with code %d", l.driver.DisplayName(), code))
	if !h.RelayStderr {
		l.console.Hint("Re-run with --debug to see the full error output")
	}
	return &ExitError{Code: code}
}

// cleanAfterShutdown lists the codes a child may end with once the launcher
// asked it to stop: normal exit, SIGINT, SIGTERM, or a forced kill.
func cleanAfterShutdown(code int) bool {
	switch code {
	case 0, 130, 143, 137:
		return true
	}
	return false
}

type readyNotice struct {
	l    *Launcher
	cfg  config.LaunchConfig
	once sync.Once
}

func (r *readyNotice) fire() {
	r.once.Do(func() {
		l := r.l
		url := r.cfg.URL()
		l.console.Success("Server started successfully!")
		l.console.URL("Open your browser and go to:", url)
		l.console.Hint("Press Ctrl+C to stop the server")
		if r.cfg.OpenBrowser && l.openURL != nil {
			if err := l.openURL(url); err != nil {
				l.logger.Warn("open browser", "url", url, "err", err)
				l.console.Warn("Could not open a browser, open the address above manually")
			}
		}
	})
}

// relayLines calls emit for every line read from r, without the line ending.
// A final line without a newline is still emitted. Lines have no length cap.
func relayLines(r io.Reader, emit func(string)) error {
	if r == nil {
		return nil
	}
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			emit(strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// lineTail keeps the last n lines added.
type lineTail struct {
	mu   sync.Mutex
	max  int
	buf  []string
	next int
	full bool
}

func newLineTail(n int) *lineTail {
	if n <= 0 {
		n = 1
	}
	return &lineTail{max: n, buf: make([]string, n)}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf[t.next] = line
	t.next = (t.next + 1) % t.max
	if t.next == 0 {
		t.full = true
	}
}

func (t *lineTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]string(nil), t.buf[:t.next]...)
	}
	out := make([]string, 0, t.max)
	out = append(out, t.buf[t.next:]...)
	return append(out, t.buf[:t.next]...)
}
