// Package procexectest provides in-memory fakes for procexec.Exec.
package procexectest

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"prompter/cli/internal/procexec"
)

type Result struct {
	Out []byte
	Err error
}

// FakeExec answers Output and Run from Results keyed by command prefix
// ("docker images") and hands out Proc for Start.
type FakeExec struct {
	mu       sync.Mutex
	Results  map[string]Result
	Proc     *FakeProcess
	StartErr error
	calls    []string
	specs    []procexec.Spec
}

func NewFakeExec() *FakeExec {
	return &FakeExec{Results: map[string]Result{}}
}

func (f *FakeExec) On(prefix string, out string, err error) *FakeExec {
	f.mu.Lock()
	f.Results[prefix] = Result{Out: []byte(out), Err: err}
	f.mu.Unlock()
	return f
}

func (f *FakeExec) Output(_ context.Context, spec procexec.Spec) ([]byte, error) {
	r := f.record("output", spec)
	return r.Out, r.Err
}

func (f *FakeExec) Run(_ context.Context, spec procexec.Spec) error {
	r := f.record("run", spec)
	if spec.Stdout != nil && len(r.Out) > 0 {
		_, _ = spec.Stdout.Write(r.Out)
	}
	return r.Err
}

func (f *FakeExec) Start(_ context.Context, spec procexec.Spec) (procexec.Process, error) {
	f.record("start", spec)
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.Proc == nil {
		return nil, errors.New("no fake process configured")
	}
	return f.Proc, nil
}

func (f *FakeExec) record(kind string, spec procexec.Spec) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	line := spec.String()
	f.calls = append(f.calls, kind+" "+line)
	f.specs = append(f.specs, spec)
	best := ""
	for prefix := range f.Results {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Result{}
	}
	return f.Results[best]
}

// Calls returns "kind command line" entries in invocation order.
func (f *FakeExec) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeExec) Specs() []procexec.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]procexec.Spec, len(f.specs))
	copy(out, f.specs)
	return out
}

// Called reports whether any call of kind began with prefix.
func (f *FakeExec) Called(kind, prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, kind+" "+prefix) {
			return true
		}
	}
	return false
}

// FakeProcess is a child whose output and exit are scripted by the test.
type FakeProcess struct {
	mu      sync.Mutex
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	exited  chan struct{}
	once    sync.Once
	code    int
	signals []os.Signal
	killed  bool

	// OnSignal runs in its own goroutine for every delivered signal.
	OnSignal func(p *FakeProcess, sig os.Signal)
}

func NewFakeProcess() *FakeProcess {
	p := &FakeProcess{exited: make(chan struct{})}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *FakeProcess) Pid() int          { return 4242 }
func (p *FakeProcess) Stdout() io.Reader { return p.stdoutR }
func (p *FakeProcess) Stderr() io.Reader { return p.stderrR }

func (p *FakeProcess) WriteStdout(line string) {
	_, _ = io.WriteString(p.stdoutW, line+"\n")
}

func (p *FakeProcess) WriteStderr(line string) {
	_, _ = io.WriteString(p.stderrW, line+"\n")
}

func (p *FakeProcess) Exit(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		p.code = code
		p.mu.Unlock()
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		close(p.exited)
	})
}

func (p *FakeProcess) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *FakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	fn := p.OnSignal
	p.mu.Unlock()
	if fn != nil {
		go fn(p, sig)
	}
	return nil
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(137)
	return nil
}

func (p *FakeProcess) Wait() (int, error) {
	<-p.exited
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, nil
}

func (p *FakeProcess) Signals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]os.Signal, len(p.signals))
	copy(out, p.signals)
	return out
}

func (p *FakeProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}
