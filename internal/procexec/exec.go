package procexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Spec describes one external process.
type Spec struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the launcher's own environment.
	Env map[string]string
	// Stdout and Stderr receive output for Run. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

func (s Spec) String() string {
	return strings.Join(append([]string{s.Name}, s.Args...), " ")
}

// Exec runs external commands. Short-lived commands go through Output and
// Run; the long-running child goes through Start.
type Exec interface {
	Output(ctx context.Context, spec Spec) ([]byte, error)
	Run(ctx context.Context, spec Spec) error
	Start(ctx context.Context, spec Spec) (Process, error)
}

// Process is a started child whose stdout/stderr must be drained before Wait.
type Process interface {
	Pid() int
	Stdout() io.Reader
	Stderr() io.Reader
	Signal(sig os.Signal) error
	Kill() error
	// Wait returns the exit code. Death by signal N is reported as 128+N.
	Wait() (int, error)
}

type RealExec struct {
	Logger *slog.Logger
	// Trace echoes every command line to TraceOut.
	Trace    bool
	TraceOut io.Writer
}

func (r *RealExec) Output(ctx context.Context, spec Spec) ([]byte, error) {
	cmd := r.command(ctx, spec)
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			if msg := strings.TrimSpace(string(ee.Stderr)); msg != "" {
				return out, fmt.Errorf("%w: %s", err, msg)
			}
		}
		return out, err
	}
	return out, nil
}

func (r *RealExec) Run(ctx context.Context, spec Spec) error {
	cmd := r.command(ctx, spec)
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	return cmd.Run()
}

func (r *RealExec) Start(ctx context.Context, spec Spec) (Process, error) {
	cmd := r.command(ctx, spec)
	configureProcessGroup(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	return &realProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (r *RealExec) command(ctx context.Context, spec Spec) *exec.Cmd {
	if r.Trace {
		w := r.TraceOut
		if w == nil {
			w = os.Stderr
		}
		_, _ = fmt.Fprintf(w, "+ %s\n", spec.String())
	}
	if r.Logger != nil {
		r.Logger.Debug("exec", "cmd", spec.String(), "dir", spec.Dir)
	}
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range spec.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return cmd
}

type realProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *realProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *realProcess) Stdout() io.Reader { return p.stdout }
func (p *realProcess) Stderr() io.Reader { return p.stderr }

func (p *realProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}
	err := signalProcess(p.cmd.Process, sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *realProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := killProcess(p.cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *realProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ExitCode(ee), nil
	}
	return -1, err
}

// ExitCode extracts the exit status of a finished command, mapping death by
// signal to the shell convention 128+signal.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return -1
	}
	if code := ee.ExitCode(); code >= 0 {
		return code
	}
	if sig, ok := signalNumber(ee.ProcessState); ok {
		return 128 + sig
	}
	return -1
}
