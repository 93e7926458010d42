//go:build !windows

package procexec

import (
	"bytes"
	"context"
	"io"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestRealExec_OutputAndExitCode(t *testing.T) {
	r := &RealExec{}
	out, err := r.Output(context.Background(), Spec{Name: "sh", Args: []string{"-c", "echo hello"}})
	if err != nil {
		t.Fatalf("output failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Fatalf("unexpected output %q", out)
	}

	_, err = r.Output(context.Background(), Spec{Name: "sh", Args: []string{"-c", "echo nope >&2; exit 3"}})
	if err == nil {
		t.Fatal("expected error for exit 3")
	}
	if ExitCode(err) != 3 {
		t.Fatalf("expected exit code 3, got %d (%v)", ExitCode(err), err)
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestRealExec_RunPassesEnvAndWriters(t *testing.T) {
	var stdout bytes.Buffer
	r := &RealExec{}
	err := r.Run(context.Background(), Spec{
		Name:   "sh",
		Args:   []string{"-c", "echo $PROMPTER_TEST_VALUE"},
		Env:    map[string]string{"PROMPTER_TEST_VALUE": "from-env"},
		Stdout: &stdout,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "from-env" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}

func TestRealExec_TraceEchoesCommand(t *testing.T) {
	var trace bytes.Buffer
	r := &RealExec{Trace: true, TraceOut: &trace}
	if err := r.Run(context.Background(), Spec{Name: "true"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if trace.String() != "+ true\n" {
		t.Fatalf("unexpected trace %q", trace.String())
	}
}

func TestRealExec_StartSignalReportsShellCode(t *testing.T) {
	r := &RealExec{}
	p, err := r.Start(context.Background(), Spec{Name: "sh", Args: []string{"-c", "echo ready; exec sleep 30"}})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	buf := make([]byte, 6)
	if _, err := io.ReadFull(p.Stdout(), buf); err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if string(buf) != "ready\n" {
		t.Fatalf("unexpected stdout %q", buf)
	}
	if err := p.Signal(syscall.SIGINT); err != nil {
		t.Fatalf("signal failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, p.Stdout())
	_, _ = io.Copy(io.Discard, p.Stderr())

	done := make(chan int, 1)
	go func() {
		code, _ := p.Wait()
		done <- code
	}()
	select {
	case code := <-done:
		if code != 130 {
			t.Fatalf("expected 130 after SIGINT, got %d", code)
		}
	case <-time.After(5 * time.Second):
		_ = p.Kill()
		t.Fatal("process did not exit after SIGINT")
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal after exit should be a no-op, got %v", err)
	}
}
