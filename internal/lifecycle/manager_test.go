package lifecycle

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestManager_ContextCancelRunsShutdown(t *testing.T) {
	mgr := NewManager()
	steps := make([]string, 0, 4)
	var mu sync.Mutex
	appendStep := func(v string) {
		mu.Lock()
		steps = append(steps, v)
		mu.Unlock()
	}

	mgr.AddRun("launch", func(ctx context.Context) error {
		<-ctx.Done()
		appendStep("launch-stopped")
		return nil
	})
	mgr.AddShutdown("close-history-db", func(context.Context) error {
		appendStep("shutdown-db")
		return nil
	})

	parent, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- mgr.StartAndWait(parent)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("StartAndWait should not fail: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(steps, []string{"launch-stopped", "shutdown-db"}) {
		t.Fatalf("unexpected steps: %#v", steps)
	}
}

type codeErr struct{ code int }

func (e *codeErr) Error() string { return "exit" }

func TestManager_RunErrorKeepsTypeAndTriggersShutdown(t *testing.T) {
	mgr := NewManager()
	shutdownCalled := 0

	mgr.AddRun("launch", func(context.Context) error {
		return &codeErr{code: 125}
	})
	mgr.AddShutdown("close-history-db", func(context.Context) error {
		shutdownCalled++
		return nil
	})

	err := mgr.StartAndWait(context.Background())
	var ce *codeErr
	if !errors.As(err, &ce) || ce.code != 125 {
		t.Fatalf("expected run error to survive wrapping, got %v", err)
	}
	if !strings.Contains(err.Error(), "launch") {
		t.Fatalf("expected job name in error, got %v", err)
	}
	if shutdownCalled != 1 {
		t.Fatalf("expected shutdown called once, got %d", shutdownCalled)
	}
}

func TestManager_FailureCancelsOtherRuns(t *testing.T) {
	mgr := NewManager()
	boom := errors.New("boom")
	mgr.AddRun("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	mgr.AddRun("failer", func(context.Context) error { return boom })

	if err := mgr.StartAndWait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestManager_ShutdownRunsInReverseAndJoinsErrors(t *testing.T) {
	mgr := NewManager()
	var order []string
	errA := errors.New("a failed")
	mgr.AddRun("launch", func(context.Context) error { return nil })
	mgr.AddShutdown("a", func(context.Context) error {
		order = append(order, "a")
		return errA
	})
	mgr.AddShutdown("b", func(context.Context) error {
		order = append(order, "b")
		return nil
	})

	err := mgr.StartAndWait(context.Background())
	if !errors.Is(err, errA) {
		t.Fatalf("expected shutdown error, got %v", err)
	}
	if !slices.Equal(order, []string{"b", "a"}) {
		t.Fatalf("expected reverse order, got %v", order)
	}
}
