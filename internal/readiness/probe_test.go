package readiness

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProbe_ReadyOnAnyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewHTTPProbe()
	p.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Wait(ctx, srv.URL); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
}

func TestHTTPProbe_WaitsUntilServerListens(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	p := NewHTTPProbe()
	p.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Wait(ctx, "http://"+addr+"/") }()

	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("probe returned before server started: %v", err)
	default:
	}

	ln, err = net.Listen("tcp", addr)
	if err != nil {
		t.Skipf("could not rebind %s: %v", addr, err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	if err := <-done; err != nil {
		t.Fatalf("expected ready after server start, got %v", err)
	}
}

func TestHTTPProbe_StopsOnContextCancel(t *testing.T) {
	p := NewHTTPProbe()
	p.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Wait(ctx, "http://127.0.0.1:1/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMatchesMarker(t *testing.T) {
	if !MatchesMarker("🌐 Access in browser: http://localhost:5000", "Access in browser") {
		t.Fatal("expected marker match")
	}
	if MatchesMarker(" * Running on http://127.0.0.1:5000", "Access in browser") {
		t.Fatal("unexpected marker match")
	}
	if MatchesMarker("anything", "") {
		t.Fatal("empty marker must never match")
	}
}

func TestCheckPortFree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	if err := CheckPortFree(port); !errors.Is(err, ErrPortInUse) {
		t.Fatalf("expected ErrPortInUse for busy port %d, got %v", port, err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	free := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	if err := CheckPortFree(free); err != nil {
		t.Fatalf("expected port %d to be free, got %v", free, err)
	}
}
