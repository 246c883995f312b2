package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Cycle(OutcomeOK)
	m.Cycle(OutcomeOK)
	m.Cycle(OutcomeError)
	m.Dispatched(PhaseReconcile, 3)
	m.Dispatched(PhaseCycle, 0)
	m.Send("text", nil)
	m.Send("video", errors.New("boom"))
	m.Mirror(nil)
	m.SetSizes(5, 4)

	if got := testutil.ToFloat64(m.PollCycles.WithLabelValues(OutcomeOK)); got != 2 {
		t.Errorf("ok cycles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PostsDispatched.WithLabelValues(PhaseReconcile)); got != 3 {
		t.Errorf("reconcile dispatched = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Sends.WithLabelValues("video", OutcomeError)); got != 1 {
		t.Errorf("video errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MirrorForwarded.WithLabelValues(OutcomeOK)); got != 1 {
		t.Errorf("mirror ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.KnownPosts); got != 5 {
		t.Errorf("known = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.SentPosts); got != 4 {
		t.Errorf("sent = %v, want 4", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Cycle(OutcomeOK)
	m.Dispatched(PhaseCycle, 1)
	m.Send("text", nil)
	m.Mirror(nil)
	m.SetSizes(1, 1)
}

func TestHandler(t *testing.T) {
	m := New()
	m.Cycle(OutcomeEmpty)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `signalrelay_poll_cycles_total{outcome="empty"} 1`) {
		t.Errorf("metrics output missing cycle counter:\n%s", body)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, addr) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
