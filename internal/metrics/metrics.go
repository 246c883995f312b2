// Package metrics exposes relay counters and gauges for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "signalrelay"

// Label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeEmpty = "empty"

	PhaseReconcile = "reconcile"
	PhaseCycle     = "cycle"
)

// Metrics holds the relay collectors. A nil *Metrics records nothing.
type Metrics struct {
	PollCycles      *prometheus.CounterVec
	PostsDispatched *prometheus.CounterVec
	Sends           *prometheus.CounterVec
	MirrorForwarded *prometheus.CounterVec
	KnownPosts      prometheus.Gauge
	SentPosts       prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh private registry.
func New() *Metrics {
	return NewWith(prometheus.NewRegistry())
}

// NewWith registers the collectors on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.PollCycles = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles run, by outcome",
		},
		[]string{"outcome"},
	)
	m.PostsDispatched = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "posts_dispatched_total",
			Help:      "Posts handed to the dispatcher, by phase",
		},
		[]string{"phase"},
	)
	m.Sends = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sends_total",
			Help:      "Individual message sends, by part and outcome",
		},
		[]string{"part", "outcome"},
	)
	m.MirrorForwarded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "mirror_forwarded_total",
			Help:      "Mirrored messages forwarded per destination, by outcome",
		},
		[]string{"outcome"},
	)
	m.KnownPosts = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "known_posts",
		Help:      "Post IDs in the known set",
	})
	m.SentPosts = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sent_posts",
		Help:      "Post IDs in the sent set",
	})

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Cycle counts one poll cycle.
func (m *Metrics) Cycle(result string) {
	if m == nil {
		return
	}
	m.PollCycles.WithLabelValues(result).Inc()
}

// Dispatched counts n posts dispatched in phase.
func (m *Metrics) Dispatched(phase string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PostsDispatched.WithLabelValues(phase).Add(float64(n))
}

// Send counts one send of part.
func (m *Metrics) Send(part string, err error) {
	if m == nil {
		return
	}
	m.Sends.WithLabelValues(part, outcome(err)).Inc()
}

// Mirror counts one mirrored forward.
func (m *Metrics) Mirror(err error) {
	if m == nil {
		return
	}
	m.MirrorForwarded.WithLabelValues(outcome(err)).Inc()
}

// SetSizes records the current set sizes.
func (m *Metrics) SetSizes(known, sent int) {
	if m == nil {
		return
	}
	m.KnownPosts.Set(float64(known))
	m.SentPosts.Set(float64(sent))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
