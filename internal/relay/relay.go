// Package relay drives the poll loop: it diffs each upstream snapshot
// against the durable ID sets and hands new posts to the dispatcher.
package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/signalrelay/internal/dispatch"
	"github.com/ppiankov/signalrelay/internal/metrics"
	"github.com/ppiankov/signalrelay/internal/state"
	"github.com/ppiankov/signalrelay/internal/upstream"
)

// Deliverer sends one post to one destination.
type Deliverer interface {
	Deliver(ctx context.Context, dest string, post upstream.Post) dispatch.Outcome
}

// Options configure an Orchestrator.
type Options struct {
	Destinations []string
	PollInterval time.Duration
	Metrics      *metrics.Metrics
}

// Orchestrator owns the ID sets and moves each post through
// Unseen -> Known -> Sent.
type Orchestrator struct {
	fetcher   upstream.Fetcher
	state     *state.Store
	deliverer Deliverer
	dests     []string
	interval  time.Duration
	metrics   *metrics.Metrics
	log       zerolog.Logger

	// mu serializes mutation batches on state.
	mu       sync.Mutex
	inflight sync.WaitGroup
}

// New creates an orchestrator.
func New(fetcher upstream.Fetcher, st *state.Store, d Deliverer, opts Options, log zerolog.Logger) (*Orchestrator, error) {
	switch {
	case fetcher == nil:
		return nil, errors.New("relay: fetcher is required")
	case st == nil:
		return nil, errors.New("relay: state store is required")
	case d == nil:
		return nil, errors.New("relay: deliverer is required")
	case len(opts.Destinations) == 0:
		return nil, errors.New("relay: at least one destination is required")
	case opts.PollInterval <= 0:
		return nil, errors.New("relay: poll interval must be positive")
	}

	dests := make([]string, len(opts.Destinations))
	copy(dests, opts.Destinations)

	return &Orchestrator{
		fetcher:   fetcher,
		state:     st,
		deliverer: d,
		dests:     dests,
		interval:  opts.PollInterval,
		metrics:   opts.Metrics,
		log:       log,
	}, nil
}

// Reconcile delivers every post in the current snapshot that is not yet in
// the sent set, marking it sent and flushing after each one. Use it once at
// startup to resume after a crash between flush and send.
//
// Cancelling ctx stops reconciliation between posts. The post being
// delivered finishes on a detached context; the rest stay unsent.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	log := o.cycleLogger(metrics.PhaseReconcile)

	posts, err := o.fetcher.Fetch(ctx)
	if err != nil {
		o.metrics.Cycle(metrics.OutcomeError)
		log.Error().Err(err).Str("source", o.fetcher.Name()).Msg("fetch failed")
		return fmt.Errorf("reconcile fetch: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	var flushErr error
	delivered := 0
	for _, p := range posts {
		if ctx.Err() != nil {
			break
		}
		o.state.Known.Add(p.ID)
		if o.state.Sent.Has(p.ID) {
			continue
		}

		o.deliverAll(detached, log, p)
		delivered++
		o.state.Sent.Add(p.ID)

		if err := o.state.Flush(detached); err != nil {
			log.Error().Err(err).Str("post_id", p.ID).Msg("flush failed")
			flushErr = err
		}
	}

	if err := o.state.Flush(detached); err != nil {
		log.Error().Err(err).Msg("final flush failed")
		flushErr = err
	}

	o.metrics.Dispatched(metrics.PhaseReconcile, delivered)
	o.metrics.SetSizes(o.state.Known.Len(), o.state.Sent.Len())
	o.metrics.Cycle(cycleOutcome(delivered, flushErr))

	if err := ctx.Err(); err != nil {
		log.Info().Int("fetched", len(posts)).Int("delivered", delivered).Msg("reconciliation interrupted")
		return fmt.Errorf("reconcile: %w", err)
	}
	log.Info().Int("fetched", len(posts)).Int("delivered", delivered).Msg("reconciled")
	if flushErr != nil {
		return fmt.Errorf("reconcile flush: %w", flushErr)
	}
	return nil
}

// Cycle runs one steady-state poll. New posts are marked known and sent and
// flushed before any send, so a crash mid-delivery under-delivers rather
// than duplicates.
func (o *Orchestrator) Cycle(ctx context.Context) error {
	log := o.cycleLogger(metrics.PhaseCycle)

	posts, err := o.fetcher.Fetch(ctx)
	if err != nil {
		o.metrics.Cycle(metrics.OutcomeError)
		log.Error().Err(err).Str("source", o.fetcher.Name()).Msg("fetch failed")
		return fmt.Errorf("cycle fetch: %w", err)
	}

	fresh, flushErr := o.claim(ctx, posts)
	if flushErr != nil {
		// Posts stay claimed in memory; the next successful flush persists them.
		log.Error().Err(flushErr).Int("posts", len(fresh)).Msg("flush failed, delivering anyway")
	}

	for _, p := range fresh {
		o.deliverAll(ctx, log, p)
	}

	o.metrics.Dispatched(metrics.PhaseCycle, len(fresh))
	o.metrics.Cycle(cycleOutcome(len(fresh), flushErr))

	if len(fresh) > 0 {
		log.Info().Int("fetched", len(posts)).Int("delivered", len(fresh)).Msg("cycle complete")
	} else {
		log.Debug().Int("fetched", len(posts)).Msg("nothing new")
	}

	if flushErr != nil {
		return fmt.Errorf("cycle flush: %w", flushErr)
	}
	return nil
}

// claim marks every unseen post known and sent under the mutex and flushes
// once.
func (o *Orchestrator) claim(ctx context.Context, posts []upstream.Post) ([]upstream.Post, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var fresh []upstream.Post
	for _, p := range posts {
		if o.state.Known.Has(p.ID) {
			continue
		}
		o.state.Known.Add(p.ID)
		o.state.Sent.Add(p.ID)
		fresh = append(fresh, p)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	err := o.state.Flush(ctx)
	o.metrics.SetSizes(o.state.Known.Len(), o.state.Sent.Len())
	return fresh, err
}

func (o *Orchestrator) deliverAll(ctx context.Context, log zerolog.Logger, p upstream.Post) {
	for _, dest := range o.dests {
		out := o.deliverer.Deliver(ctx, dest, p)
		if failed := out.Failed(); len(failed) > 0 {
			log.Warn().Str("post_id", p.ID).Str("destination", dest).
				Interface("failed_parts", failed).Msg("delivery incomplete")
		}
	}
}

// Run reconciles, then starts a cycle every poll interval until ctx ends.
// Cycles may overlap; each runs in its own goroutine. On cancellation Run
// waits for in-flight cycles, which finish on a context detached from ctx.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Reconcile(ctx); err != nil && ctx.Err() == nil {
		o.log.Warn().Err(err).Msg("startup reconciliation failed, continuing with schedule")
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.log.Info().Dur("interval", o.interval).Int("destinations", len(o.dests)).Msg("polling")

	for {
		select {
		case <-ctx.Done():
			o.inflight.Wait()
			o.log.Info().Msg("poller stopped")
			return nil
		case <-ticker.C:
			o.inflight.Add(1)
			go o.tick(context.WithoutCancel(ctx))
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	defer o.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			o.metrics.Cycle(metrics.OutcomeError)
			o.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("cycle panicked")
		}
	}()
	_ = o.Cycle(ctx)
}

func (o *Orchestrator) cycleLogger(phase string) zerolog.Logger {
	return o.log.With().Str("cycle_id", uuid.NewString()).Str("phase", phase).Logger()
}

func cycleOutcome(delivered int, err error) string {
	switch {
	case err != nil:
		return metrics.OutcomeError
	case delivered == 0:
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeOK
	}
}
