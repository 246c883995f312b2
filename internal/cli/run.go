package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/signalrelay/internal/config"
	"github.com/ppiankov/signalrelay/internal/dispatch"
	"github.com/ppiankov/signalrelay/internal/format"
	"github.com/ppiankov/signalrelay/internal/logging"
	"github.com/ppiankov/signalrelay/internal/messenger"
	"github.com/ppiankov/signalrelay/internal/metrics"
	"github.com/ppiankov/signalrelay/internal/mirror"
	"github.com/ppiankov/signalrelay/internal/privacy"
	"github.com/ppiankov/signalrelay/internal/relay"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect, deliver unsent posts, then poll forever",
	RunE:  runAction,
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runRelay(ctx, cfg, log)
}

// runRelay wires every component from cfg and blocks until ctx ends or a
// component fails permanently.
func runRelay(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	st, err := openState(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	var recorder dispatch.Recorder
	if history != nil {
		defer func() { _ = history.Close() }()
		recorder = history
		pruned, err := history.PruneOld(ctx, cfg.History.RetainDays)
		if err != nil {
			log.Warn().Err(err).Msg("prune delivery history failed")
		} else if pruned > 0 {
			log.Info().Int64("rows", pruned).Msg("pruned delivery history")
		}
	}

	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	formatter, err := newFormatter(cfg)
	if err != nil {
		return err
	}
	mm, err := newMattermost(cfg, log)
	if err != nil {
		return fmt.Errorf("create sender: %w", err)
	}

	m := metrics.New()

	dispatcher, err := dispatch.New(mm, formatter, dispatch.Options{
		AssetBaseURL: cfg.Format.AssetBaseURL,
		SendTimeout:  cfg.Dispatch.SendTimeout.Duration,
		Recorder:     recorder,
		Metrics:      m,
	}, logging.Component(log, "dispatch"))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	orch, err := relay.New(fetcher, st, dispatcher, relay.Options{
		Destinations: cfg.Destinations,
		PollInterval: cfg.PollEvery(),
		Metrics:      m,
	}, logging.Component(log, "relay"))
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	var mirrorRelay *mirror.Relay
	if cfg.MirrorEnabled() {
		mirrorRelay, err = newMirrorRelay(cfg, mm, formatter, m, log)
		if err != nil {
			return err
		}
	}

	if err := mm.Connect(ctx); err != nil {
		return err
	}
	if err := mm.Conn().Wait(ctx); err != nil {
		return err
	}

	log.Info().
		Str("upstream", fetcher.Name()).
		Int("destinations", len(cfg.Destinations)).
		Str("mirror", cfg.Mirror.Kind).
		Msg("signalrelay started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return orch.Run(gctx)
	})
	g.Go(func() error {
		return mm.Watch(gctx, 0)
	})
	if mirrorRelay != nil {
		g.Go(func() error {
			if err := mirrorRelay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mirror: %w", err)
			}
			return nil
		})
	}
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			log.Info().Str("listen", cfg.Metrics.Listen).Msg("serving metrics")
			if err := m.Serve(gctx, cfg.Metrics.Listen); err != nil {
				return fmt.Errorf("metrics: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("signalrelay stopped")
		return err
	}
	log.Info().Msg("signalrelay stopped")
	return nil
}

func newMirrorRelay(cfg *config.Config, sender messenger.Sender, formatter *format.Formatter, m *metrics.Metrics, log zerolog.Logger) (*mirror.Relay, error) {
	log = logging.Component(log, "mirror")
	src, err := newMirrorSource(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create mirror source: %w", err)
	}

	var redactor *privacy.Redactor
	if cfg.Mirror.Redact.Enabled {
		redactor, err = privacy.New(cfg.Mirror.Redact.Patterns)
		if err != nil {
			return nil, fmt.Errorf("compile redact patterns: %w", err)
		}
	}

	r, err := mirror.New(src, sender, formatter, cfg.Destinations, mirror.Options{
		Redactor:    redactor,
		SendTimeout: cfg.Dispatch.SendTimeout.Duration,
		Metrics:     m,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create mirror: %w", err)
	}
	return r, nil
}
