package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/signalrelay/internal/config"
	"github.com/ppiankov/signalrelay/internal/format"
	"github.com/ppiankov/signalrelay/internal/logging"
	"github.com/ppiankov/signalrelay/internal/messenger"
	"github.com/ppiankov/signalrelay/internal/mirror"
	"github.com/ppiankov/signalrelay/internal/state"
	"github.com/ppiankov/signalrelay/internal/store"
	"github.com/ppiankov/signalrelay/internal/upstream"
	"github.com/rs/zerolog"
)

// loadConfig reads the config directory and builds the process logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

// openBackend connects the configured persistence backend for the ID sets.
func openBackend(ctx context.Context, cfg *config.Config) (state.Backend, error) {
	switch cfg.State.Backend {
	case config.BackendSQLite:
		db, err := store.Open(cfg.State.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite state: %w", err)
		}
		return db, nil
	case config.BackendRedis:
		b, err := state.DialRedis(ctx, cfg.State.RedisAddr, cfg.State.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("open redis state: %w", err)
		}
		return b, nil
	default:
		return state.NewFileBackend(cfg.State.Dir), nil
	}
}

// openState loads the Known and Sent sets from the configured backend.
func openState(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*state.Store, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st, err := state.Open(ctx, backend, logging.Component(log, "state"))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return st, nil
}

// openHistory opens the delivery history database, or returns nil when
// history is disabled.
func openHistory(cfg *config.Config) (*store.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	db, err := store.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return db, nil
}

func newFetcher(cfg *config.Config, log zerolog.Logger) (upstream.Fetcher, error) {
	up := cfg.Upstream
	if up.Kind == config.UpstreamFeed {
		return upstream.NewFeed(up.FeedURL, up.Timeout.Duration, logging.Component(log, "upstream"))
	}
	return upstream.NewAPI(up.Endpoint, up.Token, up.UserID, up.Timeout.Duration, logging.Component(log, "upstream"))
}

func newFormatter(cfg *config.Config) (*format.Formatter, error) {
	loc, err := config.LoadLocation(cfg.Format.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return format.New(cfg.Format.Header, cfg.Mirror.Prefix, loc), nil
}

func newMattermost(cfg *config.Config, log zerolog.Logger) (*messenger.Mattermost, error) {
	return messenger.NewMattermost(messenger.MattermostOptions{
		ServerURL:          cfg.Mattermost.ServerURL,
		Token:              cfg.Mattermost.Token,
		TeamID:             cfg.Mattermost.TeamID,
		MaxAttachmentBytes: cfg.Mattermost.MaxAttachmentBytes,
	}, logging.Component(log, "mattermost"))
}

// newMirrorSource builds the configured inbound source.
func newMirrorSource(cfg *config.Config, log zerolog.Logger) (mirror.Source, error) {
	switch cfg.Mirror.Kind {
	case config.MirrorMatrix:
		m := cfg.Mirror.Matrix
		return mirror.NewMatrix(m.Homeserver, m.UserID, m.AccessToken, m.Room, log)
	case config.MirrorTelegram:
		tg := cfg.Mirror.Telegram
		return mirror.NewTelegram(mirror.TelegramOptions{
			Script:       telegramScript(cfg),
			PythonPath:   tg.PythonPath,
			APIID:        tg.APIID,
			APIHash:      tg.APIHash,
			SessionDir:   tg.SessionDir,
			Channel:      tg.Channel,
			PollInterval: tg.PollInterval.Duration,
		}, log)
	default:
		return nil, fmt.Errorf("unknown mirror kind %q", cfg.Mirror.Kind)
	}
}

// telegramScript returns the collector path, defaulting to scripts/ next to
// the config directory.
func telegramScript(cfg *config.Config) string {
	if cfg.Mirror.Telegram.Script != "" {
		return cfg.Mirror.Telegram.Script
	}
	return filepath.Join(configDir, "..", "scripts", "collector_telegram.py")
}
