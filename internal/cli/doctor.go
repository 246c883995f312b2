package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ppiankov/signalrelay/internal/config"
	"github.com/ppiankov/signalrelay/internal/mirror"
	"github.com/ppiankov/signalrelay/internal/state"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const doctorTimeout = 15 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and remote access",
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true
	ctx := cmd.Context()

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, log, err := loadConfig()
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		fmt.Println("\nFix the config before running further checks.")
		return fmt.Errorf("some checks failed")
	}
	mirrorDesc := "no mirror"
	if cfg.MirrorEnabled() {
		mirrorDesc = cfg.Mirror.Kind + " mirror"
	}
	printCheck(true, "config.yaml (%s upstream, %d destinations, %s)",
		cfg.Upstream.Kind, len(cfg.Destinations), mirrorDesc)
	// Checks report their own failures; keep component logs quiet.
	log = log.Level(zerolog.ErrorLevel)

	if !checkState(ctx, cfg) {
		ok = false
	}
	if !checkHistory(ctx, cfg) {
		ok = false
	}
	if !checkUpstream(ctx, cfg, log) {
		ok = false
	}
	if !checkMattermost(ctx, cfg, log) {
		ok = false
	}

	switch cfg.Mirror.Kind {
	case config.MirrorTelegram:
		if !checkTelegram(cfg) {
			ok = false
		}
	case config.MirrorMatrix:
		if !checkMatrix(ctx, cfg, log) {
			ok = false
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkState(ctx context.Context, cfg *config.Config) bool {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		printCheck(false, "state backend %s: %v", cfg.State.Backend, err)
		return false
	}
	defer func() { _ = backend.Close() }()

	for _, name := range []string{state.KnownSet, state.SentSet} {
		ids, err := backend.Load(ctx, name)
		if err != nil {
			printCheck(false, "state %s: %v (will start empty)", name, err)
			return false
		}
		printCheck(true, "state %s (%s backend, %d ids)", name, cfg.State.Backend, len(ids))
	}
	return true
}

func checkHistory(ctx context.Context, cfg *config.Config) bool {
	if !cfg.History.Enabled {
		printInfo("delivery history disabled")
		return true
	}
	db, err := openHistory(cfg)
	if err != nil {
		printCheck(false, "history database: %v", err)
		return false
	}
	defer func() { _ = db.Close() }()

	failures, err := db.RecentFailures(ctx, 1)
	if err != nil {
		printCheck(false, "history database: %v", err)
		return false
	}
	printCheck(true, "history database %s", cfg.History.Path)
	if len(failures) > 0 {
		f := failures[0]
		printInfo("last failed send: %s %s to %s at %s: %s",
			f.PostID, f.Part, f.Destination, f.At.Local().Format("2006-01-02 15:04"), f.Error)
	}
	return true
}

func checkUpstream(ctx context.Context, cfg *config.Config, log zerolog.Logger) bool {
	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		printCheck(false, "upstream: %v", err)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	posts, err := fetcher.Fetch(ctx)
	if err != nil {
		printCheck(false, "upstream %s: %v", fetcher.Name(), err)
		return false
	}
	printCheck(true, "upstream %s (%d posts in snapshot)", fetcher.Name(), len(posts))
	if len(posts) == 0 {
		printInfo("upstream returned no posts; check the token and account id")
	}
	return true
}

func checkMattermost(ctx context.Context, cfg *config.Config, log zerolog.Logger) bool {
	mm, err := newMattermost(cfg, log)
	if err != nil {
		printCheck(false, "mattermost: %v", err)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	if err := mm.Connect(ctx); err != nil {
		printCheck(false, "mattermost %s: %v", cfg.Mattermost.ServerURL, err)
		return false
	}
	printCheck(true, "mattermost %s (user %s)", cfg.Mattermost.ServerURL, mm.UserID())

	dests, err := mm.Destinations(ctx)
	if err != nil {
		printCheck(false, "mattermost channels: %v", err)
		return false
	}
	visible := make(map[string]bool, len(dests))
	for _, d := range dests {
		visible[d.ID] = true
	}
	pass := true
	for _, id := range cfg.Destinations {
		if !visible[id] {
			printCheck(false, "destination %s not visible to this account", id)
			pass = false
		}
	}
	if pass {
		printCheck(true, "destinations (%d of %d channels)", len(cfg.Destinations), len(dests))
	}
	return pass
}

func checkTelegram(cfg *config.Config) bool {
	pass := true
	tg := cfg.Mirror.Telegram

	python := tg.PythonPath
	if python == "" {
		python = "python3"
	}
	if _, err := exec.LookPath(python); err != nil {
		printCheck(false, "%s not found", python)
		return false
	}
	printCheck(true, "%s", python)

	if err := exec.Command(python, "-c", "import telethon").Run(); err != nil {
		printCheck(false, "telethon not installed (pip install telethon)")
		pass = false
	} else {
		printCheck(true, "telethon")
	}

	script := telegramScript(cfg)
	if info, err := os.Stat(script); err != nil {
		printCheck(false, "telegram collector script: %v", err)
		pass = false
	} else if info.IsDir() {
		printCheck(false, "telegram collector script: %s is a directory", script)
		pass = false
	} else {
		printCheck(true, "telegram collector script %s", script)
	}

	if tg.SessionDir != "" {
		sessionFile := filepath.Join(tg.SessionDir, "signalrelay.session")
		if _, err := os.Stat(sessionFile); err != nil {
			printCheck(false, "telegram session (run the collector script manually first)")
			pass = false
		} else {
			printCheck(true, "telegram session")
		}
	}
	return pass
}

func checkMatrix(ctx context.Context, cfg *config.Config, log zerolog.Logger) bool {
	m := cfg.Mirror.Matrix
	src, err := mirror.NewMatrix(m.Homeserver, m.UserID, m.AccessToken, m.Room, log)
	if err != nil {
		printCheck(false, "matrix: %v", err)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	who, err := src.Whoami(ctx)
	if err != nil {
		printCheck(false, "matrix %s: %v", m.Homeserver, err)
		return false
	}
	printCheck(true, "matrix %s (%s)", m.Homeserver, who)

	room, err := src.ResolveRoom(ctx)
	if err != nil {
		printCheck(false, "matrix room %s: %v", m.Room, err)
		return false
	}
	printCheck(true, "matrix room %s (%s)", m.Room, room)
	return true
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
