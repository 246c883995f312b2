package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/signalrelay/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig), 0o644)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	envPath := filepath.Join(configDir, ".env")
	wrote, err = writeIfNotExists(envPath, []byte(exampleEnv), 0o600)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# signalrelay configuration

upstream:
  kind: api
  endpoint: https://api3.waqarzaka.net/post/get
  token_env: SIGNAL_API_TOKEN
  user_id: "your-account-id"
  timeout: 30s
  # kind: feed
  # feed_url: https://example.com/feed.xml

poll_interval: 60

# Channel ids; run 'signalrelay channels' to list them.
destinations:
  - "your-channel-id"

mattermost:
  server_url: https://chat.example.com
  token_env: MATTERMOST_TOKEN
  team_id: ""
  max_attachment_bytes: 52428800

format:
  header: "📝 *New Post*"
  timezone: Local

dispatch:
  send_timeout: 60s

state:
  backend: file
  dir: .signalrelay/state
  # backend: sqlite
  # sqlite_path: .signalrelay/signalrelay.db
  # backend: redis
  # redis_addr: localhost:6379
  # redis_prefix: signalrelay

history:
  enabled: true
  path: .signalrelay/signalrelay.db
  retain_days: 30

mirror:
  kind: ""
  # prefix defaults to "📝 *Telegram Update*" for telegram, "📝 *Channel Update*" otherwise
  # kind: matrix
  # matrix:
  #   homeserver: https://matrix.example.org
  #   user_id: "@relay:example.org"
  #   access_token_env: MATRIX_ACCESS_TOKEN
  #   room: "#announcements:example.org"
  # kind: telegram
  # telegram:
  #   api_id_env: TELEGRAM_API_ID
  #   api_hash_env: TELEGRAM_API_HASH
  #   session_dir: .signalrelay/session
  #   channel: "@your_channel_here"
  #   poll_interval: 30s
  redact:
    enabled: false
    patterns: []

metrics:
  listen: ""

log:
  level: info
  format: console
`

const exampleEnv = `# Secrets referenced from config.yaml. Existing environment variables win.
SIGNAL_API_TOKEN=
MATTERMOST_TOKEN=
`
