package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir          = ".signalrelay"
	DefaultConfigFile         = "config.yaml"
	DefaultEndpoint           = "https://api3.waqarzaka.net/post/get"
	DefaultAssetBaseURL       = "https://s3.us-east-2.amazonaws.com/waqarzaka.net/waqarzakaMainContent/uploadedImages"
	DefaultPollInterval       = 60
	DefaultUpstreamTimeout    = 30 * time.Second
	DefaultSendTimeout        = 60 * time.Second
	DefaultHeader             = "📝 *New Post*"
	DefaultMirrorPrefix       = "📝 *Channel Update*"
	DefaultTelegramPrefix     = "📝 *Telegram Update*"
	DefaultTimezone           = "Local"
	DefaultStateBackend       = "file"
	DefaultStateDir           = ".signalrelay/state"
	DefaultDBPath             = ".signalrelay/signalrelay.db"
	DefaultRedisPrefix        = "signalrelay"
	DefaultRetainDays         = 30
	DefaultMaxAttachmentBytes = 50 << 20
	DefaultTelegramPoll       = 30 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"

	UpstreamAPI  = "api"
	UpstreamFeed = "feed"

	MirrorMatrix   = "matrix"
	MirrorTelegram = "telegram"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Upstream     UpstreamConfig   `yaml:"upstream"`
	PollInterval int              `yaml:"poll_interval"`
	Destinations []string         `yaml:"destinations"`
	Mattermost   MattermostConfig `yaml:"mattermost"`
	Format       FormatConfig     `yaml:"format"`
	Dispatch     DispatchConfig   `yaml:"dispatch"`
	State        StateConfig      `yaml:"state"`
	History      HistoryConfig    `yaml:"history"`
	Mirror       MirrorConfig     `yaml:"mirror"`
	Metrics      MetricsConfig    `yaml:"metrics"`
	Log          LogConfig        `yaml:"log"`
}

type UpstreamConfig struct {
	Kind     string   `yaml:"kind"`
	Endpoint string   `yaml:"endpoint"`
	Token    string   `yaml:"token"`
	TokenEnv string   `yaml:"token_env"`
	UserID   string   `yaml:"user_id"`
	FeedURL  string   `yaml:"feed_url"`
	Timeout  Duration `yaml:"timeout"`
}

type MattermostConfig struct {
	ServerURL          string `yaml:"server_url"`
	Token              string `yaml:"token"`
	TokenEnv           string `yaml:"token_env"`
	TeamID             string `yaml:"team_id"`
	MaxAttachmentBytes int64  `yaml:"max_attachment_bytes"`
}

type FormatConfig struct {
	Header       string `yaml:"header"`
	Timezone     string `yaml:"timezone"`
	AssetBaseURL string `yaml:"asset_base_url"`
}

type DispatchConfig struct {
	SendTimeout Duration `yaml:"send_timeout"`
}

type StateConfig struct {
	Backend     string `yaml:"backend"`
	Dir         string `yaml:"dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type MirrorConfig struct {
	Kind     string         `yaml:"kind"`
	Prefix   string         `yaml:"prefix"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Telegram TelegramConfig `yaml:"telegram"`
	Redact   RedactConfig   `yaml:"redact"`
}

type MatrixConfig struct {
	Homeserver     string `yaml:"homeserver"`
	UserID         string `yaml:"user_id"`
	AccessToken    string `yaml:"access_token"`
	AccessTokenEnv string `yaml:"access_token_env"`
	Room           string `yaml:"room"`
}

type TelegramConfig struct {
	APIIDEnv     string   `yaml:"api_id_env"`
	APIHashEnv   string   `yaml:"api_hash_env"`
	SessionDir   string   `yaml:"session_dir"`
	Channel      string   `yaml:"channel"`
	Script       string   `yaml:"script"`
	PythonPath   string   `yaml:"python_path"`
	PollInterval Duration `yaml:"poll_interval"`

	// Resolved from env vars at load time.
	APIID   string `yaml:"-"`
	APIHash string `yaml:"-"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
// A .env and .env.local in dir are loaded first without overriding the environment.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	if err := loadEnvFiles(dir); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func loadEnvFiles(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Upstream.Kind == "" {
		cfg.Upstream.Kind = UpstreamAPI
	}
	if cfg.Upstream.Endpoint == "" {
		cfg.Upstream.Endpoint = DefaultEndpoint
	}
	if cfg.Upstream.Timeout.Duration == 0 {
		cfg.Upstream.Timeout.Duration = DefaultUpstreamTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Mattermost.MaxAttachmentBytes == 0 {
		cfg.Mattermost.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	if cfg.Format.Header == "" {
		cfg.Format.Header = DefaultHeader
	}
	if cfg.Format.Timezone == "" {
		cfg.Format.Timezone = DefaultTimezone
	}
	if cfg.Format.AssetBaseURL == "" {
		cfg.Format.AssetBaseURL = DefaultAssetBaseURL
	}
	if cfg.Dispatch.SendTimeout.Duration == 0 {
		cfg.Dispatch.SendTimeout.Duration = DefaultSendTimeout
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = DefaultStateBackend
	}
	if cfg.State.Dir == "" {
		cfg.State.Dir = DefaultStateDir
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = DefaultDBPath
	}
	if cfg.State.RedisPrefix == "" {
		cfg.State.RedisPrefix = DefaultRedisPrefix
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultDBPath
	}
	if cfg.History.RetainDays == 0 {
		cfg.History.RetainDays = DefaultRetainDays
	}
	if cfg.Mirror.Prefix == "" {
		cfg.Mirror.Prefix = DefaultMirrorPrefix
		if cfg.Mirror.Kind == MirrorTelegram {
			cfg.Mirror.Prefix = DefaultTelegramPrefix
		}
	}
	if cfg.Mirror.Telegram.PollInterval.Duration == 0 {
		cfg.Mirror.Telegram.PollInterval.Duration = DefaultTelegramPoll
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Upstream.TokenEnv != "" {
		if v := os.Getenv(cfg.Upstream.TokenEnv); v != "" {
			cfg.Upstream.Token = v
		}
	}
	if cfg.Mattermost.TokenEnv != "" {
		if v := os.Getenv(cfg.Mattermost.TokenEnv); v != "" {
			cfg.Mattermost.Token = v
		}
	}
	if cfg.Mirror.Matrix.AccessTokenEnv != "" {
		if v := os.Getenv(cfg.Mirror.Matrix.AccessTokenEnv); v != "" {
			cfg.Mirror.Matrix.AccessToken = v
		}
	}
	if cfg.Mirror.Telegram.APIIDEnv != "" {
		cfg.Mirror.Telegram.APIID = os.Getenv(cfg.Mirror.Telegram.APIIDEnv)
	}
	if cfg.Mirror.Telegram.APIHashEnv != "" {
		cfg.Mirror.Telegram.APIHash = os.Getenv(cfg.Mirror.Telegram.APIHashEnv)
	}
}

func validate(cfg *Config) error {
	switch cfg.Upstream.Kind {
	case UpstreamAPI:
		if strings.TrimSpace(cfg.Upstream.Token) == "" {
			return errors.New("upstream.token: api token is required")
		}
		if strings.TrimSpace(cfg.Upstream.UserID) == "" {
			return errors.New("upstream.user_id: account id is required")
		}
	case UpstreamFeed:
		if strings.TrimSpace(cfg.Upstream.FeedURL) == "" {
			return errors.New("upstream.feed_url: feed url is required")
		}
	default:
		return fmt.Errorf("upstream.kind: unknown kind %q (want api or feed)", cfg.Upstream.Kind)
	}

	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval: must be a positive number of seconds, got %d", cfg.PollInterval)
	}
	if len(cfg.Destinations) == 0 {
		return errors.New("destinations: at least one destination channel is required")
	}
	for i, d := range cfg.Destinations {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("destinations[%d]: empty channel id", i)
		}
	}

	if strings.TrimSpace(cfg.Mattermost.ServerURL) == "" {
		return errors.New("mattermost.server_url: server url is required")
	}
	if strings.TrimSpace(cfg.Mattermost.Token) == "" {
		return errors.New("mattermost.token: access token is required")
	}

	if _, err := LoadLocation(cfg.Format.Timezone); err != nil {
		return fmt.Errorf("format.timezone: %w", err)
	}

	switch cfg.State.Backend {
	case BackendFile, BackendSQLite:
	case BackendRedis:
		if cfg.State.RedisAddr == "" {
			return errors.New("state.redis_addr: required for redis backend")
		}
	default:
		return fmt.Errorf("state.backend: unknown backend %q (want file, sqlite or redis)", cfg.State.Backend)
	}

	switch cfg.Mirror.Kind {
	case "":
	case MirrorMatrix:
		m := cfg.Mirror.Matrix
		if m.Homeserver == "" || m.UserID == "" || m.AccessToken == "" || m.Room == "" {
			return errors.New("mirror.matrix: homeserver, user_id, access token and room are required")
		}
	case MirrorTelegram:
		tg := cfg.Mirror.Telegram
		if tg.Channel == "" {
			return errors.New("mirror.telegram.channel: source channel is required")
		}
		if tg.APIID == "" || tg.APIHash == "" {
			return errors.New("mirror.telegram: api id and api hash are required")
		}
	default:
		return fmt.Errorf("mirror.kind: unknown kind %q (want matrix or telegram)", cfg.Mirror.Kind)
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q (want console or json)", cfg.Log.Format)
	}

	return nil
}

// LoadLocation resolves a configured time zone name; "Local" maps to time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == DefaultTimezone {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// PollEvery returns the poll interval as a duration.
func (c *Config) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// MirrorEnabled reports whether a mirror source is configured.
func (c *Config) MirrorEnabled() bool {
	return c.Mirror.Kind != ""
}
