package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	Token  string `yaml:"token" envconfig:"BOT_TOKEN"`
	APIURL string `yaml:"api_url" envconfig:"TELEGRAM_API_URL"`
	// LongPollTimeoutSeconds is passed to getUpdates; 0 means short polling.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// BatchLimit caps the number of updates fetched per cycle (1..100).
	BatchLimit         int  `yaml:"batch_limit" envconfig:"TELEGRAM_BATCH_LIMIT"`
	SkipWebhookCleanup bool `yaml:"skip_webhook_cleanup" envconfig:"TELEGRAM_SKIP_WEBHOOK_CLEANUP"`
}

// PollingConfig controls the supervisor loop around a dispatch cycle.
type PollingConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"POLL_INTERVAL_MS"`
	// SkipAck disables the confirming getUpdates call made after a batch.
	SkipAck             bool `yaml:"skip_ack" envconfig:"POLL_SKIP_ACK"`
	ReplayWindowSeconds int  `yaml:"replay_window_seconds" envconfig:"POLL_REPLAY_WINDOW_SECONDS"`
}

// CursorConfig selects where the last handled update id is persisted.
type CursorConfig struct {
	Backend string `yaml:"backend" envconfig:"CURSOR_BACKEND"`
	Path    string `yaml:"path" envconfig:"CURSOR_PATH"`
}

// SenderConfig tunes synchronous retries of outbound Telegram calls.
type SenderConfig struct {
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
	MaxDurationMS  int `yaml:"max_duration_ms" envconfig:"SENDER_MAX_DURATION_MS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// CursorBackendFile keeps the cursor in a plain text file.
	CursorBackendFile = "file"
	// CursorBackendBolt keeps the cursor in a bbolt database.
	CursorBackendBolt = "bolt"

	// DefaultCursorFile is the file used by the file backend when no path is set.
	DefaultCursorFile = "lastUpdate.txt"
	// DefaultCursorBolt is the database used by the bolt backend when no path is set.
	DefaultCursorBolt = "cursor.db"

	defaultIntervalMS   = 500
	defaultBatchLimit   = 100
	defaultReplayWindow = 600
)

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Polling  PollingConfig  `yaml:"polling"`
	Cursor   CursorConfig   `yaml:"cursor"`
	Sender   SenderConfig   `yaml:"sender"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields, resolves secrets and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	token, err := ResolveSecret(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram.token: %w", err)
	}
	cfg.Telegram.Token = strings.TrimSpace(token)
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	if cfg.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
	}
	switch {
	case cfg.Telegram.BatchLimit == 0:
		cfg.Telegram.BatchLimit = defaultBatchLimit
	case cfg.Telegram.BatchLimit < 0 || cfg.Telegram.BatchLimit > 100:
		return fmt.Errorf("telegram.batch_limit must be within 1..100, got %d", cfg.Telegram.BatchLimit)
	}

	if cfg.Polling.IntervalMS < 0 {
		return fmt.Errorf("polling.interval_ms must be >= 0")
	}
	if cfg.Polling.IntervalMS == 0 {
		cfg.Polling.IntervalMS = defaultIntervalMS
	}
	if cfg.Polling.ReplayWindowSeconds <= 0 {
		cfg.Polling.ReplayWindowSeconds = defaultReplayWindow
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Cursor.Backend))
	switch backend {
	case "", CursorBackendFile:
		backend = CursorBackendFile
		if strings.TrimSpace(cfg.Cursor.Path) == "" {
			cfg.Cursor.Path = DefaultCursorFile
		}
	case CursorBackendBolt, "bbolt":
		backend = CursorBackendBolt
		if strings.TrimSpace(cfg.Cursor.Path) == "" {
			cfg.Cursor.Path = DefaultCursorBolt
		}
	default:
		return fmt.Errorf("invalid cursor.backend %q; allowed: file, bolt", cfg.Cursor.Backend)
	}
	cfg.Cursor.Backend = backend

	if cfg.Sender.MaxRetries < 0 {
		return fmt.Errorf("sender.max_retries must be >= 0")
	}
	return nil
}

// Interval returns the pause between two dispatch cycles.
func (p PollingConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

// ReplayWindow returns how long handled update ids are remembered for replay detection.
func (p PollingConfig) ReplayWindow() time.Duration {
	return time.Duration(p.ReplayWindowSeconds) * time.Second
}

// LongPollTimeout returns the getUpdates timeout as a duration.
func (t TelegramConfig) LongPollTimeout() time.Duration {
	return time.Duration(t.LongPollTimeoutSeconds) * time.Second
}
