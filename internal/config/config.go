package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/chatsearch/internal/logging"
)

// Config represents the complete chatsearch configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Bot       BotConfig       `yaml:"bot" json:"bot"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Daemon    DaemonConfig    `yaml:"daemon" json:"daemon"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// BotConfig configures the chat transport.
type BotConfig struct {
	// Token is the Telegram Bot API token.
	Token string `yaml:"token" json:"-"`

	// OwnerID is the user allowed to run /enable and /disable.
	OwnerID int64 `yaml:"owner_id" json:"owner_id"`

	// EnabledChats seeds the enabled-channel set at start-up.
	EnabledChats []int64 `yaml:"enabled_chats" json:"enabled_chats"`

	// Proxy is an optional HTTP(S) proxy URL for Bot API calls.
	Proxy string `yaml:"proxy" json:"proxy,omitempty"`

	// PollTimeout is the long-polling timeout (e.g. "30s").
	PollTimeout string `yaml:"poll_timeout" json:"poll_timeout"`

	// RateLimit is the outbound Bot API call budget per second.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`

	// Workers bounds concurrently handled updates.
	Workers int `yaml:"workers" json:"workers"`
}

// SearchConfig configures the search service and result paging.
type SearchConfig struct {
	// PageSize is the number of hits per rendered page.
	PageSize int `yaml:"page_size" json:"page_size"`

	// StoreTimeout bounds every index store round-trip (e.g. "5s").
	StoreTimeout string `yaml:"store_timeout" json:"store_timeout"`

	// IndexCacheSize is the number of known channel indexes kept in memory.
	IndexCacheSize int `yaml:"index_cache_size" json:"index_cache_size"`

	// SigningKey enables the integrity tag on control tokens when non-empty.
	SigningKey string `yaml:"signing_key" json:"-"`
}

// StoreConfig configures the index store backend.
type StoreConfig struct {
	// Backend is "bleve" or "sqlite".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the data directory. Empty keeps indexes in memory.
	Path string `yaml:"path" json:"path"`

	// Language selects the text analyzer ("chinese" or "english").
	Language string `yaml:"language" json:"language"`
}

// DaemonConfig configures the search daemon socket.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
	Timeout    string `yaml:"timeout" json:"timeout"`
}

// TelemetryConfig configures metrics exposition.
type TelemetryConfig struct {
	// MetricsAddr serves Prometheus metrics when non-empty (e.g. ":9464").
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Bot: BotConfig{
			PollTimeout: "30s",
			RateLimit:   20,
			Workers:     16,
		},
		Search: SearchConfig{
			PageSize:       10,
			StoreTimeout:   "5s",
			IndexCacheSize: 1024,
		},
		Store: StoreConfig{
			Backend:  "bleve",
			Path:     defaultDataDir(),
			Language: "chinese",
		},
		Daemon: DaemonConfig{
			SocketPath: filepath.Join(defaultHomeDir(), "daemon.sock"),
			PIDPath:    filepath.Join(defaultHomeDir(), "daemon.pid"),
			Timeout:    "10s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      logging.DefaultLogPath(),
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".chatsearch")
	}
	return filepath.Join(home, ".chatsearch")
}

func defaultDataDir() string {
	return filepath.Join(defaultHomeDir(), "data")
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/chatsearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/chatsearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "chatsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "chatsearch", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration in order of increasing precedence:
//  1. Defaults
//  2. User config (~/.config/chatsearch/config.yaml)
//  3. explicitPath, or ./chatsearch.yaml when explicitPath is empty
//  4. Environment variables (CHATSEARCH_*)
func Load(explicitPath string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	switch {
	case explicitPath != "":
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	case fileExists("chatsearch.yaml"):
		if err := cfg.loadYAML("chatsearch.yaml"); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a single YAML file on top of the defaults.
// Used by the hot-reload watcher, which only cares about the file's contents.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	parsed.expandPaths()
	c.mergeWith(&parsed)
	return nil
}

// expandPaths resolves a leading ~ in path options.
func (c *Config) expandPaths() {
	c.Store.Path = expandHome(c.Store.Path)
	c.Daemon.SocketPath = expandHome(c.Daemon.SocketPath)
	c.Daemon.PIDPath = expandHome(c.Daemon.PIDPath)
	c.Logging.File = expandHome(c.Logging.File)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Bot
	if other.Bot.Token != "" {
		c.Bot.Token = other.Bot.Token
	}
	if other.Bot.OwnerID != 0 {
		c.Bot.OwnerID = other.Bot.OwnerID
	}
	if len(other.Bot.EnabledChats) > 0 {
		c.Bot.EnabledChats = other.Bot.EnabledChats
	}
	if other.Bot.Proxy != "" {
		c.Bot.Proxy = other.Bot.Proxy
	}
	if other.Bot.PollTimeout != "" {
		c.Bot.PollTimeout = other.Bot.PollTimeout
	}
	if other.Bot.RateLimit != 0 {
		c.Bot.RateLimit = other.Bot.RateLimit
	}
	if other.Bot.Workers != 0 {
		c.Bot.Workers = other.Bot.Workers
	}

	// Search
	if other.Search.PageSize != 0 {
		c.Search.PageSize = other.Search.PageSize
	}
	if other.Search.StoreTimeout != "" {
		c.Search.StoreTimeout = other.Search.StoreTimeout
	}
	if other.Search.IndexCacheSize != 0 {
		c.Search.IndexCacheSize = other.Search.IndexCacheSize
	}
	if other.Search.SigningKey != "" {
		c.Search.SigningKey = other.Search.SigningKey
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.Language != "" {
		c.Store.Language = other.Store.Language
	}

	// Daemon
	if other.Daemon.SocketPath != "" {
		c.Daemon.SocketPath = other.Daemon.SocketPath
	}
	if other.Daemon.PIDPath != "" {
		c.Daemon.PIDPath = other.Daemon.PIDPath
	}
	if other.Daemon.Timeout != "" {
		c.Daemon.Timeout = other.Daemon.Timeout
	}

	// Telemetry
	if other.Telemetry.MetricsAddr != "" {
		c.Telemetry.MetricsAddr = other.Telemetry.MetricsAddr
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies CHATSEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHATSEARCH_BOT_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("CHATSEARCH_OWNER_ID"); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			c.Bot.OwnerID = id
		}
	}
	if v := os.Getenv("CHATSEARCH_ENABLED_CHATS"); v != "" {
		if ids, err := ParseChatIDs(v); err == nil {
			c.Bot.EnabledChats = ids
		}
	}
	if v := os.Getenv("CHATSEARCH_PROXY"); v != "" {
		c.Bot.Proxy = v
	}
	if v := os.Getenv("CHATSEARCH_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.PageSize = n
		}
	}
	if v := os.Getenv("CHATSEARCH_SIGNING_KEY"); v != "" {
		c.Search.SigningKey = v
	}
	if v := os.Getenv("CHATSEARCH_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("CHATSEARCH_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CHATSEARCH_LANGUAGE"); v != "" {
		c.Store.Language = v
	}
	if v := os.Getenv("CHATSEARCH_SOCKET"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("CHATSEARCH_METRICS_ADDR"); v != "" {
		c.Telemetry.MetricsAddr = v
	}
	if v := os.Getenv("CHATSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ParseChatIDs parses a comma separated list of chat ids.
func ParseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be positive, got %d", c.Search.PageSize)
	}
	if c.Search.IndexCacheSize <= 0 {
		return fmt.Errorf("search.index_cache_size must be positive, got %d", c.Search.IndexCacheSize)
	}
	if c.Bot.RateLimit <= 0 {
		return fmt.Errorf("bot.rate_limit must be positive, got %v", c.Bot.RateLimit)
	}
	if c.Bot.Workers <= 0 {
		return fmt.Errorf("bot.workers must be positive, got %d", c.Bot.Workers)
	}

	for name, v := range map[string]string{
		"bot.poll_timeout":     c.Bot.PollTimeout,
		"search.store_timeout": c.Search.StoreTimeout,
		"daemon.timeout":       c.Daemon.Timeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, v)
		}
	}

	switch strings.ToLower(c.Store.Backend) {
	case "bleve", "sqlite":
	default:
		return fmt.Errorf("store.backend must be 'bleve' or 'sqlite', got %s", c.Store.Backend)
	}

	switch strings.ToLower(c.Store.Language) {
	case "chinese", "english":
	default:
		return fmt.Errorf("store.language must be 'chinese' or 'english', got %s", c.Store.Language)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// PollTimeout returns bot.poll_timeout as a duration.
func (c *Config) PollTimeout() time.Duration {
	return mustDuration(c.Bot.PollTimeout, 30*time.Second)
}

// StoreTimeout returns search.store_timeout as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return mustDuration(c.Search.StoreTimeout, 5*time.Second)
}

// DaemonTimeout returns daemon.timeout as a duration.
func (c *Config) DaemonTimeout() time.Duration {
	return mustDuration(c.Daemon.Timeout, 10*time.Second)
}

// LoggingConfig converts the logging section to a logging.Config.
func (c *Config) LoggingConfig(stderr bool) logging.Config {
	return logging.Config{
		Level:         c.Logging.Level,
		FilePath:      c.Logging.File,
		MaxSizeMB:     c.Logging.MaxSizeMB,
		MaxFiles:      c.Logging.MaxFiles,
		WriteToStderr: stderr,
	}
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
