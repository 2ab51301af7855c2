// Package config loads goalritual settings from the config file, the
// environment and command-line overrides.
//
// Precedence, highest first: GOALRITUAL_* environment variables, the
// config.toml file in the data directory, built-in defaults. Nested keys map
// to environment variables with dots replaced by underscores, so sync.dsn is
// GOALRITUAL_SYNC_DSN.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/goalritual/goalritual/internal/ai"
	"github.com/goalritual/goalritual/internal/remote"
	goalsync "github.com/goalritual/goalritual/internal/sync"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "GOALRITUAL"
	// FileName is the config file inside the data directory.
	FileName = "config.toml"
	// DBFileName is the local database inside the data directory.
	DBFileName = "goalritual.db"
	// SessionFileName is the persisted session inside the data directory.
	SessionFileName = "session.json"
)

// Config is the full set of settings.
type Config struct {
	DataDir string       `mapstructure:"data_dir"`
	Log     LogConfig    `mapstructure:"log"`
	Sync    SyncConfig   `mapstructure:"sync"`
	AI      AIConfig     `mapstructure:"ai"`
	Server  ServerConfig `mapstructure:"server"`
	Daemon  DaemonConfig `mapstructure:"daemon"`

	// file is the config file that was read, empty when none existed.
	file string
}

// LogConfig controls where log lines go.
type LogConfig struct {
	// File, when set, receives every log line through a rotating writer.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file rotates.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated files are kept.
	MaxBackups int `mapstructure:"max_backups"`
	// Stderr also writes log lines to stderr.
	Stderr bool `mapstructure:"stderr"`
}

// SyncConfig selects and tunes the remote snapshot store.
type SyncConfig struct {
	Backend   string        `mapstructure:"backend"`
	DSN       string        `mapstructure:"dsn"`
	AuthToken string        `mapstructure:"auth_token"`
	Debounce  time.Duration `mapstructure:"debounce"`
}

// AIConfig configures the completion proxy and suggestions.
type AIConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the local HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	ResetInterval time.Duration `mapstructure:"reset_interval"`
}

// DefaultDataDir returns ~/.goalritual, or ./.goalritual when the home
// directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".goalritual"
	}
	return filepath.Join(home, ".goalritual")
}

// Default returns the built-in settings for dataDir.
func Default(dataDir string) *Config {
	return &Config{
		DataDir: dataDir,
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			Stderr:     true,
		},
		Sync: SyncConfig{
			Backend:  remote.BackendSQLite,
			DSN:      filepath.Join(dataDir, "remote.db"),
			Debounce: goalsync.DefaultDebounce,
		},
		AI: AIConfig{
			Model:     ai.DefaultModel,
			MaxTokens: ai.DefaultMaxTokens,
			Timeout:   ai.DefaultTimeout,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Daemon: DaemonConfig{
			ResetInterval: time.Minute,
		},
	}
}

// ResolveDataDir picks the data directory: dataDir when set, then
// GOALRITUAL_DATA_DIR, then DefaultDataDir.
func ResolveDataDir(dataDir string) string {
	if dataDir == "" {
		dataDir = os.Getenv(EnvPrefix + "_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	return dataDir
}

// Load reads the configuration. dataDir overrides GOALRITUAL_DATA_DIR and
// the default location when not empty. A missing config file is not an
// error.
func Load(dataDir string) (*Config, error) {
	dataDir = ResolveDataDir(dataDir)

	v := viper.New()
	setDefaults(v, Default(dataDir))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(dataDir, FileName)
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	file := path
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		file = ""
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DataDir = dataDir
	cfg.file = file

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.stderr", d.Log.Stderr)

	v.SetDefault("sync.backend", d.Sync.Backend)
	v.SetDefault("sync.dsn", d.Sync.DSN)
	v.SetDefault("sync.auth_token", d.Sync.AuthToken)
	v.SetDefault("sync.debounce", d.Sync.Debounce)

	v.SetDefault("ai.api_key", d.AI.APIKey)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	v.SetDefault("ai.timeout", d.AI.Timeout)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("daemon.reset_interval", d.Daemon.ResetInterval)
}

// Validate checks value ranges and the backend name.
func (c *Config) Validate() error {
	switch c.Sync.Backend {
	case remote.BackendSQLite, remote.BackendLibSQL, remote.BackendPostgres:
	default:
		return fmt.Errorf("invalid sync.backend %q (want %s, %s or %s)",
			c.Sync.Backend, remote.BackendSQLite, remote.BackendLibSQL, remote.BackendPostgres)
	}
	if c.Sync.Debounce <= 0 {
		return fmt.Errorf("sync.debounce must be positive")
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("ai.max_tokens must be positive")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Daemon.ResetInterval <= 0 {
		return fmt.Errorf("daemon.reset_interval must be positive")
	}
	return nil
}

// File returns the config file that was read, or "" when defaults and the
// environment were used alone.
func (c *Config) File() string {
	return c.file
}

// DBPath is the local database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFileName)
}

// SessionPath is the persisted session location.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, SessionFileName)
}

// Remote returns the remote store settings.
func (c *Config) Remote() remote.Config {
	return remote.Config{
		Backend:   c.Sync.Backend,
		DSN:       c.Sync.DSN,
		AuthToken: c.Sync.AuthToken,
	}
}

// ===== Config file =====

// fileConfig is the on-disk layout. Durations are written as strings such
// as "1s" so the file stays hand-editable.
type fileConfig struct {
	Log struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		Stderr     bool   `toml:"stderr"`
	} `toml:"log"`
	Sync struct {
		Backend   string `toml:"backend"`
		DSN       string `toml:"dsn"`
		AuthToken string `toml:"auth_token"`
		Debounce  string `toml:"debounce"`
	} `toml:"sync"`
	AI struct {
		Model     string `toml:"model"`
		MaxTokens int    `toml:"max_tokens"`
		Timeout   string `toml:"timeout"`
	} `toml:"ai"`
	Server struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"server"`
	Daemon struct {
		ResetInterval string `toml:"reset_interval"`
	} `toml:"daemon"`
}

func toFile(c *Config) fileConfig {
	var f fileConfig
	f.Log.File = c.Log.File
	f.Log.MaxSizeMB = c.Log.MaxSizeMB
	f.Log.MaxBackups = c.Log.MaxBackups
	f.Log.Stderr = c.Log.Stderr
	f.Sync.Backend = c.Sync.Backend
	f.Sync.DSN = c.Sync.DSN
	f.Sync.AuthToken = c.Sync.AuthToken
	f.Sync.Debounce = c.Sync.Debounce.String()
	f.AI.Model = c.AI.Model
	f.AI.MaxTokens = c.AI.MaxTokens
	f.AI.Timeout = c.AI.Timeout.String()
	f.Server.Host = c.Server.Host
	f.Server.Port = c.Server.Port
	f.Daemon.ResetInterval = c.Daemon.ResetInterval.String()
	return f
}

// WriteDefault writes the built-in settings to config.toml in dataDir and
// returns its path. An existing file is left alone unless force is set.
// The API key is never written; use GOALRITUAL_AI_API_KEY or
// ANTHROPIC_API_KEY.
func WriteDefault(dataDir string, force bool) (string, error) {
	path := filepath.Join(dataDir, FileName)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return path, fmt.Errorf("failed to create data directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return path, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString("# goalritual configuration\n\n"); err != nil {
		return path, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(toFile(Default(dataDir))); err != nil {
		return path, fmt.Errorf("failed to encode config: %w", err)
	}
	return path, nil
}

// Encode renders c as TOML with secrets masked, for display.
func (c *Config) Encode() (string, error) {
	fc := toFile(c)
	if fc.Sync.AuthToken != "" {
		fc.Sync.AuthToken = "********"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "data_dir = %q\n\n", c.DataDir)
	if err := toml.NewEncoder(&b).Encode(fc); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return b.String(), nil
}
