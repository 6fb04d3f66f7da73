package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for warelay.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Session    SessionConfig    `json:"session" yaml:"session"`
	Downstream DownstreamConfig `json:"downstream" yaml:"downstream"`
	Files      FilesConfig      `json:"files" yaml:"files"`
	Admin      AdminConfig      `json:"admin" yaml:"admin"`
	Log        LogConfig        `json:"log" yaml:"log"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

// ServerConfig configures the REST gateway.
type ServerConfig struct {
	Host               string `json:"host" yaml:"host" env:"WHATSAPP_SERVER_HOST"`
	Port               int    `json:"port" yaml:"port" env:"WHATSAPP_SERVER_PORT"`
	RateLimitPerMinute int    `json:"rateLimitPerMinute" yaml:"rateLimitPerMinute"` // 0 = disabled
	MaxBodyBytes       int64  `json:"maxBodyBytes" yaml:"maxBodyBytes"`
}

// SessionConfig configures the WhatsApp session and its device store.
type SessionConfig struct {
	StorePath       string `json:"storePath" yaml:"storePath" env:"WARELAY_SESSION_STORE"`
	DeviceName      string `json:"deviceName" yaml:"deviceName"`
	LibraryLogLevel string `json:"libraryLogLevel" yaml:"libraryLogLevel"`
}

// DownstreamConfig configures the backend that receives forwarded events.
type DownstreamConfig struct {
	URL             string `json:"url" yaml:"url" env:"DOWNSTREAM_URL"`
	Secret          string `json:"secret,omitempty" yaml:"secret,omitempty" env:"DOWNSTREAM_SECRET"`
	EventPath       string `json:"eventPath" yaml:"eventPath"`
	SpreadsheetPath string `json:"spreadsheetPath" yaml:"spreadsheetPath"`
	TimeoutSeconds  int    `json:"timeoutSeconds" yaml:"timeoutSeconds"` // 0 = no timeout
	QueueSize       int    `json:"queueSize" yaml:"queueSize"`
	Workers         int    `json:"workers" yaml:"workers"`
}

// FilesConfig names the side files the relay overwrites.
type FilesConfig struct {
	PairingCode    string `json:"pairingCode" yaml:"pairingCode"`
	GuestList      string `json:"guestList" yaml:"guestList"`
	SpreadsheetExt string `json:"spreadsheetExt" yaml:"spreadsheetExt"`
}

// AdminConfig is read for compatibility. Nothing consumes it yet.
type AdminConfig struct {
	Number string `json:"number,omitempty" yaml:"number,omitempty" env:"ADMIN_NUMBER"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"WARELAY_LOG_LEVEL"`
	Format string `json:"format" yaml:"format"` // "text" | "json"
}

// MetricsConfig configures the Prometheus endpoint on the gateway.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DownstreamTimeout returns the per-call timeout for forwarded requests.
func (c *Config) DownstreamTimeout() time.Duration {
	return time.Duration(c.Downstream.TimeoutSeconds) * time.Second
}

// DefaultConfigDir returns the default config directory (~/.warelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warelay"
	}
	return filepath.Join(home, ".warelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load but falls back to defaults plus environment
// when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FromEnv()
	}
	return cfg, err
}

// FromEnv builds a config from defaults and environment variables only.
func FromEnv() (*Config, error) {
	return finish(Defaults())
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Session.StorePath = ExpandPath(cfg.Session.StorePath)
	cfg.Files.PairingCode = ExpandPath(cfg.Files.PairingCode)
	cfg.Files.GuestList = ExpandPath(cfg.Files.GuestList)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields tagged with env from the process environment.
// Unset variables leave the current value untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		name := groups[1]
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes the config atomically, as YAML when the path says so.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file may carry the downstream secret.
	return renameio.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		errs = append(errs, "server.rateLimitPerMinute must be >= 0")
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, "server.maxBodyBytes must be >= 0")
	}

	if cfg.Session.StorePath == "" {
		errs = append(errs, "session.storePath is required")
	}
	switch strings.ToLower(cfg.Session.LibraryLogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "session.libraryLogLevel must be one of: debug, info, warn, error")
	}

	if u, err := url.Parse(cfg.Downstream.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("downstream.url must be an absolute http(s) URL, got %q", cfg.Downstream.URL))
	}
	if !strings.HasPrefix(cfg.Downstream.EventPath, "/") {
		errs = append(errs, "downstream.eventPath must start with /")
	}
	if !strings.HasPrefix(cfg.Downstream.SpreadsheetPath, "/") {
		errs = append(errs, "downstream.spreadsheetPath must start with /")
	}
	if cfg.Downstream.TimeoutSeconds < 0 {
		errs = append(errs, "downstream.timeoutSeconds must be >= 0")
	}
	if cfg.Downstream.QueueSize < 1 {
		errs = append(errs, "downstream.queueSize must be >= 1")
	}
	if cfg.Downstream.Workers < 1 || cfg.Downstream.Workers > 64 {
		errs = append(errs, "downstream.workers must be between 1 and 64")
	}

	if cfg.Files.PairingCode == "" {
		errs = append(errs, "files.pairingCode is required")
	}
	if cfg.Files.GuestList == "" {
		errs = append(errs, "files.guestList is required")
	}
	if !strings.HasPrefix(cfg.Files.SpreadsheetExt, ".") {
		errs = append(errs, "files.spreadsheetExt must start with a dot")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, "log.format must be one of: text, json")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with / when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
