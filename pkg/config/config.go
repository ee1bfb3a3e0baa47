package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	envConfigPath = "SHELLBRIDGE_CONFIG"

	defaultSelfOrigin     = "http://localhost:18790"
	defaultGatewayHost    = "0.0.0.0"
	defaultGatewayPort    = 18790
	defaultBridgePath     = "/bridge"
	defaultQueueSize      = 100
	defaultLocaleCookie   = "NEXT_LOCALE"
	defaultLocale         = "zh"
	defaultClientURL      = "ws://127.0.0.1:18790/bridge"
	defaultClientOrigin   = "http://localhost:3000"
	defaultCallTimeoutSec = 10
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Bridge  BridgeConfig  `json:"bridge"`
	Gateway GatewayConfig `json:"gateway"`
	Session SessionConfig `json:"session"`
	Locale  LocaleConfig  `json:"locale"`
	Client  ClientConfig  `json:"client"`
	Logging LoggingConfig `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
	// Output is "stderr" (default), "stdout", or a file path.
	Output string `json:"output,omitempty"`
}

// BridgeConfig describes the shell's own identity and which frames it trusts.
type BridgeConfig struct {
	SelfOrigin     string   `json:"self_origin" env:"SELF_ORIGIN"`
	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	QueueSize      int      `json:"queue_size" env:"QUEUE_SIZE"`
}

// GatewayConfig configures the HTTP/WebSocket listener frames attach to.
type GatewayConfig struct {
	Host string `json:"host" env:"GATEWAY_HOST"`
	Port int    `json:"port" env:"GATEWAY_PORT"`
	Path string `json:"path" env:"GATEWAY_PATH"`
}

// SessionConfig points at the persisted session document.
type SessionConfig struct {
	Path string `json:"path" env:"SESSION_PATH"`
}

// LocaleConfig names the locale cookie and its fallback.
type LocaleConfig struct {
	CookieName string            `json:"cookie_name" env:"LOCALE_COOKIE"`
	Default    string            `json:"default" env:"LOCALE_DEFAULT"`
	Cookies    map[string]string `json:"cookies,omitempty"`
}

// ClientConfig is used by the frame-side commands (call, console).
type ClientConfig struct {
	URL                string `json:"url" env:"CLIENT_URL"`
	Origin             string `json:"origin" env:"CLIENT_ORIGIN"`
	Src                string `json:"src" env:"CLIENT_SRC"`
	CallTimeoutSeconds int    `json:"call_timeout_seconds" env:"CLIENT_CALL_TIMEOUT_SECONDS"`
}

// Default returns a configuration usable without a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// LoadConfig resolves config.json, unmarshals it, and applies environment
// overrides and defaults. A missing config file is not an error; the
// defaults and environment still apply.
func LoadConfig() (*Config, error) {
	var cfg Config

	configPath, err := findConfigPath()
	switch {
	case err == nil:
		content, readErr := os.ReadFile(configPath)
		if readErr != nil {
			return nil, fmt.Errorf("read config file: %w", readErr)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case errors.Is(err, errConfigNotFound):
	default:
		return nil, err
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides injects SHELLBRIDGE_* settings on top of file config.
// Unset variables leave the file values untouched.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	opts := env.Options{Prefix: "SHELLBRIDGE_"}
	targets := []any{&cfg.Bridge, &cfg.Gateway, &cfg.Session, &cfg.Locale, &cfg.Client}
	for _, target := range targets {
		if err := env.ParseWithOptions(target, opts); err != nil {
			return fmt.Errorf("parse environment overrides: %w", err)
		}
	}

	cfg.Bridge.AllowedOrigins = compact(cfg.Bridge.AllowedOrigins)
	return nil
}

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if strings.TrimSpace(cfg.Bridge.SelfOrigin) == "" {
		cfg.Bridge.SelfOrigin = defaultSelfOrigin
	}
	// A nil list means "not configured"; an explicit empty list is kept and
	// rejects every cross-origin frame.
	if cfg.Bridge.AllowedOrigins == nil {
		cfg.Bridge.AllowedOrigins = []string{"*"}
	}
	if cfg.Bridge.QueueSize <= 0 {
		cfg.Bridge.QueueSize = defaultQueueSize
	}

	if strings.TrimSpace(cfg.Gateway.Host) == "" {
		cfg.Gateway.Host = defaultGatewayHost
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = defaultGatewayPort
	}
	if strings.TrimSpace(cfg.Gateway.Path) == "" {
		cfg.Gateway.Path = defaultBridgePath
	}

	if strings.TrimSpace(cfg.Session.Path) == "" {
		cfg.Session.Path = defaultSessionPath()
	}

	if strings.TrimSpace(cfg.Locale.CookieName) == "" {
		cfg.Locale.CookieName = defaultLocaleCookie
	}
	if strings.TrimSpace(cfg.Locale.Default) == "" {
		cfg.Locale.Default = defaultLocale
	}

	if strings.TrimSpace(cfg.Client.URL) == "" {
		cfg.Client.URL = defaultClientURL
	}
	if strings.TrimSpace(cfg.Client.Origin) == "" {
		cfg.Client.Origin = defaultClientOrigin
	}
	if cfg.Client.CallTimeoutSeconds <= 0 {
		cfg.Client.CallTimeoutSeconds = defaultCallTimeoutSec
	}
}

// Validate rejects configurations the bridge cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if !strings.Contains(c.Bridge.SelfOrigin, "://") {
		return fmt.Errorf("bridge.self_origin must be an origin like https://shell.example, got %q", c.Bridge.SelfOrigin)
	}
	if c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port)
	}
	if !strings.HasPrefix(c.Gateway.Path, "/") {
		return fmt.Errorf("gateway.path must start with /, got %q", c.Gateway.Path)
	}
	for _, origin := range c.Bridge.AllowedOrigins {
		if origin != "*" && !strings.Contains(origin, "://") {
			return fmt.Errorf("bridge.allowed_origins entry %q is not an origin", origin)
		}
	}

	return nil
}

func defaultSessionPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "session.json")
	}

	return filepath.Join(configDir, "shellbridge", "session.json")
}

// compact trims entries and drops empty ones, keeping order.
func compact(values []string) []string {
	if values == nil {
		return nil
	}

	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

var errConfigNotFound = errors.New("config.json not found")

// findConfigPath resolves the active config file location.
//
// Precedence is SHELLBRIDGE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s and %s)", errConfigNotFound, candidates[0], candidates[1])
}
