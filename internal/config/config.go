package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable the server reads
const EnvPrefix = "POLLROOM_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and session logic
type Config struct {
	Archive   *ArchiveConfig   `json:"archive" envPrefix:"ARCHIVE_"`
	HTTP      *HTTPConfig      `json:"http" envPrefix:"HTTP_"`
	WebSocket *WebSocketConfig `json:"websocket" envPrefix:"WEBSOCKET_"`
	Poll      *PollConfig      `json:"poll" envPrefix:"POLL_"`
}

// ArchiveConfig controls the write-behind SQLite history archive
type ArchiveConfig struct {
	Enabled bool          `json:"enabled" env:"ENABLED"`
	Path    string        `json:"path" env:"PATH"`
	Timeout time.Duration `json:"timeout" env:"TIMEOUT"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Port         int           `json:"port" env:"PORT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	Host         string        `json:"host" env:"HOST"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval" env:"PING_INTERVAL"`
	ReadTimeout    time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	BufferSize     int           `json:"buffer_size" env:"BUFFER_SIZE"`
	AllowedOrigins []string      `json:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// PollConfig holds session engine limits
type PollConfig struct {
	DefaultTimeLimit int           `json:"default_time_limit" env:"DEFAULT_TIME_LIMIT"` // seconds, used when create_poll omits one
	MaxTimeLimit     int           `json:"max_time_limit" env:"MAX_TIME_LIMIT"`         // seconds, 0 disables the cap
	TickInterval     time.Duration `json:"tick_interval" env:"TICK_INTERVAL"`
	InboundRateLimit int           `json:"inbound_rate_limit" env:"INBOUND_RATE_LIMIT"` // events per connection per minute, 0 disables
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// Archive on local filesystem, HTTP on standard port, WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		Archive: &ArchiveConfig{
			Enabled: true,
			Path:    "./pollroom.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Poll: &PollConfig{
			DefaultTimeLimit: 60,
			MaxTimeLimit:     3600,
			TickInterval:     time.Second,
			InboundRateLimit: 120,
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Archive == nil {
		return fmt.Errorf("archive configuration is required")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive path cannot be empty when the archive is enabled")
	}
	if c.Archive.Timeout <= 0 {
		return fmt.Errorf("archive timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Poll == nil {
		return fmt.Errorf("poll configuration is required")
	}
	if c.Poll.DefaultTimeLimit <= 0 {
		return fmt.Errorf("default poll time limit must be positive")
	}
	if c.Poll.MaxTimeLimit < 0 {
		return fmt.Errorf("max poll time limit cannot be negative")
	}
	if c.Poll.MaxTimeLimit > 0 && c.Poll.DefaultTimeLimit > c.Poll.MaxTimeLimit {
		return fmt.Errorf("default poll time limit exceeds the max time limit")
	}
	if c.Poll.TickInterval <= 0 {
		return fmt.Errorf("poll tick interval must be positive")
	}
	if c.Poll.InboundRateLimit < 0 {
		return fmt.Errorf("inbound rate limit cannot be negative")
	}

	return nil
}

// Address returns host:port for the HTTP listener
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// A malformed variable discards the whole environment layer, so a typo never
// leaves half the settings applied
func LoadFromEnv() *Config {
	config := DefaultConfig()
	staged := config.clone()
	if err := applyEnv(staged); err != nil {
		log.Printf("Ignoring environment configuration: %v", err)
		return config
	}
	return staged
}

// applyEnv overlays POLLROOM_* variables; unset variables keep their current value
func applyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	config.WebSocket.AllowedOrigins = trimList(config.WebSocket.AllowedOrigins)
	return nil
}

func trimList(in []string) []string {
	var out []string
	for _, part := range in {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings.
// Pointer fields distinguish "absent" from zero so a file only overrides what it names.
type ConfigFile struct {
	Archive   *ArchiveConfigFile   `json:"archive"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Poll      *PollConfigFile      `json:"poll"`
}

type ArchiveConfigFile struct {
	Enabled *bool  `json:"enabled"`
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval   string   `json:"ping_interval"`
	ReadTimeout    string   `json:"read_timeout"`
	WriteTimeout   string   `json:"write_timeout"`
	BufferSize     int      `json:"buffer_size"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type PollConfigFile struct {
	DefaultTimeLimit *int   `json:"default_time_limit"`
	MaxTimeLimit     *int   `json:"max_time_limit"`
	TickInterval     string `json:"tick_interval"`
	InboundRateLimit *int   `json:"inbound_rate_limit"`
}

// LoadFromFile reads a JSON config file over the defaults and validates it
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if a := file.Archive; a != nil {
		if a.Enabled != nil {
			config.Archive.Enabled = *a.Enabled
		}
		if a.Path != "" {
			config.Archive.Path = a.Path
		}
		if err := parseDuration(a.Timeout, &config.Archive.Timeout); err != nil {
			return fmt.Errorf("archive.timeout: %w", err)
		}
	}

	if h := file.HTTP; h != nil {
		if h.Port > 0 {
			config.HTTP.Port = h.Port
		}
		if h.Host != "" {
			config.HTTP.Host = h.Host
		}
		if err := parseDuration(h.ReadTimeout, &config.HTTP.ReadTimeout); err != nil {
			return fmt.Errorf("http.read_timeout: %w", err)
		}
		if err := parseDuration(h.WriteTimeout, &config.HTTP.WriteTimeout); err != nil {
			return fmt.Errorf("http.write_timeout: %w", err)
		}
	}

	if w := file.WebSocket; w != nil {
		if w.BufferSize > 0 {
			config.WebSocket.BufferSize = w.BufferSize
		}
		if w.AllowedOrigins != nil {
			config.WebSocket.AllowedOrigins = w.AllowedOrigins
		}
		if err := parseDuration(w.PingInterval, &config.WebSocket.PingInterval); err != nil {
			return fmt.Errorf("websocket.ping_interval: %w", err)
		}
		if err := parseDuration(w.ReadTimeout, &config.WebSocket.ReadTimeout); err != nil {
			return fmt.Errorf("websocket.read_timeout: %w", err)
		}
		if err := parseDuration(w.WriteTimeout, &config.WebSocket.WriteTimeout); err != nil {
			return fmt.Errorf("websocket.write_timeout: %w", err)
		}
	}

	if p := file.Poll; p != nil {
		if p.DefaultTimeLimit != nil {
			config.Poll.DefaultTimeLimit = *p.DefaultTimeLimit
		}
		if p.MaxTimeLimit != nil {
			config.Poll.MaxTimeLimit = *p.MaxTimeLimit
		}
		if p.InboundRateLimit != nil {
			config.Poll.InboundRateLimit = *p.InboundRateLimit
		}
		if err := parseDuration(p.TickInterval, &config.Poll.TickInterval); err != nil {
			return fmt.Errorf("poll.tick_interval: %w", err)
		}
	}

	return nil
}

func parseDuration(s string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults.
// Each layer only overrides what it sets. A missing or broken file is logged
// and the environment/default layers still apply.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if err := applyFileAtomically(config, filepath); err != nil {
			log.Printf("Ignoring config file: %v", err)
		}
	}

	return config
}

// applyFileAtomically leaves config untouched when the file fails to apply
func applyFileAtomically(config *Config, filepath string) error {
	staged := config.clone()
	if err := applyFile(staged, filepath); err != nil {
		return err
	}
	*config = *staged
	return nil
}

func (c *Config) clone() *Config {
	archive := *c.Archive
	http := *c.HTTP
	ws := *c.WebSocket
	ws.AllowedOrigins = append([]string(nil), c.WebSocket.AllowedOrigins...)
	poll := *c.Poll
	return &Config{Archive: &archive, HTTP: &http, WebSocket: &ws, Poll: &poll}
}
