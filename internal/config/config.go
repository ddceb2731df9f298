package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/sonar-client/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	LogLevel     string        `yaml:"log_level"`
	DataPath     string        `yaml:"data_path"`
	Timezone     string        `yaml:"timezone"` // IANA name; empty or "Local" uses the host zone
	TickInterval time.Duration `yaml:"tick_interval"`
	BLE          BLEConfig     `yaml:"ble"`
	Upload       UploadConfig  `yaml:"upload"`
	HTTP         HTTPConfig    `yaml:"http"`
}

// BLEConfig holds the radio protocol settings.
type BLEConfig struct {
	ServiceUUID       string        `yaml:"service_uuid"`
	IdentityCharUUID  string        `yaml:"identity_char_uuid"`
	KeepaliveCharUUID string        `yaml:"keepalive_char_uuid"`
	IdentityLength    int           `yaml:"identity_length"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	QueueSize         int           `yaml:"queue_size"`
	Advertise         bool          `yaml:"advertise"` // also run the peripheral role
}

// UploadConfig holds contact-log upload settings. An empty broker
// disables uploading.
type UploadConfig struct {
	Broker   string        `yaml:"broker"`
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

// HTTPConfig holds the monitoring server settings. An empty addr
// disables the server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sonar-client")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogLevel:     "info",
		DataPath:     filepath.Join(home, ".local", "share", "sonar-client"),
		Timezone:     "Local",
		TickInterval: time.Minute,
		BLE: BLEConfig{
			ServiceUUID:       protocol.ServiceUUID,
			IdentityCharUUID:  protocol.IdentityCharUUID,
			KeepaliveCharUUID: protocol.KeepaliveCharUUID,
			IdentityLength:    protocol.IdentityLength,
			KeepaliveInterval: 8 * time.Second,
			QueueSize:         256,
			Advertise:         true,
		},
		Upload: UploadConfig{
			Topic:   "sonar/contacts",
			Timeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8910",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in data_path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.DataPath = expandTilde(cfg.DataPath)

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	cfg := Default()
	cfg.DataPath = "~/.local/share/sonar-client"
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	header := "# sonar-client configuration\n# Durations use Go syntax (8s, 1m). Leave upload.broker empty to disable uploads.\n\n"
	if err := os.WriteFile(path, append([]byte(header), body...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.DataPath == "" {
		return fmt.Errorf("data_path must not be empty")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0")
	}

	for _, f := range []struct{ name, value string }{
		{"ble.service_uuid", c.BLE.ServiceUUID},
		{"ble.identity_char_uuid", c.BLE.IdentityCharUUID},
		{"ble.keepalive_char_uuid", c.BLE.KeepaliveCharUUID},
	} {
		if _, err := uuid.Parse(f.value); err != nil {
			return fmt.Errorf("%s must be a UUID, got %q", f.name, f.value)
		}
	}

	if c.BLE.IdentityLength <= 0 {
		return fmt.Errorf("ble.identity_length must be > 0")
	}
	if c.BLE.KeepaliveInterval <= 0 {
		return fmt.Errorf("ble.keepalive_interval must be > 0")
	}
	if c.BLE.QueueSize <= 0 {
		return fmt.Errorf("ble.queue_size must be > 0")
	}

	if c.Upload.Broker != "" {
		u, err := url.Parse(c.Upload.Broker)
		if err != nil {
			return fmt.Errorf("upload.broker: %w", err)
		}
		switch u.Scheme {
		case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
		default:
			return fmt.Errorf("upload.broker scheme must be tcp, ssl, tls, ws, wss, mqtt or mqtts, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("upload.broker must include a host, got %q", c.Upload.Broker)
		}
		if c.Upload.Topic == "" {
			return fmt.Errorf("upload.topic must not be empty when upload.broker is set")
		}
	}
	if c.Upload.Timeout <= 0 {
		return fmt.Errorf("upload.timeout must be > 0")
	}

	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DBPath returns the SQLite database path under DataPath.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataPath, "sonar.db")
}

// ParseLogLevel maps a log_level value to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
