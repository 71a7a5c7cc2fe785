// Package config loads the agent configuration from a YAML file, .env
// files and NFCSHEET_* environment variables. Command line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dotside-studios/davi-nfc-sheet/buildinfo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Reader drivers
const (
	DriverHardware = "hardware"
	DriverPhone    = "phone"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NFCSHEET_"

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Reader  ReaderConfig  `yaml:"reader"`
	Session SessionConfig `yaml:"session"`
	Phone   PhoneConfig   `yaml:"phone"`
	Log     LogConfig     `yaml:"log"`
	UI      UIConfig      `yaml:"ui"`
}

// ServerConfig holds the HTTP/WebSocket server settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	APISecret string `yaml:"api_secret"`
	MDNS      bool   `yaml:"mdns"`
	TLS       bool   `yaml:"tls"`
}

// ReaderConfig selects and tunes the reader driver.
type ReaderConfig struct {
	Driver            string   `yaml:"driver"` // "hardware" or "phone"
	Device            string   `yaml:"device"` // libnfc connection string, empty for the first reader
	PollInterval      Duration `yaml:"poll_interval"`
	AllowMultipleTags bool     `yaml:"allow_multiple_tags"`
}

// SessionConfig holds scan session settings.
type SessionConfig struct {
	Timeout                  Duration `yaml:"timeout"`
	AlertMessage             string   `yaml:"alert_message"`
	InvalidateAfterFirstRead bool     `yaml:"invalidate_after_first_read"`
}

// PhoneConfig holds phone reader settings.
type PhoneConfig struct {
	DeviceTimeout Duration `yaml:"device_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Verbose bool `yaml:"verbose"`
}

// UIConfig holds desktop UI settings.
type UIConfig struct {
	Systray bool `yaml:"systray"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 18080,
			MDNS: true,
		},
		Reader: ReaderConfig{
			Driver:       DriverHardware,
			PollInterval: Duration(100 * time.Millisecond),
		},
		Session: SessionConfig{
			Timeout:                  Duration(60 * time.Second),
			AlertMessage:             "Hold your device near the badge",
			InvalidateAfterFirstRead: true,
		},
		Phone: PhoneConfig{
			DeviceTimeout: Duration(30 * time.Second),
		},
		UI: UIConfig{
			Systray: true,
		},
	}
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, buildinfo.DirName), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the configuration at path over the defaults. A missing file
// is created with the defaults. An existing file is never rewritten.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# ` + buildinfo.DisplayName + ` configuration
# Durations use Go syntax: 100ms, 30s, 1m
# reader.driver: hardware (libnfc) or phone (WebSocket)
# Every value can be overridden with ` + EnvPrefix + `* variables, e.g. ` + EnvPrefix + `PORT.

`)
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Reader.Driver != DriverHardware && c.Reader.Driver != DriverPhone {
		return fmt.Errorf("invalid reader.driver %q: must be %q or %q", c.Reader.Driver, DriverHardware, DriverPhone)
	}
	if c.Session.Timeout <= 0 {
		return errors.New("session.timeout must be positive")
	}
	return nil
}

// LoadEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides cfg with NFCSHEET_* environment variables.
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = Duration(d)
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPORT: %w", EnvPrefix, err))
		} else {
			c.Server.Port = port
		}
	}
	str("API_SECRET", &c.Server.APISecret)
	boolean("MDNS", &c.Server.MDNS)
	boolean("TLS", &c.Server.TLS)
	str("DRIVER", &c.Reader.Driver)
	str("DEVICE", &c.Reader.Device)
	duration("POLL_INTERVAL", &c.Reader.PollInterval)
	duration("SESSION_TIMEOUT", &c.Session.Timeout)
	str("ALERT_MESSAGE", &c.Session.AlertMessage)
	duration("PHONE_TIMEOUT", &c.Phone.DeviceTimeout)
	boolean("VERBOSE", &c.Log.Verbose)
	boolean("SYSTRAY", &c.UI.Systray)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	return c.Validate()
}
