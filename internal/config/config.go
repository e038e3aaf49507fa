package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/connectbridge/internal/foundation/errors"
)

// Config is the complete bridge configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Remote  RemoteConfig   `yaml:"remote"`
	Helper  HelperConfig   `yaml:"helper"`
	Player  PlayerConfig   `yaml:"player"`
	Devices []DeviceConfig `yaml:"devices"`
	// DefaultAccount is used for devices that do not set their own account.
	DefaultAccount string        `yaml:"default_account"`
	Logging        LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP dispatch/health/metrics listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// AdvertiseAddr is the host:port helpers are told to report back to.
	// Defaults to ListenAddr.
	AdvertiseAddr string `yaml:"advertise_addr"`
}

// RemoteConfig configures the remote playback API client.
type RemoteConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// HelperConfig configures the per-device helper daemon launcher.
type HelperConfig struct {
	Binary      string `yaml:"binary"`
	CacheRoot   string `yaml:"cache_root"`
	BitrateKbps int    `yaml:"bitrate_kbps"`
}

// PlayerConfig configures the local audio engine connection.
type PlayerConfig struct {
	// Addr is the default engine address; devices may override with their own.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

// DeviceConfig describes one bridged output device.
type DeviceConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	Account string `yaml:"account"`
	// Addr overrides the engine address for this device.
	Addr string `yaml:"addr"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads, expands, defaults and validates a configuration file.
// Environment variables referenced as ${VAR} in the YAML are expanded; a
// .env file next to the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "reading configuration file").
			WithContext("path", path).
			Build()
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parsing configuration file").
			WithContext("path", path).
			Build()
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeviceByID returns the device entry with the given id.
func (c *Config) DeviceByID(id string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// AccountFor resolves the account a device plays under.
func (c *Config) AccountFor(dev DeviceConfig) string {
	if dev.Account != "" {
		return dev.Account
	}
	return c.DefaultAccount
}

// EngineAddrFor resolves the engine address for a device.
func (c *Config) EngineAddrFor(dev DeviceConfig) string {
	if dev.Addr != "" {
		return dev.Addr
	}
	return c.Player.Addr
}
