// Package config holds the file and environment configuration for the
// sermux commands. Values flow viper -> Config -> the library options;
// the library packages never read viper themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/sermux/sermux"
	"github.com/sermux/sermux/internal/logging"
)

// Config is the full command configuration.
type Config struct {
	Serial SerialConfig `mapstructure:"serial"`
	Bridge BridgeConfig `mapstructure:"bridge"`
	Listen ListenConfig `mapstructure:"listen"`
	BLE    BLEConfig    `mapstructure:"ble"`
	Log    LogConfig    `mapstructure:"log"`
}

// SerialConfig selects and tunes the serial device.
type SerialConfig struct {
	// Device is the serial device path, e.g. /dev/ttyUSB0
	Device string `mapstructure:"device"`
	// Baud is the line rate in bits per second
	Baud int `mapstructure:"baud"`
	// ReadTimeoutTenths is the read timeout in tenths of a second
	ReadTimeoutTenths int `mapstructure:"read_timeout_tenths"`
	// SyncWrites opens the device with O_SYNC so writes block until the
	// kernel buffer drains
	SyncWrites bool `mapstructure:"sync_writes"`
}

// BridgeConfig tunes the record arena and the session layer.
type BridgeConfig struct {
	RecordCapacity int           `mapstructure:"record_capacity"`
	ArenaSlots     int           `mapstructure:"arena_slots"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	RearmDelay     time.Duration `mapstructure:"rearm_delay"`
}

// ListenConfig lists the wireless-side listen addresses.
type ListenConfig struct {
	// TCP addresses, e.g. 0.0.0.0:7770
	TCP []string `mapstructure:"tcp"`
	// QUIC addresses (UDP)
	QUIC []string `mapstructure:"quic"`
}

// BLEConfig controls the Bluetooth central.
type BLEConfig struct {
	Enable bool `mapstructure:"enable"`
}

// LogConfig mirrors the logging package configuration.
type LogConfig struct {
	Level    string         `mapstructure:"level"`
	Format   string         `mapstructure:"format"`
	Outputs  []string       `mapstructure:"outputs"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig bounds file log outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns the configuration used when no file or environment
// overrides anything.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Device:            "/dev/ttyUSB0",
			Baud:              115200,
			ReadTimeoutTenths: 1,
		},
		Bridge: BridgeConfig{
			RecordCapacity: sermux.DefaultRecordCapacity,
			ArenaSlots:     sermux.DefaultArenaSlots,
			MaxSessions:    sermux.DefaultMaxSessions,
			SendTimeout:    sermux.DefaultSendTimeout,
			RearmDelay:     sermux.DefaultRearmDelay,
		},
		Listen: ListenConfig{
			TCP:  []string{"127.0.0.1:7770"},
			QUIC: []string{},
		},
		BLE: BLEConfig{Enable: false},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Enable:     false,
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 7,
			},
		},
	}
}

// SetDefaults registers every default with viper so partial config files
// and environment variables overlay cleanly.
func SetDefaults() {
	d := Default()

	viper.SetDefault("serial.device", d.Serial.Device)
	viper.SetDefault("serial.baud", d.Serial.Baud)
	viper.SetDefault("serial.read_timeout_tenths", d.Serial.ReadTimeoutTenths)
	viper.SetDefault("serial.sync_writes", d.Serial.SyncWrites)

	viper.SetDefault("bridge.record_capacity", d.Bridge.RecordCapacity)
	viper.SetDefault("bridge.arena_slots", d.Bridge.ArenaSlots)
	viper.SetDefault("bridge.max_sessions", d.Bridge.MaxSessions)
	viper.SetDefault("bridge.send_timeout", d.Bridge.SendTimeout)
	viper.SetDefault("bridge.rearm_delay", d.Bridge.RearmDelay)

	viper.SetDefault("listen.tcp", d.Listen.TCP)
	viper.SetDefault("listen.quic", d.Listen.QUIC)

	viper.SetDefault("ble.enable", d.BLE.Enable)

	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
	viper.SetDefault("log.outputs", d.Log.Outputs)
	viper.SetDefault("log.rotation.enable", d.Log.Rotation.Enable)
	viper.SetDefault("log.rotation.max_size_mb", d.Log.Rotation.MaxSizeMB)
	viper.SetDefault("log.rotation.max_backups", d.Log.Rotation.MaxBackups)
	viper.SetDefault("log.rotation.max_age_days", d.Log.Rotation.MaxAgeDays)
	viper.SetDefault("log.rotation.compress", d.Log.Rotation.Compress)
}

// Load unmarshals the merged viper state and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the library cannot check for itself until
// much later, so a bad file fails at startup instead of mid-run.
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.ReadTimeoutTenths < 0 {
		return fmt.Errorf("serial.read_timeout_tenths must not be negative, got %d", c.Serial.ReadTimeoutTenths)
	}
	if c.Bridge.RecordCapacity < 4 {
		return fmt.Errorf("bridge.record_capacity must be at least 4, got %d", c.Bridge.RecordCapacity)
	}
	if c.Bridge.ArenaSlots < 3 {
		return fmt.Errorf("bridge.arena_slots must be at least 3, got %d", c.Bridge.ArenaSlots)
	}
	if c.Bridge.MaxSessions < 1 || c.Bridge.MaxSessions > sermux.MaxSessionLimit {
		return fmt.Errorf("bridge.max_sessions must be 1..%d, got %d",
			sermux.MaxSessionLimit, c.Bridge.MaxSessions)
	}
	if c.Bridge.SendTimeout <= 0 {
		return fmt.Errorf("bridge.send_timeout must be positive, got %s", c.Bridge.SendTimeout)
	}
	if c.Bridge.RearmDelay <= 0 {
		return fmt.Errorf("bridge.rearm_delay must be positive, got %s", c.Bridge.RearmDelay)
	}
	return nil
}

// LoggingConfig translates the log section for the logging package.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:   c.Log.Level,
		Format:  c.Log.Format,
		Outputs: c.Log.Outputs,
		Rotation: logging.Rotation{
			Enable:     c.Log.Rotation.Enable,
			MaxSizeMB:  c.Log.Rotation.MaxSizeMB,
			MaxBackups: c.Log.Rotation.MaxBackups,
			MaxAgeDays: c.Log.Rotation.MaxAgeDays,
			Compress:   c.Log.Rotation.Compress,
		},
	}
}

// BridgeOptions translates the bridge section into library options.
func (c *Config) BridgeOptions() []sermux.Option {
	return []sermux.Option{
		sermux.WithRecordCapacity(c.Bridge.RecordCapacity),
		sermux.WithArenaSlots(c.Bridge.ArenaSlots),
		sermux.WithMaxSessions(c.Bridge.MaxSessions),
		sermux.WithSendTimeout(c.Bridge.SendTimeout),
		sermux.WithRearmDelay(c.Bridge.RearmDelay),
	}
}

// ConfigDir returns the user's sermux config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sermux")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sermux"
	}
	return filepath.Join(home, ".config", "sermux")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
