package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrInvalidBaudRate    = errors.New("baud rate must be greater than 0")
	ErrInvalidChunkSize   = errors.New("chunk size must be greater than 0")
	ErrInvalidChunkDelay  = errors.New("chunk delay must not be negative")
	ErrInvalidReadTimeout = errors.New("read timeout must not be negative")
	ErrInvalidLogFormat   = errors.New("log format must be console or json")
)

const (
	// BitstreamSize is the image length the device consumes before it
	// switches to line commands
	BitstreamSize = 46408

	DefaultBaudRate    = 115200
	DefaultChunkSize   = BitstreamSize
	DefaultChunkDelay  = 10 * time.Millisecond
	DefaultReadTimeout = time.Second
)

// Config holds all application configuration
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Log      LogConfig      `mapstructure:"log"`
}

// SerialConfig describes the serial session. Hardware flow control is never enabled.
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// TransferConfig controls chunking and pacing
type TransferConfig struct {
	ChunkSize   int           `mapstructure:"chunk_size"`
	ChunkDelay  time.Duration `mapstructure:"chunk_delay"` // slept after every chunk write
	ProgressBar bool          `mapstructure:"progress_bar"`
}

// LogConfig holds diagnostic logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console or json
	File       string `mapstructure:"file"`   // empty disables file output
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// NewDefaultConfig returns a configuration with the uploader's built-in defaults
func NewDefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			BaudRate:    DefaultBaudRate,
			ReadTimeout: DefaultReadTimeout,
		},
		Transfer: TransferConfig{
			ChunkSize:  DefaultChunkSize,
			ChunkDelay: DefaultChunkDelay,
		},
		Log: LogConfig{
			Level:      "warn",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load unmarshals viper settings on top of the defaults and validates the result
func Load(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	if v != nil {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode configuration: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Serial.BaudRate <= 0 {
		return ErrInvalidBaudRate
	}
	if c.Serial.ReadTimeout < 0 {
		return ErrInvalidReadTimeout
	}
	if c.Transfer.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.Transfer.ChunkDelay < 0 {
		return ErrInvalidChunkDelay
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return ErrInvalidLogFormat
	}
	return nil
}
