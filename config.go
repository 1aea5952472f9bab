package logkv

import (
	"fmt"

	"go.uber.org/zap"
)

type ConfOption func(*Config)

// Config is the configuration for an Engine instance.
type Config struct {
	FileName            string
	MaxKeySize          int
	MaxChunkSize        int
	ChunkSize           int
	TruncateCorruptTail bool
	RecoverOnOpen       bool
	Logger              *zap.Logger
}

// FileName sets the name of the log file inside the engine directory.
func FileName(name string) ConfOption {
	return func(c *Config) {
		c.FileName = name
	}
}

// MaxKeySize sets the largest key length accepted on write and during recovery.
func MaxKeySize(size int) ConfOption {
	return func(c *Config) {
		c.MaxKeySize = size
	}
}

// MaxChunkSize sets the largest chunk length accepted during recovery.
func MaxChunkSize(size int) ConfOption {
	return func(c *Config) {
		c.MaxChunkSize = size
	}
}

// ChunkSize sets the buffer size used to split streamed values into chunks.
func ChunkSize(size int) ConfOption {
	return func(c *Config) {
		c.ChunkSize = size
	}
}

// TruncateCorruptTail sets whether Recover cuts the log back to the end of
// its well-formed prefix.
func TruncateCorruptTail(truncate bool) ConfOption {
	return func(c *Config) {
		c.TruncateCorruptTail = truncate
	}
}

// RecoverOnOpen sets whether Open runs Recover before returning.
func RecoverOnOpen(enabled bool) ConfOption {
	return func(c *Config) {
		c.RecoverOnOpen = enabled
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *zap.Logger) ConfOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FileName:            DefaultFileName,
		MaxKeySize:          DefaultMaxKeySize,
		MaxChunkSize:        DefaultMaxChunkSize,
		ChunkSize:           DefaultChunkSize,
		TruncateCorruptTail: true,
		RecoverOnOpen:       false,
		Logger:              zap.NewNop(),
	}
}

func (c *Config) validate() error {
	if c.FileName == "" {
		return fmt.Errorf("file name is empty")
	}
	if c.MaxKeySize <= 0 {
		return fmt.Errorf("invalid max key size %d", c.MaxKeySize)
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("invalid max chunk size %d", c.MaxChunkSize)
	}
	if c.ChunkSize <= 0 || c.ChunkSize > c.MaxChunkSize {
		return fmt.Errorf("chunk size %d must be in (0, %d]", c.ChunkSize, c.MaxChunkSize)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}
