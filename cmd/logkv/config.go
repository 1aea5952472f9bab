package main

import (
	"fmt"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/yonwoo9/go-logkv"
)

type config struct {
	Dir                 string
	FileName            string
	MaxKeySize          int
	MaxChunkSize        int
	ChunkSize           int
	TruncateCorruptTail bool
	LogLevel            zapcore.Level
}

func defaultConfig() *config {
	return &config{
		Dir:                 "data",
		FileName:            logkv.DefaultFileName,
		MaxKeySize:          logkv.DefaultMaxKeySize,
		MaxChunkSize:        logkv.DefaultMaxChunkSize,
		ChunkSize:           logkv.DefaultChunkSize,
		TruncateCorruptTail: true,
		LogLevel:            zapcore.WarnLevel,
	}
}

// parseConfig reads a YAML config on top of the defaults. Sizes may be plain
// byte counts or carry a unit, e.g. "16M".
func parseConfig(data []byte) (*config, error) {
	var aux struct {
		Dir                 string `yaml:"dir"`
		FileName            string `yaml:"file_name"`
		MaxKeySize          string `yaml:"max_key_size"`
		MaxChunkSize        string `yaml:"max_chunk_size"`
		ChunkSize           string `yaml:"chunk_size"`
		TruncateCorruptTail *bool  `yaml:"truncate_corrupt_tail"`
		LogLevel            string `yaml:"log_level"`
	}
	if err := yaml.UnmarshalStrict(data, &aux); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	c := defaultConfig()
	if aux.Dir != "" {
		c.Dir = aux.Dir
	}
	if aux.FileName != "" {
		c.FileName = aux.FileName
	}
	sizes := []struct {
		name  string
		value string
		dst   *int
	}{
		{"max_key_size", aux.MaxKeySize, &c.MaxKeySize},
		{"max_chunk_size", aux.MaxChunkSize, &c.MaxChunkSize},
		{"chunk_size", aux.ChunkSize, &c.ChunkSize},
	}
	for _, s := range sizes {
		if s.value == "" {
			continue
		}
		n, err := parseSize(s.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", s.name, s.value, err)
		}
		*s.dst = n
	}
	if aux.TruncateCorruptTail != nil {
		c.TruncateCorruptTail = *aux.TruncateCorruptTail
	}
	if aux.LogLevel != "" {
		if err := c.LogLevel.UnmarshalText([]byte(aux.LogLevel)); err != nil {
			return nil, fmt.Errorf("invalid log_level %q: %w", aux.LogLevel, err)
		}
	}
	return c, nil
}

func parseSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	n, err := bytefmt.ToBytes(s)
	if err != nil {
		return 0, err
	}
	if n > 1<<31-1 {
		return 0, fmt.Errorf("size %s does not fit in a record length", s)
	}
	return int(n), nil
}

func (c *config) newLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(c.LogLevel)
	zc.Encoding = "console"
	return zc.Build()
}

func (c *config) options(logger *zap.Logger) []logkv.ConfOption {
	return []logkv.ConfOption{
		logkv.FileName(c.FileName),
		logkv.MaxKeySize(c.MaxKeySize),
		logkv.MaxChunkSize(c.MaxChunkSize),
		logkv.ChunkSize(c.ChunkSize),
		logkv.TruncateCorruptTail(c.TruncateCorruptTail),
		logkv.WithLogger(logger),
	}
}
