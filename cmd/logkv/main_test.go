package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseConfig(t *testing.T) {
	c, err := parseConfig([]byte(`
dir: /var/lib/logkv
file_name: kv.log
max_key_size: 1M
max_chunk_size: 4096
chunk_size: 1K
truncate_corrupt_tail: false
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/logkv", c.Dir)
	assert.Equal(t, "kv.log", c.FileName)
	assert.Equal(t, 1024*1024, c.MaxKeySize)
	assert.Equal(t, 4096, c.MaxChunkSize)
	assert.Equal(t, 1024, c.ChunkSize)
	assert.False(t, c.TruncateCorruptTail)
	assert.Equal(t, zapcore.DebugLevel, c.LogLevel)

	c, err = parseConfig([]byte("dir: x\n"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig().ChunkSize, c.ChunkSize)
	assert.True(t, c.TruncateCorruptTail)

	_, err = parseConfig([]byte("chunk_size: lots\n"))
	assert.Error(t, err)
	_, err = parseConfig([]byte("log_level: loud\n"))
	assert.Error(t, err)
	_, err = parseConfig([]byte("unknown_key: 1\n"))
	assert.Error(t, err)
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "", "-d", dir, "put", "hello", "world")
	require.NoError(t, err)
	out, err := run(t, "", "-d", dir, "get", "hello")
	require.NoError(t, err)
	assert.Equal(t, "world", out)

	big := strings.Repeat("y", 100000)
	_, err = run(t, big, "-d", dir, "put-stream", "big")
	require.NoError(t, err)
	outFile := filepath.Join(t.TempDir(), "big.out")
	_, err = run(t, "", "-d", dir, "get-stream", "big", outFile)
	require.NoError(t, err)
	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, big, string(data))

	out, err = run(t, "", "-d", dir, "keys")
	require.NoError(t, err)
	assert.Equal(t, "big\t18\nhello\t0\n", out)

	_, err = run(t, "", "-d", dir, "delete", "hello")
	require.NoError(t, err)
	_, err = run(t, "", "-d", dir, "get", "hello")
	assert.Error(t, err)

	out, err = run(t, "", "-d", dir, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "records:    2")
	assert.Contains(t, out, "tombstones: 1")
	assert.Contains(t, out, "live keys:  1")

	backup := filepath.Join(t.TempDir(), "copy", "log.dat")
	_, err = run(t, "", "-d", dir, "backup", backup)
	require.NoError(t, err)
	out, err = run(t, "", "-d", filepath.Dir(backup), "keys")
	require.NoError(t, err)
	assert.Equal(t, "big\t18\n", out)
}
