package logkv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trade struct {
	Symbol string
	Price  float64
	Size   int64
	Tags   []string
}

func TestTypedString(t *testing.T) {
	dir := t.TempDir()
	db := openRecovered(t, dir)

	typed := NewTyped[string](db, StringSerializer{})
	require.NoError(t, typed.Put("foo", "bar"))
	require.NoError(t, typed.Put("empty", ""))

	v, ok, err := typed.Get("foo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bar", v)

	// empty payloads read back as absent
	_, ok, err = typed.Get("empty")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, db.Has("empty"))

	_, ok, err = typed.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, db.Close())

	db = openRecovered(t, dir)
	defer db.Close()
	v, ok, err = NewTyped[string](db, StringSerializer{}).Get("foo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bar", v)
}

func TestTypedMsgpack(t *testing.T) {
	db := openRecovered(t, t.TempDir())
	defer db.Close()

	typed := NewTyped[trade](db, MsgpackSerializer[trade]{})
	want := trade{Symbol: "AAPL", Price: 187.25, Size: 300, Tags: []string{"odd-lot"}}
	require.NoError(t, typed.Put("t1", want))

	got, ok, err := typed.Get("t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, typed.Delete("t1"))
	_, ok, err = typed.Get("t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTypedZstd(t *testing.T) {
	db := openRecovered(t, t.TempDir())
	defer db.Close()

	zs, err := NewZstdSerializer[string](StringSerializer{})
	require.NoError(t, err)
	defer zs.Close()

	typed := NewTyped[string](db, zs)
	value := strings.Repeat("compressible ", 1000)
	require.NoError(t, typed.Put("k", value))

	raw, err := db.Get("k")
	require.NoError(t, err)
	assert.Less(t, len(raw), len(value))

	got, ok, err := typed.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, value, got)

	require.NoError(t, typed.Put("empty", ""))
	_, ok, err = typed.Get("empty")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Put("garbage", []byte("not zstd")))
	_, _, err = typed.Get("garbage")
	assert.Error(t, err)
}
