// Package logkv is a single-file log-structured key-value store with an
// in-memory index rebuilt from the log on startup.
package logkv

import (
	"errors"
	"sync"
)

// Engine is a single-file log-structured key-value store.
//
// Two engines must never open the same log file at the same time; nothing
// enforces this and the result is undefined.
type Engine struct {
	directory string
	log       *logFile
	index     map[string]int64
	mutex     sync.Mutex
	config    *Config
	closed    bool
	// log size at open; appends move log.size past it
	openSize int64
}

// RecoveryStats describes the outcome of a Recover call.
type RecoveryStats struct {
	Records    int    // fixed and chunked records decoded
	Tombstones int    // tombstones applied
	Live       int    // keys in the index after the scan
	End        int64  // end offset of the well-formed prefix
	Size       int64  // file size seen by the scan
	Corrupt    bool   // scan stopped before Size
	Reason     string // why the scan stopped early
	Truncated  bool   // file was cut back to End
}

const (
	// DefaultFileName is the name of the log file inside the engine directory.
	DefaultFileName = "log.dat"

	// DefaultMaxKeySize is the recovery ceiling for a decoded key length.
	DefaultMaxKeySize = 10_000_000
	// DefaultMaxChunkSize is the recovery ceiling for a decoded chunk length.
	DefaultMaxChunkSize = 16 * 1024 * 1024
	// DefaultChunkSize is the buffer size used when writing chunked values.
	DefaultChunkSize = 8 * 1024
)

var (
	ErrIOFailure         = errors.New("I/O operation failed")
	ErrUnsupportedMarker = errors.New("unsupported value length marker")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrClosed            = errors.New("store is closed")
	ErrKeyTooLarge       = errors.New("key exceeds maximum size")
	ErrValueTooLarge     = errors.New("value exceeds maximum fixed size")

	// errCorrupted never leaves the recovery scanner.
	errCorrupted = errors.New("corrupted record")
)
