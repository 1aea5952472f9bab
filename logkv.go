package logkv

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Open opens the log file in dir, creating both if needed. The index starts
// empty; call Recover (or pass RecoverOnOpen) before serving reads.
func Open(dir string, opts ...ConfOption) (*Engine, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ioErr("create directory", err)
	}

	log, err := openLogFile(filepath.Join(dir, config.FileName), config.ChunkSize, config.MaxKeySize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		directory: dir,
		log:       log,
		index:     make(map[string]int64),
		config:    config,
		openSize:  log.length(),
	}

	if config.RecoverOnOpen {
		if _, err := e.Recover(); err != nil {
			log.close()
			return nil, fmt.Errorf("failed to recover: %w", err)
		}
	}
	return e, nil
}

// Recover replays the log into the index. A torn or corrupt tail ends the
// replay without an error; everything before it stands.
func (e *Engine) Recover() (RecoveryStats, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return RecoveryStats{}, ErrClosed
	}

	logger := e.config.Logger
	stats, err := recoverIndex(e.log.getPath(), e.index, e.config.MaxKeySize, e.config.MaxChunkSize)
	if err != nil {
		return stats, err
	}

	if stats.Corrupt {
		logger.Warn("recovery stopped at unreadable record",
			zap.String("path", e.log.getPath()),
			zap.Int64("offset", stats.End),
			zap.Int64("size", stats.Size),
			zap.String("reason", stats.Reason))

		switch {
		case !e.config.TruncateCorruptTail:
			logger.Warn("keeping corrupt tail, records appended after it will not be recovered")
		case e.log.length() != e.openSize:
			logger.Warn("log was appended to before recovery, not truncating",
				zap.Int64("openSize", e.openSize),
				zap.Int64("size", e.log.length()))
		default:
			if err := e.log.truncate(stats.End); err != nil {
				return stats, err
			}
			e.openSize = stats.End
			stats.Truncated = true
			logger.Warn("truncated corrupt tail",
				zap.Int64("offset", stats.End),
				zap.Int64("dropped", stats.Size-stats.End))
		}
	}

	logger.Info("recovered index",
		zap.String("path", e.log.getPath()),
		zap.Int("records", stats.Records),
		zap.Int("tombstones", stats.Tombstones),
		zap.Int("live", stats.Live),
		zap.Int64("end", stats.End))
	return stats, nil
}

// Put stores value under key, replacing any previous value.
func (e *Engine) Put(key string, value []byte) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.put(key, value)
}

func (e *Engine) put(key string, value []byte) error {
	if e.closed {
		return ErrClosed
	}
	if err := e.checkKey(key); err != nil {
		return err
	}
	if len(value) > math.MaxInt32 {
		return fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(value))
	}

	offset, err := e.log.append(key, value)
	if err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}
	e.index[key] = offset
	return nil
}

// PutStream stores the contents of src under key. src is read until EOF in
// chunks, so its total length does not need to be known or fit in memory.
func (e *Engine) PutStream(key string, src io.Reader) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return ErrClosed
	}
	if err := e.checkKey(key); err != nil {
		return err
	}

	offset, err := e.log.appendStream(key, src)
	if err != nil {
		return fmt.Errorf("failed to put stream for key %s: %w", key, err)
	}
	e.index[key] = offset
	return nil
}

// Delete writes a tombstone for key. Deleting a missing key is not an error.
func (e *Engine) Delete(key string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return ErrClosed
	}
	if err := e.checkKey(key); err != nil {
		return err
	}

	if _, err := e.log.appendDelete(key); err != nil {
		return fmt.Errorf("failed to write tombstone: %w", err)
	}
	delete(e.index, key)
	return nil
}

// Get returns the value stored under key, or nil if there is none.
func (e *Engine) Get(key string) ([]byte, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.get(key)
}

func (e *Engine) get(key string) ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}
	offset, ok := e.index[key]
	if !ok {
		return nil, nil
	}
	_, value, err := e.log.readAt(offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

// GetStream returns a reader over the value stored under key, or nil if
// there is none. The caller must Close the reader.
func (e *Engine) GetStream(key string) (*ValueReader, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	offset, ok := e.index[key]
	if !ok {
		return nil, nil
	}
	vr, err := e.log.readStreamAt(offset)
	if err != nil {
		return nil, fmt.Errorf("failed to stream key %s: %w", key, err)
	}
	return vr, nil
}

// Has reports whether key has a live value. It reports false once the
// engine is closed.
func (e *Engine) Has(key string) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	_, ok := e.index[key]
	return ok
}

// Len returns the number of live keys, or 0 once the engine is closed.
func (e *Engine) Len() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return len(e.index)
}

// IndexSnapshot returns a copy of the key to record offset index.
func (e *Engine) IndexSnapshot() (map[string]int64, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	snapshot := make(map[string]int64, len(e.index))
	for k, off := range e.index {
		snapshot[k] = off
	}
	return snapshot, nil
}

// BatchPut inserts multiple key-value pairs, in key order.
func (e *Engine) BatchPut(pairs map[string][]byte) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := e.put(key, pairs[key]); err != nil {
			return err
		}
	}
	return nil
}

// BatchGet retrieves multiple keys. Missing keys are left out of the result.
func (e *Engine) BatchGet(keys []string) (map[string][]byte, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	result := make(map[string][]byte)
	for _, key := range keys {
		value, err := e.get(key)
		if err != nil {
			return nil, err
		}
		if value != nil {
			result[key] = value
		}
	}
	return result, nil
}

// Backup copies the log file to dst. The copy can be opened and recovered
// like the original.
func (e *Engine) Backup(dst string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return ErrClosed
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return ioErr("create backup directory", err)
	}
	if err := copyFile(e.log.getPath(), dst); err != nil {
		return ioErr("copy log file", err)
	}
	return nil
}

// Path returns the path of the log file.
func (e *Engine) Path() string {
	return e.log.getPath()
}

// Close closes the log file. Streams returned by GetStream stay readable
// until they are closed themselves.
func (e *Engine) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.closed = true
	e.index = nil

	if err := e.log.close(); err != nil {
		return err
	}
	e.config.Logger.Debug("closed engine", zap.String("path", e.log.getPath()))
	return nil
}

func (e *Engine) checkKey(key string) error {
	if len(key) > e.config.MaxKeySize {
		return fmt.Errorf("%w: %d bytes", ErrKeyTooLarge, len(key))
	}
	return nil
}
