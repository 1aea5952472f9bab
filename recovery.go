package logkv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
)

// recordScanner walks the records of a mapped log. It never reads past the
// mapping, so a torn or garbled tail shows up as errCorrupted.
type recordScanner struct {
	data         []byte
	pos          int64
	maxKeySize   int
	maxChunkSize int
}

func (s *recordScanner) readInt32() (int32, error) {
	if s.pos+lenSize > int64(len(s.data)) {
		return 0, fmt.Errorf("%w: length field cut off at %d", errCorrupted, s.pos)
	}
	v := int32(binary.BigEndian.Uint32(s.data[s.pos:]))
	s.pos += lenSize
	return v, nil
}

func (s *recordScanner) skip(n int64) error {
	if s.pos+n > int64(len(s.data)) {
		return fmt.Errorf("%w: %d bytes at %d run past end of file", errCorrupted, n, s.pos)
	}
	s.pos += n
	return nil
}

// next decodes the record at s.pos and leaves s.pos at the following one.
func (s *recordScanner) next() (string, recordKind, error) {
	keyLen, err := s.readInt32()
	if err != nil {
		return "", 0, err
	}
	if keyLen < 0 || int(keyLen) > s.maxKeySize {
		return "", 0, fmt.Errorf("%w: key length %d", errCorrupted, keyLen)
	}
	keyStart := s.pos
	if err := s.skip(int64(keyLen)); err != nil {
		return "", 0, err
	}
	key := string(s.data[keyStart:s.pos])

	marker, err := s.readInt32()
	if err != nil {
		return "", 0, err
	}
	kind, err := kindOf(marker)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", errCorrupted, err)
	}

	switch kind {
	case kindFixed:
		if err := s.skip(int64(marker)); err != nil {
			return "", 0, err
		}
	case kindChunked:
		for {
			chunkLen, err := s.readInt32()
			if err != nil {
				return "", 0, err
			}
			if chunkLen < 0 || int(chunkLen) > s.maxChunkSize {
				return "", 0, fmt.Errorf("%w: chunk length %d", errCorrupted, chunkLen)
			}
			if chunkLen == 0 {
				break
			}
			if err := s.skip(int64(chunkLen)); err != nil {
				return "", 0, err
			}
		}
	}
	return key, kind, nil
}

// recoverIndex replays the log at path into index. It stops quietly at the
// first record it cannot fully decode; only failures to open or map the file
// are returned. The file is never modified.
func recoverIndex(path string, index map[string]int64, maxKeySize, maxChunkSize int) (RecoveryStats, error) {
	mf, err := mmapFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RecoveryStats{Live: len(index)}, nil
		}
		return RecoveryStats{}, ioErr("map log file", err)
	}
	defer mf.close()

	s := &recordScanner{
		data:         mf.data,
		maxKeySize:   maxKeySize,
		maxChunkSize: maxChunkSize,
	}
	stats := RecoveryStats{Size: int64(len(mf.data))}
	for s.pos < stats.Size {
		start := s.pos
		key, kind, err := s.next()
		if err != nil {
			s.pos = start
			stats.Corrupt = true
			stats.Reason = err.Error()
			break
		}
		if kind == kindTombstone {
			delete(index, key)
			stats.Tombstones++
			continue
		}
		index[key] = start
		stats.Records++
	}
	stats.End = s.pos
	stats.Live = len(index)
	return stats, nil
}
