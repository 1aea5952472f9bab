package logkv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// On-disk record layout, all integers big-endian int32:
//
//	keyLen | key | valueLen
//	  fixed:     valueLen >= 0, followed by valueLen bytes
//	  chunked:   valueLen == -1, followed by (chunkLen > 0, chunk)* and chunkLen == 0
//	  tombstone: valueLen == -2, nothing follows
const (
	lenSize = 4

	markerChunked   int32 = -1
	markerTombstone int32 = -2
)

type recordKind uint8

const (
	kindFixed recordKind = iota + 1
	kindChunked
	kindTombstone
)

func (k recordKind) String() string {
	switch k {
	case kindFixed:
		return "fixed"
	case kindChunked:
		return "chunked"
	case kindTombstone:
		return "tombstone"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// kindOf decodes the value length field into a record kind.
func kindOf(marker int32) (recordKind, error) {
	switch {
	case marker >= 0:
		return kindFixed, nil
	case marker == markerChunked:
		return kindChunked, nil
	case marker == markerTombstone:
		return kindTombstone, nil
	}
	return 0, fmt.Errorf("%w %d", ErrUnsupportedMarker, marker)
}

type recordHeader struct {
	key  string
	kind recordKind
	// valueLen is only meaningful for kindFixed
	valueLen int32
	// size of keyLen + key + valueLen on disk
	size int64
}

func appendInt32(buf []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(buf, uint32(v))
}

// appendHeader appends keyLen, key and the value length marker to buf.
func appendHeader(buf []byte, key string, marker int32) []byte {
	buf = appendInt32(buf, int32(len(key)))
	buf = append(buf, key...)
	return appendInt32(buf, marker)
}

func headerSize(key string) int {
	return lenSize + len(key) + lenSize
}

func readInt32(r io.Reader) (int32, error) {
	var b [lenSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// readHeader decodes a record header from r. maxKeySize bounds the key
// allocation.
func readHeader(r io.Reader, maxKeySize int) (recordHeader, error) {
	keyLen, err := readInt32(r)
	if err != nil {
		return recordHeader{}, readErr("key length", err)
	}
	if keyLen < 0 || int(keyLen) > maxKeySize {
		return recordHeader{}, fmt.Errorf("%w: key length %d", ErrMalformedRecord, keyLen)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return recordHeader{}, readErr("key", err)
	}
	marker, err := readInt32(r)
	if err != nil {
		return recordHeader{}, readErr("value length", err)
	}
	kind, err := kindOf(marker)
	if err != nil {
		return recordHeader{}, err
	}
	h := recordHeader{
		key:  string(key),
		kind: kind,
		size: int64(lenSize) + int64(keyLen) + lenSize,
	}
	if kind == kindFixed {
		h.valueLen = marker
	}
	return h, nil
}

// readErr classifies a failed read of a record that the index points at: a
// short read means the log does not hold what the index expects.
func readErr(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: short %s: %w", ErrMalformedRecord, what, err)
	}
	return ioErr("read "+what, err)
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrIOFailure, op, err)
}
