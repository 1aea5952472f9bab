package logkv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// ValueReader streams a single stored value without loading it into memory.
// It holds its own file handle, so it stays valid while the engine keeps
// writing, and it must be closed by the caller on every path.
type ValueReader struct {
	file      *os.File
	r         *bufio.Reader
	kind      recordKind
	size      int64
	remaining int64
	done      bool
	closed    bool
}

func newValueReader(file *os.File, r *bufio.Reader, h recordHeader) *ValueReader {
	vr := &ValueReader{
		file: file,
		r:    r,
		kind: h.kind,
		size: -1,
	}
	if h.kind == kindFixed {
		vr.size = int64(h.valueLen)
		vr.remaining = vr.size
	}
	return vr
}

// Size returns the value length if it is known up front, or -1 for a value
// that was written as a stream.
func (vr *ValueReader) Size() int64 {
	return vr.size
}

// Read implements io.Reader. Chunk boundaries are not visible to the caller.
func (vr *ValueReader) Read(p []byte) (int, error) {
	if vr.closed {
		return 0, ErrClosed
	}
	for !vr.done && vr.remaining == 0 {
		if vr.kind == kindFixed {
			vr.done = true
			break
		}
		if err := vr.nextChunk(); err != nil {
			return 0, err
		}
	}
	if vr.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if int64(len(p)) > vr.remaining {
		p = p[:vr.remaining]
	}
	n, err := vr.r.Read(p)
	vr.remaining -= int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, readErr("value", io.ErrUnexpectedEOF)
		}
		return n, ioErr("read value", err)
	}
	return n, nil
}

func (vr *ValueReader) nextChunk() error {
	chunkLen, err := readInt32(vr.r)
	if err != nil {
		return readErr("chunk length", err)
	}
	switch {
	case chunkLen < 0:
		return fmt.Errorf("%w: chunk length %d", ErrMalformedRecord, chunkLen)
	case chunkLen == 0:
		vr.done = true
	default:
		vr.remaining = int64(chunkLen)
	}
	return nil
}

// Close releases the file handle. Closing twice is a no-op.
func (vr *ValueReader) Close() error {
	if vr.closed {
		return nil
	}
	vr.closed = true
	if err := vr.file.Close(); err != nil {
		return ioErr("close value reader", err)
	}
	return nil
}
