package logkv

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// logFile is the append-only log. All appends are fsynced before they
// return, so a returned offset always names a durable record.
type logFile struct {
	path       string
	file       *os.File
	size       int64
	chunkSize  int
	maxKeySize int
	mu         sync.Mutex
}

func openLogFile(path string, chunkSize, maxKeySize int) (*logFile, error) {
	// no O_APPEND: records are placed with WriteAt at l.size
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ioErr("open log file", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ioErr("stat log file", err)
	}
	return &logFile{
		path:       path,
		file:       file,
		size:       info.Size(),
		chunkSize:  chunkSize,
		maxKeySize: maxKeySize,
	}, nil
}

// append writes a fixed record and returns its offset.
func (l *logFile) append(key string, value []byte) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := make([]byte, 0, headerSize(key)+len(value))
	buf = appendHeader(buf, key, int32(len(value)))
	buf = append(buf, value...)
	return l.commit(buf)
}

// appendDelete writes a tombstone record and returns its offset.
func (l *logFile) appendDelete(key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.commit(appendHeader(nil, key, markerTombstone))
}

func (l *logFile) commit(buf []byte) (int64, error) {
	offset := l.size
	if _, err := l.file.WriteAt(buf, offset); err != nil {
		return 0, l.discard(offset, ioErr("write record", err))
	}
	if err := l.file.Sync(); err != nil {
		return 0, l.discard(offset, ioErr("sync file", err))
	}
	l.size += int64(len(buf))
	return offset, nil
}

// discard cuts the file back to offset after a failed append, leaving no
// partial record behind, and returns cause.
func (l *logFile) discard(offset int64, cause error) error {
	if err := l.file.Truncate(offset); err != nil {
		return fmt.Errorf("%w (%w)", cause, ioErr("discard partial record", err))
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w (%w)", cause, ioErr("sync file", err))
	}
	return cause
}

// appendStream writes a chunked record, reading src one chunk at a time
// until it is exhausted. Only the chunk buffer is held in memory. On any
// failure the file is cut back to where the record started.
func (l *logFile) appendStream(key string, src io.Reader) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	offset := l.size
	if err := l.writeStream(offset, key, src); err != nil {
		return 0, l.discard(offset, err)
	}
	return offset, nil
}

func (l *logFile) writeStream(offset int64, key string, src io.Reader) error {
	w := bufio.NewWriterSize(io.NewOffsetWriter(l.file, offset), lenSize+l.chunkSize)
	written := int64(0)
	write := func(p []byte) error {
		n, err := w.Write(p)
		written += int64(n)
		if err != nil {
			return ioErr("write record", err)
		}
		return nil
	}

	if err := write(appendHeader(nil, key, markerChunked)); err != nil {
		return err
	}

	chunk := make([]byte, l.chunkSize)
	var lenBuf [lenSize]byte
	for {
		n, rerr := io.ReadFull(src, chunk)
		if n > 0 {
			if err := write(appendInt32(lenBuf[:0], int32(n))); err != nil {
				return err
			}
			if err := write(chunk[:n]); err != nil {
				return err
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("failed to read stream source: %w", rerr)
		}
	}
	if err := write(appendInt32(lenBuf[:0], 0)); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return ioErr("flush record", err)
	}
	if err := l.file.Sync(); err != nil {
		return ioErr("sync file", err)
	}
	l.size += written
	return nil
}

// readAt decodes the record at offset and materializes its value. The value
// is nil for a tombstone.
func (l *logFile) readAt(offset int64) (string, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if offset < 0 || offset >= l.size {
		return "", nil, fmt.Errorf("%w: offset %d outside log of size %d", ErrMalformedRecord, offset, l.size)
	}
	r := bufio.NewReader(io.NewSectionReader(l.file, offset, l.size-offset))
	h, err := readHeader(r, l.maxKeySize)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read record at %d: %w", offset, err)
	}

	switch h.kind {
	case kindFixed:
		value := make([]byte, h.valueLen)
		if _, err := io.ReadFull(r, value); err != nil {
			return "", nil, readErr("value", err)
		}
		return h.key, value, nil
	case kindChunked:
		var buf bytes.Buffer
		for {
			chunkLen, err := readInt32(r)
			if err != nil {
				return "", nil, readErr("chunk length", err)
			}
			if chunkLen < 0 {
				return "", nil, fmt.Errorf("%w: chunk length %d at record %d", ErrMalformedRecord, chunkLen, offset)
			}
			if chunkLen == 0 {
				break
			}
			if _, err := io.CopyN(&buf, r, int64(chunkLen)); err != nil {
				return "", nil, readErr("chunk", err)
			}
		}
		value := buf.Bytes()
		if value == nil {
			value = []byte{}
		}
		return h.key, value, nil
	}
	return h.key, nil, nil
}

// readStreamAt returns a reader over the value of the record at offset. The
// reader owns its own file handle. It returns nil for a tombstone.
func (l *logFile) readStreamAt(offset int64) (*ValueReader, error) {
	l.mu.Lock()
	size := l.size
	l.mu.Unlock()

	if offset < 0 || offset >= size {
		return nil, fmt.Errorf("%w: offset %d outside log of size %d", ErrMalformedRecord, offset, size)
	}
	file, err := os.Open(l.path)
	if err != nil {
		return nil, ioErr("open log file for streaming", err)
	}
	r := bufio.NewReaderSize(io.NewSectionReader(file, offset, size-offset), l.chunkSize)
	h, err := readHeader(r, l.maxKeySize)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read record at %d: %w", offset, err)
	}
	if h.kind == kindTombstone {
		file.Close()
		return nil, nil
	}
	return newValueReader(file, r, h), nil
}

func (l *logFile) length() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *logFile) getPath() string {
	return l.path
}

// truncate cuts the file back to size and moves the append position there.
func (l *logFile) truncate(size int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Truncate(size); err != nil {
		return ioErr("truncate log file", err)
	}
	if err := l.file.Sync(); err != nil {
		return ioErr("sync file", err)
	}
	l.size = size
	return nil
}

func (l *logFile) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return ioErr("close log file", err)
	}
	return nil
}

// mappedFile is a read-only mapping of a whole file.
type mappedFile struct {
	data []byte
	file *os.File
}

// mmapFile maps path read-only. An empty file yields empty data.
func mmapFile(path string) (*mappedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &mappedFile{data: []byte{}, file: file}, nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &mappedFile{data: data, file: file}, nil
}

func (mf *mappedFile) close() error {
	if len(mf.data) > 0 {
		if err := unix.Munmap(mf.data); err != nil {
			mf.file.Close()
			return err
		}
	}
	mf.data = nil
	return mf.file.Close()
}

// copyFile copies src to dst and syncs dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err = io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}
