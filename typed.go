package logkv

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Serializer converts values of type T to and from stored bytes.
type Serializer[T any] interface {
	Serialize(v T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

// Typed stores values of type T in an Engine through a Serializer.
//
// An empty serialized value reads back as absent, so a Serializer should not
// encode a meaningful value as zero bytes.
type Typed[T any] struct {
	engine     *Engine
	serializer Serializer[T]
}

func NewTyped[T any](engine *Engine, serializer Serializer[T]) *Typed[T] {
	return &Typed[T]{engine: engine, serializer: serializer}
}

func (t *Typed[T]) Put(key string, v T) error {
	data, err := t.serializer.Serialize(v)
	if err != nil {
		return fmt.Errorf("failed to serialize value for key %s: %w", key, err)
	}
	if data == nil {
		data = []byte{}
	}
	return t.engine.Put(key, data)
}

// Get returns the value for key and whether it was present.
func (t *Typed[T]) Get(key string) (T, bool, error) {
	var zero T
	data, err := t.engine.Get(key)
	if err != nil {
		return zero, false, err
	}
	if len(data) == 0 {
		return zero, false, nil
	}
	v, err := t.serializer.Deserialize(data)
	if err != nil {
		return zero, false, fmt.Errorf("failed to deserialize value for key %s: %w", key, err)
	}
	return v, true, nil
}

func (t *Typed[T]) Delete(key string) error {
	return t.engine.Delete(key)
}

// StringSerializer stores strings as their UTF-8 bytes.
type StringSerializer struct{}

func (StringSerializer) Serialize(v string) ([]byte, error) {
	return []byte(v), nil
}

func (StringSerializer) Deserialize(data []byte) (string, error) {
	return string(data), nil
}

// MsgpackSerializer stores values as MessagePack.
type MsgpackSerializer[T any] struct{}

func (MsgpackSerializer[T]) Serialize(v T) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackSerializer[T]) Deserialize(data []byte) (T, error) {
	var v T
	err := msgpack.Unmarshal(data, &v)
	return v, err
}

// ZstdSerializer compresses the output of another Serializer with zstd.
type ZstdSerializer[T any] struct {
	inner   Serializer[T]
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewZstdSerializer[T any](inner Serializer[T]) (*ZstdSerializer[T], error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ZstdSerializer[T]{inner: inner, encoder: encoder, decoder: decoder}, nil
}

func (s *ZstdSerializer[T]) Serialize(v T) ([]byte, error) {
	data, err := s.inner.Serialize(v)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return s.encoder.EncodeAll(data, nil), nil
}

func (s *ZstdSerializer[T]) Deserialize(data []byte) (T, error) {
	raw, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to decompress data: %w", err)
	}
	return s.inner.Deserialize(raw)
}

// Close releases the encoder and decoder.
func (s *ZstdSerializer[T]) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}
