package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Entry is a cached value with its bookkeeping flags.
type Entry[T any] struct {
	Value      T             `json:"value"`
	Timestamp  time.Time     `json:"timestamp"`
	TTL        time.Duration `json:"ttl,omitempty"`
	Compressed bool          `json:"compressed"`
	Stale      bool          `json:"stale"`
	Refreshing bool          `json:"refreshing"`
}

// record is the persisted shape of an Entry. Value holds either the JSON of
// the value or, when Compressed, a JSON string with base64(gzip(JSON)).
type record struct {
	Value      json.RawMessage `json:"value"`
	Timestamp  time.Time       `json:"timestamp"`
	TTL        time.Duration   `json:"ttl,omitempty"`
	Compressed bool            `json:"compressed"`
	Stale      bool            `json:"stale"`
	Refreshing bool            `json:"refreshing"`
}

func encodeEntry[T any](e *Entry[T], filter func([]byte) []byte) ([]byte, error) {
	raw, err := json.Marshal(e.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	if filter != nil {
		raw = filter(raw)
	}
	if e.Compressed {
		packed, err := compress(raw)
		if err != nil {
			return nil, fmt.Errorf("compress value: %w", err)
		}
		raw, err = json.Marshal(packed)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(record{
		Value:      raw,
		Timestamp:  e.Timestamp,
		TTL:        e.TTL,
		Compressed: e.Compressed,
		Stale:      e.Stale,
		Refreshing: e.Refreshing,
	})
}

// decodeEntry parses a persisted record. A compressed value that fails to
// decompress falls back to decoding the raw stored value.
func decodeEntry[T any](data []byte) (*Entry[T], error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if rec.Timestamp.IsZero() {
		return nil, fmt.Errorf("record has no timestamp")
	}

	e := &Entry[T]{
		Timestamp:  rec.Timestamp,
		TTL:        rec.TTL,
		Compressed: rec.Compressed,
	}

	raw := []byte(rec.Value)
	if rec.Compressed {
		var packed string
		if err := json.Unmarshal(rec.Value, &packed); err == nil {
			if plain, err := decompress(packed); err == nil {
				raw = plain
			}
		}
	}
	if err := json.Unmarshal(raw, &e.Value); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return e, nil
}

func compress(plain []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(plain); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decompress(packed string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(packed)
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
