// Package record holds the output record built for each input row.
package record

import (
	"bytes"

	"github.com/segmentio/encoding/json"
)

// Record is an insertion-ordered key/value builder. Set on an existing key
// replaces the value and keeps the key's original position, so the last
// write per key wins.
type Record struct {
	keys []string
	vals map[string]any
}

// New returns an empty record sized for n keys.
func New(n int) *Record {
	return &Record{keys: make([]string, 0, n), vals: make(map[string]any, n)}
}

// Set assigns v to key.
func (r *Record) Set(key string, v any) {
	if r.vals == nil {
		r.vals = make(map[string]any)
	}
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string { return append([]string(nil), r.keys...) }

// Len returns the number of keys.
func (r *Record) Len() int { return len(r.keys) }

// Map returns a copy of the record as a plain map.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.keys))
	for k, v := range r.vals {
		m[k] = v
	}
	return m
}

// Values returns the values for keys, in that order. Missing keys yield nil.
func (r *Record) Values(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = r.vals[k]
	}
	return out
}

// MarshalJSON encodes the record as an object with keys in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
