// Package jsonx holds the order-preserving JSON object used by every
// artifact the pipeline rewrites in place.
package jsonx

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Object is a JSON object that remembers its key order.
type Object struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]json.RawMessage)}
}

// Keys returns the keys in document order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

// Get returns the raw value stored under key.
func (o *Object) Get(key string) (json.RawMessage, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Clone returns a copy that can be changed without touching o. Values are
// shared; callers never modify a stored value in place.
func (o *Object) Clone() *Object {
	c := &Object{keys: append([]string(nil), o.keys...), values: make(map[string]json.RawMessage, len(o.values))}
	for k, v := range o.values {
		c.values[k] = v
	}
	return c
}

// Set stores raw under key. New keys are appended; existing keys keep their
// position.
func (o *Object) Set(key string, raw json.RawMessage) {
	if o.values == nil {
		o.values = make(map[string]json.RawMessage)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = raw
}

// SetValue encodes v and stores it under key.
func (o *Object) SetValue(key string, v any) error {
	b, err := Marshal(v)
	if err != nil {
		return err
	}
	o.Set(key, b)
	return nil
}

// UnmarshalJSON decodes a JSON object, keeping key order. A repeated key
// keeps its first position and its last value.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "jsonx: read object")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return eris.New("jsonx: expected JSON object")
	}

	o.keys = nil
	o.values = make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "jsonx: read key")
		}
		key, ok := tok.(string)
		if !ok {
			return eris.New("jsonx: expected object key")
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return eris.Wrapf(err, "jsonx: read value of %q", key)
		}
		o.Set(key, v)
	}
	return nil
}

// MarshalJSON encodes the object in key order. Missing values encode as null.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		v := o.values[k]
		if len(v) == 0 {
			v = json.RawMessage("null")
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Marshal encodes v without escaping <, > and &.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, eris.Wrap(err, "jsonx: marshal")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// IsEmpty reports whether raw is absent, null or the empty string.
func IsEmpty(raw json.RawMessage) bool {
	s := string(bytes.TrimSpace(raw))
	return s == "" || s == "null" || s == `""`
}
