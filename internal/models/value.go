package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tags the JSON type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is an opaque JSON document received from the Workzone backend.
// It keeps the raw bytes so payloads pass through without a schema.
// The zero Value is JSON null.
type Value struct {
	raw json.RawMessage
}

// NewValue marshals v into a Value.
func NewValue(v any) (Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("marshal value: %w", err)
	}
	return Value{raw: b}, nil
}

// ParseValue validates b as JSON. Empty input is treated as null.
func ParseValue(b []byte) (Value, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return Value{}, nil
	}
	if !json.Valid(trimmed) {
		return Value{}, fmt.Errorf("invalid JSON document")
	}
	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	return Value{raw: raw}, nil
}

func (v Value) Kind() Kind {
	if len(v.raw) == 0 {
		return KindNull
	}
	switch v.raw[0] {
	case 'n':
		return KindNull
	case 't', 'f':
		return KindBool
	case '"':
		return KindString
	case '[':
		return KindArray
	case '{':
		return KindObject
	default:
		return KindNumber
	}
}

func (v Value) IsNull() bool { return v.Kind() == KindNull }

// Raw returns the underlying JSON bytes ("null" for the zero Value).
func (v Value) Raw() json.RawMessage {
	if len(v.raw) == 0 {
		return json.RawMessage("null")
	}
	return v.raw
}

// String returns the compact JSON text of the value.
func (v Value) String() string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v.Raw()); err != nil {
		return string(v.Raw())
	}
	return buf.String()
}

func (v Value) MarshalJSON() ([]byte, error) {
	return v.Raw(), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	parsed, err := ParseValue(b)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Field looks up key in an object value. An exact match wins, otherwise
// keys are compared case-insensitively.
func (v Value) Field(key string) (Value, bool) {
	if v.Kind() != KindObject {
		return Value{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(v.raw, &fields); err != nil {
		return Value{}, false
	}
	if raw, ok := fields[key]; ok {
		return Value{raw: raw}, true
	}
	for k, raw := range fields {
		if strings.EqualFold(k, key) {
			return Value{raw: raw}, true
		}
	}
	return Value{}, false
}

// Elements returns the items of an array value. Null yields no items.
func (v Value) Elements() ([]Value, error) {
	switch v.Kind() {
	case KindNull:
		return []Value{}, nil
	case KindArray:
	default:
		return nil, fmt.Errorf("expected JSON array, got %s", v.Kind())
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v.raw, &items); err != nil {
		return nil, err
	}
	out := make([]Value, 0, len(items))
	for _, item := range items {
		out = append(out, Value{raw: item})
	}
	return out, nil
}

// Text renders a scalar as plain text: strings are unquoted, numbers and
// booleans keep their JSON spelling. Null, arrays and objects report false.
func (v Value) Text() (string, bool) {
	switch v.Kind() {
	case KindString:
		var s string
		if err := json.Unmarshal(v.raw, &s); err != nil {
			return "", false
		}
		return s, true
	case KindNumber, KindBool:
		return string(v.raw), true
	default:
		return "", false
	}
}
