package domain

import (
	"encoding/json"
	"fmt"
)

// ChangePayload holds a JSON snapshot of the state before or after a change.
// The zero value is undefined.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// LandmarkPosition is the payload recorded when a landmark index moves.
type LandmarkPosition struct {
	Landmark string `json:"landmark"`
	Index    int    `json:"index"`
	Locked   bool   `json:"locked"`
}

// NewChangePayload wraps a copy of raw.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	return ChangePayload{defined: true, raw: cloneRaw(raw)}
}

// EncodeChangePayload marshals value into a payload.
func EncodeChangePayload[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, fmt.Errorf("encode change payload: %w", err)
	}
	return ChangePayload{defined: true, raw: raw}, nil
}

// DecodeChangePayload unmarshals p into a T.
func DecodeChangePayload[T any](p ChangePayload) (T, error) {
	var out T
	if p.IsEmpty() {
		return out, fmt.Errorf("decode change payload: empty")
	}
	if err := json.Unmarshal(p.raw, &out); err != nil {
		return out, fmt.Errorf("decode change payload: %w", err)
	}
	return out, nil
}

// Defined reports whether the payload has been set.
func (p ChangePayload) Defined() bool { return p.defined }

// IsEmpty reports whether the payload holds no bytes.
func (p ChangePayload) IsEmpty() bool { return !p.defined || len(p.raw) == 0 }

// Raw returns a copy of the JSON bytes, or nil when empty.
func (p ChangePayload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return cloneRaw(p.raw)
}

func (p ChangePayload) String() string {
	if p.IsEmpty() {
		return "<empty>"
	}
	return string(p.raw)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
