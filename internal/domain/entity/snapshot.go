package entity

import (
	"bytes"
	"encoding/json"
)

// Snapshot is the full current value at a path of the data channel
type Snapshot struct {
	Path  string
	Value json.RawMessage
}

// Exists reports whether the path holds a value
func (s Snapshot) Exists() bool {
	v := bytes.TrimSpace(s.Value)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// Decode unmarshals the value into v. A missing value leaves v untouched.
func (s Snapshot) Decode(v any) error {
	if !s.Exists() {
		return nil
	}
	return json.Unmarshal(s.Value, v)
}

// Bool decodes a boolean snapshot such as the connectivity flag
func (s Snapshot) Bool() bool {
	var b bool
	if err := s.Decode(&b); err != nil {
		return false
	}
	return b
}
