// Package secret provides an opaque string for credentials.
//
// A Value prints, logs and marshals as a mask. The only way to get the
// plain text back is Reveal, so every place that needs the password says so.
package secret

import (
	"encoding/json"
	"log/slog"
)

// Mask is what a non-empty Value looks like on every output path. Clients send
// it back unchanged to mean "keep the stored value".
const Mask = "***"

// Value holds a secret string.
type Value struct {
	plain string
}

// New wraps s.
func New(s string) Value {
	return Value{plain: s}
}

// Reveal returns the plain text.
func (v Value) Reveal() string {
	return v.plain
}

// IsZero reports whether the secret is empty.
func (v Value) IsZero() bool {
	return v.plain == ""
}

// IsMask reports whether s is empty or the mask, i.e. not a new secret.
func IsMask(s string) bool {
	return s == "" || s == Mask
}

func (v Value) String() string {
	if v.plain == "" {
		return ""
	}
	return Mask
}

func (v Value) GoString() string {
	return `secret.Value{` + v.String() + `}`
}

// MarshalJSON always writes the mask (or "" for an empty secret).
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON accepts a plain JSON string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v.plain = s
	return nil
}

// LogValue keeps secrets out of slog output.
func (v Value) LogValue() slog.Value {
	return slog.StringValue(v.String())
}

var _ slog.LogValuer = Value{}
