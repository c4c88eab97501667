package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for human-readable config values ("30s",
// "5m"). Negative durations are rejected at parse time.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration must not be negative: %q", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// redacted replaces secret values anywhere one could leak into output.
const redacted = "[REDACTED]"

// Secret wraps a sensitive string (API keys, tokens). Its String, GoString,
// and marshal methods all redact, so secrets never reach logs, error
// messages, or serialized config dumps. Use Value to read the secret at the
// call site that actually needs it.
type Secret string

// String implements fmt.Stringer, redacting the value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer, redacting the value in %#v output.
func (s Secret) GoString() string {
	return s.String()
}

// Value returns the underlying secret.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a non-empty secret is present.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalText implements encoding.TextMarshaler, redacting the value.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MarshalJSON implements json.Marshaler, redacting the value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
