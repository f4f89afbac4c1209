package sensitivity

import "github.com/goccy/go-json"

// Secret is a string that never prints its contents. Renderers show it as the
// redacted placeholder regardless of directives.
type Secret string

// String returns "[REDACTED]" for non-empty secrets.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return DefaultRedaction
}

// GoString implements fmt.GoStringer so %#v does not leak the value.
func (s Secret) GoString() string {
	return s.String()
}

// MarshalJSON encodes the redacted form.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// MarshalText encodes the redacted form.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Value returns the underlying secret. Use only where the value is needed.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether the secret holds a value.
func (s Secret) IsSet() bool {
	return s != ""
}
