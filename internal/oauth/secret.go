package oauth

// Secret wraps a client secret so it cannot be logged or serialized by
// accident. Only Value exposes the real content.
//
//	s := oauth.NewSecret("shh")
//	fmt.Println(s)  // prints: [REDACTED]
type Secret struct {
	value string
}

// NewSecret creates a new Secret wrapping the given value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Value returns the actual secret. Never log the result.
func (s Secret) Value() string {
	return s.value
}

// IsEmpty returns true if no secret is configured.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "oauth.Secret{[REDACTED]}"
}

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
