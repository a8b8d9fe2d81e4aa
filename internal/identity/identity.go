package identity

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Size is the length of an identity address in bytes.
const Size = 20

// Identity is an opaque, comparable principal address. The zero value is the
// null identity and is never a valid role member, permission subject, or
// balance holder.
type Identity [Size]byte

// Zero is the null identity.
var Zero Identity

// Parse decodes a 0x-prefixed hex address.
func Parse(s string) (Identity, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(trimmed) != Size*2 {
		return Zero, fmt.Errorf("identity: invalid length %d", len(trimmed))
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Zero, fmt.Errorf("identity: decode %q: %w", s, err)
	}
	var id Identity
	copy(id[:], raw)
	return id, nil
}

// MustParse is Parse for literals in tests and seeds; it panics on error.
func MustParse(s string) Identity {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether the identity is the null identity.
func (id Identity) IsZero() bool {
	return id == Zero
}

// String renders the identity as lowercase 0x-prefixed hex.
func (id Identity) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
