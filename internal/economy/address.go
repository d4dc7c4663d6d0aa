package economy

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Address identifies an account by its base58-encoded 32-byte key.
type Address string

// ParseAddress validates and normalizes a base58 account key.
func ParseAddress(s string) (Address, error) {
	if len(s) < 32 || len(s) > 44 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: %q decodes to %d bytes, want 32", ErrInvalidAddress, s, len(raw))
	}
	return Address(s), nil
}

// AddressFromBytes encodes a 32-byte key as an address.
func AddressFromBytes(raw []byte) (Address, error) {
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: key is %d bytes, want 32", ErrInvalidAddress, len(raw))
	}
	return Address(base58.Encode(raw)), nil
}

func (a Address) String() string {
	return string(a)
}
