package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an ed25519 public key.
const PublicKeyLength = 32

// maxSeedLength is the per-seed limit enforced by the runtime.
const maxSeedLength = 32

// ErrNoViableBump is returned when no bump produces an off-curve address.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// PublicKey is a 32-byte account address.
type PublicKey [PublicKeyLength]byte

// SystemProgramID is the native system program.
var SystemProgramID = PublicKey{}

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode public key %q: %w", s, err)
	}
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("public key %q: expected %d bytes, got %d", s, PublicKeyLength, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPublicKey is ParsePublicKey for constants. Panics on invalid input.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 encoding.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsZero reports whether pk is all zeroes.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// MarshalText implements encoding.TextMarshaler.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// CreateProgramAddress derives an address from seeds and program.
// The result must lie off the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	data := make([]byte, 0, 64)
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, fmt.Errorf("seed length %d exceeds %d", len(seed), maxSeedLength)
		}
		data = append(data, seed...)
	}
	data = append(data, program[:]...)
	data = append(data, []byte("ProgramDerivedAddress")...)

	hash := sha256.Sum256(data)
	if isOnCurve(hash[:]) {
		return PublicKey{}, errors.New("derived address is on curve")
	}
	return PublicKey(hash), nil
}

// FindProgramAddress searches bump seeds from 255 down for the first off-curve address.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump > 0; bump-- {
		withBump := append(append([][]byte{}, seeds...), []byte{byte(bump)})
		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
