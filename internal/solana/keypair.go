package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
)

// Keypair is an ed25519 signing key.
type Keypair struct {
	private ed25519.PrivateKey
}

// NewKeypair wraps a 64-byte ed25519 private key.
func NewKeypair(private []byte) (*Keypair, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair: expected %d bytes, got %d", ed25519.PrivateKeySize, len(private))
	}
	return &Keypair{private: ed25519.PrivateKey(append([]byte(nil), private...))}, nil
}

// GenerateKeypair creates a random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{private: private}, nil
}

// LoadKeypair reads a keypair file in the solana-keygen JSON format (array of 64 byte values).
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}

	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("parse keypair %s: byte %d out of range", path, i)
		}
		raw[i] = byte(v)
	}
	return NewKeypair(raw)
}

// PublicKey returns the public half.
func (k *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.private.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs message.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}
