// Package signing defines the signing-service contract the dispatcher
// hands approved payloads to, plus an in-memory implementation that
// derives per-address ed25519 keys from a master seed. Key storage,
// encryption, and biometric unlock live behind this interface in the
// real wallet.
package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// Signer produces signed bytes for an authorized account, or a typed
// failure.
type Signer interface {
	SignTransaction(ctx context.Context, address string, rawTx []byte) ([]byte, error)
	SignMessage(ctx context.Context, address string, message []byte) ([]byte, error)
}

// Error is the typed failure a signing backend returns.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	// ErrCodeUnknownAddress means the backend holds no key material
	// for the requested address.
	ErrCodeUnknownAddress = "SIGNING/UNKNOWN_ADDRESS"
	// ErrCodeBackend covers key-store and device failures.
	ErrCodeBackend = "SIGNING/BACKEND_FAILURE"
)

// MemorySigner derives one ed25519 key per address from a master seed
// using HKDF-SHA256, keyed by the address string. It exists for tests
// and the demo daemon; production wallets plug an encrypted key store
// behind the Signer interface instead.
type MemorySigner struct {
	mu   sync.Mutex
	seed []byte
	keys map[string]ed25519.PrivateKey
}

// NewMemorySigner builds a signer over a 32-byte master seed.
func NewMemorySigner(seed []byte) (*MemorySigner, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("master seed must be at least 32 bytes, got %d", len(seed))
	}
	return &MemorySigner{
		seed: append([]byte(nil), seed...),
		keys: make(map[string]ed25519.PrivateKey),
	}, nil
}

// DeriveAddress derives the address for a label, registering its key.
// The address encodes the public key, so signatures verify against it.
func (m *MemorySigner) DeriveAddress(label string) (string, error) {
	key, err := m.deriveKey(label)
	if err != nil {
		return "", err
	}
	pub := key.Public().(ed25519.PublicKey)
	address := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(pub)

	m.mu.Lock()
	m.keys[address] = key
	m.mu.Unlock()
	return address, nil
}

func (m *MemorySigner) deriveKey(label string) (ed25519.PrivateKey, error) {
	r := hkdf.New(sha256.New, m.seed, nil, []byte("aegis/account/"+label))
	var keySeed [ed25519.SeedSize]byte
	if _, err := io.ReadFull(r, keySeed[:]); err != nil {
		return nil, &Error{Code: ErrCodeBackend, Message: fmt.Sprintf("derive key for %s: %v", label, err)}
	}
	return ed25519.NewKeyFromSeed(keySeed[:]), nil
}

func (m *MemorySigner) lookup(address string) (ed25519.PrivateKey, error) {
	m.mu.Lock()
	key, ok := m.keys[address]
	m.mu.Unlock()
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownAddress, Message: fmt.Sprintf("no key for address %s", address)}
	}
	return key, nil
}

func (m *MemorySigner) SignTransaction(_ context.Context, address string, rawTx []byte) ([]byte, error) {
	key, err := m.lookup(address)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(key, rawTx), nil
}

func (m *MemorySigner) SignMessage(_ context.Context, address string, message []byte) ([]byte, error) {
	key, err := m.lookup(address)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(key, message), nil
}

// PublicKey returns the verification key for a derived address.
func (m *MemorySigner) PublicKey(address string) (ed25519.PublicKey, error) {
	key, err := m.lookup(address)
	if err != nil {
		return nil, err
	}
	return key.Public().(ed25519.PublicKey), nil
}
