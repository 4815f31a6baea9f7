package kms

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ruteri/pod-mint-service/cryptoutils"
	"golang.org/x/crypto/hkdf"
)

// signerKeyInfo is the HKDF info string for stretching non-standard seeds.
const signerKeyInfo = "pod-mint signer key v1"

// Keyring resolves template signer keys. Templates either use the server
// default key or carry their own encoded seed.
type Keyring struct {
	defaultSigner *cryptoutils.Signer

	mu        sync.RWMutex
	overrides map[string]*cryptoutils.Signer
}

// NewKeyring creates a keyring whose default key is derived from seed.
// Seeds that are not exactly 32 bytes are stretched with HKDF-SHA256 and
// must be at least 16 bytes long.
func NewKeyring(seed []byte) (*Keyring, error) {
	signer, err := signerFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid default signer key: %w", err)
	}

	return &Keyring{
		defaultSigner: signer,
		overrides:     make(map[string]*cryptoutils.Signer),
	}, nil
}

// NewKeyringFromEncoded creates a keyring from a hex or base64 encoded seed.
func NewKeyringFromEncoded(encoded string) (*Keyring, error) {
	seed, err := cryptoutils.DecodeSeed(encoded)
	if err != nil {
		return nil, err
	}
	return NewKeyring(seed)
}

// Default returns the server-wide signer.
func (k *Keyring) Default() *cryptoutils.Signer {
	return k.defaultSigner
}

// Resolve returns the signer for an encoded override seed, or the default
// signer when override is empty. Parsed overrides are cached.
func (k *Keyring) Resolve(override string) (*cryptoutils.Signer, error) {
	if override == "" {
		return k.defaultSigner, nil
	}

	k.mu.RLock()
	signer, ok := k.overrides[override]
	k.mu.RUnlock()
	if ok {
		return signer, nil
	}

	seed, err := cryptoutils.DecodeSeed(override)
	if err != nil {
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}
	signer, err = signerFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}

	k.mu.Lock()
	k.overrides[override] = signer
	k.mu.Unlock()

	return signer, nil
}

func signerFromSeed(seed []byte) (*cryptoutils.Signer, error) {
	if len(seed) == cryptoutils.SeedSize {
		return cryptoutils.NewSignerFromSeed(seed)
	}
	if len(seed) < 16 {
		return nil, errors.New("seed must be at least 16 bytes")
	}

	stretched := make([]byte, cryptoutils.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(signerKeyInfo)), stretched); err != nil {
		return nil, fmt.Errorf("failed to stretch seed: %w", err)
	}
	defer wipeBytes(stretched)

	return cryptoutils.NewSignerFromSeed(stretched)
}

// wipeBytes zeroes a byte slice holding key material.
func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
