package cryptoutils

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/ruteri/pod-mint-service/interfaces"
)

// SeedSize is the size of an EdDSA private key seed.
const SeedSize = 32

// DecodeSeed accepts a private key seed as hex (optionally 0x-prefixed) or
// base64 (standard or URL alphabet, padded or not).
func DecodeSeed(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("empty private key")
	}

	if b, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x")); err == nil {
		return b, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(encoded); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("private key must be hex or base64 encoded")
}

// Signer signs POD entries with an EdDSA key on the BN254 twisted Edwards curve.
type Signer struct {
	priv *eddsa.PrivateKey
}

// NewSignerFromSeed derives the signing key deterministically from a 32-byte seed.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("private key seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	priv, err := eddsa.GenerateKey(bytes.NewReader(seed))
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return &Signer{priv: priv}, nil
}

// PublicKey returns the hex-encoded compressed public key.
func (s *Signer) PublicKey() string {
	return hex.EncodeToString(s.priv.PublicKey.Bytes())
}

// Sign computes the content ID of entries and signs it.
func (s *Signer) Sign(entries interfaces.Entries) (*SignedPOD, error) {
	id, err := ComputeContentID(entries)
	if err != nil {
		return nil, err
	}

	sig, err := s.priv.Sign(id.Bytes(), mimc.NewMiMC())
	if err != nil {
		return nil, err
	}

	return &SignedPOD{
		Entries:         entries.Clone(),
		Signature:       hex.EncodeToString(sig),
		SignerPublicKey: s.PublicKey(),
		ContentID:       id,
	}, nil
}

// SignedPOD is a signed set of entries.
type SignedPOD struct {
	Entries         interfaces.Entries `json:"entries"`
	Signature       string             `json:"signature"`
	SignerPublicKey string             `json:"signerPublicKey"`

	// ContentID is set by Sign and Verify.
	ContentID interfaces.ContentID `json:"-"`
}

// Verify recomputes the content ID and checks the signature against it.
func (p *SignedPOD) Verify() (bool, error) {
	id, err := ComputeContentID(p.Entries)
	if err != nil {
		return false, err
	}

	pubBytes, err := hex.DecodeString(p.SignerPublicKey)
	if err != nil {
		return false, fmt.Errorf("invalid signer public key: %w", err)
	}
	var pub eddsa.PublicKey
	if _, err := pub.SetBytes(pubBytes); err != nil {
		return false, fmt.Errorf("invalid signer public key: %w", err)
	}

	sig, err := hex.DecodeString(p.Signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding: %w", err)
	}

	ok, err := pub.Verify(sig, id.Bytes(), mimc.NewMiMC())
	if err != nil {
		return false, err
	}
	p.ContentID = id
	return ok, nil
}

// Owner returns the owner entry value, if present.
func (p *SignedPOD) Owner() (*big.Int, bool) {
	v, ok := p.Entries[interfaces.OwnerEntry]
	if !ok || v.Type != interfaces.CryptographicEntry {
		return nil, false
	}
	return new(big.Int).Set(v.Num), true
}
