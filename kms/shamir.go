package kms

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/shamir"
)

// SplitSeed splits a signer seed into hex-encoded Shamir shares so that the
// default key can be handed to several operators.
func SplitSeed(seed []byte, total, threshold int) ([]string, error) {
	if len(seed) < 16 {
		return nil, errors.New("seed must be at least 16 bytes")
	}

	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}

	if total < threshold {
		return nil, errors.New("total shares must be at least equal to threshold")
	}

	shares, err := shamir.Split(seed, total, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split seed: %w", err)
	}

	encoded := make([]string, len(shares))
	for i, share := range shares {
		encoded[i] = hex.EncodeToString(share)
		wipeBytes(share)
	}
	return encoded, nil
}

// CombineShares reconstructs a seed from hex-encoded shares.
func CombineShares(encoded []string) ([]byte, error) {
	if len(encoded) < 2 {
		return nil, errors.New("at least two shares are required")
	}

	shares := make([][]byte, 0, len(encoded))
	defer func() {
		for _, share := range shares {
			wipeBytes(share)
		}
	}()

	for i, s := range encoded {
		share, err := hex.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid share %d: %w", i, err)
		}
		shares = append(shares, share)
	}

	seed, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct seed: %w", err)
	}
	return seed, nil
}

// NewKeyringFromShares reconstructs the default seed from shares and builds a keyring.
func NewKeyringFromShares(encoded []string) (*Keyring, error) {
	seed, err := CombineShares(encoded)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(seed)

	return NewKeyring(seed)
}
