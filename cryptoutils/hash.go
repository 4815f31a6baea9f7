package cryptoutils

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/pod-mint-service/interfaces"
)

// FieldBytes reduces n into the BN254 scalar field and returns its
// canonical 32-byte big-endian encoding.
func FieldBytes(n *big.Int) []byte {
	var e fr.Element
	e.SetBigInt(n)
	b := e.Bytes()
	return b[:]
}

// Hash is MiMC over BN254 applied to the given field elements.
func Hash(elems ...*big.Int) *big.Int {
	h := mimc.NewMiMC()
	for _, e := range elems {
		// Canonical encodings never fail the field range check.
		_, _ = h.Write(FieldBytes(e))
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// StringHash maps arbitrary bytes into the field as keccak256(data) >> 8.
func StringHash(s string) *big.Int {
	digest := new(big.Int).SetBytes(crypto.Keccak256([]byte(s)))
	return digest.Rsh(digest, 8)
}

// valueHash hashes a single entry value.
func valueHash(v interfaces.Value) *big.Int {
	if v.Type == interfaces.StringEntry {
		return StringHash(v.Str)
	}
	return Hash(v.Num)
}

// ComputeContentID derives the content ID of a set of entries: each entry
// contributes Hash(StringHash(name), valueHash(value)) in canonical name
// order, and the ID is the hash of those leaves.
func ComputeContentID(entries interfaces.Entries) (interfaces.ContentID, error) {
	if err := entries.Validate(); err != nil {
		return interfaces.ContentID{}, err
	}

	leaves := make([]*big.Int, 0, len(entries))
	for _, name := range entries.Names() {
		leaves = append(leaves, Hash(StringHash(name), valueHash(entries[name])))
	}

	return interfaces.NewContentIDFromBig(Hash(leaves...))
}
