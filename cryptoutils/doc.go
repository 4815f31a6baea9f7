// Package cryptoutils implements the POD signing capability.
//
// Entries are hashed into a content ID over the BN254 scalar field: strings
// are mapped with keccak256 >> 8, numbers are taken as field elements, and
// each (name, value) pair becomes a MiMC leaf in lexicographic name order.
// The content ID is signed with EdDSA on the BN254 twisted Edwards curve
// using a key derived from a 32-byte seed.
//
// # Key Functions
//
//   - ComputeContentID: deterministic digest of canonical entries
//   - Signer.Sign / SignedPOD.Verify: EdDSA signing and verification
//   - SerializePODPCD: portable POD-PCD envelope for the companion app
package cryptoutils
