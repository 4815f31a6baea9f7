// Package verifier checks identity proofs presented at redemption time.
//
// Three proof kinds are supported, each backed by its own capability:
//
//   - semaphore-signature: an EdDSA (BN254 twisted Edwards) signature by an
//     identity whose commitment is MiMC(pubX, pubY)
//   - email: a JWS credential from a trusted issuer binding an email address
//     to an identity commitment
//   - gpc: a Groth16 proof of knowledge of an identity secret, revealing the
//     owner commitment and a nullifier scoped to the template
//
// The Dispatcher selects the capability for an artifact, applies the cheap
// structural checks first, and bounds every capability call with a timeout.
// Artifacts are a closed set: only the types in this package implement
// Artifact.
package verifier
