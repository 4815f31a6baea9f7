package verifier

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ruteri/pod-mint-service/interfaces"
)

// Kind names a proof artifact kind.
type Kind string

const (
	KindSignature  Kind = "semaphore-signature"
	KindCredential Kind = "email"
	KindCircuit    Kind = "gpc"
)

// Artifact is an identity proof. The set of implementations is closed.
type Artifact interface {
	Kind() Kind
	artifact()
}

// FieldElement is an integer decoded from a JSON number or a decimal/hex
// string and encoded as a decimal string.
type FieldElement big.Int

// NewFieldElement copies n.
func NewFieldElement(n *big.Int) *FieldElement {
	return (*FieldElement)(new(big.Int).Set(n))
}

// Big returns a copy as *big.Int.
func (f *FieldElement) Big() *big.Int {
	return new(big.Int).Set((*big.Int)(f))
}

func (f *FieldElement) MarshalJSON() ([]byte, error) {
	return json.Marshal((*big.Int)(f).String())
}

func (f *FieldElement) UnmarshalJSON(data []byte) error {
	n, err := interfaces.ParseBigNumber(data)
	if err != nil {
		return err
	}
	(*big.Int)(f).Set(n)
	return nil
}

// SignatureProof is a semaphore-style signature over a message.
type SignatureProof struct {
	ID    string         `json:"id,omitempty"`
	Claim SignatureClaim `json:"claim"`
	Proof SignatureData  `json:"proof"`
}

type SignatureClaim struct {
	IdentityCommitment *FieldElement `json:"identityCommitment"`
	SignedMessage      string        `json:"signedMessage"`
}

type SignatureData struct {
	// PublicKey is the hex-encoded compressed EdDSA public key.
	PublicKey string `json:"publicKey"`
	// Signature is hex-encoded.
	Signature string `json:"signature"`
}

func (*SignatureProof) Kind() Kind { return KindSignature }
func (*SignatureProof) artifact()  {}

// CredentialProof is an issuer-signed email credential.
type CredentialProof struct {
	ID    string          `json:"id,omitempty"`
	Claim CredentialClaim `json:"claim"`
	Proof CredentialData  `json:"proof"`
}

type CredentialClaim struct {
	EmailAddress string        `json:"emailAddress"`
	SemaphoreID  *FieldElement `json:"semaphoreId"`
}

type CredentialData struct {
	JWT string `json:"jwt"`
}

func (*CredentialProof) Kind() Kind { return KindCredential }
func (*CredentialProof) artifact()  {}

// circuitPOD is the name of the single proven POD.
const circuitPOD = "pod0"

// CircuitProof is a Groth16 proof of identity ownership.
type CircuitProof struct {
	ID    string       `json:"id,omitempty"`
	Claim CircuitClaim `json:"claim"`
	Proof CircuitData  `json:"proof"`
}

type CircuitClaim struct {
	Config   CircuitConfig   `json:"config"`
	Revealed CircuitRevealed `json:"revealed"`
}

type CircuitConfig struct {
	Pods map[string]PODConfig `json:"pods"`
}

type PODConfig struct {
	Entries map[string]EntryConfig `json:"entries"`
}

type EntryConfig struct {
	IsRevealed bool        `json:"isRevealed"`
	IsOwnerID  OwnerIDFlag `json:"isOwnerID,omitempty"`
}

// OwnerIDFlag accepts either a boolean or an identity protocol name.
type OwnerIDFlag bool

func (f *OwnerIDFlag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = OwnerIDFlag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("isOwnerID must be a boolean or a protocol name")
	}
	*f = s != ""
	return nil
}

type CircuitRevealed struct {
	Pods      map[string]RevealedPOD `json:"pods"`
	Owner     *RevealedOwner         `json:"owner,omitempty"`
	Watermark *interfaces.Value      `json:"watermark,omitempty"`
}

type RevealedPOD struct {
	Entries interfaces.Entries `json:"entries,omitempty"`
}

type RevealedOwner struct {
	NullifierHash *FieldElement `json:"nullifierHash,omitempty"`
}

type CircuitData struct {
	// Groth16 is the base64 binary proof.
	Groth16 string `json:"groth16"`
}

func (*CircuitProof) Kind() Kind { return KindCircuit }
func (*CircuitProof) artifact()  {}

// OwnerRevealed reports whether the owner entry is configured as revealed
// and as the owner identity.
func (p *CircuitProof) OwnerRevealed() bool {
	entry := p.Claim.Config.Pods[circuitPOD].Entries[interfaces.OwnerEntry]
	return entry.IsRevealed && bool(entry.IsOwnerID)
}

// RevealedOwner returns the revealed owner value, or zero.
func (p *CircuitProof) RevealedOwner() *big.Int {
	v, ok := p.Claim.Revealed.Pods[circuitPOD].Entries[interfaces.OwnerEntry]
	if !ok || v.Num == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.Num)
}

// NullifierHash returns the revealed nullifier hash, or nil.
func (p *CircuitProof) NullifierHash() *big.Int {
	if p.Claim.Revealed.Owner == nil || p.Claim.Revealed.Owner.NullifierHash == nil {
		return nil
	}
	return p.Claim.Revealed.Owner.NullifierHash.Big()
}

// IssuedAt returns the revealed watermark interpreted as milliseconds since epoch.
func (p *CircuitProof) IssuedAt() (time.Time, bool) {
	w := p.Claim.Revealed.Watermark
	if w == nil || w.Num == nil || !w.Num.IsInt64() || w.Num.Sign() <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(w.Num.Int64()), true
}

// Decode parses a serialized artifact of the given kind.
func Decode(kind Kind, serialized string) (Artifact, error) {
	var a Artifact
	switch kind {
	case KindSignature:
		a = &SignatureProof{}
	case KindCredential:
		a = &CredentialProof{}
	case KindCircuit:
		a = &CircuitProof{}
	default:
		return nil, fmt.Errorf("%w: %q", interfaces.ErrUnsupportedProofKind, kind)
	}

	if err := json.Unmarshal([]byte(serialized), a); err != nil {
		return nil, fmt.Errorf("%w: malformed %s proof: %v", interfaces.ErrInvalidIdentityProof, kind, err)
	}
	return a, nil
}

// Encode serializes an artifact for transport.
func Encode(a Artifact) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
