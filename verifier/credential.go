package verifier

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/big"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/ruteri/pod-mint-service/cryptoutils"
)

// credentialClaims are the private JWT claims of an email credential.
type credentialClaims struct {
	Email       string `json:"email"`
	SemaphoreID string `json:"semaphoreId"`
}

// JWTCredentialVerifier verifies email credentials signed with Ed25519 by a
// single trusted issuer.
type JWTCredentialVerifier struct {
	issuerKey ed25519.PublicKey
	issuer    string
	leeway    time.Duration
	now       func() time.Time
}

// NewJWTCredentialVerifier trusts credentials from issuer signed by key.
func NewJWTCredentialVerifier(key ed25519.PublicKey, issuer string) *JWTCredentialVerifier {
	return &JWTCredentialVerifier{
		issuerKey: key,
		issuer:    issuer,
		leeway:    jwt.DefaultLeeway,
		now:       time.Now,
	}
}

// ParseIssuerKey decodes a hex or base64 Ed25519 public key.
func ParseIssuerKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := cryptoutils.DecodeSeed(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("issuer key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

func (v *JWTCredentialVerifier) VerifyCredential(ctx context.Context, p *CredentialProof) (bool, error) {
	if p.Claim.SemaphoreID == nil || p.Proof.JWT == "" {
		return false, nil
	}

	tok, err := jwt.ParseSigned(p.Proof.JWT)
	if err != nil {
		return false, nil
	}
	if len(tok.Headers) != 1 || tok.Headers[0].Algorithm != string(jose.EdDSA) {
		return false, nil
	}

	var std jwt.Claims
	var private credentialClaims
	if err := tok.Claims(v.issuerKey, &std, &private); err != nil {
		return false, nil
	}

	if err := std.ValidateWithLeeway(jwt.Expected{Issuer: v.issuer, Time: v.now()}, v.leeway); err != nil {
		return false, nil
	}

	semaphoreID, ok := new(big.Int).SetString(private.SemaphoreID, 10)
	if !ok {
		return false, nil
	}

	return private.Email == p.Claim.EmailAddress && semaphoreID.Cmp(p.Claim.SemaphoreID.Big()) == 0, nil
}

// IssueCredential signs an email credential for semaphoreID.
func IssueCredential(key ed25519.PrivateKey, issuer, email string, semaphoreID *big.Int, issuedAt time.Time) (*CredentialProof, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("failed to create credential signer: %w", err)
	}

	raw, err := jwt.Signed(signer).
		Claims(jwt.Claims{
			Issuer:   issuer,
			Subject:  email,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		}).
		Claims(credentialClaims{Email: email, SemaphoreID: semaphoreID.String()}).
		CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("failed to sign credential: %w", err)
	}

	return &CredentialProof{
		Claim: CredentialClaim{
			EmailAddress: email,
			SemaphoreID:  NewFieldElement(semaphoreID),
		},
		Proof: CredentialData{JWT: raw},
	}, nil
}
