package verifier

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/ruteri/pod-mint-service/cryptoutils"
)

// EdDSAVerifier verifies signature proofs locally.
type EdDSAVerifier struct{}

// IdentityCommitment is MiMC(pubX, pubY).
func IdentityCommitment(pub *eddsa.PublicKey) *big.Int {
	return cryptoutils.Hash(pub.A.X.BigInt(new(big.Int)), pub.A.Y.BigInt(new(big.Int)))
}

// signatureMessage is the signed digest: MiMC(commitment, keccak(message)).
func signatureMessage(commitment *big.Int, message string) []byte {
	return cryptoutils.FieldBytes(cryptoutils.Hash(commitment, cryptoutils.StringHash(message)))
}

func (EdDSAVerifier) VerifySignature(ctx context.Context, p *SignatureProof) (bool, error) {
	if p.Claim.IdentityCommitment == nil {
		return false, nil
	}

	pubBytes, err := hex.DecodeString(p.Proof.PublicKey)
	if err != nil {
		return false, nil
	}
	var pub eddsa.PublicKey
	if _, err := pub.SetBytes(pubBytes); err != nil {
		return false, nil
	}

	commitment := IdentityCommitment(&pub)
	if commitment.Cmp(p.Claim.IdentityCommitment.Big()) != 0 {
		return false, nil
	}

	sig, err := hex.DecodeString(p.Proof.Signature)
	if err != nil {
		return false, nil
	}

	ok, err := pub.Verify(sig, signatureMessage(commitment, p.Claim.SignedMessage), mimc.NewMiMC())
	if err != nil {
		return false, nil
	}
	return ok, nil
}

// SignMessage produces a signature proof for message with the identity key.
func SignMessage(priv *eddsa.PrivateKey, message string) (*SignatureProof, error) {
	commitment := IdentityCommitment(&priv.PublicKey)

	sig, err := priv.Sign(signatureMessage(commitment, message), mimc.NewMiMC())
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	return &SignatureProof{
		Claim: SignatureClaim{
			IdentityCommitment: NewFieldElement(commitment),
			SignedMessage:      message,
		},
		Proof: SignatureData{
			PublicKey: hex.EncodeToString(priv.PublicKey.Bytes()),
			Signature: hex.EncodeToString(sig),
		},
	}, nil
}
