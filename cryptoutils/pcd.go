package cryptoutils

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/ruteri/pod-mint-service/interfaces"
)

// PODPCDType is the type tag of a serialized POD-PCD.
const PODPCDType = "pod-pcd"

// SerializedPCD is the portable envelope the companion app imports.
type SerializedPCD struct {
	Type string `json:"type"`
	PCD  string `json:"pcd"`
}

type podPCD struct {
	ID    string      `json:"id"`
	Claim podPCDClaim `json:"claim"`
	Proof podPCDProof `json:"proof"`
}

type podPCDClaim struct {
	Entries         interfaces.Entries `json:"entries"`
	SignerPublicKey string             `json:"signerPublicKey"`
}

type podPCDProof struct {
	Signature string `json:"signature"`
}

// SerializePODPCD wraps a signed POD in a portable POD-PCD with a fresh ID.
func SerializePODPCD(pod *SignedPOD) (*SerializedPCD, error) {
	inner, err := json.Marshal(podPCD{
		ID: uuid.NewString(),
		Claim: podPCDClaim{
			Entries:         pod.Entries,
			SignerPublicKey: pod.SignerPublicKey,
		},
		Proof: podPCDProof{Signature: pod.Signature},
	})
	if err != nil {
		return nil, err
	}
	return &SerializedPCD{Type: PODPCDType, PCD: string(inner)}, nil
}

// DeserializePODPCD unwraps a portable POD-PCD. The returned ID is the PCD's
// own identifier, not the content ID.
func DeserializePODPCD(s *SerializedPCD) (string, *SignedPOD, error) {
	var p podPCD
	if err := json.Unmarshal([]byte(s.PCD), &p); err != nil {
		return "", nil, err
	}
	return p.ID, &SignedPOD{
		Entries:         p.Claim.Entries,
		Signature:       p.Proof.Signature,
		SignerPublicKey: p.Claim.SignerPublicKey,
	}, nil
}
