package verifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/interfaces"
)

// CurveID is the curve all circuit artifacts are built on.
const CurveID = ecc.BN254

// OwnershipCircuit proves knowledge of the identity secret behind Owner and
// derives a nullifier bound to ExternalNullifier. Watermark carries the
// issued-at timestamp into the proof so it cannot be altered afterwards.
type OwnershipCircuit struct {
	Owner             frontend.Variable `gnark:",public"`
	NullifierHash     frontend.Variable `gnark:",public"`
	ExternalNullifier frontend.Variable `gnark:",public"`
	Watermark         frontend.Variable `gnark:",public"`

	IdentitySecret frontend.Variable `gnark:",secret"`
}

// Define implements the frontend.Circuit interface
func (c *OwnershipCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	h.Write(c.IdentitySecret)
	api.AssertIsEqual(c.Owner, h.Sum())

	h.Reset()
	h.Write(c.IdentitySecret, c.ExternalNullifier)
	api.AssertIsEqual(c.NullifierHash, h.Sum())

	api.AssertIsDifferent(c.Watermark, 0)
	return nil
}

// OwnerCommitment is the owner value of an identity secret, MiMC(secret).
func OwnerCommitment(secret *big.Int) *big.Int {
	return cryptoutils.Hash(secret)
}

// CircuitNullifier is MiMC(secret, externalNullifier).
func CircuitNullifier(secret, externalNullifier *big.Int) *big.Int {
	return cryptoutils.Hash(secret, externalNullifier)
}

// CompileOwnershipCircuit compiles the circuit to R1CS.
func CompileOwnershipCircuit() (constraint.ConstraintSystem, error) {
	var circuit OwnershipCircuit
	return frontend.Compile(CurveID.ScalarField(), r1cs.NewBuilder, &circuit)
}

// SetupOwnershipCircuit compiles the circuit and runs a Groth16 setup.
// The setup is not a ceremony; production keys come from cmd/circuit-setup.
func SetupOwnershipCircuit() (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey, error) {
	ccs, err := CompileOwnershipCircuit()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to compile ownership circuit: %w", err)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("groth16 setup failed: %w", err)
	}
	return ccs, pk, vk, nil
}

// ReadVerifyingKey loads a verifying key written by VerifyingKey.WriteTo.
func ReadVerifyingKey(r io.Reader) (groth16.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(CurveID)
	if _, err := vk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read verifying key: %w", err)
	}
	return vk, nil
}

// ReadProvingKey loads a proving key written by ProvingKey.WriteTo.
func ReadProvingKey(r io.Reader) (groth16.ProvingKey, error) {
	pk := groth16.NewProvingKey(CurveID)
	if _, err := pk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read proving key: %w", err)
	}
	return pk, nil
}

// Groth16Verifier verifies ownership proofs with a fixed verifying key.
type Groth16Verifier struct {
	vk groth16.VerifyingKey
}

func NewGroth16Verifier(vk groth16.VerifyingKey) *Groth16Verifier {
	return &Groth16Verifier{vk: vk}
}

func (v *Groth16Verifier) VerifyCircuit(ctx context.Context, p *CircuitProof, inputs OwnershipInputs) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(p.Proof.Groth16)
	if err != nil {
		return false, nil
	}
	proof := groth16.NewProof(CurveID)
	if _, err := proof.ReadFrom(bytes.NewReader(raw)); err != nil {
		return false, nil
	}

	// Inputs outside the field can never match a proof.
	for _, n := range []*big.Int{inputs.Owner, inputs.NullifierHash, inputs.ExternalNullifier, inputs.Watermark} {
		if n == nil || n.Sign() < 0 || n.Cmp(CurveID.ScalarField()) >= 0 {
			return false, nil
		}
	}

	assignment := OwnershipCircuit{
		Owner:             inputs.Owner,
		NullifierHash:     inputs.NullifierHash,
		ExternalNullifier: inputs.ExternalNullifier,
		Watermark:         inputs.Watermark,
	}
	publicWitness, err := frontend.NewWitness(&assignment, CurveID.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("failed to build public witness: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	return groth16.Verify(proof, v.vk, publicWitness) == nil, nil
}

// Prover produces ownership proofs. It is used by tooling and tests; the
// service itself only verifies.
type Prover struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
}

func NewProver(ccs constraint.ConstraintSystem, pk groth16.ProvingKey) *Prover {
	return &Prover{ccs: ccs, pk: pk}
}

// ProveOwnership builds a complete circuit proof artifact for the identity
// secret, scoped to the template and watermarked with issuedAt.
func (p *Prover) ProveOwnership(secret *big.Int, scope Scope, issuedAt time.Time) (*CircuitProof, error) {
	owner := OwnerCommitment(secret)
	externalNullifier := scope.ExternalNullifier()
	nullifier := CircuitNullifier(secret, externalNullifier)
	watermark := issuedAt.UnixMilli()

	assignment := OwnershipCircuit{
		Owner:             owner,
		NullifierHash:     nullifier,
		ExternalNullifier: externalNullifier,
		Watermark:         watermark,
		IdentitySecret:    secret,
	}
	fullWitness, err := frontend.NewWitness(&assignment, CurveID.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to build witness: %w", err)
	}

	proof, err := groth16.Prove(p.ccs, p.pk, fullWitness)
	if err != nil {
		return nil, fmt.Errorf("failed to prove ownership: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize proof: %w", err)
	}

	watermarkValue := interfaces.NewInt(watermark)
	return &CircuitProof{
		Claim: CircuitClaim{
			Config: CircuitConfig{Pods: map[string]PODConfig{
				circuitPOD: {Entries: map[string]EntryConfig{
					interfaces.OwnerEntry: {IsRevealed: true, IsOwnerID: true},
				}},
			}},
			Revealed: CircuitRevealed{
				Pods: map[string]RevealedPOD{
					circuitPOD: {Entries: interfaces.Entries{
						interfaces.OwnerEntry: interfaces.NewCryptographic(owner),
					}},
				},
				Owner:     &RevealedOwner{NullifierHash: NewFieldElement(nullifier)},
				Watermark: &watermarkValue,
			},
		},
		Proof: CircuitData{Groth16: base64.StdEncoding.EncodeToString(buf.Bytes())},
	}, nil
}
