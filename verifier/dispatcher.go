package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/ruteri/pod-mint-service/metrics"
)

const (
	// DefaultTimeout bounds a single capability call.
	DefaultTimeout = 5 * time.Second

	// DefaultFreshnessWindow is how old a circuit proof's issued-at
	// timestamp may be.
	DefaultFreshnessWindow = 60000 * time.Millisecond
)

// Scope binds a proof to the template being redeemed.
type Scope struct {
	TemplateID interfaces.ContentID
}

// ExternalNullifier is the circuit input that scopes nullifiers to the template.
func (s Scope) ExternalNullifier() *big.Int {
	return cryptoutils.StringHash(s.TemplateID.String())
}

// Claim is the outcome of verifying an artifact.
type Claim struct {
	Kind  Kind
	Owner *big.Int
	Valid bool

	// Nullifier is set for circuit proofs only.
	Nullifier *big.Int
}

// OwnershipInputs are the public inputs of the ownership circuit.
type OwnershipInputs struct {
	Owner             *big.Int
	NullifierHash     *big.Int
	ExternalNullifier *big.Int
	Watermark         *big.Int
}

// SignatureVerifier verifies semaphore-style signatures. Implementations
// return (false, nil) for invalid or malformed proofs and reserve errors for
// failures of the capability itself.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, proof *SignatureProof) (bool, error)
}

// CredentialVerifier verifies issuer-signed email credentials.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, proof *CredentialProof) (bool, error)
}

// CircuitVerifier verifies ownership circuit proofs against public inputs.
type CircuitVerifier interface {
	VerifyCircuit(ctx context.Context, proof *CircuitProof, inputs OwnershipInputs) (bool, error)
}

// Config wires capabilities into a Dispatcher. A nil capability makes its
// proof kind unsupported.
type Config struct {
	Signature  SignatureVerifier
	Credential CredentialVerifier
	Circuit    CircuitVerifier

	Timeout         time.Duration
	FreshnessWindow time.Duration
	Now             func() time.Time
	Log             *slog.Logger
}

// Dispatcher routes artifacts to their verification capability.
type Dispatcher struct {
	signature  SignatureVerifier
	credential CredentialVerifier
	circuit    CircuitVerifier

	timeout   time.Duration
	freshness time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// NewDispatcher applies defaults to cfg.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		signature:  cfg.Signature,
		credential: cfg.Credential,
		circuit:    cfg.Circuit,
		timeout:    cfg.Timeout,
		freshness:  cfg.FreshnessWindow,
		now:        cfg.Now,
		log:        cfg.Log,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.freshness <= 0 {
		d.freshness = DefaultFreshnessWindow
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// Verify checks artifact in the given scope.
func (d *Dispatcher) Verify(ctx context.Context, artifact Artifact, scope Scope) (Claim, error) {
	switch a := artifact.(type) {
	case *SignatureProof:
		return d.verifySignature(ctx, a)
	case *CredentialProof:
		return d.verifyCredential(ctx, a)
	case *CircuitProof:
		return d.verifyCircuit(ctx, a, scope)
	default:
		return Claim{}, interfaces.ErrUnsupportedProofKind
	}
}

func (d *Dispatcher) verifySignature(ctx context.Context, p *SignatureProof) (Claim, error) {
	claim := Claim{Kind: KindSignature, Owner: fieldOrZero(p.Claim.IdentityCommitment)}
	if d.signature == nil {
		return claim, fmt.Errorf("%w: %s not configured", interfaces.ErrUnsupportedProofKind, KindSignature)
	}
	if p.Claim.IdentityCommitment == nil {
		return claim, nil
	}

	valid, err := d.call(ctx, KindSignature, func(ctx context.Context) (bool, error) {
		return d.signature.VerifySignature(ctx, p)
	})
	claim.Valid = valid
	return claim, err
}

func (d *Dispatcher) verifyCredential(ctx context.Context, p *CredentialProof) (Claim, error) {
	claim := Claim{Kind: KindCredential, Owner: fieldOrZero(p.Claim.SemaphoreID)}
	if d.credential == nil {
		return claim, fmt.Errorf("%w: %s not configured", interfaces.ErrUnsupportedProofKind, KindCredential)
	}
	if p.Claim.SemaphoreID == nil {
		return claim, nil
	}

	valid, err := d.call(ctx, KindCredential, func(ctx context.Context) (bool, error) {
		return d.credential.VerifyCredential(ctx, p)
	})
	claim.Valid = valid
	return claim, err
}

func (d *Dispatcher) verifyCircuit(ctx context.Context, p *CircuitProof, scope Scope) (Claim, error) {
	claim := Claim{Kind: KindCircuit, Owner: new(big.Int)}
	if d.circuit == nil {
		return claim, fmt.Errorf("%w: %s not configured", interfaces.ErrUnsupportedProofKind, KindCircuit)
	}

	nullifier := p.NullifierHash()
	if nullifier == nil {
		return claim, nil
	}
	claim.Nullifier = nullifier
	claim.Owner = p.RevealedOwner()

	if !p.OwnerRevealed() {
		return claim, nil
	}

	issuedAt, ok := p.IssuedAt()
	if !ok {
		return claim, nil
	}
	if age := d.now().Sub(issuedAt); age >= d.freshness {
		d.log.Debug("Rejecting stale circuit proof", slog.Duration("age", age))
		return claim, nil
	}

	inputs := OwnershipInputs{
		Owner:             claim.Owner,
		NullifierHash:     nullifier,
		ExternalNullifier: scope.ExternalNullifier(),
		Watermark:         big.NewInt(issuedAt.UnixMilli()),
	}
	valid, err := d.call(ctx, KindCircuit, func(ctx context.Context) (bool, error) {
		return d.circuit.VerifyCircuit(ctx, p, inputs)
	})
	claim.Valid = valid
	return claim, err
}

type callResult struct {
	valid bool
	err   error
}

// call runs fn under the dispatcher timeout. Capability errors and timeouts
// surface as ErrVerifierUnavailable.
func (d *Dispatcher) call(ctx context.Context, kind Kind, fn func(context.Context) (bool, error)) (bool, error) {
	start := time.Now()
	defer metrics.ObserveSince(metrics.VerifyDuration.WithLabelValues(string(kind)), start)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		valid, err := fn(ctx)
		done <- callResult{valid: valid, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			d.log.Warn("Proof verifier failed", slog.String("kind", string(kind)), "err", res.err)
			return false, fmt.Errorf("%w: %v", interfaces.ErrVerifierUnavailable, res.err)
		}
		return res.valid, nil
	case <-ctx.Done():
		d.log.Warn("Proof verifier timed out",
			slog.String("kind", string(kind)),
			slog.Duration("timeout", d.timeout))
		return false, fmt.Errorf("%w: %v", interfaces.ErrVerifierUnavailable, ctx.Err())
	}
}

func fieldOrZero(f *FieldElement) *big.Int {
	if f == nil {
		return new(big.Int)
	}
	return f.Big()
}
