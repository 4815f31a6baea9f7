// Package minter redeems templates: it verifies an identity proof, binds the
// template to the proven owner, signs the POD and, for proofs that carry
// a nullifier, consumes the nullifier atomically with signing.
package minter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/events"
	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/ruteri/pod-mint-service/metrics"
	"github.com/ruteri/pod-mint-service/registry"
	"github.com/ruteri/pod-mint-service/verifier"
)

// eventTimeout bounds event publication after a successful mint.
const eventTimeout = 2 * time.Second

// TemplateStore is the subset of registry.Store the minter needs.
type TemplateStore interface {
	Get(id interfaces.ContentID) (interfaces.TemplateRecord, bool)
	Redeem(ctx context.Context, id interfaces.ContentID, nullifier string, mint registry.MintFunc) (*cryptoutils.SignedPOD, error)
}

// ProofVerifier verifies identity proofs.
type ProofVerifier interface {
	Verify(ctx context.Context, artifact verifier.Artifact, scope verifier.Scope) (verifier.Claim, error)
}

// SignerResolver resolves a record's signer key override.
type SignerResolver interface {
	Resolve(override string) (*cryptoutils.Signer, error)
}

type Config struct {
	Store    TemplateStore
	Verifier ProofVerifier
	Signers  SignerResolver
	Events   events.Publisher
	Now      func() time.Time
	Log      *slog.Logger
}

// Minter orchestrates redemption.
type Minter struct {
	store    TemplateStore
	verifier ProofVerifier
	signers  SignerResolver
	events   events.Publisher
	now      func() time.Time
	log      *slog.Logger
}

func New(cfg Config) *Minter {
	m := &Minter{
		store:    cfg.Store,
		verifier: cfg.Verifier,
		signers:  cfg.Signers,
		events:   cfg.Events,
		now:      cfg.Now,
		log:      cfg.Log,
	}
	if m.events == nil {
		m.events = events.Noop{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Mint redeems template id with artifact and returns the signed POD.
//
// Verification runs before any lock is taken. Proofs carrying a nullifier
// are redeemed through the store so the nullifier check, signing and the
// durable nullifier record happen as one step. Other proofs are signed
// against the template snapshot taken at lookup.
func (m *Minter) Mint(ctx context.Context, id interfaces.ContentID, artifact verifier.Artifact) (*cryptoutils.SignedPOD, error) {
	if artifact == nil {
		return nil, fmt.Errorf("%w: missing identity proof", interfaces.ErrInvalidIdentityProof)
	}
	kind := string(artifact.Kind())

	pod, err := m.mint(ctx, id, artifact)
	metrics.MintAttempts.WithLabelValues(kind, outcome(err)).Inc()
	if err != nil {
		m.log.Info("Mint rejected",
			slog.String("templateId", id.String()),
			slog.String("kind", kind),
			"err", err)
		return nil, err
	}

	owner, _ := pod.Owner()
	m.log.Info("Minted POD",
		slog.String("templateId", id.String()),
		slog.String("kind", kind),
		slog.String("contentId", pod.ContentID.String()))

	e := events.New(events.PODMinted, id.String())
	e.ProofKind = kind
	e.Owner = owner.String()
	m.publish(ctx, e)

	return pod, nil
}

// MintPortable mints and wraps the POD in a portable POD-PCD.
func (m *Minter) MintPortable(ctx context.Context, id interfaces.ContentID, artifact verifier.Artifact) (*cryptoutils.SerializedPCD, error) {
	pod, err := m.Mint(ctx, id, artifact)
	if err != nil {
		return nil, err
	}

	pcd, err := cryptoutils.SerializePODPCD(pod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSigningFailure, err)
	}
	return pcd, nil
}

func (m *Minter) mint(ctx context.Context, id interfaces.ContentID, artifact verifier.Artifact) (*cryptoutils.SignedPOD, error) {
	record, ok := m.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnknownTemplate, id)
	}

	claim, err := m.verifier.Verify(ctx, artifact, verifier.Scope{TemplateID: id})
	if err != nil {
		return nil, err
	}
	if !claim.Valid {
		return nil, interfaces.ErrInvalidIdentityProof
	}
	if claim.Owner == nil || claim.Owner.Sign() < 0 || claim.Owner.Cmp(fr.Modulus()) >= 0 {
		return nil, fmt.Errorf("%w: owner outside the field", interfaces.ErrInvalidIdentityProof)
	}

	// Only email credentials carry an issuance timestamp into the POD.
	withTimestamp := claim.Kind == verifier.KindCredential
	sign := func(rec interfaces.TemplateRecord) (*cryptoutils.SignedPOD, error) {
		return m.sign(rec, claim.Owner, withTimestamp)
	}

	if claim.Nullifier != nil {
		return m.store.Redeem(ctx, id, claim.Nullifier.String(), sign)
	}
	return sign(record)
}

func (m *Minter) sign(record interfaces.TemplateRecord, owner *big.Int, withTimestamp bool) (*cryptoutils.SignedPOD, error) {
	signer, err := m.signers.Resolve(record.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSigningFailure, err)
	}

	entries := record.Entries.Clone()
	entries[interfaces.OwnerEntry] = interfaces.NewCryptographic(owner)
	if withTimestamp {
		entries[interfaces.TimestampEntry] = interfaces.NewInt(m.now().UnixMilli())
	}

	pod, err := signer.Sign(entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSigningFailure, err)
	}
	return pod, nil
}

func (m *Minter) publish(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	if err := m.events.Publish(ctx, e); err != nil {
		m.log.Warn("Failed to publish event", slog.String("type", string(e.Type)), "err", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeMinted
	case errors.Is(err, interfaces.ErrUnknownTemplate):
		return metrics.OutcomeUnknownTemplate
	case errors.Is(err, interfaces.ErrInvalidIdentityProof), errors.Is(err, interfaces.ErrUnsupportedProofKind):
		return metrics.OutcomeInvalidProof
	case errors.Is(err, interfaces.ErrNullifierAlreadyUsed):
		return metrics.OutcomeNullifierReused
	case errors.Is(err, interfaces.ErrVerifierUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
