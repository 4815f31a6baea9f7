package minter

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/events"
	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/ruteri/pod-mint-service/kms"
	"github.com/ruteri/pod-mint-service/links"
	"github.com/ruteri/pod-mint-service/registry"
	"github.com/ruteri/pod-mint-service/storage"
	"github.com/ruteri/pod-mint-service/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://issuer.example.com"

var (
	proverOnce sync.Once
	prover     *verifier.Prover
	groth      *verifier.Groth16Verifier
	proverErr  error
)

func circuitKeys(t *testing.T) (*verifier.Prover, *verifier.Groth16Verifier) {
	t.Helper()
	proverOnce.Do(func() {
		ccs, pk, vk, err := verifier.SetupOwnershipCircuit()
		if err != nil {
			proverErr = err
			return
		}
		prover = verifier.NewProver(ccs, pk)
		groth = verifier.NewGroth16Verifier(vk)
	})
	require.NoError(t, proverErr)
	return prover, groth
}

type harness struct {
	store     *registry.Store
	keyring   *kms.Keyring
	minter    *Minter
	recorder  *events.Recorder
	issuerKey ed25519.PrivateKey
	prover    *verifier.Prover
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := storage.NewFileBackend(t.TempDir(), log)
	require.NoError(t, err)
	keyring, err := kms.NewKeyring([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	gen, err := links.NewGenerator("https://mint.example.com/api/mintPOD", "https://zupass.org")
	require.NoError(t, err)

	store, err := registry.Open(context.Background(), backend, keyring, gen, log)
	require.NoError(t, err)

	issuerPub, issuerPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	p, g := circuitKeys(t)
	now := time.Now()
	clock := func() time.Time { return now }

	dispatcher := verifier.NewDispatcher(verifier.Config{
		Signature:  verifier.EdDSAVerifier{},
		Credential: verifier.NewJWTCredentialVerifier(issuerPub, testIssuer),
		Circuit:    g,
		Now:        clock,
		Log:        log,
	})

	recorder := &events.Recorder{}
	return &harness{
		store:   store,
		keyring: keyring,
		minter: New(Config{
			Store:    store,
			Verifier: dispatcher,
			Signers:  keyring,
			Events:   recorder,
			Now:      clock,
			Log:      log,
		}),
		recorder:  recorder,
		issuerKey: issuerPriv,
		prover:    p,
		now:       now,
	}
}

func (h *harness) register(t *testing.T, title string) interfaces.ContentID {
	t.Helper()
	id, err := h.store.Register(context.Background(), registry.RegisterRequest{Entries: interfaces.Entries{
		interfaces.TitleEntry:       interfaces.NewString(title),
		interfaces.DescriptionEntry: interfaces.NewString("a " + title),
		"rarity":                    interfaces.NewInt(3),
	}})
	require.NoError(t, err)
	return id
}

func (h *harness) circuitProof(t *testing.T, id interfaces.ContentID, secret int64, issuedAt time.Time) *verifier.CircuitProof {
	t.Helper()
	proof, err := h.prover.ProveOwnership(big.NewInt(secret), verifier.Scope{TemplateID: id}, issuedAt)
	require.NoError(t, err)
	return proof
}

func assertSignedBy(t *testing.T, pod *cryptoutils.SignedPOD, signer *cryptoutils.Signer) {
	t.Helper()
	ok, err := pod.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, signer.PublicKey(), pod.SignerPublicKey)
}

func TestMintWithSignatureProof(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Frog")

	identity, err := eddsa.GenerateKey(rand.Reader)
	require.NoError(t, err)
	proof, err := verifier.SignMessage(identity, "hello")
	require.NoError(t, err)

	pod, err := h.minter.Mint(context.Background(), id, proof)
	require.NoError(t, err)
	assertSignedBy(t, pod, h.keyring.Default())

	owner, ok := pod.Owner()
	require.True(t, ok)
	assert.Equal(t, 0, owner.Cmp(verifier.IdentityCommitment(&identity.PublicKey)))
	_, hasTimestamp := pod.Entries[interfaces.TimestampEntry]
	assert.False(t, hasTimestamp)

	// Template entries are carried over unchanged.
	record, _ := h.store.Get(id)
	for name, v := range record.Entries {
		assert.True(t, v.Equal(pod.Entries[name]), name)
	}
	assert.Len(t, pod.Entries, len(record.Entries)+1)

	// Signature proofs carry no nullifier, so they can be presented again.
	_, err = h.minter.Mint(context.Background(), id, proof)
	assert.NoError(t, err)

	published := h.recorder.Events()
	require.Len(t, published, 2)
	assert.Equal(t, events.PODMinted, published[0].Type)
	assert.Equal(t, id.String(), published[0].TemplateID)
	assert.Equal(t, string(verifier.KindSignature), published[0].ProofKind)
}

func TestMintWithCredentialAddsTimestamp(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Frog")

	semaphoreID := big.NewInt(424242)
	proof, err := verifier.IssueCredential(h.issuerKey, testIssuer, "frog@example.com", semaphoreID, h.now)
	require.NoError(t, err)

	pod, err := h.minter.Mint(context.Background(), id, proof)
	require.NoError(t, err)
	assertSignedBy(t, pod, h.keyring.Default())

	owner, _ := pod.Owner()
	assert.Equal(t, 0, owner.Cmp(semaphoreID))

	ts, ok := pod.Entries[interfaces.TimestampEntry]
	require.True(t, ok)
	assert.Equal(t, interfaces.IntEntry, ts.Type)
	assert.Equal(t, h.now.UnixMilli(), ts.Num.Int64())
}

func TestMintWithCircuitProofConsumesNullifier(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Frog")
	ctx := context.Background()

	proof := h.circuitProof(t, id, 1001, h.now.Add(-time.Second))
	pod, err := h.minter.Mint(ctx, id, proof)
	require.NoError(t, err)

	owner, _ := pod.Owner()
	assert.Equal(t, 0, owner.Cmp(verifier.OwnerCommitment(big.NewInt(1001))))
	_, hasTimestamp := pod.Entries[interfaces.TimestampEntry]
	assert.False(t, hasTimestamp)

	// A fresh proof by the same identity yields the same nullifier.
	again := h.circuitProof(t, id, 1001, h.now)
	_, err = h.minter.Mint(ctx, id, again)
	assert.ErrorIs(t, err, interfaces.ErrNullifierAlreadyUsed)

	// Another identity is unaffected.
	other := h.circuitProof(t, id, 2002, h.now)
	_, err = h.minter.Mint(ctx, id, other)
	assert.NoError(t, err)

	// The same identity can still redeem a different template.
	second := h.register(t, "Toad")
	_, err = h.minter.Mint(ctx, second, h.circuitProof(t, second, 1001, h.now))
	assert.NoError(t, err)
}

func TestMintConcurrentCircuitRedemption(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Frog")
	proof := h.circuitProof(t, id, 77, h.now)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		minted  int
		reused  int
		unknown []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.minter.Mint(context.Background(), id, proof)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				minted++
			case errors.Is(err, interfaces.ErrNullifierAlreadyUsed):
				reused++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unknown)
	assert.Equal(t, 1, minted)
	assert.Equal(t, workers-1, reused)
}

func TestMintRejectsStaleCircuitProof(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Frog")

	proof := h.circuitProof(t, id, 5, h.now.Add(-60000*time.Millisecond))
	_, err := h.minter.Mint(context.Background(), id, proof)
	assert.ErrorIs(t, err, interfaces.ErrInvalidIdentityProof)

	// The rejected proof did not consume the nullifier.
	_, err = h.minter.Mint(context.Background(), id, h.circuitProof(t, id, 5, h.now))
	assert.NoError(t, err)
}

func TestMintRejectsProofForOtherTemplate(t *testing.T) {
	h := newHarness(t)
	frog := h.register(t, "Frog")
	toad := h.register(t, "Toad")

	_, err := h.minter.Mint(context.Background(), toad, h.circuitProof(t, frog, 5, h.now))
	assert.ErrorIs(t, err, interfaces.ErrInvalidIdentityProof)
}

func TestMintInvalidSignature(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Frog")

	identity, err := eddsa.GenerateKey(rand.Reader)
	require.NoError(t, err)
	proof, err := verifier.SignMessage(identity, "hello")
	require.NoError(t, err)
	proof.Claim.SignedMessage = "goodbye"

	_, err = h.minter.Mint(context.Background(), id, proof)
	assert.ErrorIs(t, err, interfaces.ErrInvalidIdentityProof)
	assert.Empty(t, h.recorder.Events())
}

func TestMintAfterRemoveFails(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Frog")
	require.NoError(t, h.store.Remove(context.Background(), id))

	identity, err := eddsa.GenerateKey(rand.Reader)
	require.NoError(t, err)
	proof, err := verifier.SignMessage(identity, "hello")
	require.NoError(t, err)

	_, err = h.minter.Mint(context.Background(), id, proof)
	assert.ErrorIs(t, err, interfaces.ErrUnknownTemplate)
}

func TestMintWithCustomSigner(t *testing.T) {
	h := newHarness(t)
	custom := "aa00000000000000000000000000000000000000000000000000000000000001"
	id, err := h.store.Register(context.Background(), registry.RegisterRequest{
		Entries:   interfaces.Entries{"name": interfaces.NewString("Custom")},
		SignerKey: custom,
	})
	require.NoError(t, err)

	identity, err := eddsa.GenerateKey(rand.Reader)
	require.NoError(t, err)
	proof, err := verifier.SignMessage(identity, "hello")
	require.NoError(t, err)

	pod, err := h.minter.Mint(context.Background(), id, proof)
	require.NoError(t, err)

	customSigner, err := h.keyring.Resolve(custom)
	require.NoError(t, err)
	assertSignedBy(t, pod, customSigner)
}

func TestMintPortable(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Frog")

	identity, err := eddsa.GenerateKey(rand.Reader)
	require.NoError(t, err)
	proof, err := verifier.SignMessage(identity, "hello")
	require.NoError(t, err)

	pcd, err := h.minter.MintPortable(context.Background(), id, proof)
	require.NoError(t, err)
	assert.Equal(t, cryptoutils.PODPCDType, pcd.Type)

	pcdID, pod, err := cryptoutils.DeserializePODPCD(pcd)
	require.NoError(t, err)
	assert.NotEmpty(t, pcdID)
	assertSignedBy(t, pod, h.keyring.Default())
}

// MockVerifier implements ProofVerifier for testing
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, artifact verifier.Artifact, scope verifier.Scope) (verifier.Claim, error) {
	args := m.Called(ctx, artifact, scope)
	return args.Get(0).(verifier.Claim), args.Error(1)
}

func TestMintErrorPaths(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "Frog")
	artifact := &verifier.SignatureProof{}

	t.Run("unknown template skips verification", func(t *testing.T) {
		v := &MockVerifier{}
		m := New(Config{Store: h.store, Verifier: v, Signers: h.keyring})

		var missing interfaces.ContentID
		missing[31] = 1
		_, err := m.Mint(context.Background(), missing, artifact)
		assert.ErrorIs(t, err, interfaces.ErrUnknownTemplate)
		v.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("verifier unavailable", func(t *testing.T) {
		v := &MockVerifier{}
		v.On("Verify", mock.Anything, artifact, verifier.Scope{TemplateID: id}).
			Return(verifier.Claim{}, interfaces.ErrVerifierUnavailable)
		m := New(Config{Store: h.store, Verifier: v, Signers: h.keyring})

		_, err := m.Mint(context.Background(), id, artifact)
		assert.ErrorIs(t, err, interfaces.ErrVerifierUnavailable)
		v.AssertExpectations(t)
	})

	t.Run("owner outside field", func(t *testing.T) {
		v := &MockVerifier{}
		tooBig := new(big.Int).Lsh(big.NewInt(1), 255)
		v.On("Verify", mock.Anything, artifact, mock.Anything).
			Return(verifier.Claim{Kind: verifier.KindSignature, Owner: tooBig, Valid: true}, nil)
		m := New(Config{Store: h.store, Verifier: v, Signers: h.keyring})

		_, err := m.Mint(context.Background(), id, artifact)
		assert.ErrorIs(t, err, interfaces.ErrInvalidIdentityProof)
	})

	t.Run("missing artifact", func(t *testing.T) {
		m := New(Config{Store: h.store, Verifier: &MockVerifier{}, Signers: h.keyring})
		_, err := m.Mint(context.Background(), id, nil)
		assert.ErrorIs(t, err, interfaces.ErrInvalidIdentityProof)
	})
}

func TestOutcomeLabels(t *testing.T) {
	assert.Equal(t, "minted", outcome(nil))
	assert.Equal(t, "nullifier_reused", outcome(interfaces.ErrNullifierAlreadyUsed))
	assert.Equal(t, "error", outcome(interfaces.ErrPersistenceFailure))
}
