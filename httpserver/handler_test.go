package httpserver

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/events"
	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/ruteri/pod-mint-service/kms"
	"github.com/ruteri/pod-mint-service/links"
	"github.com/ruteri/pod-mint-service/minter"
	"github.com/ruteri/pod-mint-service/registry"
	"github.com/ruteri/pod-mint-service/storage"
	"github.com/ruteri/pod-mint-service/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testUser     = "admin"
	testPassword = "hunter2"
	testZupass   = "https://zupass.org"
)

type testEnv struct {
	router   http.Handler
	store    *registry.Store
	keyring  *kms.Keyring
	recorder *events.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)
	keyring, err := kms.NewKeyring([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	gen, err := links.NewGenerator("https://mint.example.com/api/mintPOD", testZupass)
	require.NoError(t, err)
	store, err := registry.Open(context.Background(), backend, keyring, gen, logger)
	require.NoError(t, err)

	recorder := &events.Recorder{}
	m := minter.New(minter.Config{
		Store:    store,
		Verifier: verifier.NewDispatcher(verifier.Config{Signature: verifier.EdDSAVerifier{}, Log: logger}),
		Signers:  keyring,
		Events:   recorder,
		Log:      logger,
	})

	srv, err := New(&HTTPServerConfig{
		ListenAddr:  "127.0.0.1:0",
		Log:         logger,
		Credentials: Credentials{testUser: testPassword},
	}, NewHandler(store, m, gen, recorder, logger))
	require.NoError(t, err)

	return &testEnv{router: srv.getRouter(), store: store, keyring: keyring, recorder: recorder}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.SetBasicAuth(testUser, testPassword)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) addTemplate(t *testing.T, entries string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{"podEntries": entries, "signerPrivateKey": "", "podFolder": ""})
	require.NoError(t, err)

	rr := e.do(t, http.MethodPost, "/api/addMintablePOD", body, true)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["podId"])
	return resp["podId"]
}

func signatureRequest(t *testing.T, contentID string) []byte {
	t.Helper()
	identity, err := eddsa.GenerateKey(rand.Reader)
	require.NoError(t, err)
	proof, err := verifier.SignMessage(identity, "mint me")
	require.NoError(t, err)
	encoded, err := verifier.Encode(proof)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"contentID":             contentID,
		"semaphoreSignaturePCD": map[string]string{"pcd": encoded},
	})
	require.NoError(t, err)
	return body
}

const frogEntries = `{"zupass_title": "Frog", "zupass_description": "A frog", "rarity": 3}`

func TestAdminRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/getMintablePODs"},
		{http.MethodPost, "/api/addMintablePOD"},
		{http.MethodGet, "/api/removeMintablePOD/abc"},
		{http.MethodGet, "/addPOD/"},
	}

	for _, p := range paths {
		t.Run(p.path, func(t *testing.T) {
			rr := env.do(t, p.method, p.path, nil, false)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Basic")
			assert.Contains(t, rr.Body.String(), UnauthorizedMessage)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/getMintablePODs", nil)
	req.SetBasicAuth(testUser, "wrong")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Public routes need no credentials.
	rr = env.do(t, http.MethodGet, "/api/getPODContent/abc", nil, false)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	creds, err := LoadCredentials(strings.NewReader(fmt.Sprintf(`{"alice": %q, "bob": "plain"}`, hash)))
	require.NoError(t, err)

	assert.True(t, creds.Check("alice", "s3cret"))
	assert.False(t, creds.Check("alice", "plain"))
	assert.True(t, creds.Check("bob", "plain"))
	assert.False(t, creds.Check("bob", "plai"))
	assert.False(t, creds.Check("carol", ""))

	_, err = LoadCredentials(strings.NewReader(`{}`))
	assert.Error(t, err)
	_, err = LoadCredentials(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestAdminPage(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/addPOD", nil, true)
	assert.Equal(t, http.StatusMovedPermanently, rr.Code)
	assert.Equal(t, "/addPOD/", rr.Header().Get("Location"))

	rr = env.do(t, http.MethodGet, "/addPOD/", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Add mintable POD")

	rr = env.do(t, http.MethodGet, "/addPOD/index.js", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/api/addMintablePOD")
}

func TestTemplateLifecycle(t *testing.T) {
	env := newTestEnv(t)
	podID := env.addTemplate(t, frogEntries)

	// Listing
	rr := env.do(t, http.MethodGet, "/api/getMintablePODs", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	var listing map[string]mintableTemplate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Equal(t, mintableTemplate{
		PodName:        "Frog",
		PodDescription: "A frog",
		MintLink:       "/api/getMintLink/" + podID,
	}, listing[podID])

	// Content
	rr = env.do(t, http.MethodGet, "/api/getPODContent/"+podID, nil, false)
	require.Equal(t, http.StatusOK, rr.Code)
	var content interfaces.Entries
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &content))
	assert.True(t, content["rarity"].Equal(interfaces.NewInt(3)))
	assert.NotContains(t, content, interfaces.OwnerEntry)

	// The listed short link redirects to the wallet with the admin default folder.
	rr = env.do(t, http.MethodGet, listing[podID].MintLink, nil, false)
	require.Equal(t, http.StatusFound, rr.Code)
	location := rr.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, testZupass+"#/add?request="), location)
	assert.Contains(t, location, links.EncodeURIComponent(`"folder":"Test Folder"`))

	// Mint a signed POD.
	rr = env.do(t, http.MethodPost, "/api/mintPOD", signatureRequest(t, podID), false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var pod cryptoutils.SignedPOD
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pod))
	ok, err := pod.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, env.keyring.Default().PublicKey(), pod.SignerPublicKey)
	_, owned := pod.Owner()
	assert.True(t, owned)

	// Mint a portable POD-PCD.
	rr = env.do(t, http.MethodPost, "/api/sign", signatureRequest(t, podID), false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var pcd cryptoutils.SerializedPCD
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pcd))
	_, portable, err := cryptoutils.DeserializePODPCD(&pcd)
	require.NoError(t, err)
	assert.Equal(t, "Frog", portable.Entries[interfaces.TitleEntry].Str)

	// Remove
	rr = env.do(t, http.MethodGet, "/api/removeMintablePOD/"+podID, nil, true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, fmt.Sprintf("POD %s successfully removed.", podID), rr.Body.String())

	rr = env.do(t, http.MethodPost, "/api/mintPOD", signatureRequest(t, podID), false)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/getPODContent/"+podID, nil, false)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), fmt.Sprintf("POD %s not found.", podID))

	rr = env.do(t, http.MethodGet, "/api/getMintLink/"+podID, nil, false)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var types []events.Type
	for _, e := range env.recorder.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.Type{
		events.TemplateRegistered,
		events.PODMinted,
		events.PODMinted,
		events.TemplateRemoved,
	}, types)
}

func TestListingReportsTemplatesWithoutDisplayEntries(t *testing.T) {
	env := newTestEnv(t)
	good := env.addTemplate(t, frogEntries)
	bare := env.addTemplate(t, `{"name": "no display"}`)

	rr := env.do(t, http.MethodGet, "/api/getMintablePODs", nil, true)
	require.Equal(t, http.StatusOK, rr.Code)

	var listing map[string]mintableTemplate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	assert.Equal(t, "Frog", listing[good].PodName)
	assert.Empty(t, listing[good].Error)
	assert.NotEmpty(t, listing[bare].Error)
	assert.Equal(t, "/api/getMintLink/"+bare, listing[bare].MintLink)
}

func TestAddMintablePODValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing entries", `{}`},
		{"malformed body", `{"podEntries":`},
		{"malformed entries string", `{"podEntries": "{not json"}`},
		{"invalid entry name", `{"podEntries": {"bad name": "x"}}`},
		{"empty entries", `{"podEntries": {}}`},
		{"invalid signer key", `{"podEntries": {"name": "x"}, "signerPrivateKey": "not-a-key"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/addMintablePOD", []byte(tt.body), true)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
	assert.Equal(t, 0, env.store.Len())

	// Entries may also be sent as an object.
	rr := env.do(t, http.MethodPost, "/api/addMintablePOD", []byte(`{"podEntries": {"name": "x"}}`), true)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	id, err := interfaces.NewContentIDFromHex(resp["podId"])
	require.NoError(t, err)
	record, ok := env.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, registry.DefaultFolder, record.Folder)
}

func TestMintRequestErrors(t *testing.T) {
	env := newTestEnv(t)
	podID := env.addTemplate(t, frogEntries)

	identity, err := eddsa.GenerateKey(rand.Reader)
	require.NoError(t, err)
	forged, err := verifier.SignMessage(identity, "mint me")
	require.NoError(t, err)
	forged.Claim.SignedMessage = "something else"
	forgedPCD, err := verifier.Encode(forged)
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   []byte
		status int
		text   string
	}{
		{
			name:   "missing proof",
			body:   []byte(fmt.Sprintf(`{"contentID": %q}`, podID)),
			status: http.StatusBadRequest,
			text:   "Missing identity-proving PCD.",
		},
		{
			name:   "invalid content ID",
			body:   signatureRequest(t, "xyz"),
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed body",
			body:   []byte(`{"contentID":`),
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed proof",
			body:   []byte(fmt.Sprintf(`{"contentID": %q, "emailPCD": {"pcd": "{"}}`, podID)),
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown template",
			body:   signatureRequest(t, "1234"),
			status: http.StatusNotFound,
		},
		{
			name:   "forged signature",
			body:   []byte(fmt.Sprintf(`{"contentID": %q, "semaphoreSignaturePCD": {"pcd": %q}}`, podID, forgedPCD)),
			status: http.StatusBadRequest,
		},
		{
			name:   "credential verifier not configured",
			body:   []byte(fmt.Sprintf(`{"contentID": %q, "emailPCD": {"pcd": "{}"}}`, podID)),
			status: http.StatusBadRequest,
		},
		{
			name:   "body too large",
			body:   bytes.Repeat([]byte(" "), maxBodySize+1),
			status: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/mintPOD", tt.body, false)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.text != "" {
				assert.Contains(t, rr.Body.String(), tt.text)
			}
		})
	}
}

// MockMinter implements Minter for testing
type MockMinter struct {
	mock.Mock
}

func (m *MockMinter) Mint(ctx context.Context, id interfaces.ContentID, artifact verifier.Artifact) (*cryptoutils.SignedPOD, error) {
	args := m.Called(ctx, id, artifact)
	pod, _ := args.Get(0).(*cryptoutils.SignedPOD)
	return pod, args.Error(1)
}

func (m *MockMinter) MintPortable(ctx context.Context, id interfaces.ContentID, artifact verifier.Artifact) (*cryptoutils.SerializedPCD, error) {
	args := m.Called(ctx, id, artifact)
	pcd, _ := args.Get(0).(*cryptoutils.SerializedPCD)
	return pcd, args.Error(1)
}

func TestMintStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"nullifier reuse", interfaces.ErrNullifierAlreadyUsed, http.StatusConflict},
		{"verifier unavailable", fmt.Errorf("%w: timeout", interfaces.ErrVerifierUnavailable), http.StatusServiceUnavailable},
		{"unsupported kind", interfaces.ErrUnsupportedProofKind, http.StatusBadRequest},
		{"signing failure", interfaces.ErrSigningFailure, http.StatusInternalServerError},
		{"persistence failure", fmt.Errorf("%w: disk full", interfaces.ErrPersistenceFailure), http.StatusInternalServerError},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockMinter{}
			m.On("Mint", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			m.On("MintPortable", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			h := NewHandler(nil, m, nil, nil, logger)
			for _, handle := range []http.HandlerFunc{h.HandleMintPOD, h.HandleSign} {
				req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(signatureRequest(t, "1")))
				rr := httptest.NewRecorder()
				handle(rr, req)
				assert.Equal(t, tt.status, rr.Code)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(&HTTPServerConfig{
		Log:           logger,
		DrainDuration: time.Millisecond,
	}, NewHandler(nil, &MockMinter{}, nil, nil, logger))
	require.NoError(t, err)
	router := srv.getRouter()

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	assert.Equal(t, http.StatusOK, get("/livez").Code)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)

	assert.Contains(t, get("/drain").Body.String(), `"draining"`)
	assert.Contains(t, get("/drain").Body.String(), "already draining")
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	assert.Contains(t, get("/undrain").Body.String(), `"ready"`)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set("Origin", "https://zupass.org")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/mintPOD", nil)
	preflight.Header.Set("Origin", "https://zupass.org")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, preflight)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
