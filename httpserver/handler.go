package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/events"
	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/ruteri/pod-mint-service/registry"
	"github.com/ruteri/pod-mint-service/verifier"
)

const (
	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024

	// eventTimeout bounds best-effort event publication.
	eventTimeout = 2 * time.Second
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf(format, args...)}
}

// TemplateStore is the template store surface used by the handler.
type TemplateStore interface {
	Register(ctx context.Context, req registry.RegisterRequest) (interfaces.ContentID, error)
	Remove(ctx context.Context, id interfaces.ContentID) error
	Get(id interfaces.ContentID) (interfaces.TemplateRecord, bool)
	List() []registry.ListEntry
}

// Minter redeems templates against identity proofs.
type Minter interface {
	Mint(ctx context.Context, id interfaces.ContentID, artifact verifier.Artifact) (*cryptoutils.SignedPOD, error)
	MintPortable(ctx context.Context, id interfaces.ContentID, artifact verifier.Artifact) (*cryptoutils.SerializedPCD, error)
}

// ShortLinker builds the public short link of a template.
type ShortLinker interface {
	ShortLink(id interfaces.ContentID) string
}

// Handler processes HTTP requests for the mint service: template
// administration, public template lookup and POD minting.
type Handler struct {
	store  TemplateStore
	minter Minter
	links  ShortLinker
	events events.Publisher
	log    *slog.Logger
}

// NewHandler creates a new HTTP request handler with the specified dependencies.
//
// Parameters:
//   - store: Template store holding registered templates and consumed nullifiers
//   - minter: Mint orchestrator verifying proofs and signing PODs
//   - linker: Short link builder for template listings
//   - publisher: Event publisher for template lifecycle events, may be nil
//   - log: Structured logger for operational insights
func NewHandler(store TemplateStore, minter Minter, linker ShortLinker, publisher events.Publisher, log *slog.Logger) *Handler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Handler{
		store:  store,
		minter: minter,
		links:  linker,
		events: publisher,
		log:    log,
	}
}

// mintableTemplate is one value of the listing response.
type mintableTemplate struct {
	PodName        string `json:"podName"`
	PodDescription string `json:"podDescription"`
	MintLink       string `json:"mintLink"`
	Error          string `json:"error,omitempty"`
}

// HandleGetMintablePODs lists registered templates.
//
// URL format: GET /api/getMintablePODs
//
// Response: JSON object keyed by template ID with podName, podDescription
// and the service-relative mintLink.
// Templates lacking display entries are listed with an error field instead.
func (h *Handler) HandleGetMintablePODs(w http.ResponseWriter, r *http.Request) {
	listing := h.store.List()

	response := make(map[string]mintableTemplate, len(listing))
	for _, entry := range listing {
		item := mintableTemplate{
			PodName:        entry.Name,
			PodDescription: entry.Description,
			MintLink:       h.links.ShortLink(entry.ID),
		}
		if entry.Err != nil {
			h.log.Warn("Template listing entry failed", "id", entry.ID.String(), "err", entry.Err)
			item.Error = entry.Err.Error()
		}
		response[entry.ID.String()] = item
	}

	h.writeJSON(w, response)
}

// addRequest is the body of POST /api/addMintablePOD. PodEntries is either
// the simplified entries object or that object serialized as a string.
type addRequest struct {
	PodEntries       json.RawMessage `json:"podEntries"`
	SignerPrivateKey *string         `json:"signerPrivateKey"`
	PodFolder        *string         `json:"podFolder"`
}

// HandleAddMintablePOD registers a template.
//
// URL format: POST /api/addMintablePOD
//
// Request body: {"podEntries": ..., "signerPrivateKey": "...", "podFolder": "..."}
//
// Response: {"podId": "<hex content ID>"}
func (h *Handler) HandleAddMintablePOD(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	entries, err := parseEntries(req.PodEntries)
	if err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}

	register := registry.RegisterRequest{Entries: entries, Folder: req.PodFolder}
	if req.SignerPrivateKey != nil {
		register.SignerKey = *req.SignerPrivateKey
	}

	id, err := h.store.Register(r.Context(), register)
	if err != nil {
		h.log.Error("Template registration failed", "err", err)
		h.writeError(w, err)
		return
	}

	h.publish(r.Context(), events.New(events.TemplateRegistered, id.String()))
	h.writeJSON(w, map[string]string{"podId": id.String()})
}

// HandleRemoveMintablePOD removes a template. Removing an unknown template
// succeeds.
//
// URL format: GET /api/removeMintablePOD/{podId}
func (h *Handler) HandleRemoveMintablePOD(w http.ResponseWriter, r *http.Request) {
	podID := chi.URLParam(r, "podId")
	id, err := interfaces.NewContentIDFromHex(podID)
	if err != nil {
		h.writeError(w, badRequest("invalid POD ID %q: %w", podID, err))
		return
	}

	if err := h.store.Remove(r.Context(), id); err != nil {
		h.log.Error("Template removal failed", "id", podID, "err", err)
		h.writeError(w, err)
		return
	}

	h.publish(r.Context(), events.New(events.TemplateRemoved, id.String()))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "POD %s successfully removed.", podID)
}

// HandleGetPODContent returns the entries of a template.
//
// URL format: GET /api/getPODContent/{podId}
//
// Response: typed entries JSON, or 404 when the template is unknown.
func (h *Handler) HandleGetPODContent(w http.ResponseWriter, r *http.Request) {
	podID := chi.URLParam(r, "podId")
	record, ok := h.lookup(podID)
	if !ok {
		http.Error(w, fmt.Sprintf("POD %s not found.", podID), http.StatusNotFound)
		return
	}

	h.writeJSON(w, record.Entries)
}

// HandleGetMintLink redirects to the long mint link of a template.
//
// URL format: GET /api/getMintLink/{podId}
func (h *Handler) HandleGetMintLink(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookup(chi.URLParam(r, "podId"))
	if !ok || record.MintLink == "" {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	http.Redirect(w, r, record.MintLink, http.StatusFound)
}

// pcdEnvelope wraps a serialized proof as sent by the companion app.
type pcdEnvelope struct {
	PCD string `json:"pcd"`
}

// mintRequest is the body of the mint endpoints. Exactly one proof is used;
// when several are present the signature proof wins, then the credential.
type mintRequest struct {
	ContentID             string       `json:"contentID"`
	SemaphoreSignaturePCD *pcdEnvelope `json:"semaphoreSignaturePCD"`
	EmailPCD              *pcdEnvelope `json:"emailPCD"`
	GPCPCD                *pcdEnvelope `json:"gpcPCD"`
}

func (req *mintRequest) artifact() (verifier.Artifact, error) {
	switch {
	case req.SemaphoreSignaturePCD != nil:
		return verifier.Decode(verifier.KindSignature, req.SemaphoreSignaturePCD.PCD)
	case req.EmailPCD != nil:
		return verifier.Decode(verifier.KindCredential, req.EmailPCD.PCD)
	case req.GPCPCD != nil:
		return verifier.Decode(verifier.KindCircuit, req.GPCPCD.PCD)
	default:
		return nil, badRequest("Missing identity-proving PCD.")
	}
}

// HandleMintPOD mints a POD bound to the proven identity.
//
// URL format: POST /api/mintPOD
//
// Request body: {"contentID": "<hex>", "semaphoreSignaturePCD" | "emailPCD" | "gpcPCD": {"pcd": "..."}}
//
// Response: the signed POD as JSON.
func (h *Handler) HandleMintPOD(w http.ResponseWriter, r *http.Request) {
	id, artifact, err := h.parseMintRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pod, err := h.minter.Mint(r.Context(), id, artifact)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, pod)
}

// HandleSign mints a POD and returns it as a serialized POD-PCD.
//
// URL format: POST /api/sign
//
// Request body: same as /api/mintPOD.
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	id, artifact, err := h.parseMintRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pcd, err := h.minter.MintPortable(r.Context(), id, artifact)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, pcd)
}

func (h *Handler) parseMintRequest(w http.ResponseWriter, r *http.Request) (interfaces.ContentID, verifier.Artifact, error) {
	var req mintRequest
	if err := decodeBody(w, r, &req); err != nil {
		return interfaces.ContentID{}, nil, err
	}

	id, err := interfaces.NewContentIDFromHex(req.ContentID)
	if err != nil {
		return interfaces.ContentID{}, nil, badRequest("invalid content ID %q: %w", req.ContentID, err)
	}

	artifact, err := req.artifact()
	if err != nil {
		return interfaces.ContentID{}, nil, err
	}
	return id, artifact, nil
}

func (h *Handler) lookup(podID string) (interfaces.TemplateRecord, bool) {
	id, err := interfaces.NewContentIDFromHex(podID)
	if err != nil {
		return interfaces.TemplateRecord{}, false
	}
	return h.store.Get(id)
}

func (h *Handler) publish(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	if err := h.events.Publish(ctx, e); err != nil {
		h.log.Warn("Failed to publish event", "type", string(e.Type), "err", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, response any) {
	body, err := json.Marshal(response)
	if err != nil {
		h.log.Error("Failed to encode response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "status", status, "err", err)
	}
	http.Error(w, err.Error(), status)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrUnknownTemplate):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrNullifierAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrVerifierUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, interfaces.ErrInvalidIdentityProof),
		errors.Is(err, interfaces.ErrUnsupportedProofKind),
		errors.Is(err, interfaces.ErrInvalidTemplate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("request body too large")}
		}
		return badRequest("failed to read request body: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("invalid request body: %w", err)
	}
	return nil
}

func parseEntries(raw json.RawMessage) (interfaces.Entries, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.New("missing podEntries")
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("invalid podEntries: %w", err)
		}
		raw = []byte(encoded)
	}
	return interfaces.EntriesFromSimplifiedJSON(raw)
}
