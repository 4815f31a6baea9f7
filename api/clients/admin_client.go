package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/ruteri/pod-mint-service/links"
	"github.com/ruteri/pod-mint-service/verifier"
)

// Template is one entry of the template listing.
type Template struct {
	PodName        string `json:"podName"`
	PodDescription string `json:"podDescription"`
	MintLink       string `json:"mintLink"`
	Error          string `json:"error,omitempty"`
}

// AdminClient provides methods for interacting with the mint service API.
// Administration calls authenticate with basic auth; minting calls are public.
type AdminClient struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
}

// NewAdminClient creates a new client for the mint service.
//
// Parameters:
//   - baseURL: The base URL of the service (e.g., "http://localhost:8080")
//   - user, password: Admin credentials
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewAdminClient(baseURL, user, password string, timeout ...time.Duration) *AdminClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &AdminClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		user:     user,
		password: password,
		httpClient: &http.Client{
			Timeout: clientTimeout,
			// Mint links answer with redirects to the wallet.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// List returns registered templates keyed by hex template ID.
func (c *AdminClient) List(ctx context.Context) (map[string]Template, error) {
	var result map[string]Template
	if err := c.do(ctx, http.MethodGet, "/api/getMintablePODs", nil, true, &result); err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	return result, nil
}

// Add registers a template from simplified entries JSON. An empty signerKey
// selects the server default key; a nil folder selects the server default.
func (c *AdminClient) Add(ctx context.Context, entries json.RawMessage, signerKey string, folder *string) (string, error) {
	reqBody := map[string]any{
		"podEntries":       entries,
		"signerPrivateKey": signerKey,
	}
	if folder != nil {
		reqBody["podFolder"] = *folder
	}

	var result struct {
		PodID string `json:"podId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/addMintablePOD", reqBody, true, &result); err != nil {
		return "", fmt.Errorf("add request failed: %w", err)
	}
	return result.PodID, nil
}

// Remove deletes a template.
func (c *AdminClient) Remove(ctx context.Context, podID string) error {
	if err := c.do(ctx, http.MethodGet, "/api/removeMintablePOD/"+url.PathEscape(podID), nil, true, nil); err != nil {
		return fmt.Errorf("remove request failed: %w", err)
	}
	return nil
}

// Content returns the entries of a template.
func (c *AdminClient) Content(ctx context.Context, podID string) (interfaces.Entries, error) {
	var entries interfaces.Entries
	if err := c.do(ctx, http.MethodGet, "/api/getPODContent/"+url.PathEscape(podID), nil, false, &entries); err != nil {
		return nil, fmt.Errorf("content request failed: %w", err)
	}
	return entries, nil
}

// MintLink resolves the short link of a template to its long wallet link.
func (c *AdminClient) MintLink(ctx context.Context, podID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+links.ShortLinkPrefix+url.PathEscape(podID), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mint link request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("mint link request failed with code %d: %s", resp.StatusCode, string(body))
	}
	return resp.Header.Get("Location"), nil
}

// Mint redeems a template with an identity proof and returns the signed POD.
func (c *AdminClient) Mint(ctx context.Context, podID string, artifact verifier.Artifact) (*cryptoutils.SignedPOD, error) {
	encoded, err := verifier.Encode(artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proof: %w", err)
	}

	field, err := proofField(artifact.Kind())
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"contentID": podID,
		field:       map[string]string{"pcd": encoded},
	}

	var pod cryptoutils.SignedPOD
	if err := c.do(ctx, http.MethodPost, "/api/mintPOD", reqBody, false, &pod); err != nil {
		return nil, fmt.Errorf("mint request failed: %w", err)
	}
	return &pod, nil
}

func proofField(kind verifier.Kind) (string, error) {
	switch kind {
	case verifier.KindSignature:
		return "semaphoreSignaturePCD", nil
	case verifier.KindCredential:
		return "emailPCD", nil
	case verifier.KindCircuit:
		return "gpcPCD", nil
	default:
		return "", fmt.Errorf("%w: %q", interfaces.ErrUnsupportedProofKind, kind)
	}
}

// do sends a request and decodes a JSON response into out, if non-nil.
func (c *AdminClient) do(ctx context.Context, method, path string, body any, admin bool, out any) error {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
