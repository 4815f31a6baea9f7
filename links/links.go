// Package links builds the redemption links handed out for templates.
//
// The short link is a stable path on this service that redirects to the
// long link. The long link opens the companion wallet's add screen with the
// unowned template POD attached, so a user can preview the POD before
// proving their identity to the mint endpoint.
package links

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/interfaces"
)

// ShortLinkPrefix is the path of the redirect endpoint.
const ShortLinkPrefix = "/api/getMintLink/"

// Generator builds links for one deployment.
type Generator struct {
	// MintURL is where the wallet posts redemption requests.
	MintURL string

	// ZupassURL is the wallet base URL; it is also the return URL.
	ZupassURL string
}

// NewGenerator validates both URLs and returns a generator.
func NewGenerator(mintURL, zupassURL string) (*Generator, error) {
	for _, u := range []string{mintURL, zupassURL} {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid absolute URL %q", u)
		}
	}
	return &Generator{MintURL: mintURL, ZupassURL: strings.TrimSuffix(zupassURL, "/")}, nil
}

// ShortLink returns the service-relative redirect path for a template.
func (g *Generator) ShortLink(id interfaces.ContentID) string {
	return ShortLinkPrefix + id.String()
}

type addRequest struct {
	Type             string                     `json:"type"`
	MintURL          string                     `json:"mintUrl"`
	ReturnURL        string                     `json:"returnUrl"`
	PCD              *cryptoutils.SerializedPCD `json:"pcd"`
	Folder           string                     `json:"folder"`
	PostMessage      bool                       `json:"postMessage"`
	RedirectToFolder bool                       `json:"redirectToFolder"`
}

// LongLink returns the wallet add link for an unowned template POD.
func (g *Generator) LongLink(pod *cryptoutils.SignedPOD, folder string) (string, error) {
	if pod == nil {
		return "", errors.New("missing template POD")
	}
	if _, owned := pod.Owner(); owned {
		return "", errors.New("template POD must not carry an owner")
	}

	pcd, err := cryptoutils.SerializePODPCD(pod)
	if err != nil {
		return "", fmt.Errorf("failed to serialize template POD: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(addRequest{
		Type:             "Add",
		MintURL:          g.MintURL,
		ReturnURL:        g.ZupassURL,
		PCD:              pcd,
		Folder:           folder,
		PostMessage:      false,
		RedirectToFolder: true,
	}); err != nil {
		return "", err
	}

	return g.ZupassURL + "#/add?request=" + EncodeURIComponent(strings.TrimSuffix(buf.String(), "\n")), nil
}

// componentReplacer undoes the differences between url.QueryEscape and the
// URI component encoding wallets expect.
var componentReplacer = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeURIComponent escapes s like ECMAScript's encodeURIComponent.
func EncodeURIComponent(s string) string {
	return componentReplacer.Replace(url.QueryEscape(s))
}
