package interfaces

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ContentID is the field element digest of a POD's canonical entries,
// stored as 32 big-endian bytes.
type ContentID [32]byte

// NewContentIDFromBig converts a field element into a content ID.
func NewContentIDFromBig(n *big.Int) (ContentID, error) {
	if n.Sign() < 0 || n.Cmp(fr.Modulus()) >= 0 {
		return ContentID{}, errors.New("content ID out of field range")
	}
	var id ContentID
	n.FillBytes(id[:])
	return id, nil
}

// NewContentIDFromHex parses the hex form produced by String. A 0x prefix
// and leading zeros are accepted.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(strings.ToLower(source), "0x")
	if len(clean) == 0 || len(clean) > 64 {
		return ContentID{}, errors.New("invalid content ID length")
	}

	n, ok := new(big.Int).SetString(clean, 16)
	if !ok {
		return ContentID{}, fmt.Errorf("invalid hex format: %q", source)
	}
	return NewContentIDFromBig(n)
}

// String returns the hex representation without leading zeros.
func (id ContentID) String() string {
	return id.Big().Text(16)
}

// Big returns the content ID as an integer.
func (id ContentID) Big() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// Bytes returns the raw 32-byte form.
func (id ContentID) Bytes() []byte {
	return id[:]
}

// StorageBackendLocation is a URI naming a document storage backend.
// Supported schemes: file, s3, ipfs, vault.
type StorageBackendLocation string

// Validate checks the URI syntax and scheme.
func (loc StorageBackendLocation) Validate() error {
	parsed, err := url.Parse(string(loc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "ipfs", "vault":
		return nil
	default:
		return fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}
}

var (
	// ErrContentNotFound is returned when the requested document does not exist in a backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend stores named documents.
type StorageBackend interface {
	// Fetch retrieves a document by name.
	Fetch(ctx context.Context, name string) ([]byte, error)

	// Store replaces a document. Implementations must never leave a
	// partially written document visible to Fetch.
	Store(ctx context.Context, name string, data []byte) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends.
type StorageBackendFactory interface {
	// StorageBackendFor creates backend from URI.
	StorageBackendFor(locationURI StorageBackendLocation) (StorageBackend, error)

	// CreateMultiBackend creates a backend writing to a primary and mirroring to the rest.
	CreateMultiBackend(primary StorageBackendLocation, mirrors []StorageBackendLocation) (StorageBackend, error)
}
