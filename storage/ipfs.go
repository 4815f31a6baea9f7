package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/pod-mint-service/interfaces"
)

// IPFSBackend implements a storage backend on an IPFS node's mutable file
// system (MFS). Each Store pins a new immutable version and repoints the
// MFS path at it.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	dir         string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the node
// API at host:port, keeping documents under dir in MFS.
func NewIPFSBackend(host, port, dir string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	if dir == "" {
		dir = "/pod-mint"
	}
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}

	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		dir:         dir,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiURL, dir),
	}, nil
}

// Fetch reads a document from MFS.
func (b *IPFSBackend) Fetch(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	mfsPath := path.Join(b.dir, name)

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to read document from IPFS",
			slog.String("path", mfsPath),
			"err", err)
		return nil, fmt.Errorf("failed to read from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched document from IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store writes a document into MFS, replacing the previous version.
func (b *IPFSBackend) Store(ctx context.Context, name string, data []byte) error {
	mfsPath := path.Join(b.dir, name)

	err := b.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("failed to write to IPFS: %w", err)
	}

	b.log.Debug("Stored document in IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)))

	return nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}
