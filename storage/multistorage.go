package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/pod-mint-service/interfaces"
)

// MultiStorageBackend implements interfaces.StorageBackend over a primary
// backend and any number of mirrors. Writes must reach the primary; mirrors
// are written best-effort and may lag behind it. Reads therefore come from the
// primary, and mirrors are only consulted when the primary has no document.
type MultiStorageBackend struct {
	primary interfaces.StorageBackend
	mirrors []interfaces.StorageBackend
	log     *slog.Logger
}

// NewMultiStorageBackend creates a multi-storage backend.
func NewMultiStorageBackend(primary interfaces.StorageBackend, mirrors []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		primary: primary,
		mirrors: mirrors,
		log:     logger,
	}
}

// Fetch returns the primary's document. Only when the primary reports
// ErrContentNotFound is the document restored from the first mirror that has
// it. An unreachable or failing primary is an error: a mirror copy may be
// stale and must not replace newer primary state.
func (m *MultiStorageBackend) Fetch(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()

	if !m.primary.Available(ctx) {
		m.log.Error("Primary backend unavailable",
			slog.String("backend_name", m.primary.Name()),
			slog.String("document", name))
		return nil, fmt.Errorf("%s: %w", m.primary.Name(), interfaces.ErrBackendUnavailable)
	}

	data, err := m.primary.Fetch(ctx, name)
	if err == nil {
		m.log.Debug("Fetched document",
			slog.String("backend_name", m.primary.Name()),
			slog.String("document", name),
			slog.Duration("duration", time.Since(start)))
		return data, nil
	}
	if !errors.Is(err, interfaces.ErrContentNotFound) {
		m.log.Error("Failed to fetch from primary backend",
			slog.String("backend_name", m.primary.Name()),
			slog.String("document", name),
			"err", err)
		return nil, fmt.Errorf("%s: %w", m.primary.Name(), err)
	}

	var errs []error
	for _, mirror := range m.mirrors {
		if !mirror.Available(ctx) {
			errs = append(errs, fmt.Errorf("%s: %w", mirror.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		data, err := mirror.Fetch(ctx, name)
		if err == nil {
			m.log.Info("Restored document from mirror",
				slog.String("backend_name", mirror.Name()),
				slog.String("document", name),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}
		if !errors.Is(err, interfaces.ErrContentNotFound) {
			m.log.Warn("Failed to fetch from mirror",
				slog.String("backend_name", mirror.Name()),
				slog.String("document", name),
				"err", err)
			errs = append(errs, fmt.Errorf("%s: %w", mirror.Name(), err))
		}
	}

	// A mirror that could not be read might hold the only copy.
	if len(errs) > 0 {
		return nil, fmt.Errorf("document %s missing on primary and mirrors failed: %w", name, errors.Join(errs...))
	}
	return nil, interfaces.ErrContentNotFound
}

// Store writes the document to the primary, then to every available mirror.
// A mirror failure is logged and does not fail the write.
func (m *MultiStorageBackend) Store(ctx context.Context, name string, data []byte) error {
	start := time.Now()

	if err := m.primary.Store(ctx, name, data); err != nil {
		m.log.Error("Failed to store to primary backend",
			slog.String("backend_name", m.primary.Name()),
			slog.String("document", name),
			"err", err)
		return fmt.Errorf("%s: %w", m.primary.Name(), err)
	}

	for _, mirror := range m.mirrors {
		if !mirror.Available(ctx) {
			m.log.Warn("Mirror unavailable, skipping", slog.String("backend_name", mirror.Name()))
			continue
		}
		if err := mirror.Store(ctx, name, data); err != nil {
			m.log.Warn("Failed to store to mirror",
				slog.String("backend_name", mirror.Name()),
				slog.String("document", name),
				"err", err)
		}
	}

	m.log.Debug("Stored document",
		slog.String("document", name),
		slog.Int("size", len(data)),
		slog.Int("mirrors", len(m.mirrors)),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Available reports whether the primary backend is accessible.
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	return m.primary.Available(ctx)
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined URI listing the primary first.
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.all() {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}

func (m *MultiStorageBackend) all() []interfaces.StorageBackend {
	return append([]interfaces.StorageBackend{m.primary}, m.mirrors...)
}
