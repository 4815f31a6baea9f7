package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ruteri/pod-mint-service/cryptoutils"
	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/ruteri/pod-mint-service/metrics"
	"go.uber.org/atomic"
)

// DocumentName is the name of the persisted store document.
const DocumentName = "pods.json"

// Folder defaults. Admin registrations with an empty folder land in
// AdminDefaultFolder; requests that omit the folder entirely use DefaultFolder.
const (
	DefaultFolder      = "PODs"
	AdminDefaultFolder = "Test Folder"
)

// persistTimeout bounds a single document write. Writes are detached from
// the request context so a disconnecting client cannot abort a commit.
const persistTimeout = 30 * time.Second

// SignerResolver resolves a record's signer key override to a signer.
type SignerResolver interface {
	Resolve(override string) (*cryptoutils.Signer, error)
}

// LinkBuilder builds the long redemption link for an unowned template POD.
type LinkBuilder interface {
	LongLink(pod *cryptoutils.SignedPOD, folder string) (string, error)
}

// RegisterRequest describes a template to register.
type RegisterRequest struct {
	Entries interfaces.Entries

	// SignerKey is an encoded seed; empty selects the default key.
	SignerKey string

	// Folder is nil when the caller did not supply one.
	Folder *string
}

// ResolveFolder applies the folder defaults.
func ResolveFolder(folder *string) string {
	switch {
	case folder == nil:
		return DefaultFolder
	case *folder == "":
		return AdminDefaultFolder
	default:
		return *folder
	}
}

// ListEntry is one line of the template listing. Err is set when the
// record lacks its display entries; other entries are unaffected.
type ListEntry struct {
	ID          interfaces.ContentID
	Name        string
	Description string
	Err         error
}

// MintFunc signs a POD for a template snapshot.
type MintFunc func(record interfaces.TemplateRecord) (*cryptoutils.SignedPOD, error)

type templateMap = map[interfaces.ContentID]interfaces.TemplateRecord

// Store is the persistent template store. Writers serialize on mu and swap
// in a new map after a successful persist; readers load the current map
// without locking. A published map is never modified.
type Store struct {
	backend interfaces.StorageBackend
	signers SignerResolver
	links   LinkBuilder
	log     *slog.Logger

	mu        sync.Mutex
	templates atomic.Pointer[templateMap]
}

// Open loads the store document from backend. A missing document yields an
// empty store; an unreadable or corrupt document is an error.
func Open(ctx context.Context, backend interfaces.StorageBackend, signers SignerResolver, links LinkBuilder, log *slog.Logger) (*Store, error) {
	s := &Store{
		backend: backend,
		signers: signers,
		links:   links,
		log:     log,
	}
	s.publish(make(templateMap))

	data, err := backend.Fetch(ctx, DocumentName)
	if errors.Is(err, interfaces.ErrContentNotFound) {
		log.Info("No template store document found, starting empty",
			slog.String("backend", backend.Name()))
		metrics.Templates.Set(0)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template store: %w", err)
	}

	templates, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt template store document: %w", err)
	}

	for id, record := range templates {
		computed, err := cryptoutils.ComputeContentID(record.Entries)
		if err != nil || computed != id {
			log.Warn("Stored template ID does not match its entries",
				slog.String("id", id.String()))
		}
	}

	s.publish(templates)
	metrics.Templates.Set(float64(len(templates)))
	log.Info("Loaded template store",
		slog.String("backend", backend.Name()),
		slog.Int("templates", len(templates)))

	return s, nil
}

// Register strips any owner entry, signs the template with the resolved key
// to derive its ID and long link, and persists the record. Registering
// identical entries again replaces the record but keeps its nullifiers.
func (s *Store) Register(ctx context.Context, req RegisterRequest) (interfaces.ContentID, error) {
	entries := req.Entries.Clone()
	delete(entries, interfaces.OwnerEntry)
	if err := entries.Validate(); err != nil {
		return interfaces.ContentID{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidTemplate, err)
	}

	signer, err := s.signers.Resolve(req.SignerKey)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidTemplate, err)
	}

	pod, err := signer.Sign(entries)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("%w: %v", interfaces.ErrSigningFailure, err)
	}

	folder := ResolveFolder(req.Folder)
	mintLink, err := s.links.LongLink(pod, folder)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to build mint link: %w", err)
	}

	record := interfaces.TemplateRecord{
		Entries:   entries,
		SignerKey: req.SignerKey,
		Folder:    folder,
		MintLink:  mintLink,
	}
	id := pod.ContentID

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.snapshot()[id]; ok {
		record.Nullifiers = existing.Clone().Nullifiers
	}

	next := s.copyTemplates()
	next[id] = record
	if err := s.persist(ctx, next); err != nil {
		return interfaces.ContentID{}, err
	}
	s.publish(next)

	s.log.Info("Registered template",
		slog.String("id", id.String()),
		slog.String("folder", folder),
		slog.Bool("customSigner", req.SignerKey != ""))

	return id, nil
}

// Remove deletes a template. Removing an unknown ID is a no-op.
func (s *Store) Remove(ctx context.Context, id interfaces.ContentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshot()[id]; !ok {
		return nil
	}

	next := s.copyTemplates()
	delete(next, id)
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.publish(next)

	s.log.Info("Removed template", slog.String("id", id.String()))
	return nil
}

// Get returns a snapshot of a template record. It does not wait for
// in-flight writes.
func (s *Store) Get(id interfaces.ContentID) (interfaces.TemplateRecord, bool) {
	record, ok := s.snapshot()[id]
	if !ok {
		return interfaces.TemplateRecord{}, false
	}
	return record.Clone(), true
}

// List returns display info for every template, ordered by ID.
func (s *Store) List() []ListEntry {
	templates := s.snapshot()

	out := make([]ListEntry, 0, len(templates))
	for id, record := range templates {
		name, description, err := record.DisplayInfo()
		out = append(out, ListEntry{
			ID:          id,
			Name:        name,
			Description: description,
			Err:         err,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

// Len returns the number of registered templates.
func (s *Store) Len() int {
	return len(s.snapshot())
}

// Redeem consumes nullifier for template id. Under the store lock it checks
// the nullifier, calls mint, records the nullifier and persists. If mint
// fails nothing changes; if persisting fails the minted POD is discarded.
func (s *Store) Redeem(ctx context.Context, id interfaces.ContentID, nullifier string, mint MintFunc) (*cryptoutils.SignedPOD, error) {
	if nullifier == "" {
		return nil, fmt.Errorf("%w: missing nullifier", interfaces.ErrInvalidIdentityProof)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.snapshot()[id]
	if !ok {
		return nil, interfaces.ErrUnknownTemplate
	}
	if record.Nullifiers[nullifier] {
		return nil, interfaces.ErrNullifierAlreadyUsed
	}

	pod, err := mint(record.Clone())
	if err != nil {
		return nil, err
	}

	updated := record.Clone()
	if updated.Nullifiers == nil {
		updated.Nullifiers = make(map[string]bool)
	}
	updated.Nullifiers[nullifier] = true

	next := s.copyTemplates()
	next[id] = updated
	if err := s.persist(ctx, next); err != nil {
		s.log.Error("Discarding minted POD, nullifier not persisted",
			slog.String("id", id.String()),
			"err", err)
		return nil, err
	}
	s.publish(next)

	return pod, nil
}

// Close writes the current state one last time.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(ctx, s.snapshot())
}

// snapshot returns the current template map. Callers must not modify it.
func (s *Store) snapshot() templateMap {
	return *s.templates.Load()
}

func (s *Store) publish(templates templateMap) {
	s.templates.Store(&templates)
}

// copyTemplates returns a shallow copy of the template map. Records are
// never mutated in place, so sharing them between maps is safe.
func (s *Store) copyTemplates() templateMap {
	current := s.snapshot()
	next := make(templateMap, len(current)+1)
	for id, record := range current {
		next[id] = record
	}
	return next
}

// persist writes templates as the store document. Must be called with mu held.
func (s *Store) persist(ctx context.Context, templates templateMap) error {
	start := time.Now()

	data, err := encodeDocument(templates)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrPersistenceFailure, err)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.backend.Store(writeCtx, DocumentName, data); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrPersistenceFailure, err)
	}

	metrics.ObserveSince(metrics.PersistDuration, start)
	metrics.Templates.Set(float64(len(templates)))
	return nil
}

func encodeDocument(templates templateMap) ([]byte, error) {
	doc := make(map[string]interfaces.TemplateRecord, len(templates))
	for id, record := range templates {
		doc[id.String()] = record
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeDocument(data []byte) (templateMap, error) {
	var doc map[string]interfaces.TemplateRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("document is not an object")
	}

	templates := make(templateMap, len(doc))
	for key, record := range doc {
		id, err := interfaces.NewContentIDFromHex(key)
		if err != nil {
			return nil, fmt.Errorf("invalid template ID %q: %w", key, err)
		}
		if err := record.Entries.Validate(); err != nil {
			return nil, fmt.Errorf("template %s: %w", key, err)
		}
		templates[id] = record
	}
	return templates, nil
}
