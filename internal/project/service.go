// Package project stores project documents, keeps their metadata index in step
// and rebuilds full projects with their images on load.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"studio-store/internal/auth"
	domain "studio-store/internal/domain/project"
	"studio-store/internal/imagekey"
	"studio-store/internal/observability"
	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"
	"studio-store/pkg/validator"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultFetchConcurrency = 8
	DefaultOrphanGrace      = 24 * time.Hour

	partDocument = "document"
	partMetadata = "metadata"
	partImages   = "images"

	msgDocumentRequired   = "document is required"
	msgDataRequired       = "document data is required"
	msgNegativeVersion    = "version must not be negative"
	msgTooManyImagesFmt   = "at most %d reference images are allowed"
	msgInlineImageFmt     = "%s must be an image reference, not inline data"
	msgGeneratedIndexFmt  = "generated image index %d out of range"
	msgProjectNotFoundFmt = "project %s not found"
	msgVersionConflictFmt = "project %s is at version %d, save was based on version %d"
	msgMetadataWriteFmt   = "project %s version %d saved but metadata write failed"
	msgDeletePartialFmt   = "project %s delete incomplete, failed: %s"
	errDecodeDocumentFmt  = "failed to decode document %s: %w"
	errDecodeMetadataFmt  = "failed to decode metadata %s: %w"
)

type Config struct {
	FetchConcurrency int
	// OrphanGrace protects image prefixes without a document from Audit until
	// their newest object is this old.
	OrphanGrace time.Duration
}

type Service struct {
	kv               storage.KV
	blobs            storage.BlobStore
	fetchConcurrency int
	orphanGrace      time.Duration
	now              func() time.Time
}

func NewService(kv storage.KV, blobs storage.BlobStore, cfg Config) *Service {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = DefaultFetchConcurrency
	}
	if cfg.OrphanGrace <= 0 {
		cfg.OrphanGrace = DefaultOrphanGrace
	}
	return &Service{
		kv:               kv,
		blobs:            blobs,
		fetchConcurrency: cfg.FetchConcurrency,
		orphanGrace:      cfg.OrphanGrace,
		now:              time.Now,
	}
}

// Save writes doc and then its metadata record. doc.Version must equal the
// stored version (0 for a new project); the saved document carries the next one.
// The document is authoritative: when only the metadata write fails the result
// is a persistence failure and the next Load or Reindex rebuilds the record.
func (s *Service) Save(ctx context.Context, doc *domain.Document, principal auth.Principal) (*domain.Document, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	if principal.IsAnonymous() {
		return nil, apperrors.Unauthorized("saving a project requires a signed-in user")
	}

	var saved domain.Document
	err := s.kv.Update(ctx, storage.ProjectKey(doc.ID), 0, func(current []byte, exists bool) ([]byte, error) {
		var stored domain.Document
		if exists {
			if err := json.Unmarshal(current, &stored); err != nil {
				return nil, fmt.Errorf(errDecodeDocumentFmt, doc.ID, err)
			}
			if !principal.CanWrite(stored.UserID) {
				return nil, auth.NotOwner()
			}
		}
		if stored.Version != doc.Version {
			return nil, apperrors.Conflict(fmt.Sprintf(msgVersionConflictFmt, doc.ID, stored.Version, doc.Version))
		}

		saved = *doc
		saved.UserID = effectiveOwner(principal, doc.UserID, stored.UserID)
		saved.Version = stored.Version + 1
		if saved.Timestamp <= 0 {
			saved.Timestamp = s.now().UnixMilli()
		}
		return json.Marshal(&saved)
	})
	if err != nil {
		return nil, err
	}

	userName := s.ownerName(ctx, &saved, principal)
	if err := s.putMetadata(ctx, saved.Metadata(userName)); err != nil {
		observability.PersistenceFailures.WithLabelValues("save").Inc()
		log.Printf("project %s version %d: document written, metadata write failed: %v", saved.ID, saved.Version, err)
		return &saved, apperrors.PersistenceFailure(fmt.Sprintf(msgMetadataWriteFmt, saved.ID, saved.Version), err)
	}

	return &saved, nil
}

// Load returns the stored document with every resolvable image slot replaced by
// a data URI of the image bytes.
func (s *Service) Load(ctx context.Context, id string, principal auth.Principal) (*domain.Document, error) {
	if err := validator.ProjectID(id); err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}

	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.CanRead(doc.UserID) {
		return nil, auth.NotOwner()
	}

	s.repairMetadata(ctx, doc)

	if err := s.reconstruct(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the document, the metadata record and every image of the
// project. The image listing runs to completion first and may be cancelled;
// once the removals start they run to the end regardless of ctx.
func (s *Service) Delete(ctx context.Context, id string, principal auth.Principal) error {
	if err := validator.ProjectID(id); err != nil {
		return apperrors.BadRequest(err.Error())
	}

	owner, found, err := s.lookupOwner(ctx, id)
	if err != nil {
		return err
	}
	if !found && !principal.IsAdmin() {
		return apperrors.NotFound(fmt.Sprintf(msgProjectNotFoundFmt, id))
	}
	if !principal.CanWrite(owner) {
		return auth.NotOwner()
	}

	paths, err := storage.ListAll(ctx, s.blobs, storage.ImagePrefix(id))
	if err != nil {
		return err
	}
	if !found && len(paths) == 0 {
		return apperrors.NotFound(fmt.Sprintf(msgProjectNotFoundFmt, id))
	}

	delCtx := context.WithoutCancel(ctx)
	var docErr, metaErr, blobErr error
	var g errgroup.Group
	g.Go(func() error {
		docErr = s.kv.Delete(delCtx, storage.ProjectKey(id))
		return docErr
	})
	g.Go(func() error {
		metaErr = s.kv.Delete(delCtx, storage.MetaKey(id))
		return metaErr
	})
	g.Go(func() error {
		blobErr = s.blobs.Delete(delCtx, paths...)
		return blobErr
	})
	if g.Wait() == nil {
		return nil
	}

	var failed []string
	var errs []error
	for _, part := range []struct {
		name string
		err  error
	}{{partDocument, docErr}, {partMetadata, metaErr}, {partImages, blobErr}} {
		if part.err != nil {
			failed = append(failed, part.name)
			errs = append(errs, part.err)
		}
	}

	observability.PersistenceFailures.WithLabelValues("delete").Inc()
	log.Printf("project %s: delete incomplete (%s), %d image paths enumerated; run audit to reconcile: %v",
		id, strings.Join(failed, ", "), len(paths), errors.Join(errs...))
	return apperrors.PersistenceFailure(fmt.Sprintf(msgDeletePartialFmt, id, strings.Join(failed, ", ")), errors.Join(errs...))
}

// List returns the metadata records visible to principal, newest first. Equal
// timestamps are ordered by id.
func (s *Service) List(ctx context.Context, principal auth.Principal) ([]domain.Metadata, error) {
	if principal.IsAnonymous() {
		return []domain.Metadata{}, nil
	}

	all, err := s.listMetadata(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]domain.Metadata, 0, len(all))
	for _, meta := range all {
		if principal.IsAdmin() || meta.UserID == principal.UserID {
			visible = append(visible, meta)
		}
	}

	sort.Slice(visible, func(i, j int) bool {
		if visible[i].Timestamp != visible[j].Timestamp {
			return visible[i].Timestamp > visible[j].Timestamp
		}
		return visible[i].ID < visible[j].ID
	})

	return visible, nil
}

func (s *Service) listMetadata(ctx context.Context) ([]domain.Metadata, error) {
	keys, err := s.kv.Keys(ctx, storage.PrefixMeta)
	if err != nil {
		return nil, err
	}

	records := make([]*domain.Metadata, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			meta, err := s.getMetadata(gctx, storage.IDFromKey(storage.PrefixMeta, key))
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				return nil
			case errors.Is(err, apperrors.ErrStorageUnavailable):
				return err
			case err != nil:
				log.Printf("skipping unreadable metadata %s: %v", key, err)
				return nil
			}
			records[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Metadata, 0, len(records))
	for _, meta := range records {
		if meta != nil {
			out = append(out, *meta)
		}
	}
	return out, nil
}

func (s *Service) getDocument(ctx context.Context, id string) (*domain.Document, error) {
	value, err := s.kv.Get(ctx, storage.ProjectKey(id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf(msgProjectNotFoundFmt, id))
	}
	if err != nil {
		return nil, err
	}

	var doc domain.Document
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, fmt.Errorf(errDecodeDocumentFmt, id, err)
	}
	return &doc, nil
}

func (s *Service) getMetadata(ctx context.Context, id string) (*domain.Metadata, error) {
	value, err := s.kv.Get(ctx, storage.MetaKey(id))
	if err != nil {
		return nil, err
	}

	var meta domain.Metadata
	if err := json.Unmarshal(value, &meta); err != nil {
		return nil, fmt.Errorf(errDecodeMetadataFmt, id, err)
	}
	return &meta, nil
}

// putMetadata never replaces a record derived from a newer document version.
func (s *Service) putMetadata(ctx context.Context, meta domain.Metadata) error {
	return s.kv.Update(ctx, storage.MetaKey(meta.ID), 0, func(current []byte, exists bool) ([]byte, error) {
		if exists {
			var stored domain.Metadata
			if err := json.Unmarshal(current, &stored); err == nil && stored.Version > meta.Version {
				return current, nil
			}
		}
		return json.Marshal(&meta)
	})
}

// lookupOwner finds the owner from the document, or from the metadata when the
// document is already gone.
func (s *Service) lookupOwner(ctx context.Context, id string) (string, bool, error) {
	doc, err := s.getDocument(ctx, id)
	if err == nil {
		return doc.UserID, true, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return "", false, err
	}

	meta, err := s.getMetadata(ctx, id)
	if err == nil {
		return meta.UserID, true, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return "", false, err
	}
	return "", false, nil
}

// Owner reports who owns project id. found is false when neither a document nor
// a metadata record exists.
func (s *Service) Owner(ctx context.Context, id string) (owner string, found bool, err error) {
	if err := validator.ProjectID(id); err != nil {
		return "", false, apperrors.BadRequest(err.Error())
	}
	return s.lookupOwner(ctx, id)
}

// ownerName is the display name denormalized into metadata. A principal saving
// its own project supplies it; otherwise the existing record's name is kept.
func (s *Service) ownerName(ctx context.Context, doc *domain.Document, principal auth.Principal) string {
	if principal.Kind == auth.KindUser && principal.UserID == doc.UserID {
		return principal.DisplayName()
	}
	return s.existingOwnerName(ctx, doc)
}

func (s *Service) existingOwnerName(ctx context.Context, doc *domain.Document) string {
	if meta, err := s.getMetadata(ctx, doc.ID); err == nil && meta.UserID == doc.UserID && meta.UserName != "" {
		return meta.UserName
	}
	return doc.UserID
}

// repairMetadata rebuilds a missing or outdated metadata record from the
// document. Failures are logged; the load itself does not depend on it.
func (s *Service) repairMetadata(ctx context.Context, doc *domain.Document) {
	meta, err := s.getMetadata(ctx, doc.ID)
	if err == nil && meta.Version >= doc.Version {
		return
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		log.Printf("project %s: cannot read metadata for repair: %v", doc.ID, err)
		return
	}

	if err := s.putMetadata(ctx, doc.Metadata(s.existingOwnerName(ctx, doc))); err != nil {
		log.Printf("project %s: metadata repair failed: %v", doc.ID, err)
		return
	}
	log.Printf("project %s: rebuilt metadata at version %d", doc.ID, doc.Version)
}

func effectiveOwner(principal auth.Principal, requested, stored string) string {
	if !principal.IsAdmin() {
		return principal.UserID
	}
	switch {
	case requested != "":
		return requested
	case stored != "":
		return stored
	default:
		return auth.AdminOwner
	}
}

func validateDocument(doc *domain.Document) error {
	if doc == nil {
		return apperrors.InvalidDocument(msgDocumentRequired)
	}
	if err := validator.ProjectID(doc.ID); err != nil {
		return apperrors.InvalidDocument(err.Error())
	}
	if err := validator.ProjectName(doc.Name); err != nil {
		return apperrors.InvalidDocument(err.Error())
	}
	if doc.Data == nil {
		return apperrors.InvalidDocument(msgDataRequired)
	}
	if doc.Version < 0 {
		return apperrors.InvalidDocument(msgNegativeVersion)
	}

	if len(doc.Data.Images) > imagekey.MaxReferenceImages {
		return apperrors.InvalidDocument(fmt.Sprintf(msgTooManyImagesFmt, imagekey.MaxReferenceImages))
	}
	for i, ref := range doc.Data.Images {
		if isInline(ref) {
			return apperrors.InvalidDocument(fmt.Sprintf(msgInlineImageFmt, fmt.Sprintf("images[%d]", i)))
		}
	}
	for idx, ref := range doc.Data.GeneratedImages {
		if !(imagekey.Slot{Role: imagekey.RoleGenerated, Index: idx}).Valid() {
			return apperrors.InvalidDocument(fmt.Sprintf(msgGeneratedIndexFmt, idx))
		}
		if isInline(ref) {
			return apperrors.InvalidDocument(fmt.Sprintf(msgInlineImageFmt, fmt.Sprintf("generatedImages[%d]", idx)))
		}
	}
	return nil
}

func isInline(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(strings.ToLower(ref)), "data:")
}
