package project

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"

	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"
	"studio-store/pkg/validator"
)

// AuditReport lists the cross-store inconsistencies found by Audit.
type AuditReport struct {
	// OrphanMetadata are metadata records without a document.
	OrphanMetadata []string `json:"orphanMetadata"`
	// MissingMetadata are documents without a metadata record.
	MissingMetadata []string `json:"missingMetadata"`
	// StaleMetadata are records derived from an older document version.
	StaleMetadata []string `json:"staleMetadata"`
	// OrphanImages are project image prefixes without a document.
	OrphanImages []string `json:"orphanImages"`
	// PendingImages are prefixes without a document written to within the
	// grace window. They are reported but never removed.
	PendingImages []string `json:"pendingImages"`
	Fixed         bool     `json:"fixed"`
}

func (r *AuditReport) Clean() bool {
	return len(r.OrphanMetadata) == 0 && len(r.MissingMetadata) == 0 &&
		len(r.StaleMetadata) == 0 && len(r.OrphanImages) == 0
}

// Reindex rebuilds the metadata record of one project from its document, or of
// every project when id is empty. It returns the number of records written.
func (s *Service) Reindex(ctx context.Context, id string) (int, error) {
	if id != "" {
		if err := validator.ProjectID(id); err != nil {
			return 0, apperrors.BadRequest(err.Error())
		}
		if err := s.reindexOne(ctx, id); err != nil {
			return 0, err
		}
		return 1, nil
	}

	ids, err := s.ids(ctx, storage.PrefixProject)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		err := s.reindexOne(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Service) reindexOne(ctx context.Context, id string) error {
	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return err
	}
	return s.putMetadata(ctx, doc.Metadata(s.existingOwnerName(ctx, doc)))
}

// Audit compares documents, metadata records and image prefixes. With fix set
// it deletes orphan metadata and images and rebuilds missing or stale metadata.
// Image prefixes changed within the orphan grace window, or whose age the
// backend does not report, count as pending uploads and are kept.
func (s *Service) Audit(ctx context.Context, fix bool) (*AuditReport, error) {
	docIDs, err := s.ids(ctx, storage.PrefixProject)
	if err != nil {
		return nil, err
	}
	metaIDs, err := s.ids(ctx, storage.PrefixMeta)
	if err != nil {
		return nil, err
	}
	imagePaths, err := storage.ListAllModified(ctx, s.blobs, storage.ImagesRoot)
	if err != nil {
		return nil, err
	}

	docs := toSet(docIDs)
	metas := toSet(metaIDs)
	report := &AuditReport{
		OrphanMetadata:  []string{},
		MissingMetadata: []string{},
		StaleMetadata:   []string{},
		OrphanImages:    []string{},
		PendingImages:   []string{},
	}

	for _, id := range metaIDs {
		if _, ok := docs[id]; !ok {
			report.OrphanMetadata = append(report.OrphanMetadata, id)
		}
	}

	for _, id := range docIDs {
		if _, ok := metas[id]; !ok {
			report.MissingMetadata = append(report.MissingMetadata, id)
			continue
		}
		doc, err := s.getDocument(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		meta, err := s.getMetadata(ctx, id)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			if errors.Is(err, apperrors.ErrStorageUnavailable) {
				return nil, err
			}
			// undecodable record
			report.StaleMetadata = append(report.StaleMetadata, id)
			continue
		}
		if meta != nil && meta.Version < doc.Version {
			report.StaleMetadata = append(report.StaleMetadata, id)
		}
	}

	orphanPaths := make(map[string][]string)
	pending := make(map[string]struct{})
	cutoff := s.now().Add(-s.orphanGrace)
	for path, modified := range imagePaths {
		id := projectIDFromImagePath(path)
		if id == "" {
			continue
		}
		if _, ok := docs[id]; ok {
			continue
		}
		orphanPaths[id] = append(orphanPaths[id], path)
		if modified.IsZero() || modified.After(cutoff) {
			pending[id] = struct{}{}
		}
	}
	for id := range orphanPaths {
		if _, ok := pending[id]; ok {
			report.PendingImages = append(report.PendingImages, id)
			continue
		}
		report.OrphanImages = append(report.OrphanImages, id)
	}
	sort.Strings(report.OrphanImages)
	sort.Strings(report.PendingImages)

	if !fix || report.Clean() {
		return report, nil
	}

	if len(report.OrphanMetadata) > 0 {
		keys := make([]string, 0, len(report.OrphanMetadata))
		for _, id := range report.OrphanMetadata {
			keys = append(keys, storage.MetaKey(id))
		}
		if err := s.kv.Delete(ctx, keys...); err != nil {
			return report, err
		}
	}

	for _, id := range report.OrphanImages {
		if err := s.blobs.Delete(ctx, orphanPaths[id]...); err != nil {
			return report, err
		}
	}

	for _, id := range append(append([]string{}, report.MissingMetadata...), report.StaleMetadata...) {
		if err := s.reindexOne(ctx, id); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return report, err
		}
	}

	report.Fixed = true
	log.Printf("audit fixed %d orphan metadata, %d orphan image prefixes, %d missing and %d stale metadata records",
		len(report.OrphanMetadata), len(report.OrphanImages), len(report.MissingMetadata), len(report.StaleMetadata))
	return report, nil
}

func (s *Service) ids(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, storage.IDFromKey(prefix, key))
	}
	sort.Strings(ids)
	return ids, nil
}

// projectIDFromImagePath extracts {id} from images/{id}/{file}.
func projectIDFromImagePath(path string) string {
	rest := strings.TrimPrefix(path, storage.ImagesRoot)
	id, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
