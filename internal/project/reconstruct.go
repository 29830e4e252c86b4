package project

import (
	"context"
	"encoding/base64"
	"errors"
	"log"

	domain "studio-store/internal/domain/project"
	"studio-store/internal/imagekey"
	"studio-store/internal/observability"
	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// fetchJob is one image slot of a document bound to the blob that fills it.
type fetchJob struct {
	slot imagekey.Slot
	path string
	uri  string
}

// reconstruct lists the project's images to exhaustion, binds them to the
// document's slots and splices their bytes back in as data URIs. A blob that
// disappears between listing and fetch leaves its slot untouched; any other
// fetch failure fails the whole load.
func (s *Service) reconstruct(ctx context.Context, doc *domain.Document) error {
	if doc.Data == nil {
		return nil
	}

	paths, err := storage.ListAll(ctx, s.blobs, storage.ImagePrefix(doc.ID))
	if err != nil {
		return err
	}

	jobs := assignSlots(doc, paths)
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i := range jobs {
		job := &jobs[i]
		g.Go(func() error {
			obj, err := s.blobs.Get(gctx, job.path)
			if errors.Is(err, apperrors.ErrNotFound) {
				log.Printf("project %s: image %s listed but missing, slot %s left as stored", doc.ID, job.path, job.slot)
				return nil
			}
			if err != nil {
				return err
			}
			job.uri = dataURI(obj, job.path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data := doc.Data.Clone()
	restored := 0
	for _, job := range jobs {
		if job.uri == "" {
			continue
		}
		switch job.slot.Role {
		case imagekey.RoleReference:
			data.Images[job.slot.Index] = job.uri
		case imagekey.RoleGenerated:
			data.GeneratedImages[job.slot.Index] = job.uri
		}
		restored++
	}
	doc.Data = data
	observability.ImagesReconstructed.Add(float64(restored))

	return nil
}

// assignSlots binds listed blob paths to the slots present in the document.
// A slot whose stored reference names a listed blob takes that blob. Otherwise
// it takes the role-tagged blob for the same slot, the greatest filename
// winning when several exist. Blobs matching neither rule are ignored.
func assignSlots(doc *domain.Document, paths []string) []fetchJob {
	listed := make(map[string]struct{}, len(paths))
	tagged := make(map[imagekey.Slot]string)
	for _, path := range paths {
		listed[path] = struct{}{}

		key, err := imagekey.Parse(storage.Filename(path))
		if err != nil || !key.Tagged() {
			continue
		}
		if current, ok := tagged[key.Slot]; !ok || path > current {
			tagged[key.Slot] = path
		}
	}

	resolve := func(slot imagekey.Slot, ref string) (string, bool) {
		if projectID, filename, ok := imagekey.ParseReference(ref); ok && (projectID == "" || projectID == doc.ID) {
			path := storage.ImagePath(doc.ID, filename)
			if _, ok := listed[path]; ok {
				return path, true
			}
		}
		path, ok := tagged[slot]
		return path, ok
	}

	var jobs []fetchJob
	for i, ref := range doc.Data.Images {
		slot := imagekey.Slot{Role: imagekey.RoleReference, Index: i}
		if path, ok := resolve(slot, ref); ok {
			jobs = append(jobs, fetchJob{slot: slot, path: path})
		}
	}
	for idx, ref := range doc.Data.GeneratedImages {
		slot := imagekey.Slot{Role: imagekey.RoleGenerated, Index: idx}
		if path, ok := resolve(slot, ref); ok {
			jobs = append(jobs, fetchJob{slot: slot, path: path})
		}
	}
	return jobs
}

func dataURI(obj *storage.Object, path string) string {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = imagekey.ContentTypeFromExt(extOf(path))
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(obj.Data)
}

func extOf(path string) string {
	name := storage.Filename(path)
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return ""
}
