// Package uploader stores image bytes under their content address.
package uploader

import (
	"context"
	"fmt"
	"log"

	"studio-store/internal/auth"
	"studio-store/internal/imagekey"
	"studio-store/internal/observability"
	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"
	"studio-store/pkg/validator"
)

const (
	DefaultMaxSize = int64(20 * 1024 * 1024)

	roleLabelUntagged = "untagged"

	errEmptyPayloadFmt    = "image payload is empty"
	errPayloadTooLargeFmt = "image exceeds maximum size of %d bytes"
	errInvalidSlotFmt     = "invalid image slot %s_%d"
)

type Request struct {
	// ProjectID is empty or "temp" for images staged before their project exists.
	ProjectID   string
	Slot        imagekey.Slot
	ContentType string
	Data        []byte
	// Principal must be allowed to write the project once it has an owner.
	Principal auth.Principal
}

type Result struct {
	Key  imagekey.Key
	Path string
	URL  string
}

// Owners reports the owner of a project. found is false for ids that were
// never saved; uploads to those are allowed so images can precede the save.
type Owners interface {
	Owner(ctx context.Context, projectID string) (owner string, found bool, err error)
}

type Uploader struct {
	blobs   storage.BlobStore
	owners  Owners
	maxSize int64
}

// New builds an uploader. A nil owners skips the ownership check.
func New(blobs storage.BlobStore, owners Owners, maxSize int64) *Uploader {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Uploader{blobs: blobs, owners: owners, maxSize: maxSize}
}

// Upload writes req.Data to its content-addressed path. Uploading the same bytes
// to the same project and slot rewrites the same object and returns the same URL.
func (u *Uploader) Upload(ctx context.Context, req Request) (*Result, error) {
	if err := u.validate(req); err != nil {
		return nil, err
	}
	if err := u.authorize(ctx, req); err != nil {
		return nil, err
	}

	key := imagekey.New(req.Data, req.ContentType, req.Slot)
	filename := key.Filename()
	path := storage.ImagePath(req.ProjectID, filename)

	contentType := req.ContentType
	if key.Ext != "bin" {
		contentType = key.ContentType()
	}

	if err := u.blobs.Put(ctx, path, req.Data, contentType); err != nil {
		log.Printf("upload %s failed: %v", path, err)
		return nil, err
	}

	role := string(req.Slot.Role)
	if role == "" {
		role = roleLabelUntagged
	}
	observability.ImagesUploaded.WithLabelValues(role).Inc()

	return &Result{
		Key:  key,
		Path: path,
		URL:  imagekey.Reference(req.ProjectID, filename),
	}, nil
}

// Fetch reads one stored image. An empty project id reads from the staging area.
func (u *Uploader) Fetch(ctx context.Context, projectID, filename string) (*storage.Object, error) {
	if !staged(projectID) {
		if err := validator.ProjectID(projectID); err != nil {
			return nil, apperrors.BadRequest(err.Error())
		}
	}
	if err := validator.FileName(filename); err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}

	obj, err := u.blobs.Get(ctx, storage.ImagePath(projectID, filename))
	if err != nil {
		return nil, err
	}

	if obj.ContentType == "" {
		if key, err := imagekey.Parse(filename); err == nil {
			obj.ContentType = key.ContentType()
		}
	}
	return obj, nil
}

func (u *Uploader) authorize(ctx context.Context, req Request) error {
	if u.owners == nil || staged(req.ProjectID) {
		return nil
	}

	owner, found, err := u.owners.Owner(ctx, req.ProjectID)
	if err != nil {
		return err
	}
	if found && !req.Principal.CanWrite(owner) {
		log.Printf("upload to project %s refused for %s %s", req.ProjectID, req.Principal.Kind, req.Principal.UserID)
		return auth.NotOwner()
	}
	return nil
}

func staged(projectID string) bool {
	return projectID == "" || projectID == storage.TempProject
}

func (u *Uploader) validate(req Request) error {
	if len(req.Data) == 0 {
		return apperrors.BadRequest(errEmptyPayloadFmt)
	}
	if int64(len(req.Data)) > u.maxSize {
		return apperrors.BadRequest(fmt.Sprintf(errPayloadTooLargeFmt, u.maxSize))
	}
	if !staged(req.ProjectID) {
		if err := validator.ProjectID(req.ProjectID); err != nil {
			return apperrors.BadRequest(err.Error())
		}
	}
	if err := validator.ContentType(req.ContentType); err != nil {
		return apperrors.BadRequest(err.Error())
	}
	if !req.Slot.Valid() {
		return apperrors.BadRequest(fmt.Sprintf(errInvalidSlotFmt, req.Slot.Role, req.Slot.Index))
	}
	return nil
}
