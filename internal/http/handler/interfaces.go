package handler

import (
	"context"

	"studio-store/internal/auth"
	"studio-store/internal/domain/project"
	"studio-store/internal/domain/session"
	"studio-store/internal/domain/user"
	"studio-store/internal/storage"
	"studio-store/internal/uploader"
)

// Consumer-side interfaces defined by handlers
// Each interface contains only the methods needed by the specific handler

// ImageHandler interfaces
type ImageStore interface {
	Upload(ctx context.Context, req uploader.Request) (*uploader.Result, error)
	Fetch(ctx context.Context, projectID, filename string) (*storage.Object, error)
}

// ProjectHandler interfaces
type ProjectStore interface {
	Save(ctx context.Context, doc *project.Document, principal auth.Principal) (*project.Document, error)
	Load(ctx context.Context, id string, principal auth.Principal) (*project.Document, error)
	Delete(ctx context.Context, id string, principal auth.Principal) error
	List(ctx context.Context, principal auth.Principal) ([]project.Metadata, error)
}

// UserHandler interfaces
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]*user.Profile, error)
	DeleteUser(ctx context.Context, id string) error
	UpdateExpiry(ctx context.Context, id string, input user.UpdateExpiryInput) (*user.Profile, error)
}

// AuthHandler interfaces
type SessionManager interface {
	Authenticate(ctx context.Context, ident user.Identity) (*user.Profile, *session.Session, error)
	DestroySession(ctx context.Context, id string) error
}
