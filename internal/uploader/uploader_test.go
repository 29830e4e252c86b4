package uploader

import (
	"context"
	"errors"
	"testing"

	"studio-store/internal/auth"
	"studio-store/internal/domain/session"
	"studio-store/internal/domain/user"
	"studio-store/internal/imagekey"
	"studio-store/internal/infra/badger"
	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlobs(t *testing.T) storage.BlobStore {
	t.Helper()
	db, err := badger.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return badger.NewBlobStore(db, 2)
}

type stubOwners map[string]string

func (s stubOwners) Owner(ctx context.Context, projectID string) (string, bool, error) {
	owner, ok := s[projectID]
	return owner, ok, nil
}

func TestUpload_OwnershipChecked(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	u := New(blobs, stubOwners{"p1": "u1"}, 0)
	u1 := auth.User(&session.Session{UserID: "u1"}, &user.Profile{ID: "u1"})
	u2 := auth.User(&session.Session{UserID: "u2"}, &user.Profile{ID: "u2"})

	req := Request{ProjectID: "p1", Slot: imagekey.Slot{Role: imagekey.RoleReference}, ContentType: "image/png", Data: []byte("x"), Principal: u2}
	_, err := u.Upload(ctx, req)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	keys, err := storage.ListAll(ctx, blobs, storage.ImagePrefix("p1"))
	require.NoError(t, err)
	assert.Empty(t, keys)

	req.Principal = u1
	_, err = u.Upload(ctx, req)
	assert.NoError(t, err)

	req.Principal = auth.Admin()
	_, err = u.Upload(ctx, req)
	assert.NoError(t, err)

	req.ProjectID, req.Principal = "unsaved", u2
	_, err = u.Upload(ctx, req)
	assert.NoError(t, err)

	req.ProjectID = ""
	_, err = u.Upload(ctx, req)
	assert.NoError(t, err)
}

func TestUpload_SameBytesDeduplicated(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	u := New(blobs, nil, 0)

	req := Request{ProjectID: "p1", ContentType: "image/png", Data: []byte("same-photo")}

	first, err := u.Upload(ctx, req)
	require.NoError(t, err)
	second, err := u.Upload(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.URL, second.URL)
	assert.Equal(t, first.Path, second.Path)

	keys, err := storage.ListAll(ctx, blobs, storage.ImagePrefix("p1"))
	require.NoError(t, err)
	assert.Equal(t, []string{first.Path}, keys)
}

func TestUpload_PathsAndReferences(t *testing.T) {
	ctx := context.Background()
	u := New(newBlobs(t), nil, 0)
	data := []byte("generated")
	hash := imagekey.Hash(data)

	res, err := u.Upload(ctx, Request{
		ProjectID:   "p1",
		Slot:        imagekey.Slot{Role: imagekey.RoleGenerated, Index: 4},
		ContentType: "image/jpeg",
		Data:        data,
	})
	require.NoError(t, err)
	assert.Equal(t, "images/p1/gen_4_"+hash+".jpg", res.Path)
	assert.Equal(t, "/images/gen_4_"+hash+".jpg?project=p1", res.URL)

	staged, err := u.Upload(ctx, Request{ContentType: "image/png", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "temp/"+hash+".png", staged.Path)
	assert.Equal(t, "/images/"+hash+".png", staged.URL)
}

func TestUpload_DifferentSlotsAreDistinct(t *testing.T) {
	ctx := context.Background()
	blobs := newBlobs(t)
	u := New(blobs, nil, 0)
	data := []byte("shared")

	ref, err := u.Upload(ctx, Request{ProjectID: "p1", Slot: imagekey.Slot{Role: imagekey.RoleReference}, ContentType: "image/png", Data: data})
	require.NoError(t, err)
	gen, err := u.Upload(ctx, Request{ProjectID: "p1", Slot: imagekey.Slot{Role: imagekey.RoleGenerated}, ContentType: "image/png", Data: data})
	require.NoError(t, err)

	assert.Equal(t, ref.Key.Hash, gen.Key.Hash)
	assert.NotEqual(t, ref.Path, gen.Path)
}

func TestUpload_Validation(t *testing.T) {
	ctx := context.Background()
	u := New(newBlobs(t), nil, 4)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty", Request{ProjectID: "p1", ContentType: "image/png"}},
		{"too large", Request{ProjectID: "p1", ContentType: "image/png", Data: []byte("12345")}},
		{"bad project", Request{ProjectID: "../x", ContentType: "image/png", Data: []byte("1")}},
		{"no content type", Request{ProjectID: "p1", Data: []byte("1")}},
		{"bad slot", Request{ProjectID: "p1", ContentType: "image/png", Data: []byte("1"), Slot: imagekey.Slot{Role: imagekey.RoleReference, Index: 7}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Upload(ctx, tt.req)
			assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
		})
	}
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	u := New(newBlobs(t), nil, 0)

	res, err := u.Upload(ctx, Request{ProjectID: "p1", ContentType: "image/webp", Data: []byte("w")})
	require.NoError(t, err)

	obj, err := u.Fetch(ctx, "p1", res.Key.Filename())
	require.NoError(t, err)
	assert.Equal(t, []byte("w"), obj.Data)
	assert.Equal(t, "image/webp", obj.ContentType)

	_, err = u.Fetch(ctx, "p2", res.Key.Filename())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = u.Fetch(ctx, "p1", "../secret")
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
}
