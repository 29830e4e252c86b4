package project

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"studio-store/internal/auth"
	domain "studio-store/internal/domain/project"
	"studio-store/internal/domain/session"
	"studio-store/internal/domain/user"
	"studio-store/internal/imagekey"
	"studio-store/internal/infra/badger"
	"studio-store/internal/storage"
	"studio-store/internal/uploader"
	apperrors "studio-store/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("connection reset by peer")

type faultyKV struct {
	storage.KV
	failUpdate func(key string) bool
	failDelete func(key string) bool
}

func (f *faultyKV) Update(ctx context.Context, key string, ttl time.Duration, fn storage.UpdateFunc) error {
	if f.failUpdate != nil && f.failUpdate(key) {
		return apperrors.StorageUnavailable("update "+key, errBoom)
	}
	return f.KV.Update(ctx, key, ttl, fn)
}

func (f *faultyKV) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if f.failDelete != nil && f.failDelete(key) {
			return apperrors.StorageUnavailable("delete "+key, errBoom)
		}
	}
	return f.KV.Delete(ctx, keys...)
}

type faultyBlobs struct {
	storage.BlobStore
	getErr map[string]error
}

func (f *faultyBlobs) Get(ctx context.Context, path string) (*storage.Object, error) {
	if err, ok := f.getErr[path]; ok {
		return nil, err
	}
	return f.BlobStore.Get(ctx, path)
}

type fixture struct {
	kv       *faultyKV
	blobs    *faultyBlobs
	svc      *Service
	uploader *uploader.Uploader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := badger.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	kv := &faultyKV{KV: badger.NewKV(db)}
	blobs := &faultyBlobs{BlobStore: badger.NewBlobStore(db, 2), getErr: map[string]error{}}
	svc := NewService(kv, blobs, Config{FetchConcurrency: 3})
	return &fixture{
		kv:       kv,
		blobs:    blobs,
		svc:      svc,
		uploader: uploader.New(blobs, svc, 0),
	}
}

func userPrincipal(id string) auth.Principal {
	return auth.User(&session.Session{UserID: id}, &user.Profile{ID: id, Name: "Name " + id})
}

func (f *fixture) upload(t *testing.T, projectID string, slot imagekey.Slot, data string) *uploader.Result {
	t.Helper()
	res, err := f.uploader.Upload(context.Background(), uploader.Request{
		ProjectID:   projectID,
		Slot:        slot,
		ContentType: "image/png",
		Data:        []byte(data),
		Principal:   auth.Admin(),
	})
	require.NoError(t, err)
	return res
}

func newDoc(id string, images []string, generated map[int]string) *domain.Document {
	return &domain.Document{
		ID:   id,
		Name: "Project " + id,
		Data: &domain.Data{Images: images, GeneratedImages: generated},
	}
}

func decodeDataURI(t *testing.T, uri string) []byte {
	t.Helper()
	_, payload, ok := strings.Cut(uri, ";base64,")
	require.True(t, ok, "not a data URI: %s", uri)
	data, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	return data
}

func TestSaveLoad_ReferenceAndGeneratedImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	a := f.upload(t, "p1", imagekey.Slot{}, "image-A")
	b := f.upload(t, "p1", imagekey.Slot{}, "image-B")

	_, err := f.svc.Save(ctx, newDoc("p1", []string{a.URL}, map[int]string{0: b.URL}), u1)
	require.NoError(t, err)

	doc, err := f.svc.Load(ctx, "p1", u1)
	require.NoError(t, err)
	require.Len(t, doc.Data.Images, 1)
	assert.Equal(t, []byte("image-A"), decodeDataURI(t, doc.Data.Images[0]))
	assert.True(t, strings.HasPrefix(doc.Data.Images[0], "data:image/png;base64,"))
	require.Len(t, doc.Data.GeneratedImages, 1)
	assert.Equal(t, []byte("image-B"), decodeDataURI(t, doc.Data.GeneratedImages[0]))
}

func TestSaveLoad_AllSlotsAcrossPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	refs := []string{
		f.upload(t, "p1", imagekey.Slot{Role: imagekey.RoleReference, Index: 0}, "ref-0").URL,
		f.upload(t, "p1", imagekey.Slot{Role: imagekey.RoleReference, Index: 1}, "ref-1").URL,
	}
	gens := map[int]string{}
	for _, idx := range []int{0, 2, 5} {
		gens[idx] = f.upload(t, "p1", imagekey.Slot{Role: imagekey.RoleGenerated, Index: idx}, "gen-"+string(rune('0'+idx))).URL
	}
	// an unrelated object under the prefix is ignored
	require.NoError(t, f.blobs.Put(ctx, "images/p1/notes.txt", []byte("x"), "text/plain"))

	_, err := f.svc.Save(ctx, newDoc("p1", refs, gens), u1)
	require.NoError(t, err)

	doc, err := f.svc.Load(ctx, "p1", u1)
	require.NoError(t, err)

	require.Len(t, doc.Data.Images, 2)
	assert.Equal(t, []byte("ref-0"), decodeDataURI(t, doc.Data.Images[0]))
	assert.Equal(t, []byte("ref-1"), decodeDataURI(t, doc.Data.Images[1]))

	require.Len(t, doc.Data.GeneratedImages, 3)
	for _, idx := range []int{0, 2, 5} {
		assert.Equal(t, []byte("gen-"+string(rune('0'+idx))), decodeDataURI(t, doc.Data.GeneratedImages[idx]))
	}
}

func TestLoad_TaggedFilenameFillsPlaceholderSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	slot := imagekey.Slot{Role: imagekey.RoleGenerated, Index: 1}
	first := f.upload(t, "p1", slot, "older")
	second := f.upload(t, "p1", slot, "newer")

	_, err := f.svc.Save(ctx, newDoc("p1", []string{"placeholder"}, map[int]string{1: ""}), u1)
	require.NoError(t, err)

	doc, err := f.svc.Load(ctx, "p1", u1)
	require.NoError(t, err)

	want := "older"
	if second.Key.Filename() > first.Key.Filename() {
		want = "newer"
	}
	assert.Equal(t, []byte(want), decodeDataURI(t, doc.Data.GeneratedImages[1]))
	assert.Equal(t, "placeholder", doc.Data.Images[0], "no blob for this slot")
}

func TestLoad_MissingBlobKeepsReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	a := f.upload(t, "p1", imagekey.Slot{}, "A")
	b := f.upload(t, "p1", imagekey.Slot{}, "B")
	_, err := f.svc.Save(ctx, newDoc("p1", []string{a.URL, b.URL}, nil), u1)
	require.NoError(t, err)

	f.blobs.getErr[b.Path] = apperrors.NotFound("gone")

	doc, err := f.svc.Load(ctx, "p1", u1)
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), decodeDataURI(t, doc.Data.Images[0]))
	assert.Equal(t, b.URL, doc.Data.Images[1])
}

func TestLoad_FetchFailureFailsLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	a := f.upload(t, "p1", imagekey.Slot{}, "A")
	_, err := f.svc.Save(ctx, newDoc("p1", []string{a.URL}, nil), u1)
	require.NoError(t, err)

	f.blobs.getErr[a.Path] = apperrors.StorageUnavailable("get", errBoom)

	_, err = f.svc.Load(ctx, "p1", u1)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))
}

func TestLoad_NotFoundAndAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Load(ctx, "missing", userPrincipal("u1"))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = f.svc.Save(ctx, newDoc("p1", nil, nil), userPrincipal("u1"))
	require.NoError(t, err)

	_, err = f.svc.Load(ctx, "p1", userPrincipal("u2"))
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, err = f.svc.Load(ctx, "p1", auth.Anonymous())
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, err = f.svc.Load(ctx, "p1", auth.Admin())
	assert.NoError(t, err)
}

func TestSave_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	tests := []struct {
		name string
		doc  *domain.Document
	}{
		{"nil", nil},
		{"missing id", newDoc("", nil, nil)},
		{"bad id", newDoc("a/b", nil, nil)},
		{"missing data", &domain.Document{ID: "p1"}},
		{"too many images", newDoc("p1", []string{"a", "b", "c"}, nil)},
		{"inline reference", newDoc("p1", []string{"data:image/png;base64,AAAA"}, nil)},
		{"inline generated", newDoc("p1", nil, map[int]string{0: "DATA:image/png;base64,AAAA"})},
		{"generated index", newDoc("p1", nil, map[int]string{-1: "/images/x.png"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Save(ctx, tt.doc, u1)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidDocument), "got %v", err)
		})
	}

	_, err := f.svc.Save(ctx, newDoc("p1", nil, nil), auth.Anonymous())
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestStagingAreaIsNotAProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	staged := f.upload(t, storage.TempProject, imagekey.Slot{}, "staged-by-u2")

	_, err := f.svc.Save(ctx, newDoc(storage.TempProject, nil, nil), userPrincipal("u1"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidDocument))

	err = f.svc.Delete(ctx, storage.TempProject, auth.Admin())
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))

	_, err = f.svc.Load(ctx, storage.TempProject, auth.Admin())
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))

	keys, err := storage.ListAll(ctx, f.blobs, storage.TempRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{staged.Path}, keys)
}

func TestSave_Ownership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	doc := newDoc("p1", nil, nil)
	doc.UserID = "someone-else"
	saved, err := f.svc.Save(ctx, doc, userPrincipal("u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", saved.UserID, "users always save as themselves")

	other := newDoc("p1", nil, nil)
	other.Version = saved.Version
	_, err = f.svc.Save(ctx, other, userPrincipal("u2"))
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	byAdmin := newDoc("p1", nil, nil)
	byAdmin.Version = saved.Version
	saved, err = f.svc.Save(ctx, byAdmin, auth.Admin())
	require.NoError(t, err)
	assert.Equal(t, "u1", saved.UserID, "admin keeps the existing owner")

	fresh, err := f.svc.Save(ctx, newDoc("p2", nil, nil), auth.Admin())
	require.NoError(t, err)
	assert.Equal(t, auth.AdminOwner, fresh.UserID)

	metas, err := f.svc.List(ctx, userPrincipal("u1"))
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "Name u1", metas[0].UserName)
}

func TestSave_OptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	v1, err := f.svc.Save(ctx, newDoc("p1", nil, nil), u1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v1.Version)

	stale := newDoc("p1", nil, nil)
	_, err = f.svc.Save(ctx, stale, u1)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	next := newDoc("p1", nil, nil)
	next.Version = 1
	v2, err := f.svc.Save(ctx, next, u1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v2.Version)

	ghost := newDoc("p9", nil, nil)
	ghost.Version = 4
	_, err = f.svc.Save(ctx, ghost, u1)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	metas, err := f.svc.List(ctx, u1)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.EqualValues(t, 2, metas[0].Version)
}

func TestSave_MetadataFailureIsRepairedOnLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	f.kv.failUpdate = func(key string) bool { return strings.HasPrefix(key, storage.PrefixMeta) }

	doc := newDoc("p1", nil, nil)
	doc.Data.Report = []byte(`{"brandName":"Acme"}`)
	saved, err := f.svc.Save(ctx, doc, u1)
	assert.True(t, errors.Is(err, apperrors.ErrPersistenceFailure))
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))
	require.NotNil(t, saved)
	assert.EqualValues(t, 1, saved.Version)

	metas, err := f.svc.List(ctx, u1)
	require.NoError(t, err)
	assert.Empty(t, metas)

	f.kv.failUpdate = nil
	_, err = f.svc.Load(ctx, "p1", u1)
	require.NoError(t, err)

	metas, err = f.svc.List(ctx, u1)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "Acme", metas[0].BrandName)
}

func TestSave_DocumentFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	f.kv.failUpdate = func(key string) bool { return strings.HasPrefix(key, storage.PrefixProject) }

	saved, err := f.svc.Save(ctx, newDoc("p1", nil, nil), u1)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))
	assert.False(t, errors.Is(err, apperrors.ErrPersistenceFailure), "nothing was written, so nothing is half-saved")
	assert.Nil(t, saved)

	f.kv.failUpdate = nil
	_, err = f.svc.Load(ctx, "p1", u1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	metas, err := f.svc.List(ctx, u1)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestDelete_RemovesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	var refs []string
	for _, data := range []string{"a", "b"} {
		refs = append(refs, f.upload(t, "p1", imagekey.Slot{}, data).URL)
	}
	for i := 0; i < 3; i++ {
		f.upload(t, "p1", imagekey.Slot{Role: imagekey.RoleGenerated, Index: i}, "g"+string(rune('0'+i)))
	}
	_, err := f.svc.Save(ctx, newDoc("p1", refs, nil), u1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "p1", u1))

	_, err = f.svc.Load(ctx, "p1", u1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	keys, err := storage.ListAll(ctx, f.blobs, storage.ImagePrefix("p1"))
	require.NoError(t, err)
	assert.Empty(t, keys)

	metas, err := f.svc.List(ctx, auth.Admin())
	require.NoError(t, err)
	assert.Empty(t, metas)

	err = f.svc.Delete(ctx, "p1", u1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDelete_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Save(ctx, newDoc("p1", nil, nil), userPrincipal("u1"))
	require.NoError(t, err)

	err = f.svc.Delete(ctx, "p1", userPrincipal("u2"))
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	err = f.svc.Delete(ctx, "p1", auth.Anonymous())
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	assert.NoError(t, f.svc.Delete(ctx, "p1", auth.Admin()))
}

func TestDelete_PartialFailureReportsParts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	img := f.upload(t, "p1", imagekey.Slot{}, "a")
	_, err := f.svc.Save(ctx, newDoc("p1", []string{img.URL}, nil), u1)
	require.NoError(t, err)

	f.kv.failDelete = func(key string) bool { return key == storage.MetaKey("p1") }

	err = f.svc.Delete(ctx, "p1", u1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPersistenceFailure))
	assert.Contains(t, err.Error(), "metadata")
	assert.NotContains(t, err.Error(), "failed: document")

	_, err = f.kv.Get(ctx, storage.ProjectKey("p1"))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	keys, err := storage.ListAll(ctx, f.blobs, storage.ImagePrefix("p1"))
	require.NoError(t, err)
	assert.Empty(t, keys)

	// the orphan record is still reachable for cleanup
	f.kv.failDelete = nil
	require.NoError(t, f.svc.Delete(ctx, "p1", u1))
}

func TestDelete_CancelledBeforeDeletionLeavesProject(t *testing.T) {
	f := newFixture(t)
	u1 := userPrincipal("u1")

	_, err := f.svc.Save(context.Background(), newDoc("p1", nil, nil), u1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, f.svc.Delete(ctx, "p1", u1))

	_, err = f.svc.Load(context.Background(), "p1", u1)
	assert.NoError(t, err)
}

func TestList_AdminSeesAllUsersSeeOwn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, p := range []struct {
		id    string
		owner string
		ts    int64
	}{
		{"pa", "U1", 1000},
		{"pb", "U1", 3000},
		{"pc", "U2", 2000},
	} {
		doc := newDoc(p.id, nil, nil)
		doc.Timestamp = p.ts
		_, err := f.svc.Save(ctx, doc, userPrincipal(p.owner))
		require.NoError(t, err)
	}

	all, err := f.svc.List(ctx, auth.Admin())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"pb", "pc", "pa"}, metadataIDs(all))

	own, err := f.svc.List(ctx, userPrincipal("U1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pb", "pa"}, metadataIDs(own))
	for _, meta := range own {
		assert.Equal(t, "U1", meta.UserID)
	}

	anon, err := f.svc.List(ctx, auth.Anonymous())
	require.NoError(t, err)
	assert.NotNil(t, anon)
	assert.Empty(t, anon)
}

func TestList_EqualTimestampsOrderedByID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, id := range []string{"pz", "pa", "pm"} {
		doc := newDoc(id, nil, nil)
		doc.Timestamp = 5000
		_, err := f.svc.Save(ctx, doc, userPrincipal("u1"))
		require.NoError(t, err)
	}

	metas, err := f.svc.List(ctx, userPrincipal("u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pa", "pm", "pz"}, metadataIDs(metas))
}

func TestReindexAndAudit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	_, err := f.svc.Save(ctx, newDoc("p1", nil, nil), u1)
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, newDoc("p2", nil, nil), u1)
	require.NoError(t, err)

	require.NoError(t, f.kv.Delete(ctx, storage.MetaKey("p2")))
	require.NoError(t, f.kv.Put(ctx, storage.MetaKey("ghost"), []byte(`{"id":"ghost","userId":"u1"}`), 0))
	f.upload(t, "gone", imagekey.Slot{}, "leftover")
	f.svc.now = func() time.Time { return time.Now().Add(2 * DefaultOrphanGrace) }

	report, err := f.svc.Audit(ctx, false)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, []string{"ghost"}, report.OrphanMetadata)
	assert.Equal(t, []string{"p2"}, report.MissingMetadata)
	assert.Equal(t, []string{"gone"}, report.OrphanImages)
	assert.False(t, report.Fixed)

	report, err = f.svc.Audit(ctx, true)
	require.NoError(t, err)
	assert.True(t, report.Fixed)

	report, err = f.svc.Audit(ctx, false)
	require.NoError(t, err)
	assert.True(t, report.Clean())

	require.NoError(t, f.kv.Delete(ctx, storage.MetaKey("p1"), storage.MetaKey("p2")))
	n, err := f.svc.Reindex(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.svc.Reindex(ctx, "nope")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestAudit_RecentUploadsSurviveFix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1 := userPrincipal("u1")

	early := f.upload(t, "p9", imagekey.Slot{Role: imagekey.RoleReference}, "uploaded-before-save")

	report, err := f.svc.Audit(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, report.OrphanImages)
	assert.Equal(t, []string{"p9"}, report.PendingImages)
	assert.True(t, report.Clean())

	_, err = f.svc.Save(ctx, newDoc("p9", []string{early.URL}, nil), u1)
	require.NoError(t, err)

	doc, err := f.svc.Load(ctx, "p9", u1)
	require.NoError(t, err)
	require.Len(t, doc.Data.Images, 1)
	assert.Equal(t, []byte("uploaded-before-save"), decodeDataURI(t, doc.Data.Images[0]))
}

func TestAudit_StalePrefixRemovedAfterGrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.upload(t, "abandoned", imagekey.Slot{}, "never-saved")

	f.svc.now = func() time.Time { return time.Now().Add(DefaultOrphanGrace + time.Hour) }
	report, err := f.svc.Audit(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"abandoned"}, report.OrphanImages)
	assert.True(t, report.Fixed)

	keys, err := storage.ListAll(ctx, f.blobs, storage.ImagePrefix("abandoned"))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func metadataIDs(metas []domain.Metadata) []string {
	ids := make([]string, 0, len(metas))
	for _, meta := range metas {
		ids = append(ids, meta.ID)
	}
	return ids
}
