package app

import (
	"context"
	"fmt"
	"log"

	"studio-store/internal/auth"
	"studio-store/internal/config"
	"studio-store/internal/http"
	"studio-store/internal/identity"
	"studio-store/internal/infra/badger"
	"studio-store/internal/infra/minio"
	"studio-store/internal/infra/redis"
	"studio-store/internal/infra/s3"
	"studio-store/internal/project"
	"studio-store/internal/storage"
	"studio-store/internal/uploader"
)

const (
	errOpenBadgerFmt   = "failed to open badger at %q: %w"
	errRedisPingFmt    = "failed to reach redis at %s: %w"
	errCreateS3Fmt     = "failed to create S3 client: %w"
	errCreateMinIOFmt  = "failed to create MinIO client: %w"
	errEnsureBucketFmt = "failed to ensure bucket %s: %w"
)

// OpenBackends connects the configured KV and blob stores and wraps them with
// metrics and per-call timeouts.
func OpenBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}

	var db *badger.DB
	if cfg.UsesBadger() {
		var err error
		db, err = badger.Open(cfg.App.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf(errOpenBadgerFmt, cfg.App.BadgerDir, err)
		}
		b.onClose(db.Close)
		log.Printf("Badger opened (dir=%q)", cfg.App.BadgerDir)
	}

	var kv storage.KV
	switch cfg.KV.Backend {
	case config.BackendRedis:
		redisKV := redis.NewKV(redis.Config{
			Addr:     cfg.KV.Redis.Addr,
			Password: cfg.KV.Redis.Password,
			DB:       cfg.KV.Redis.DB,
		})
		b.onClose(redisKV.Close)
		if err := redisKV.Ping(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf(errRedisPingFmt, cfg.KV.Redis.Addr, err)
		}
		kv = redisKV
	default:
		kv = badger.NewKV(db)
	}

	var blobs storage.BlobStore
	switch cfg.Blob.Backend {
	case config.BackendS3:
		client, err := s3.NewClient(s3.Config{
			Bucket:          cfg.Blob.S3.Bucket,
			Region:          cfg.Blob.S3.Region,
			AccessKeyID:     cfg.Blob.S3.AccessKeyID,
			SecretAccessKey: cfg.Blob.S3.SecretAccessKey,
			Endpoint:        cfg.Blob.S3.Endpoint,
			PageSize:        cfg.App.ListPageSize,
		})
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf(errCreateS3Fmt, err)
		}
		if err := client.EnsureBucket(ctx, cfg.Blob.S3.Region); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf(errEnsureBucketFmt, cfg.Blob.S3.Bucket, err)
		}
		blobs = client
	case config.BackendMinIO:
		store, err := minio.NewStore(minio.Config{
			Endpoint:  cfg.Blob.MinIO.Endpoint,
			AccessKey: cfg.Blob.MinIO.AccessKey,
			SecretKey: cfg.Blob.MinIO.SecretKey,
			Bucket:    cfg.Blob.MinIO.Bucket,
			UseSSL:    cfg.Blob.MinIO.UseSSL,
			PageSize:  cfg.App.ListPageSize,
		})
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf(errCreateMinIOFmt, err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf(errEnsureBucketFmt, cfg.Blob.MinIO.Bucket, err)
		}
		blobs = store
	default:
		blobs = badger.NewBlobStore(db, cfg.App.ListPageSize)
	}

	b.KV = storage.WithKVTimeout(storage.InstrumentKV(kv, cfg.KV.Backend), cfg.App.StoreTimeout)
	b.Blobs = storage.WithTimeout(storage.Instrument(blobs, cfg.Blob.Backend), cfg.App.StoreTimeout)

	log.Printf("Stores ready (kv=%s, blob=%s)", cfg.KV.Backend, cfg.Blob.Backend)
	return b, nil
}

// NewProjectService builds the project service on top of backends. The CLI
// maintenance commands use it without starting the HTTP server.
func NewProjectService(cfg *config.Config, b *Backends) *project.Service {
	return project.NewService(b.KV, b.Blobs, project.Config{
		FetchConcurrency: cfg.App.FetchConcurrency,
		OrphanGrace:      cfg.App.OrphanGrace,
	})
}

// InitializeService wires up all dependencies and returns a configured Service
func InitializeService(ctx context.Context, cfg *config.Config) (*Service, error) {
	backends, err := OpenBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}

	identities := identity.NewService(backends.KV, identity.Config{
		UserValidity:    cfg.Auth.UserValidity,
		SessionValidity: cfg.Auth.SessionValidity,
	})
	projects := NewProjectService(cfg, backends)
	images := uploader.New(backends.Blobs, projects, cfg.App.MaxUploadSize)

	if cfg.Auth.AdminPassword == "" {
		log.Println("Warning: ADMIN_PASSWORD not set, administrator access is disabled")
	}
	authMiddleware := auth.NewMiddleware(auth.NewGate(cfg.Auth.AdminPassword, identities))

	server := http.NewServer(&http.ServerDependencies{
		Config:         cfg,
		Images:         images,
		Projects:       projects,
		Users:          identities,
		Sessions:       identities,
		AuthMiddleware: authMiddleware,
	})

	return &Service{
		config:   cfg,
		backends: backends,
		server:   server,
	}, nil
}
