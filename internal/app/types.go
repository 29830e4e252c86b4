package app

import (
	"errors"

	"studio-store/internal/storage"
)

// Backends are the decorated stores the services run on, plus whatever must be
// released when the process stops.
type Backends struct {
	KV      storage.KV
	Blobs   storage.BlobStore
	closers []func() error
}

func (b *Backends) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Close releases backends in reverse order of creation.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
