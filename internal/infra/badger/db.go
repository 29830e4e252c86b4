// Package badger provides embedded key-value and blob backends on top of a
// single badger database. It is used for local development and in tests.
package badger

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const (
	kvNamespace   = "kv/"
	blobNamespace = "blob/"
	// blobModNamespace holds the last write time of each blob, so listings
	// can report it without reading object bodies.
	blobModNamespace = "blobmod/"

	maxUpdateRetries = 8
)

// DB wraps a badger database shared by the KV and blob stores.
type DB struct {
	db *badger.DB
}

// Open opens (or creates) a badger database in dir. An empty dir opens an
// in-memory database.
func Open(dir string) (*DB, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &DB{db: db}, nil
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}
