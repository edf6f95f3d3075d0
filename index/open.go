package index

import (
	"strings"

	"github.com/tessrax/ledger/lgerrors"
)

// Open returns the Backend named by kind ("sqlite" or "rocksdb"), rooted at
// path. "rocksdb" resolves to the local KV emulation since no cgo-free
// RocksDB binding is available.
func Open(kind, path string) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", "sqlite":
		return NewSQLiteBackend(path)
	case "rocksdb":
		return NewKVBackend(path), nil
	default:
		return nil, lgerrors.New(lgerrors.CodeIndexSchemaError, "unknown index backend").
			WithDetail("backend", kind)
	}
}
