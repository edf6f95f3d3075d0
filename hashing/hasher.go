// Package hashing provides the streaming SHA-256 hasher used to hash
// canonical payloads and, for the cross-tool reproducibility check, sorted
// file contents. An optional BLAKE3 path is declared but left unimplemented
// (see blake3.go) since no BLAKE3 dependency is attested anywhere in the
// reference corpus this module was grounded on.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"os"
	"path/filepath"
	"sort"

	"github.com/tessrax/ledger/canon"
)

// Result mirrors the source engine's HashResult: the digest plus enough
// metadata to attribute it in audit output.
type Result struct {
	Algorithm      string
	Digest         string
	BytesProcessed int
	Auditor        string
}

// AuditorIdentity is embedded in every Result produced by this package.
const AuditorIdentity = "Tessrax Governance Kernel v16"

// Hasher is a streaming SHA-256 hasher with a canonical-payload shortcut.
type Hasher struct {
	sum   hash.Hash
	bytes int
}

// New returns a fresh streaming hasher.
func New() *Hasher {
	return &Hasher{sum: sha256.New()}
}

// Write feeds raw bytes into the hash.
func (hs *Hasher) Write(p []byte) {
	hs.sum.Write(p)
	hs.bytes += len(p)
}

// UpdatePayload canonicalizes v and feeds its canonical JSON into the hash.
func (hs *Hasher) UpdatePayload(v canon.Value) error {
	encoded, err := canon.JSON(v)
	if err != nil {
		return err
	}
	hs.Write(encoded)
	return nil
}

// Digest finalizes the hash and returns a Result.
func (hs *Hasher) Digest() Result {
	sum := hs.sum.Sum(nil)
	return Result{
		Algorithm:      "sha256",
		Digest:         hex.EncodeToString(sum),
		BytesProcessed: hs.bytes,
		Auditor:        AuditorIdentity,
	}
}

// HashPaths concatenates the bytes of every path (sorted lexicographically,
// empty contents for missing files) and returns the resulting digest. Used
// to reproduce a single fingerprint for a set of build artifacts across
// tools/machines.
func HashPaths(paths []string) (Result, error) {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	hasher := New()
	for _, p := range sorted {
		data, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Result{}, err
		}
		hasher.Write(data)
	}
	return hasher.Digest(), nil
}
