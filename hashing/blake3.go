package hashing

import "github.com/tessrax/ledger/lgerrors"

// Blake3Digest is a documented gap: no BLAKE3 library is attested anywhere
// in the dependency corpus this module was grounded on, so rather than
// vendor a fake implementation this optional path returns a structured
// "unsupported" error. The primary SHA-256 path (Hasher, HashPaths) is
// unaffected; BLAKE3 support is opportunistic, never load-bearing.
func Blake3Digest(_ []byte) (Result, error) {
	return Result{}, lgerrors.New("HASH_UNSUPPORTED", "blake3 support is not compiled into this build")
}
