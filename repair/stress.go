package repair

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/merkle"
	"github.com/tessrax/ledger/verify"
)

// StressHarnessResult summarizes one GenerateStressLedger run.
type StressHarnessResult struct {
	OutputPath string
	Entries    int
	MerkleRoot string
}

// GenerateStressLedger writes a deterministic synthetic ledger of `entries`
// lines to outputPath, seeded by seed so repeated runs with the same
// arguments produce byte-identical output. The entries it writes carry
// unsigned placeholder signatures — they exist to exercise replay and
// index throughput, not signature verification.
func GenerateStressLedger(outputPath string, entries int, seed int64, clock func() time.Time) (*StressHarnessResult, error) {
	if clock == nil {
		clock = time.Now
	}
	rng := rand.New(rand.NewSource(seed))
	state := merkle.Empty()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, err
	}
	var buf strings.Builder
	for idx := 0; idx < entries; idx++ {
		status := "LOGGED"
		if idx%2 == 0 {
			status = "VERIFIED"
		}
		payload := map[string]any{"node": idx, "status": status}
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadHash := sha256Hex(payloadBytes)

		var sigBytes [32]byte
		rng.Read(sigBytes[:])

		entry := map[string]any{
			"event_type":         "STATE_AUDITED",
			"timestamp":          canon.FormatTimestamp(clock()),
			"payload":            payload,
			"payload_hash":       payloadHash,
			"audited_state_hash": fmt.Sprintf("%064x", idx),
			"signature":          hex.EncodeToString(sigBytes[:]),
		}
		entryHash, err := verify.ComputeEntryHash(entry)
		if err == nil {
			state, err = state.ApplyLeaf(entryHash)
		}
		if err != nil {
			return nil, err
		}
		entry["entry_hash"] = entryHash
		entry["merkle_root"] = state.Root()
		encoded, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(outputPath, []byte(buf.String()), 0o644); err != nil {
		return nil, err
	}

	return &StressHarnessResult{OutputPath: outputPath, Entries: entries, MerkleRoot: state.Root()}, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
