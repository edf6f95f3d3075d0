package repair

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/index"
	"github.com/tessrax/ledger/lgerrors"
	"github.com/tessrax/ledger/merkle"
)

// RebuildIndexFromLog discards whatever the secondary index currently
// holds and rebuilds it line-by-line from the ledger, which is always the
// source of truth.
func RebuildIndexFromLog(ledgerPath string, idx index.Backend) error {
	lines, err := readLedgerLines(ledgerPath)
	if err != nil {
		return err
	}
	entries := make([]index.Entry, 0, len(lines))
	for offset, line := range lines {
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return lgerrors.Wrap(lgerrors.CodeInvalidPayload, "corrupted ledger line during index rebuild", err)
		}
		entries = append(entries, index.Entry{
			LedgerOffset:      int64(offset),
			EventType:         str(raw["event_type"]),
			StateHash:         str(raw["audited_state_hash"]),
			PayloadHash:       str(raw["payload_hash"]),
			Timestamp:         str(raw["timestamp"]),
			MerkleRoot:        str(raw["merkle_root"]),
			EntryHash:         str(raw["entry_hash"]),
			PreviousEntryHash: str(raw["previous_entry_hash"]),
		})
	}
	return idx.Rebuild(entries)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// AutoRepairConfig locates every file AutoRepair may need to touch.
type AutoRepairConfig struct {
	LedgerPath      string
	MerkleStatePath string
	IndexBackend    index.Backend
	TrustedSnapshot string // optional: restore the ledger from this snapshot before repairing
	Clock           func() time.Time
}

// AutoRepairReport records what AutoRepair found and did, and is itself
// persisted alongside the ledger as <ledger>.repair.json.
type AutoRepairReport struct {
	GeneratedAt          string            `json:"generated_at"`
	RestoredFromSnapshot bool              `json:"restored_from_snapshot"`
	Divergence           *DivergenceReport `json:"divergence_before_repair"`
	RootCause            RootCauseAnalysis `json:"root_cause"`
	MerkleRebuilt        bool              `json:"merkle_rebuilt"`
	IndexRebuilt         bool              `json:"index_rebuilt"`
	FinalMerkleRoot      string            `json:"final_merkle_root"`
}

// AutoRepair restores from a trusted snapshot if one is configured, scans
// for divergence, rebuilds the Merkle accumulator from a from-scratch
// replay when the persisted root doesn't match, unconditionally rebuilds
// the secondary index from the ledger (index rebuild is cheap and
// idempotent, unlike Merkle replay), and writes a report describing what
// happened.
func AutoRepair(cfg AutoRepairConfig) (*AutoRepairReport, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	restored := false
	if cfg.TrustedSnapshot != "" {
		snap, err := RestoreSnapshot(cfg.TrustedSnapshot)
		if err != nil {
			return nil, err
		}
		if err := ImportLedgerEntries(snap, cfg.LedgerPath); err != nil {
			return nil, err
		}
		restored = true
	}

	acc, err := merkle.Open(cfg.MerkleStatePath, clock)
	if err != nil {
		return nil, err
	}

	divergence, err := ScanStateDivergence(cfg.LedgerPath, cfg.IndexBackend, acc)
	if err != nil {
		return nil, err
	}
	rootCause := AnalyzeRootCause(divergence)

	merkleRebuilt := false
	if rootCause.Classification == ClassificationMerkleDrift {
		root, err := ParallelReplayRoot(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		lines, err := readLedgerLines(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		replayedState := merkle.Empty()
		for _, line := range lines {
			var entry map[string]any
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, lgerrors.Wrap(lgerrors.CodeInvalidPayload, "corrupted ledger line during merkle rebuild", err)
			}
			h, err := entryHashOf(entry)
			if err != nil {
				return nil, err
			}
			replayedState, err = replayedState.ApplyLeaf(h)
			if err != nil {
				return nil, err
			}
		}
		if replayedState.Root() != root {
			return nil, lgerrors.New(lgerrors.CodeMerkleRootMismatch, "replay root disagreement during repair")
		}
		if err := acc.Overwrite(replayedState); err != nil {
			return nil, err
		}
		merkleRebuilt = true
	}

	indexRebuilt := false
	if cfg.IndexBackend != nil {
		if err := RebuildIndexFromLog(cfg.LedgerPath, cfg.IndexBackend); err != nil {
			return nil, err
		}
		indexRebuilt = true
	}

	report := &AutoRepairReport{
		GeneratedAt:          canon.FormatTimestamp(clock()),
		RestoredFromSnapshot: restored,
		Divergence:           divergence,
		RootCause:            rootCause,
		MerkleRebuilt:        merkleRebuilt,
		IndexRebuilt:         indexRebuilt,
		FinalMerkleRoot:      acc.State.Root(),
	}

	if err := writeRepairReport(cfg.LedgerPath, report); err != nil {
		return nil, err
	}
	return report, nil
}

func entryHashOf(entry map[string]any) (string, error) {
	h, _ := entry["entry_hash"].(string)
	if h == "" {
		return "", lgerrors.New(lgerrors.CodeInvalidPayload, "ledger entry missing entry_hash")
	}
	return h, nil
}

func writeRepairReport(ledgerPath string, report *AutoRepairReport) error {
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	path := ledgerPath + ".repair.json"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}
