package repair

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/index"
	"github.com/tessrax/ledger/merkle"
)

// AuditorIdentity is stamped into every exported snapshot.
const AuditorIdentity = "Tessrax Governance Kernel v16"

// SnapshotMetadata describes a LedgerSnapshot without carrying its bulk —
// this is the part also written, standalone, to the CBOR sidecar file so a
// snapshot can be identified without parsing the full JSON payload.
type SnapshotMetadata struct {
	GeneratedAt      string `json:"created_at"`
	Auditor          string `json:"auditor"`
	LedgerEntries    int    `json:"entries"`
	MerkleEntryCount uint64 `json:"merkle_entry_count"`
	MerkleRoot       string `json:"merkle_root"`
}

// LedgerSnapshot is a point-in-time capture of everything needed to
// reconstruct the ledger, the Merkle accumulator, and the secondary index.
type LedgerSnapshot struct {
	Metadata    SnapshotMetadata `json:"metadata"`
	LedgerLines []string         `json:"log_lines"`
	MerkleState map[string]any   `json:"merkle_state"`
	IndexDump   string           `json:"index_dump"`
}

// ExportSnapshot captures the ledger, Merkle state, and index into a single
// JSON file at outputPath, plus a CBOR-encoded sidecar at
// outputPath+".meta.cbor" carrying just the metadata block.
func ExportSnapshot(ledgerPath string, acc *merkle.Accumulator, idx index.Backend, outputPath string, clock func() time.Time) (*LedgerSnapshot, error) {
	if clock == nil {
		clock = time.Now
	}
	lines, err := readLedgerLines(ledgerPath)
	if err != nil {
		return nil, err
	}

	var dump string
	if idx != nil {
		rows, err := idx.All()
		if err != nil {
			return nil, err
		}
		dump = dumpIndexRows(rows)
	}

	snap := &LedgerSnapshot{
		Metadata: SnapshotMetadata{
			GeneratedAt:      canon.FormatTimestamp(clock()),
			Auditor:          AuditorIdentity,
			LedgerEntries:    len(lines),
			MerkleEntryCount: acc.State.EntryCount,
			MerkleRoot:       acc.State.Root(),
		},
		LedgerLines: lines,
		MerkleState: map[string]any{
			"entry_count":    acc.State.EntryCount,
			"peaks":          acc.State.Peaks,
			"last_leaf_hash": acc.State.LastLeafHash,
		},
		IndexDump: dump,
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, err
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, append(encoded, '\n'), 0o644); err != nil {
		return nil, err
	}

	metaEncoded, err := cbor.Marshal(snap.Metadata)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath+".meta.cbor", metaEncoded, 0o644); err != nil {
		return nil, err
	}

	return snap, nil
}

// RestoreSnapshot reads a snapshot file written by ExportSnapshot.
func RestoreSnapshot(snapshotPath string) (*LedgerSnapshot, error) {
	raw, err := os.ReadFile(snapshotPath)
	if err != nil {
		return nil, err
	}
	var snap LedgerSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("repair: corrupt snapshot %s: %w", snapshotPath, err)
	}
	return &snap, nil
}

// ImportLedgerEntries overwrites ledgerPath with the lines carried by
// snap, restoring the append-only log to the captured point in time. It
// does not touch the Merkle state or index files; callers rebuild those
// separately (see AutoRepair).
func ImportLedgerEntries(snap *LedgerSnapshot, ledgerPath string) error {
	if err := os.MkdirAll(filepath.Dir(ledgerPath), 0o755); err != nil {
		return err
	}
	var buf strings.Builder
	for _, line := range snap.LedgerLines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return os.WriteFile(ledgerPath, []byte(buf.String()), 0o644)
}

func dumpIndexRows(rows []index.Entry) string {
	var buf strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&buf, "INSERT INTO ledger_index (ledger_offset, event_type, state_hash, payload_hash, timestamp, merkle_root, entry_hash, previous_entry_hash) VALUES (%d, %q, %q, %q, %q, %q, %q, %q);\n",
			r.LedgerOffset, r.EventType, r.StateHash, r.PayloadHash, r.Timestamp, r.MerkleRoot, r.EntryHash, r.PreviousEntryHash)
	}
	return buf.String()
}
