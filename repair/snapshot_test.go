package repair_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessrax/ledger/receipt"
	"github.com/tessrax/ledger/repair"
)

func TestExportAndRestoreSnapshotRoundTrips(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	e, acc, idx := buildTestEngine(t, dir, clock)

	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	_, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "00000000000000000000000000000000")
	require.NoError(t, err)
	_, err = e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 2}, "00000000000000000000000000000001")
	require.NoError(t, err)

	snapPath := filepath.Join(dir, "snapshot.json")
	snap, err := repair.ExportSnapshot(filepath.Join(dir, "ledger.jsonl"), acc, idx, snapPath, clock)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Metadata.LedgerEntries)

	_, err = os.Stat(snapPath + ".meta.cbor")
	require.NoError(t, err)

	restored, err := repair.RestoreSnapshot(snapPath)
	require.NoError(t, err)
	require.Len(t, restored.LedgerLines, 2)
	require.Equal(t, snap.Metadata.MerkleRoot, restored.Metadata.MerkleRoot)

	restoredLedgerPath := filepath.Join(dir, "restored_ledger.jsonl")
	require.NoError(t, repair.ImportLedgerEntries(restored, restoredLedgerPath))
	raw, err := os.ReadFile(restoredLedgerPath)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

func TestSnapshotFileUsesDocumentedKeyNames(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	e, acc, idx := buildTestEngine(t, dir, clock)

	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	_, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "00000000000000000000000000000000")
	require.NoError(t, err)

	snapPath := filepath.Join(dir, "snapshot.json")
	_, err = repair.ExportSnapshot(filepath.Join(dir, "ledger.jsonl"), acc, idx, snapPath, clock)
	require.NoError(t, err)

	raw, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	require.Contains(t, generic, "log_lines")

	var metadata map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(generic["metadata"], &metadata))
	require.Contains(t, metadata, "created_at")
	require.Contains(t, metadata, "entries")
}
