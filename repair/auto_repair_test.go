package repair_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessrax/ledger/merkle"
	"github.com/tessrax/ledger/receipt"
	"github.com/tessrax/ledger/repair"
)

func TestAutoRepairRebuildsIndexAndNoOpsOnCleanLedger(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	e, _, idx := buildTestEngine(t, dir, clock)

	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	_, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "00000000000000000000000000000000")
	require.NoError(t, err)

	report, err := repair.AutoRepair(repair.AutoRepairConfig{
		LedgerPath:      filepath.Join(dir, "ledger.jsonl"),
		MerkleStatePath: filepath.Join(dir, "merkle_state.json"),
		IndexBackend:    idx,
		Clock:           clock,
	})
	require.NoError(t, err)
	require.True(t, report.IndexRebuilt)
	require.False(t, report.MerkleRebuilt)
	require.Equal(t, repair.ClassificationNone, report.RootCause.Classification)

	_, err = os.Stat(filepath.Join(dir, "ledger.jsonl.repair.json"))
	require.NoError(t, err)
}

func TestAutoRepairRebuildsMerkleStateAfterCorruption(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	e, acc, idx := buildTestEngine(t, dir, clock)

	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	_, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "00000000000000000000000000000000")
	require.NoError(t, err)

	require.NoError(t, acc.Overwrite(merkle.Empty()))

	report, err := repair.AutoRepair(repair.AutoRepairConfig{
		LedgerPath:      filepath.Join(dir, "ledger.jsonl"),
		MerkleStatePath: filepath.Join(dir, "merkle_state.json"),
		IndexBackend:    idx,
		Clock:           clock,
	})
	require.NoError(t, err)
	require.True(t, report.MerkleRebuilt)
	require.Equal(t, repair.ClassificationMerkleDrift, report.RootCause.Classification)

	reopened, err := merkle.Open(filepath.Join(dir, "merkle_state.json"), clock)
	require.NoError(t, err)
	require.Equal(t, report.FinalMerkleRoot, reopened.State.Root())
}
