package repair_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessrax/ledger/epoch"
	"github.com/tessrax/ledger/index"
	"github.com/tessrax/ledger/keys"
	"github.com/tessrax/ledger/ledgerlog"
	"github.com/tessrax/ledger/merkle"
	"github.com/tessrax/ledger/receipt"
	"github.com/tessrax/ledger/repair"
	"github.com/tessrax/ledger/token"
)

func buildTestEngine(t *testing.T, dir string, clock func() time.Time) (*receipt.Engine, *merkle.Accumulator, index.Backend) {
	t.Helper()
	keyReg := keys.New(filepath.Join(dir, "signing_keys"), clock)
	_, _, err := keyReg.LoadActive()
	require.NoError(t, err)

	acc, err := merkle.Open(filepath.Join(dir, "merkle_state.json"), clock)
	require.NoError(t, err)

	idx, err := index.Open("sqlite", filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	require.NoError(t, idx.EnsureSchema())

	epochMgr := epoch.New(filepath.Join(dir, "epoch_state.json"), filepath.Join(dir, "snapshots"))

	e := &receipt.Engine{
		Keys:   keyReg,
		Tokens: token.New(filepath.Join(dir, "token_state.json"), time.Minute, clock),
		Merkle: acc,
		Epoch:  epochMgr,
		Log:    ledgerlog.New(filepath.Join(dir, "ledger.jsonl")),
		Index:  idx,
		Clock:  clock,
	}
	return e, acc, idx
}

func TestParallelReplayRootMatchesAccumulator(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	e, acc, _ := buildTestEngine(t, dir, clock)

	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	for i := 0; i < 5; i++ {
		_, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": i}, "00000000000000000000000000000000")
		require.NoError(t, err)
	}

	root, err := repair.ParallelReplayRoot(filepath.Join(dir, "ledger.jsonl"))
	require.NoError(t, err)
	require.Equal(t, acc.State.Root(), root)
}

func TestParallelReplayRootOnMissingLedgerReturnsEmptyRoot(t *testing.T) {
	root, err := repair.ParallelReplayRoot(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	require.Equal(t, merkle.Empty().Root(), root)
}
