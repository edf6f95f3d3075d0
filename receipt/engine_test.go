package receipt_test

import (
	"context"
	"os"
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
	"github.com/tessrax/ledger/token"
)

func newTestEngine(t *testing.T) (*receipt.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	keyReg := keys.New(filepath.Join(dir, "signing_keys"), clock)
	_, _, err := keyReg.LoadActive()
	require.NoError(t, err)

	acc, err := merkle.Open(filepath.Join(dir, "merkle_state.json"), clock)
	require.NoError(t, err)

	idx, err := index.Open("sqlite", filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	require.NoError(t, idx.EnsureSchema())

	return &receipt.Engine{
		Keys:   keyReg,
		Tokens: token.New(filepath.Join(dir, "token_state.json"), time.Minute, clock),
		Merkle: acc,
		Epoch:  epoch.New(filepath.Join(dir, "epoch_state.json"), filepath.Join(dir, "snapshots")),
		Log:    ledgerlog.New(filepath.Join(dir, "ledger.jsonl")),
		Index:  idx,
		Clock:  clock,
	}, dir
}

func TestWriteReceiptChainsSuccessiveEntries(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")

	r1, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "00000000000000000000000000000000")
	require.NoError(t, err)
	require.Empty(t, r1.PreviousEntryHash)
	require.NotEmpty(t, r1.EntryHash)
	require.NotEmpty(t, r1.EpochID)

	r2, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 2}, "00000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, r1.EntryHash, r2.PreviousEntryHash)
	require.NotEqual(t, r1.MerkleRoot, r2.MerkleRoot)
}

func TestWriteReceiptRejectsUnknownEventType(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	_, err := e.WriteReceipt(ctx, "NOT_A_REAL_EVENT", map[string]any{}, "00000000000000000000000000000000")
	require.Error(t, err)
}

func TestWriteReceiptRejectsMissingGovernanceToken(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.WriteReceipt(context.Background(), "STATE_AUDITED", map[string]any{}, "00000000000000000000000000000000")
	require.Error(t, err)
}

func TestWriteReceiptRejectsNonHexStateHash(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	_, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "state-hash-0000")
	require.Error(t, err)
}

func TestWriteReceiptRejectsShortHexStateHash(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	_, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "deadbeef")
	require.Error(t, err)
}

func TestWriteReceiptWritesNullPreviousEntryHashForGenesis(t *testing.T) {
	e, dir := newTestEngine(t)
	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")

	_, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "00000000000000000000000000000000")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "ledger.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"previous_entry_hash":null`)
}
