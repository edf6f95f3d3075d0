package ledgerctx_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessrax/ledger/ledgerctx"
	"github.com/tessrax/ledger/receipt"
)

func TestBuildWiresAWorkingEngine(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEDGER_PATH", filepath.Join(dir, "ledger.jsonl"))
	t.Setenv("INDEX_PATH", filepath.Join(dir, "index.db"))
	t.Setenv("MERKLE_STATE_PATH", filepath.Join(dir, "merkle_state.json"))
	t.Setenv("EPOCH_STATE_PATH", filepath.Join(dir, "epoch_state.json"))
	t.Setenv("EPOCH_SNAPSHOT_DIR", filepath.Join(dir, "epoch_snapshots"))
	t.Setenv("SIGNING_KEYS_DIR", filepath.Join(dir, "signing_keys"))
	t.Setenv("TOKEN_STATE_PATH", filepath.Join(dir, "token_state.json"))

	cfg := ledgerctx.LoadConfig()
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	lctx, err := ledgerctx.Build(cfg, clock, nil)
	require.NoError(t, err)
	defer lctx.Close()

	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	r, err := lctx.Engine.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "00000000000000000000000000000000")
	require.NoError(t, err)
	require.NotEmpty(t, r.EntryHash)

	_, err = os.Stat(filepath.Join(dir, "ledger.jsonl"))
	require.NoError(t, err)
}

func TestLoadConfigParsesApproversAndWindow(t *testing.T) {
	t.Setenv("REQUIRED_APPROVERS", "alice, bob")
	t.Setenv("TOKEN_WINDOW_SECONDS", "42")

	cfg := ledgerctx.LoadConfig()
	require.Equal(t, []string{"alice", "bob"}, cfg.RequiredApprovers)
	require.Equal(t, 42*time.Second, cfg.TokenWindow)
}

func TestLoadConfigReadsGovernanceTokenAndKeyID(t *testing.T) {
	t.Setenv("GOVERNANCE_TOKEN", "configured-secret")
	t.Setenv("KEY_ID", "key-7")

	cfg := ledgerctx.LoadConfig()
	require.Equal(t, "configured-secret", cfg.GovernanceToken)
	require.Equal(t, "key-7", cfg.KeyID)
}
