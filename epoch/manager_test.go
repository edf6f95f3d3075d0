package epoch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessrax/ledger/epoch"
	"github.com/tessrax/ledger/merkle"
)

func leafHash(seed string) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 64)
	for i := range out {
		out[i] = hex[(int(seed[i%len(seed)])+i)%16]
	}
	return string(out)
}

func TestRecordEntryIsIdempotentAndAssignsMonotonicIDs(t *testing.T) {
	dir := t.TempDir()
	m := epoch.New(filepath.Join(dir, "epoch_state.json"), filepath.Join(dir, "snapshots"))

	h1 := leafHash("a")
	state1, err := merkle.Empty().ApplyLeaf(h1)
	require.NoError(t, err)

	id1, err := m.RecordEntry(h1, "2026-01-01T00:00:00.000000Z", state1)
	require.NoError(t, err)
	require.Contains(t, id1, "EPOCH-")

	again, err := m.RecordEntry(h1, "2026-01-01T00:00:00.000000Z", state1)
	require.NoError(t, err)
	require.Equal(t, id1, again)

	h2 := leafHash("b")
	state2, err := state1.ApplyLeaf(h2)
	require.NoError(t, err)
	id2, err := m.RecordEntry(h2, "2026-01-01T00:00:01.000000Z", state2)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	got, err := m.GetEpoch(h1)
	require.NoError(t, err)
	require.Equal(t, id1, got)

	snapshotDir := filepath.Join(dir, "snapshots")
	entries, err := os.ReadDir(snapshotDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestGetEpochMissingReturnsError(t *testing.T) {
	dir := t.TempDir()
	m := epoch.New(filepath.Join(dir, "epoch_state.json"), filepath.Join(dir, "snapshots"))
	_, err := m.GetEpoch(leafHash("nope"))
	require.Error(t, err)
}
