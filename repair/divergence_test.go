package repair_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessrax/ledger/receipt"
	"github.com/tessrax/ledger/repair"
)

func TestScanStateDivergenceCleanLedgerReportsNone(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	e, acc, idx := buildTestEngine(t, dir, clock)

	ctx := receipt.WithGovernanceToken(context.Background(), "governance-secret")
	_, err := e.WriteReceipt(ctx, "STATE_AUDITED", map[string]any{"n": 1}, "00000000000000000000000000000000")
	require.NoError(t, err)

	report, err := repair.ScanStateDivergence(filepath.Join(dir, "ledger.jsonl"), idx, acc)
	require.NoError(t, err)
	require.True(t, report.RootMatches)
	require.Empty(t, report.Differences)

	cause := repair.AnalyzeRootCause(report)
	require.Equal(t, repair.ClassificationNone, cause.Classification)
}

func TestDivergenceDetectorMatchingRoots(t *testing.T) {
	entries := []map[string]any{
		{"entry_hash": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "payload_hash": "p0"},
		{"entry_hash": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "payload_hash": "p1"},
	}
	det := repair.DivergenceDetector{}
	report, err := det.Compare(entries, entries)
	require.NoError(t, err)
	require.True(t, report.RootsMatch)
}

func TestDivergenceDetectorDiffersComputesDelta(t *testing.T) {
	a := []map[string]any{
		{"entry_hash": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "payload_hash": "p0"},
	}
	b := []map[string]any{
		{"entry_hash": "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc", "payload_hash": "p2"},
	}
	det := repair.DivergenceDetector{}
	report, err := det.Compare(a, b)
	require.NoError(t, err)
	require.False(t, report.RootsMatch)
	require.Len(t, report.Added, 1)
	require.Len(t, report.Removed, 1)
	require.Empty(t, report.Modified)
}

func TestSemanticDiffReportsOnlyChangedKeys(t *testing.T) {
	before := map[string]any{"status": "LOGGED", "n": float64(1)}
	after := map[string]any{"status": "VERIFIED", "n": float64(1)}
	diff := repair.SemanticDiff(before, after)
	require.Len(t, diff, 1)
	require.Equal(t, [2]any{"LOGGED", "VERIFIED"}, diff["status"])
}
