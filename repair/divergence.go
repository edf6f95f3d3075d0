package repair

import (
	"reflect"
	"sort"

	"github.com/tessrax/ledger/index"
	"github.com/tessrax/ledger/merkle"
)

// Classification names the probable cause a DivergenceReport points at.
type Classification string

const (
	ClassificationNone        Classification = "NONE"
	ClassificationIndexDrift  Classification = "INDEX_DRIFT"
	ClassificationMerkleDrift Classification = "MERKLE_DRIFT"
	ClassificationUnknown     Classification = "UNKNOWN"
)

// DivergenceReport summarizes entry counts across the three sources of
// truth — ledger, index, and Merkle accumulator — and whether the
// persisted root matches a from-scratch replay.
type DivergenceReport struct {
	LedgerEntries int
	IndexEntries  int
	MerkleEntries uint64
	RootMatches   bool
	Differences   map[string]any
}

// ScanStateDivergence compares the ledger's line count, the index's row
// count, and the accumulator's entry count, and independently recomputes
// the Merkle root to check it against the persisted one.
func ScanStateDivergence(ledgerPath string, idx index.Backend, acc *merkle.Accumulator) (*DivergenceReport, error) {
	lines, err := readLedgerLines(ledgerPath)
	if err != nil {
		return nil, err
	}

	var indexRows []index.Entry
	if idx != nil {
		indexRows, err = idx.All()
		if err != nil {
			return nil, err
		}
	}

	replayedRoot, err := ParallelReplayRoot(ledgerPath)
	if err != nil {
		return nil, err
	}

	diffs := map[string]any{}
	if len(lines) != len(indexRows) {
		diffs["ledger_index_count_mismatch"] = map[string]int{
			"ledger": len(lines),
			"index":  len(indexRows),
		}
	}
	if uint64(len(lines)) != acc.State.EntryCount {
		diffs["ledger_merkle_count_mismatch"] = map[string]uint64{
			"ledger": uint64(len(lines)),
			"merkle": acc.State.EntryCount,
		}
	}
	rootMatches := replayedRoot == acc.State.Root()
	if !rootMatches {
		diffs["root_mismatch"] = map[string]string{
			"persisted": acc.State.Root(),
			"replayed":  replayedRoot,
		}
	}

	return &DivergenceReport{
		LedgerEntries: len(lines),
		IndexEntries:  len(indexRows),
		MerkleEntries: acc.State.EntryCount,
		RootMatches:   rootMatches,
		Differences:   diffs,
	}, nil
}

// RootCauseAnalysis is AnalyzeRootCause's verdict: a coarse classification
// plus a human-readable explanation of how it was reached.
type RootCauseAnalysis struct {
	Classification Classification
	Detail         string
}

// AnalyzeRootCause inspects a DivergenceReport and assigns the most
// specific classification its differences support.
func AnalyzeRootCause(report *DivergenceReport) RootCauseAnalysis {
	if len(report.Differences) == 0 {
		return RootCauseAnalysis{Classification: ClassificationNone, Detail: "no divergence detected"}
	}
	_, rootMismatch := report.Differences["root_mismatch"]
	_, merkleCountMismatch := report.Differences["ledger_merkle_count_mismatch"]
	_, indexCountMismatch := report.Differences["ledger_index_count_mismatch"]

	switch {
	case rootMismatch || merkleCountMismatch:
		return RootCauseAnalysis{
			Classification: ClassificationMerkleDrift,
			Detail:         "the persisted Merkle state disagrees with a from-scratch replay of the ledger",
		}
	case indexCountMismatch:
		return RootCauseAnalysis{
			Classification: ClassificationIndexDrift,
			Detail:         "the secondary index row count disagrees with the ledger line count",
		}
	default:
		return RootCauseAnalysis{
			Classification: ClassificationUnknown,
			Detail:         "differences were recorded but none matched a known root cause pattern",
		}
	}
}

// DivergenceDetectionReport is the result of comparing two independent
// entry sets — two snapshots, or a ledger against a restored copy.
type DivergenceDetectionReport struct {
	RootsMatch bool
	Added      []map[string]any
	Removed    []map[string]any
	Modified   []map[string]any
}

// DivergenceDetector compares two receipt sets by folding each into its
// own Merkle state first; it only pays for the more expensive delta diff
// when the roots actually disagree.
type DivergenceDetector struct{}

// Compare folds both entry sets into Merkle roots via their entry_hash
// fields and, if the roots differ, computes the added/removed/modified
// delta keyed by entry_hash.
func (DivergenceDetector) Compare(a, b []map[string]any) (*DivergenceDetectionReport, error) {
	rootA, err := foldEntries(a)
	if err != nil {
		return nil, err
	}
	rootB, err := foldEntries(b)
	if err != nil {
		return nil, err
	}
	if rootA == rootB {
		return &DivergenceDetectionReport{RootsMatch: true}, nil
	}

	added, removed, modified := CalculateDeltaDiff(a, b)
	return &DivergenceDetectionReport{
		RootsMatch: false,
		Added:      added,
		Removed:    removed,
		Modified:   modified,
	}, nil
}

func foldEntries(entries []map[string]any) (string, error) {
	state := merkle.Empty()
	for _, e := range entries {
		h, _ := e["entry_hash"].(string)
		if h == "" {
			continue
		}
		var err error
		state, err = state.ApplyLeaf(h)
		if err != nil {
			return "", err
		}
	}
	return state.Root(), nil
}

// CalculateDeltaDiff classifies every entry in b relative to a by
// entry_hash: present only in a is removed, present only in b is added,
// present in both with a different payload_hash is modified.
func CalculateDeltaDiff(a, b []map[string]any) (added, removed, modified []map[string]any) {
	byHashA := indexByEntryHash(a)
	byHashB := indexByEntryHash(b)

	for h, entry := range byHashB {
		if _, ok := byHashA[h]; !ok {
			added = append(added, entry)
		}
	}
	for h, entry := range byHashA {
		other, ok := byHashB[h]
		if !ok {
			removed = append(removed, entry)
			continue
		}
		if entry["payload_hash"] != other["payload_hash"] {
			modified = append(modified, other)
		}
	}
	return added, removed, modified
}

func indexByEntryHash(entries []map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(entries))
	for _, e := range entries {
		h, _ := e["entry_hash"].(string)
		if h != "" {
			out[h] = e
		}
	}
	return out
}

// SemanticDiff returns, for every key present in either receipt, the
// before/after pair when the values differ. Keys present and equal in
// both are omitted.
func SemanticDiff(before, after map[string]any) map[string][2]any {
	keys := map[string]bool{}
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	diff := map[string][2]any{}
	for _, k := range sorted {
		bv, aok := before[k]
		av, bok := after[k]
		if aok != bok || !reflect.DeepEqual(bv, av) {
			diff[k] = [2]any{bv, av}
		}
	}
	return diff
}
