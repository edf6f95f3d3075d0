package repair

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/lgerrors"
	"github.com/tessrax/ledger/merkle"
)

// CompactionReport summarizes one Compactor.Compact run.
type CompactionReport struct {
	RetainedEntries int    `json:"retained_entries"`
	DroppedEntries  int    `json:"dropped_entries"`
	NewMerkleRoot   string `json:"new_merkle_root"`
	OldMerkleRoot   string `json:"old_merkle_root"`
	OutputPath      string `json:"output_path"`
}

// Compactor truncates a ledger down to its most recent entries, useful
// once older entries are covered by an exported snapshot and no longer
// need to live in the live append-only file.
type Compactor struct {
	LedgerPath      string
	MerkleStatePath string
	Clock           func() time.Time
}

// Compact writes the last `retain` ledger lines to outputPath (defaulting
// to LedgerPath with a "_compacted" suffix), rebuilds a standalone Merkle
// state file reflecting only the retained entries, and writes a record of
// the operation next to the output, named after outputPath with its
// extension replaced by ".rollover.json".
func (c *Compactor) Compact(retain int, outputPath string) (*CompactionReport, error) {
	lines, err := readLedgerLines(c.LedgerPath)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, lgerrors.New(lgerrors.CodeRepairRequired, "ledger is empty; nothing to compact")
	}
	if retain < 1 {
		retain = 1
	}
	if retain > len(lines) {
		retain = len(lines)
	}
	retained := lines[len(lines)-retain:]

	if outputPath == "" {
		ext := filepath.Ext(c.LedgerPath)
		outputPath = strings.TrimSuffix(c.LedgerPath, ext) + "_compacted" + ext
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, err
	}
	var buf strings.Builder
	for _, line := range retained {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(outputPath, []byte(buf.String()), 0o644); err != nil {
		return nil, err
	}

	state := merkle.Empty()
	var lastEntry map[string]any
	for _, line := range retained {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, lgerrors.Wrap(lgerrors.CodeInvalidPayload, "corrupted ledger line during compaction", err)
		}
		h, err := entryHashOf(entry)
		if err != nil {
			return nil, err
		}
		state, err = state.ApplyLeaf(h)
		if err != nil {
			return nil, err
		}
		lastEntry = entry
	}

	if c.MerkleStatePath != "" {
		acc, err := merkle.Open(c.MerkleStatePath, c.Clock)
		if err != nil {
			return nil, err
		}
		if err := acc.Overwrite(state); err != nil {
			return nil, err
		}
	}

	oldRoot := ""
	if lastEntry != nil {
		oldRoot, _ = lastEntry["merkle_root"].(string)
	}

	report := &CompactionReport{
		RetainedEntries: len(retained),
		DroppedEntries:  len(lines) - len(retained),
		NewMerkleRoot:   state.Root(),
		OldMerkleRoot:   oldRoot,
		OutputPath:      outputPath,
	}

	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}
	rollover := map[string]any{
		"generated_at": canon.FormatTimestamp(clock()),
		"report":       report,
	}
	encoded, err := json.MarshalIndent(rollover, "", "  ")
	if err != nil {
		return nil, err
	}
	rolloverPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".rollover.json"
	if err := os.WriteFile(rolloverPath, append(encoded, '\n'), 0o644); err != nil {
		return nil, err
	}

	return report, nil
}

// ShardPlanner splits a ledger into fixed-size shard files, each line
// annotated with the Merkle root the preceding shard ended on so a reader
// can verify shard continuity without holding the whole ledger in memory.
type ShardPlanner struct {
	LedgerPath string
}

// Shard writes ledger-shard-<start>-<end>.jsonl files of at most
// maxEntries lines each into outputDir (defaulting to the ledger's own
// directory), and returns their paths in order.
func (p *ShardPlanner) Shard(maxEntries int, outputDir string) ([]string, error) {
	if maxEntries <= 0 {
		return nil, lgerrors.New(lgerrors.CodeInvalidValue, "max_entries must be positive")
	}
	lines, err := readLedgerLines(p.LedgerPath)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}
	if outputDir == "" {
		outputDir = filepath.Dir(p.LedgerPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}

	var shards []string
	previousRoot := ""
	for start := 0; start < len(lines); start += maxEntries {
		end := start + maxEntries
		if end > len(lines) {
			end = len(lines)
		}
		chunk := lines[start:end]
		shardPath := filepath.Join(outputDir, fmt.Sprintf("ledger-shard-%08d-%08d.jsonl", start, end))

		state := merkle.Empty()
		var buf strings.Builder
		for _, line := range chunk {
			var entry map[string]any
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, lgerrors.Wrap(lgerrors.CodeInvalidPayload, "corrupted ledger line during sharding", err)
			}
			h, err := entryHashOf(entry)
			if err != nil {
				return nil, err
			}
			state, err = state.ApplyLeaf(h)
			if err != nil {
				return nil, err
			}
			entry["shard_previous_root"] = previousRoot
			encoded, err := json.Marshal(entry)
			if err != nil {
				return nil, err
			}
			buf.Write(encoded)
			buf.WriteByte('\n')
		}
		if err := os.WriteFile(shardPath, []byte(buf.String()), 0o644); err != nil {
			return nil, err
		}
		previousRoot = state.Root()
		shards = append(shards, shardPath)
	}
	return shards, nil
}
