// Package epoch assigns deterministic, strictly monotonic epoch identifiers
// to ledger entries and writes a per-epoch snapshot of the Merkle state at
// the moment each epoch was assigned.
package epoch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/lgerrors"
	"github.com/tessrax/ledger/merkle"
)

type record struct {
	EpochID    string `json:"epoch_id"`
	Timestamp  string `json:"timestamp"`
	MerkleRoot string `json:"merkle_root"`
}

type stateFile struct {
	NextEpoch uint64             `json:"next_epoch"`
	Entries   map[string]*record `json:"entries"`
}

// Manager tracks the {entry_hash -> epoch_id} table and writes per-epoch
// snapshot files into SnapshotDir.
type Manager struct {
	mu          sync.Mutex
	statePath   string
	snapshotDir string
}

// New returns a Manager persisting its table at statePath and writing
// per-epoch snapshots into snapshotDir.
func New(statePath, snapshotDir string) *Manager {
	return &Manager{statePath: statePath, snapshotDir: snapshotDir}
}

func (m *Manager) load() (stateFile, error) {
	raw, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return stateFile{NextEpoch: 0, Entries: map[string]*record{}}, nil
		}
		return stateFile{}, err
	}
	if len(raw) == 0 {
		return stateFile{NextEpoch: 0, Entries: map[string]*record{}}, nil
	}
	var sf stateFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return stateFile{}, fmt.Errorf("epoch: corrupt state file: %w", err)
	}
	if sf.Entries == nil {
		sf.Entries = map[string]*record{}
	}
	return sf, nil
}

func (m *Manager) save(sf stateFile) error {
	if err := os.MkdirAll(filepath.Dir(m.statePath), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')
	return writeAtomic(m.statePath, encoded)
}

// RecordEntry assigns (or looks up, idempotently) the epoch ID for
// entryHash, writing a snapshot file the first time it is assigned.
func (m *Manager) RecordEntry(entryHash, timestamp string, state merkle.State) (string, error) {
	if len(entryHash) != 64 {
		return "", lgerrors.New(lgerrors.CodeEpochMismatch, "entry_hash must be 64 hex chars").
			WithDetail("entry_hash", entryHash)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sf, err := m.load()
	if err != nil {
		return "", err
	}
	if existing, ok := sf.Entries[entryHash]; ok {
		return existing.EpochID, nil
	}

	epochID := fmt.Sprintf("EPOCH-%020d-%s", sf.NextEpoch, entryHash[:16])
	sf.Entries[entryHash] = &record{EpochID: epochID, Timestamp: timestamp, MerkleRoot: state.Root()}
	sf.NextEpoch++

	if err := m.save(sf); err != nil {
		return "", err
	}
	if err := m.writeSnapshot(epochID, state); err != nil {
		return "", err
	}
	return epochID, nil
}

// GetEpoch looks up the previously-assigned epoch ID for entryHash.
func (m *Manager) GetEpoch(entryHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sf, err := m.load()
	if err != nil {
		return "", err
	}
	rec, ok := sf.Entries[entryHash]
	if !ok {
		return "", lgerrors.New(lgerrors.CodeEpochMissing, "entry hash not found in epoch table").
			WithDetail("entry_hash", entryHash)
	}
	return rec.EpochID, nil
}

func (m *Manager) writeSnapshot(epochID string, state merkle.State) error {
	if m.snapshotDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.snapshotDir, 0o755); err != nil {
		return err
	}
	payload := map[string]any{
		"epoch_id": epochID,
		"merkle_state": map[string]any{
			"entry_count":    state.EntryCount,
			"peaks":          state.Peaks,
			"last_leaf_hash": state.LastLeafHash,
		},
	}
	v, err := canon.Normalize(payload)
	if err != nil {
		return err
	}
	encoded, err := canon.JSON(v)
	if err != nil {
		return err
	}
	path := filepath.Join(m.snapshotDir, fmt.Sprintf("merkle_state-%s.json", epochID))
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
