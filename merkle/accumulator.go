package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tessrax/ledger/canon"
)

// AuditorIdentity is stamped into every persisted merkle state file.
const AuditorIdentity = "Tessrax Governance Kernel v16"

// persistedState is the on-disk shape: entry_count,
// peaks, last_leaf_hash, root, updated_at, auditor, integrity.
type persistedState struct {
	EntryCount   uint64   `json:"entry_count"`
	Peaks        []string `json:"peaks"`
	LastLeafHash *string  `json:"last_leaf_hash"`
	Root         string   `json:"root"`
	UpdatedAt    string   `json:"updated_at"`
	Auditor      string   `json:"auditor"`
	Integrity    string   `json:"integrity"`
}

// Update is the result of Accumulator.PrepareUpdate: the would-be next
// state, computed but not yet persisted.
type Update struct {
	NewState         State
	PreviousLeafHash string
	NewRoot          string
}

// Accumulator is a persistent Merkle accumulator backed by a JSON state
// file, following a two-phase prepare/commit contract so the log
// append and index mirror can happen strictly between them.
type Accumulator struct {
	path  string
	clock func() time.Time
	State State
}

// Open loads (or lazily initializes) the accumulator state at path.
func Open(path string, clock func() time.Time) (*Accumulator, error) {
	if clock == nil {
		clock = time.Now
	}
	a := &Accumulator{path: path, clock: clock}
	state, err := loadState(path)
	if err != nil {
		return nil, err
	}
	a.State = state
	return a, nil
}

func loadState(path string) (State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return State{}, err
	}
	if len(raw) == 0 {
		return Empty(), nil
	}
	var ps persistedState
	if err := json.Unmarshal(raw, &ps); err != nil {
		return State{}, fmt.Errorf("merkle: corrupt state file %s: %w", path, err)
	}
	last := ""
	if ps.LastLeafHash != nil {
		last = *ps.LastLeafHash
	}
	return State{EntryCount: ps.EntryCount, Peaks: ps.Peaks, LastLeafHash: last}, nil
}

// PrepareUpdate computes the next state without persisting anything.
func (a *Accumulator) PrepareUpdate(leafHash string) (Update, error) {
	next, err := a.State.ApplyLeaf(leafHash)
	if err != nil {
		return Update{}, err
	}
	return Update{
		NewState:         next,
		PreviousLeafHash: a.State.LastLeafHash,
		NewRoot:          next.Root(),
	}, nil
}

// Commit adopts u.NewState as the accumulator's current state and persists
// it atomically via write-temp-then-rename.
func (a *Accumulator) Commit(u Update) (string, error) {
	a.State = u.NewState
	if err := a.persist(); err != nil {
		return "", err
	}
	return a.State.Root(), nil
}

// Overwrite forcibly replaces the in-memory and persisted state (used by
// repair.AutoRepair when reconciling against a replayed root).
func (a *Accumulator) Overwrite(state State) error {
	a.State = state
	return a.persist()
}

func (a *Accumulator) persist() error {
	var lastLeaf *string
	if a.State.LastLeafHash != "" {
		v := a.State.LastLeafHash
		lastLeaf = &v
	}
	ps := persistedState{
		EntryCount:   a.State.EntryCount,
		Peaks:        a.State.Peaks,
		LastLeafHash: lastLeaf,
		Root:         a.State.Root(),
		UpdatedAt:    canon.FormatTimestamp(a.clock()),
		Auditor:      AuditorIdentity,
	}
	ps.Integrity = integrityDigest(ps)

	encoded, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')
	return atomicWrite(a.path, encoded)
}

// integrityDigest hashes the canonical JSON of everything but the
// integrity field itself.
func integrityDigest(ps persistedState) string {
	ps.Integrity = ""
	fields := map[string]any{
		"entry_count": ps.EntryCount,
		"peaks":       ps.Peaks,
		"root":        ps.Root,
		"updated_at":  ps.UpdatedAt,
		"auditor":     ps.Auditor,
	}
	if ps.LastLeafHash != nil {
		fields["last_leaf_hash"] = *ps.LastLeafHash
	} else {
		fields["last_leaf_hash"] = nil
	}
	v, err := canon.Normalize(fields)
	if err != nil {
		return ""
	}
	encoded, err := canon.JSON(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// atomicWrite writes data to a temp file in the same directory as path then
// renames it into place, the write-temp-then-rename discipline
// requires of every shared state file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
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
