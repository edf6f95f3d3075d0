// Package token implements the governance token freshness guard: a stateful
// anti-replay check ensuring a governance approval token is both recently
// seen and not reused against the same ledger counter twice in a row.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/lgerrors"
)

// DefaultWindow is the freshness window applied when Guard.Window is zero.
const DefaultWindow = 300 * time.Second

type tokenRecord struct {
	LastSeen    string `json:"last_seen"`
	LastCounter uint64 `json:"last_counter"`
	LastTag     string `json:"last_tag"`
}

// Guard validates governance tokens against a persisted freshness/replay
// table keyed by the token's SHA-256 digest.
type Guard struct {
	StatePath string
	Window    time.Duration
	Clock     func() time.Time
}

// New returns a Guard persisting state at statePath with the given window
// (DefaultWindow if zero) and clock (time.Now if nil).
func New(statePath string, window time.Duration, clock func() time.Time) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &Guard{StatePath: statePath, Window: window, Clock: clock}
}

func (g *Guard) load() (map[string]tokenRecord, error) {
	raw, err := os.ReadFile(g.StatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]tokenRecord{}, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]tokenRecord{}, nil
	}
	var state map[string]tokenRecord
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, lgerrors.Wrap(lgerrors.CodeIOFailure, "token state is corrupt", err)
	}
	return state, nil
}

func (g *Guard) save(state map[string]tokenRecord) error {
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(g.StatePath, append(encoded, '\n'))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Validate checks governanceToken's freshness and replay state against
// ledgerCounter, records the observation, and returns the tag
// "<digest>:<counter>" stamped into the resulting ledger entry.
func (g *Guard) Validate(governanceToken string, ledgerCounter uint64) (string, error) {
	if governanceToken == "" {
		return "", lgerrors.New(lgerrors.CodeTokenMissing, "governance token missing")
	}

	digest := hashToken(governanceToken)
	state, err := g.load()
	if err != nil {
		return "", err
	}

	window := g.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := g.Clock()
	if record, ok := state[digest]; ok {
		lastSeen, err := canon.ParseTimestamp(record.LastSeen)
		if err != nil {
			return "", lgerrors.Wrap(lgerrors.CodeIOFailure, "token state has an unparseable timestamp", err)
		}
		if now.Sub(lastSeen) > window {
			return "", lgerrors.New(lgerrors.CodeTokenExpired, "governance token expired; refresh required").
				WithDetail("last_seen", record.LastSeen).
				WithDetail("window_seconds", window.Seconds())
		}
		if record.LastCounter == ledgerCounter {
			return "", lgerrors.New(lgerrors.CodeTokenReplay, "governance token replay detected").
				WithDetail("counter", ledgerCounter)
		}
	}

	tag := fmt.Sprintf("%s:%d", digest, ledgerCounter)
	state[digest] = tokenRecord{
		LastSeen:    canon.FormatTimestamp(now),
		LastCounter: ledgerCounter,
		LastTag:     tag,
	}
	if err := g.save(state); err != nil {
		return "", err
	}
	return tag, nil
}

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
