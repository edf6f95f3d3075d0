// Package verify replays the ledger end to end, offline, checking
// signatures, chaining, the Merkle accumulator, and the secondary index —
// stopping at the first failure rather than attempting to continue past
// corruption.
package verify

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ed25519"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/epoch"
	"github.com/tessrax/ledger/index"
	"github.com/tessrax/ledger/keys"
	"github.com/tessrax/ledger/lgerrors"
	"github.com/tessrax/ledger/merkle"
)

var canonicalEventTypes = map[string]bool{
	"STATE_AUDITED":          true,
	"CONTRADICTION_DETECTED": true,
}

// Record is the in-memory view of one verified ledger line.
type Record struct {
	Offset            int
	EventType         string
	AuditedStateHash  string
	PayloadHash       string
	EntryHash         string
	MerkleRoot        string
	PreviousEntryHash string
}

// Paths locates every file the verifier needs to read.
type Paths struct {
	LedgerPath      string
	IndexBackend    index.Backend
	MerkleStatePath string
	SigningKeysDir  string
	EpochManager    *epoch.Manager
}

// Run executes all three verification stages in order, returning on the
// first failure.
func Run(p Paths) ([]Record, error) {
	records, replayed, err := stage1(p)
	if err != nil {
		return nil, err
	}
	if err := stage2(p, records); err != nil {
		return nil, err
	}
	if err := stage3(p, replayed); err != nil {
		return nil, err
	}
	return records, nil
}

func fail(stage, line int, reason string) error {
	return &lgerrors.VerificationError{Stage: stage, Line: line, Reason: reason}
}

func stage1(p Paths) ([]Record, merkle.State, error) {
	state := merkle.Empty()

	raw, err := os.ReadFile(p.LedgerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, state, nil
		}
		return nil, state, fail(1, 0, "failed to read ledger: "+err.Error())
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, state, nil
	}

	verifyKeys, err := loadVerifyKeys(p.SigningKeysDir)
	if err != nil {
		return nil, state, fail(1, 0, err.Error())
	}

	var records []Record
	var prevTimestamp string
	var prevEntryHash string

	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, state, fail(1, lineNo, "corrupted JSON: "+err.Error())
		}

		for _, field := range []string{
			"event_type", "timestamp", "payload", "payload_hash", "audited_state_hash",
			"signature", "epoch_id", "governance_freshness_tag", "entry_hash", "merkle_root",
		} {
			if _, ok := entry[field]; !ok {
				return nil, state, fail(1, lineNo, "missing field '"+field+"'")
			}
		}

		eventType, _ := entry["event_type"].(string)
		if !canonicalEventTypes[eventType] {
			return nil, state, fail(1, lineNo, "unknown event_type: "+eventType)
		}

		auditedStateHash, _ := entry["audited_state_hash"].(string)
		if !canon.IsHexHash(auditedStateHash) {
			return nil, state, fail(1, lineNo, "invalid audited_state_hash: "+auditedStateHash)
		}

		timestamp, _ := entry["timestamp"].(string)
		if prevTimestamp != "" && timestamp < prevTimestamp {
			return nil, state, fail(1, lineNo, "timestamp regression")
		}
		prevTimestamp = timestamp

		payloadValue, err := canon.Normalize(entry["payload"])
		if err != nil {
			return nil, state, fail(1, lineNo, "payload failed canonicalization: "+err.Error())
		}
		payloadHash, err := canon.Hash(payloadValue)
		if err != nil {
			return nil, state, fail(1, lineNo, err.Error())
		}
		payloadHashField, _ := entry["payload_hash"].(string)
		if payloadHash != payloadHashField {
			return nil, state, fail(1, lineNo, "payload hash mismatch")
		}

		if err := verifySignature(entry, verifyKeys); err != nil {
			return nil, state, fail(1, lineNo, err.Error())
		}

		entryHashField, _ := entry["entry_hash"].(string)
		computed, err := ComputeEntryHash(entry)
		if err != nil {
			return nil, state, fail(1, lineNo, err.Error())
		}
		if computed != entryHashField {
			return nil, state, fail(1, lineNo, "entry_hash mismatch")
		}

		previousEntryHash, _ := entry["previous_entry_hash"].(string)
		if previousEntryHash != prevEntryHash {
			return nil, state, fail(1, lineNo, "previous_entry_hash mismatch")
		}

		state, err = state.ApplyLeaf(entryHashField)
		if err != nil {
			return nil, state, fail(1, lineNo, "failed to fold entry hash into accumulator: "+err.Error())
		}
		merkleRootField, _ := entry["merkle_root"].(string)
		if state.Root() != merkleRootField {
			return nil, state, fail(1, lineNo, "merkle_root mismatch")
		}

		epochID, _ := entry["epoch_id"].(string)
		if p.EpochManager != nil {
			if recorded, err := p.EpochManager.GetEpoch(entryHashField); err == nil && recorded != epochID {
				return nil, state, fail(1, lineNo, "epoch_id mismatch")
			}
		}

		records = append(records, Record{
			Offset:            len(records),
			EventType:         eventType,
			AuditedStateHash:  auditedStateHash,
			PayloadHash:       payloadHash,
			EntryHash:         entryHashField,
			MerkleRoot:        merkleRootField,
			PreviousEntryHash: previousEntryHash,
		})
		prevEntryHash = entryHashField
	}
	if err := scanner.Err(); err != nil {
		return nil, state, fail(1, lineNo, err.Error())
	}
	return records, state, nil
}

func stage2(p Paths, records []Record) error {
	if p.IndexBackend == nil {
		return nil
	}
	rows, err := p.IndexBackend.All()
	if err != nil {
		return fail(2, 0, "failed to read ledger index: "+err.Error())
	}
	if len(rows) != len(records) {
		return fail(2, 0, "index/ledger length mismatch")
	}
	prevOffset := int64(-1)
	for i, row := range rows {
		if row.LedgerOffset < prevOffset {
			return fail(2, 0, "ledger offsets must be monotonically increasing")
		}
		prevOffset = row.LedgerOffset

		rec := records[i]
		if row.EventType != rec.EventType ||
			row.StateHash != rec.AuditedStateHash ||
			row.PayloadHash != rec.PayloadHash ||
			row.EntryHash != rec.EntryHash ||
			row.MerkleRoot != rec.MerkleRoot ||
			row.PreviousEntryHash != rec.PreviousEntryHash {
			return fail(2, 0, "index mismatch at offset")
		}
	}
	return nil
}

func stage3(p Paths, replayed merkle.State) error {
	acc, err := merkle.Open(p.MerkleStatePath, nil)
	if err != nil {
		return fail(3, 0, "failed to read merkle state: "+err.Error())
	}
	if acc.State.EntryCount != replayed.EntryCount {
		return fail(3, 0, "merkle entry count mismatch")
	}
	if acc.State.Root() != replayed.Root() {
		return fail(3, 0, "merkle root mismatch")
	}
	return nil
}

// ComputeEntryHash reproduces the hash the receipt engine computes when
// writing: the signed body plus the chaining and freshness fields,
// excluding entry_hash/merkle_root/epoch_id (which depend on the hash
// itself and would otherwise make the check circular).
func ComputeEntryHash(entry map[string]any) (string, error) {
	bodyKeys := []string{
		"event_type", "timestamp", "payload", "payload_hash", "audited_state_hash",
		"auditor", "key_id", "signature", "previous_entry_hash", "governance_freshness_tag",
	}
	body := map[string]any{}
	for _, k := range bodyKeys {
		if v, ok := entry[k]; ok {
			body[k] = v
		}
	}
	v, err := canon.Normalize(body)
	if err != nil {
		return "", err
	}
	encoded, err := canon.JSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func verifySignature(entry map[string]any, verifyKeys map[string]ed25519.PublicKey) error {
	keyID, _ := entry["key_id"].(string)
	if keyID == "" {
		if len(verifyKeys) == 1 {
			for k := range verifyKeys {
				keyID = k
			}
		} else {
			return lgerrors.New(lgerrors.CodeKeyMissing, "missing key_id while multiple verification keys are configured")
		}
	}
	pub, ok := verifyKeys[keyID]
	if !ok {
		return lgerrors.New(lgerrors.CodeKeyMissing, "unknown key_id '"+keyID+"'")
	}

	signedBody := map[string]any{
		"event_type":         entry["event_type"],
		"timestamp":          entry["timestamp"],
		"payload":            entry["payload"],
		"payload_hash":       entry["payload_hash"],
		"audited_state_hash": entry["audited_state_hash"],
		"key_id":             keyID,
	}
	if auditor, ok := entry["auditor"]; ok {
		signedBody["auditor"] = auditor
	}
	v, err := canon.Normalize(signedBody)
	if err != nil {
		return err
	}
	message, err := canon.JSON(v)
	if err != nil {
		return err
	}

	sigHex, _ := entry["signature"].(string)
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return lgerrors.New(lgerrors.CodeInvalidPayload, "invalid signature encoding")
	}
	if !ed25519.Verify(pub, message, sig) {
		return lgerrors.New(lgerrors.CodeInvalidPayload, "signature verification failed")
	}
	return nil
}

func loadVerifyKeys(dir string) (map[string]ed25519.PublicKey, error) {
	out := map[string]ed25519.PublicKey{}
	if dir == "" {
		return out, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.pub"))
	if err != nil {
		return nil, err
	}
	reg := keys.New(dir, nil)
	for _, m := range matches {
		keyID := strings.TrimSuffix(filepath.Base(m), ".pub")
		pub, err := reg.LoadPublic(keyID)
		if err != nil {
			continue
		}
		out[keyID] = pub
	}
	if len(out) == 0 {
		return nil, lgerrors.New(lgerrors.CodeKeyMissing, "no Ed25519 verification keys found")
	}
	return out, nil
}
