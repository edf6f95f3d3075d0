// Package receipt orchestrates every other component into the single
// operation the rest of the system exists to support: turning an audited
// state transition into a signed, chained, Merkle-anchored ledger entry.
package receipt

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/ed25519"

	"go.uber.org/zap"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/epoch"
	"github.com/tessrax/ledger/hashing"
	"github.com/tessrax/ledger/index"
	"github.com/tessrax/ledger/keys"
	"github.com/tessrax/ledger/ledgerlog"
	"github.com/tessrax/ledger/lgerrors"
	"github.com/tessrax/ledger/merkle"
	"github.com/tessrax/ledger/token"
)

// AuditorIdentity is stamped into every written receipt.
const AuditorIdentity = "Tessrax Governance Kernel v16"

// CanonicalEventTypes are the only event_type values WriteReceipt accepts.
var CanonicalEventTypes = []string{"STATE_AUDITED", "CONTRADICTION_DETECTED"}

// Receipt is the caller-facing record returned by WriteReceipt, mirroring
// what was persisted to the log; the persisted key_id and auditor fields are
// not carried here.
type Receipt struct {
	EventType              string
	Timestamp              string
	Payload                canon.Value
	PayloadHash            string
	AuditedStateHash       string
	Signature              string
	LedgerOffset           int64
	PreviousEntryHash      string
	EntryHash              string
	MerkleRoot             string
	EpochID                string
	GovernanceFreshnessTag string
}

// Engine wires every component needed to write a receipt.
type Engine struct {
	Keys   *keys.Registry
	Tokens *token.Guard
	Merkle *merkle.Accumulator
	Epoch  *epoch.Manager
	Log    *ledgerlog.Writer
	Index  index.Backend
	Clock  func() time.Time
	Logger *zap.Logger
}

func isCanonicalEventType(eventType string) bool {
	for _, t := range CanonicalEventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// WriteReceipt executes the full write path: validate inputs, snapshot the
// payload, validate the governance token, sign the event body, chain it to
// the previous entry, fold it into the Merkle accumulator, assign an epoch,
// append to the log, mirror into the index, and commit the accumulator —
// in that order, so the log is always ahead of (or equal to) everything
// derived from it.
func (e *Engine) WriteReceipt(ctx context.Context, eventType string, payload map[string]any, auditedStateHash string) (*Receipt, error) {
	if strings.TrimSpace(eventType) == "" || !isCanonicalEventType(eventType) {
		return nil, lgerrors.New(lgerrors.CodeInvalidEventType, "event_type must be one of the canonical event types").
			WithDetail("event_type", eventType)
	}
	if !canon.IsHexHash(auditedStateHash) {
		return nil, lgerrors.New(lgerrors.CodeInvalidStateHash, "audited_state_hash must be a 32- or 64-character lowercase hex digest").
			WithDetail("audited_state_hash", auditedStateHash)
	}

	clock := e.Clock
	if clock == nil {
		clock = time.Now
	}
	timestamp := canon.FormatTimestamp(clock())

	normalizedPayload, err := canon.Normalize(payload)
	if err != nil {
		return nil, lgerrors.Wrap(lgerrors.CodeInvalidPayload, "payload failed canonical normalization", err)
	}
	payloadHasher := hashing.New()
	if err := payloadHasher.UpdatePayload(normalizedPayload); err != nil {
		return nil, err
	}
	payloadHash := payloadHasher.Digest().Digest

	freshnessTag, err := e.Tokens.Validate(governanceTokenFromContext(ctx), e.Merkle.State.EntryCount)
	if err != nil {
		return nil, err
	}

	keyID, priv, err := e.Keys.LoadActive()
	if err != nil {
		return nil, err
	}

	canonicalEvent := map[string]any{
		"event_type":          eventType,
		"timestamp":           timestamp,
		"payload":             normalizedPayload,
		"payload_hash":        payloadHash,
		"audited_state_hash":  auditedStateHash,
		"auditor":             AuditorIdentity,
		"key_id":              keyID,
	}
	canonicalValue, err := canon.Normalize(canonicalEvent)
	if err != nil {
		return nil, err
	}
	canonicalBytes, err := canon.JSON(canonicalValue)
	if err != nil {
		return nil, err
	}
	signature := hex.EncodeToString(ed25519.Sign(priv, canonicalBytes))

	var previousEntryHash any
	if e.Merkle.State.LastLeafHash != "" {
		previousEntryHash = e.Merkle.State.LastLeafHash
	}
	ledgerBody := map[string]any{
		"event_type":               eventType,
		"timestamp":                timestamp,
		"payload":                  normalizedPayload,
		"payload_hash":             payloadHash,
		"audited_state_hash":       auditedStateHash,
		"auditor":                  AuditorIdentity,
		"key_id":                   keyID,
		"signature":                signature,
		"previous_entry_hash":      previousEntryHash,
		"governance_freshness_tag": freshnessTag,
	}
	bodyValue, err := canon.Normalize(ledgerBody)
	if err != nil {
		return nil, err
	}
	bodyBytes, err := canon.JSON(bodyValue)
	if err != nil {
		return nil, err
	}
	entryHasher := hashing.New()
	entryHasher.Write(bodyBytes)
	entryHash := entryHasher.Digest().Digest

	update, err := e.Merkle.PrepareUpdate(entryHash)
	if err != nil {
		return nil, err
	}

	epochID, err := e.Epoch.RecordEntry(entryHash, timestamp, update.NewState)
	if err != nil {
		return nil, err
	}

	ledgerEntry := map[string]any{
		"event_type":               eventType,
		"timestamp":                timestamp,
		"payload":                  normalizedPayload,
		"payload_hash":             payloadHash,
		"audited_state_hash":       auditedStateHash,
		"auditor":                  AuditorIdentity,
		"key_id":                   keyID,
		"signature":                signature,
		"previous_entry_hash":      previousEntryHash,
		"governance_freshness_tag": freshnessTag,
		"entry_hash":               entryHash,
		"merkle_root":              update.NewRoot,
		"epoch_id":                 epochID,
	}
	entryValue, err := canon.Normalize(ledgerEntry)
	if err != nil {
		return nil, err
	}
	entryBytes, err := canon.JSON(entryValue)
	if err != nil {
		return nil, err
	}

	offset, err := e.Log.Append(ctx, entryBytes)
	if err != nil {
		return nil, err
	}

	if err := e.Index.Append(index.Entry{
		LedgerOffset:      offset,
		EventType:         eventType,
		StateHash:         auditedStateHash,
		PayloadHash:       payloadHash,
		Timestamp:         timestamp,
		MerkleRoot:        update.NewRoot,
		EntryHash:         entryHash,
		PreviousEntryHash: e.Merkle.State.LastLeafHash,
	}); err != nil {
		if e.Logger != nil {
			e.Logger.Warn("index append failed; ledger remains source of truth",
				zap.Int64("offset", offset), zap.String("entry_hash", entryHash), zap.Error(err))
		}
	}

	if _, err := e.Merkle.Commit(update); err != nil {
		return nil, err
	}

	return &Receipt{
		EventType:              eventType,
		Timestamp:              timestamp,
		Payload:                normalizedPayload,
		PayloadHash:            payloadHash,
		AuditedStateHash:       auditedStateHash,
		Signature:              signature,
		LedgerOffset:           offset,
		PreviousEntryHash:      update.PreviousLeafHash,
		EntryHash:              entryHash,
		MerkleRoot:             update.NewRoot,
		EpochID:                epochID,
		GovernanceFreshnessTag: freshnessTag,
	}, nil
}

type governanceTokenKey struct{}

// WithGovernanceToken attaches the governance approval token to ctx for the
// duration of a WriteReceipt call.
func WithGovernanceToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, governanceTokenKey{}, token)
}

func governanceTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(governanceTokenKey{}).(string)
	return token
}
