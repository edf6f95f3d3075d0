// Package keys manages the Ed25519 signing authority backing every ledger
// receipt: key generation, governed rotation with cross-signatures over the
// outgoing and incoming keys, and lazy bootstrap of the first active key.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ed25519"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/lgerrors"
)

// AuditorIdentity is stamped into governance-approval metadata.
const AuditorIdentity = "Tessrax Governance Kernel v16"

// DefaultPolicy mirrors the rotation policy defaults carried by the source
// registry this package reimplements.
var DefaultPolicy = Policy{
	MinHoursBetweenRotations: 1.0,
	MaxActiveAgeHours:        720.0,
	DeprecationWindowHours:   720.0,
}

type Policy struct {
	MinHoursBetweenRotations float64 `json:"min_hours_between_rotations"`
	MaxActiveAgeHours        float64 `json:"max_active_age_hours"`
	DeprecationWindowHours   float64 `json:"deprecation_window_hours"`
}

type deprecationWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type crossSignature struct {
	Payload          map[string]any `json:"payload"`
	SignedByPrevious string         `json:"signed_by_previous"`
	SignedByNew      string         `json:"signed_by_new"`
}

type governanceApproval struct {
	Approver    string `json:"approver"`
	TokenDigest string `json:"token_digest"`
	IssuedAt    string `json:"issued_at"`
}

type keyRecord struct {
	Status             string             `json:"status"`
	CreatedAt          string             `json:"created_at"`
	ActivatedAt        string             `json:"activated_at"`
	LastActive         string             `json:"last_active,omitempty"`
	PolicySnapshot     Policy             `json:"policy_snapshot"`
	DeprecationWindow  deprecationWindow  `json:"deprecation_window"`
	CrossSignature     *crossSignature    `json:"cross_signature"`
	GovernanceApproval governanceApproval `json:"governance_approval"`
	Reason             string             `json:"reason"`
}

type schedule struct {
	LastRotation    string `json:"last_rotation"`
	NextRotationDue string `json:"next_rotation_due"`
}

type rotationState struct {
	Policy    Policy               `json:"policy"`
	Schedule  schedule             `json:"schedule"`
	ActiveKey string               `json:"active_key"`
	Keys      map[string]*keyRecord `json:"keys"`
}

func freshState() rotationState {
	return rotationState{Policy: DefaultPolicy, Keys: map[string]*keyRecord{}}
}

// Registry manages signing material under a single directory, the way the
// source key_registry.py module manages tessrax/infra/signing_keys.
type Registry struct {
	dir   string
	clock func() time.Time
}

// New returns a Registry rooted at dir (SIGNING_KEYS_DIR).
func New(dir string, clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{dir: dir, clock: clock}
}

func (r *Registry) statePath() string  { return filepath.Join(r.dir, "rotation_state.json") }
func (r *Registry) activePath() string { return filepath.Join(r.dir, "active_key.json") }
func (r *Registry) privPath(keyID string) string { return filepath.Join(r.dir, keyID+".pem") }
func (r *Registry) pubPath(keyID string) string  { return filepath.Join(r.dir, keyID+".pub") }

func (r *Registry) readState() (rotationState, error) {
	raw, err := os.ReadFile(r.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return freshState(), nil
		}
		return rotationState{}, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return freshState(), nil
	}
	var st rotationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return rotationState{}, lgerrors.Wrap(lgerrors.CodeIOFailure, "rotation state is corrupt", err)
	}
	if st.Keys == nil {
		st.Keys = map[string]*keyRecord{}
	}
	return st, nil
}

func (r *Registry) saveState(st rotationState) error {
	encoded, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(r.statePath(), append(encoded, '\n'))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func ts(t time.Time) string { return canon.FormatTimestamp(t) }

// RotateKey generates a fresh Ed25519 key, cross-signs it against whatever
// key is currently active, promotes it, and persists rotation state and key
// material. Unless force is set: if configuredToken is non-empty,
// governanceToken must equal it exactly; and governanceToken (split on
// commas) must contain every entry of requiredApprovers.
func (r *Registry) RotateKey(reason, governanceToken string, newKeyID string, requiredApprovers []string, configuredToken string, force bool) (privPath, pubPath string, err error) {
	if strings.TrimSpace(reason) == "" {
		return "", "", lgerrors.New(lgerrors.CodeInvalidValue, "rotation reason must be non-empty")
	}
	if governanceToken == "" {
		return "", "", lgerrors.New(lgerrors.CodeTokenMissing, "governance token is required for rotation")
	}

	st, err := r.readState()
	if err != nil {
		return "", "", err
	}

	if !force && configuredToken != "" && governanceToken != configuredToken {
		return "", "", lgerrors.New(lgerrors.CodeGovernanceApprovalMissing, "governance token does not match the configured rotation token")
	}

	if !force && len(requiredApprovers) > 0 {
		supplied := splitApprovers(governanceToken)
		for _, approver := range requiredApprovers {
			if !contains(supplied, approver) {
				return "", "", lgerrors.New(lgerrors.CodeGovernanceApprovalMissing, "governance token is missing a required approver").
					WithDetail("missing_approver", approver)
			}
		}
	}

	previousKeyID := st.ActiveKey
	keyID := newKeyID
	if keyID == "" {
		keyID = "key-" + uuid.NewString()
	}
	if _, exists := st.Keys[keyID]; exists && !force {
		return "", "", lgerrors.New(lgerrors.CodeKeyRotationDenied, "key already exists; force required to overwrite").
			WithDetail("key_id", keyID)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", lgerrors.Wrap(lgerrors.CodeIOFailure, "failed to generate signing key", err)
	}

	return r.promote(&st, keyID, pub, priv, reason, governanceToken, previousKeyID, force)
}

func (r *Registry) promote(st *rotationState, keyID string, pub ed25519.PublicKey, priv ed25519.PrivateKey, reason, governanceToken, previousKeyID string, force bool) (string, string, error) {
	now := r.clock()
	policy := st.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy
	}

	if st.Schedule.LastRotation != "" && !force {
		lastDt, err := canon.ParseTimestamp(st.Schedule.LastRotation)
		if err == nil {
			minimum := time.Duration(policy.MinHoursBetweenRotations * float64(time.Hour))
			if now.Sub(lastDt) < minimum {
				return "", "", lgerrors.New(lgerrors.CodeRotationTooSoon, "rotation requested before minimum interval elapsed").
					WithDetail("last_rotation", st.Schedule.LastRotation)
			}
		}
	}

	maxAge := time.Duration(policy.MaxActiveAgeHours * float64(time.Hour))
	st.Schedule.LastRotation = ts(now)
	st.Schedule.NextRotationDue = ts(now.Add(maxAge))

	var cross *crossSignature
	if previousKeyID != "" {
		prevPath := r.privPath(previousKeyID)
		prevRaw, err := os.ReadFile(prevPath)
		if err != nil {
			return "", "", lgerrors.Wrap(lgerrors.CodeKeyMissing, "previous key material missing", err).
				WithDetail("key_id", previousKeyID)
		}
		prevSeed, err := hex.DecodeString(strings.TrimSpace(string(prevRaw)))
		if err != nil || len(prevSeed) != ed25519.SeedSize {
			return "", "", lgerrors.New(lgerrors.CodeKeyMissing, "previous signing key is not valid hex").
				WithDetail("key_id", previousKeyID)
		}
		prevPriv := ed25519.NewKeyFromSeed(prevSeed)

		payload := map[string]any{
			"event":          "KEY_ROTATION",
			"previous_key_id": previousKeyID,
			"new_key_id":     keyID,
			"timestamp":      ts(now),
			"reason":         reason,
			"auditor":        AuditorIdentity,
		}
		v, err := canon.Normalize(payload)
		if err != nil {
			return "", "", err
		}
		canonical, err := canon.JSON(v)
		if err != nil {
			return "", "", err
		}

		cross = &crossSignature{
			Payload:          payload,
			SignedByPrevious: hex.EncodeToString(ed25519.Sign(prevPriv, canonical)),
			SignedByNew:      hex.EncodeToString(ed25519.Sign(priv, canonical)),
		}

		prevRec := st.Keys[previousKeyID]
		if prevRec == nil {
			prevRec = &keyRecord{}
			st.Keys[previousKeyID] = prevRec
		}
		prevRec.Status = "legacy"
		prevRec.LastActive = ts(now)
		prevRec.DeprecationWindow = deprecationWindow{
			Start: ts(now),
			End:   ts(now.Add(time.Duration(policy.DeprecationWindowHours * float64(time.Hour)))),
		}
	}

	privPath, pubPath, err := persistMaterial(r.dir, keyID, pub, priv)
	if err != nil {
		return "", "", err
	}

	approver := strings.TrimSpace(governanceToken)
	if approver == "" {
		approver = AuditorIdentity
	}
	st.Keys[keyID] = &keyRecord{
		Status:         "active",
		CreatedAt:      ts(now),
		ActivatedAt:    ts(now),
		PolicySnapshot: policy,
		DeprecationWindow: deprecationWindow{
			Start: ts(now),
			End:   ts(now.Add(time.Duration(policy.DeprecationWindowHours * float64(time.Hour)))),
		},
		CrossSignature: cross,
		GovernanceApproval: governanceApproval{
			Approver:    AuditorIdentity,
			TokenDigest: hashToken(governanceToken),
			IssuedAt:    ts(now),
		},
		Reason: reason,
	}
	st.ActiveKey = keyID

	if err := r.writeActivePointer(keyID, now); err != nil {
		return "", "", err
	}
	if err := r.saveState(*st); err != nil {
		return "", "", err
	}
	return privPath, pubPath, nil
}

func (r *Registry) writeActivePointer(keyID string, now time.Time) error {
	payload := map[string]string{"key_id": keyID, "updated_at": ts(now)}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(r.activePath(), append(encoded, '\n'))
}

func persistMaterial(dir, keyID string, pub ed25519.PublicKey, priv ed25519.PrivateKey) (privPath, pubPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	privPath = filepath.Join(dir, keyID+".pem")
	pubPath = filepath.Join(dir, keyID+".pub")

	seed := priv.Seed()
	if err := atomicWriteMode(privPath, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		return "", "", err
	}
	if err := atomicWriteMode(pubPath, []byte(hex.EncodeToString(pub)+"\n"), 0o644); err != nil {
		return "", "", err
	}
	return privPath, pubPath, nil
}

// LoadActive returns the currently active key, bootstrapping a fresh one
// under reason "bootstrap" exactly once if no key has ever been promoted.
func (r *Registry) LoadActive() (keyID string, priv ed25519.PrivateKey, err error) {
	st, err := r.readState()
	if err != nil {
		return "", nil, err
	}
	if st.ActiveKey == "" {
		pub, generated, genErr := ed25519.GenerateKey(rand.Reader)
		if genErr != nil {
			return "", nil, lgerrors.Wrap(lgerrors.CodeIOFailure, "failed to generate bootstrap key", genErr)
		}
		_, _, err = r.promote(&st, "legacy", pub, generated, "bootstrap", "bootstrap", "", true)
		if err != nil {
			return "", nil, err
		}
		return "legacy", generated, nil
	}

	raw, err := os.ReadFile(r.privPath(st.ActiveKey))
	if err != nil {
		return "", nil, lgerrors.Wrap(lgerrors.CodeKeyMissing, "active key material missing", err).
			WithDetail("key_id", st.ActiveKey)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return "", nil, lgerrors.New(lgerrors.CodeKeyMissing, "stored key material must be a 32-byte hex seed").
			WithDetail("key_id", st.ActiveKey)
	}
	return st.ActiveKey, ed25519.NewKeyFromSeed(seed), nil
}

// LoadPublic returns the verify key for keyID, tolerating both raw-byte and
// hex-text encodings of the .pub file.
func (r *Registry) LoadPublic(keyID string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(r.pubPath(keyID))
	if err != nil {
		return nil, lgerrors.Wrap(lgerrors.CodeKeyMissing, "public key material missing", err).
			WithDetail("key_id", keyID)
	}
	text := strings.TrimSpace(string(raw))
	if decoded, err := hex.DecodeString(text); err == nil && len(decoded) == ed25519.PublicKeySize {
		return ed25519.PublicKey(decoded), nil
	}
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	return nil, lgerrors.New(lgerrors.CodeKeyMissing, "public key material is neither raw bytes nor hex text").
		WithDetail("key_id", keyID)
}

func contains(list []string, needle string) bool {
	for _, v := range list {
		if strings.TrimSpace(v) == needle {
			return true
		}
	}
	return false
}

// splitApprovers turns a comma-joined governance token ("alice,bob") into
// the set of individual approver tokens it asserts, so RotateKey can check
// that every entry in requiredApprovers was actually supplied.
func splitApprovers(governanceToken string) []string {
	parts := strings.Split(governanceToken, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func atomicWrite(path string, data []byte) error {
	return atomicWriteMode(path, data, 0o644)
}

func atomicWriteMode(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := os.Chmod(tmpPath, mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
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
