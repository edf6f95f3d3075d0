package keys_test

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"

	"github.com/tessrax/ledger/keys"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLoadActiveBootstrapsExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	r := keys.New(dir, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	id1, priv1, err := r.LoadActive()
	require.NoError(t, err)
	require.Equal(t, "legacy", id1)

	id2, priv2, err := r.LoadActive()
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, priv1, priv2)
}

func TestRotateKeyCrossSignsAgainstPrevious(t *testing.T) {
	dir := t.TempDir()
	r := keys.New(dir, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, _, err := r.LoadActive()
	require.NoError(t, err)

	laterClock := fixedClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	r2 := keys.New(dir, laterClock)
	privPath, pubPath, err := r2.RotateKey("scheduled rotation", "approver-token", "key-2", nil, "", true)
	require.NoError(t, err)
	require.FileExists(t, privPath)
	require.FileExists(t, pubPath)

	activeID, _, err := r2.LoadActive()
	require.NoError(t, err)
	require.Equal(t, "key-2", activeID)

	pub, err := r2.LoadPublic("key-2")
	require.NoError(t, err)
	require.Len(t, pub, ed25519.PublicKeySize)
}

func TestRotateKeyRequiresGovernanceToken(t *testing.T) {
	dir := t.TempDir()
	r := keys.New(dir, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	_, _, err := r.RotateKey("reason", "", "k", nil, "", false)
	require.Error(t, err)
}

func TestRotateKeyDeniedWithoutApprovalWhenApproversConfigured(t *testing.T) {
	dir := t.TempDir()
	r := keys.New(dir, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	_, _, err := r.RotateKey("reason", "not-an-approver", "k", []string{"approver-a", "approver-b"}, "", false)
	require.Error(t, err)
}

func TestRotateKeyDeniedWhenOnlySomeApproversArePresent(t *testing.T) {
	dir := t.TempDir()
	r := keys.New(dir, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	_, _, err := r.RotateKey("reason", "alice", "k", []string{"alice", "bob"}, "", false)
	require.Error(t, err)
}

func TestRotateKeySucceedsWhenAllApproversArePresent(t *testing.T) {
	dir := t.TempDir()
	r := keys.New(dir, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	_, _, err := r.LoadActive()
	require.NoError(t, err)
	later := keys.New(dir, fixedClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
	_, _, err = later.RotateKey("reason", "bob,alice", "k", []string{"alice", "bob"}, "", false)
	require.NoError(t, err)
}

func TestRotateKeyDeniedWhenTokenDoesNotMatchConfiguredToken(t *testing.T) {
	dir := t.TempDir()
	r := keys.New(dir, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	_, _, err := r.LoadActive()
	require.NoError(t, err)
	_, _, err = r.RotateKey("reason", "wrong-token", "k", nil, "configured-secret", false)
	require.Error(t, err)
}

func TestRotateKeySucceedsWhenTokenMatchesConfiguredToken(t *testing.T) {
	dir := t.TempDir()
	r := keys.New(dir, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	_, _, err := r.LoadActive()
	require.NoError(t, err)
	later := keys.New(dir, fixedClock(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
	_, _, err = later.RotateKey("reason", "configured-secret", "k", nil, "configured-secret", false)
	require.NoError(t, err)
}

func TestLoadPublicAcceptsRawBytesEncoding(t *testing.T) {
	dir := t.TempDir()
	r := keys.New(dir, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	_, _, err := r.LoadActive()
	require.NoError(t, err)

	pubPath := filepath.Join(dir, "legacy.pub")
	pubText, err := os.ReadFile(pubPath)
	require.NoError(t, err)
	decoded, err := hex.DecodeString(strings.TrimSpace(string(pubText)))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pubPath, decoded, 0o644))

	pub, err := r.LoadPublic("legacy")
	require.NoError(t, err)
	require.Len(t, pub, ed25519.PublicKeySize)
}
