package token_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessrax/ledger/token"
)

func TestValidateRejectsMissingToken(t *testing.T) {
	g := token.New(filepath.Join(t.TempDir(), "token_state.json"), 0, nil)
	_, err := g.Validate("", 1)
	require.Error(t, err)
}

func TestValidateRejectsReplayOnSameCounter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	g := token.New(filepath.Join(t.TempDir(), "token_state.json"), time.Minute, clock)

	tag1, err := g.Validate("secret", 5)
	require.NoError(t, err)
	require.Contains(t, tag1, ":5")

	_, err = g.Validate("secret", 5)
	require.Error(t, err)
}

func TestValidateAdvancesOnNewCounter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	g := token.New(filepath.Join(t.TempDir(), "token_state.json"), time.Minute, clock)

	_, err := g.Validate("secret", 1)
	require.NoError(t, err)
	tag2, err := g.Validate("secret", 2)
	require.NoError(t, err)
	require.Contains(t, tag2, ":2")
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := start
	clock := func() time.Time { return current }
	g := token.New(filepath.Join(t.TempDir(), "token_state.json"), 30*time.Second, clock)

	_, err := g.Validate("secret", 1)
	require.NoError(t, err)

	current = start.Add(time.Minute)
	_, err = g.Validate("secret", 2)
	require.Error(t, err)
}
