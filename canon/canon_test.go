package canon_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessrax/ledger/canon"
)

func TestJSONSortsKeysRegardlessOfInputOrder(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": 3}
	b := map[string]any{"c": 3, "a": 2, "b": 1}

	va, err := canon.Normalize(a)
	require.NoError(t, err)
	vb, err := canon.Normalize(b)
	require.NoError(t, err)

	ja, err := canon.JSON(va)
	require.NoError(t, err)
	jb, err := canon.JSON(vb)
	require.NoError(t, err)

	require.Equal(t, string(ja), string(jb))
	require.Equal(t, `{"a":2,"b":1,"c":3}`, string(ja))
}

func TestNegativeZeroFoldsToZero(t *testing.T) {
	v1, err := canon.Normalize(map[string]any{"x": -0.0})
	require.NoError(t, err)
	v2, err := canon.Normalize(map[string]any{"x": 0.0})
	require.NoError(t, err)

	j1, _ := canon.JSON(v1)
	j2, _ := canon.JSON(v2)
	require.Equal(t, string(j1), string(j2))
}

func TestNonFiniteFloatRejected(t *testing.T) {
	_, err := canon.Normalize(map[string]any{"x": 1.0 / func() float64 { return 0 }()})
	require.Error(t, err)
}

func TestSnapshotIsImmutableAgainstSourceMutation(t *testing.T) {
	src := map[string]any{"list": []any{1, 2, 3}}
	frozen, err := canon.Snapshot(src)
	require.NoError(t, err)
	before, err := canon.JSON(frozen)
	require.NoError(t, err)

	// Mutate the source map after snapshotting.
	src["list"].([]any)[0] = 999
	src["new_key"] = "leaked"

	after, err := canon.JSON(frozen)
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
}

func TestNestedMapsAndListsNormalizeRecursively(t *testing.T) {
	v, err := canon.Normalize(map[string]any{
		"outer": map[string]any{"z": 1, "a": []any{3, 2, 1}},
	})
	require.NoError(t, err)
	encoded, err := canon.JSON(v)
	require.NoError(t, err)
	require.Equal(t, `{"outer":{"a":[3,2,1],"z":1}}`, string(encoded))
}

func TestIsHexHashAcceptsMD5AndSHA256Lengths(t *testing.T) {
	require.True(t, canon.IsHexHash("d41d8cd98f00b204e9800998ecf8427e"))
	require.True(t, canon.IsHexHash("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"))
	require.False(t, canon.IsHexHash("deadbeef"))
	require.False(t, canon.IsHexHash("D41D8CD98F00B204E9800998ECF8427E"))
	require.False(t, canon.IsHexHash(""))
}

func TestInvalidKeyRejected(t *testing.T) {
	_, err := canon.Normalize(map[float64]any{1.5: "x"})
	require.Error(t, err)
}
