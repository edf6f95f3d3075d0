package ledgerlog_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessrax/ledger/ledgerlog"
)

func TestAppendReturnsPreWriteOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	w := ledgerlog.New(path)

	off1, err := w.Append(context.Background(), []byte(`{"a":1}`))
	require.NoError(t, err)
	require.Equal(t, int64(0), off1)

	off2, err := w.Append(context.Background(), []byte(`{"b":2}`))
	require.NoError(t, err)
	require.Equal(t, int64(len(`{"a":1}`)+1), off2)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)
}

func TestAppendIsSafeUnderConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	w := ledgerlog.New(path)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := w.Append(context.Background(), []byte(fmt.Sprintf(`{"i":%d}`, i)))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, n)
}
