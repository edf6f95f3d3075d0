// Package repair holds the offline maintenance tools that operate on a
// ledger that verify has already found (or is suspected to be) diverged:
// replay, divergence analysis, snapshot export/restore, compaction,
// sharding, and the diagnostic harnesses used to exercise all of the
// above under load.
package repair

import (
	"bufio"
	"encoding/json"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/tessrax/ledger/lgerrors"
	"github.com/tessrax/ledger/merkle"
	"github.com/tessrax/ledger/verify"
)

// ParallelReplayRoot recomputes the Merkle root of a ledger file from
// scratch: entry hashes are recomputed concurrently across a worker pool
// sized to the host, since each recomputation is independent, and then
// folded into the accumulator strictly in ledger order, since folding is
// not commutative. It never hashes the already-written entry_hash,
// merkle_root, or epoch_id fields together with the rest of the entry —
// doing so would make the digest depend on itself.
func ParallelReplayRoot(ledgerPath string) (string, error) {
	lines, err := readLedgerLines(ledgerPath)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return merkle.Empty().Root(), nil
	}

	hashes := make([]string, len(lines))
	errs := make([]error, len(lines))

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	if workers > len(lines) {
		workers = len(lines)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				var entry map[string]any
				if err := json.Unmarshal([]byte(lines[i]), &entry); err != nil {
					errs[i] = lgerrors.Wrap(lgerrors.CodeInvalidPayload, "corrupted ledger line", err)
					continue
				}
				h, err := verify.ComputeEntryHash(entry)
				if err != nil {
					errs[i] = err
					continue
				}
				hashes[i] = h
			}
		}()
	}
	for i := range lines {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	state := merkle.Empty()
	for i, h := range hashes {
		if errs[i] != nil {
			return "", errs[i]
		}
		var err error
		state, err = state.ApplyLeaf(h)
		if err != nil {
			return "", err
		}
	}
	return state.Root(), nil
}

func readLedgerLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
