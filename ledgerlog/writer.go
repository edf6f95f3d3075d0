// Package ledgerlog appends canonical JSON lines to the ledger's append-only
// log file under an advisory exclusive lock, so concurrent writers never
// interleave partial lines.
package ledgerlog

import (
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/tessrax/ledger/lgerrors"
)

const (
	initialDelay = 10 * time.Millisecond
	maxDelay     = 500 * time.Millisecond
	maxAttempts  = 10
)

// Writer appends lines to Path under an exclusive advisory lock.
type Writer struct {
	Path string
}

// New returns a Writer appending to path, creating parent directories on
// first use.
func New(path string) *Writer {
	return &Writer{Path: path}
}

// Append acquires an exclusive lock on Path with jittered exponential
// backoff, writes line+"\n" at the current end of file, fsyncs, and returns
// the byte offset the line was written at.
func (w *Writer) Append(ctx context.Context, line []byte) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return 0, err
	}

	lock := flock.New(w.Path + ".lock")
	if err := w.acquire(ctx, lock); err != nil {
		return 0, err
	}
	defer lock.Unlock()

	f, err := os.OpenFile(w.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}

	payload := append(append([]byte{}, line...), '\n')
	if _, err := f.Write(payload); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return offset, nil
}

func (w *Writer) acquire(ctx context.Context, lock *flock.Flock) error {
	delay := initialDelay
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ok, err := lock.TryLockContext(ctx, time.Millisecond)
		if err != nil {
			return lgerrors.Wrap(lgerrors.CodeLockTimeout, "failed to acquire ledger lock", err)
		}
		if ok {
			return nil
		}
		jitter := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return lgerrors.Wrap(lgerrors.CodeLockTimeout, "ledger lock wait canceled", ctx.Err())
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return lgerrors.New(lgerrors.CodeLockTimeout, "unable to obtain ledger lock within backoff window")
}
