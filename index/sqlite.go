package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/tessrax/ledger/lgerrors"
)

// SQLiteBackend mirrors the ledger into a SQLite table using the cgo-free
// modernc.org/sqlite driver.
type SQLiteBackend struct {
	path string
	wal  *WAL
	db   *sql.DB
}

// NewSQLiteBackend opens (creating if needed) a SQLite-backed index at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, lgerrors.Wrap(lgerrors.CodeIndexSchemaError, "failed to open sqlite index", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteBackend{
		path: path,
		wal:  NewWAL(path + ".wal.jsonl"),
		db:   db,
	}, nil
}

func (b *SQLiteBackend) EnsureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_index (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ledger_offset INTEGER NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			state_hash TEXT NOT NULL,
			payload_hash TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			merkle_root TEXT,
			entry_hash TEXT,
			previous_entry_hash TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_state_hash ON ledger_index(state_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_timestamp ON ledger_index(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_entry_hash ON ledger_index(entry_hash)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return lgerrors.Wrap(lgerrors.CodeIndexSchemaError, "failed to apply index schema", err)
		}
	}
	return nil
}

func (b *SQLiteBackend) insert(e Entry) error {
	_, err := b.db.Exec(
		`INSERT OR REPLACE INTO ledger_index (
			ledger_offset, event_type, state_hash, payload_hash,
			timestamp, merkle_root, entry_hash, previous_entry_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.LedgerOffset, e.EventType, e.StateHash, e.PayloadHash,
		e.Timestamp, e.MerkleRoot, e.EntryHash, e.PreviousEntryHash,
	)
	return err
}

// Append writes to the WAL first, then the table, then drains the WAL.
func (b *SQLiteBackend) Append(e Entry) error {
	if err := b.wal.Append(e); err != nil {
		return err
	}
	if err := b.insert(e); err != nil {
		return lgerrors.Wrap(lgerrors.CodeIndexMismatch, "failed to insert index row", err)
	}
	_, err := b.wal.Drain()
	return err
}

// Rebuild drops and recreates the table, then reinserts entries in order.
func (b *SQLiteBackend) Rebuild(entries []Entry) error {
	if _, err := b.db.Exec("DROP TABLE IF EXISTS ledger_index"); err != nil {
		return err
	}
	if err := b.EnsureSchema(); err != nil {
		return err
	}
	for _, e := range entries {
		if err := b.insert(e); err != nil {
			return fmt.Errorf("index: rebuild failed at offset %d: %w", e.LedgerOffset, err)
		}
	}
	_, err := b.wal.Drain()
	return err
}

// All returns every row ordered by ledger_offset ascending.
func (b *SQLiteBackend) All() ([]Entry, error) {
	rows, err := b.db.Query(
		`SELECT ledger_offset, event_type, state_hash, payload_hash,
			timestamp, merkle_root, entry_hash, previous_entry_hash
		 FROM ledger_index ORDER BY ledger_offset ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var prev sql.NullString
		if err := rows.Scan(&e.LedgerOffset, &e.EventType, &e.StateHash, &e.PayloadHash,
			&e.Timestamp, &e.MerkleRoot, &e.EntryHash, &prev); err != nil {
			return nil, err
		}
		e.PreviousEntryHash = prev.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }
