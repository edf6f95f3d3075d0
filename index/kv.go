package index

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// KVBackend is a local append-only JSON-lines emulation of a key-value
// index, standing in for a RocksDB-backed deployment the way the original
// tessrax index backend's JsonKeyValueIndex does for its test environment.
type KVBackend struct {
	path string
	wal  *WAL
}

// NewKVBackend opens a KV-emulation index at path.
func NewKVBackend(path string) *KVBackend {
	return &KVBackend{path: path, wal: NewWAL(path + ".wal.jsonl")}
}

func (b *KVBackend) EnsureSchema() error {
	return os.MkdirAll(filepath.Dir(b.path), 0o755)
}

func (b *KVBackend) load() ([]Entry, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func (b *KVBackend) save(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	var buf strings.Builder
	for _, e := range entries {
		encoded, err := json.Marshal(e)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	return os.WriteFile(b.path, []byte(buf.String()), 0o644)
}

// Append loads every existing row, appends e, and rewrites the file.
func (b *KVBackend) Append(e Entry) error {
	if err := b.wal.Append(e); err != nil {
		return err
	}
	entries, err := b.load()
	if err != nil {
		return err
	}
	entries = append(entries, e)
	if err := b.save(entries); err != nil {
		return err
	}
	_, err = b.wal.Drain()
	return err
}

func (b *KVBackend) Rebuild(entries []Entry) error {
	if err := b.save(entries); err != nil {
		return err
	}
	_, err := b.wal.Drain()
	return err
}

// All returns every stored row in append order.
func (b *KVBackend) All() ([]Entry, error) {
	return b.load()
}

func (b *KVBackend) Close() error { return nil }
