// Package canon implements Tessrax's deterministic canonical serialization:
// normalize arbitrary nested payloads into an immutable tagged-variant tree,
// then render byte-exact sorted-key compact JSON from it. Every ledger
// component hashes and signs over this representation, never over
// ad-hoc encoding/json output, so that two processes on two machines always
// agree on the bytes for the same logical payload.
package canon

import (
	"sort"
	"time"
)

// Value is the canonical tagged-variant representation: Null | Bool | Int |
// Float | String | Timestamp | List | Map. Once built by Normalize, a Value
// tree is immutable — nothing in this package exposes a way to mutate one
// in place.
type Value interface {
	canonValue()
}

type Null struct{}

func (Null) canonValue() {}

type Bool bool

func (Bool) canonValue() {}

type Int int64

func (Int) canonValue() {}

// Float is a finite, NaN/Inf-rejecting float64 that has already been
// through decimal round-trip normalization.
type Float float64

func (Float) canonValue() {}

type String string

func (String) canonValue() {}

// Timestamp is always stored normalized to UTC with microsecond precision.
type Timestamp time.Time

func (Timestamp) canonValue() {}

// List preserves insertion order; only maps are key-sorted.
type List []Value

func (List) canonValue() {}

// entry is a single sorted key/value pair inside a Map.
type entry struct {
	Key   string
	Value Value
}

// Map is an insertion-order-independent, key-sorted structure: two Maps
// built from the same logical key/value set always iterate identically.
type Map struct {
	entries []entry
}

func (Map) canonValue() {}

// NewMap builds a Map from a plain Go map, sorting keys lexicographically.
func NewMap(fields map[string]Value) Map {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m := Map{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		m.entries = append(m.entries, entry{Key: k, Value: fields[k]})
	}
	return m
}

// Get returns the value for key and whether it was present.
func (m Map) Get(key string) (Value, bool) {
	for _, e := range m.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns the sorted key list.
func (m Map) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Len reports the number of entries.
func (m Map) Len() int { return len(m.entries) }

// Range calls fn for every entry in sorted key order.
func (m Map) Range(fn func(key string, v Value)) {
	for _, e := range m.entries {
		fn(e.Key, e.Value)
	}
}
