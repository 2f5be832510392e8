package storage

import (
	"bytes"
	"sort"
)

// MemTable buffers writes in memory until the engine flushes them into a
// sorted file. Inserts and lookups are O(1); ordering is paid once, at flush
// time. Last write wins per key.
//
// The memtable is exclusively owned by the engine for the lifetime of one
// flush cycle: created empty at startup or right after a flush, mutated only
// by Set, and cleared atomically with WAL truncation.
type MemTable struct {
	data map[string][]byte
}

// NewMemTable creates an empty memtable.
func NewMemTable() *MemTable {
	return &MemTable{data: make(map[string][]byte)}
}

// Set inserts or overwrites a key-value pair. The value is copied, so the
// caller may reuse its buffer after Set returns.
func (m *MemTable) Set(key, value []byte) {
	m.data[string(key)] = append([]byte(nil), value...)
}

// Get retrieves a value by key.
func (m *MemTable) Get(key []byte) ([]byte, bool) {
	value, ok := m.data[string(key)]
	return value, ok
}

// Delete removes the key entirely. Used only by WAL replay when it
// encounters a tombstone record.
func (m *MemTable) Delete(key []byte) {
	delete(m.data, string(key))
}

// Len returns the number of buffered entries.
func (m *MemTable) Len() int {
	return len(m.data)
}

// Clear discards all entries. Called only after a successful flush.
func (m *MemTable) Clear() {
	m.data = make(map[string][]byte)
}

// SortedRecords returns the buffered entries ascending by key, for flushing
// into a sorted file. O(n log n), idempotent.
func (m *MemTable) SortedRecords() []Record {
	records := make([]Record, 0, len(m.data))
	for key, value := range m.data {
		records = append(records, Record{Key: []byte(key), Value: value})
	}
	sort.Slice(records, func(i, j int) bool {
		return bytes.Compare(records[i].Key, records[j].Key) < 0
	})
	return records
}
