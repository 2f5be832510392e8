// Package storage implements a single-node Log-Structured Merge (LSM)
// key-value storage engine.
//
// Writes are buffered in an in-memory memtable after being made durable in a
// write-ahead log, then flushed into immutable sorted files on disk. Each
// sorted file carries a sparse offset index and a bloom filter so point
// lookups touch at most a handful of lines.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────────────┐
//	│  Write Path:  Set → WAL → MemTable → (at capacity) → SSTable   │
//	│  Read Path:   Get → MemTable → SSTables newest → oldest        │
//	│  Recovery:    Open → WAL replay → MemTable; scan data dir      │
//	└────────────────────────────────────────────────────────────────┘
//
// Key components:
//   - WAL: append-only durable record stream with checksum-verified replay
//   - MemTable: bounded in-memory buffer, sorted once at flush time
//   - SSTable writer/reader: tab-separated sorted lines, sparse index,
//     embedded bloom filter
//   - Engine: sequences the components and owns the open/close lifecycle
//
// The engine is synchronous and single-owner: no background goroutines, no
// internal locking. Callers needing concurrency must serialize access.
package storage
