package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lsmkv/internal/metrics"
)

const (
	walDirName  = "wal"
	dataDirName = "data"
	walFileName = "wal.log"
)

// EngineConfig configures the storage engine.
type EngineConfig struct {
	// Dir is the storage directory; the engine creates wal/ and data/
	// subdirectories inside it.
	Dir string
	// MemtableCapacity is the entry count that triggers a flush.
	MemtableCapacity int
	// Sparsity is the sorted-file index density: one checkpoint per
	// Sparsity entries. Trades index size against read-scan length.
	Sparsity int
	// BloomErrorRate is the per-file bloom filter false-positive rate.
	BloomErrorRate float64
	// Logger receives recovery and flush events. Optional.
	Logger *zap.Logger
	// Metrics receives operation counts. Optional.
	Metrics *metrics.Registry
}

// DefaultEngineConfig returns the stock configuration.
func DefaultEngineConfig(dir string) EngineConfig {
	return EngineConfig{
		Dir:              dir,
		MemtableCapacity: 50,
		Sparsity:         10,
		BloomErrorRate:   0.01,
	}
}

func (c EngineConfig) validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: storage directory must not be empty", ErrInvalidConfig)
	}
	if c.MemtableCapacity < 1 {
		return fmt.Errorf("%w: memtable capacity %d", ErrInvalidConfig, c.MemtableCapacity)
	}
	if c.Sparsity < 1 {
		return fmt.Errorf("%w: sparsity %d", ErrInvalidConfig, c.Sparsity)
	}
	if c.BloomErrorRate <= 0 || c.BloomErrorRate >= 1 {
		return fmt.Errorf("%w: bloom error rate %v", ErrInvalidConfig, c.BloomErrorRate)
	}
	return nil
}

// Engine orchestrates the WAL, the memtable and the sorted files.
//
// Write path: Set → WAL append → memtable → inline flush at capacity.
// Read path: memtable, then sorted files newest to oldest.
//
// The engine assumes a single exclusive owner: it performs no internal
// locking and runs every operation to completion on the caller. Close must
// be called before another engine opens the same directory.
type Engine struct {
	config   EngineConfig
	logger   *zap.Logger
	metrics  *metrics.Registry
	dataDir  string
	wal      *WAL
	memtable *MemTable
	// readers is ordered by file creation time, oldest first; lookups walk
	// it in reverse so the newest file wins.
	readers   []*SSTableReader
	lastStamp int64
	closed    bool
}

// EngineStats is a read-only snapshot for introspection.
type EngineStats struct {
	MemtableEntries int
	// SSTableFiles lists the known data file paths, oldest first.
	SSTableFiles []string
}

// Open creates or opens an engine at config.Dir: it opens the WAL, replays
// it into a fresh memtable, then loads every existing sorted-file pair in
// creation order.
func Open(config EngineConfig) (*Engine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	walDir := filepath.Join(config.Dir, walDirName)
	dataDir := filepath.Join(config.Dir, dataDirName)
	for _, dir := range []string{walDir, dataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	wal, err := OpenWAL(filepath.Join(walDir, walFileName), logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:   config,
		logger:   logger,
		metrics:  config.Metrics,
		dataDir:  dataDir,
		wal:      wal,
		memtable: NewMemTable(),
	}

	if err := e.recover(); err != nil {
		wal.Close()
		return nil, err
	}
	if err := e.loadSSTables(); err != nil {
		wal.Close()
		return nil, err
	}

	e.metrics.SetMemtableEntries(e.memtable.Len())
	e.metrics.SetSSTableFiles(len(e.readers))
	return e, nil
}

// recover replays the WAL into the memtable. A replayed record with a value
// is a set; a tombstone is a delete.
func (e *Engine) recover() error {
	records, err := e.wal.Replay()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Tombstone {
			e.memtable.Delete(rec.Key)
		} else {
			e.memtable.Set(rec.Key, rec.Value)
		}
	}
	if len(records) > 0 {
		e.metrics.RecordReplay(len(records))
		e.logger.Info("recovered entries from write-ahead log",
			zap.Int("records", len(records)),
			zap.Int("memtable_entries", e.memtable.Len()))
	}
	return nil
}

// loadSSTables scans the data directory for sorted-file pairs and opens a
// reader for each, ordered by the timestamp embedded in the file name.
// Data files without an index counterpart are skipped.
func (e *Engine) loadSSTables() error {
	dataPaths, err := filepath.Glob(filepath.Join(e.dataDir, "*.sst"))
	if err != nil {
		return fmt.Errorf("scan data directory: %w", err)
	}

	type pair struct {
		stamp     int64
		dataPath  string
		indexPath string
	}
	var pairs []pair

	for _, dataPath := range dataPaths {
		base := strings.TrimSuffix(filepath.Base(dataPath), ".sst")
		stamp, err := strconv.ParseInt(base, 10, 64)
		if err != nil {
			e.logger.Warn("skipping data file with unparsable name", zap.String("path", dataPath))
			continue
		}
		indexPath := filepath.Join(e.dataDir, base+".index")
		if _, err := os.Stat(indexPath); err != nil {
			e.logger.Warn("skipping data file without index", zap.String("path", dataPath))
			continue
		}
		pairs = append(pairs, pair{stamp: stamp, dataPath: dataPath, indexPath: indexPath})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].stamp < pairs[j].stamp })

	for _, p := range pairs {
		reader, err := OpenSSTable(p.dataPath, p.indexPath)
		if err != nil {
			return fmt.Errorf("open sstable %s: %w", p.dataPath, err)
		}
		e.readers = append(e.readers, reader)
		if p.stamp > e.lastStamp {
			e.lastStamp = p.stamp
		}
	}
	return nil
}

// Set stores a key-value pair: WAL first for durability, then the memtable.
// When the memtable reaches capacity the flush runs inline, so the write
// that crosses the threshold pays the flush latency before returning.
func (e *Engine) Set(key, value []byte) error {
	if e.closed {
		return ErrEngineClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}

	if err := e.wal.Append(Record{Key: key, Value: value}); err != nil {
		return err
	}
	e.memtable.Set(key, value)
	e.metrics.RecordSet()
	e.metrics.SetMemtableEntries(e.memtable.Len())

	if e.memtable.Len() >= e.config.MemtableCapacity {
		return e.Flush()
	}
	return nil
}

// Get retrieves the value for key: memtable first, then sorted files from
// most recently created to oldest. Returns ErrKeyNotFound when no source
// yields a value.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed {
		return nil, ErrEngineClosed
	}

	if value, ok := e.memtable.Get(key); ok {
		e.metrics.RecordGet("memtable")
		return value, nil
	}

	for i := len(e.readers) - 1; i >= 0; i-- {
		if e.readers[i].NotContains(key) {
			e.metrics.RecordBloomSkip()
			continue
		}
		value, err := e.readers[i].Get(key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		e.metrics.RecordGet("sstable")
		return value, nil
	}

	e.metrics.RecordGet("miss")
	return nil, ErrKeyNotFound
}

// Flush drains the memtable into a new sorted-file pair, registers a reader
// for it, then clears the memtable and the WAL together. No-op when the
// memtable is empty.
func (e *Engine) Flush() error {
	if e.closed {
		return ErrEngineClosed
	}
	if e.memtable.Len() == 0 {
		return nil
	}

	start := time.Now()
	stamp := e.nextStamp()
	base := strconv.FormatInt(stamp, 10)
	dataPath := filepath.Join(e.dataDir, base+".sst")
	indexPath := filepath.Join(e.dataDir, base+".index")

	records := e.memtable.SortedRecords()
	if err := WriteSSTable(dataPath, indexPath, records, e.config.Sparsity, e.config.BloomErrorRate); err != nil {
		return fmt.Errorf("flush memtable: %w", err)
	}

	reader, err := OpenSSTable(dataPath, indexPath)
	if err != nil {
		return fmt.Errorf("open flushed sstable: %w", err)
	}
	e.readers = append(e.readers, reader)

	// The pair is durable on disk; only now is the WAL copy redundant.
	e.memtable.Clear()
	if err := e.wal.Clear(); err != nil {
		return err
	}

	took := time.Since(start)
	e.metrics.RecordFlush(len(records), took)
	e.metrics.SetMemtableEntries(0)
	e.metrics.SetSSTableFiles(len(e.readers))
	e.logger.Info("flushed memtable to sorted file",
		zap.String("data_file", dataPath),
		zap.Int("entries", len(records)),
		zap.Duration("took", took))
	return nil
}

// nextStamp returns the current time in microseconds since the epoch,
// bumped past the last issued stamp so file names stay strictly increasing
// even when flushes land inside the same microsecond.
func (e *Engine) nextStamp() int64 {
	stamp := time.Now().UnixMicro()
	if stamp <= e.lastStamp {
		stamp = e.lastStamp + 1
	}
	e.lastStamp = stamp
	return stamp
}

// Stats returns a snapshot of the memtable size and the known sorted files.
func (e *Engine) Stats() EngineStats {
	stats := EngineStats{
		MemtableEntries: e.memtable.Len(),
		SSTableFiles:    make([]string, 0, len(e.readers)),
	}
	for _, r := range e.readers {
		stats.SSTableFiles = append(stats.SSTableFiles, r.DataPath())
	}
	return stats
}

// Keys returns the keys currently buffered in the memtable, ascending.
// Flushed keys live in the sorted files and are not listed.
func (e *Engine) Keys() []string {
	records := e.memtable.SortedRecords()
	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = string(rec.Key)
	}
	return keys
}

// Close releases the WAL handle and every open reader. Safe to call
// multiple times. The engine must be closed before another instance opens
// the same directory.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var errs error
	for _, r := range e.readers {
		errs = multierr.Append(errs, r.Close())
	}
	errs = multierr.Append(errs, e.wal.Close())
	return errs
}
