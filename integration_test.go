package lsmkv_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsmkv/internal/config"
	"lsmkv/internal/metrics"
	"lsmkv/internal/storage"
)

// Integration tests verify end-to-end functionality across components.

func TestE2E_ConfigToEngineLifecycle(t *testing.T) {
	dir := t.TempDir()

	configPath := filepath.Join(dir, "lsmkv.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
storage_directory: %s
memtable_capacity: 25
sparsity: 4
bloom_error_rate: 0.01
`, filepath.Join(dir, "db"))), 0644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	registry := metrics.NewRegistry()
	open := func() *storage.Engine {
		engine, err := storage.Open(storage.EngineConfig{
			Dir:              cfg.StorageDirectory,
			MemtableCapacity: cfg.MemtableCapacity,
			Sparsity:         cfg.Sparsity,
			BloomErrorRate:   cfg.BloomErrorRate,
			Metrics:          registry,
		})
		require.NoError(t, err)
		return engine
	}

	// Phase 1: write enough to roll several sorted files, plus a buffered
	// tail that only the WAL covers.
	engine := open()
	n := 120
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("user:%06d", i))
		value := []byte(fmt.Sprintf("profile-%06d", i))
		require.NoError(t, engine.Set(key, value))
	}

	stats := engine.Stats()
	assert.GreaterOrEqual(t, len(stats.SSTableFiles), 4)
	assert.Equal(t, n%cfg.MemtableCapacity, stats.MemtableEntries)
	require.NoError(t, engine.Close())

	// Phase 2: reopen and verify every write survived — flushed entries
	// from sorted files, the tail from WAL replay.
	engine = open()
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("user:%06d", i))
		value, err := engine.Get(key)
		require.NoError(t, err, "key %s", key)
		assert.Equal(t, []byte(fmt.Sprintf("profile-%06d", i)), value)
	}

	// Phase 3: overwrite a flushed key; the newer file must win after the
	// next flush and after another restart.
	require.NoError(t, engine.Set([]byte("user:000000"), []byte("profile-updated")))
	require.NoError(t, engine.Flush())
	require.NoError(t, engine.Close())

	engine = open()
	defer engine.Close()

	value, err := engine.Get([]byte("user:000000"))
	require.NoError(t, err)
	assert.Equal(t, []byte("profile-updated"), value)

	_, err = engine.Get([]byte("user:999999"))
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}
