package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sortedTestRecords(n int) []Record {
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, Record{
			Key:   []byte(fmt.Sprintf("key-%04d", i)),
			Value: []byte(fmt.Sprintf("value %d", i)),
		})
	}
	return records
}

func writeTestSSTable(t *testing.T, records []Record, sparsity int) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "1.sst")
	indexPath := filepath.Join(dir, "1.index")
	require.NoError(t, WriteSSTable(dataPath, indexPath, records, sparsity, 0.01))
	return dataPath, indexPath
}

func TestSSTable_LookupCorrectness(t *testing.T) {
	records := sortedTestRecords(30)

	// The lookup contract must hold for any sparsity >= 1, including one
	// denser than the file and one checkpointing every line.
	for _, sparsity := range []int{1, 4, 10, 100} {
		dataPath, indexPath := writeTestSSTable(t, records, sparsity)

		reader, err := OpenSSTable(dataPath, indexPath)
		require.NoError(t, err)

		for _, rec := range records {
			value, err := reader.Get(rec.Key)
			require.NoError(t, err, "sparsity=%d key=%s", sparsity, rec.Key)
			assert.Equal(t, rec.Value, value)
		}

		for _, absent := range []string{"key-", "key-0030", "zzz", "aaa", "key-00151"} {
			_, err := reader.Get([]byte(absent))
			assert.ErrorIs(t, err, ErrKeyNotFound, "sparsity=%d key=%s", sparsity, absent)
		}

		require.NoError(t, reader.Close())
	}
}

func TestSSTable_LargeValueLookup(t *testing.T) {
	// Values are written as single data lines, so lookups must read lines
	// far larger than any fixed scanner token size.
	large := bytes.Repeat([]byte("x"), 70*1024)
	records := []Record{
		{Key: []byte("big"), Value: large},
		{Key: []byte("small"), Value: []byte("v")},
	}
	dataPath, indexPath := writeTestSSTable(t, records, 10)

	reader, err := OpenSSTable(dataPath, indexPath)
	require.NoError(t, err)
	defer reader.Close()

	value, err := reader.Get([]byte("big"))
	require.NoError(t, err)
	assert.Equal(t, large, value)

	// The line after the large one must still be reachable by the scan.
	value, err = reader.Get([]byte("small"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

func TestSSTable_IndexCheckpointDensity(t *testing.T) {
	records := sortedTestRecords(30)
	_, indexPath := writeTestSSTable(t, records, 4)

	raw, err := os.ReadFile(indexPath)
	require.NoError(t, err)

	head, _, found := strings.Cut(string(raw), bloomMarker)
	require.True(t, found, "index file must contain the bloom marker")

	lines := strings.Split(strings.TrimSuffix(head, "\n"), "\n")
	// Entries 0, 4, 8, ... 28: one checkpoint per 4 entries, checkpoint 0
	// always present.
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "key-0000\t0"))
	assert.True(t, strings.HasPrefix(lines[1], "key-0004\t"))
}

func TestSSTable_SingleEntry(t *testing.T) {
	records := []Record{{Key: []byte("only"), Value: []byte("one")}}
	dataPath, indexPath := writeTestSSTable(t, records, 10)

	reader, err := OpenSSTable(dataPath, indexPath)
	require.NoError(t, err)
	defer reader.Close()

	value, err := reader.Get([]byte("only"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)

	_, err = reader.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestSSTable_RejectsEmptyInput(t *testing.T) {
	dir := t.TempDir()
	err := WriteSSTable(filepath.Join(dir, "e.sst"), filepath.Join(dir, "e.index"), nil, 10, 0.01)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSSTable_RejectsInvalidSparsity(t *testing.T) {
	dir := t.TempDir()
	records := sortedTestRecords(3)
	err := WriteSSTable(filepath.Join(dir, "s.sst"), filepath.Join(dir, "s.index"), records, 0, 0.01)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSSTable_OpenRejectsMissingMarker(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "bad.sst")
	indexPath := filepath.Join(dir, "bad.index")
	require.NoError(t, os.WriteFile(dataPath, []byte("a\t1\n"), 0644))
	require.NoError(t, os.WriteFile(indexPath, []byte("a\t0\n"), 0644))

	_, err := OpenSSTable(dataPath, indexPath)
	assert.ErrorIs(t, err, ErrCorruptedSSTable)
}

func TestSSTable_OpenRejectsMangledCheckpoint(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "bad.sst")
	indexPath := filepath.Join(dir, "bad.index")
	require.NoError(t, os.WriteFile(dataPath, []byte("a\t1\n"), 0644))
	require.NoError(t, os.WriteFile(indexPath, []byte("a-without-offset\n"+bloomMarker), 0644))

	_, err := OpenSSTable(dataPath, indexPath)
	assert.ErrorIs(t, err, ErrCorruptedSSTable)
}

func TestSSTable_BoundedScanStopsAtGreaterKey(t *testing.T) {
	// With sparsity 2 the scan for a key absent between checkpoints must
	// stop at the first greater line rather than run to the end.
	records := []Record{
		{Key: []byte("b"), Value: []byte("1")},
		{Key: []byte("d"), Value: []byte("2")},
		{Key: []byte("f"), Value: []byte("3")},
		{Key: []byte("h"), Value: []byte("4")},
	}
	dataPath, indexPath := writeTestSSTable(t, records, 2)

	reader, err := OpenSSTable(dataPath, indexPath)
	require.NoError(t, err)
	defer reader.Close()

	for _, probe := range []string{"a", "c", "e", "g", "i"} {
		_, err := reader.Get([]byte(probe))
		assert.ErrorIs(t, err, ErrKeyNotFound, "probe=%s", probe)
	}
	for _, rec := range records {
		value, err := reader.Get(rec.Key)
		require.NoError(t, err)
		assert.Equal(t, rec.Value, value)
	}
}
