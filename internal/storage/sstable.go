package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// SSTable on-disk layout is a pair of artifacts, both immutable once written:
//
//	Data file ({ts}.sst):    UTF-8 lines "key\tvalue\n", strictly ascending
//	                         by key, no duplicates.
//	Index file ({ts}.index): sparse checkpoint lines "key\toffset\n" (one per
//	                         sparsity-th entry, checkpoint 0 always present),
//	                         a marker line, then the serialized bloom filter.
//
// Keys and values must not contain tabs or newlines; the format does not
// escape them.

// bloomMarker separates the checkpoint lines from the bloom filter blob in
// the index file.
const bloomMarker = "__BLOOM_START__\n"

// checkpoint maps a key to the byte offset of its line in the data file.
type checkpoint struct {
	key    string
	offset int64
}

// WriteSSTable persists records as a data/index pair. records must already be
// sorted ascending by key with no duplicates — the engine guarantees this by
// sourcing them from MemTable.SortedRecords — and behavior on unsorted input
// is undefined. Every sparsity-th entry gets a checkpoint in the index.
func WriteSSTable(dataPath, indexPath string, records []Record, sparsity int, errorRate float64) error {
	if sparsity < 1 {
		return ErrInvalidConfig
	}
	bloom, err := NewBloomFilter(len(records), errorRate)
	if err != nil {
		return err
	}

	dataFile, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("create data file: %w", err)
	}
	defer dataFile.Close()

	indexFile, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer indexFile.Close()

	dataWriter := bufio.NewWriter(dataFile)
	indexWriter := bufio.NewWriter(indexFile)

	var offset int64
	for i, rec := range records {
		bloom.Add(rec.Key)

		if i%sparsity == 0 {
			if _, err := fmt.Fprintf(indexWriter, "%s\t%d\n", rec.Key, offset); err != nil {
				return fmt.Errorf("write checkpoint: %w", err)
			}
		}

		n, err := fmt.Fprintf(dataWriter, "%s\t%s\n", rec.Key, rec.Value)
		if err != nil {
			return fmt.Errorf("write data line: %w", err)
		}
		offset += int64(n)
	}

	if _, err := indexWriter.WriteString(bloomMarker); err != nil {
		return fmt.Errorf("write bloom marker: %w", err)
	}
	if _, err := indexWriter.Write(bloom.Encode()); err != nil {
		return fmt.Errorf("write bloom filter: %w", err)
	}

	if err := dataWriter.Flush(); err != nil {
		return fmt.Errorf("flush data file: %w", err)
	}
	if err := indexWriter.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	// Both artifacts must be durable before the engine discards the WAL copy.
	if err := dataFile.Sync(); err != nil {
		return fmt.Errorf("sync data file: %w", err)
	}
	if err := indexFile.Sync(); err != nil {
		return fmt.Errorf("sync index file: %w", err)
	}
	return nil
}

// SSTableReader serves point lookups against one immutable data/index pair.
// The index file is read once at construction; the data file handle stays
// open for the reader's lifetime.
type SSTableReader struct {
	dataPath    string
	file        *os.File
	checkpoints []checkpoint
	bloom       *BloomFilter
}

// OpenSSTable opens the pair at (dataPath, indexPath). It reads the index
// sequentially, collecting checkpoints until the bloom marker, then decodes
// the trailing bytes into the filter.
func OpenSSTable(dataPath, indexPath string) (*SSTableReader, error) {
	indexFile, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer indexFile.Close()

	reader := bufio.NewReader(indexFile)
	var checkpoints []checkpoint
	sawMarker := false

	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read index file: %w", err)
		}
		if line == bloomMarker {
			sawMarker = true
			break
		}

		key, offsetText, ok := strings.Cut(strings.TrimSuffix(line, "\n"), "\t")
		if !ok {
			return nil, ErrCorruptedSSTable
		}
		offset, err := strconv.ParseInt(offsetText, 10, 64)
		if err != nil {
			return nil, ErrCorruptedSSTable
		}
		checkpoints = append(checkpoints, checkpoint{key: key, offset: offset})
	}
	if !sawMarker {
		return nil, ErrCorruptedSSTable
	}

	blob, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read bloom filter: %w", err)
	}
	bloom, err := DecodeBloomFilter(blob)
	if err != nil {
		return nil, err
	}

	dataFile, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	return &SSTableReader{
		dataPath:    dataPath,
		file:        dataFile,
		checkpoints: checkpoints,
		bloom:       bloom,
	}, nil
}

// NotContains reports whether the bloom filter proves key is absent from
// this file. Used by the engine to skip files without touching the disk.
func (r *SSTableReader) NotContains(key []byte) bool {
	return r.bloom.NotContains(key)
}

// Get looks up key. The bloom filter short-circuits definite misses; the
// checkpoint list bounds the forward scan to at most sparsity+1 lines.
func (r *SSTableReader) Get(key []byte) ([]byte, error) {
	if r.bloom.NotContains(key) {
		return nil, ErrKeyNotFound
	}

	target := string(key)

	// Rightmost checkpoint whose key is <= target: the insertion point of
	// the first checkpoint strictly greater, minus one. Offset 0 when the
	// target precedes every checkpoint.
	idx := sort.Search(len(r.checkpoints), func(i int) bool {
		return r.checkpoints[i].key > target
	})
	var start int64
	if idx > 0 {
		start = r.checkpoints[idx-1].offset
	}

	if _, err := r.file.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek data file: %w", err)
	}

	// ReadString rather than a Scanner: data lines carry whole values, which
	// can exceed any fixed token size.
	reader := bufio.NewReader(r.file)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return nil, ErrKeyNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("scan data file: %w", err)
		}
		lineKey, lineValue, ok := strings.Cut(strings.TrimSuffix(line, "\n"), "\t")
		if !ok {
			return nil, ErrCorruptedSSTable
		}
		if lineKey == target {
			return []byte(lineValue), nil
		}
		// Keys in the data file strictly increase, so the target cannot
		// occur past this point.
		if lineKey > target {
			return nil, ErrKeyNotFound
		}
	}
}

// DataPath returns the data file path.
func (r *SSTableReader) DataPath() string {
	return r.dataPath
}

// Close releases the data file handle.
func (r *SSTableReader) Close() error {
	return r.file.Close()
}
