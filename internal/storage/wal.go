package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// WAL (Write-Ahead Log) provides durability for memtable writes. Every write
// is appended and fsynced before being applied to the memtable; on startup
// the log is replayed to restore memtable state.
//
// Record format, repeated over an append-only file:
//
//	┌──────────────┬──────────────┬───────────────────┬─────┬───────┬──────────┐
//	│ key_len (4B) │ val_len (4B) │ checksum_len (4B) │ key │ value │ checksum │
//	└──────────────┴──────────────┴───────────────────┴─────┴───────┴──────────┘
//
// Lengths are unsigned 32-bit big-endian. The checksum field is the decimal
// ASCII text of CRC-32 (IEEE) over key‖value. val_len = 0 denotes a tombstone.
type WAL struct {
	file   *os.File
	writer *bufio.Writer
	path   string
	logger *zap.Logger
	closed bool
}

// walHeaderSize is the fixed record header: three u32 big-endian lengths.
const walHeaderSize = 12

// OpenWAL opens or creates the log file at path.
func OpenWAL(path string, logger *zap.Logger) (*WAL, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	return &WAL{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
		logger: logger,
	}, nil
}

// Append writes rec and forces it to stable storage. The write is not
// acknowledged until the sync completes; there is no earlier success path.
func (w *WAL) Append(rec Record) error {
	checksum := strconv.FormatUint(uint64(recordChecksum(rec.Key, rec.Value)), 10)

	header := make([]byte, walHeaderSize)
	binary.BigEndian.PutUint32(header[0:], uint32(len(rec.Key)))
	binary.BigEndian.PutUint32(header[4:], uint32(len(rec.Value)))
	binary.BigEndian.PutUint32(header[8:], uint32(len(checksum)))

	if _, err := w.writer.Write(header); err != nil {
		return fmt.Errorf("wal write header: %w", err)
	}
	if _, err := w.writer.Write(rec.Key); err != nil {
		return fmt.Errorf("wal write key: %w", err)
	}
	if _, err := w.writer.Write(rec.Value); err != nil {
		return fmt.Errorf("wal write value: %w", err)
	}
	if _, err := w.writer.WriteString(checksum); err != nil {
		return fmt.Errorf("wal write checksum: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal sync: %w", err)
	}
	return nil
}

// Replay reads every intact record from the start of the log, in append
// order. The scan stops at the first short read or checksum mismatch: records
// before that point are returned and the torn tail is discarded. That
// boundary is the recovery contract after a crash, not an error.
func (w *WAL) Replay() ([]Record, error) {
	file, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open wal for replay: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat wal: %w", err)
	}

	reader := bufio.NewReader(file)
	var records []Record
	var consumed int64

	for {
		header := make([]byte, walHeaderSize)
		if _, err := io.ReadFull(reader, header); err != nil {
			break
		}
		keyLen := binary.BigEndian.Uint32(header[0:])
		valLen := binary.BigEndian.Uint32(header[4:])
		sumLen := binary.BigEndian.Uint32(header[8:])

		// A torn header can decode to garbage lengths; when they point past
		// the end of the file this is a short read, the corruption boundary.
		bodyLen := int64(keyLen) + int64(valLen) + int64(sumLen)
		if consumed+walHeaderSize+bodyLen > info.Size() {
			break
		}

		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(reader, body); err != nil {
			break
		}

		key := body[:keyLen]
		value := body[keyLen : keyLen+valLen]
		stored, err := strconv.ParseUint(string(body[keyLen+valLen:]), 10, 32)
		if err != nil || uint32(stored) != recordChecksum(key, value) {
			break
		}

		rec := Record{Key: key}
		if valLen == 0 {
			rec.Tombstone = true
		} else {
			rec.Value = value
		}
		records = append(records, rec)
		consumed += walHeaderSize + int64(len(body))
	}

	if consumed < info.Size() {
		w.logger.Warn("wal truncated at corruption boundary",
			zap.Int64("valid_bytes", consumed),
			zap.Int64("dropped_bytes", info.Size()-consumed),
			zap.Int("records_recovered", len(records)))
	}
	return records, nil
}

// Clear truncates the log to empty. Called only after the buffered writes it
// covers have durably landed in a sorted file.
func (w *WAL) Clear() error {
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync wal after truncate: %w", err)
	}
	w.writer.Reset(w.file)
	return nil
}

// Close releases the file handle. Safe to call multiple times.
func (w *WAL) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal flush on close: %w", err)
	}
	return w.file.Close()
}

// recordChecksum is CRC-32 (IEEE) over key‖value.
func recordChecksum(key, value []byte) uint32 {
	sum := crc32.NewIEEE()
	sum.Write(key)
	sum.Write(value)
	return sum.Sum32()
}
