package storage

// Record is the unit that flows through the WAL, the memtable and the
// sorted files. Keys and values are raw byte strings; the on-disk text
// format additionally forbids tabs and newlines inside them.
type Record struct {
	Key       []byte
	Value     []byte
	Tombstone bool // Deletion marker; carries no value bytes on the wire
}
