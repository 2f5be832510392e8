package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/big"
)

// bloomVersion tags the serialized filter layout so the encoding can evolve
// without silently misreading old files.
const bloomVersion = 1

// bloomHeaderSize is the fixed prefix of the serialized filter:
// version (1) + hash count (4) + capacity (8) + error rate (8) + bit count (8).
const bloomHeaderSize = 1 + 4 + 8 + 8 + 8

// BloomFilter is a probabilistic set membership structure. False positives
// are expected and bounded by the configured error rate; false negatives are
// impossible by construction. Once built for a sorted file it is immutable
// and serialized into that file's index artifact.
type BloomFilter struct {
	bits      []byte
	bitCount  uint64
	hashCount uint32
	capacity  uint64
	errorRate float64
}

// NewBloomFilter sizes a filter for the expected number of keys and the
// target false-positive rate:
//
//	m = ceil(-n·ln(p) / (ln 2)²)    bits
//	k = floor((m/n)·ln 2)           hash functions, at least 1
func NewBloomFilter(capacity int, errorRate float64) (*BloomFilter, error) {
	if capacity < 1 || errorRate <= 0 || errorRate >= 1 {
		return nil, ErrInvalidConfig
	}

	n := float64(capacity)
	m := uint64(math.Ceil(-(n * math.Log(errorRate)) / (math.Ln2 * math.Ln2)))
	k := uint32((float64(m) / n) * math.Ln2)
	if k < 1 {
		k = 1
	}

	return &BloomFilter{
		bits:      make([]byte, (m+7)/8),
		bitCount:  m,
		hashCount: k,
		capacity:  uint64(capacity),
		errorRate: errorRate,
	}, nil
}

// bitPositions derives the hashCount bit positions for key. Each position is
// sha256(key ‖ salt byte i) interpreted as a big integer and reduced modulo
// the bit count, so a filter serialized by the writer and deserialized by the
// reader derives identical positions for the same key.
func (bf *BloomFilter) bitPositions(key []byte) []uint64 {
	positions := make([]uint64, 0, bf.hashCount)
	mod := new(big.Int).SetUint64(bf.bitCount)
	salted := make([]byte, 0, len(key)+1)

	for i := uint32(0); i < bf.hashCount; i++ {
		salted = append(salted[:0], key...)
		salted = append(salted, byte(i))
		sum := sha256.Sum256(salted)

		h := new(big.Int).SetBytes(sum[:])
		positions = append(positions, h.Mod(h, mod).Uint64())
	}
	return positions
}

// Add marks key as a member.
func (bf *BloomFilter) Add(key []byte) {
	for _, pos := range bf.bitPositions(key) {
		bf.bits[pos/8] |= 1 << (pos % 8)
	}
}

// NotContains reports whether key was definitely never added. A false result
// means "maybe present".
func (bf *BloomFilter) NotContains(key []byte) bool {
	for _, pos := range bf.bitPositions(key) {
		if bf.bits[pos/8]&(1<<(pos%8)) != 0 {
			return false
		}
	}
	return true
}

// BitCount returns the size of the bit array in bits.
func (bf *BloomFilter) BitCount() uint64 {
	return bf.bitCount
}

// HashCount returns the number of hash functions.
func (bf *BloomFilter) HashCount() uint32 {
	return bf.hashCount
}

// Encode serializes the filter as a versioned binary blob, big-endian:
//
//	[version u8][hashCount u32][capacity u64][errorRate f64 bits][bitCount u64][bit array]
func (bf *BloomFilter) Encode() []byte {
	buf := make([]byte, bloomHeaderSize+len(bf.bits))
	buf[0] = bloomVersion
	binary.BigEndian.PutUint32(buf[1:], bf.hashCount)
	binary.BigEndian.PutUint64(buf[5:], bf.capacity)
	binary.BigEndian.PutUint64(buf[13:], math.Float64bits(bf.errorRate))
	binary.BigEndian.PutUint64(buf[21:], bf.bitCount)
	copy(buf[bloomHeaderSize:], bf.bits)
	return buf
}

// DecodeBloomFilter reconstructs a filter from its serialized form.
func DecodeBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) < bloomHeaderSize {
		return nil, ErrCorruptedFilter
	}
	if data[0] != bloomVersion {
		return nil, ErrCorruptedFilter
	}

	bf := &BloomFilter{
		hashCount: binary.BigEndian.Uint32(data[1:]),
		capacity:  binary.BigEndian.Uint64(data[5:]),
		errorRate: math.Float64frombits(binary.BigEndian.Uint64(data[13:])),
		bitCount:  binary.BigEndian.Uint64(data[21:]),
	}
	if bf.bitCount == 0 || bf.hashCount == 0 {
		return nil, ErrCorruptedFilter
	}
	if uint64(len(data)-bloomHeaderSize) != (bf.bitCount+7)/8 {
		return nil, ErrCorruptedFilter
	}
	bf.bits = append([]byte(nil), data[bloomHeaderSize:]...)
	return bf, nil
}
