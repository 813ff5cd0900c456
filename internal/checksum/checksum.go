// Package checksum holds the digests used by the extractor, the archive
// writer and the recovery sidecar.
package checksum

import (
	"hash"
	"hash/crc32"

	crc16 "github.com/sigurn/crc16"
	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
)

var crc16Table = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// NewCRC32 returns the accumulator for entry and packed part checksums.
func NewCRC32() hash.Hash32 {
	return crc32.NewIEEE()
}

// CRC32 computes the entry checksum of b in one go.
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// HeaderCRC is the block header check value: the low half of the CRC32
// over everything after the HEAD_CRC field.
func HeaderCRC(b []byte) uint16 {
	return uint16(crc32.ChecksumIEEE(b) & 0xffff)
}

// CRC16 computes the CCITT-FALSE CRC16 of b.
func CRC16(b []byte) uint16 {
	return crc16.Checksum(b, crc16Table)
}

// XXH3 computes the 64-bit XXH3 digest of b.
func XXH3(b []byte) uint64 {
	return xxh3.Hash(b)
}

// Blake3 computes the 256-bit BLAKE3 digest of b.
func Blake3(b []byte) [32]byte {
	return blake3.Sum256(b)
}
