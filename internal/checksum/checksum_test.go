package checksum

import (
	"encoding/hex"
	"hash/crc32"
	"testing"
)

func TestCRC32(t *testing.T) {
	content := []byte("checksum test")
	h := NewCRC32()
	h.Write(content[:5])
	h.Write(content[5:])
	if h.Sum32() != CRC32(content) {
		t.Fatalf("split writes changed digest")
	}
	if CRC32(content) != crc32.ChecksumIEEE(content) {
		t.Fatalf("CRC32 is not IEEE")
	}
	if len(h.Sum(nil)) != 4 {
		t.Fatalf("digest length %d", len(h.Sum(nil)))
	}
}

func TestHeaderCRC(t *testing.T) {
	// Main archive header of an empty archive: type 0x73, flags 0, size 13,
	// six reserved bytes.
	body, _ := hex.DecodeString("730000" + "0d00" + "000000000000")
	if got := HeaderCRC(body); got != 0x90cf {
		t.Fatalf("HeaderCRC = %#04x, want 0x90cf", got)
	}
}

func TestOneShotHelpers(t *testing.T) {
	data := []byte("shard")
	if XXH3(data) == XXH3([]byte("shards")) {
		t.Fatalf("XXH3 did not change with input")
	}
	if Blake3(data) == Blake3([]byte("shards")) {
		t.Fatalf("Blake3 did not change with input")
	}
	if CRC16(data) == CRC16([]byte("shards")) {
		t.Fatalf("CRC16 did not change with input")
	}
	if Blake3(data) != Blake3([]byte("shard")) {
		t.Fatalf("Blake3 not deterministic")
	}
}
