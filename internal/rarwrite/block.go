package rarwrite

import (
	"bytes"
	"encoding/binary"
	"time"
	"unicode/utf16"

	"goxr/internal/checksum"
	"goxr/internal/util"
)

// Block types and flags of the RAR 1.5-4.x layout.
const (
	blockMark    = 0x72
	blockMain    = 0x73
	blockFile    = 0x74
	blockNewSub  = 0x7a
	blockEnd     = 0x7b
	flagLong     = 0x8000
	mainVolume   = 0x0001
	mainComment  = 0x0002
	mainLock     = 0x0004
	mainSolid    = 0x0008
	mainNewNum   = 0x0010
	mainFirstVol = 0x0100

	fileSplitBefore = 0x0001
	fileSplitAfter  = 0x0002
	filePassword    = 0x0004
	fileSolid       = 0x0010
	fileDirectory   = 0x00e0
	fileLarge       = 0x0100
	fileUnicode     = 0x0200
	fileSalt        = 0x0400
	fileVersion     = 0x0800
	fileExtTime     = 0x1000

	endNextVolume = 0x0001
	endVolNumber  = 0x0008

	mainHeaderSize = 13
)

// Host systems
const (
	HostMSDOS uint8 = 0
	HostWin32 uint8 = 2
	HostUnix  uint8 = 3
)

var markBlock = []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07, 0x00}

// sealBlock fills HEAD_CRC and HEAD_SIZE into a block whose first seven
// bytes are reserved for the common header.
func sealBlock(b []byte) []byte {
	binary.LittleEndian.PutUint16(b[5:], uint16(len(b)))
	binary.LittleEndian.PutUint16(b[0:], checksum.HeaderCRC(b[2:]))
	return b
}

func blockStart(typ byte, flags uint16) *bytes.Buffer {
	var b bytes.Buffer
	b.Write([]byte{0, 0, typ})
	binary.Write(&b, binary.LittleEndian, flags)
	b.Write([]byte{0, 0})
	return &b
}

func mainHeader(flags uint16) []byte {
	b := blockStart(blockMain, flags)
	b.Write(make([]byte, 6))
	return sealBlock(b.Bytes())
}

func endHeader(volume int, multi, last bool) []byte {
	var flags uint16
	if !last {
		flags |= endNextVolume
	}
	if multi {
		flags |= endVolNumber
	}
	b := blockStart(blockEnd, flags)
	if multi {
		binary.Write(b, binary.LittleEndian, uint16(volume))
	}
	return sealBlock(b.Bytes())
}

// fileHeader is one FILE or NEWSUB block header.
type fileHeader struct {
	typ      byte
	flags    uint16
	packSize uint64
	unpSize  uint64
	hostOS   uint8
	crc      uint32
	mtime    time.Time
	unpVer   uint8
	method   uint8
	name     []byte
	attr     uint32
	salt     []byte
	extTime  bool
}

func (h *fileHeader) bytes() []byte {
	flags := h.flags | flagLong
	if h.packSize > 0xffffffff || h.unpSize > 0xffffffff {
		flags |= fileLarge
	}
	if len(h.salt) > 0 {
		flags |= fileSalt
	}
	if h.extTime {
		flags |= fileExtTime
	}
	b := blockStart(h.typ, flags)
	binary.Write(b, binary.LittleEndian, uint32(h.packSize))
	binary.Write(b, binary.LittleEndian, uint32(h.unpSize))
	b.WriteByte(h.hostOS)
	binary.Write(b, binary.LittleEndian, h.crc)
	binary.Write(b, binary.LittleEndian, dosTime(h.mtime))
	b.WriteByte(h.unpVer)
	b.WriteByte(h.method)
	binary.Write(b, binary.LittleEndian, uint16(len(h.name)))
	binary.Write(b, binary.LittleEndian, h.attr)
	if flags&fileLarge != 0 {
		binary.Write(b, binary.LittleEndian, uint32(h.packSize>>32))
		binary.Write(b, binary.LittleEndian, uint32(h.unpSize>>32))
	}
	b.Write(h.name)
	b.Write(h.salt)
	if h.extTime {
		writeExtTime(b, h.mtime)
	}
	return sealBlock(b.Bytes())
}

// dosTime packs t in local time with two second resolution.
func dosTime(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	t = t.Local()
	year := t.Year() - 1980
	if year < 0 {
		return 0
	}
	return uint32(t.Second()/2) | uint32(t.Minute())<<5 | uint32(t.Hour())<<11 |
		uint32(t.Day())<<16 | uint32(t.Month())<<21 | uint32(year)<<25
}

// writeExtTime records the mtime remainder the DOS field cannot hold.
func writeExtTime(b *bytes.Buffer, t time.Time) {
	t = t.Local()
	nibble := uint16(0x8 | 3)
	if t.Second()%2 == 1 {
		nibble |= 0x4
	}
	binary.Write(b, binary.LittleEndian, nibble<<12)
	rem := uint32(t.Nanosecond() / 100)
	b.Write([]byte{byte(rem), byte(rem >> 8), byte(rem >> 16)})
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// encodeName returns the stored name bytes and whether LHD_UNICODE is
// needed.
func encodeName(name string, utf8Names bool) ([]byte, bool) {
	if isASCII(name) {
		return []byte(name), false
	}
	if utf8Names {
		return []byte(name), true
	}
	narrow := make([]byte, 0, len(name))
	for _, r := range name {
		if r < 0x80 {
			narrow = append(narrow, byte(r))
		} else {
			narrow = append(narrow, '_')
		}
	}
	out := append(narrow, 0)
	out = append(out, util.EncodeRar3Unicode(utf16.Encode([]rune(name)))...)
	return out, true
}
