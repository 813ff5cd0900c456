package goxr

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"

	"goxr/internal/checksum"
	"goxr/internal/util"
)

// ReadNext reads the block header at h.CurBlockPos. The stream is left
// at the start of the block's payload and h.NextBlockPos points past it.
func ReadNext(h *ArchiveHandle) (BlockHeader, error) {
	if err := h.vr.Seek(h.CurBlockPos); err != nil {
		return nil, errors.Wrap(ErrMalformedHeader, err.Error())
	}
	head := make([]byte, blockHeadSize)
	if _, err := io.ReadFull(h.vr, head); err != nil {
		if err == io.EOF {
			return nil, ErrEndOfStream
		}
		return nil, errors.Wrapf(ErrMalformedHeader, "truncated block at %d", h.CurBlockPos)
	}
	size := binary.LittleEndian.Uint16(head[5:])
	if size < blockHeadSize {
		return nil, errors.Wrapf(ErrMalformedHeader, "block size %d at %d", size, h.CurBlockPos)
	}
	raw := make([]byte, size)
	copy(raw, head)
	if _, err := io.ReadFull(h.vr, raw[blockHeadSize:]); err != nil {
		return nil, errors.Wrapf(ErrMalformedHeader, "truncated block at %d", h.CurBlockPos)
	}
	if checksum.HeaderCRC(raw[2:]) != binary.LittleEndian.Uint16(raw) {
		return nil, errors.Wrapf(ErrMalformedHeader, "header CRC mismatch at %d", h.CurBlockPos)
	}

	info := blockInfo{
		Type:     raw[2],
		Flags:    HeaderFlags(binary.LittleEndian.Uint16(raw[3:])),
		HeadSize: size,
		Pos:      h.CurBlockPos,
	}

	var hdr BlockHeader
	var err error
	switch info.Type {
	case blockFile:
		var e *FileEntry
		e, err = parseFileHeader(info, raw, h.charset)
		if err == nil {
			e.IsSolidMember = h.Solid && !e.IsStored() && !e.IsDirectory()
			hdr = e
			h.last = e
		}
	case blockNewSub:
		var e *FileEntry
		e, err = parseFileHeader(info, raw, nil)
		if err == nil {
			hdr = &ExtSubBlock{blockInfo: e.blockInfo, SubType: e.Name, PackedSize: e.PackedSize}
		}
	case blockEnd:
		hdr, err = parseEndHeader(info, raw)
	case blockAV, blockSign:
		hdr = &SignatureBlock{blockInfo: info}
	default:
		if info.Flags.IsSet(flagLongBlock) {
			if len(raw) < blockHeadSize+4 {
				return nil, errors.Wrapf(ErrMalformedHeader, "block at %d too short for its length", h.CurBlockPos)
			}
			info.DataSize = int64(binary.LittleEndian.Uint32(raw[7:]))
		}
		hdr = &SubBlock{blockInfo: info}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "block at %d", h.CurBlockPos)
	}
	next := h.CurBlockPos + int64(size) + hdr.block().DataSize
	if next <= h.CurBlockPos {
		return nil, errors.Wrapf(ErrMalformedHeader, "block at %d has no length", h.CurBlockPos)
	}
	h.NextBlockPos = next
	return hdr, nil
}

// headerBuf reads little-endian fields and remembers the first overrun.
type headerBuf struct {
	b   []byte
	off int
	bad bool
}

func (hb *headerBuf) bytes(n int) []byte {
	if hb.bad || hb.off+n > len(hb.b) {
		hb.bad = true
		return make([]byte, n)
	}
	out := hb.b[hb.off : hb.off+n]
	hb.off += n
	return out
}

func (hb *headerBuf) u8() uint8   { return hb.bytes(1)[0] }
func (hb *headerBuf) u16() uint16 { return binary.LittleEndian.Uint16(hb.bytes(2)) }
func (hb *headerBuf) u32() uint32 { return binary.LittleEndian.Uint32(hb.bytes(4)) }

func parseFileHeader(info blockInfo, raw []byte, charset encoding.Encoding) (*FileEntry, error) {
	if len(raw) < blockHeadSize+fileHeadFixed {
		return nil, errors.Wrapf(ErrMalformedHeader, "file header size %d", len(raw))
	}
	hb := &headerBuf{b: raw, off: blockHeadSize}
	e := &FileEntry{blockInfo: info}
	packLow := hb.u32()
	unpLow := hb.u32()
	e.HostOS = hb.u8()
	e.FileCRC = hb.u32()
	dos := hb.u32()
	e.UnpVer = hb.u8()
	e.Method = hb.u8()
	nameSize := int(hb.u16())
	e.Attr = hb.u32()
	e.PackedSize = int64(packLow)
	e.UnpackedSize = int64(unpLow)
	if e.IsLarge() {
		e.PackedSize |= int64(hb.u32()) << 32
		e.UnpackedSize |= int64(hb.u32()) << 32
	}
	if hb.bad {
		return nil, errors.Wrap(ErrMalformedHeader, "truncated large size fields")
	}
	if e.PackedSize < 0 || e.UnpackedSize < 0 {
		return nil, errors.Wrapf(ErrMalformedHeader, "sizes %d/%d out of range", e.PackedSize, e.UnpackedSize)
	}
	if hb.off+nameSize > len(raw) {
		return nil, errors.Wrapf(ErrMalformedHeader, "name of %d bytes exceeds header", nameSize)
	}
	e.Name = decodeName(hb.bytes(nameSize), e.Flags, e.HostOS, charset)
	if e.HasSalt() {
		e.Salt = append([]byte(nil), hb.bytes(saltSize)...)
	}
	e.MTime = parseDosTime(dos)
	if e.HasExtTime() && !hb.bad {
		parseExtTimes(hb, e)
	}
	if hb.bad {
		return nil, errors.Wrapf(ErrMalformedHeader, "file header of %q truncated", e.Name)
	}
	if e.IsVersioned() {
		e.Revision = parseRevision(e.Name)
	}
	e.DataSize = e.PackedSize
	return e, nil
}

func parseEndHeader(info blockInfo, raw []byte) (*EndOfArchive, error) {
	hb := &headerBuf{b: raw, off: blockHeadSize}
	e := &EndOfArchive{blockInfo: info, NextVolume: info.Flags.IsSet(endNextVolume)}
	if info.Flags.IsSet(endDataCRC) {
		e.HasDataCRC = true
		e.DataCRC = hb.u32()
	}
	if info.Flags.IsSet(endVolNumber) {
		e.VolumeNumber = int(hb.u16())
	}
	if hb.bad {
		return nil, errors.Wrap(ErrMalformedHeader, "truncated end of archive block")
	}
	return e, nil
}

func isLegacyHost(host uint8) bool {
	return host == HostMSDOS || host == HostOS2 || host == HostWin32
}

// decodeName turns the stored name into the one Unicode form used
// everywhere else, with '/' as separator.
func decodeName(raw []byte, flags HeaderFlags, host uint8, charset encoding.Encoding) string {
	var name string
	switch {
	case flags.IsSet(FlagUnicode):
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			name = util.DecodeRar3Unicode(raw[:i], raw[i+1:])
			if name == "" {
				name = narrowName(raw[:i], host, charset)
			}
		} else {
			name = string(raw)
		}
	default:
		name = narrowName(raw, host, charset)
	}
	if isLegacyHost(host) {
		name = strings.ReplaceAll(name, `\`, "/")
	}
	return name
}

func narrowName(raw []byte, host uint8, charset encoding.Encoding) string {
	if charset == nil || (!isLegacyHost(host) && utf8.Valid(raw)) {
		return string(raw)
	}
	out, err := charset.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// parseDosTime decodes an MS-DOS date and time in local time.
func parseDosTime(v uint32) time.Time {
	if v == 0 {
		return time.Time{}
	}
	sec := int(v&0x1f) * 2
	minute := int(v>>5) & 0x3f
	hour := int(v>>11) & 0x1f
	day := int(v>>16) & 0x1f
	mon := time.Month((v >> 21) & 0x0f)
	year := int(v>>25) + 1980
	return time.Date(year, mon, day, hour, minute, sec, 0, time.Local)
}

// parseExtTimes reads the precise timestamp record: a flag word with one
// nibble per time (mtime, ctime, atime, archive time), each optionally
// followed by a DOS base time and up to three bytes of 100ns units.
func parseExtTimes(hb *headerBuf, e *FileEntry) {
	flags := hb.u16()
	times := []*time.Time{&e.MTime, &e.CTime, &e.ATime, nil}
	for i, t := range times {
		mode := flags >> uint((3-i)*4)
		if mode&0x8 == 0 {
			continue
		}
		base := e.MTime
		if i != 0 {
			base = parseDosTime(hb.u32())
		}
		known := !base.IsZero()
		if mode&0x4 != 0 {
			base = base.Add(time.Second)
		}
		count := int(mode & 0x3)
		var rem uint32
		for j := 0; j < count; j++ {
			rem |= uint32(hb.u8()) << uint((j+3-count)*8)
		}
		base = base.Add(time.Duration(rem) * 100)
		if t != nil && known {
			*t = base
		}
	}
}
