package goxr

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"

	"goxr/internal/checksum"
)

// ArchiveHandle is the open stream of the archive being processed. It
// is replaced volume by volume as a set is walked.
type ArchiveHandle struct {
	vr          *volumeReader
	Path        string
	VolumeIndex int

	Solid            bool
	MultiVolume      bool
	HasComment       bool
	NewNumbering     bool
	FirstVolume      bool
	HeadersEncrypted bool
	Locked           bool

	// MarkerPos is where the marker block was found; above zero for
	// self-extracting archives.
	MarkerPos    int64
	CurBlockPos  int64
	NextBlockPos int64

	charset encoding.Encoding
	last    *FileEntry
}

// OpenArchive opens path, finds the marker block and reads the main
// header. The handle is left at the first block after it.
func OpenArchive(path string, charset encoding.Encoding) (*ArchiveHandle, error) {
	vr, err := newVolumeReader(path)
	if err != nil {
		return nil, errors.Wrap(ErrOpenFailed, err.Error())
	}
	h := &ArchiveHandle{vr: vr, Path: path, charset: charset}
	if err := h.readPreamble(); err != nil {
		vr.Close()
		return nil, err
	}
	return h, nil
}

func (h *ArchiveHandle) Close() error {
	if h.vr == nil {
		return nil
	}
	err := h.vr.Close()
	h.vr = nil
	return err
}

func (h *ArchiveHandle) readPreamble() error {
	limit := h.vr.size
	if limit > markerSearchLimit+int64(len(rar5Marker)) {
		limit = markerSearchLimit + int64(len(rar5Marker))
	}
	buf := make([]byte, limit)
	n, err := io.ReadFull(h.vr, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return errors.Wrap(ErrOpenFailed, err.Error())
	}
	buf = buf[:n]

	i := bytes.Index(buf, rar4Marker)
	if i < 0 {
		switch {
		case bytes.Contains(buf, rar5Marker):
			return errors.Wrap(ErrNotAnArchive, "RAR 5.0 archives are not supported")
		case bytes.HasPrefix(buf, rar14Mark):
			return errors.Wrap(ErrNotAnArchive, "RAR 1.4 archives are not supported")
		}
		return ErrNotAnArchive
	}
	h.MarkerPos = int64(i)
	if err := h.vr.Seek(h.MarkerPos + int64(len(rar4Marker))); err != nil {
		return errors.Wrap(ErrOpenFailed, err.Error())
	}

	raw := make([]byte, mainHeadSize)
	if _, err := io.ReadFull(h.vr, raw); err != nil {
		return errors.Wrap(ErrMalformedHeader, "truncated main header")
	}
	if raw[2] != blockMain {
		return errors.Wrapf(ErrMalformedHeader, "expected main header, found block type 0x%02x", raw[2])
	}
	size := binary.LittleEndian.Uint16(raw[5:])
	if size < mainHeadSize {
		return errors.Wrapf(ErrMalformedHeader, "main header size %d", size)
	}
	if size > mainHeadSize {
		extra := make([]byte, size-mainHeadSize)
		if _, err := io.ReadFull(h.vr, extra); err != nil {
			return errors.Wrap(ErrMalformedHeader, "truncated main header")
		}
		raw = append(raw, extra...)
	}
	if checksum.HeaderCRC(raw[2:]) != binary.LittleEndian.Uint16(raw) {
		return errors.Wrap(ErrMalformedHeader, "main header CRC mismatch")
	}

	flags := HeaderFlags(binary.LittleEndian.Uint16(raw[3:]))
	h.MultiVolume = flags.IsSet(mainVolume)
	h.HasComment = flags.IsSet(mainComment)
	h.Locked = flags.IsSet(mainLock)
	h.Solid = flags.IsSet(mainSolid)
	h.NewNumbering = flags.IsSet(mainNewNumbering)
	h.FirstVolume = flags.IsSet(mainFirstVolume)
	h.HeadersEncrypted = flags.IsSet(mainPassword)
	if h.HeadersEncrypted {
		return errors.Wrap(ErrOpenFailed, "encrypted headers")
	}

	h.CurBlockPos = h.MarkerPos + int64(len(rar4Marker)) + int64(size)
	h.NextBlockPos = h.CurBlockPos
	return nil
}

// advance moves the cursor to the block after the current one.
func (h *ArchiveHandle) advance() {
	h.CurBlockPos = h.NextBlockPos
}

// seekPayload positions the stream at the data of the last header read.
func (h *ArchiveHandle) seekPayload(hdr BlockHeader) error {
	b := hdr.block()
	return h.vr.Seek(b.Pos + int64(b.HeadSize))
}
