package goxr

import (
	"context"
	"hash"
	"io"

	"github.com/pkg/errors"

	"goxr/internal/checksum"
	"goxr/internal/codec"
	"goxr/internal/rarcrypt"
)

// Unpacker decodes one entry at a time from the DataIO it was built
// over. Implementations keep their state between entries of a solid
// chain.
type Unpacker interface {
	SetDestinationSize(n int64)
	Decode(version uint8, solid bool) error
}

// UnpackerFactory builds the unpacker of one archive attempt.
type UnpackerFactory func(data codec.DataIO) Unpacker

func defaultUnpacker(data codec.DataIO) Unpacker {
	return codec.NewUnpacker(data)
}

// dataIO is the packed source and the unpacked destination of the entry
// being processed. Packed reads span volumes: when a part runs out and
// the entry continues, the next volume is merged in and reading goes on
// with the same cipher and checksum state.
type dataIO struct {
	ctx      context.Context
	h        *ArchiveHandle
	log      *logger
	stats    *Stats
	progress *progressTracker

	entry     *FileEntry
	part      *FileEntry
	remaining int64
	partCRC   hash.Hash32
	src       io.Reader
	merged    int

	dst     io.Writer
	crc     hash.Hash32
	written int64
}

func newDataIO(ctx context.Context, h *ArchiveHandle, log *logger, stats *Stats, p *progressTracker) *dataIO {
	return &dataIO{
		ctx:      ctx,
		h:        h,
		log:      log,
		stats:    stats,
		progress: p,
		partCRC:  checksum.NewCRC32(),
		crc:      checksum.NewCRC32(),
	}
}

// begin positions the stream at e's payload and routes output to dst.
// password is only used for encrypted entries.
func (d *dataIO) begin(e *FileEntry, password string, dst io.Writer) error {
	if err := d.h.seekPayload(e); err != nil {
		return errors.Wrap(ErrMalformedHeader, err.Error())
	}
	d.entry, d.part = e, e
	d.remaining = e.PackedSize
	d.merged = 0
	d.partCRC.Reset()
	d.crc.Reset()
	d.written = 0
	d.dst = dst

	d.src = packedReader{d}
	if e.HasPassword() {
		var salt []byte
		if e.HasSalt() {
			salt = e.Salt
		}
		r, err := rarcrypt.NewReader(d.src, e.UnpVer, password, salt)
		if err != nil {
			return errors.Wrap(ErrUnsupportedCodecVersion, err.Error())
		}
		d.src = r
	}
	return nil
}

type packedReader struct{ d *dataIO }

func (pr packedReader) Read(p []byte) (int, error) {
	return pr.d.readPacked(p)
}

func (d *dataIO) readPacked(p []byte) (int, error) {
	for d.remaining == 0 {
		if !d.part.SplitAfter() {
			return 0, io.EOF
		}
		if err := d.nextPart(); err != nil {
			return 0, err
		}
	}
	if int64(len(p)) > d.remaining {
		p = p[:d.remaining]
	}
	n, err := d.h.vr.Read(p)
	d.remaining -= int64(n)
	d.partCRC.Write(p[:n])
	d.progress.addPacked(n)
	if err == io.EOF {
		if d.remaining > 0 {
			return n, errors.Wrapf(io.ErrUnexpectedEOF, "%v: packed data truncated", d.h.Path)
		}
		err = nil
	}
	return n, err
}

// nextPart finishes the current part and continues in the next volume.
func (d *dataIO) nextPart() error {
	if d.partCRC.Sum32() != d.part.FileCRC {
		d.log.warn("%v: packed data CRC mismatch in %v", d.entry.Name, d.h.Path)
		d.stats.Warnings++
	}
	res, err := Merge(d.h)
	if err != nil {
		return err
	}
	if res == NoMoreVolumes {
		return errors.Wrapf(ErrNextVolumeMissing, "after %v", d.h.Path)
	}
	d.log.debug("continuing %v in %v", d.entry.Name, d.h.Path)
	d.part = d.h.last
	d.remaining = d.part.PackedSize
	d.partCRC.Reset()
	d.merged++
	return nil
}

func (d *dataIO) Read(p []byte) (int, error) {
	return d.src.Read(p)
}

func (d *dataIO) Write(p []byte) (int, error) {
	if err := d.ctx.Err(); err != nil {
		return 0, err
	}
	d.crc.Write(p)
	d.written += int64(len(p))
	d.progress.addUnpacked(len(p))
	n, err := d.dst.Write(p)
	if err != nil {
		return n, errors.Wrap(ErrDestinationCreateFailed, err.Error())
	}
	return n, nil
}

// unstore copies a stored entry. Bytes past UnpackedSize are cipher
// padding and stay unread.
func (d *dataIO) unstore() error {
	n, err := io.CopyN(d, d.src, d.entry.UnpackedSize)
	if err == io.EOF {
		return errors.Wrapf(io.ErrUnexpectedEOF, "copied %d of %d bytes", n, d.entry.UnpackedSize)
	}
	return err
}

// finish reads the rest of a split entry so that its last part, which
// holds the file CRC, is reached. It returns the stored and the computed
// CRC.
func (d *dataIO) finish() (want, got uint32, err error) {
	if d.part.SplitAfter() {
		if _, err := io.Copy(io.Discard, packedReader{d}); err != nil {
			return 0, 0, err
		}
	}
	return d.part.FileCRC, d.crc.Sum32(), nil
}

// countingWriter discards output and counts it.
type countingWriter struct {
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	cw.n += int64(len(p))
	return len(p), nil
}
