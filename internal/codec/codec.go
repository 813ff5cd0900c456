// Package codec is the unpacker the extractor drives for compressed
// entries. Codec versions are resolved through a registry so the classic
// RAR LZ decoders can be plugged in by the caller; the built in versions
// wrap general purpose stream codecs.
package codec

import (
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Built in codec versions. They sit above every version the reference
// tool writes so they never collide with RAR LZ streams.
const (
	VerDeflate uint8 = 0x80 + iota
	VerGzip
	VerZstd
	VerLZ4
	VerS2
	VerSnappy
	VerBrotli
	VerXZ
)

// MethodStore marks an entry whose payload is kept without compression.
const MethodStore = 0x30

var ErrUnsupportedVersion = errors.New("unsupported codec version")

// DataIO is the packed source and the unpacked destination of the entry
// being decoded.
type DataIO interface {
	io.Reader
	io.Writer
}

// Decoder holds the state of one codec across the members of a solid
// chain. size is the exact number of bytes to produce.
type Decoder interface {
	Decode(src io.Reader, dst io.Writer, size int64, solid bool) error
}

type Factory func() Decoder

type registration struct {
	name    string
	factory Factory
}

var (
	regMu    sync.RWMutex
	registry = map[uint8]registration{}
)

// Register makes a decoder available for version. A later registration
// replaces an earlier one.
func Register(version uint8, name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[version] = registration{name: name, factory: f}
}

func lookup(version uint8) (registration, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	r, ok := registry[version]
	return r, ok
}

// Supported reports whether a decoder is registered for version.
func Supported(version uint8) bool {
	_, ok := lookup(version)
	return ok
}

// Name is a short label for version, used in listings.
func Name(version uint8) string {
	if r, ok := lookup(version); ok {
		return r.name
	}
	switch version {
	case 15, 20, 26, 29, 36:
		return fmt.Sprintf("rar%d", version)
	}
	return fmt.Sprintf("v%d", version)
}

// Unpacker decodes entries through a DataIO. It keeps one Decoder per
// codec version for the lifetime of an archive.
type Unpacker struct {
	data     DataIO
	size     int64
	decoders map[uint8]Decoder
}

func NewUnpacker(data DataIO) *Unpacker {
	return &Unpacker{data: data, decoders: map[uint8]Decoder{}}
}

// SetDestinationSize sets the unpacked size of the next Decode.
func (u *Unpacker) SetDestinationSize(n int64) {
	u.size = n
}

func (u *Unpacker) Decode(version uint8, solid bool) error {
	reg, ok := lookup(version)
	if !ok {
		return errors.Wrapf(ErrUnsupportedVersion, "version %d", version)
	}
	dec := u.decoders[version]
	if dec == nil {
		dec = reg.factory()
		u.decoders[version] = dec
	}
	return dec.Decode(u.data, u.data, u.size, solid)
}

// copyExact moves size bytes and turns a short stream into
// io.ErrUnexpectedEOF.
func copyExact(dst io.Writer, src io.Reader, size int64) error {
	n, err := io.CopyN(dst, src, size)
	if err == io.EOF {
		return errors.Wrapf(io.ErrUnexpectedEOF, "decoded %d of %d bytes", n, size)
	}
	return err
}
