package codec

import (
	"io"

	brotli "github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	gzip "github.com/klauspost/pgzip"
	lz4 "github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// windowSize is how much chain output a solid deflate member may refer
// back to.
const windowSize = 32 * 1024

func init() {
	Register(VerDeflate, "deflate", func() Decoder { return &deflateDecoder{} })
	Register(VerGzip, "gzip", streamFactory(func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	}))
	Register(VerZstd, "zstd", streamFactory(func(r io.Reader) (io.ReadCloser, error) {
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}))
	Register(VerLZ4, "lz4", streamFactory(func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(lz4.NewReader(r)), nil
	}))
	Register(VerS2, "s2", streamFactory(func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(s2.NewReader(r)), nil
	}))
	Register(VerSnappy, "snappy", streamFactory(func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(snappy.NewReader(r)), nil
	}))
	Register(VerBrotli, "brotli", streamFactory(func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(brotli.NewReader(r)), nil
	}))
	Register(VerXZ, "xz", streamFactory(func(r io.Reader) (io.ReadCloser, error) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	}))
}

// streamDecoder handles codecs whose members are independent streams.
// The solid flag has no effect on them.
type streamDecoder struct {
	open func(io.Reader) (io.ReadCloser, error)
}

func streamFactory(open func(io.Reader) (io.ReadCloser, error)) Factory {
	return func() Decoder { return &streamDecoder{open: open} }
}

func (d *streamDecoder) Decode(src io.Reader, dst io.Writer, size int64, _ bool) error {
	r, err := d.open(src)
	if err != nil {
		return errors.Wrap(err, "decoder init")
	}
	defer r.Close()
	return copyExact(dst, r, size)
}

// deflateDecoder carries the tail of the chain's output from member to
// member as the preset dictionary.
type deflateDecoder struct {
	window []byte
}

func (d *deflateDecoder) Decode(src io.Reader, dst io.Writer, size int64, solid bool) error {
	if !solid {
		d.window = d.window[:0]
	}
	r := flate.NewReaderDict(src, d.window)
	defer r.Close()
	return copyExact(&windowWriter{w: dst, d: d}, r, size)
}

func (d *deflateDecoder) push(p []byte) {
	d.window = slideWindow(d.window, p)
}

type windowWriter struct {
	w io.Writer
	d *deflateDecoder
}

func (ww *windowWriter) Write(p []byte) (int, error) {
	n, err := ww.w.Write(p)
	ww.d.push(p[:n])
	return n, err
}

// slideWindow appends p and keeps only the last windowSize bytes.
func slideWindow(window, p []byte) []byte {
	if len(p) >= windowSize {
		return append(window[:0], p[len(p)-windowSize:]...)
	}
	window = append(window, p...)
	if over := len(window) - windowSize; over > 0 {
		copy(window, window[over:])
		window = window[:windowSize]
	}
	return window
}
