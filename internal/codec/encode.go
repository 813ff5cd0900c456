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

// Speed trades ratio for time across all encoders.
type Speed uint8

const (
	SpeedFastest Speed = iota
	SpeedDefault
	SpeedBetterCompression
	SpeedBestCompression
)

// Encoder is the writing counterpart of the built in decoders. It keeps
// the deflate window so solid chains can be produced.
type Encoder struct {
	version uint8
	speed   Speed
	window  []byte
}

func NewEncoder(version uint8, speed Speed) (*Encoder, error) {
	if version < VerDeflate || version > VerXZ {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "no encoder for version %d", version)
	}
	return &Encoder{version: version, speed: speed}, nil
}

// Compress writes data as one member into w.
func (e *Encoder) Compress(w io.Writer, data []byte, solid bool) error {
	zw, err := e.writer(w, solid)
	if err != nil {
		return err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if e.version == VerDeflate {
		e.window = slideWindow(e.window, data)
	}
	return nil
}

func (e *Encoder) writer(w io.Writer, solid bool) (io.WriteCloser, error) {
	switch e.version {
	case VerDeflate:
		if !solid {
			e.window = e.window[:0]
		}
		lvl := flate.BestSpeed
		switch e.speed {
		case SpeedDefault:
			lvl = flate.DefaultCompression
		case SpeedBetterCompression:
			lvl = 8
		case SpeedBestCompression:
			lvl = flate.BestCompression
		}
		return flate.NewWriterDict(w, lvl, e.window)
	case VerGzip:
		lvl := gzip.BestSpeed
		switch e.speed {
		case SpeedDefault:
			lvl = gzip.DefaultCompression
		case SpeedBetterCompression:
			lvl = 8
		case SpeedBestCompression:
			lvl = gzip.BestCompression
		}
		return gzip.NewWriterLevel(w, lvl)
	case VerZstd:
		level := zstd.SpeedFastest
		switch e.speed {
		case SpeedDefault:
			level = zstd.SpeedDefault
		case SpeedBetterCompression:
			level = zstd.SpeedBetterCompression
		case SpeedBestCompression:
			level = zstd.SpeedBestCompression
		}
		return zstd.NewWriter(w, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	case VerLZ4:
		zw := lz4.NewWriter(w)
		lvl := lz4.Fast
		switch e.speed {
		case SpeedDefault:
			lvl = lz4.Level3
		case SpeedBetterCompression:
			lvl = lz4.Level6
		case SpeedBestCompression:
			lvl = lz4.Level9
		}
		if err := zw.Apply(lz4.CompressionLevelOption(lvl)); err != nil {
			return nil, errors.Wrap(err, "lz4 level")
		}
		return zw, nil
	case VerS2:
		var opts []s2.WriterOption
		switch e.speed {
		case SpeedBetterCompression:
			opts = append(opts, s2.WriterBetterCompression())
		case SpeedBestCompression:
			opts = append(opts, s2.WriterBestCompression())
		}
		return s2.NewWriter(w, opts...), nil
	case VerSnappy:
		return snappy.NewBufferedWriter(w), nil
	case VerBrotli:
		level := brotli.BestSpeed
		switch e.speed {
		case SpeedDefault:
			level = brotli.DefaultCompression
		case SpeedBetterCompression:
			level = 9
		case SpeedBestCompression:
			level = brotli.BestCompression
		}
		return brotli.NewWriterLevel(w, level), nil
	default:
		return xz.NewWriter(w)
	}
}

// ParseSpeed maps a CLI name to a Speed.
func ParseSpeed(name string) (Speed, bool) {
	switch name {
	case "fastest", "fast":
		return SpeedFastest, true
	case "default", "":
		return SpeedDefault, true
	case "better":
		return SpeedBetterCompression, true
	case "best":
		return SpeedBestCompression, true
	}
	return SpeedDefault, false
}

// VersionByName maps a codec name such as "zstd" to its version.
func VersionByName(name string) (uint8, bool) {
	for v := VerDeflate; v <= VerXZ; v++ {
		if Name(v) == name {
			return v, true
		}
	}
	return 0, false
}
