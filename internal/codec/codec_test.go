package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
)

type pipeIO struct {
	src io.Reader
	out bytes.Buffer
}

func (p *pipeIO) Read(b []byte) (int, error)  { return p.src.Read(b) }
func (p *pipeIO) Write(b []byte) (int, error) { return p.out.Write(b) }

func sample(seed byte, n int) []byte {
	out := make([]byte, n)
	x := uint32(seed) + 1
	for i := range out {
		x = x*1103515245 + 12345
		out[i] = byte(x >> 16)
	}
	return out
}

func TestAllCodecs(t *testing.T) {
	cases := []struct {
		name    string
		version uint8
	}{
		{"deflate", VerDeflate},
		{"gzip", VerGzip},
		{"zstd", VerZstd},
		{"lz4", VerLZ4},
		{"s2", VerS2},
		{"snappy", VerSnappy},
		{"brotli", VerBrotli},
		{"xz", VerXZ},
	}

	content := bytes.Repeat([]byte("codec test "), 500)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := NewEncoder(tc.version, SpeedDefault)
			if err != nil {
				t.Fatalf("encoder: %v", err)
			}
			var packed bytes.Buffer
			if err := enc.Compress(&packed, content, false); err != nil {
				t.Fatalf("compress: %v", err)
			}
			if Name(tc.version) != tc.name {
				t.Fatalf("name %q", Name(tc.version))
			}

			data := &pipeIO{src: &packed}
			u := NewUnpacker(data)
			u.SetDestinationSize(int64(len(content)))
			if err := u.Decode(tc.version, false); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(data.out.Bytes(), content) {
				t.Fatalf("content mismatch")
			}
		})
	}
}

func TestShortStream(t *testing.T) {
	enc, _ := NewEncoder(VerZstd, SpeedFastest)
	var packed bytes.Buffer
	if err := enc.Compress(&packed, []byte("tiny"), false); err != nil {
		t.Fatalf("compress: %v", err)
	}
	u := NewUnpacker(&pipeIO{src: &packed})
	u.SetDestinationSize(100)
	if err := u.Decode(VerZstd, false); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	for _, v := range []uint8{15, 20, 26, 29, 36} {
		u := NewUnpacker(&pipeIO{src: bytes.NewReader(nil)})
		err := u.Decode(v, false)
		if !errors.Is(err, ErrUnsupportedVersion) {
			t.Fatalf("version %d: got %v", v, err)
		}
		if Supported(v) {
			t.Fatalf("version %d should not be registered", v)
		}
	}
	if Name(29) != "rar29" {
		t.Fatalf("name %q", Name(29))
	}
}

// Members of a solid deflate chain refer back into earlier output, so
// they only decode in order.
func TestSolidChain(t *testing.T) {
	first := sample(1, 4000)
	second := sample(2, 3000)
	third := append(append([]byte{}, first...), second[:1000]...)
	members := [][]byte{first, second, third}

	enc, _ := NewEncoder(VerDeflate, SpeedDefault)
	packed := make([][]byte, len(members))
	for i, m := range members {
		var buf bytes.Buffer
		if err := enc.Compress(&buf, m, i > 0); err != nil {
			t.Fatalf("compress %d: %v", i, err)
		}
		packed[i] = buf.Bytes()
	}
	if len(packed[2]) >= len(third)/2 {
		t.Fatalf("third member did not use the window: %d bytes", len(packed[2]))
	}

	data := &pipeIO{}
	u := NewUnpacker(data)
	for i, m := range members {
		data.out.Reset()
		data.src = bytes.NewReader(packed[i])
		u.SetDestinationSize(int64(len(m)))
		if err := u.Decode(VerDeflate, i > 0); err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if !bytes.Equal(data.out.Bytes(), m) {
			t.Fatalf("member %d mismatch", i)
		}
	}

	fresh := &pipeIO{src: bytes.NewReader(packed[2])}
	u = NewUnpacker(fresh)
	u.SetDestinationSize(int64(len(third)))
	err := u.Decode(VerDeflate, true)
	if err == nil && bytes.Equal(fresh.out.Bytes(), third) {
		t.Fatalf("third member decoded without its predecessors")
	}
}

func TestSlideWindow(t *testing.T) {
	w := slideWindow(nil, sample(3, windowSize-10))
	w = slideWindow(w, []byte("0123456789abcdef"))
	if len(w) != windowSize {
		t.Fatalf("window len %d", len(w))
	}
	if !bytes.HasSuffix(w, []byte("abcdef")) {
		t.Fatalf("window lost its tail")
	}
	big := sample(4, windowSize+100)
	w = slideWindow(w, big)
	if !bytes.Equal(w, big[100:]) {
		t.Fatalf("window not trimmed to the tail")
	}
}
