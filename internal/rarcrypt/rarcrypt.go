// Package rarcrypt implements the RAR 3.x entry cipher: an AES-128-CBC
// stream keyed from the password and an optional 8-byte salt through
// 0x40000 rounds of SHA-1.
package rarcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"io"
	"unicode/utf16"

	"github.com/pkg/errors"
)

const (
	hashRounds = 0x40000
	SaltSize   = 8

	// MinVersion is the oldest codec version using this cipher. Older
	// versions used the 1.5 and 2.0 ciphers, which are not supported.
	MinVersion = 29
)

var ErrUnsupportedVersion = errors.New("unsupported encryption version")

// DeriveKey computes the AES key and IV for password and salt.
func DeriveKey(password string, salt []byte) (key, iv [16]byte) {
	wide := utf16.Encode([]rune(password))
	raw := make([]byte, 0, len(wide)*2+len(salt))
	for _, c := range wide {
		raw = append(raw, byte(c), byte(c>>8))
	}
	raw = append(raw, salt...)

	h := sha1.New()
	var num [3]byte
	for i := 0; i < hashRounds; i++ {
		h.Write(raw)
		num[0] = byte(i)
		num[1] = byte(i >> 8)
		num[2] = byte(i >> 16)
		h.Write(num[:])
		if i%(hashRounds/16) == 0 {
			d := h.Sum(nil)
			iv[i/(hashRounds/16)] = d[19]
		}
	}
	d := h.Sum(nil)
	// The key takes the digest as little endian words.
	for w := 0; w < 4; w++ {
		for b := 0; b < 4; b++ {
			key[w*4+b] = d[w*4+3-b]
		}
	}
	return key, iv
}

func checkVersion(version uint8) error {
	if version < MinVersion {
		return errors.Wrapf(ErrUnsupportedVersion, "version %d", version)
	}
	return nil
}

type cbcReader struct {
	r    io.Reader
	mode cipher.BlockMode
	raw  []byte
	buf  []byte
	err  error
}

// NewReader returns a reader decrypting r. Trailing bytes that do not
// fill a whole cipher block are dropped.
func NewReader(r io.Reader, version uint8, password string, salt []byte) (io.Reader, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	key, iv := DeriveKey(password, salt)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &cbcReader{
		r:    r,
		mode: cipher.NewCBCDecrypter(block, iv[:]),
		raw:  make([]byte, 64*aes.BlockSize),
	}, nil
}

func (c *cbcReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		n, err := io.ReadFull(c.r, c.raw)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			err = io.EOF
		}
		c.err = err
		n -= n % aes.BlockSize
		if n > 0 {
			c.mode.CryptBlocks(c.raw[:n], c.raw[:n])
			c.buf = c.raw[:n]
		}
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Writer encrypts into an underlying writer. Close pads the final block
// with zeros; it does not close the underlying writer.
type Writer struct {
	w       io.Writer
	mode    cipher.BlockMode
	pending []byte
	written int64
}

func NewWriter(w io.Writer, version uint8, password string, salt []byte) (*Writer, error) {
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	key, iv := DeriveKey(password, salt)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, mode: cipher.NewCBCEncrypter(block, iv[:])}, nil
}

func (cw *Writer) Write(p []byte) (int, error) {
	cw.pending = append(cw.pending, p...)
	full := len(cw.pending) - len(cw.pending)%aes.BlockSize
	if full > 0 {
		if err := cw.flush(cw.pending[:full]); err != nil {
			return 0, err
		}
		cw.pending = append(cw.pending[:0], cw.pending[full:]...)
	}
	return len(p), nil
}

func (cw *Writer) flush(b []byte) error {
	out := make([]byte, len(b))
	cw.mode.CryptBlocks(out, b)
	n, err := cw.w.Write(out)
	cw.written += int64(n)
	return err
}

func (cw *Writer) Close() error {
	if len(cw.pending) == 0 {
		return nil
	}
	pad := make([]byte, aes.BlockSize-len(cw.pending))
	cw.pending = append(cw.pending, pad...)
	err := cw.flush(cw.pending)
	cw.pending = nil
	return err
}

// Written is the ciphertext length produced so far.
func (cw *Writer) Written() int64 { return cw.written }
