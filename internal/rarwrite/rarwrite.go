// Package rarwrite writes RAR 1.5-4.x style archives: solid chains,
// volume sets, AES encrypted entries and Unicode names. Compressed entries
// use the module's own codec versions.
package rarwrite

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"goxr/internal/checksum"
	"goxr/internal/codec"
	"goxr/internal/rarcrypt"
)

const (
	// storedUnpVer is the version written for stored entries; it is the
	// lowest one that allows AES.
	storedUnpVer = 29
	methodNormal = 0x33
	writeBuffer  = 1 << 16
)

type Options struct {
	// Codec is the codec version for file data; 0 stores everything.
	Codec        uint8
	Speed        codec.Speed
	Solid        bool
	Password     string
	VolumeSize   int64
	NewNumbering bool
	Lock         bool
	HostOS       uint8
	UTF8Names    bool
	ExtTime      bool
	Comment      string
}

// Entry is one file or directory to store. Data is the file content.
type Entry struct {
	Name     string
	Data     []byte
	Dir      bool
	ModTime  time.Time
	Mode     os.FileMode
	Revision int
	Store    bool
	Password string
	// UnpVer writes Data verbatim as packed bytes under that codec
	// version.
	UnpVer uint8
	BadCRC bool
}

type volume struct {
	path    string
	f       *os.File
	bw      *bufio.Writer
	written int64
	blocks  int
}

type Writer struct {
	opts     Options
	path     string
	enc      *codec.Encoder
	vol      *volume
	volumes  []string
	members  int
	closed   bool
	tempName bool
}

// Create starts an archive whose first volume is path.
func Create(path string, opts Options) (*Writer, error) {
	w := &Writer{opts: opts, path: path}
	if opts.Codec != 0 {
		enc, err := codec.NewEncoder(opts.Codec, opts.Speed)
		if err != nil {
			return nil, err
		}
		w.enc = enc
	}
	w.tempName = w.multi() && opts.NewNumbering
	if err := w.openVolume(); err != nil {
		return nil, err
	}
	if opts.Comment != "" {
		if err := w.writeComment(opts.Comment); err != nil {
			w.abort()
			return nil, err
		}
	}
	return w, nil
}

// WriteArchive stores entries into a new archive at path and returns the
// volume paths in order.
func WriteArchive(path string, opts Options, entries []Entry) ([]string, error) {
	w, err := Create(path, opts)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := w.Add(e); err != nil {
			w.abort()
			return nil, errors.Wrapf(err, "add %v", e.Name)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return w.Volumes(), nil
}

func (w *Writer) multi() bool { return w.opts.VolumeSize > 0 }

// Volumes lists the written volume paths. It is complete after Close.
func (w *Writer) Volumes() []string { return w.volumes }

func (w *Writer) volumePath(n int) string {
	if !w.multi() || n == 0 && !w.opts.NewNumbering {
		return w.path
	}
	if w.tempName {
		return fmt.Sprintf("%s.tmp%d", w.path, n)
	}
	base := strings.TrimSuffix(w.path, filepath.Ext(w.path))
	n--
	prefix := byte('r')
	for n > 99 {
		n -= 100
		prefix++
	}
	return fmt.Sprintf("%s.%c%02d", base, prefix, n)
}

func (w *Writer) openVolume() error {
	n := len(w.volumes)
	p := w.volumePath(n)
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	w.vol = &volume{path: p, f: f, bw: bufio.NewWriterSize(f, writeBuffer)}
	w.volumes = append(w.volumes, p)

	var flags uint16
	if w.multi() {
		flags |= mainVolume
		if n == 0 {
			flags |= mainFirstVol
		}
	}
	if w.opts.Solid {
		flags |= mainSolid
	}
	if w.opts.NewNumbering {
		flags |= mainNewNum
	}
	if w.opts.Lock {
		flags |= mainLock
	}
	if w.opts.Comment != "" && n == 0 {
		flags |= mainComment
	}
	if err := w.write(markBlock); err != nil {
		return err
	}
	if err := w.write(mainHeader(flags)); err != nil {
		return err
	}
	w.vol.blocks = 0
	return nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.vol.bw.Write(b)
	w.vol.written += int64(n)
	return err
}

func (w *Writer) closeVolume(last bool) error {
	if err := w.write(endHeader(len(w.volumes)-1, w.multi(), last)); err != nil {
		return err
	}
	if err := w.vol.bw.Flush(); err != nil {
		return err
	}
	return w.vol.f.Close()
}

func (w *Writer) endSize() int64 {
	if w.multi() {
		return 9
	}
	return 7
}

// AddBlock writes a raw block of the given type and body. The body must
// not carry a payload.
func (w *Writer) AddBlock(typ byte, flags uint16, body []byte) error {
	b := blockStart(typ, flags)
	b.Write(body)
	w.vol.blocks++
	return w.write(sealBlock(b.Bytes()))
}

func (w *Writer) writeComment(text string) error {
	h := &fileHeader{
		typ:     blockNewSub,
		hostOS:  w.opts.HostOS,
		crc:     checksum.CRC32([]byte(text)),
		unpVer:  storedUnpVer,
		method:  codec.MethodStore,
		name:    []byte("CMT"),
		unpSize: uint64(len(text)),
	}
	h.packSize = h.unpSize
	if err := w.write(h.bytes()); err != nil {
		return err
	}
	return w.write([]byte(text))
}

// Add stores one entry, splitting it over volumes when needed.
func (w *Writer) Add(e Entry) error {
	if w.closed {
		return errors.New("rarwrite: writer closed")
	}
	name := filepath.ToSlash(strings.TrimPrefix(e.Name, "/"))
	if e.Revision > 0 {
		name += ";" + strconv.Itoa(e.Revision)
	}
	if w.opts.HostOS == HostMSDOS || w.opts.HostOS == HostWin32 {
		name = strings.ReplaceAll(name, "/", `\`)
	}
	nameBytes, unicode := encodeName(name, w.opts.UTF8Names)

	h := &fileHeader{
		typ:     blockFile,
		hostOS:  w.opts.HostOS,
		mtime:   e.ModTime,
		name:    nameBytes,
		extTime: w.opts.ExtTime && !e.ModTime.IsZero(),
		unpSize: uint64(len(e.Data)),
		crc:     checksum.CRC32(e.Data),
		attr:    w.attr(e),
		unpVer:  storedUnpVer,
		method:  codec.MethodStore,
	}
	if unicode {
		h.flags |= fileUnicode
	}
	if e.Revision > 0 {
		h.flags |= fileVersion
	}
	// stored members and directories stay out of the solid chain
	if w.opts.Solid && !e.Dir && (e.UnpVer != 0 || (!e.Store && w.enc != nil)) {
		if w.members > 0 {
			h.flags |= fileSolid
		}
		w.members++
	}
	if e.BadCRC {
		h.crc ^= 0xffffffff
	}

	if e.Dir {
		h.flags |= fileDirectory
		h.unpSize, h.crc = 0, 0
		return w.writeParts(h, nil)
	}

	packed := e.Data
	switch {
	case e.UnpVer != 0:
		h.unpVer, h.method = e.UnpVer, methodNormal
	case e.Store || w.enc == nil:
	default:
		var buf bytes.Buffer
		if err := w.enc.Compress(&buf, e.Data, h.flags&fileSolid != 0); err != nil {
			return err
		}
		packed = buf.Bytes()
		h.unpVer, h.method = w.opts.Codec, methodNormal
	}

	password := e.Password
	if password == "" {
		password = w.opts.Password
	}
	if password != "" {
		salt := make([]byte, rarcrypt.SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		var buf bytes.Buffer
		cw, err := rarcrypt.NewWriter(&buf, h.unpVer, password, salt)
		if err != nil {
			return err
		}
		if _, err := cw.Write(packed); err != nil {
			return err
		}
		if err := cw.Close(); err != nil {
			return err
		}
		packed = buf.Bytes()
		h.flags |= filePassword
		h.salt = salt
	}
	return w.writeParts(h, packed)
}

func (w *Writer) attr(e Entry) uint32 {
	mode := e.Mode.Perm()
	switch w.opts.HostOS {
	case HostUnix:
		if e.Dir {
			if mode == 0 {
				mode = 0o755
			}
			return 0o040000 | uint32(mode)
		}
		if mode == 0 {
			mode = 0o644
		}
		return 0o100000 | uint32(mode)
	default:
		if e.Dir {
			return 0x10
		}
		attr := uint32(0x20)
		if mode != 0 && mode&0o200 == 0 {
			attr |= 0x01
		}
		return attr
	}
}

// writeParts emits h and its payload, opening new volumes whenever the
// current one is full. Parts other than the last carry the CRC of their
// own packed bytes.
func (w *Writer) writeParts(h *fileHeader, packed []byte) error {
	fileCRC := h.crc
	baseFlags := h.flags
	remaining := packed
	first := true
	for {
		h.flags = baseFlags
		if !first {
			h.flags |= fileSplitBefore
		}
		h.packSize = uint64(len(remaining))
		h.crc = fileCRC
		hdrLen := int64(len(h.bytes()))
		room := w.opts.VolumeSize - w.vol.written - hdrLen - w.endSize()
		if room < 1 && w.multi() {
			if w.vol.blocks > 0 {
				if err := w.nextVolume(); err != nil {
					return err
				}
				continue
			}
			room = 1
		}
		if !w.multi() || int64(len(remaining)) <= room {
			if err := w.write(h.bytes()); err != nil {
				return err
			}
			w.vol.blocks++
			return w.write(remaining)
		}
		part := remaining[:room]
		h.flags |= fileSplitAfter
		h.packSize = uint64(len(part))
		h.crc = checksum.CRC32(part)
		if err := w.write(h.bytes()); err != nil {
			return err
		}
		if err := w.write(part); err != nil {
			return err
		}
		remaining = remaining[room:]
		first = false
		if err := w.nextVolume(); err != nil {
			return err
		}
	}
}

func (w *Writer) nextVolume() error {
	if err := w.closeVolume(false); err != nil {
		return err
	}
	return w.openVolume()
}

// Close finishes the last volume and gives new-style volume sets their
// final part names.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.closeVolume(true); err != nil {
		return err
	}
	if !w.tempName {
		return nil
	}
	base := strings.TrimSuffix(w.path, filepath.Ext(w.path))
	if ext := filepath.Ext(base); strings.HasPrefix(strings.ToLower(ext), ".part") {
		base = strings.TrimSuffix(base, ext)
	}
	digits := len(strconv.Itoa(len(w.volumes)))
	for i, tmp := range w.volumes {
		final := fmt.Sprintf("%s.part%0*d.rar", base, digits, i+1)
		if err := os.Rename(tmp, final); err != nil {
			return err
		}
		w.volumes[i] = final
	}
	return nil
}

func (w *Writer) abort() {
	if w.vol != nil && w.vol.f != nil {
		w.vol.f.Close()
	}
	for _, p := range w.volumes {
		os.Remove(p)
	}
	w.closed = true
}
