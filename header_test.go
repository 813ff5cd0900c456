package goxr

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"

	"goxr/internal/codec"
	"goxr/internal/rarwrite"
)

// readEntries collects every file header of a single volume archive.
func readEntries(t *testing.T, path string) []*FileEntry {
	t.Helper()
	h, err := OpenArchive(path, charmap.CodePage437)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()
	var out []*FileEntry
	for {
		hdr, err := ReadNext(h)
		if errors.Is(err, ErrEndOfStream) {
			return out
		}
		if err != nil {
			t.Fatalf("read next: %v", err)
		}
		switch b := hdr.(type) {
		case *FileEntry:
			out = append(out, b)
		case *EndOfArchive:
			return out
		}
		h.advance()
	}
}

func TestReadEntries(t *testing.T) {
	dir := t.TempDir()
	arc := buildArchive(t, dir, "h.rar", rarwrite.Options{Codec: codec.VerZstd, Solid: true},
		dirEntry("docs"), fileEntry("docs/a.txt", "alpha"), fileEntry("b.txt", "bravo bravo"))
	entries := readEntries(t, arc)
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}

	tests := []struct {
		name  string
		dir   bool
		size  int64
		solid bool
	}{
		{"docs", true, 0, false},
		{"docs/a.txt", false, 5, true},
		{"b.txt", false, 11, true},
	}
	for i, tc := range tests {
		e := entries[i]
		if e.Name != tc.name || e.IsDirectory() != tc.dir || e.UnpackedSize != tc.size {
			t.Fatalf("entry %d: %q dir=%v size=%d", i, e.Name, e.IsDirectory(), e.UnpackedSize)
		}
		if e.IsSolidMember != tc.solid {
			t.Fatalf("%v: solid member = %v", e.Name, e.IsSolidMember)
		}
		if !e.MTime.Equal(testTime) {
			t.Fatalf("%v: mtime %v", e.Name, e.MTime)
		}
		if e.HostOS != HostUnix {
			t.Fatalf("%v: host %d", e.Name, e.HostOS)
		}
	}
	if entries[1].ContinuesSolid() != false || entries[2].ContinuesSolid() != true {
		t.Fatalf("solid flags: %v %v", entries[1].ContinuesSolid(), entries[2].ContinuesSolid())
	}
	if entries[2].FileCRC != crc32.ChecksumIEEE([]byte("bravo bravo")) {
		t.Fatalf("crc %08x", entries[2].FileCRC)
	}
	if entries[2].UnpVer != codec.VerZstd {
		t.Fatalf("version %d", entries[2].UnpVer)
	}
}

func TestSolidChainMembers(t *testing.T) {
	dir := t.TempDir()
	stored := fileEntry("s.bin", "stored bytes")
	stored.Store = true
	arc := buildArchive(t, dir, "chain.rar", rarwrite.Options{Codec: codec.VerDeflate, Solid: true},
		dirEntry("d"), fileEntry("d/a.txt", "alpha alpha"), stored, fileEntry("b.txt", "alpha bravo"))
	entries := readEntries(t, arc)
	if len(entries) != 4 {
		t.Fatalf("got %d entries", len(entries))
	}
	member := []bool{false, true, false, true}
	continues := []bool{false, false, false, true}
	for i, e := range entries {
		if e.IsSolidMember != member[i] || e.ContinuesSolid() != continues[i] {
			t.Fatalf("%v: member %v continues %v", e.Name, e.IsSolidMember, e.ContinuesSolid())
		}
	}

	dest := filepath.Join(dir, "out")
	res := runExtract(t, Request{Archives: []string{arc}, Dest: dest}, quietOptions())
	if res.ErrorCount() != 0 {
		t.Fatalf("failures: %v", res.Failures)
	}
	sameTree(t, readTree(t, dest), map[string]string{"d/a.txt": "alpha alpha", "s.bin": "stored bytes", "b.txt": "alpha bravo"})
}

func TestMainHeaderFlags(t *testing.T) {
	dir := t.TempDir()
	arc := buildArchive(t, dir, "m.rar", rarwrite.Options{Solid: true, Lock: true, VolumeSize: 4096, NewNumbering: true},
		fileEntry("a.txt", "a"))
	h, err := OpenArchive(arc, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()
	if !h.Solid || !h.Locked || !h.MultiVolume || !h.NewNumbering || !h.FirstVolume {
		t.Fatalf("flags: %+v", h)
	}
	if h.MarkerPos != 0 || h.CurBlockPos != int64(len(rar4Marker)+mainHeadSize) {
		t.Fatalf("positions %d %d", h.MarkerPos, h.CurBlockPos)
	}
}

func TestExtTimePrecision(t *testing.T) {
	dir := t.TempDir()
	mt := time.Date(2022, 7, 1, 10, 20, 31, 123456700, time.Local)
	arc := buildArchive(t, dir, "t.rar", rarwrite.Options{}, rarwrite.Entry{Name: "t.txt", Data: []byte("t"), ModTime: mt})
	entries := readEntries(t, arc)
	if !entries[0].MTime.Equal(mt) {
		t.Fatalf("mtime %v, want %v", entries[0].MTime, mt)
	}
}

func TestUnicodeNames(t *testing.T) {
	dir := t.TempDir()
	names := []string{"naïve/日本語.txt", "Ελληνικά", "plain.txt"}
	for _, utf8Names := range []bool{false, true} {
		var in []rarwrite.Entry
		for _, n := range names {
			in = append(in, fileEntry(n, n))
		}
		arc := buildArchive(t, dir, "u.rar", rarwrite.Options{UTF8Names: utf8Names}, in...)
		entries := readEntries(t, arc)
		for i, e := range entries {
			if e.Name != names[i] {
				t.Fatalf("utf8=%v: got %q, want %q", utf8Names, e.Name, names[i])
			}
		}
	}
}

func TestDecodeName(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		host uint8
		want string
	}{
		{"dos_cp437", []byte{0x82, '.', 't', 'x', 't'}, HostMSDOS, "é.txt"},
		{"win_separators", []byte(`dir\sub\f.txt`), HostWin32, "dir/sub/f.txt"},
		{"unix_backslash_kept", []byte(`odd\name`), HostUnix, `odd\name`},
		{"unix_utf8", []byte("ü.txt"), HostUnix, "ü.txt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeName(tc.raw, 0, tc.host, charmap.CodePage437)
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHeaderCRCMismatch(t *testing.T) {
	dir := t.TempDir()
	arc := buildArchive(t, dir, "c.rar", rarwrite.Options{}, fileEntry("name.txt", "x"))
	raw, err := os.ReadFile(arc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// first byte of the stored name
	raw[len(rar4Marker)+mainHeadSize+blockHeadSize+fileHeadFixed] ^= 0x20
	if err := os.WriteFile(arc, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := OpenArchive(arc, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()
	if _, err := ReadNext(h); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("got %v, want malformed header", err)
	}
}

// rawMain builds a marker and a main header with the given flags.
func rawMain(flags uint16) []byte {
	b := make([]byte, mainHeadSize)
	b[2] = blockMain
	binary.LittleEndian.PutUint16(b[3:], flags)
	binary.LittleEndian.PutUint16(b[5:], mainHeadSize)
	binary.LittleEndian.PutUint16(b, uint16(crc32.ChecksumIEEE(b[2:])))
	return append(append([]byte{}, rar4Marker...), b...)
}

// rawLargeFile builds a stored file header carrying 64-bit size fields.
func rawLargeFile(packLow, unpLow, packHigh, unpHigh uint32, name string) []byte {
	size := blockHeadSize + fileHeadFixed + 8 + len(name)
	b := make([]byte, size)
	b[2] = blockFile
	binary.LittleEndian.PutUint16(b[3:], uint16(FlagLarge|flagLongBlock))
	binary.LittleEndian.PutUint16(b[5:], uint16(size))
	f := b[blockHeadSize:]
	binary.LittleEndian.PutUint32(f[0:], packLow)
	binary.LittleEndian.PutUint32(f[4:], unpLow)
	f[8] = HostUnix
	f[17] = 20
	f[18] = methodStore
	binary.LittleEndian.PutUint16(f[19:], uint16(len(name)))
	binary.LittleEndian.PutUint32(f[25:], packHigh)
	binary.LittleEndian.PutUint32(f[29:], unpHigh)
	copy(f[33:], name)
	binary.LittleEndian.PutUint16(b, uint16(crc32.ChecksumIEEE(b[2:])))
	return b
}

func TestNegativeSizes(t *testing.T) {
	const name = "huge.bin"
	headSize := uint32(blockHeadSize + fileHeadFixed + 8 + len(name))
	tests := []struct {
		name string
		hdr  []byte
	}{
		{"packed_rewinds_to_block", rawLargeFile(-headSize, 5, 0xffffffff, 0, name)},
		{"packed_negative", rawLargeFile(0xffffffff, 5, 0xffffffff, 0, name)},
		{"unpacked_negative", rawLargeFile(5, 5, 0, 0x80000000, name)},
	}
	dir := t.TempDir()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := filepath.Join(dir, tc.name+".rar")
			data := append(rawMain(0), tc.hdr...)
			data = append(data, "hello"...)
			if err := os.WriteFile(p, data, 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}

			h, err := OpenArchive(p, nil)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			_, err = ReadNext(h)
			h.Close()
			if !errors.Is(err, ErrMalformedHeader) {
				t.Fatalf("got %v, want malformed header", err)
			}

			for _, patterns := range [][]string{nil, {"nomatch"}} {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				res, err := Extract(ctx, Request{Archives: []string{p}, Patterns: patterns, Dest: filepath.Join(dir, "out")}, quietOptions())
				cancel()
				if err != nil {
					t.Fatalf("extract: %v", err)
				}
				if res.Break || res.Errors[KindMalformedHeader] != 1 || res.Seen != 0 {
					t.Fatalf("patterns %v: break %v seen %d errors %v", patterns, res.Break, res.Seen, res.Errors)
				}
			}
		})
	}
}

func TestOpenFailures(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"garbage", []byte("PK\x03\x04 definitely a zip"), ErrNotAnArchive},
		{"empty", nil, ErrNotAnArchive},
		{"rar5", append([]byte("Rar!\x1a\x07\x01\x00"), make([]byte, 32)...), ErrNotAnArchive},
		{"rar14", []byte("RE~^ old"), ErrNotAnArchive},
		{"encrypted_headers", rawMain(uint16(mainPassword)), ErrOpenFailed},
		{"truncated_main", rawMain(0)[:12], ErrMalformedHeader},
	}
	dir := t.TempDir()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := filepath.Join(dir, tc.name+".rar")
			if err := os.WriteFile(p, tc.data, 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := OpenArchive(p, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := OpenArchive(filepath.Join(dir, "absent.rar"), nil); !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("missing file: %v", err)
	}
}

func TestSelfExtractingStub(t *testing.T) {
	dir := t.TempDir()
	arc := buildArchive(t, dir, "plain.rar", rarwrite.Options{}, fileEntry("inside.txt", "inside"))
	raw, err := os.ReadFile(arc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	stub := bytes.Repeat([]byte{0x4d, 0x5a, 0x90, 0x00}, 4096)
	sfx := filepath.Join(dir, "setup.exe")
	if err := os.WriteFile(sfx, append(stub, raw...), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := OpenArchive(sfx, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if h.MarkerPos != int64(len(stub)) {
		t.Fatalf("marker at %d, want %d", h.MarkerPos, len(stub))
	}
	h.Close()

	dest := filepath.Join(dir, "out")
	runExtract(t, Request{Archives: []string{sfx}, Dest: dest}, quietOptions())
	sameTree(t, readTree(t, dest), map[string]string{"inside.txt": "inside"})
}

func TestParseRevision(t *testing.T) {
	tests := map[string]int{"a.txt;3": 3, "a.txt": 0, "a;b": 0, "x;12": 12, "x;-1": 0}
	for in, want := range tests {
		if got := parseRevision(in); got != want {
			t.Fatalf("%q: got %d, want %d", in, got, want)
		}
	}
}

func TestParseDosTime(t *testing.T) {
	want := time.Date(2020, 2, 29, 23, 59, 58, 0, time.Local)
	v := uint32(58/2) | 59<<5 | 23<<11 | 29<<16 | 2<<21 | uint32(2020-1980)<<25
	if got := parseDosTime(v); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !parseDosTime(0).IsZero() {
		t.Fatalf("zero DOS time is not the zero time")
	}
}
