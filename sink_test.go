package goxr

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// errWriter always returns an error on Write
type errWriter struct{}

func (errWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write error")
}

func TestBufferedFileClosePropagatesError(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bf")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	bf := &bufferedFile{
		file:   f,
		writer: bufio.NewWriterSize(errWriter{}, 32),
	}
	bf.writer.WriteByte('a')
	if err := bf.Close(); err == nil {
		t.Fatal("expected close error, got nil")
	}
}

func TestOSSink(t *testing.T) {
	dir := t.TempDir()
	sink := OSSink{Sync: true}

	p := filepath.Join(dir, "a", "b", "f.txt")
	w, err := sink.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := os.ReadFile(p)
	if err != nil || string(got) != "hello" {
		t.Fatalf("read back %q, %v", got, err)
	}

	if err := sink.MkdirAll(filepath.Join(dir, "a")); err != nil {
		t.Fatalf("mkdir of existing dir: %v", err)
	}
	if err := sink.MkdirAll(p); err == nil {
		t.Fatalf("mkdir over a file should fail")
	}

	mt := time.Date(2020, 5, 6, 7, 8, 10, 0, time.UTC)
	if err := sink.SetTimestamps(p, mt, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("timestamps: %v", err)
	}
	fi, err := sink.Stat(p)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !fi.ModTime().Equal(mt) {
		t.Fatalf("mtime %v, want %v", fi.ModTime(), mt)
	}

	if err := sink.SetAttributes(p, 0o100600, HostUnix, false); err != nil {
		t.Fatalf("attributes: %v", err)
	}
	fi, _ = os.Stat(p)
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("mode %v", fi.Mode().Perm())
	}

	if free, err := sink.FreeSpace(filepath.Join(dir, "missing", "deeper")); err != nil || free == 0 {
		t.Fatalf("free space %v, %v", free, err)
	}

	if err := sink.Remove(p); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := sink.Remove(p); err != nil {
		t.Fatalf("remove of missing file: %v", err)
	}
}
