package goxr

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// FileSink is where extracted entries are written.
type FileSink interface {
	Create(path string) (io.WriteCloser, error)
	// MkdirAll succeeds when the directory already exists.
	MkdirAll(path string) error
	SetAttributes(path string, attr uint32, host uint8, dir bool) error
	SetTimestamps(path string, modified, created, accessed time.Time) error
	Stat(path string) (os.FileInfo, error)
	Remove(path string) error
	FreeSpace(path string) (uint64, error)
}

type fileLike interface {
	io.Writer
	Sync() error
	Close() error
}

// bufferedFile batches writes to an output file.
type bufferedFile struct {
	file   fileLike
	writer *bufio.Writer
	sync   bool
}

func newBufferedFile(file fileLike, bufSize int, sync bool) *bufferedFile {
	return &bufferedFile{file: file, writer: bufio.NewWriterSize(file, bufSize), sync: sync}
}

func (bf *bufferedFile) Write(p []byte) (int, error) {
	return bf.writer.Write(p)
}

func (bf *bufferedFile) Close() error {
	if err := bf.writer.Flush(); err != nil {
		bf.file.Close()
		return err
	}
	if bf.sync {
		if err := bf.file.Sync(); err != nil {
			bf.file.Close()
			return err
		}
	}
	return bf.file.Close()
}

// OSSink writes to the local filesystem.
type OSSink struct {
	// Sync flushes every file to stable storage before it is closed.
	Sync bool
}

func (s OSSink) Create(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return newBufferedFile(f, writeBuffer, s.Sync), nil
}

func (OSSink) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return errors.Errorf("%v exists and is not a directory", path)
	}
	return nil
}

// SetAttributes applies the stored attribute word. Unix hosts store a
// mode; DOS style hosts only carry the read-only bit that matters here.
func (OSSink) SetAttributes(path string, attr uint32, host uint8, dir bool) error {
	var mode os.FileMode
	switch host {
	case HostUnix, HostBeOS:
		mode = os.FileMode(attr & 0o777)
		if mode == 0 {
			return nil
		}
	default:
		mode = 0o644
		if dir {
			mode = 0o755
		}
		if attr&0x01 != 0 {
			mode &^= 0o222
		}
	}
	return os.Chmod(path, mode)
}

// SetTimestamps sets the modification and access times. The creation
// time cannot be set portably and is ignored.
func (OSSink) SetTimestamps(path string, modified, created, accessed time.Time) error {
	if modified.IsZero() {
		return nil
	}
	if accessed.IsZero() {
		accessed = modified
	}
	return os.Chtimes(path, accessed, modified)
}

func (OSSink) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (OSSink) Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// FreeSpace reports the space available to the user on the filesystem
// holding path, or its nearest existing parent.
func (OSSink) FreeSpace(path string) (uint64, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	for {
		if ok, _ := fileExists(p); ok {
			break
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return availableBytes(p)
}
