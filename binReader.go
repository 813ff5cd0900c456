package goxr

import (
	"bufio"
	"io"
	"os"
)

// volumeReader is one open volume file with a buffered cursor whose
// absolute position is tracked.
type volumeReader struct {
	file   *os.File
	reader *bufio.Reader
	pos    int64
	size   int64
}

func newVolumeReader(path string) (*volumeReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &volumeReader{
		file:   f,
		reader: bufio.NewReaderSize(f, readBuffer),
		size:   st.Size(),
	}, nil
}

func (vr *volumeReader) Read(p []byte) (int, error) {
	n, err := vr.reader.Read(p)
	vr.pos += int64(n)
	return n, err
}

// Seek moves to an absolute offset.
func (vr *volumeReader) Seek(offset int64) error {
	if offset == vr.pos {
		return nil
	}
	// Short forward moves stay inside the buffer
	if d := offset - vr.pos; d > 0 && d <= int64(vr.reader.Buffered()) {
		n, err := vr.reader.Discard(int(d))
		vr.pos += int64(n)
		return err
	}
	if _, err := vr.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	// Reset the buffered reader to discard its buffer
	vr.reader.Reset(vr.file)
	vr.pos = offset
	return nil
}

func (vr *volumeReader) Close() error {
	return vr.file.Close()
}
