package goxr

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"goxr/internal/codec"
	"goxr/internal/rarwrite"
)

var testTime = time.Date(2021, 3, 4, 5, 6, 8, 0, time.Local)

func fileEntry(name, data string) rarwrite.Entry {
	return rarwrite.Entry{Name: name, Data: []byte(data), ModTime: testTime}
}

func dirEntry(name string) rarwrite.Entry {
	return rarwrite.Entry{Name: name, Dir: true, ModTime: testTime}
}

// buildArchive writes entries to dir/name and returns the first volume.
func buildArchive(t *testing.T, dir, name string, opts rarwrite.Options, entries ...rarwrite.Entry) string {
	t.Helper()
	if opts.HostOS == 0 {
		opts.HostOS = rarwrite.HostUnix
	}
	opts.ExtTime = true
	vols, err := rarwrite.WriteArchive(filepath.Join(dir, name), opts, entries)
	if err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return vols[0]
}

func quietOptions() Options {
	return Options{Log: io.Discard, ErrLog: io.Discard, Stdout: io.Discard}
}

func runExtract(t *testing.T, req Request, opts Options) *Result {
	t.Helper()
	res, err := Extract(context.Background(), req, opts)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return res
}

// readTree maps every regular file below root to its content.
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		out[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("walk: %v", err)
	}
	return out
}

type decodeCall struct {
	version uint8
	solid   bool
	size    int64
}

// recordingUnpacker logs every call and then hands off to the real
// unpacker so decoder state is exercised for real.
type recordingUnpacker struct {
	calls *[]decodeCall
	size  int64
	inner *codec.Unpacker
}

func recordingFactory(calls *[]decodeCall) UnpackerFactory {
	return func(data codec.DataIO) Unpacker {
		return &recordingUnpacker{calls: calls, inner: codec.NewUnpacker(data)}
	}
}

func (r *recordingUnpacker) SetDestinationSize(n int64) {
	r.size = n
	r.inner.SetDestinationSize(n)
}

func (r *recordingUnpacker) Decode(version uint8, solid bool) error {
	*r.calls = append(*r.calls, decodeCall{version: version, solid: solid, size: r.size})
	return r.inner.Decode(version, solid)
}

// scriptedPrompter answers password prompts from a queue.
type scriptedPrompter struct {
	replies   []PasswordReply
	asked     []string
	retry     bool
	retries   int
	overwrite []OverwriteReply
}

func (sp *scriptedPrompter) AskPassword(name string) (PasswordReply, error) {
	sp.asked = append(sp.asked, name)
	if len(sp.replies) == 0 {
		return PasswordReply{Scope: ScopeCancel}, nil
	}
	r := sp.replies[0]
	sp.replies = sp.replies[1:]
	return r, nil
}

func (sp *scriptedPrompter) ConfirmRetry(name string) bool {
	sp.retries++
	return sp.retry
}

func (sp *scriptedPrompter) AskOverwrite(path string) (OverwriteReply, error) {
	if len(sp.overwrite) == 0 {
		return OverwriteNo, nil
	}
	r := sp.overwrite[0]
	sp.overwrite = sp.overwrite[1:]
	return r, nil
}
