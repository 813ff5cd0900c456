package goxr

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"

	"goxr/internal/codec"
	"goxr/internal/rarwrite"
)

func TestExtractToMemory(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(3))
	big := make([]byte, 3*memoryBufferSize+123)
	rng.Read(big)
	arc := buildArchive(t, dir, "mem.rar", rarwrite.Options{Codec: codec.VerLZ4, Solid: true},
		fileEntry("first.txt", "decoded only to reach the next one"),
		rarwrite.Entry{Name: "big.bin", Data: big, ModTime: testTime},
		fileEntry("last.txt", "last"))

	rc, err := ExtractToMemory(context.Background(), Request{}, arc, "big.bin")
	if err != nil {
		t.Fatalf("extract to memory: %v", err)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	rc.Close()
	if !bytes.Equal(got, big) {
		t.Fatalf("got %d bytes, want %d", len(got), len(big))
	}
}

func TestExtractToMemoryErrors(t *testing.T) {
	dir := t.TempDir()
	bad := fileEntry("bad.txt", "bad")
	bad.BadCRC = true
	arc := buildArchive(t, dir, "memerr.rar", rarwrite.Options{}, bad, fileEntry("ok.txt", "ok"))

	rc, err := ExtractToMemory(context.Background(), Request{}, arc, "bad.txt")
	if err != nil {
		t.Fatalf("extract to memory: %v", err)
	}
	_, err = io.ReadAll(rc)
	rc.Close()
	if KindOf(err) != KindBrokenEntry {
		t.Fatalf("got %v, want broken entry", err)
	}

	rc, _ = ExtractToMemory(context.Background(), Request{}, arc, "absent.txt")
	_, err = io.ReadAll(rc)
	rc.Close()
	if err == nil {
		t.Fatalf("missing entry read cleanly")
	}

	if _, err := ExtractToMemory(context.Background(), Request{}, arc, ""); err == nil {
		t.Fatalf("empty name accepted")
	}
}

func TestExtractToMemoryEarlyClose(t *testing.T) {
	dir := t.TempDir()
	big := bytes.Repeat([]byte("close me early "), memoryBufferSize/4)
	arc := buildArchive(t, dir, "close.rar", rarwrite.Options{}, rarwrite.Entry{Name: "big.bin", Data: big, ModTime: testTime})

	rc, err := ExtractToMemory(context.Background(), Request{}, arc, "big.bin")
	if err != nil {
		t.Fatalf("extract to memory: %v", err)
	}
	buf := make([]byte, 10)
	if _, err := io.ReadFull(rc, buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		rc.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(10 * time.Second):
		t.Fatalf("close did not unblock the producer")
	}
}

func TestMemoryPipe(t *testing.T) {
	mp := newMemoryPipe(context.Background())
	payload := bytes.Repeat([]byte{1, 2, 3, 4, 5}, memoryBufferSize)
	go func() {
		for off := 0; off < len(payload); off += 1000 {
			end := off + 1000
			if end > len(payload) {
				end = len(payload)
			}
			if _, err := mp.Write(payload[off:end]); err != nil {
				mp.finish(err)
				return
			}
		}
		mp.finish(nil)
	}()
	got, err := io.ReadAll(mp)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %d bytes, want %d", len(got), len(payload))
	}
	mp.Close()

	failed := newMemoryPipe(context.Background())
	go failed.finish(ErrBrokenEntry)
	if _, err := io.ReadAll(failed); !errors.Is(err, ErrBrokenEntry) {
		t.Fatalf("producer error not reported: %v", err)
	}
}

func TestMemoryPipeContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mp := newMemoryPipe(ctx)
	if _, err := mp.Write(make([]byte, 10)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	cancel()
	// the only buffer is still filled, so this blocks until ctx ends
	if _, err := mp.Write(make([]byte, 10)); !errors.Is(err, context.Canceled) {
		t.Fatalf("write after cancel: %v", err)
	}
	mp.finish(nil)
}
