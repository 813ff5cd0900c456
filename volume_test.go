package goxr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"goxr/internal/rarwrite"
)

func TestVolumeNames(t *testing.T) {
	tests := []struct {
		path         string
		newNumbering bool
		next         string
		first        string
	}{
		{"x.rar", false, "x.r00", "x.rar"},
		{"x.r00", false, "x.r01", "x.rar"},
		{"x.r99", false, "x.s00", "x.rar"},
		{"X.RAR", false, "X.R00", "X.RAR"},
		{"x.part1.rar", true, "x.part2.rar", "x.part1.rar"},
		{"x.part09.rar", true, "x.part10.rar", "x.part01.rar"},
		{"x.part099.rar", true, "x.part100.rar", "x.part001.rar"},
		{"dir/set.part3.rar", true, "dir/set.part4.rar", "dir/set.part1.rar"},
		{"noext", false, "noext.r00", "noext"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			p := filepath.FromSlash(tc.path)
			if got := NextVolumeName(p, tc.newNumbering); got != filepath.FromSlash(tc.next) {
				t.Fatalf("next: got %q, want %q", got, tc.next)
			}
			if got := FirstVolumeName(p, tc.newNumbering); got != filepath.FromSlash(tc.first) {
				t.Fatalf("first: got %q, want %q", got, tc.first)
			}
		})
	}
}

func TestMergeFollowsSplitEntry(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	arc := buildArchive(t, dir, "mv.rar", rarwrite.Options{VolumeSize: 1500},
		rarwrite.Entry{Name: "split.bin", Data: data, ModTime: testTime})

	h, err := OpenArchive(arc, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()
	hdr, err := ReadNext(h)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	e := hdr.(*FileEntry)
	if !e.SplitAfter() || e.SplitBefore() {
		t.Fatalf("first part flags %v", e.Flags)
	}
	total := e.PackedSize
	parts := 1
	for h.last.SplitAfter() {
		res, err := Merge(h)
		if err != nil || res != NextVolumeOpened {
			t.Fatalf("merge %d: %v %v", parts, res, err)
		}
		if !h.last.SplitBefore() || h.last.Name != "split.bin" {
			t.Fatalf("continuation %q flags %v", h.last.Name, h.last.Flags)
		}
		total += h.last.PackedSize
		parts++
	}
	if total != int64(len(data)) {
		t.Fatalf("parts carry %d bytes, want %d", total, len(data))
	}
	if parts != h.VolumeIndex+1 || parts < 3 {
		t.Fatalf("%d parts over %d volumes", parts, h.VolumeIndex+1)
	}
}

func TestMergeMissingVolume(t *testing.T) {
	dir := t.TempDir()
	arc := buildArchive(t, dir, "gap.rar", rarwrite.Options{VolumeSize: 1500},
		rarwrite.Entry{Name: "gap.bin", Data: make([]byte, 4000), ModTime: testTime})
	if err := os.Remove(NextVolumeName(arc, false)); err != nil {
		t.Fatalf("remove: %v", err)
	}

	h, err := OpenArchive(arc, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()
	if _, err := ReadNext(h); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := Merge(h); !errors.Is(err, ErrNextVolumeMissing) {
		t.Fatalf("got %v, want next volume missing", err)
	}
	if KindOf(errors.Wrap(ErrNextVolumeMissing, "x")) != KindNextVolumeMissing {
		t.Fatalf("kind not recovered from wrapped error")
	}
}

func TestNeedsMerge(t *testing.T) {
	h := &ArchiveHandle{MultiVolume: true}
	if NeedsMerge(h, nil) {
		t.Fatalf("merge without a split entry")
	}
	h.last = &FileEntry{blockInfo: blockInfo{Flags: FlagSplitAfter}}
	if !NeedsMerge(h, nil) {
		t.Fatalf("no merge at end of stream with a split entry")
	}
	if !NeedsMerge(h, &EndOfArchive{NextVolume: true}) {
		t.Fatalf("end block with next volume ignored")
	}
	if NeedsMerge(h, &FileEntry{}) {
		t.Fatalf("merge on a file header")
	}
	if res, err := Merge(&ArchiveHandle{}); res != NoMoreVolumes || err != nil {
		t.Fatalf("single volume merge: %v %v", res, err)
	}
}

func TestVolumeSet(t *testing.T) {
	dir := t.TempDir()
	arc := buildArchive(t, dir, "vs.rar", rarwrite.Options{VolumeSize: 1200, NewNumbering: true},
		rarwrite.Entry{Name: "v.bin", Data: make([]byte, 3000), ModTime: testTime})
	vols := volumeSet(arc, true)
	if len(vols) < 3 {
		t.Fatalf("found %d volumes", len(vols))
	}
	for i := 1; i < len(vols); i++ {
		if vols[i] != NextVolumeName(vols[i-1], true) {
			t.Fatalf("volume %d is %v", i, vols[i])
		}
	}
	if got := FirstVolumeName(vols[len(vols)-1], true); got != arc {
		t.Fatalf("first of last is %v, want %v", got, arc)
	}
}
