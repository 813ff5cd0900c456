package goxr

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type MergeResult int

const (
	NextVolumeOpened MergeResult = iota
	NoMoreVolumes
)

// NeedsMerge reports whether reading must continue in the next volume:
// either the end block says so, or the volume ran out (hdr == nil) while
// the last entry was still split after it.
func NeedsMerge(h *ArchiveHandle, hdr BlockHeader) bool {
	switch b := hdr.(type) {
	case *EndOfArchive:
		return b.NextVolume
	case nil:
		return h.MultiVolume && h.last != nil && h.last.SplitAfter()
	}
	return false
}

// Merge replaces the handle's stream with the next volume. When the last
// entry read was split after, the continuation header of the new volume
// is read and checked, and the stream is left at its payload.
func Merge(h *ArchiveHandle) (MergeResult, error) {
	if !h.MultiVolume {
		return NoMoreVolumes, nil
	}
	next := NextVolumeName(h.Path, h.NewNumbering)
	if _, err := os.Stat(next); err != nil {
		return NoMoreVolumes, errors.Wrapf(ErrNextVolumeMissing, "%v", next)
	}
	nh, err := OpenArchive(next, h.charset)
	if err != nil {
		if errors.Is(err, ErrOpenFailed) {
			return NoMoreVolumes, errors.Wrapf(ErrNextVolumeMissing, "%v: %v", next, err)
		}
		return NoMoreVolumes, err
	}
	if !nh.MultiVolume {
		nh.Close()
		return NoMoreVolumes, errors.Wrapf(ErrMalformedHeader, "%v is not part of a volume set", next)
	}

	h.vr.Close()
	h.vr = nh.vr
	h.Path = next
	h.VolumeIndex++
	h.FirstVolume = nh.FirstVolume
	h.MarkerPos = nh.MarkerPos
	h.CurBlockPos = nh.CurBlockPos
	h.NextBlockPos = nh.NextBlockPos

	prev := h.last
	if prev == nil || !prev.SplitAfter() {
		return NextVolumeOpened, nil
	}
	for {
		hdr, err := ReadNext(h)
		if err != nil {
			return NoMoreVolumes, err
		}
		switch b := hdr.(type) {
		case *FileEntry:
			if !b.SplitBefore() || b.Name != prev.Name {
				return NoMoreVolumes, errors.Wrapf(ErrMalformedHeader, "%v does not continue %q", next, prev.Name)
			}
			return NextVolumeOpened, nil
		case *EndOfArchive:
			return NoMoreVolumes, errors.Wrapf(ErrMalformedHeader, "%v does not continue %q", next, prev.Name)
		}
		// Service blocks may precede the continuation
		h.advance()
	}
}

// volumeDigits locates the last run of digits before the extension.
func volumeDigits(name string) (int, int, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	end := len(stem)
	for end > 0 && !isDigit(stem[end-1]) {
		end--
	}
	if end == 0 {
		return 0, 0, false
	}
	start := end
	for start > 0 && isDigit(stem[start-1]) {
		start--
	}
	return start, end, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// matchCase gives s the case of the reference extension.
func matchCase(ref, s string) string {
	if strings.ToUpper(ref) == ref && strings.ToLower(ref) != ref {
		return strings.ToUpper(s)
	}
	return s
}

// FirstVolumeName maps any volume of a set to the first one.
// x.part03.rar gives x.part01.rar; x.r05 gives x.rar.
func FirstVolumeName(path string, newNumbering bool) string {
	dir, file := filepath.Split(path)
	if newNumbering {
		if start, end, ok := volumeDigits(file); ok {
			return dir + file[:start] + fmt.Sprintf("%0*d", end-start, 1) + file[end:]
		}
	}
	ext := filepath.Ext(file)
	if len(ext) == 4 && isDigit(ext[2]) && isDigit(ext[3]) {
		return dir + strings.TrimSuffix(file, ext) + matchCase(ext, ".rar")
	}
	return path
}

// NextVolumeName is the volume after path. x.part09.rar gives
// x.part10.rar; x.rar gives x.r00 and x.r99 gives x.s00.
func NextVolumeName(path string, newNumbering bool) string {
	dir, file := filepath.Split(path)
	if newNumbering {
		if start, end, ok := volumeDigits(file); ok {
			n, _ := strconv.Atoi(file[start:end])
			return dir + file[:start] + fmt.Sprintf("%0*d", end-start, n+1) + file[end:]
		}
	}
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if len(ext) == 4 && isDigit(ext[2]) && isDigit(ext[3]) {
		n, _ := strconv.Atoi(ext[2:])
		letter := ext[1]
		n++
		if n > 99 {
			n = 0
			letter++
		}
		return dir + stem + fmt.Sprintf(".%c%02d", letter, n)
	}
	if ext == "" {
		return dir + file + ".r00"
	}
	return dir + stem + matchCase(ext, ".r00")
}
