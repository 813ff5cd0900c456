package goxr

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"goxr/internal/recovery"
)

// SidecarPath is the recovery sidecar of the volume set that volume
// belongs to: x.part01.rar and x.rar both give x.rev.
func SidecarPath(volume string) string {
	dir, file := filepath.Split(volume)
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	if ext := filepath.Ext(stem); strings.HasPrefix(strings.ToLower(ext), ".part") {
		stem = strings.TrimSuffix(stem, ext)
	}
	return dir + stem + ".rev"
}

// SidecarReconstructor rebuilds volumes from the sidecar next to the
// first volume.
type SidecarReconstructor struct{}

func (SidecarReconstructor) Reconstruct(firstVolume string) ([]string, error) {
	return recovery.Reconstruct(SidecarPath(firstVolume))
}

// CreateRecovery writes a parity sidecar for the volume set that volume
// belongs to and returns its path.
func CreateRecovery(volume string, parityShards int) (string, error) {
	h, err := OpenArchive(volume, nil)
	if err != nil {
		return "", err
	}
	newNumbering := h.NewNumbering
	h.Close()

	first := FirstVolumeName(volume, newNumbering)
	vols := volumeSet(first, newNumbering)
	if len(vols) == 0 {
		return "", errors.Wrapf(ErrOpenFailed, "%v", first)
	}
	rev := SidecarPath(first)
	if err := recovery.Create(rev, vols, parityShards); err != nil {
		return "", err
	}
	return rev, nil
}
