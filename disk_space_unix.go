//go:build !windows

package goxr

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// availableBytes is the space an unprivileged writer can still use on
// the filesystem holding dir.
func availableBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, errors.Wrapf(err, "statfs %v", dir)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
