//go:build windows

package goxr

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// availableBytes is the space left to the calling user on the volume
// holding dir.
func availableBytes(dir string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "free space of %v", dir)
	}
	var avail, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &avail, &total, &free); err != nil {
		return 0, errors.Wrapf(err, "free space of %v", dir)
	}
	return avail, nil
}
