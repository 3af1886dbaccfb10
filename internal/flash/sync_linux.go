//go:build linux

package flash

import (
	"os"

	"golang.org/x/sys/unix"
)

// datasync flushes file data (not metadata) to stable storage.
func datasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
