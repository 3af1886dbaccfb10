//go:build !linux

package flash

import "os"

func datasync(f *os.File) error {
	return f.Sync()
}
