//go:build !linux

package static

import (
	"fmt"
	"os"
)

// Map reads the whole file where mmap is unavailable.
func Map(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("static: %s is a directory", path)
	}
	if fi.Size() == 0 {
		return nil, nil
	}
	return os.ReadFile(path)
}

// Unmap is a no-op.
func Unmap(data []byte) error { return nil }
