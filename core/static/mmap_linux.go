//go:build linux

package static

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Map maps the file read-only and private. An empty file yields (nil, nil)
// since a zero-length mapping is invalid.
func Map(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("static: %s is a directory", path)
	}
	if fi.Size() == 0 {
		return nil, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("static: mmap %s: %w", path, err)
	}
	return data, nil
}

// Unmap releases a mapping returned by Map.
func Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
