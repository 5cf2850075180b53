//go:build !linux

package http

import "syscall"

func closeFd(fd int) {
	if fd >= 0 {
		syscall.Close(fd)
	}
}
