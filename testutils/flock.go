package testutils

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// flock is an exclusive advisory lock on a file, used to serialize port allocation across test
// processes running concurrently on the same machine
type flock struct {
	path string
	fd   int
}

func newFlock(path string) *flock {
	return &flock{path: path}
}

func (f *flock) lock() {
	fd, err := unix.Open(f.path, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		panic(fmt.Sprintf("failed to open lock file %s: %v", f.path, err))
	}
	f.fd = fd
	if err := unix.Flock(f.fd, unix.LOCK_EX); err != nil {
		panic(fmt.Sprintf("failed to lock file %s: %v", f.path, err))
	}
}

func (f *flock) unlock() {
	if err := unix.Flock(f.fd, unix.LOCK_UN); err != nil {
		panic(fmt.Sprintf("failed to unlock file %s: %v", f.path, err))
	}
	if err := unix.Close(f.fd); err != nil {
		panic(fmt.Sprintf("failed to close lock file %s: %v", f.path, err))
	}
}
