// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

//go:build unix

package mpq

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileHandle is what readFileBlock needs from a cloned handle.
type fileHandle interface {
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// handleCloner hands out independent read handles onto the same
// underlying archive file, per spec §5's "clone_handle()" option.
type handleCloner struct {
	f *os.File
}

func newHandleCloner(f *os.File) (handleCloner, error) {
	return handleCloner{f: f}, nil
}

// clone duplicates the OS-level file descriptor via unix.Dup. The
// duplicate shares its file offset with the original, but reads go
// through ReadAt, which neither uses nor moves that offset, so no
// locking is required on the hot path.
func (c handleCloner) clone() (fileHandle, error) {
	fd, err := unix.Dup(int(c.f.Fd()))
	if err != nil {
		return nil, wrapf(err, "dup archive handle")
	}
	return os.NewFile(uintptr(fd), c.f.Name()), nil
}

func (c handleCloner) close() error {
	return c.f.Close()
}
