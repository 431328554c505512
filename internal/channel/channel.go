// Package channel manages the named pipe shared by status producers and the consumer.
//
// There is one channel per host. The consumer creates it and keeps it open for reading
// for its whole lifetime; producers open it for writing, send one frame per write and
// reopen it after a failure.
package channel

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Name is the file name of the channel inside the temporary directory
const Name = "multi-i3status"

// ErrNoReader is returned by OpenWriter when no consumer has the channel open. Writers
// treat it as a transient condition.
var ErrNoReader = errors.New("no reader attached to channel")

// DefaultPath returns the well-known channel location
func DefaultPath() string {
	return filepath.Join(os.TempDir(), Name)
}

// Create creates the named pipe at path. An existing named pipe is reused; any other
// kind of file at path is an error.
func Create(path string) error {
	err := syscall.Mkfifo(path, 0700)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create channel %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat channel %s: %w", path, err)
	}
	if info.Mode()&fs.ModeNamedPipe == 0 {
		return fmt.Errorf("channel %s exists but is not a named pipe (mode %s)", path, info.Mode())
	}
	return nil
}

// OpenReader opens the channel for reading.
//
// The pipe is opened read-write: the reader then counts as a writer itself, so the read
// side never sees end-of-file when the last producer goes away, and reads block until
// the next frame arrives. The open never blocks either.
func OpenReader(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for reading: %w", err)
	}
	return file, nil
}

// OpenWriter opens the channel for writing without blocking. If no reader is attached
// the error wraps ErrNoReader; a missing channel file wraps fs.ErrNotExist.
func OpenWriter(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ENXIO) {
			return nil, fmt.Errorf("failed to open channel %s: %w", path, ErrNoReader)
		}
		return nil, fmt.Errorf("failed to open channel for writing: %w", err)
	}
	return file, nil
}

// HasReader reports whether some process currently has the channel open for reading
func HasReader(path string) (bool, error) {
	file, err := OpenWriter(path)
	if err != nil {
		if errors.Is(err, ErrNoReader) {
			return false, nil
		}
		return false, err
	}
	_ = file.Close()
	return true, nil
}

// Info describes the state of the channel file
type Info struct {
	Path      string
	Exists    bool
	IsFIFO    bool
	Mode      fs.FileMode
	HasReader bool
}

// Stat inspects the channel at path. A missing channel is not an error.
func Stat(path string) (Info, error) {
	info := Info{Path: path}

	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		return info, fmt.Errorf("failed to stat channel: %w", err)
	}
	info.Exists = true
	info.Mode = fi.Mode()
	info.IsFIFO = fi.Mode()&fs.ModeNamedPipe != 0
	if !info.IsFIFO {
		return info, nil
	}

	hasReader, err := HasReader(path)
	if err != nil {
		return info, err
	}
	info.HasReader = hasReader
	return info, nil
}
