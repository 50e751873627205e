package app

import (
	"errors"
	"fmt"
)

// ErrNoFiles is returned when validation leaves nothing to upload
var ErrNoFiles = errors.New("no valid firmware files to upload")

// FileError reports a failure reading a firmware file
type FileError struct {
	Path string
	Op   string // "open" or "read"
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("firmware file %s: %s failed: %v", e.Path, e.Op, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
