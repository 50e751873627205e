package processor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fwupload/internal/logger"
	"fwupload/pkg/types"
	"fwupload/pkg/utils"

	"go.uber.org/zap"
)

// FirmwareReader hands out a firmware file in fixed-size chunks
type FirmwareReader struct {
	file      *os.File
	meta      types.FileMetadata
	buf       []byte
	sent      int64
	exhausted bool
}

// OpenFirmware opens path read-only. chunkSize bounds every chunk returned by NextChunk.
func OpenFirmware(path string, chunkSize int) (*FirmwareReader, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	logger.Get().Debug("File prepared for reading",
		zap.String("path", path),
		zap.Int64("size", stat.Size()),
		zap.String("human_size", utils.FormatFileSize(stat.Size())))

	return &FirmwareReader{
		file: file,
		meta: types.FileMetadata{
			Name: filepath.Base(path),
			Path: path,
			Size: stat.Size(),
		},
		buf: make([]byte, chunkSize),
	}, nil
}

// Metadata returns the name and size captured when the file was opened
func (r *FirmwareReader) Metadata() types.FileMetadata {
	return r.meta
}

// Sent returns how many bytes NextChunk has handed out so far
func (r *FirmwareReader) Sent() int64 {
	return r.sent
}

// NextChunk returns the next chunk of at most chunkSize bytes, and never
// past the size recorded at open. It returns io.EOF once the file is
// exhausted or a read yields no data. The returned slice is only valid
// until the next call.
func (r *FirmwareReader) NextChunk() ([]byte, error) {
	if r.exhausted || r.sent >= r.meta.Size {
		r.exhausted = true
		return nil, io.EOF
	}

	want := len(r.buf)
	if remaining := r.meta.Size - r.sent; remaining < int64(want) {
		want = int(remaining)
	}

	n, err := io.ReadFull(r.file, r.buf[:want])
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// file shrank after open; send what is there and stop
		r.exhausted = true
	default:
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if n == 0 {
		return nil, io.EOF
	}

	r.sent += int64(n)
	return r.buf[:n], nil
}

// Close closes the underlying file
func (r *FirmwareReader) Close() error {
	return r.file.Close()
}
