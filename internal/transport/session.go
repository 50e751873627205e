package transport

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"

	"fwupload/internal/config"
	"fwupload/internal/logger"

	"go.uber.org/zap"
)

// Session owns one open serial port for the lifetime of a run
type Session struct {
	name    string
	port    Port
	written int64
	writes  int

	pending []byte
	readBuf []byte

	closeOnce sync.Once
	closeErr  error
}

// OpenSession opens the configured port with open. Errors are always *PortError.
func OpenSession(cfg config.SerialConfig, open Opener) (*Session, error) {
	port, err := open(cfg)
	if err != nil {
		var portErr *PortError
		if errors.As(err, &portErr) {
			return nil, err
		}
		return nil, &PortError{Port: cfg.Port, Op: "open", Err: err}
	}
	if port == nil {
		return nil, &PortError{Port: cfg.Port, Op: "open", Err: errors.New("opener returned no port")}
	}
	return &Session{name: cfg.Port, port: port}, nil
}

// Name returns the port identifier
func (s *Session) Name() string {
	return s.name
}

// Write sends one chunk. A short write is reported as io.ErrShortWrite.
func (s *Session) Write(chunk []byte) error {
	n, err := s.port.Write(chunk)
	s.written += int64(n)
	s.writes++
	if err != nil {
		return &PortError{Port: s.name, Op: "write", Err: err}
	}
	if n != len(chunk) {
		return &PortError{Port: s.name, Op: "write", Err: io.ErrShortWrite}
	}
	return nil
}

// ErrReadTimeout is returned when the device sends nothing within the read timeout
var ErrReadTimeout = errors.New("no data before read timeout")

// ReadLine returns the next line sent by the device, without the trailing
// "\r\n". Bytes of an unfinished line are kept for the next call.
func (s *Session) ReadLine() (string, error) {
	if s.readBuf == nil {
		s.readBuf = make([]byte, 256)
	}
	for {
		if idx := bytes.IndexByte(s.pending, '\n'); idx >= 0 {
			line := strings.TrimRight(string(s.pending[:idx]), "\r")
			s.pending = s.pending[idx+1:]
			return line, nil
		}

		n, err := s.port.Read(s.readBuf)
		s.pending = append(s.pending, s.readBuf[:n]...)
		if n > 0 {
			logger.Get().Debug("Serial data received",
				zap.String("port", s.name),
				zap.ByteString("ascii", s.readBuf[:n]),
				zap.Int("bytes", n))
			continue
		}
		// tarm reports an expired read timeout as io.EOF on unix and as an empty read on windows
		if err != nil && !errors.Is(err, io.EOF) {
			return "", &PortError{Port: s.name, Op: "read", Err: err}
		}
		return "", &PortError{Port: s.name, Op: "read", Err: ErrReadTimeout}
	}
}

// Written returns the total number of bytes accepted by the port
func (s *Session) Written() int64 {
	return s.written
}

// Writes returns the number of Write calls made
func (s *Session) Writes() int {
	return s.writes
}

// Close closes the port. Only the first call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.port.Close(); err != nil {
			s.closeErr = &PortError{Port: s.name, Op: "close", Err: err}
		}
		logger.Get().Debug("Serial session closed",
			zap.String("port", s.name),
			zap.Int64("bytes_written", s.written),
			zap.Int("writes", s.writes))
	})
	return s.closeErr
}
