package transport

import (
	"fmt"
	"io"

	"fwupload/internal/config"
	"fwupload/internal/logger"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// Port is the byte stream to and from the device. Read returns no data
// (io.EOF or a zero count) once the read timeout passes without input.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the serial port described by cfg
type Opener func(cfg config.SerialConfig) (Port, error)

// PortError reports a failure on the serial port
type PortError struct {
	Port string
	Op   string // "open", "write", "read" or "close"
	Err  error
}

func (e *PortError) Error() string {
	return fmt.Sprintf("serial port %s: %s failed: %v", e.Port, e.Op, e.Err)
}

func (e *PortError) Unwrap() error {
	return e.Err
}

// serialConfig maps the session settings onto tarm/serial. tarm never
// enables RTS/CTS or DSR/DTR flow control, which is what the uploader wants.
func serialConfig(cfg config.SerialConfig) *serial.Config {
	return &serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
}

// OpenSerial opens a real serial device. It satisfies Opener.
func OpenSerial(cfg config.SerialConfig) (Port, error) {
	port, err := serial.OpenPort(serialConfig(cfg))
	if err != nil {
		logger.Get().Error("Failed to open serial port",
			zap.String("port", cfg.Port),
			zap.Error(err))
		return nil, &PortError{Port: cfg.Port, Op: "open", Err: err}
	}

	logger.Get().Info("Serial port opened",
		zap.String("port", cfg.Port),
		zap.Int("baudrate", cfg.BaudRate),
		zap.Duration("read_timeout", cfg.ReadTimeout))
	return port, nil
}
