package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"fwupload/internal/config"
	"fwupload/internal/logger"
	"fwupload/internal/transport"

	"go.uber.org/zap"
)

// maxCommandLine is the device's command buffer, terminator included
const maxCommandLine = 128

var (
	ErrUnknownCommand = errors.New("unknown device command")
	ErrInvalidPayload = errors.New("invalid command payload")
)

// DeviceCommand is one line of the device's command mode together with
// the acknowledgment it answers with
type DeviceCommand struct {
	Name string
	Line string
	Ack  string
}

// ParseDeviceCommand maps operator arguments onto a device command:
//
//	send <data>   forward data to the FPGA UART
//	reset         pulse the FPGA reset line
//	led on|off    switch the board LED
func ParseDeviceCommand(args []string) (DeviceCommand, error) {
	if len(args) == 0 {
		return DeviceCommand{}, fmt.Errorf("%w: none given", ErrUnknownCommand)
	}

	switch args[0] {
	case "send":
		if len(args) != 2 {
			return DeviceCommand{}, fmt.Errorf("%w: send takes exactly one argument", ErrInvalidPayload)
		}
		data := args[1]
		if data == "" || strings.ContainsAny(data, "\r\n") {
			return DeviceCommand{}, fmt.Errorf("%w: data must be a single non-empty line", ErrInvalidPayload)
		}
		line := "$" + data + "\n"
		if len(line) > maxCommandLine {
			return DeviceCommand{}, fmt.Errorf("%w: data exceeds %d bytes", ErrInvalidPayload, maxCommandLine-2)
		}
		return DeviceCommand{Name: "send", Line: line, Ack: "SENT TO FPGA"}, nil
	case "reset":
		if len(args) != 1 {
			return DeviceCommand{}, fmt.Errorf("%w: reset takes no arguments", ErrInvalidPayload)
		}
		return DeviceCommand{Name: "reset", Line: "r\n", Ack: "SENT FPGA RESET SIGNAL"}, nil
	case "led":
		if len(args) != 2 {
			return DeviceCommand{}, fmt.Errorf("%w: led takes on or off", ErrInvalidPayload)
		}
		switch args[1] {
		case "on":
			return DeviceCommand{Name: "led on", Line: "1\n", Ack: "LED ON"}, nil
		case "off":
			return DeviceCommand{Name: "led off", Line: "0\n", Ack: "LED OFF"}, nil
		}
		return DeviceCommand{}, fmt.Errorf("%w: led takes on or off, got %q", ErrInvalidPayload, args[1])
	default:
		return DeviceCommand{}, fmt.Errorf("%w: %q", ErrUnknownCommand, args[0])
	}
}

// CommandApp sends one command to a device in command mode and collects
// its reply lines
type CommandApp struct {
	config *config.Config
	open   transport.Opener
	out    io.Writer
	log    *zap.Logger
}

// NewCommandApp creates a command sender printing replies to out (stdout when nil)
func NewCommandApp(cfg *config.Config, open transport.Opener, out io.Writer) *CommandApp {
	if out == nil {
		out = os.Stdout
	}
	return &CommandApp{
		config: cfg,
		open:   open,
		out:    out,
		log:    logger.Get(),
	}
}

// Run writes command to port and prints every reply line until the
// acknowledgment arrives. A silent device yields a *transport.PortError
// wrapping transport.ErrReadTimeout.
func (c *CommandApp) Run(ctx context.Context, port string, command DeviceCommand) (replies []string, err error) {
	if port == "" {
		return nil, &transport.PortError{Op: "open", Err: errors.New("no serial port specified")}
	}

	serialCfg := c.config.Serial
	serialCfg.Port = port

	session, err := transport.OpenSession(serialCfg, c.open)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := session.Write([]byte(command.Line)); err != nil {
		return nil, err
	}
	c.log.Debug("Device command sent",
		zap.String("port", port),
		zap.String("command", command.Name))

	for {
		if err := ctx.Err(); err != nil {
			return replies, err
		}

		line, err := session.ReadLine()
		if err != nil {
			return replies, err
		}
		if line == "" {
			continue
		}

		replies = append(replies, line)
		fmt.Fprintln(c.out, line)
		if strings.Contains(line, command.Ack) {
			return replies, nil
		}
	}
}
