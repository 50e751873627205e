package cmd

import (
	"context"
	"fmt"
	"io"

	"fwupload/internal/app"
	"fwupload/internal/config"
	"fwupload/internal/logger"
	"fwupload/internal/transport"
	"fwupload/internal/ui"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// newCommandCmd builds the "command" subcommand, which talks to a device
// that has finished loading its bitstream
func newCommandCmd(v *viper.Viper, open transport.Opener, stdin io.Reader, stdout io.Writer) *cobra.Command {
	commandCmd := &cobra.Command{
		Use:   "command <send DATA | reset | led on|off>",
		Short: "Send a line command to a device in command mode",
		Long: `Send one command to a device that has received its full bitstream and
switched to line commands, then print its reply.

  send DATA   forward DATA to the FPGA UART (replies "<DATA>SENT TO FPGA")
  reset       pulse the FPGA reset line (replies "SENT FPGA RESET SIGNAL")
  led on|off  switch the board LED (replies "LED ON" / "LED OFF")

The reply is awaited for --read-timeout per read.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.ParseDeviceCommand(args); err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			// a zero timeout makes tarm reads block until data arrives
			if cfg.Serial.ReadTimeout <= 0 {
				return fmt.Errorf("%w: read timeout must be greater than 0 to wait for device replies", errUsage)
			}

			command, _ := app.ParseDeviceCommand(args)
			return runCommandApp(cmd.Context(), cfg, command, open, stdin, stdout)
		},
	}

	commandCmd.Flags().StringP("port", "p", "", "Serial port of the device (prompted when empty)")
	_ = v.BindPFlag("serial.port", commandCmd.Flags().Lookup("port"))

	return commandCmd
}

// runCommandApp resolves the port and sends command
func runCommandApp(ctx context.Context, cfg *config.Config, command app.DeviceCommand, open transport.Opener, stdin io.Reader, stdout io.Writer) error {
	port := cfg.Serial.Port
	if port == "" {
		var err error
		port, err = ui.NewPrompter(stdin, stdout).AskPort(ctx)
		if err != nil {
			return fmt.Errorf("failed to read serial port: %w", err)
		}
	}

	replies, err := app.NewCommandApp(cfg, open, stdout).Run(ctx, port, command)
	if err != nil {
		return err
	}

	logger.Get().Info("Device command acknowledged",
		zap.String("port", port),
		zap.String("command", command.Name),
		zap.Int("replies", len(replies)))
	return nil
}
