package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fwupload/internal/app"
	"fwupload/internal/config"
	"fwupload/internal/logger"
	"fwupload/internal/reporter"
	"fwupload/internal/transport"
	"fwupload/internal/ui"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Exit codes returned by Execute
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitPort        = 3
	ExitFile        = 4
	ExitInterrupted = 130
)

// errUsage marks errors caused by bad flags or configuration
var errUsage = errors.New("usage error")

// newRootCmd builds the command tree. open is the serial opener; stdin and
// stdout carry prompts and console output.
func newRootCmd(v *viper.Viper, open transport.Opener, stdin io.Reader, stdout io.Writer) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "fwupload [port] [firmware...]",
		Short: "Upload firmware images to a device over a serial port",
		Long: `fwupload streams firmware binaries to a device over a serial port in
fixed-size chunks, printing progress as it goes.

There is no handshake, acknowledgment or checksum: the device must know how
many bytes to expect. Every valid file given is sent in order over a single
serial session.

Usage:
  Upload one file:     fwupload /dev/ttyACM0 firmware.bin
  Upload several:      fwupload COM3 boot.bin app.bin
  Prompt for values:   fwupload
  Talk to the device:  fwupload command --port COM3 led on

Settings can also come from $HOME/.fwupload.yaml or FWUPLOAD_* environment
variables (for example FWUPLOAD_TRANSFER_CHUNK_SIZE).`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(v, cfgFile); err != nil {
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

			return runUploaderApp(cmd.Context(), cfg, args, open, stdin, stdout, cmd.ErrOrStderr())
		},
	}

	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fwupload.yaml)")
	persistent.Int("baud", config.DefaultBaudRate, "Serial baud rate")
	persistent.Duration("read-timeout", config.DefaultReadTimeout, "Serial read timeout")
	persistent.String("log-level", "warn", "Diagnostic log level (debug, info, warn, error)")
	persistent.String("log-format", "console", "Diagnostic log format (console, json)")
	persistent.String("log-file", "", "Also write JSON diagnostics to this rotated file")

	flags := rootCmd.Flags()
	flags.Int("chunk-size", config.DefaultChunkSize, "Bytes written to the port per chunk")
	flags.Duration("chunk-delay", config.DefaultChunkDelay, "Pause after every chunk write")
	flags.Bool("progress-bar", false, "Render progress as a bar instead of a byte counter")

	// Bind flags to viper so config file and environment share one namespace
	bindings := map[string]string{
		"serial.baud_rate":    "baud",
		"serial.read_timeout": "read-timeout",
		"log.level":           "log-level",
		"log.format":          "log-format",
		"log.file":            "log-file",
	}
	for key, name := range bindings {
		_ = v.BindPFlag(key, persistent.Lookup(name))
	}
	_ = v.BindPFlag("transfer.chunk_size", flags.Lookup("chunk-size"))
	_ = v.BindPFlag("transfer.chunk_delay", flags.Lookup("chunk-delay"))
	_ = v.BindPFlag("transfer.progress_bar", flags.Lookup("progress-bar"))

	rootCmd.AddCommand(newCommandCmd(v, open, stdin, stdout))

	return rootCmd
}

// loadConfig decodes and validates the merged settings, then starts the logger
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid configuration: %v", errUsage, err)
	}
	if _, err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	return cfg, nil
}

// initConfig reads in config file and ENV variables
func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("FWUPLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// serial.port has no root flag; bind it so the environment alone can set it
	_ = v.BindEnv("serial.port")

	if cfgFile != "" {
		// Use config file from the flag; a missing explicit file is an error
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	// Search config in home directory with name ".fwupload" (without extension)
	v.AddConfigPath(home)
	v.SetConfigType("yaml")
	v.SetConfigName(".fwupload")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// runUploaderApp resolves the request and runs the uploader
func runUploaderApp(ctx context.Context, cfg *config.Config, args []string, open transport.Opener, stdin io.Reader, stdout, stderr io.Writer) error {
	prompter := ui.NewPrompter(stdin, stdout)
	req, err := app.BuildRequest(ctx, args, cfg.Serial.Port, prompter)
	if err != nil {
		return err
	}

	var rep app.Reporter = reporter.NewProgressReporter(stdout)
	if cfg.Transfer.ProgressBar {
		rep = ui.NewBarReporter(stdout, stderr)
	}

	uploader := app.NewUploaderApp(cfg, open, rep)
	summary, err := uploader.Run(ctx, req)
	if err != nil {
		return err
	}

	logger.Get().Info("Run complete",
		zap.String("port", summary.Port),
		zap.Int("files", len(summary.Files)),
		zap.Int("rejected", len(summary.Rejected)))
	return nil
}

// exitCode maps a run error onto the process exit status
func exitCode(err error) int {
	var portErr *transport.PortError
	var fileErr *app.FileError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, errUsage):
		return ExitUsage
	case errors.As(err, &portErr):
		return ExitPort
	case errors.As(err, &fileErr), errors.Is(err, app.ErrNoFiles):
		return ExitFile
	default:
		return ExitFailure
	}
}

// describe renders err as the single line shown to the operator
func describe(err error) string {
	if errors.Is(err, context.Canceled) {
		return "interrupted"
	}
	if errors.Is(err, errUsage) {
		return strings.TrimPrefix(err.Error(), errUsage.Error()+": ")
	}
	return err.Error()
}

// createContext creates a context that cancels on the first interrupt signal.
// Later signals get their default action, so a write stuck in the driver
// can still be killed.
func createContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

// run executes the CLI and returns the exit code
func run(ctx context.Context, args []string, open transport.Opener, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(viper.New(), open, stdin, stdout)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "\nError: %s\n", describe(err))
	}
	return exitCode(err)
}

// Execute runs the command line and exits with the mapped status code.
func Execute() {
	ctx, stop := createContext()
	code := run(ctx, os.Args[1:], transport.OpenSerial, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
