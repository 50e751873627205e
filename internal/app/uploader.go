package app

import (
	"context"
	"errors"
	"io"
	"time"

	"fwupload/internal/config"
	"fwupload/internal/logger"
	"fwupload/internal/processor"
	"fwupload/internal/transport"
	"fwupload/pkg/types"

	"go.uber.org/zap"
)

// FileResult records what was sent for one firmware file
type FileResult struct {
	Path   string
	Size   int64
	Sent   int64
	Chunks int
}

// Summary is the outcome of a run
type Summary struct {
	Port     string
	Files    []FileResult
	Rejected []processor.Validation
}

// TotalBytes returns the bytes sent across all files
func (s *Summary) TotalBytes() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Sent
	}
	return total
}

// UploaderApp validates firmware paths and streams every accepted file to
// one serial session, in order, chunk by chunk.
type UploaderApp struct {
	config   *config.Config
	open     transport.Opener
	reporter Reporter
	sleep    func(ctx context.Context, d time.Duration) error
	log      *zap.Logger
}

// NewUploaderApp creates a new uploader
func NewUploaderApp(cfg *config.Config, open transport.Opener, reporter Reporter) *UploaderApp {
	return &UploaderApp{
		config:   cfg,
		open:     open,
		reporter: reporter,
		sleep:    sleepContext,
		log:      logger.Get(),
	}
}

// Run uploads req. The returned summary covers every file finished before
// an error, and is never nil.
func (u *UploaderApp) Run(ctx context.Context, req *Request) (summary *Summary, err error) {
	summary = &Summary{Port: req.Port}

	accepted, rejected := processor.ValidatePaths(req.Files)
	summary.Rejected = rejected
	for _, v := range rejected {
		u.reporter.Rejected(v)
	}
	if len(accepted) == 0 {
		return summary, ErrNoFiles
	}
	if req.Port == "" {
		return summary, &transport.PortError{Op: "open", Err: errors.New("no serial port specified")}
	}

	serialCfg := u.config.Serial
	serialCfg.Port = req.Port

	session, err := transport.OpenSession(serialCfg, u.open)
	if err != nil {
		return summary, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	u.log.Info("Upload started",
		zap.String("port", req.Port),
		zap.Int("files", len(accepted)),
		zap.Int("chunk_size", u.config.Transfer.ChunkSize),
		zap.Duration("chunk_delay", u.config.Transfer.ChunkDelay))

	if len(accepted) > 1 {
		u.log.Warn("Device reads line commands after the first bitstream; later files may be misread",
			zap.Int("files", len(accepted)),
			zap.Int("bitstream_size", config.BitstreamSize))
	}

	for _, path := range accepted {
		result, err := u.uploadFile(ctx, session, path)
		if result != nil {
			summary.Files = append(summary.Files, *result)
		}
		if err != nil {
			return summary, err
		}
	}

	u.log.Info("Upload finished",
		zap.String("port", req.Port),
		zap.Int64("bytes", summary.TotalBytes()))
	return summary, nil
}

// uploadFile streams one file. A partial result is returned alongside any
// error raised after the file was opened.
func (u *UploaderApp) uploadFile(ctx context.Context, session *transport.Session, path string) (*FileResult, error) {
	reader, err := processor.OpenFirmware(path, u.config.Transfer.ChunkSize)
	if err != nil {
		return nil, &FileError{Path: path, Op: "open", Err: err}
	}
	defer reader.Close()

	meta := reader.Metadata()
	result := &FileResult{Path: path, Size: meta.Size}
	u.reporter.Uploading(meta)
	if meta.Size != config.BitstreamSize {
		u.log.Warn("Firmware size differs from the device bitstream size",
			zap.String("path", path),
			zap.Int64("size", meta.Size),
			zap.Int("bitstream_size", config.BitstreamSize))
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		chunk, err := reader.NextChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, &FileError{Path: path, Op: "read", Err: err}
		}

		if err := session.Write(chunk); err != nil {
			return result, err
		}
		result.Chunks++
		result.Sent = reader.Sent()

		u.reporter.Progress(types.ProgressUpdate{
			BytesSent:  result.Sent,
			TotalBytes: meta.Size,
			Chunk:      result.Chunks,
		})

		if err := u.sleep(ctx, u.config.Transfer.ChunkDelay); err != nil {
			return result, err
		}
	}

	u.reporter.Complete(meta, result.Sent)
	u.log.Debug("File sent",
		zap.String("path", path),
		zap.Int64("bytes", result.Sent),
		zap.Int("chunks", result.Chunks))
	return result, nil
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
