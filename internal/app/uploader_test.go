package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fwupload/internal/config"
	"fwupload/internal/processor"
	"fwupload/internal/reporter"
	"fwupload/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakePort records every write the uploader makes
type fakePort struct {
	data     bytes.Buffer
	writes   []int
	writeErr error
	closed   int
	onWrite  func(n int)
	replies  bytes.Buffer
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, len(b))
	if p.onWrite != nil {
		p.onWrite(len(b))
	}
	return p.data.Write(b)
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.replies.Len() == 0 {
		return 0, io.EOF
	}
	return p.replies.Read(b)
}

func (p *fakePort) Close() error {
	p.closed++
	return nil
}

type harness struct {
	app    *UploaderApp
	port   *fakePort
	out    *bytes.Buffer
	opens  []config.SerialConfig
	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{port: &fakePort{}, out: &bytes.Buffer{}}
	open := func(cfg config.SerialConfig) (transport.Port, error) {
		h.opens = append(h.opens, cfg)
		return h.port, nil
	}
	h.app = NewUploaderApp(config.NewDefaultConfig(), open, reporter.NewProgressReporter(h.out))
	h.app.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func firmware(t *testing.T, dir, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 7)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestUploader100000Bytes(t *testing.T) {
	h := newHarness(t)
	path := firmware(t, t.TempDir(), "fw.bin", 100000)

	summary, err := h.app.Run(context.Background(), &Request{Port: "/dev/ttyACM0", Files: []string{path}})
	require.NoError(t, err)

	assert.Equal(t, []int{46408, 46408, 7184}, h.port.writes)
	assert.Equal(t, 1, h.port.closed)
	require.Len(t, h.opens, 1)
	assert.Equal(t, "/dev/ttyACM0", h.opens[0].Port)
	assert.Equal(t, 115200, h.opens[0].BaudRate)
	assert.Equal(t, time.Second, h.opens[0].ReadTimeout)

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, h.port.data.Bytes())

	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}, h.sleeps)

	out := h.out.String()
	assert.Contains(t, out, " Uploading: fw.bin (100000 bytes)\n")
	assert.Contains(t, out, "File size: 100000 bytes\n")
	assert.Contains(t, out, "\rSent 46408/100000 bytes\rSent 92816/100000 bytes\rSent 100000/100000 bytes")
	assert.Contains(t, out, "Total: 100000 bytes")

	require.Len(t, summary.Files, 1)
	assert.Equal(t, FileResult{Path: path, Size: 100000, Sent: 100000, Chunks: 3}, summary.Files[0])
	assert.Equal(t, int64(100000), summary.TotalBytes())
}

func TestUploaderProgressNeverExceedsTotal(t *testing.T) {
	h := newHarness(t)
	h.app.config.Transfer.ChunkSize = 333
	path := firmware(t, t.TempDir(), "fw.bin", 2000)

	_, err := h.app.Run(context.Background(), &Request{Port: "COM3", Files: []string{path}})
	require.NoError(t, err)

	var cumulative int
	lines := strings.Split(h.out.String(), "\r")
	progress := 0
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, "Sent ") {
			continue
		}
		cumulative += h.port.writes[progress]
		progress++
		line = strings.SplitN(line, "\n", 2)[0]
		var sent, total int
		_, err := fmt.Sscanf(line, "Sent %d/%d bytes", &sent, &total)
		require.NoError(t, err)
		assert.Equal(t, cumulative, sent)
		assert.LessOrEqual(t, sent, total)
	}
	assert.Equal(t, 7, progress)
	assert.Equal(t, 2000, cumulative)
}

func TestUploaderEmptyFile(t *testing.T) {
	h := newHarness(t)
	path := firmware(t, t.TempDir(), "empty.bin", 0)

	summary, err := h.app.Run(context.Background(), &Request{Port: "COM3", Files: []string{path}})
	require.NoError(t, err)

	assert.Empty(t, h.port.writes)
	assert.Empty(t, h.sleeps)
	assert.Equal(t, 1, h.port.closed)
	assert.Contains(t, h.out.String(), "Total: 0 bytes")
	assert.Equal(t, int64(0), summary.TotalBytes())
}

func TestUploaderPortOpenFailsBeforeReading(t *testing.T) {
	h := newHarness(t)
	cause := errors.New("no such device")
	h.app.open = func(cfg config.SerialConfig) (transport.Port, error) {
		return nil, cause
	}
	path := firmware(t, t.TempDir(), "fw.bin", 10)

	summary, err := h.app.Run(context.Background(), &Request{Port: "/dev/nonexistent", Files: []string{path}})

	var portErr *transport.PortError
	require.ErrorAs(t, err, &portErr)
	assert.Equal(t, "/dev/nonexistent", portErr.Port)
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, h.out.String(), "Uploading")
	assert.Empty(t, summary.Files)
}

func TestUploaderRealSerialOpenerFails(t *testing.T) {
	out := &bytes.Buffer{}
	app := NewUploaderApp(config.NewDefaultConfig(), transport.OpenSerial, reporter.NewProgressReporter(out))
	path := firmware(t, t.TempDir(), "fw.bin", 10)

	_, err := app.Run(context.Background(), &Request{Port: "/dev/fwupload-missing-port", Files: []string{path}})

	var portErr *transport.PortError
	require.ErrorAs(t, err, &portErr)
	assert.Empty(t, out.String())
}

func TestUploaderMissingAndDirectoryNeverOpened(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.bin")

	summary, err := h.app.Run(context.Background(), &Request{Port: "COM3", Files: []string{missing, dir}})

	assert.ErrorIs(t, err, ErrNoFiles)
	assert.Empty(t, h.opens, "port must not be opened without files")
	assert.Equal(t, " Error: File not found: "+missing+"\n Error: '"+dir+"' is a DIRECTORY!\n", h.out.String())
	require.Len(t, summary.Rejected, 2)
	assert.Equal(t, processor.StatusMissing, summary.Rejected[0].Status)
	assert.Equal(t, processor.StatusDirectory, summary.Rejected[1].Status)
}

func TestUploaderMultiFileOneInvalid(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	valid := firmware(t, dir, "app.bin", 50000)
	invalid := filepath.Join(dir, "typo.bin")

	summary, err := h.app.Run(context.Background(), &Request{Port: "COM3", Files: []string{valid, invalid}})
	require.NoError(t, err)

	out := h.out.String()
	assert.Contains(t, out, " Error: File not found: "+invalid+"\n")
	assert.Contains(t, out, " Uploading: app.bin (50000 bytes)\n")
	assert.Contains(t, out, "Total: 50000 bytes")
	assert.Equal(t, []int{46408, 3592}, h.port.writes)
	require.Len(t, summary.Files, 1)
	assert.Equal(t, valid, summary.Files[0].Path)
}

func TestUploaderUploadsEveryFileInOrder(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	first := firmware(t, dir, "boot.bin", 10)
	second := firmware(t, dir, "app.bin", 46409)

	summary, err := h.app.Run(context.Background(), &Request{Port: "COM3", Files: []string{first, second}})
	require.NoError(t, err)

	require.Len(t, h.opens, 1, "one session for the whole run")
	assert.Equal(t, 1, h.port.closed)
	assert.Equal(t, []int{10, 46408, 1}, h.port.writes)

	out := h.out.String()
	bootAt := strings.Index(out, "Uploading: boot.bin")
	appAt := strings.Index(out, "Uploading: app.bin")
	require.True(t, bootAt >= 0 && appAt >= 0)
	assert.Less(t, bootAt, appAt)
	assert.Equal(t, 2, strings.Count(out, "File transfer complete."))

	require.Len(t, summary.Files, 2)
	assert.Equal(t, int64(46419), summary.TotalBytes())
}

func TestUploaderWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.port.writeErr = errors.New("device unplugged")
	path := firmware(t, t.TempDir(), "fw.bin", 100)

	summary, err := h.app.Run(context.Background(), &Request{Port: "COM3", Files: []string{path}})

	var portErr *transport.PortError
	require.ErrorAs(t, err, &portErr)
	assert.Equal(t, "write", portErr.Op)
	assert.Equal(t, 1, h.port.closed, "session closed after failure")
	require.Len(t, summary.Files, 1)
	assert.Equal(t, int64(0), summary.Files[0].Sent)
	assert.NotContains(t, h.out.String(), "File transfer complete")
}

func TestUploaderFileRemovedAfterValidation(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	path := firmware(t, dir, "fw.bin", 10)
	h.app.open = func(cfg config.SerialConfig) (transport.Port, error) {
		require.NoError(t, os.Remove(path))
		return h.port, nil
	}

	_, err := h.app.Run(context.Background(), &Request{Port: "COM3", Files: []string{path}})

	var fileErr *FileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, "open", fileErr.Op)
	assert.Equal(t, path, fileErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 1, h.port.closed)
}

func TestUploaderCancelledMidTransfer(t *testing.T) {
	h := newHarness(t)
	h.app.config.Transfer.ChunkSize = 10
	path := firmware(t, t.TempDir(), "fw.bin", 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.port.onWrite = func(int) {
		if len(h.port.writes) == 2 {
			cancel()
		}
	}

	summary, err := h.app.Run(ctx, &Request{Port: "COM3", Files: []string{path}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, h.port.writes, 2)
	assert.Equal(t, 1, h.port.closed)
	assert.Equal(t, int64(20), summary.TotalBytes())
}

func TestUploaderRequiresPort(t *testing.T) {
	h := newHarness(t)
	path := firmware(t, t.TempDir(), "fw.bin", 1)

	_, err := h.app.Run(context.Background(), &Request{Files: []string{path}})

	var portErr *transport.PortError
	require.ErrorAs(t, err, &portErr)
	assert.Empty(t, h.opens)
}

func TestUploaderWarnsAboutDeviceCommandMode(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zapcore.WarnLevel)
	h.app.log = zap.New(core)
	dir := t.TempDir()
	image := firmware(t, dir, "image.bin", config.BitstreamSize)
	small := firmware(t, dir, "small.bin", 100)

	_, err := h.app.Run(context.Background(), &Request{Port: "COM3", Files: []string{image}})
	require.NoError(t, err)
	assert.Zero(t, logs.Len())

	_, err = h.app.Run(context.Background(), &Request{Port: "COM3", Files: []string{image, small}})
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessageSnippet("after the first bitstream").Len())
	sized := logs.FilterMessage("Firmware size differs from the device bitstream size").All()
	require.Len(t, sized, 1)
	assert.Equal(t, small, sized[0].ContextMap()["path"])
	assert.Equal(t, int64(100), sized[0].ContextMap()["size"])
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
}
