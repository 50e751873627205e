package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"fwupload/internal/reporter"
	"fwupload/pkg/types"
	"fwupload/pkg/utils"

	"github.com/schollz/progressbar/v3"
)

// BarReporter renders per-file progress as a progress bar instead of the
// plain "Sent X/Y bytes" line. Diagnostics and summaries stay textual.
type BarReporter struct {
	*reporter.ProgressReporter

	out      io.Writer
	barOut   io.Writer
	bar      *progressbar.ProgressBar
	started  time.Time
	lastSent int64
}

// NewBarReporter writes text to out and the bar to barOut (stderr when nil)
func NewBarReporter(out, barOut io.Writer) *BarReporter {
	if out == nil {
		out = os.Stdout
	}
	if barOut == nil {
		barOut = os.Stderr
	}
	return &BarReporter{
		ProgressReporter: reporter.NewProgressReporter(out),
		out:              out,
		barOut:           barOut,
	}
}

// Uploading prints the file header and starts a bar sized to the file
func (b *BarReporter) Uploading(meta types.FileMetadata) {
	b.ProgressReporter.Uploading(meta)
	b.started = time.Now()
	b.lastSent = 0
	b.bar = nil
	if meta.Size <= 0 {
		return
	}

	b.bar = progressbar.NewOptions64(meta.Size,
		progressbar.OptionSetDescription(fmt.Sprintf("Sending %s", meta.Name)),
		progressbar.OptionSetWriter(b.barOut),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)
}

// Progress advances the bar to the cumulative byte count
func (b *BarReporter) Progress(update types.ProgressUpdate) {
	b.lastSent = update.BytesSent
	if b.bar == nil {
		return
	}
	_ = b.bar.Set64(update.BytesSent)
}

// Complete finishes the bar and prints the transfer summary
func (b *BarReporter) Complete(meta types.FileMetadata, sent int64) {
	if b.bar != nil {
		_ = b.bar.Finish()
		b.bar = nil
	}

	elapsed := time.Since(b.started)
	fmt.Fprintf(b.out, "\nFile transfer complete. Total: %d bytes\n", sent)
	fmt.Fprintf(b.out, "+ Size: %s\n", utils.FormatFileSize(sent))
	fmt.Fprintf(b.out, "+ Transfer time: %s\n", elapsed.Round(time.Millisecond))
}
