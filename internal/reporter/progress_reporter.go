package reporter

import (
	"fmt"
	"io"
	"os"

	"fwupload/internal/processor"
	"fwupload/pkg/types"
)

// ProgressReporter prints the uploader's console output: validation
// diagnostics, per-file headers, an in-place progress line and a summary.
type ProgressReporter struct {
	out io.Writer
}

// NewProgressReporter creates a reporter writing to out, or stdout when out is nil
func NewProgressReporter(out io.Writer) *ProgressReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ProgressReporter{out: out}
}

// Rejected prints the diagnostic for a path that will not be uploaded
func (pr *ProgressReporter) Rejected(v processor.Validation) {
	fmt.Fprintln(pr.out, v.Message())
}

// Uploading announces a file before its first chunk
func (pr *ProgressReporter) Uploading(meta types.FileMetadata) {
	fmt.Fprintf(pr.out, " Uploading: %s (%d bytes)\n", meta.Name, meta.Size)
	fmt.Fprintf(pr.out, "File size: %d bytes\n", meta.Size)
}

// Progress overwrites the current line with cumulative bytes sent
func (pr *ProgressReporter) Progress(update types.ProgressUpdate) {
	fmt.Fprintf(pr.out, "\rSent %d/%d bytes", update.BytesSent, update.TotalBytes)
}

// Complete ends the progress line and prints the total
func (pr *ProgressReporter) Complete(meta types.FileMetadata, sent int64) {
	fmt.Fprintf(pr.out, "\nFile transfer complete. Total: %d bytes\n", sent)
}
