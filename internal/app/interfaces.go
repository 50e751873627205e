package app

import (
	"context"

	"fwupload/internal/processor"
	"fwupload/pkg/types"
)

// Reporter receives the operator-facing events of an upload run
type Reporter interface {
	// Rejected is called once per path that failed validation
	Rejected(v processor.Validation)
	// Uploading is called after a file is opened, before its first chunk
	Uploading(meta types.FileMetadata)
	// Progress is called after every chunk write
	Progress(update types.ProgressUpdate)
	// Complete is called once a file has been fully handed to the port
	Complete(meta types.FileMetadata, sent int64)
}

// Prompter supplies values that were not given on the command line
type Prompter interface {
	AskPort(ctx context.Context) (string, error)
	AskFilePath(ctx context.Context) (string, error)
}
