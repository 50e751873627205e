package app

import (
	"context"
	"fmt"
)

// Request is what the operator asked to upload, and where
type Request struct {
	Port  string
	Files []string
}

// BuildRequest resolves the port and file list from positional arguments,
// prompting for whatever is missing. args[0] is the port, args[1:] the files.
// A port already set in defaultPort (from flags or config) is used when
// args is empty.
func BuildRequest(ctx context.Context, args []string, defaultPort string, prompter Prompter) (*Request, error) {
	req := &Request{}

	switch {
	case len(args) > 0:
		req.Port = args[0]
	case defaultPort != "":
		req.Port = defaultPort
	default:
		port, err := prompter.AskPort(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read serial port: %w", err)
		}
		req.Port = port
	}

	if len(args) > 1 {
		req.Files = append([]string(nil), args[1:]...)
		return req, nil
	}

	path, err := prompter.AskFilePath(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware file path: %w", err)
	}
	req.Files = []string{path}

	return req, nil
}
