package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoInput is returned when the input stream ends before an answer is given
var ErrNoInput = errors.New("no input provided")

const (
	portPrompt = "Enter serial port (e.g., /dev/ttyACM0 or COM3): "
	filePrompt = "Enter firmware file path : "
)

// Prompter asks the operator for the values missing from the command line
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPrompter creates a prompter reading answers from in and writing prompts to out
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		scanner: bufio.NewScanner(in),
		out:     out,
	}
}

// AskPort prompts for the serial port identifier
func (p *Prompter) AskPort(ctx context.Context) (string, error) {
	return p.ask(ctx, portPrompt)
}

// AskFilePath prompts for a single firmware file path
func (p *Prompter) AskFilePath(ctx context.Context) (string, error) {
	return p.ask(ctx, filePrompt)
}

type answer struct {
	text string
	err  error
}

// ask repeats prompt until a non-blank line is read
func (p *Prompter) ask(ctx context.Context, prompt string) (string, error) {
	for {
		fmt.Fprint(p.out, prompt)

		// Create a channel to receive the input
		inputCh := make(chan answer, 1)
		go func() {
			if p.scanner.Scan() {
				inputCh <- answer{text: strings.TrimSpace(p.scanner.Text())}
				return
			}
			err := p.scanner.Err()
			if err == nil {
				err = ErrNoInput
			}
			inputCh <- answer{err: err}
		}()

		// Wait for either input or context cancellation
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case a := <-inputCh:
			if a.err != nil {
				return "", a.err
			}
			if a.text != "" {
				return a.text, nil
			}
		}
	}
}
