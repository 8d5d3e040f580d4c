package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ErrInputClosed is returned when the interactive input reaches EOF
var ErrInputClosed = errors.New("input closed")

const (
	userPrompt     = "User > "
	assistantLabel = "\nAssistant > "
)

type lineResult struct {
	line string
	err  error
}

// Console is the text surface of a session: it reads one line at a time
// and writes prompts and streamed fragments.
//
// Reads happen on a background goroutine so ReadLine can observe
// cancellation. ReadLine must be called from one goroutine at a time.
type Console struct {
	reader *bufio.Reader
	out    io.Writer

	requests chan struct{}
	results  chan lineResult
	start    sync.Once
	pending  bool

	user      *color.Color
	assistant *color.Color
	failure   *color.Color
}

// ConsoleOption configures a Console
type ConsoleOption func(*Console)

// WithPlainOutput disables colors
func WithPlainOutput() ConsoleOption {
	return func(c *Console) {
		c.user.DisableColor()
		c.assistant.DisableColor()
		c.failure.DisableColor()
	}
}

// NewConsole creates a console over the given input and output
func NewConsole(in io.Reader, out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		reader:    bufio.NewReader(in),
		out:       out,
		requests:  make(chan struct{}),
		results:   make(chan lineResult, 1),
		user:      color.New(color.FgWhite),
		assistant: color.New(color.FgGreen),
		failure:   color.New(color.FgRed),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Writer returns the output writer
func (c *Console) Writer() io.Writer {
	return c.out
}

// ReadLine reads one line without its line terminator. A final line without
// a terminator is returned as is; after that ReadLine returns ErrInputClosed.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	c.start.Do(func() { go c.readLoop() })

	// A read abandoned by a cancelled caller is still in flight; reuse it.
	if !c.pending {
		select {
		case c.requests <- struct{}{}:
			c.pending = true
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	select {
	case res := <-c.results:
		c.pending = false
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) readLoop() {
	for range c.requests {
		line, err := c.reader.ReadString('\n')
		switch {
		case err == nil:
		case errors.Is(err, io.EOF) && line != "":
			err = nil
		case errors.Is(err, io.EOF):
			err = fmt.Errorf("%w: %w", ErrInputClosed, err)
		default:
			err = fmt.Errorf("failed to read input: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		c.results <- lineResult{line: line, err: err}
	}
}

// PromptUser writes the user prompt
func (c *Console) PromptUser() {
	c.user.Fprint(c.out, userPrompt)
}

// BeginResponse writes the assistant label
func (c *Console) BeginResponse() {
	c.assistant.Fprint(c.out, assistantLabel)
}

// Fragment writes one streamed fragment as is
func (c *Console) Fragment(text string) {
	c.assistant.Fprint(c.out, text)
}

// EndResponse terminates the response line
func (c *Console) EndResponse() {
	fmt.Fprintln(c.out)
}

// Failure reports an error to the user
func (c *Console) Failure(err error) {
	c.failure.Fprintf(c.out, "Error: %v\n", err)
}

// Newline writes an empty line
func (c *Console) Newline() {
	fmt.Fprintln(c.out)
}
