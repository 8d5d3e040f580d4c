package tools

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/harun/aoichat/pkg/completion"
	"github.com/rs/zerolog/log"
)

// LineReader reads one line of interactive input
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// CLIApprover asks the user on the console before a tool runs.
// It implements completion.Approver.
type CLIApprover struct {
	reader LineReader
	writer io.Writer
}

var _ completion.Approver = (*CLIApprover)(nil)

// NewCLIApprover creates a new CLI approver
func NewCLIApprover(reader LineReader, writer io.Writer) *CLIApprover {
	return &CLIApprover{
		reader: reader,
		writer: writer,
	}
}

// Approve prompts for a yes/no answer. Anything but y/yes denies.
func (c *CLIApprover) Approve(ctx context.Context, call completion.ToolCall) (bool, error) {
	args := strings.TrimSpace(call.Arguments)
	if args == "" || args == "{}" {
		args = ""
	}
	fmt.Fprintf(c.writer, "\n  Allow tool call %s(%s)? [y/N]: ", call.Name, args)

	input, err := c.reader.ReadLine(ctx)
	if err != nil {
		fmt.Fprintln(c.writer)
		return false, fmt.Errorf("failed to read approval: %w", err)
	}

	switch strings.TrimSpace(strings.ToLower(input)) {
	case "y", "yes":
		log.Info().Str("tool", call.Name).Msg("Tool call approved via CLI")
		return true, nil
	default:
		log.Info().Str("tool", call.Name).Msg("Tool call denied via CLI")
		return false, nil
	}
}
