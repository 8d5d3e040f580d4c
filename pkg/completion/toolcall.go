package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// toolOutcome is what gets fed back to the model for one tool call
type toolOutcome struct {
	Content string
	IsError bool
}

// resolveToolCall applies the tool policy and runs one tool call.
// Only context cancellation is returned as an error; tool failures and
// denials are reported to the model through the outcome.
func resolveToolCall(ctx context.Context, req Request, provider string, call ToolCall, logger zerolog.Logger) (toolOutcome, error) {
	start := time.Now()
	record := ToolCallRecord{Provider: provider, Call: call, Approved: true}
	logger = logger.With().Str("tool", call.Name).Str("tool_call_id", call.ID).Logger()

	finish := func(out toolOutcome) (toolOutcome, error) {
		record.Duration = time.Since(start)
		if out.IsError {
			record.Error = out.Content
		} else {
			record.Output = out.Content
		}
		if req.Recorder != nil {
			req.Recorder.RecordToolCall(ctx, record)
		}
		return out, nil
	}

	if req.Tools == nil {
		record.Approved = false
		return finish(toolOutcome{Content: fmt.Sprintf("tool not available: %s", call.Name), IsError: true})
	}

	if req.Settings.ToolBehavior == ToolBehaviorManual {
		approved := false
		if req.Approver != nil {
			ok, err := req.Approver.Approve(ctx, call)
			if err != nil {
				if ctx.Err() != nil {
					return toolOutcome{}, ctx.Err()
				}
				logger.Warn().Err(err).Msg("Tool approval failed")
			}
			approved = ok && err == nil
		}
		if !approved {
			record.Approved = false
			logger.Info().Msg("Tool call denied")
			return finish(toolOutcome{Content: fmt.Sprintf("the user denied the call to %s", call.Name), IsError: true})
		}
	}

	logger.Debug().Str("arguments", call.Arguments).Msg("Invoking tool")

	output, err := req.Tools.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return toolOutcome{}, ctx.Err()
		}
		logger.Warn().Err(err).Msg("Tool call failed")
		return finish(toolOutcome{Content: err.Error(), IsError: true})
	}

	logger.Debug().Dur("duration", time.Since(start)).Msg("Tool call completed")
	return finish(toolOutcome{Content: output})
}
