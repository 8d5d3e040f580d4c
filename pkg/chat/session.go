package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harun/aoichat/pkg/completion"
	"github.com/rs/zerolog"
)

// Config holds session dependencies
type Config struct {
	ID       string // generated when empty
	Service  completion.Service
	Console  *Console
	Settings completion.ExecutionSettings
	Tools    completion.Toolset
	Approver completion.Approver
	Recorder completion.ToolCallRecorder
	Logger   zerolog.Logger
}

// Session is one interactive conversation
type Session struct {
	id         string
	service    completion.Service
	console    *Console
	settings   completion.ExecutionSettings
	tools      completion.Toolset
	approver   completion.Approver
	recorder   completion.ToolCallRecorder
	transcript *Transcript
	logger     zerolog.Logger
}

// NewSession creates a new session with an empty transcript
func NewSession(cfg Config) (*Session, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("completion service is required")
	}
	if cfg.Console == nil {
		return nil, fmt.Errorf("console is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid execution settings: %w", err)
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:         id,
		service:    cfg.Service,
		console:    cfg.Console,
		settings:   cfg.Settings,
		tools:      cfg.Tools,
		approver:   cfg.Approver,
		recorder:   cfg.Recorder,
		transcript: NewTranscript(),
		logger:     cfg.Logger.With().Str("session_id", id).Logger(),
	}, nil
}

// Transcript returns a copy of the conversation so far
func (s *Session) Transcript() []completion.Message {
	return s.transcript.Snapshot()
}

// Run reads a line, generates the answer and repeats until the input is
// closed (nil) or ctx is cancelled (ctx.Err()). Service failures are
// reported on the console and do not end the loop.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info().Str("provider", s.service.Provider()).Msg("Session started")

	for {
		s.console.PromptUser()
		line, err := s.console.ReadLine(ctx)
		if err != nil {
			s.console.Newline()
			switch {
			case errors.Is(err, ErrInputClosed):
				s.logger.Info().Int("turns", s.transcript.Len()).Msg("Input closed, ending session")
				return nil
			case ctx.Err() != nil:
				s.logger.Info().Msg("Session cancelled")
				return ctx.Err()
			default:
				return err
			}
		}

		if _, err := s.Turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				s.logger.Info().Msg("Session cancelled during generation")
				return ctx.Err()
			}
			s.console.Failure(err)
			s.logFailure(err)
		}
	}
}

// logFailure records a failure the console has already shown
func (s *Session) logFailure(err error) {
	event := s.logger.Debug().Err(err)
	var svcErr *completion.ServiceError
	if errors.As(err, &svcErr) {
		event = event.
			Str("provider", svcErr.Provider).
			Int("status", svcErr.StatusCode).
			Bool("temporary", svcErr.Temporary())
	}
	event.Msg("Completion failed")
}

// Turn appends input as a user turn, streams the answer to the console and
// appends it as an assistant turn once the stream has completed. On failure
// the partial answer is discarded and the error returned.
func (s *Session) Turn(ctx context.Context, input string) (string, error) {
	s.transcript.AddUser(input)
	s.console.BeginResponse()

	stream, err := s.service.Stream(ctx, completion.Request{
		Messages: s.transcript.Snapshot(),
		Settings: s.settings,
		Tools:    s.tools,
		Approver: s.approver,
		Recorder: s.recorder,
	})
	if err != nil {
		s.console.EndResponse()
		return "", fmt.Errorf("failed to start completion: %w", err)
	}
	defer stream.Close()

	var response strings.Builder
	fragments := 0
	for stream.Next() {
		fragment := stream.Current()
		s.console.Fragment(fragment)
		response.WriteString(fragment)
		fragments++

		if ctx.Err() != nil {
			break
		}
	}
	s.console.EndResponse()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := stream.Err(); err != nil {
		return "", err
	}

	answer := response.String()
	s.transcript.AddAssistant(answer)

	s.logger.Debug().
		Int("fragments", fragments).
		Int("chars", len(answer)).
		Int("turns", s.transcript.Len()).
		Msg("Turn completed")

	return answer, nil
}
