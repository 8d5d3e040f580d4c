package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/rs/zerolog"
)

// blankTurnText replaces turn text the Messages API would reject as empty
const blankTurnText = "(empty message)"

// AnthropicProvider implements Service over the Anthropic Messages API
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	logger zerolog.Logger
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(opts Options) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(
			option.WithBaseURL(withTrailingSlash(opts.Endpoint)),
			option.WithAPIKey(opts.APIKey),
			option.WithMaxRetries(0),
		),
		model:  opts.Model,
		logger: opts.Logger,
	}
}

// Provider returns the provider name
func (p *AnthropicProvider) Provider() string {
	return ProviderAnthropic
}

// Stream starts a streamed message
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := req.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid execution settings: %w", err)
	}

	params := p.buildParams(req)
	p.logger.Debug().
		Str("provider", ProviderAnthropic).
		Str("model", p.model).
		Int("messages", len(params.Messages)).
		Int("tools", len(params.Tools)).
		Msg("Starting completion stream")

	return &anthropicStream{
		provider: p,
		ctx:      ctx,
		req:      req,
		params:   params,
		sdk:      p.client.Messages.NewStreaming(ctx, params),
	}, nil
}

func (p *AnthropicProvider) buildParams(req Request) anthropic.MessageNewParams {
	messages := []anthropic.MessageParam{}
	for _, msg := range req.Messages {
		text := msg.Content
		if strings.TrimSpace(text) == "" {
			text = blankTurnText
		}
		switch msg.Role {
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		}
	}
	// The conversation must open with a user message
	if len(messages) > 0 && messages[0].Role != anthropic.MessageParamRoleUser {
		messages = append([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(blankTurnText)),
		}, messages...)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		Messages:    messages,
		MaxTokens:   int64(req.Settings.maxTokens()),
		Temperature: anthropic.Float(req.Settings.Temperature),
	}

	if req.Settings.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.Settings.SystemPrompt},
		}
	}

	if req.toolsEnabled() {
		tools := []anthropic.ToolUnionParam{}
		for _, spec := range req.Tools.Specs() {
			tool := anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: spec.Parameters["properties"],
				},
			}
			if required, ok := spec.Parameters["required"].([]string); ok {
				tool.InputSchema.Required = required
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
		}
		params.Tools = tools
	}

	return params
}

// anthropicStream walks one or more SSE rounds, resolving tool_use blocks between them
type anthropicStream struct {
	provider *AnthropicProvider
	ctx      context.Context
	req      Request
	params   anthropic.MessageNewParams
	sdk      *ssestream.Stream[anthropic.MessageStreamEventUnion]

	round   int
	message anthropic.Message

	current string
	err     error
	done    bool
}

func (s *anthropicStream) Next() bool {
	if s.done {
		return false
	}

	for {
		if s.sdk.Next() {
			event := s.sdk.Current()
			if err := s.message.Accumulate(event); err != nil {
				return s.fail(fmt.Errorf("failed to accumulate stream event: %w", err))
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					s.current = delta.Text
					return true
				}
			}
			continue
		}

		if err := s.sdk.Err(); err != nil {
			return s.fail(err)
		}
		_ = s.sdk.Close()

		calls := s.toolCalls()
		if s.message.StopReason != anthropic.StopReasonToolUse || len(calls) == 0 {
			s.current = ""
			s.done = true
			return false
		}

		s.round++
		if s.round > s.req.Settings.maxToolRounds() {
			return s.fail(fmt.Errorf("%w (%d)", ErrMaxToolRounds, s.req.Settings.maxToolRounds()))
		}
		if err := s.resolveToolCalls(calls); err != nil {
			return s.fail(err)
		}
		s.message = anthropic.Message{}
		s.sdk = s.provider.client.Messages.NewStreaming(s.ctx, s.params)
	}
}

func (s *anthropicStream) toolCalls() []ToolCall {
	calls := []ToolCall{}
	for _, block := range s.message.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		args := string(toolUse.Input)
		if args == "" {
			args = "{}"
		}
		calls = append(calls, ToolCall{ID: toolUse.ID, Name: toolUse.Name, Arguments: args})
	}
	return calls
}

func (s *anthropicStream) resolveToolCalls(calls []ToolCall) error {
	s.params.Messages = append(s.params.Messages, s.message.ToParam())

	results := []anthropic.ContentBlockParamUnion{}
	for _, call := range calls {
		outcome, err := resolveToolCall(s.ctx, s.req, ProviderAnthropic, call, s.provider.logger)
		if err != nil {
			return err
		}
		results = append(results, anthropic.NewToolResultBlock(call.ID, outcome.Content, outcome.IsError))
	}
	s.params.Messages = append(s.params.Messages, anthropic.NewUserMessage(results...))
	return nil
}

func (s *anthropicStream) fail(err error) bool {
	s.err = wrapServiceError(ProviderAnthropic, err)
	s.current = ""
	s.done = true
	_ = s.sdk.Close()
	return false
}

func (s *anthropicStream) Current() string {
	return s.current
}

func (s *anthropicStream) Err() error {
	return s.err
}

func (s *anthropicStream) Close() error {
	s.done = true
	return s.sdk.Close()
}
