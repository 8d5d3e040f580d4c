package completion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/rs/zerolog"
)

// OpenAIProvider implements Service over the Chat Completions API.
// It serves both Azure OpenAI deployments and OpenAI-compatible endpoints.
type OpenAIProvider struct {
	client openai.Client
	name   string
	model  string
	logger zerolog.Logger
}

// NewAzureProvider creates a provider for an Azure OpenAI deployment.
// Requests go to {endpoint}/openai/deployments/{model}/chat/completions.
func NewAzureProvider(opts Options) *OpenAIProvider {
	apiVersion := opts.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAzureAPIVersion
	}

	return &OpenAIProvider{
		client: openai.NewClient(
			azure.WithEndpoint(opts.Endpoint, apiVersion),
			azure.WithAPIKey(opts.APIKey),
			option.WithHeaderDel("authorization"),
			option.WithMaxRetries(0),
		),
		name:   ProviderAzure,
		model:  opts.Model,
		logger: opts.Logger,
	}
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint
func NewOpenAIProvider(opts Options) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(
			option.WithBaseURL(withTrailingSlash(opts.Endpoint)),
			option.WithAPIKey(opts.APIKey),
			option.WithMaxRetries(0),
		),
		name:   ProviderOpenAI,
		model:  opts.Model,
		logger: opts.Logger,
	}
}

// Provider returns the provider name
func (p *OpenAIProvider) Provider() string {
	return p.name
}

// Stream starts a streamed chat completion
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := req.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid execution settings: %w", err)
	}

	params := p.buildParams(req)
	p.logger.Debug().
		Str("provider", p.name).
		Str("model", p.model).
		Int("messages", len(req.Messages)).
		Int("tools", len(params.Tools)).
		Msg("Starting completion stream")

	return &openAIStream{
		provider: p,
		ctx:      ctx,
		req:      req,
		params:   params,
		sdk:      p.client.Chat.Completions.NewStreaming(ctx, params),
		calls:    make(map[int64]*ToolCall),
	}, nil
}

func (p *OpenAIProvider) buildParams(req Request) openai.ChatCompletionNewParams {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.Settings.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.Settings.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    messages,
		Temperature: openai.Float(req.Settings.Temperature),
		MaxTokens:   openai.Int(int64(req.Settings.maxTokens())),
	}

	if req.toolsEnabled() {
		tools := []openai.ChatCompletionToolParam{}
		for _, spec := range req.Tools.Specs() {
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        spec.Name,
					Description: openai.String(spec.Description),
					Parameters:  openai.FunctionParameters(spec.Parameters),
				},
			})
		}
		params.Tools = tools
	}

	return params
}

// openAIStream walks one or more SSE rounds, resolving tool calls between them
type openAIStream struct {
	provider *OpenAIProvider
	ctx      context.Context
	req      Request
	params   openai.ChatCompletionNewParams
	sdk      *ssestream.Stream[openai.ChatCompletionChunk]

	round     int
	roundText strings.Builder
	calls     map[int64]*ToolCall

	current string
	err     error
	done    bool
}

func (s *openAIStream) Next() bool {
	if s.done {
		return false
	}

	for {
		if s.sdk.Next() {
			chunk := s.sdk.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			for _, tc := range delta.ToolCalls {
				s.accumulateToolCall(tc)
			}
			if delta.Content == "" {
				continue
			}
			s.roundText.WriteString(delta.Content)
			s.current = delta.Content
			return true
		}

		if err := s.sdk.Err(); err != nil {
			return s.fail(err)
		}
		_ = s.sdk.Close()

		if len(s.calls) == 0 {
			s.current = ""
			s.done = true
			return false
		}

		s.round++
		if s.round > s.req.Settings.maxToolRounds() {
			return s.fail(fmt.Errorf("%w (%d)", ErrMaxToolRounds, s.req.Settings.maxToolRounds()))
		}
		if err := s.resolveToolCalls(); err != nil {
			return s.fail(err)
		}
		s.sdk = s.provider.client.Chat.Completions.NewStreaming(s.ctx, s.params)
	}
}

func (s *openAIStream) accumulateToolCall(tc openai.ChatCompletionChunkChoiceDeltaToolCall) {
	call, ok := s.calls[tc.Index]
	if !ok {
		call = &ToolCall{}
		s.calls[tc.Index] = call
	}
	if tc.ID != "" {
		call.ID = tc.ID
	}
	call.Name += tc.Function.Name
	call.Arguments += tc.Function.Arguments
}

// resolveToolCalls appends the assistant tool-call turn and the tool results
// to the request messages for the next round
func (s *openAIStream) resolveToolCalls() error {
	indexes := make([]int64, 0, len(s.calls))
	for idx := range s.calls {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	assistant := openai.ChatCompletionAssistantMessageParam{}
	if text := s.roundText.String(); text != "" {
		assistant.Content.OfString = openai.String(text)
	}

	calls := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		call := *s.calls[idx]
		if call.Arguments == "" {
			call.Arguments = "{}"
		}
		calls = append(calls, call)
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	s.params.Messages = append(s.params.Messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

	for _, call := range calls {
		outcome, err := resolveToolCall(s.ctx, s.req, s.provider.name, call, s.provider.logger)
		if err != nil {
			return err
		}
		s.params.Messages = append(s.params.Messages, openai.ToolMessage(outcome.Content, call.ID))
	}

	s.calls = make(map[int64]*ToolCall)
	s.roundText.Reset()
	return nil
}

func (s *openAIStream) fail(err error) bool {
	s.err = wrapServiceError(s.provider.name, err)
	s.current = ""
	s.done = true
	_ = s.sdk.Close()
	return false
}

func (s *openAIStream) Current() string {
	return s.current
}

func (s *openAIStream) Err() error {
	return s.err
}

func (s *openAIStream) Close() error {
	s.done = true
	return s.sdk.Close()
}

func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
