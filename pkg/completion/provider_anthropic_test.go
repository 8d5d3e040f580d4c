package completion

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anthropicEvent(name, data string) string {
	return name + "\x00" + data
}

func anthropicText(parts ...string) func(w http.ResponseWriter) {
	entries := []string{
		anthropicEvent("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}`),
		anthropicEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`),
		anthropicEvent("ping", `{"type":"ping"}`),
	}
	for _, part := range parts {
		entries = append(entries, anthropicEvent("content_block_delta",
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"`+part+`"}}`))
	}
	entries = append(entries,
		anthropicEvent("content_block_stop", `{"type":"content_block_stop","index":0}`),
		anthropicEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":8}}`),
		anthropicEvent("message_stop", `{"type":"message_stop"}`),
	)
	return events(entries...)
}

func anthropicToolUse(id, name string) func(w http.ResponseWriter) {
	return events(
		anthropicEvent("message_start", `{"type":"message_start","message":{"id":"msg_2","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}`),
		anthropicEvent("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"`+id+`","name":"`+name+`","input":{}}}`),
		anthropicEvent("content_block_stop", `{"type":"content_block_stop","index":0}`),
		anthropicEvent("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":20}}`),
		anthropicEvent("message_stop", `{"type":"message_stop"}`),
	)
}

func TestAnthropicProvider_Stream(t *testing.T) {
	srv := newSSEServer(t, anthropicText("Hello", " there"))

	svc, err := NewService(Options{
		Provider: ProviderAnthropic,
		Endpoint: srv.URL,
		APIKey:   "sk-ant-test",
		Model:    "claude-3-5-haiku-latest",
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, svc.Provider())

	req := Request{
		Messages: []Message{
			{Role: RoleUser, Content: "first"},
			{Role: RoleAssistant, Content: ""},
			{Role: RoleUser, Content: "second"},
		},
		Settings: DefaultSettings(),
	}
	stream, err := svc.Stream(context.Background(), req)
	require.NoError(t, err)

	text, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)

	reqs := srv.captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v1/messages", reqs[0].Path)
	assert.Equal(t, "sk-ant-test", reqs[0].Header.Get("X-Api-Key"))
	assert.Equal(t, true, reqs[0].Body["stream"])
	assert.EqualValues(t, 4096, reqs[0].Body["max_tokens"])
	assert.Contains(t, reqs[0].Raw, DefaultSettings().SystemPrompt)

	messages, ok := reqs[0].Body["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 3)
}

func TestAnthropicProvider_BlankTurns(t *testing.T) {
	tests := []struct {
		name      string
		messages  []Message
		wantRoles []string
		wantTexts []string
	}{
		{
			name: "blank user turn is kept",
			messages: []Message{
				{Role: RoleUser, Content: ""},
				{Role: RoleAssistant, Content: "Hello"},
				{Role: RoleUser, Content: "hi"},
			},
			wantRoles: []string{"user", "assistant", "user"},
			wantTexts: []string{blankTurnText, "Hello", "hi"},
		},
		{
			name: "whitespace assistant turn",
			messages: []Message{
				{Role: RoleUser, Content: "ping"},
				{Role: RoleAssistant, Content: "  "},
				{Role: RoleUser, Content: "again"},
			},
			wantRoles: []string{"user", "assistant", "user"},
			wantTexts: []string{"ping", blankTurnText, "again"},
		},
		{
			name: "leading assistant turn",
			messages: []Message{
				{Role: RoleAssistant, Content: "Welcome"},
				{Role: RoleUser, Content: "hi"},
			},
			wantRoles: []string{"user", "assistant", "user"},
			wantTexts: []string{blankTurnText, "Welcome", "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSSEServer(t, anthropicText("ok"))
			svc := NewAnthropicProvider(Options{Endpoint: srv.URL, APIKey: "k", Model: "claude"})

			stream, err := svc.Stream(context.Background(), Request{Messages: tt.messages, Settings: DefaultSettings()})
			require.NoError(t, err)
			_, err = drain(t, stream)
			require.NoError(t, err)

			reqs := srv.captured()
			require.Len(t, reqs, 1)
			messages, ok := reqs[0].Body["messages"].([]interface{})
			require.True(t, ok)
			require.Len(t, messages, len(tt.wantRoles))

			for i, raw := range messages {
				msg := raw.(map[string]interface{})
				assert.Equal(t, tt.wantRoles[i], msg["role"])
				content := msg["content"].([]interface{})
				require.Len(t, content, 1)
				assert.Equal(t, tt.wantTexts[i], content[0].(map[string]interface{})["text"])
			}
		})
	}
}

func TestAnthropicProvider_ToolRound(t *testing.T) {
	srv := newSSEServer(t,
		anthropicToolUse("toolu_1", "time"),
		anthropicText("It is 9:07 PM."),
	)

	tools := &fakeToolset{outputs: map[string]string{"time": "09:07:09 PM"}}
	req := userRequest("What time is it?")
	req.Tools = tools

	svc := NewAnthropicProvider(Options{Endpoint: srv.URL, APIKey: "k", Model: "claude"})
	stream, err := svc.Stream(context.Background(), req)
	require.NoError(t, err)

	text, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, "It is 9:07 PM.", text)

	require.Len(t, tools.calls, 1)
	assert.Equal(t, "{}", tools.calls[0].Arguments)

	reqs := srv.captured()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Raw, `"input_schema"`)
	assert.Contains(t, reqs[1].Raw, `"tool_use_id":"toolu_1"`)
	assert.Contains(t, reqs[1].Raw, "09:07:09 PM")
}

func TestAnthropicProvider_ManualDenied(t *testing.T) {
	srv := newSSEServer(t,
		anthropicToolUse("toolu_1", "time"),
		anthropicText("Okay, I won't check."),
	)

	tools := &fakeToolset{outputs: map[string]string{"time": "09:07:09 PM"}}
	approver := &staticApprover{answer: false}
	req := userRequest("What time is it?")
	req.Tools = tools
	req.Approver = approver
	req.Settings.ToolBehavior = ToolBehaviorManual

	svc := NewAnthropicProvider(Options{Endpoint: srv.URL, APIKey: "k", Model: "claude"})
	stream, err := svc.Stream(context.Background(), req)
	require.NoError(t, err)

	_, err = drain(t, stream)
	require.NoError(t, err)

	assert.Len(t, approver.asked, 1)
	assert.Empty(t, tools.calls)

	reqs := srv.captured()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Raw, "the user denied the call to time")
	assert.Contains(t, reqs[1].Raw, `"is_error":true`)
}

func TestAnthropicProvider_HTTPError(t *testing.T) {
	srv := newSSEServer(t, jsonError(http.StatusTooManyRequests,
		`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))

	svc := NewAnthropicProvider(Options{Endpoint: srv.URL, APIKey: "k", Model: "claude"})
	stream, err := svc.Stream(context.Background(), userRequest("Hi"))
	require.NoError(t, err)

	_, err = drain(t, stream)
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusTooManyRequests, svcErr.StatusCode)
	assert.True(t, svcErr.Temporary())
	// No retries
	assert.Len(t, srv.captured(), 1)
}
