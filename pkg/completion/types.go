package completion

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of the conversation sent to the completion service
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolBehavior controls whether the model may call registered tools on its own
type ToolBehavior string

const (
	// ToolBehaviorAuto invokes tool calls without asking
	ToolBehaviorAuto ToolBehavior = "auto"
	// ToolBehaviorManual asks the Approver before every tool call
	ToolBehaviorManual ToolBehavior = "manual"
	// ToolBehaviorNone does not advertise tools to the model
	ToolBehaviorNone ToolBehavior = "none"
)

// ParseToolBehavior parses a tool behavior name
func ParseToolBehavior(s string) (ToolBehavior, error) {
	switch ToolBehavior(strings.ToLower(strings.TrimSpace(s))) {
	case "", ToolBehaviorAuto:
		return ToolBehaviorAuto, nil
	case ToolBehaviorManual:
		return ToolBehaviorManual, nil
	case ToolBehaviorNone:
		return ToolBehaviorNone, nil
	default:
		return "", fmt.Errorf("invalid tool behavior %q (must be: auto, manual, none)", s)
	}
}

// ExecutionSettings are the per-session generation settings
type ExecutionSettings struct {
	SystemPrompt  string       `json:"system_prompt"`
	Temperature   float64      `json:"temperature"`
	ToolBehavior  ToolBehavior `json:"tool_behavior"`
	MaxTokens     int          `json:"max_tokens,omitempty"`
	MaxToolRounds int          `json:"max_tool_rounds,omitempty"`
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() ExecutionSettings {
	return ExecutionSettings{
		SystemPrompt:  "You're a virtual assistant that helps people find information.",
		Temperature:   0.7,
		ToolBehavior:  ToolBehaviorAuto,
		MaxTokens:     4096,
		MaxToolRounds: 10,
	}
}

// Validate checks the settings
func (s ExecutionSettings) Validate() error {
	if s.Temperature < 0 || s.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %v", s.Temperature)
	}
	if s.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if s.MaxToolRounds < 0 {
		return fmt.Errorf("max tool rounds cannot be negative")
	}
	if _, err := ParseToolBehavior(string(s.ToolBehavior)); err != nil {
		return err
	}
	return nil
}

func (s ExecutionSettings) maxToolRounds() int {
	if s.MaxToolRounds <= 0 {
		return 10
	}
	return s.MaxToolRounds
}

func (s ExecutionSettings) maxTokens() int {
	if s.MaxTokens <= 0 {
		return 4096
	}
	return s.MaxTokens
}

// ToolSpec describes a callable tool; Parameters is a JSON schema object
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Toolset is the set of tools declared to the model
type Toolset interface {
	Specs() []ToolSpec
	Invoke(ctx context.Context, name string, arguments string) (string, error)
}

// Approver confirms tool calls under ToolBehaviorManual
type Approver interface {
	Approve(ctx context.Context, call ToolCall) (bool, error)
}

// ToolCallRecord describes one resolved tool call
type ToolCallRecord struct {
	Provider string        `json:"provider"`
	Call     ToolCall      `json:"call"`
	Approved bool          `json:"approved"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ToolCallRecorder receives every resolved tool call
type ToolCallRecorder interface {
	RecordToolCall(ctx context.Context, record ToolCallRecord)
}

// Recorders fans every record out to each recorder in order
type Recorders []ToolCallRecorder

func (r Recorders) RecordToolCall(ctx context.Context, record ToolCallRecord) {
	for _, rec := range r {
		if rec != nil {
			rec.RecordToolCall(ctx, record)
		}
	}
}

// Request is one completion request
type Request struct {
	Messages []Message
	Settings ExecutionSettings
	Tools    Toolset
	Approver Approver
	Recorder ToolCallRecorder
}

func (r Request) toolsEnabled() bool {
	return r.Tools != nil && r.Settings.ToolBehavior != ToolBehaviorNone && len(r.Tools.Specs()) > 0
}

// Stream is a lazy, finite, non-restartable sequence of text fragments.
// Next returns false once the stream is drained or failed; Err tells which.
type Stream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Service submits a conversation and returns the streamed answer
type Service interface {
	Stream(ctx context.Context, req Request) (Stream, error)
	Provider() string
}
