package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/aoichat/pkg/completion"
	"github.com/rs/zerolog"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"` // session ID
	Action    string                 `json:"action"`          // e.g. "execute:now"
	Status    string                 `json:"status"`          // "success", "failure", "denied"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AuditLogger appends audit events as JSON lines
type AuditLogger struct {
	logger zerolog.Logger
	actor  string
	mu     sync.Mutex
	file   *os.File
}

// NewAuditLogger opens (or creates) a JSONL audit file. Every event is
// attributed to actor unless the event names its own.
func NewAuditLogger(path, actor string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	a := NewAuditWriter(file, actor)
	a.file = file
	return a, nil
}

// NewAuditWriter creates an audit logger over an arbitrary writer
func NewAuditWriter(w io.Writer, actor string) *AuditLogger {
	return &AuditLogger{
		logger: zerolog.New(w),
		actor:  actor,
	}
}

// Record emits an audit event
func (a *AuditLogger) Record(_ context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Actor == "" {
		event.Actor = a.actor
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("timestamp", event.Timestamp).
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Send()
}

// RecordToolCall implements completion.ToolCallRecorder
func (a *AuditLogger) RecordToolCall(ctx context.Context, record completion.ToolCallRecord) {
	metadata := map[string]interface{}{
		"provider":     record.Provider,
		"tool_call_id": record.Call.ID,
		"arguments":    record.Call.Arguments,
		"duration_ms":  record.Duration.Milliseconds(),
	}
	if record.Error != "" {
		metadata["error"] = record.Error
	} else {
		metadata["output_bytes"] = len(record.Output)
	}

	a.Record(ctx, AuditEvent{
		Type:     "tool",
		Action:   "execute:" + record.Call.Name,
		Status:   toolStatus(record),
		Metadata: metadata,
	})
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

func toolStatus(record completion.ToolCallRecord) string {
	switch {
	case !record.Approved:
		return "denied"
	case record.Error != "":
		return "failure"
	default:
		return "success"
	}
}
