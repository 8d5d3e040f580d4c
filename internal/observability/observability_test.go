package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harun/aoichat/pkg/completion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_RecordToolCall(t *testing.T) {
	buf := &bytes.Buffer{}
	audit := NewAuditWriter(buf, "session-1")

	audit.RecordToolCall(context.Background(), completion.ToolCallRecord{
		Provider: "azure",
		Call:     completion.ToolCall{ID: "call_1", Name: "now", Arguments: "{}"},
		Approved: true,
		Output:   "Wednesday, March 5, 2025 9:07 PM",
		Duration: 3 * time.Millisecond,
	})
	audit.RecordToolCall(context.Background(), completion.ToolCallRecord{
		Provider: "azure",
		Call:     completion.ToolCall{ID: "call_2", Name: "days_ago", Arguments: `{"days":"x"}`},
		Approved: true,
		Error:    "invalid arguments",
	})
	audit.RecordToolCall(context.Background(), completion.ToolCallRecord{
		Call:     completion.ToolCall{ID: "call_3", Name: "time"},
		Approved: false,
		Error:    "the user denied the call to time",
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "tool", first["type"])
	assert.Equal(t, "session-1", first["actor"])
	assert.Equal(t, "execute:now", first["action"])
	assert.Equal(t, "success", first["status"])
	assert.NotEmpty(t, first["timestamp"])

	metadata, ok := first["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "call_1", metadata["tool_call_id"])
	assert.EqualValues(t, 3, metadata["duration_ms"])

	assert.Contains(t, lines[1], `"status":"failure"`)
	assert.Contains(t, lines[2], `"status":"denied"`)
}

func TestAuditLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")

	audit, err := NewAuditLogger(path, "session-2")
	require.NoError(t, err)
	audit.Record(context.Background(), AuditEvent{Type: "session", Action: "start", Status: "success"})
	require.NoError(t, audit.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"actor":"session-2"`)
	assert.Contains(t, string(data), `"action":"start"`)
}

type stubService struct {
	fragments []string
	err       error
	startErr  error
}

func (s *stubService) Provider() string { return "stub" }

func (s *stubService) Stream(context.Context, completion.Request) (completion.Stream, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &stubStream{fragments: s.fragments, err: s.err}, nil
}

type stubStream struct {
	fragments []string
	current   string
	err       error
}

func (s *stubStream) Next() bool {
	if len(s.fragments) == 0 {
		return false
	}
	s.current, s.fragments = s.fragments[0], s.fragments[1:]
	return true
}

func (s *stubStream) Current() string { return s.current }
func (s *stubStream) Err() error      { return s.err }
func (s *stubStream) Close() error    { return nil }

func drain(t *testing.T, svc completion.Service) string {
	t.Helper()
	stream, err := svc.Stream(context.Background(), completion.Request{})
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for stream.Next() {
		sb.WriteString(stream.Current())
	}
	_ = stream.Close()
	return sb.String()
}

func TestMetrics_InstrumentService(t *testing.T) {
	metrics := NewMetrics()

	ok := InstrumentService(&stubService{fragments: []string{"a", "b", "c"}}, metrics)
	assert.Equal(t, "stub", ok.Provider())
	assert.Equal(t, "abc", drain(t, ok))

	failing := InstrumentService(&stubService{fragments: []string{"x"}, err: errors.New("boom")}, metrics)
	drain(t, failing)

	refused := InstrumentService(&stubService{startErr: context.Canceled}, metrics)
	drain(t, refused)

	metrics.RecordToolCall(context.Background(), completion.ToolCallRecord{
		Call:     completion.ToolCall{Name: "now"},
		Approved: true,
		Output:   "noon",
	})

	path := filepath.Join(t.TempDir(), "aoichat.prom")
	require.NoError(t, metrics.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `aoichat_completions_total{provider="stub",status="success"} 1`)
	assert.Contains(t, out, `aoichat_completions_total{provider="stub",status="error"} 1`)
	assert.Contains(t, out, `aoichat_completions_total{provider="stub",status="canceled"} 1`)
	assert.Contains(t, out, `aoichat_fragments_total{provider="stub"} 4`)
	assert.Contains(t, out, `aoichat_tool_calls_total{status="success",tool="now"} 1`)
	assert.Contains(t, out, "aoichat_completion_duration_seconds_count")
}

func TestMetrics_ClosedBeforeEnd(t *testing.T) {
	metrics := NewMetrics()

	svc := InstrumentService(&stubService{fragments: []string{"a", "b", "c"}}, metrics)
	stream, err := svc.Stream(context.Background(), completion.Request{})
	require.NoError(t, err)
	require.True(t, stream.Next())
	require.NoError(t, stream.Close())

	ctx, cancel := context.WithCancel(context.Background())
	stream, err = svc.Stream(ctx, completion.Request{})
	require.NoError(t, err)
	require.True(t, stream.Next())
	cancel()
	require.NoError(t, stream.Close())

	// Close after the end event records nothing more
	stream, err = svc.Stream(context.Background(), completion.Request{})
	require.NoError(t, err)
	for stream.Next() {
	}
	require.NoError(t, stream.Close())

	path := filepath.Join(t.TempDir(), "aoichat.prom")
	require.NoError(t, metrics.WriteToTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `aoichat_completions_total{provider="stub",status="abandoned"} 1`)
	assert.Contains(t, out, `aoichat_completions_total{provider="stub",status="canceled"} 1`)
	assert.Contains(t, out, `aoichat_completions_total{provider="stub",status="success"} 1`)
	assert.NotContains(t, out, `status="error"`)
}

func TestRecorders_FanOut(t *testing.T) {
	buf := &bytes.Buffer{}
	metrics := NewMetrics()
	recorders := completion.Recorders{NewAuditWriter(buf, "s"), metrics, nil}

	recorders.RecordToolCall(context.Background(), completion.ToolCallRecord{
		Call:     completion.ToolCall{Name: "year"},
		Approved: true,
		Output:   "2025",
	})

	assert.Contains(t, buf.String(), "execute:year")
	families, err := metrics.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
