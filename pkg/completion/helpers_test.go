package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// capturedRequest is one request seen by sseServer
type capturedRequest struct {
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   map[string]interface{}
	Raw    string
}

// sseServer replays one scripted response per request
type sseServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses []func(w http.ResponseWriter)
	requests  []capturedRequest
}

func newSSEServer(t *testing.T, responses ...func(w http.ResponseWriter)) *sseServer {
	t.Helper()
	s := &sseServer{responses: responses}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *sseServer) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	body := map[string]interface{}{}
	_ = json.Unmarshal(raw, &body)

	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
		Raw:    string(raw),
	})
	var respond func(w http.ResponseWriter)
	if len(s.responses) > 0 {
		respond = s.responses[0]
		s.responses = s.responses[1:]
	}
	s.mu.Unlock()

	if respond == nil {
		http.Error(w, `{"error":{"message":"no scripted response"}}`, http.StatusInternalServerError)
		return
	}
	respond(w)
}

func (s *sseServer) captured() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

// events writes an SSE body; each entry is "event\x00data" or just "data"
func events(entries ...string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, entry := range entries {
			if name, data, ok := strings.Cut(entry, "\x00"); ok {
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", entry)
		}
	}
}

func jsonError(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func drain(t *testing.T, stream Stream) (string, error) {
	t.Helper()
	var sb strings.Builder
	for stream.Next() {
		sb.WriteString(stream.Current())
	}
	_ = stream.Close()
	return sb.String(), stream.Err()
}

// fakeToolset answers every call from a fixed table
type fakeToolset struct {
	mu      sync.Mutex
	outputs map[string]string
	calls   []ToolCall
}

func (f *fakeToolset) Specs() []ToolSpec {
	return []ToolSpec{{
		Name:        "time",
		Description: "Get the current time",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
			"required":   []string{},
		},
	}}
}

func (f *fakeToolset) Invoke(_ context.Context, name, arguments string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ToolCall{Name: name, Arguments: arguments})
	out, ok := f.outputs[name]
	if !ok {
		return "", fmt.Errorf("tool not found: %s", name)
	}
	return out, nil
}

type staticApprover struct {
	answer bool
	err    error
	asked  []ToolCall
}

func (a *staticApprover) Approve(_ context.Context, call ToolCall) (bool, error) {
	a.asked = append(a.asked, call)
	return a.answer, a.err
}

type memoryRecorder struct {
	records []ToolCallRecord
}

func (m *memoryRecorder) RecordToolCall(_ context.Context, record ToolCallRecord) {
	m.records = append(m.records, record)
}
