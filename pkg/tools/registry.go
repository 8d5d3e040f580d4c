package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/aoichat/pkg/completion"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

const (
	defaultTimeout = 30 * time.Second
	maxOutputSize  = 10 * 1024
)

var (
	// ErrToolNotFound is returned when invoking an unknown tool
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolExists is returned when registering a duplicate name
	ErrToolExists = errors.New("tool already registered")
)

// Parameter defines a parameter for a tool
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for tool execution
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Definition defines a tool's metadata and handler
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

type entry struct {
	def    Definition
	schema map[string]interface{}
	loaded *gojsonschema.Schema
}

// Registry holds the tools the model may call. It implements completion.Toolset.
type Registry struct {
	tools   map[string]*entry
	timeout time.Duration
	mu      sync.RWMutex
}

var _ completion.Toolset = (*Registry)(nil)

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		tools:   make(map[string]*entry),
		timeout: defaultTimeout,
	}
}

// Register registers a new tool
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema := buildSchema(def)
	loaded, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolExists, def.Name)
	}
	r.tools[def.Name] = &entry{def: def, schema: schema, loaded: loaded}

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Names returns all registered tool names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the tool specs declared to the model, sorted by name
func (r *Registry) Specs() []completion.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]completion.ToolSpec, 0, len(r.tools))
	for _, e := range r.tools {
		specs = append(specs, completion.ToolSpec{
			Name:        e.def.Name,
			Description: e.def.Description,
			Parameters:  publicSchema(e.schema),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Invoke runs a tool with JSON-encoded arguments and returns its output as text
func (r *Registry) Invoke(ctx context.Context, name string, arguments string) (string, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	timeout := r.timeout
	r.mu.RUnlock()

	if !ok {
		log.Warn().Str("tool", name).Msg("Tool not found")
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	params := map[string]interface{}{}
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &params); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}

	if err := validateParameters(e.loaded, params); err != nil {
		log.Warn().Str("tool", name).Err(err).Msg("Parameter validation failed")
		return "", fmt.Errorf("parameter validation failed: %w", err)
	}

	for _, p := range e.def.Parameters {
		if _, set := params[p.Name]; !set && p.Default != nil {
			params[p.Name] = p.Default
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		output interface{}
		err    error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		output, err := e.def.Handler(timeoutCtx, params)
		done <- result{output: output, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
				log.Warn().Str("tool", name).Dur("timeout", timeout).Msg("Tool execution timeout")
				return "", fmt.Errorf("tool execution timeout after %v", timeout)
			}
			log.Warn().Str("tool", name).Dur("duration", time.Since(start)).Err(res.err).Msg("Tool execution failed")
			return "", res.err
		}
		text, err := formatOutput(res.output)
		if err != nil {
			return "", err
		}
		log.Debug().Str("tool", name).Dur("duration", time.Since(start)).Msg("Tool execution completed")
		return truncate(text), nil

	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Warn().Str("tool", name).Dur("timeout", timeout).Msg("Tool execution timeout")
		return "", fmt.Errorf("tool execution timeout after %v", timeout)
	}
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, param.Name)
		}
	}
	return nil
}

// buildSchema generates a JSON Schema from tool parameters
func buildSchema(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// publicSchema drops keys some providers refuse in tool parameter schemas
func publicSchema(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if k == "additionalProperties" {
			continue
		}
		out[k] = v
	}
	return out
}

func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := []string{}
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

func formatOutput(output interface{}) (string, error) {
	switch v := output.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode tool output: %w", err)
		}
		return string(data), nil
	}
}

func truncate(s string) string {
	if len(s) <= maxOutputSize {
		return s
	}
	log.Warn().Int("original", len(s)).Int("truncated", maxOutputSize).Msg("Output truncated")
	return s[:maxOutputSize] + "\n... [output truncated]"
}
