package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/namielle/summabot/internal/observability"
)

// reservedNames are tool names executed server-side by the model provider.
// A client tool claiming one of these would shadow the server tool, so
// registration rejects them outright.
var reservedNames = map[string]bool{
	"web_search":     true,
	"web_fetch":      true,
	"code_execution": true,
	"bash_code_execution": true,
	"text_editor_code_execution": true,
}

// Registry holds the declared tool set and executes requests against it.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	order   []string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  observability.NewLogger(observability.LogConfig{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. It fails on empty or duplicate names, names reserved
// for server-side tools, and schemas that do not compile. Registration
// errors are configuration errors and should abort startup.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if reservedNames[name] {
		return fmt.Errorf("tool name %q is reserved for a server-side tool", name)
	}

	schema, err := jsonschema.CompileString(name+".schema.json", string(t.Schema()))
	if err != nil {
		return fmt.Errorf("tool %q has invalid schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.schemas[name] = schema
	r.order = append(r.order, name)
	return nil
}

// MustRegister registers a set of tools, panicking on configuration errors.
func (r *Registry) MustRegister(ts ...Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Available returns the tools offered to a caller, in registration order.
// Tools whose required permission the caller lacks are omitted, so the
// model is never shown an action it cannot complete.
func (r *Registry) Available(ec ExecContext) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		if p := t.RequiredPermission(); p != "" && !ec.Has(p) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Specs returns declarations for the caller's available tools.
func (r *Registry) Specs(ec ExecContext) []Spec {
	available := r.Available(ec)
	specs := make([]Spec, len(available))
	for i, t := range available {
		specs[i] = Spec{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()}
	}
	return specs
}

// Status returns the progress line for a pending tool request.
func (r *Registry) Status(name string, input json.RawMessage) string {
	r.mu.RLock()
	t := r.tools[name]
	r.mu.RUnlock()
	if t == nil {
		return "Using a tool..."
	}
	return t.Status(input)
}

// Execute runs a tool request and always returns a result string. Unknown
// tools, permission gaps, invalid arguments, and panics all come back as
// text for the model rather than errors.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage, ec ExecContext) (result string) {
	start := time.Now()
	status := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(ctx, "tool panicked", "tool", name, "panic", fmt.Sprint(rec))
			result = fmt.Sprintf("Error: the %s tool failed unexpectedly.", name)
			status = "error"
		}
		if r.metrics != nil {
			r.metrics.RecordToolExecution(name, status, time.Since(start).Seconds())
		}
	}()

	r.mu.RLock()
	t := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if t == nil {
		status = "error"
		return fmt.Sprintf("Error: unknown tool %q.", name)
	}
	// Grants are re-checked at execution even though ungranted tools are
	// not offered; a round may span a permission change.
	if p := t.RequiredPermission(); p != "" && !ec.Has(p) {
		status = "error"
		return fmt.Sprintf("Error: the %s tool requires the %s permission, which is not granted here.", name, p)
	}

	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		status = "error"
		return fmt.Sprintf("Error: arguments for %s are not valid JSON: %v", name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		status = "error"
		return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
	}

	out := t.Execute(ctx, input, ec)
	if out == "" {
		out = "(no output)"
	}
	return out
}
