package tools

import (
	"context"
	"encoding/json"
)

// Bound couples the registry with one caller's context, giving the
// conversation loop a context-free executor. The permission-filtered tool
// set is computed fresh per binding, never cached across callers.
type Bound struct {
	registry *Registry
	ec       ExecContext
}

// Bind fixes an execution context for the duration of one conversation.
func (r *Registry) Bind(ec ExecContext) *Bound {
	return &Bound{registry: r, ec: ec}
}

// Specs returns the declarations offered to this caller.
func (b *Bound) Specs() []Spec {
	return b.registry.Specs(b.ec)
}

// Status returns the progress line for a pending tool request.
func (b *Bound) Status(name string, input json.RawMessage) string {
	return b.registry.Status(name, input)
}

// Execute runs a tool request under the bound context.
func (b *Bound) Execute(ctx context.Context, name string, input json.RawMessage) string {
	return b.registry.Execute(ctx, name, input, b.ec)
}
