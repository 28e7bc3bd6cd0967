// Package core provides the shared framework types for gateway tool
// execution: the tool interface and registry, execution policies, the
// response envelope, and the error taxonomy every failure path maps into.
package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Tool execution status constants.
const (
	ToolComplete = "complete"
	ToolFailed   = "failed"
	ToolCanceled = "canceled"
)

// Tool is one remote operation exposed through the gateway. Implementations
// validate their own input and call exactly one exchange endpoint.
type Tool interface {
	Name() string
	InputSchema() []byte
	OutputSchema() []byte
	Execute(tc *ToolContext) *ToolExecResult
}

// ToolContext carries context for tool execution.
type ToolContext struct {
	Ctx     context.Context
	Request *Message
}

// ToolExecResult is the result of a tool execution. Err carries the typed
// error for classification; Error is its serialized form.
type ToolExecResult struct {
	Status   string         `json:"status"`
	Output   interface{}    `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Err      error          `json:"-"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Message represents an inbound invocation message.
type Message struct {
	Role    string              `json:"role,omitempty"`
	Content string              `json:"content,omitempty"`
	ToolReq *ToolRequestPayload `json:"tool_req,omitempty"`
}

// ToolRequestPayload holds tool invocation data.
type ToolRequestPayload struct {
	Name     string          `json:"name,omitempty"`
	Input    any             `json:"input,omitempty"`
	InputRaw json.RawMessage `json:"input_raw,omitempty"`
}

// ToolPolicy defines per-tool execution policy. The gateway enforces
// DefaultTimeout, the per-class rate (RateLimitPerSec/Burst keyed by
// LimitKey), and the daily budget. Retriable is declarative metadata for
// callers; the gateway never retries internally.
type ToolPolicy struct {
	Retriable       bool          `json:"retriable"`
	DefaultTimeout  time.Duration `json:"default_timeout"`
	RateLimitPerSec float64       `json:"rate_limit_per_sec"`
	Burst           int           `json:"burst"`
	LimitKey        string        `json:"limit_key"`
	BudgetPerDay    float64       `json:"budget_per_day"`
	CostPerCall     float64       `json:"cost_per_call"`
}

// ToolRegistry is a registry for tools with policies, safe for concurrent
// lookup while serving.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
	order []string
}

type registeredTool struct {
	tool      Tool
	policy    ToolPolicy
	riskClass string
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]registeredTool)}
}

// Register registers a tool with a policy and risk class. Re-registering a
// name replaces the previous entry.
func (r *ToolRegistry) Register(tool Tool, policy ToolPolicy, riskClass string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = registeredTool{
		tool:      tool,
		policy:    policy,
		riskClass: riskClass,
	}
}

// Get returns the tool and policy registered under name.
func (r *ToolRegistry) Get(name string) (Tool, ToolPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, ToolPolicy{}, false
	}
	return reg.tool, reg.policy, true
}

// RiskClass returns the risk class a tool was registered with.
func (r *ToolRegistry) RiskClass(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name].riskClass
}

// Names returns registered tool names in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
