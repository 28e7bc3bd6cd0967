package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantarc/binance-gateway/core"
	"github.com/quantarc/binance-gateway/pkg/binance"
	"github.com/quantarc/binance-gateway/pkg/metrics"
	"github.com/quantarc/binance-gateway/pkg/ratelimit"
)

const defaultToolTimeout = 30 * time.Second

// Weigher reports the request weight of one invocation. Tools whose weight
// depends on their input implement it; otherwise the policy's CostPerCall
// is charged.
type Weigher interface {
	Weight(input json.RawMessage) int
}

// Gateway funnels every tool call through policy gates, the shared rate
// limiter, and client acquisition, and wraps the outcome in an envelope.
// Every failure path produces exactly one envelope; nothing is swallowed
// and nothing is retried.
type Gateway struct {
	registry *core.ToolRegistry
	limiter  *ratelimit.Limiter
	manager  *Manager
	builder  *core.Builder
	gate     *policyGate
	metrics  *metrics.GatewayMetrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics records request metrics on the given collector.
func WithMetrics(gm *metrics.GatewayMetrics) Option {
	return func(gw *Gateway) { gw.metrics = gm }
}

// New creates a Gateway over the given registry, limiter, manager, and
// envelope builder.
func New(registry *core.ToolRegistry, limiter *ratelimit.Limiter, manager *Manager, builder *core.Builder, opts ...Option) *Gateway {
	gw := &Gateway{
		registry: registry,
		limiter:  limiter,
		manager:  manager,
		builder:  builder,
		gate:     newPolicyGate(),
	}
	for _, opt := range opts {
		opt(gw)
	}
	return gw
}

// Execute runs one tool call end to end and always returns an envelope.
func (gw *Gateway) Execute(ctx context.Context, name string, input json.RawMessage) *core.Envelope {
	start := time.Now()
	if gw.metrics != nil {
		gw.metrics.RequestStarted()
		defer gw.metrics.RequestFinished()
	}

	envelope := gw.execute(ctx, name, input)

	if gw.metrics != nil {
		status := "success"
		if !envelope.Success {
			status = string(envelope.Error.Type)
		}
		gw.metrics.RecordRequest(name, status, time.Since(start).Seconds())
	}
	return envelope
}

func (gw *Gateway) execute(ctx context.Context, name string, input json.RawMessage) *core.Envelope {
	tool, policy, ok := gw.registry.Get(name)
	if !ok {
		return gw.builder.Error(core.KindTool, fmt.Sprintf("unknown tool: %s", name))
	}

	// Per-class policy gate: tool rate classes and daily budgets.
	if err := gw.gate.admit(name, policy); err != nil {
		if gw.metrics != nil {
			gw.metrics.RecordRateLimitRejection("policy")
		}
		return gw.builder.FromError(err)
	}

	// Shared exchange quota. Rejection carries when to come back.
	weight := gw.weightOf(tool, policy, input)
	decision := gw.limiter.Allow(weight)
	if !decision.Allowed {
		if gw.metrics != nil {
			gw.metrics.RecordRateLimitRejection(decision.Window)
		}
		msg := fmt.Sprintf("rate limit exceeded, retry after %s", decision.RetryAfter.Round(time.Millisecond))
		return gw.builder.Error(core.KindRateLimit, msg)
	}
	if gw.metrics != nil {
		gw.metrics.RecordWeight(weight)
	}

	// Client must be healthy before the tool runs; config and connectivity
	// faults surface here without any endpoint call.
	if _, err := gw.manager.Client(ctx); err != nil {
		gw.recordAPIError(err)
		return gw.builder.FromError(err)
	}

	timeout := policy.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := gw.run(tool, &core.ToolContext{
		Ctx: runCtx,
		Request: &core.Message{
			Role:    "user",
			ToolReq: &core.ToolRequestPayload{Name: name, InputRaw: input},
		},
	})

	if res.Status == core.ToolComplete {
		return gw.builder.Success(res.Output, res.Metadata)
	}

	err := res.Err
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	gw.recordAPIError(err)

	message := res.Error
	if message == "" && err != nil {
		message = err.Error()
	}
	if message == "" {
		message = "tool execution failed"
	}
	return gw.builder.Error(core.Classify(err), message)
}

// run executes the tool. A panicking tool must still produce an envelope.
func (gw *Gateway) run(tool core.Tool, tc *core.ToolContext) (res *core.ToolExecResult) {
	defer func() {
		if r := recover(); r != nil {
			res = &core.ToolExecResult{
				Status: core.ToolFailed,
				Error:  fmt.Sprintf("tool panicked: %v", r),
			}
		}
	}()

	res = tool.Execute(tc)
	if res == nil {
		res = &core.ToolExecResult{Status: core.ToolFailed, Error: "tool returned no result"}
	}
	return res
}

func (gw *Gateway) weightOf(tool core.Tool, policy core.ToolPolicy, input json.RawMessage) int {
	if w, ok := tool.(Weigher); ok {
		if weight := w.Weight(input); weight > 0 {
			return weight
		}
	}
	if policy.CostPerCall > 0 {
		return int(policy.CostPerCall)
	}
	return 1
}

func (gw *Gateway) recordAPIError(err error) {
	if gw.metrics == nil || err == nil {
		return
	}
	if apiErr, ok := binance.AsAPIError(err); ok {
		gw.metrics.RecordAPIError(apiErr.Code)
	}
}
