package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/namielle/summabot/internal/artifacts"
	"github.com/namielle/summabot/internal/observability"
	"github.com/namielle/summabot/internal/tools"
)

const (
	// DefaultMaxServerContinuations bounds pause_turn resubmissions per call.
	DefaultMaxServerContinuations = 3
	// DefaultMaxToolRounds bounds client tool rounds per call.
	DefaultMaxToolRounds = 3
)

// wrapUpPrompt closes a conversation that ran out of continuation budget.
// Client tools are withheld on this round so the model cannot start new work.
const wrapUpPrompt = "Please stop using tools now and give your final answer based on what you have so far."

// recoveryPrompt fires once when a finished conversation produced no text at
// all, which otherwise reads as the bot silently ignoring the user.
const recoveryPrompt = "Please reply now with a short text answer to the request above."

// toolBudgetExhausted answers tool calls from a round past the tool ceiling,
// keeping every request paired with a result in the transcript.
const toolBudgetExhausted = "Error: tool call limit reached for this conversation. Answer with the information you already have."

// Engine runs the conversation loop. One Engine is shared across calls; all
// per-call state lives on the stack of Run.
type Engine struct {
	provider Provider
	resolver *artifacts.Resolver
	logger   *observability.Logger
	metrics  *observability.Metrics

	maxServerContinuations int
	maxToolRounds          int
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver sets the artifact resolver. Without one, artifact references
// are dropped after the loop.
func WithResolver(r *artifacts.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCeilings overrides the continuation and tool-round ceilings.
// Non-positive values keep the defaults.
func WithCeilings(serverContinuations, toolRounds int) Option {
	return func(e *Engine) {
		if serverContinuations > 0 {
			e.maxServerContinuations = serverContinuations
		}
		if toolRounds > 0 {
			e.maxToolRounds = toolRounds
		}
	}
}

// New creates an engine over a provider.
func New(provider Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:               provider,
		logger:                 observability.NewLogger(observability.LogConfig{}),
		maxServerContinuations: DefaultMaxServerContinuations,
		maxToolRounds:          DefaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives one conversation to completion.
//
// The loop opens streaming rounds and dispatches on the stop signal:
// pause_turn resubmits with the same tools, tool_use executes the requested
// client tools and resubmits with their results, end_turn finalizes. Each
// signal has its own ceiling; exhausting either finalizes the call as a
// degraded success after one wrap-up round with client tools withheld. If the
// whole transcript produced no text, one recovery round is attempted. Both
// extra rounds are single-shot and sit outside the ceilings.
//
// Only transport and authentication failures return an error.
func (e *Engine) Run(ctx context.Context, system string, turns []Turn, exec ToolExecutor, status StatusFunc) (*Result, error) {
	sink := e.safeSink(ctx, status)
	conv := append([]Turn(nil), turns...)

	var specs []tools.Spec
	if exec != nil {
		specs = exec.Specs()
	}

	var rounds []*Round
	serverContinuations := 0
	toolRounds := 0
	degraded := false

loop:
	for {
		round, err := e.round(ctx, system, conv, specs, sink, "loop")
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
		conv = append(conv, round.Assistant)

		switch round.Stop {
		case StopPauseTurn:
			if serverContinuations >= e.maxServerContinuations {
				e.logger.Warn(ctx, "continuation ceiling reached", "rounds", len(rounds))
				degraded = true
				break loop
			}
			serverContinuations++

		case StopToolUse:
			if exec == nil || len(round.ToolCalls) == 0 {
				// No executor: answer the calls so the transcript stays
				// well-paired if a recovery round resubmits it.
				if len(round.ToolCalls) > 0 {
					conv = append(conv, exhaustedResults(round.ToolCalls))
				}
				break loop
			}
			if toolRounds >= e.maxToolRounds {
				e.logger.Warn(ctx, "tool round ceiling reached", "rounds", len(rounds))
				degraded = true
				conv = append(conv, exhaustedResults(round.ToolCalls))
				break loop
			}
			toolRounds++
			conv = append(conv, e.runTools(ctx, exec, round.ToolCalls, sink))

		default:
			break loop
		}
	}

	if degraded {
		conv = append(conv, UserTurn(wrapUpPrompt))
		round, err := e.round(ctx, system, conv, nil, sink, "wrapup")
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
		conv = append(conv, round.Assistant)
	}

	text := assemble(rounds)
	if text == "" {
		conv = append(conv, UserTurn(recoveryPrompt))
		round, err := e.round(ctx, system, conv, nil, sink, "recovery")
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
		text = assemble(rounds)
	}

	var refs []artifacts.Ref
	for _, r := range rounds {
		refs = append(refs, r.Artifacts...)
	}
	var resolved []artifacts.Resolved
	if e.resolver != nil && len(refs) > 0 {
		resolved = e.resolver.Resolve(ctx, refs)
	}

	return &Result{Text: text, Artifacts: resolved, Degraded: degraded}, nil
}

func (e *Engine) round(ctx context.Context, system string, conv []Turn, specs []tools.Spec, sink StatusFunc, kind string) (*Round, error) {
	sink("Thinking...")
	round, err := e.provider.Stream(ctx, RoundRequest{
		System: system,
		Turns:  conv,
		Tools:  specs,
		Status: sink,
	})
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordRound(string(round.Stop), kind)
	}
	return round, nil
}

// runTools executes the round's tool calls sequentially and returns the
// result turn. Results land in request order regardless of outcome.
func (e *Engine) runTools(ctx context.Context, exec ToolExecutor, calls []ToolCall, sink StatusFunc) Turn {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		sink(exec.Status(call.Name, call.Input))
		out := exec.Execute(ctx, call.Name, call.Input)
		results = append(results, ToolResult{
			ToolCallID: call.ID,
			Content:    out,
			IsError:    strings.HasPrefix(out, "Error:"),
		})
	}
	return ResultsTurn(results)
}

func exhaustedResults(calls []ToolCall) Turn {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, ToolResult{
			ToolCallID: call.ID,
			Content:    toolBudgetExhausted,
			IsError:    true,
		})
	}
	return ResultsTurn(results)
}

// assemble concatenates text blocks across rounds in emission order. Stdout
// blocks keep a fenced rendering so machine output reads apart from prose.
func assemble(rounds []*Round) string {
	var parts []string
	for _, r := range rounds {
		for _, p := range r.Parts {
			text := strings.TrimSpace(p.Text)
			if text == "" {
				continue
			}
			if p.Kind == PartStdout {
				text = fmt.Sprintf("```\n%s\n```", text)
			}
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// safeSink wraps the caller's status callback so delivery problems never
// reach the loop.
func (e *Engine) safeSink(ctx context.Context, status StatusFunc) StatusFunc {
	return func(s string) {
		if status == nil || s == "" {
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				e.logger.Warn(ctx, "status sink panicked", "panic", fmt.Sprint(rec))
			}
		}()
		status(s)
	}
}
