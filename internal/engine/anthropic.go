package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/namielle/summabot/internal/artifacts"
	"github.com/namielle/summabot/internal/observability"
	"github.com/namielle/summabot/internal/tools"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64

	// Server-side tools offered to the model.
	WebSearch     bool
	WebFetch      bool
	CodeExecution bool

	// MaxRetries bounds retry attempts for transient failures; RetryDelay is
	// the backoff base, doubled per attempt.
	MaxRetries int
	RetryDelay time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// AnthropicProvider opens streaming rounds against the Anthropic Messages
// API, using the beta surface so server tools and the Files API are
// available in one request.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64

	webSearch     bool
	webFetch      bool
	codeExecution bool

	maxRetries int
	retryDelay time.Duration

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewAnthropicProvider creates a provider from config.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.LogConfig{})
	}

	return &AnthropicProvider{
		client:        anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		webSearch:     cfg.WebSearch,
		webFetch:      cfg.WebFetch,
		codeExecution: cfg.CodeExecution,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}, nil
}

// Client exposes the underlying API client for collaborators that issue
// their own requests, such as the artifact file store.
func (p *AnthropicProvider) Client() *anthropic.Client {
	return &p.client
}

// Stream runs one round to termination and returns its decoded form.
// Transient failures are retried with exponential backoff; anything else is
// terminal for the call.
func (p *AnthropicProvider) Stream(ctx context.Context, req RoundRequest) (*Round, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var round *Round
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		stream := p.client.Beta.Messages.NewStreaming(ctx, *params)
		round, lastErr = p.consume(stream, req.Status)
		if lastErr == nil {
			break
		}
		if !isRetryableError(lastErr) {
			return nil, fmt.Errorf("anthropic: %w", lastErr)
		}
		p.logger.Warn(ctx, "retrying round", "attempt", attempt+1, "error", lastErr)
		if attempt < p.maxRetries {
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("anthropic: retries exhausted: %w", lastErr)
	}

	if p.metrics != nil {
		p.metrics.RecordRequest(p.model, time.Since(start).Seconds(), round.InputTokens, round.OutputTokens)
	}
	return round, nil
}

func (p *AnthropicProvider) params(req RoundRequest) (*anthropic.BetaMessageNewParams, error) {
	messages, err := convertTurns(req.Turns)
	if err != nil {
		return nil, err
	}

	params := anthropic.BetaMessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  messages,
		MaxTokens: p.maxTokens,
		Betas:     p.betas(),
	}

	if req.System != "" {
		params.System = []anthropic.BetaTextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	toolParams, err := p.toolParams(req.Tools)
	if err != nil {
		return nil, err
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}

	return &params, nil
}

func (p *AnthropicProvider) betas() []anthropic.AnthropicBeta {
	// Files API is always on: artifact downloads need it even when code
	// execution produced the files on an earlier round.
	betas := []anthropic.AnthropicBeta{anthropic.AnthropicBetaFilesAPI2025_04_14}
	if p.codeExecution {
		betas = append(betas, anthropic.AnthropicBetaCodeExecution2025_05_22)
	}
	if p.webFetch {
		// The SDK defines the web fetch tool but not its beta header
		// constant; AnthropicBeta is a string alias.
		betas = append(betas, anthropic.AnthropicBeta("web-fetch-2025-09-10"))
	}
	return betas
}

func (p *AnthropicProvider) toolParams(specs []tools.Spec) ([]anthropic.BetaToolUnionParam, error) {
	var out []anthropic.BetaToolUnionParam

	if p.webSearch {
		out = append(out, anthropic.BetaToolUnionParam{
			OfWebSearchTool20250305: &anthropic.BetaWebSearchTool20250305Param{},
		})
	}
	if p.webFetch {
		out = append(out, anthropic.BetaToolUnionParam{
			OfWebFetchTool20250910: &anthropic.BetaWebFetchTool20250910Param{},
		})
	}
	if p.codeExecution {
		out = append(out, anthropic.BetaToolUnionParam{
			OfCodeExecutionTool20250522: &anthropic.BetaCodeExecutionTool20250522Param{},
		})
	}

	for _, spec := range specs {
		var schema anthropic.BetaToolInputSchemaParam
		if err := json.Unmarshal(spec.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", spec.Name, err)
		}
		tool := anthropic.BetaToolUnionParamOfTool(schema, spec.Name)
		if spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		out = append(out, tool)
	}

	return out, nil
}

// convertTurns converts conversation turns to the beta message format. A
// turn carrying its provider-encoded form is passed through untouched so
// server tool blocks survive resubmission.
func convertTurns(turns []Turn) ([]anthropic.BetaMessageParam, error) {
	var result []anthropic.BetaMessageParam

	for _, t := range turns {
		if raw, ok := t.raw.(anthropic.BetaMessageParam); ok {
			result = append(result, raw)
			continue
		}

		var content []anthropic.BetaContentBlockParamUnion

		if t.Text != "" {
			content = append(content, anthropic.NewBetaTextBlock(t.Text))
		}

		for _, toolResult := range t.ToolResults {
			block := anthropic.BetaToolResultBlockParam{
				ToolUseID: toolResult.ToolCallID,
			}
			if toolResult.IsError {
				block.IsError = anthropic.Bool(true)
			}
			if toolResult.Content != "" {
				block.Content = []anthropic.BetaToolResultBlockParamContentUnion{
					{OfText: &anthropic.BetaTextBlockParam{Text: toolResult.Content}},
				}
			}
			content = append(content, anthropic.BetaContentBlockParamUnion{
				OfToolResult: &block,
			})
		}

		for _, toolCall := range t.ToolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal(toolCall.Input, &input); err != nil {
				return nil, fmt.Errorf("anthropic: invalid tool call input: %w", err)
			}
			content = append(content, anthropic.NewBetaToolUseBlock(
				toolCall.ID,
				input,
				toolCall.Name,
			))
		}

		if len(content) == 0 {
			continue
		}

		role := anthropic.BetaMessageParamRoleUser
		if t.Role == RoleAssistant {
			role = anthropic.BetaMessageParamRoleAssistant
		}
		result = append(result, anthropic.BetaMessageParam{
			Role:    role,
			Content: content,
		})
	}

	return result, nil
}

// consume drains the event stream, emitting progress statuses as server tool
// blocks open, and accumulates the full message for decoding.
func (p *AnthropicProvider) consume(stream *ssestream.Stream[anthropic.BetaRawMessageStreamEventUnion], status StatusFunc) (*Round, error) {
	var acc anthropic.BetaMessage
	var serverTool string
	var serverInput strings.Builder

	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return nil, err
		}

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type != "server_tool_use" {
				continue
			}
			serverTool = block.Name
			serverInput.Reset()
			switch block.Name {
			case "web_search":
				emit(status, "Searching the web...")
			case "code_execution", "bash_code_execution", "text_editor_code_execution":
				emit(status, "Running code...")
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "input_json_delta" && serverTool != "" {
				serverInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			// web_fetch's URL only exists once its input finished streaming.
			if serverTool == "web_fetch" {
				var input struct {
					URL string `json:"url"`
				}
				if json.Unmarshal([]byte(serverInput.String()), &input) == nil && input.URL != "" {
					emit(status, fmt.Sprintf("Fetching %s...", input.URL))
				} else {
					emit(status, "Fetching a page...")
				}
			}
			serverTool = ""
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	return decodeMessage(&acc)
}

// decodeMessage flattens an accumulated message into the round shape the
// loop consumes. The full encoded message rides along on the assistant turn
// for continuations.
func decodeMessage(msg *anthropic.BetaMessage) (*Round, error) {
	round := &Round{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			round.Parts = append(round.Parts, Part{Kind: PartText, Text: block.Text})
			text.WriteString(block.Text)

		case "tool_use":
			toolUse := block.AsToolUse()
			input, err := json.Marshal(toolUse.Input)
			if err != nil {
				return nil, fmt.Errorf("anthropic: tool call input: %w", err)
			}
			round.ToolCalls = append(round.ToolCalls, ToolCall{
				ID:    toolUse.ID,
				Name:  toolUse.Name,
				Input: input,
			})

		case "code_execution_tool_result", "bash_code_execution_tool_result":
			stdout, refs := decodeCodeResult(block.RawJSON())
			if stdout != "" {
				round.Parts = append(round.Parts, Part{Kind: PartStdout, Text: stdout})
			}
			round.Artifacts = append(round.Artifacts, refs...)
		}
	}

	switch string(msg.StopReason) {
	case "pause_turn":
		round.Stop = StopPauseTurn
	case "tool_use":
		round.Stop = StopToolUse
	default:
		round.Stop = StopEndTurn
	}

	round.Assistant = Turn{
		Role:      RoleAssistant,
		Text:      text.String(),
		ToolCalls: round.ToolCalls,
		raw:       msg.ToParam(),
	}
	return round, nil
}

// decodeCodeResult pulls stdout and generated file references out of a code
// execution result block.
func decodeCodeResult(raw string) (string, []artifacts.Ref) {
	var body struct {
		Content struct {
			Stdout  string `json:"stdout"`
			Content []struct {
				FileID string `json:"file_id"`
			} `json:"content"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return "", nil
	}
	var refs []artifacts.Ref
	for _, f := range body.Content.Content {
		if f.FileID != "" {
			refs = append(refs, artifacts.Ref{FileID: f.FileID})
		}
	}
	return body.Content.Stdout, refs
}

func emit(status StatusFunc, s string) {
	if status != nil {
		status(s)
	}
}

// isRetryableError reports whether a failure is worth another attempt: rate
// limits, server-side 5xx, and transport timeouts. Auth and validation
// failures are terminal.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") {
		return true
	}
	if strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504") ||
		strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "bad gateway") ||
		strings.Contains(msg, "service unavailable") ||
		strings.Contains(msg, "gateway timeout") ||
		strings.Contains(msg, "overloaded") {
		return true
	}
	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}
