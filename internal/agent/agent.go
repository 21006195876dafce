// Package agent implements the conversational assistant: one LLM prompt
// execution per user turn, with the model free to call any of the
// registered tools before synthesizing its final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/weftworks/loombot/internal/log"
	"github.com/weftworks/loombot/internal/tools"
)

const (
	// Name is the assistant's identifier, also the Dotprompt file name
	// (prompts/loombot.prompt). The model is configured in the prompt file.
	Name = "loombot"

	// ApologyMessage is returned for any failure that escapes a turn.
	// The turn is lost but the session continues.
	ApologyMessage = "Desculpe, enfrentei um problema técnico e não consegui processar sua solicitação."

	// FallbackResponseMessage is returned when the model produces an empty
	// final answer.
	FallbackResponseMessage = "Não obtive uma resposta."
)

// DefaultTurnTimeout bounds one full turn (tool calls included).
const DefaultTurnTimeout = 2 * time.Minute

// Response is the result of one assistant turn.
type Response struct {
	FinalText    string            // Model's final text output
	ToolRequests []*ai.ToolRequest // Tool requests made during the turn
}

// Config contains the required parameters for the assistant.
type Config struct {
	Genkit *genkit.Genkit
	Logger log.Logger
	Tools  []ai.Tool // Pre-registered via tools.Register

	// Model is the provider-qualified model name (e.g. "openai/gpt-4o").
	// Empty keeps the model declared in the prompt file.
	Model string

	MaxTurns    int           // Maximum agentic loop turns per user turn
	TurnTimeout time.Duration // Deadline for one full turn (0 = DefaultTurnTimeout)

	RetryConfig RetryConfig   // LLM retry settings (zero-value uses defaults)
	RateLimiter *rate.Limiter // Optional proactive rate limiting (nil = default)
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	return nil
}

// Assistant executes user turns. It holds no conversation state: history is
// owned by the session and passed into every call, so one Assistant value is
// safe for concurrent use.
type Assistant struct {
	model       string
	maxTurns    int
	turnTimeout time.Duration

	retryConfig RetryConfig
	rateLimiter *rate.Limiter

	g         *genkit.Genkit
	logger    log.Logger
	toolRefs  []ai.ToolRef
	toolNames string
	prompt    ai.Prompt
}

// New creates an Assistant from the given configuration.
func New(cfg Config) (*Assistant, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 5
	}

	turnTimeout := cfg.TurnTimeout
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	names := make([]string, len(cfg.Tools))
	for i, tool := range cfg.Tools {
		names[i] = tool.Name()
	}

	a := &Assistant{
		model:       cfg.Model,
		maxTurns:    maxTurns,
		turnTimeout: turnTimeout,
		retryConfig: retryConfig,
		rateLimiter: limiter,
		g:           cfg.Genkit,
		logger:      cfg.Logger.With("component", "agent"),
		toolRefs:    tools.Refs(cfg.Tools),
		toolNames:   strings.Join(names, ", "),
	}

	a.prompt = genkit.LookupPrompt(a.g, Name)
	if a.prompt == nil {
		return nil, fmt.Errorf("dotprompt %q not found: check the prompts directory", Name)
	}

	a.logger.Info("assistant initialized", "tools", a.toolNames, "max_turns", a.maxTurns)
	return a, nil
}

// Execute runs one turn: the model sees the history plus the new input,
// calls tools as needed, and produces a final answer.
func (a *Assistant) Execute(ctx context.Context, input string, history []*ai.Message) (*Response, error) {
	// Genkit renders message content in place, so the history must not be
	// shared with the session's own copy.
	messages := deepCopyMessages(history)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(input)))

	opts := []ai.PromptExecuteOption{
		ai.WithInput(map[string]any{
			"today": time.Now().Format("2006-01-02"),
		}),
		ai.WithMessagesFn(func(context.Context, any) ([]*ai.Message, error) {
			return messages, nil
		}),
		ai.WithTools(a.toolRefs...),
		ai.WithMaxTurns(a.maxTurns),
	}
	if a.model != "" {
		opts = append(opts, ai.WithModelName(a.model))
	}

	a.logger.Debug("executing prompt",
		"tools", a.toolNames,
		"history_messages", len(history),
		"input_length", len(input))

	resp, err := a.executeWithRetry(ctx, opts)
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" && len(resp.ToolRequests()) == 0 {
		a.logger.Warn("model returned empty response with no tool requests")
		text = FallbackResponseMessage
	}

	return &Response{
		FinalText:    text,
		ToolRequests: resp.ToolRequests(),
	}, nil
}

// Run executes one turn under the turn deadline and converts any failure
// into the generic apology. It never returns an error: a bad turn must not
// kill the owning session.
func (a *Assistant) Run(ctx context.Context, input string, history []*ai.Message) string {
	turnCtx, cancel := context.WithTimeout(ctx, a.turnTimeout)
	defer cancel()

	resp, err := a.Execute(turnCtx, input, history)
	if err != nil {
		a.logger.Error("turn failed", "error", err, "input_length", len(input))
		return ApologyMessage
	}
	return resp.FinalText
}

// deepCopyMessages copies messages and their parts so prompt execution
// cannot mutate history shared with the caller.
func deepCopyMessages(msgs []*ai.Message) []*ai.Message {
	if msgs == nil {
		return nil
	}
	copied := make([]*ai.Message, len(msgs))
	for i, msg := range msgs {
		parts := make([]*ai.Part, len(msg.Content))
		for j, part := range msg.Content {
			parts[j] = deepCopyPart(part)
		}
		copied[i] = &ai.Message{
			Role:     msg.Role,
			Content:  parts,
			Metadata: shallowCopyMap(msg.Metadata),
		}
	}
	return copied
}

// deepCopyPart copies a part. ToolRequest.Input and ToolResponse.Output are
// reference copies: prompt rendering only mutates the content slice itself.
func deepCopyPart(p *ai.Part) *ai.Part {
	if p == nil {
		return nil
	}
	cp := &ai.Part{
		Kind:        p.Kind,
		ContentType: p.ContentType,
		Text:        p.Text,
		Custom:      shallowCopyMap(p.Custom),
		Metadata:    shallowCopyMap(p.Metadata),
	}
	if p.ToolRequest != nil {
		cp.ToolRequest = &ai.ToolRequest{
			Input: p.ToolRequest.Input,
			Name:  p.ToolRequest.Name,
			Ref:   p.ToolRequest.Ref,
		}
	}
	if p.ToolResponse != nil {
		cp.ToolResponse = &ai.ToolResponse{
			Name:   p.ToolResponse.Name,
			Output: p.ToolResponse.Output,
			Ref:    p.ToolResponse.Ref,
		}
	}
	if p.Resource != nil {
		cp.Resource = &ai.ResourcePart{Uri: p.Resource.Uri}
	}
	return cp
}

func shallowCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
