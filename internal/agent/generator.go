package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursebot/internal/domain"
	"coursebot/internal/metrics"
)

const (
	defaultMaxTokens = 800
	emptyAnswer      = "I wasn't able to produce an answer to that question."
)

// ToolDispatcher is the registry as seen by the generator.
type ToolDispatcher interface {
	Definitions() []domain.ToolDefinition
	Dispatch(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error)
}

// Generator runs the tool-use protocol for one query: a first model request
// that may ask for tools, at most one round of tool execution, and a second
// request that is not offered tools and is always final.
type Generator struct {
	provider    domain.Provider
	tools       ToolDispatcher
	prompt      *PromptBuilder
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

type GeneratorConfig struct {
	Provider    domain.Provider
	Tools       ToolDispatcher
	Prompt      *PromptBuilder
	Model       string // empty: provider default
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Prompt == nil {
		cfg.Prompt = NewPromptBuilder("")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{
		provider:    cfg.Provider,
		tools:       cfg.Tools,
		prompt:      cfg.Prompt,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Generation is the outcome of one query.
type Generation struct {
	Text      string
	Sources   []domain.Source // union over the tool round, first-seen order
	ToolCalls []domain.ToolCall
	Usage     domain.Usage
}

// Generate answers query given the prior turns. Errors from the provider are
// returned as-is; an unknown tool name is returned wrapped around
// domain.ErrUnknownTool. A failing tool does not fail the query: the model
// sees "Tool execution failed: ..." in place of the result.
func (g *Generator) Generate(ctx context.Context, query string, history []domain.ConversationTurn) (*Generation, error) {
	messages := g.prompt.BuildMessages(history, query)
	var defs []domain.ToolDefinition
	if g.tools != nil && g.provider.SupportsToolCalling() {
		defs = g.tools.Definitions()
	}

	first, err := g.chat(ctx, messages, defs)
	if err != nil {
		return nil, err
	}
	out := &Generation{Sources: []domain.Source{}, Usage: first.Usage}

	calls := first.ToolCalls
	if len(calls) == 0 && first.Content != "" {
		if extracted := extractToolCallsFromContent(first.Content, defs); len(extracted) > 0 {
			g.logger.Info("extracted tool calls from content text", "count", len(extracted))
			calls = extracted
			first.Content = ""
		}
	}
	if len(calls) == 0 {
		out.Text = finalText(first.Content)
		return out, nil
	}

	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
		if calls[i].Arguments == nil {
			calls[i].Arguments = map[string]any{}
		}
	}
	out.ToolCalls = calls
	messages = g.prompt.AddAssistantMessage(messages, first.Content, calls)

	seen := make(map[string]bool)
	for _, tc := range calls {
		text, sources, err := g.runTool(ctx, tc)
		if err != nil {
			return nil, err
		}
		messages = g.prompt.AddToolResult(messages, tc.ID, tc.Name, text)
		for _, s := range sources {
			if seen[s.Label] {
				continue
			}
			seen[s.Label] = true
			out.Sources = append(out.Sources, s)
		}
	}

	second, err := g.chat(ctx, messages, nil)
	if err != nil {
		return nil, err
	}
	if second.HasToolCalls() {
		g.logger.Warn("ignoring tool calls in final response", "count", len(second.ToolCalls))
	}
	out.Usage.PromptTokens += second.Usage.PromptTokens
	out.Usage.CompletionTokens += second.Usage.CompletionTokens
	out.Usage.TotalTokens += second.Usage.TotalTokens
	out.Text = finalText(second.Content)
	return out, nil
}

// runTool dispatches one call and returns the text to hand back to the model.
func (g *Generator) runTool(ctx context.Context, tc domain.ToolCall) (string, []domain.Source, error) {
	start := time.Now()
	metrics.ToolCalls(tc.Name).Inc()
	g.logger.Info("executing tool", "tool", tc.Name, "call_id", tc.ID)
	g.logger.Debug("tool arguments", "tool", tc.Name, "args", tc.Arguments)

	res, err := g.tools.Dispatch(ctx, tc.Name, tc.Arguments)
	metrics.ToolLatency(tc.Name).ObserveSince(start)
	if err != nil {
		metrics.ToolErrors(tc.Name).Inc()
		var te *domain.ToolExecutionError
		if errors.As(err, &te) {
			g.logger.Warn("tool failed", "tool", tc.Name, "error", te.Err)
			return fmt.Sprintf("Tool execution failed: %v", te.Err), nil, nil
		}
		return "", nil, fmt.Errorf("dispatch %s: %w", tc.Name, err)
	}

	g.logger.Debug("tool completed", "tool", tc.Name, "result_len", len(res.Text), "sources", len(res.Sources))
	return res.Text, res.Sources, nil
}

func (g *Generator) chat(ctx context.Context, messages []domain.Message, tools []domain.ToolDefinition) (*domain.ChatResponse, error) {
	start := time.Now()
	metrics.ModelRequests.Inc()
	resp, err := g.provider.Chat(ctx, domain.ChatRequest{
		Messages:    messages,
		Tools:       tools,
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	metrics.ModelLatency.ObserveSince(start)
	if err != nil {
		metrics.ModelErrors.Inc()
		return nil, err
	}
	if resp == nil {
		metrics.ModelErrors.Inc()
		return nil, &domain.ModelAPIError{Provider: g.provider.Name(), Message: "empty response"}
	}
	metrics.TokensTotal.Add(int64(resp.Usage.TotalTokens))
	g.logger.Debug("model responded",
		"provider", g.provider.Name(),
		"tools_offered", len(tools),
		"tool_calls", len(resp.ToolCalls),
		"latency", time.Since(start),
	)
	return resp, nil
}

func finalText(content string) string {
	content = strings.TrimSpace(stripRolePrefix(content))
	if content == "" {
		return emptyAnswer
	}
	return content
}
