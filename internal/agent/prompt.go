package agent

import (
	"strings"

	"coursebot/internal/domain"
)

const baseSystemPrompt = `You are an assistant for questions about course materials.

Search tools:
- search_course_content: look up what a course or a specific lesson says.
- get_course_outline: list a course's title, instructor, link and lessons.

Rules:
1. Use at most one round of tool calls per question. Call a tool only for questions about specific course content or structure.
2. Answer general knowledge questions directly, without tools.
3. If a tool reports that no course or content was found, say so plainly instead of guessing.
4. Answer from the tool results. Do not mention the tools, the search, or the result format.
5. Be brief and direct. Include examples only when they help.`

// PromptBuilder assembles the message list sent to the model.
type PromptBuilder struct {
	system string
}

// NewPromptBuilder returns a builder with the default instructions, plus
// extra appended under its own heading when non-empty.
func NewPromptBuilder(extra string) *PromptBuilder {
	system := baseSystemPrompt
	if extra = strings.TrimSpace(extra); extra != "" {
		system += "\n\nAdditional instructions:\n" + extra
	}
	return &PromptBuilder{system: system}
}

func (p *PromptBuilder) SystemPrompt() string { return p.system }

// BuildMessages constructs [system, history as alternating user/assistant
// messages, current query].
func (p *PromptBuilder) BuildMessages(history []domain.ConversationTurn, query string) []domain.Message {
	messages := make([]domain.Message, 0, 2+2*len(history))
	messages = append(messages, domain.Message{Role: "system", Content: p.system})
	for _, t := range history {
		messages = append(messages,
			domain.Message{Role: "user", Content: t.User},
			domain.Message{Role: "assistant", Content: t.Assistant},
		)
	}
	return append(messages, domain.Message{Role: "user", Content: query})
}

func (p *PromptBuilder) AddAssistantMessage(messages []domain.Message, content string, toolCalls []domain.ToolCall) []domain.Message {
	msg := domain.Message{Role: "assistant", Content: content}
	if len(toolCalls) > 0 {
		msg.ToolCalls = toolCalls
	}
	return append(messages, msg)
}

func (p *PromptBuilder) AddToolResult(messages []domain.Message, toolCallID, toolName, result string) []domain.Message {
	return append(messages, domain.Message{
		Role:       "tool",
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Content:    result,
	})
}
