package agent

import (
	"testing"

	"coursebot/internal/domain"
)

var offeredTools = []domain.ToolDefinition{
	{Name: "search_course_content"},
	{Name: "get_course_outline"},
}

func TestExtractToolCalls_PureJSON(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name":"search_course_content","arguments":{"query":"mocks"}}`, offeredTools)
	if len(calls) != 1 || calls[0].Name != "search_course_content" || calls[0].Arguments["query"] != "mocks" {
		t.Fatalf("unexpected calls %#v", calls)
	}
	if calls[0].ID != "" {
		t.Fatal("extracted calls should carry no id")
	}
}

func TestExtractToolCalls_ParametersKey(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name":"get_course_outline","parameters":{"course_name":"MCP"}}`, offeredTools)
	if len(calls) != 1 || calls[0].Arguments["course_name"] != "MCP" {
		t.Fatalf("unexpected calls %#v", calls)
	}
}

func TestExtractToolCalls_SurroundingText(t *testing.T) {
	content := "assistant\nLet me look.\n{\"name\": \"search_course_content\", \"arguments\": {\"query\": \"a {brace} inside\"}}\nOne moment."
	calls := extractToolCallsFromContent(content, offeredTools)
	if len(calls) != 1 || calls[0].Arguments["query"] != "a {brace} inside" {
		t.Fatalf("unexpected calls %#v", calls)
	}
}

func TestExtractToolCalls_Array(t *testing.T) {
	content := `[{"name":"search_course_content","arguments":{"query":"x"}},{"name":"get_course_outline","arguments":{"course_name":"y"}}]`
	calls := extractToolCallsFromContent(content, offeredTools)
	if len(calls) != 2 || calls[1].Name != "get_course_outline" {
		t.Fatalf("unexpected calls %#v", calls)
	}
}

func TestExtractToolCalls_Alias(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name":"course_outline","arguments":{"course_name":"y"}}`, offeredTools)
	if len(calls) != 1 || calls[0].Name != "get_course_outline" {
		t.Fatalf("alias not normalized: %#v", calls)
	}
}

func TestExtractToolCalls_UnofferedNameIgnored(t *testing.T) {
	if calls := extractToolCallsFromContent(`{"name":"run_shell","arguments":{"cmd":"ls"}}`, offeredTools); calls != nil {
		t.Fatalf("expected nil for unoffered tool, got %#v", calls)
	}
}

func TestExtractToolCalls_NothingOffered(t *testing.T) {
	if calls := extractToolCallsFromContent(`{"name":"search_course_content"}`, nil); calls != nil {
		t.Fatalf("expected nil without offered tools, got %#v", calls)
	}
}

func TestExtractToolCalls_PlainAnswer(t *testing.T) {
	if calls := extractToolCallsFromContent("Mocks replace real dependencies in tests.", offeredTools); calls != nil {
		t.Fatalf("expected nil for prose, got %#v", calls)
	}
}

func TestExtractToolCalls_InvalidEscape(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name":"search_course_content","arguments":{"query":"100\% coverage"}}`, offeredTools)
	if len(calls) != 1 || calls[0].Arguments["query"] != "100% coverage" {
		t.Fatalf("unexpected calls %#v", calls)
	}
}

func TestStripRolePrefix(t *testing.T) {
	cases := map[string]string{
		"assistant\nHello": "Hello",
		"Assistant: Hello": "Hello",
		"Hello":            "Hello",
		"assistants rule":  "assistants rule",
	}
	for in, want := range cases {
		if got := stripRolePrefix(in); got != want {
			t.Errorf("stripRolePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildMessages_NoHistory(t *testing.T) {
	p := NewPromptBuilder("Prefer short answers.")
	msgs := p.BuildMessages(nil, "hi")
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Content != "hi" {
		t.Fatalf("unexpected messages %#v", msgs)
	}
	if msgs[0].Content != p.SystemPrompt() {
		t.Fatal("system message should carry the system prompt")
	}
}
