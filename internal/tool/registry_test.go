package tool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"coursebot/internal/domain"
)

// stubTool is a minimal tool for testing the registry.
type stubTool struct {
	name   string
	result domain.ToolResult
	err    error
	panics bool
	calls  int
}

func (s *stubTool) Definition() domain.ToolDefinition {
	return domain.ToolDefinition{Name: s.name, Description: "stub: " + s.name}
}

func (s *stubTool) Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	s.calls++
	if s.panics {
		panic("boom")
	}
	return s.result, s.err
}

var _ domain.Tool = (*stubTool)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "test_tool"})

	got := reg.Get("test_tool")
	if got == nil {
		t.Fatal("expected to find registered tool")
	}
	if got.Definition().Name != "test_tool" {
		t.Fatalf("expected 'test_tool', got %q", got.Definition().Name)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry(testLogger())
	if reg.Get("nonexistent") != nil {
		t.Fatal("expected nil for unknown tool")
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "echo", result: domain.ToolResult{
		Text:    "hello",
		Sources: []domain.Source{{Label: "Course A"}},
	}})

	res, err := reg.Dispatch(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Text != "hello" || len(res.Sources) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRegistry_DispatchUnknownIsFatal(t *testing.T) {
	reg := NewRegistry(testLogger())
	_, err := reg.Dispatch(context.Background(), "missing", nil)
	if !errors.Is(err, domain.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	var te *domain.ToolExecutionError
	if errors.As(err, &te) {
		t.Fatal("unknown tool must not be reported as a tool execution failure")
	}
}

func TestRegistry_DispatchWrapsToolError(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "broken", err: errors.New("disk on fire")})

	_, err := reg.Dispatch(context.Background(), "broken", nil)
	var te *domain.ToolExecutionError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolExecutionError, got %v", err)
	}
	if te.Tool != "broken" {
		t.Fatalf("expected tool name 'broken', got %q", te.Tool)
	}
}

func TestRegistry_DispatchRecoversPanic(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "panicky", panics: true})

	_, err := reg.Dispatch(context.Background(), "panicky", nil)
	var te *domain.ToolExecutionError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolExecutionError from panic, got %v", err)
	}
}

func TestRegistry_DefinitionsKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	for _, n := range []string{"zeta", "alpha", "mid"} {
		reg.Register(&stubTool{name: n})
	}
	reg.Register(&stubTool{name: "alpha"}) // replacement keeps its slot

	defs := reg.Definitions()
	want := []string{"zeta", "alpha", "mid"}
	if len(defs) != len(want) {
		t.Fatalf("expected %d definitions, got %d", len(want), len(defs))
	}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Fatalf("position %d: want %s, got %s", i, want[i], d.Name)
		}
	}
	// Stable across calls.
	again := reg.Definitions()
	for i := range defs {
		if again[i].Name != defs[i].Name {
			t.Fatal("definition order changed between calls")
		}
	}
}

func TestArgsInt(t *testing.T) {
	args := map[string]any{
		"float":  float64(3),
		"string": "4",
		"blank":  "",
		"frac":   2.5,
		"word":   "three",
		"null":   nil,
	}

	if n, err := ArgsInt(args, "float"); err != nil || n == nil || *n != 3 {
		t.Fatalf("float: %v %v", n, err)
	}
	if n, err := ArgsInt(args, "string"); err != nil || n == nil || *n != 4 {
		t.Fatalf("string: %v %v", n, err)
	}
	for _, k := range []string{"blank", "null", "absent"} {
		if n, err := ArgsInt(args, k); err != nil || n != nil {
			t.Fatalf("%s: expected nil, got %v %v", k, n, err)
		}
	}
	for _, k := range []string{"frac", "word"} {
		if _, err := ArgsInt(args, k); err == nil {
			t.Fatalf("%s: expected error", k)
		}
	}
}

func TestArgsString(t *testing.T) {
	args := map[string]any{"s": "hi", "n": 7}
	if ArgsString(args, "s") != "hi" {
		t.Fatal("expected 'hi'")
	}
	if ArgsString(args, "n") != "7" {
		t.Fatalf("expected '7', got %q", ArgsString(args, "n"))
	}
	if ArgsString(nil, "s") != "" {
		t.Fatal("expected empty for nil args")
	}
}
