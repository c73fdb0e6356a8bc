package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"coursebot/internal/domain"
)

// Registry holds the tools offered to the model. Definitions are returned in
// registration order so every request carries an identical tool list.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds t, replacing any tool with the same name in place.
func (r *Registry) Register(t domain.Tool) {
	name := t.Definition().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
	r.logger.Debug("registered tool", "name", name)
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Dispatch runs the named tool. An unknown name yields an error wrapping
// domain.ErrUnknownTool; any failure inside the tool, including a panic, is
// returned as *domain.ToolExecutionError.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (res domain.ToolResult, err error) {
	t := r.Get(name)
	if t == nil {
		return domain.ToolResult{}, fmt.Errorf("%w: %s (available: %v)", domain.ErrUnknownTool, name, r.Names())
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			res = domain.ToolResult{}
			err = &domain.ToolExecutionError{Tool: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	res, err = t.Execute(ctx, args)
	if err != nil {
		var te *domain.ToolExecutionError
		if !errors.As(err, &te) {
			err = &domain.ToolExecutionError{Tool: name, Err: err}
		}
		return domain.ToolResult{}, err
	}
	return res, nil
}

// Definitions returns every tool definition in registration order.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsInt reads an optional integer argument. Models send numbers as JSON
// numbers or, now and then, as numeric strings; both are accepted. A missing,
// null or empty value yields nil.
func ArgsInt(args map[string]any, key string) (*int, error) {
	if args == nil {
		return nil, nil
	}
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}

	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("argument %s must be an integer, got %v", key, x)
		}
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("argument %s must be an integer, got %q", key, x.String())
		}
		n = int(i)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("argument %s must be an integer, got %q", key, x)
		}
		n = i
	default:
		return nil, fmt.Errorf("argument %s must be an integer, got %T", key, v)
	}
	return &n, nil
}
