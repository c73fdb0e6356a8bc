package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"coursebot/internal/domain"
	"coursebot/internal/metrics"
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("empty query")

// CourseCatalog is the read-only catalog view used for analytics.
type CourseCatalog interface {
	CourseCount(ctx context.Context) (int, error)
	CourseTitles(ctx context.Context) ([]string, error)
}

// Coordinator is the public entry point: it loads session history, runs the
// generator and records the finished exchange.
type Coordinator struct {
	generator *Generator
	sessions  *SessionManager
	catalog   CourseCatalog
	timeout   time.Duration
	logger    *slog.Logger
}

type CoordinatorConfig struct {
	Generator *Generator
	Sessions  *SessionManager
	Catalog   CourseCatalog
	Timeout   time.Duration // per query; 0 means no deadline beyond ctx
	Logger    *slog.Logger
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		generator: cfg.Generator,
		sessions:  cfg.Sessions,
		catalog:   cfg.Catalog,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

func (c *Coordinator) Sessions() *SessionManager { return c.sessions }

// AnswerQuery answers one query within a session. An empty sessionID starts a
// new session; the id used is returned in the answer. Provider and
// configuration errors are returned unchanged. A query that is cancelled or
// times out leaves the session history untouched.
func (c *Coordinator) AnswerQuery(ctx context.Context, query, sessionID string) (*domain.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if sessionID == "" {
		sessionID = c.sessions.NewSessionID()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	metrics.QueriesTotal.Inc()
	defer metrics.QueryLatency.ObserveSince(start)

	history := c.sessions.History(sessionID)
	gen, err := c.generator.Generate(ctx, query, history)
	if err != nil {
		metrics.QueryErrors.Inc()
		c.logger.Error("query failed", "session", sessionID, "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		metrics.QueryErrors.Inc()
		c.logger.Warn("query cancelled before history append", "session", sessionID, "error", err)
		return nil, err
	}

	turn := c.sessions.AddExchange(sessionID, query, gen.Text)
	if len(gen.ToolCalls) > 0 {
		metrics.ToolRounds.Inc()
	}
	c.logger.Info("query answered",
		"session", sessionID,
		"turn", turn.Ordinal,
		"tool_calls", len(gen.ToolCalls),
		"sources", len(gen.Sources),
		"tokens", gen.Usage.TotalTokens,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return &domain.Answer{Text: gen.Text, Sources: gen.Sources, SessionID: sessionID}, nil
}

// CourseAnalytics summarizes the catalog.
type CourseAnalytics struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

func (c *Coordinator) CourseAnalytics(ctx context.Context) (*CourseAnalytics, error) {
	if c.catalog == nil {
		return nil, fmt.Errorf("no catalog configured")
	}
	n, err := c.catalog.CourseCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count courses: %w", err)
	}
	titles, err := c.catalog.CourseTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return &CourseAnalytics{TotalCourses: n, CourseTitles: titles}, nil
}
