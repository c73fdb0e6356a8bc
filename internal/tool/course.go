package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"coursebot/internal/domain"
)

// CourseIndex is the slice of the vector store the course tools read from.
type CourseIndex interface {
	ResolveCourseName(ctx context.Context, name string) (string, error)
	SearchContent(ctx context.Context, query, courseTitle string, lessonNumber *int, limit int) ([]domain.SearchResult, error)
	GetCourseOutline(ctx context.Context, title string) (*domain.Course, error)
}

func courseNotFound(name string) domain.ToolResult {
	return domain.ToolResult{Text: fmt.Sprintf("No course found matching '%s'", name)}
}

// resolve maps a user-supplied course name to a catalog title. found is false
// when the name matches nothing; err is reserved for store failures.
func resolve(ctx context.Context, index CourseIndex, name string) (title string, found bool, err error) {
	title, err = index.ResolveCourseName(ctx, name)
	if err != nil {
		var re *domain.ResolutionError
		if errors.As(err, &re) {
			return "", false, nil
		}
		return "", false, err
	}
	return title, true, nil
}

// CourseSearchTool searches lesson content, optionally scoped to one course
// and one lesson.
type CourseSearchTool struct {
	index      CourseIndex
	maxResults int
	logger     *slog.Logger
}

type CourseSearchConfig struct {
	Index      CourseIndex
	MaxResults int
	Logger     *slog.Logger
}

func NewCourseSearchTool(cfg CourseSearchConfig) *CourseSearchTool {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CourseSearchTool{
		index:      cfg.Index,
		maxResults: cfg.MaxResults,
		logger:     cfg.Logger,
	}
}

func (t *CourseSearchTool) Definition() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        "search_course_content",
		Description: "Search course materials with smart course name matching and lesson filtering. Use for questions about specific course content or detailed educational material.",
		Parameters: map[string]domain.ParamSpec{
			"query": {
				Type:        "string",
				Required:    true,
				Description: "What to search for in the course content",
			},
			"course_name": {
				Type:        "string",
				Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
			},
			"lesson_number": {
				Type:        "integer",
				Description: "Specific lesson number to search within (e.g. 1, 2, 3)",
			},
		},
	}
}

func (t *CourseSearchTool) Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	query := ArgsString(args, "query")
	if query == "" {
		return domain.ToolResult{}, fmt.Errorf("missing argument: query")
	}
	courseName := ArgsString(args, "course_name")
	lesson, err := ArgsInt(args, "lesson_number")
	if err != nil {
		return domain.ToolResult{}, err
	}

	var title string
	if courseName != "" {
		var found bool
		title, found, err = resolve(ctx, t.index, courseName)
		if err != nil {
			return domain.ToolResult{}, err
		}
		if !found {
			return courseNotFound(courseName), nil
		}
	}

	results, err := t.index.SearchContent(ctx, query, title, lesson, t.maxResults)
	if err != nil {
		var ce *domain.ConfigurationError
		if !errors.As(err, &ce) {
			return domain.ToolResult{}, err
		}
		t.logger.Warn("search misconfigured", "error", err)
		return domain.ToolResult{Text: noResults(courseName, lesson)}, nil
	}
	if len(results) == 0 {
		return domain.ToolResult{Text: noResults(courseName, lesson)}, nil
	}

	return t.format(ctx, results), nil
}

func noResults(courseName string, lesson *int) string {
	var b strings.Builder
	b.WriteString("No relevant content found")
	if courseName != "" {
		fmt.Fprintf(&b, " in course '%s'", courseName)
	}
	if lesson != nil {
		fmt.Fprintf(&b, " in lesson %d", *lesson)
	}
	b.WriteString(".")
	return b.String()
}

// format renders one labelled block per distinct chunk in ranked order and
// collects the matching citations.
func (t *CourseSearchTool) format(ctx context.Context, results []domain.SearchResult) domain.ToolResult {
	var (
		blocks  []string
		sources []domain.Source
		seen    = make(map[string]bool)
		labels  = make(map[string]bool)
		courses = make(map[string]*domain.Course)
	)
	for _, r := range results {
		key := r.Chunk.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		label := r.Chunk.Label()
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", label, r.Chunk.Text))
		if labels[label] {
			continue
		}
		labels[label] = true
		sources = append(sources, domain.Source{Label: label, Link: t.link(ctx, courses, r.Chunk)})
	}
	return domain.ToolResult{Text: strings.Join(blocks, "\n\n"), Sources: sources}
}

// link finds the lesson (or course) link for a chunk. Outlines are fetched
// once per course per execution; a failed lookup just drops the link.
func (t *CourseSearchTool) link(ctx context.Context, cache map[string]*domain.Course, c domain.Chunk) string {
	course, ok := cache[c.CourseTitle]
	if !ok {
		var err error
		course, err = t.index.GetCourseOutline(ctx, c.CourseTitle)
		if err != nil {
			t.logger.Debug("no outline for citation link", "course", c.CourseTitle, "error", err)
			course = nil
		}
		cache[c.CourseTitle] = course
	}
	if course == nil {
		return ""
	}
	if c.LessonNumber != nil {
		if l := course.Lesson(*c.LessonNumber); l != nil && l.Link != "" {
			return l.Link
		}
	}
	return course.Link
}

// CourseOutlineTool returns a course's title, instructor, link and lesson list.
type CourseOutlineTool struct {
	index  CourseIndex
	logger *slog.Logger
}

func NewCourseOutlineTool(index CourseIndex, logger *slog.Logger) *CourseOutlineTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &CourseOutlineTool{index: index, logger: logger}
}

func (t *CourseOutlineTool) Definition() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        "get_course_outline",
		Description: "Get the outline of a course: its title, instructor, link and the numbered list of lessons. Use for questions about course structure or what lessons a course contains.",
		Parameters: map[string]domain.ParamSpec{
			"course_name": {
				Type:        "string",
				Required:    true,
				Description: "Course title (partial matches work)",
			},
		},
	}
}

func (t *CourseOutlineTool) Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	courseName := ArgsString(args, "course_name")
	if courseName == "" {
		return domain.ToolResult{}, fmt.Errorf("missing argument: course_name")
	}

	title, found, err := resolve(ctx, t.index, courseName)
	if err != nil {
		return domain.ToolResult{}, err
	}
	if !found {
		return courseNotFound(courseName), nil
	}

	course, err := t.index.GetCourseOutline(ctx, title)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return courseNotFound(courseName), nil
		}
		return domain.ToolResult{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", course.Title)
	if course.Instructor != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", course.Instructor)
	}
	if course.Link != "" {
		fmt.Fprintf(&b, "Link: %s\n", course.Link)
	}
	if len(course.Lessons) == 0 {
		b.WriteString("\nNo lessons listed.")
	} else {
		fmt.Fprintf(&b, "\nLessons (%d):", len(course.Lessons))
		for _, l := range course.Lessons {
			fmt.Fprintf(&b, "\nLesson %d: %s", l.Number, l.Title)
		}
	}

	return domain.ToolResult{
		Text:    b.String(),
		Sources: []domain.Source{{Label: course.Title, Link: course.Link}},
	}, nil
}
