package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"coursebot/internal/domain"
)

// fakeIndex is a scripted CourseIndex.
type fakeIndex struct {
	titles  map[string]string // fuzzy name -> title
	courses map[string]*domain.Course
	results []domain.SearchResult
	err     error

	gotTitle  string
	gotLesson *int
	gotLimit  int
}

func (f *fakeIndex) ResolveCourseName(ctx context.Context, name string) (string, error) {
	if t, ok := f.titles[name]; ok {
		return t, nil
	}
	return "", &domain.ResolutionError{Name: name}
}

func (f *fakeIndex) SearchContent(ctx context.Context, query, title string, lesson *int, limit int) ([]domain.SearchResult, error) {
	f.gotTitle, f.gotLesson, f.gotLimit = title, lesson, limit
	if limit <= 0 {
		return nil, &domain.ConfigurationError{Field: "limit", Value: limit, Reason: "must be positive"}
	}
	return f.results, f.err
}

func (f *fakeIndex) GetCourseOutline(ctx context.Context, title string) (*domain.Course, error) {
	if c, ok := f.courses[title]; ok {
		return c, nil
	}
	return nil, &domain.ResolutionError{Name: title}
}

func testingCourse() *domain.Course {
	return &domain.Course{
		Title:      "Intro to Testing",
		Instructor: "Ada Lovelace",
		Link:       "https://example.com/testing",
		Lessons: []domain.Lesson{
			{Number: 1, Title: "Why Test"},
			{Number: 3, Title: "Mocking Basics", Link: "https://example.com/testing/3"},
		},
	}
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		titles:  map[string]string{"Intro to Testing": "Intro to Testing", "testing": "Intro to Testing"},
		courses: map[string]*domain.Course{"Intro to Testing": testingCourse()},
	}
}

func result(text string, lesson *int, idx int, dist float64) domain.SearchResult {
	return domain.SearchResult{
		Chunk:    domain.Chunk{Text: text, CourseTitle: "Intro to Testing", LessonNumber: lesson, ChunkIndex: idx},
		Distance: dist,
	}
}

func TestCourseSearch_FormatsAndCites(t *testing.T) {
	idx := newFakeIndex()
	idx.results = []domain.SearchResult{
		result("mock objects simulate dependencies", domain.IntPtr(3), 2, 0.1),
	}
	tool := NewCourseSearchTool(CourseSearchConfig{Index: idx, MaxResults: 5, Logger: testLogger()})

	res, err := tool.Execute(context.Background(), map[string]any{
		"query": "what is covered", "course_name": "testing", "lesson_number": float64(3),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := "[Intro to Testing - Lesson 3]\nmock objects simulate dependencies"
	if res.Text != want {
		t.Fatalf("unexpected text:\n%s", res.Text)
	}
	if len(res.Sources) != 1 || res.Sources[0].Label != "Intro to Testing - Lesson 3" {
		t.Fatalf("unexpected sources: %+v", res.Sources)
	}
	if res.Sources[0].Link != "https://example.com/testing/3" {
		t.Fatalf("expected lesson link, got %q", res.Sources[0].Link)
	}
	if idx.gotTitle != "Intro to Testing" || idx.gotLesson == nil || *idx.gotLesson != 3 || idx.gotLimit != 5 {
		t.Fatalf("unexpected search args: %q %v %d", idx.gotTitle, idx.gotLesson, idx.gotLimit)
	}
}

func TestCourseSearch_DeduplicatesTriples(t *testing.T) {
	idx := newFakeIndex()
	idx.results = []domain.SearchResult{
		result("mock objects simulate dependencies", domain.IntPtr(3), 2, 0.1),
		result("mock objects simulate dependencies", domain.IntPtr(3), 2, 0.1),
		result("stubs return canned answers", domain.IntPtr(3), 4, 0.2),
		result("why we test", domain.IntPtr(1), 0, 0.3),
	}
	tool := NewCourseSearchTool(CourseSearchConfig{Index: idx, MaxResults: 5, Logger: testLogger()})

	res, err := tool.Execute(context.Background(), map[string]any{"query": "mocks"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n := strings.Count(res.Text, "mock objects simulate dependencies"); n != 1 {
		t.Fatalf("expected one block for the duplicated chunk, got %d", n)
	}
	if n := strings.Count(res.Text, "[Intro to Testing - Lesson 3]"); n != 2 {
		t.Fatalf("expected two lesson 3 blocks (distinct chunks), got %d", n)
	}
	labels := []string{"Intro to Testing - Lesson 3", "Intro to Testing - Lesson 1"}
	if len(res.Sources) != len(labels) {
		t.Fatalf("expected %d sources, got %+v", len(labels), res.Sources)
	}
	for i, l := range labels {
		if res.Sources[i].Label != l {
			t.Fatalf("source %d: want %q, got %q", i, l, res.Sources[i].Label)
		}
	}
	if res.Sources[1].Link != "https://example.com/testing" {
		t.Fatalf("lesson without link should fall back to course link, got %q", res.Sources[1].Link)
	}
}

func TestCourseSearch_UnknownCourse(t *testing.T) {
	tool := NewCourseSearchTool(CourseSearchConfig{Index: newFakeIndex(), MaxResults: 5, Logger: testLogger()})
	res, err := tool.Execute(context.Background(), map[string]any{
		"query": "anything", "course_name": "Nonexistent Course 404",
	})
	if err != nil {
		t.Fatalf("resolution failure must not be an error: %v", err)
	}
	if res.Text != "No course found matching 'Nonexistent Course 404'" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if len(res.Sources) != 0 {
		t.Fatalf("expected no sources, got %+v", res.Sources)
	}
}

func TestCourseSearch_NoResults(t *testing.T) {
	tool := NewCourseSearchTool(CourseSearchConfig{Index: newFakeIndex(), MaxResults: 5, Logger: testLogger()})
	res, err := tool.Execute(context.Background(), map[string]any{
		"query": "quantum", "course_name": "testing", "lesson_number": "1",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Text != "No relevant content found in course 'testing' in lesson 1." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestCourseSearch_ZeroLimitBecomesMessage(t *testing.T) {
	idx := newFakeIndex()
	idx.results = []domain.SearchResult{result("x", nil, 0, 0)}
	tool := NewCourseSearchTool(CourseSearchConfig{Index: idx, MaxResults: 0, Logger: testLogger()})

	res, err := tool.Execute(context.Background(), map[string]any{"query": "anything"})
	if err != nil {
		t.Fatalf("configuration error should be recovered in the tool: %v", err)
	}
	if res.Text != "No relevant content found." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestCourseSearch_StoreFailureIsError(t *testing.T) {
	idx := newFakeIndex()
	idx.err = errors.New("index unavailable")
	tool := NewCourseSearchTool(CourseSearchConfig{Index: idx, MaxResults: 5, Logger: testLogger()})

	if _, err := tool.Execute(context.Background(), map[string]any{"query": "q"}); err == nil {
		t.Fatal("expected store failure to surface as an error")
	}
}

func TestCourseSearch_BadLessonNumber(t *testing.T) {
	tool := NewCourseSearchTool(CourseSearchConfig{Index: newFakeIndex(), MaxResults: 5, Logger: testLogger()})
	if _, err := tool.Execute(context.Background(), map[string]any{"query": "q", "lesson_number": "third"}); err == nil {
		t.Fatal("expected error for non-numeric lesson_number")
	}
}

func TestCourseSearch_MissingQuery(t *testing.T) {
	tool := NewCourseSearchTool(CourseSearchConfig{Index: newFakeIndex(), MaxResults: 5, Logger: testLogger()})
	if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for missing query")
	}
}

func TestCourseSearch_Definition(t *testing.T) {
	def := NewCourseSearchTool(CourseSearchConfig{}).Definition()
	if def.Name != "search_course_content" {
		t.Fatalf("unexpected name %q", def.Name)
	}
	if !def.Parameters["query"].Required || def.Parameters["course_name"].Required || def.Parameters["lesson_number"].Required {
		t.Fatalf("only query should be required: %+v", def.Parameters)
	}
	schema := def.InputSchema()
	req, _ := schema["required"].([]string)
	if len(req) != 1 || req[0] != "query" {
		t.Fatalf("unexpected required list: %v", schema["required"])
	}
}

func TestCourseOutline(t *testing.T) {
	tool := NewCourseOutlineTool(newFakeIndex(), testLogger())
	res, err := tool.Execute(context.Background(), map[string]any{"course_name": "testing"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{
		"Course: Intro to Testing",
		"Instructor: Ada Lovelace",
		"Link: https://example.com/testing",
		"Lesson 1: Why Test\nLesson 3: Mocking Basics",
	} {
		if !strings.Contains(res.Text, want) {
			t.Fatalf("outline missing %q:\n%s", want, res.Text)
		}
	}
	if len(res.Sources) != 1 || res.Sources[0].Label != "Intro to Testing" {
		t.Fatalf("unexpected sources: %+v", res.Sources)
	}
}

func TestCourseOutline_UnknownCourse(t *testing.T) {
	tool := NewCourseOutlineTool(newFakeIndex(), testLogger())
	res, err := tool.Execute(context.Background(), map[string]any{"course_name": "Nonexistent Course 404"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Text != "No course found matching 'Nonexistent Course 404'" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}
