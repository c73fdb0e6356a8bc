package domain

import (
	"fmt"
	"strconv"
)

// Course is one catalogued course. Title is the join key between the catalog
// collection and content chunk metadata.
type Course struct {
	Title      string   `json:"title" yaml:"title"`
	Instructor string   `json:"instructor,omitempty" yaml:"instructor,omitempty"`
	Link       string   `json:"link,omitempty" yaml:"link,omitempty"`
	Lessons    []Lesson `json:"lessons,omitempty" yaml:"lessons,omitempty"`
}

// Lesson returns the lesson with the given number, or nil.
func (c *Course) Lesson(number int) *Lesson {
	for i := range c.Lessons {
		if c.Lessons[i].Number == number {
			return &c.Lessons[i]
		}
	}
	return nil
}

type Lesson struct {
	Number int    `json:"lesson_number" yaml:"number"`
	Title  string `json:"lesson_title" yaml:"title"`
	Link   string `json:"lesson_link,omitempty" yaml:"link,omitempty"`
}

// Chunk is an immutable unit of searchable course text.
type Chunk struct {
	Text         string `json:"text"`
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"` // nil for course-level text
	ChunkIndex   int    `json:"chunk_index"`
}

// Key identifies a chunk for deduplication.
func (c Chunk) Key() string {
	lesson := "-"
	if c.LessonNumber != nil {
		lesson = strconv.Itoa(*c.LessonNumber)
	}
	return fmt.Sprintf("%s|%s|%d", c.CourseTitle, lesson, c.ChunkIndex)
}

// Label is the human-readable citation for the chunk.
func (c Chunk) Label() string {
	if c.LessonNumber == nil {
		return c.CourseTitle
	}
	return fmt.Sprintf("%s - Lesson %d", c.CourseTitle, *c.LessonNumber)
}

// SearchResult is one retrieved chunk. Distance is cosine distance: smaller is closer.
type SearchResult struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// Source is a citation surfaced next to the final answer.
type Source struct {
	Label string `json:"label"`
	Link  string `json:"link,omitempty"`
}

// IntPtr is a small helper for optional lesson numbers.
func IntPtr(n int) *int { return &n }
