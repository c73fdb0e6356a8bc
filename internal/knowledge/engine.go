// Package knowledge turns course manifests into catalog entries and
// searchable content chunks.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"coursebot/internal/domain"
)

// CourseWriter is the storage interface for ingestion.
type CourseWriter interface {
	AddCourseMetadata(ctx context.Context, courses ...domain.Course) error
	AddCourseContent(ctx context.Context, chunks ...domain.Chunk) error
	CourseTitles(ctx context.Context) ([]string, error)
	RemoveCourse(ctx context.Context, title string) error
	Clear(ctx context.Context) error
}

// Engine chunks course text and writes it to the store.
type Engine struct {
	store     CourseWriter
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

type EngineConfig struct {
	Store     CourseWriter
	ChunkSize int // words per chunk (default: 160)
	Overlap   int // overlapping words between chunks (default: 20)
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 160
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		logger:    cfg.Logger,
	}
}

// IngestOptions controls how existing courses are treated.
type IngestOptions struct {
	Clear bool // empty the store before ingesting
}

// Report summarizes one ingestion run.
type Report struct {
	Courses []string // newly ingested titles
	Skipped []string // titles already catalogued
	Chunks  int
}

// Ingest writes each course that is not yet catalogued. Courses already in
// the catalog are skipped so a rerun over the same folder is a no-op; pass
// Clear to rebuild from scratch.
func (e *Engine) Ingest(ctx context.Context, courses []CourseManifest, opts IngestOptions) (*Report, error) {
	if opts.Clear {
		if err := e.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear store: %w", err)
		}
		e.logger.Info("cleared course store")
	}

	existing, err := e.store.CourseTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t] = true
	}

	report := &Report{}
	for _, m := range courses {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if known[m.Title] {
			e.logger.Info("course already catalogued, skipping", "course", m.Title)
			report.Skipped = append(report.Skipped, m.Title)
			continue
		}

		course, chunks := e.Build(m)
		if err := e.write(ctx, course, chunks); err != nil {
			return report, err
		}
		known[m.Title] = true
		report.Courses = append(report.Courses, m.Title)
		report.Chunks += len(chunks)
		e.logger.Info("course ingested", "course", m.Title, "lessons", len(course.Lessons), "chunks", len(chunks))
	}
	return report, nil
}

// write stores a course's chunks, then its catalog entry. The catalog entry
// marks the course as ingested, so on failure both are removed and a later
// run retries the course.
func (e *Engine) write(ctx context.Context, course domain.Course, chunks []domain.Chunk) error {
	err := e.store.AddCourseContent(ctx, chunks...)
	if err != nil {
		err = fmt.Errorf("add content for %q: %w", course.Title, err)
	} else if err = e.store.AddCourseMetadata(ctx, course); err != nil {
		err = fmt.Errorf("add course %q: %w", course.Title, err)
	}
	if err == nil {
		return nil
	}
	if rbErr := e.store.RemoveCourse(context.WithoutCancel(ctx), course.Title); rbErr != nil {
		e.logger.Error("rollback of partial course failed", "course", course.Title, "error", rbErr)
	}
	return err
}

// Build converts a manifest into a catalog entry and its chunks. Chunk
// indices run across the whole course: overview first, then lessons in
// manifest order.
func (e *Engine) Build(m CourseManifest) (domain.Course, []domain.Chunk) {
	course := domain.Course{
		Title:      m.Title,
		Instructor: m.Instructor,
		Link:       m.Link,
	}

	var chunks []domain.Chunk
	add := func(text string, lesson *int) {
		chunks = append(chunks, domain.Chunk{
			Text:         text,
			CourseTitle:  m.Title,
			LessonNumber: lesson,
			ChunkIndex:   len(chunks),
		})
	}

	for _, text := range e.chunkText(m.Overview) {
		add(text, nil)
	}
	for _, l := range m.Lessons {
		course.Lessons = append(course.Lessons, domain.Lesson{Number: l.Number, Title: l.Title, Link: l.Link})

		texts := e.chunkText(l.Content)
		for _, c := range l.Chunks {
			if c = strings.TrimSpace(c); c != "" {
				texts = append(texts, c)
			}
		}
		for _, text := range texts {
			add(text, domain.IntPtr(l.Number))
		}
	}
	return course, chunks
}

// chunkText splits text into overlapping chunks of approximately chunkSize words.
func (e *Engine) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	step := e.chunkSize - e.overlap
	if step <= 0 {
		step = e.chunkSize
	}

	for i := 0; i < len(words); i += step {
		end := i + e.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end >= len(words) {
			break
		}
	}
	return chunks
}
