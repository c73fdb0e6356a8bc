package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"coursebot/internal/domain"
	"coursebot/internal/embedding"
)

// Catalog and content metadata keys. course_title doubles as the join key
// between the two collections.
const (
	metaCourseTitle  = "course_title"
	metaLessonNumber = "lesson_number"
	metaChunkIndex   = "chunk_index"
	metaInstructor   = "instructor"
	metaCourseLink   = "course_link"
	metaLessonCount  = "lesson_count"
	metaLessonsJSON  = "lessons_json"
)

// DefaultResolveMaxDistance is the loosest catalog match ResolveCourseName
// will accept.
const DefaultResolveMaxDistance = 0.85

// Store is the dual-collection index the search tools read from.
type Store struct {
	catalog     Collection
	content     Collection
	embedder    domain.Embedder
	maxDistance float64
	logger      *slog.Logger
}

type StoreConfig struct {
	Catalog            Collection
	Content            Collection
	Embedder           domain.Embedder
	ResolveMaxDistance float64
	Logger             *slog.Logger
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.ResolveMaxDistance <= 0 {
		cfg.ResolveMaxDistance = DefaultResolveMaxDistance
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		catalog:     cfg.Catalog,
		content:     cfg.Content,
		embedder:    cfg.Embedder,
		maxDistance: cfg.ResolveMaxDistance,
		logger:      cfg.Logger,
	}
}

// ResolveCourseName maps free-form user text onto an exact catalog title.
// An exact title is returned unchanged without embedding. Otherwise the
// nearest candidate within the distance bound that shares a word with name
// wins.
func (s *Store) ResolveCourseName(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", &domain.ResolutionError{Name: name, Reason: "empty course name"}
	}

	exact, err := s.catalog.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("catalog lookup: %w", err)
	}
	if exact != nil {
		return exact.ID, nil
	}

	emb, err := s.embedder.Embed(ctx, name)
	if err != nil {
		return "", fmt.Errorf("embed course name: %w", err)
	}
	matches, err := s.catalog.Query(ctx, emb, nil, resolveCandidates)
	if err != nil {
		return "", fmt.Errorf("catalog query: %w", err)
	}
	if len(matches) == 0 {
		return "", &domain.ResolutionError{Name: name, Reason: "catalog is empty"}
	}

	for _, m := range matches {
		if m.Distance > s.maxDistance {
			break
		}
		if !sharesTerm(name, m.ID) {
			s.logger.Debug("course candidate shares no term", "name", name, "candidate", m.ID, "distance", m.Distance)
			continue
		}
		s.logger.Debug("course resolved", "name", name, "title", m.ID, "distance", m.Distance)
		return m.ID, nil
	}

	best := matches[0]
	s.logger.Debug("course resolution rejected", "name", name, "nearest", best.ID, "distance", best.Distance)
	return "", &domain.ResolutionError{
		Name:   name,
		Reason: fmt.Sprintf("no course close enough (nearest %q at distance %.3f)", best.ID, best.Distance),
	}
}

// resolveCandidates is how many nearest catalog entries ResolveCourseName
// considers.
const resolveCandidates = 5

// genericTerms never count as overlap between a name and a title.
var genericTerms = map[string]bool{
	"course": true, "courses": true, "lesson": true, "lessons": true,
	"class": true, "module": true, "tutorial": true,
}

// sharesTerm reports whether name and title have a non-generic word in
// common. Words of three or more letters also match on a shared prefix, so
// "test" matches "Testing".
func sharesTerm(name, title string) bool {
	titleTerms := embedding.Tokenize(title)
	for _, q := range embedding.Tokenize(name) {
		if genericTerms[q] {
			continue
		}
		for _, t := range titleTerms {
			if q == t {
				return true
			}
			if len(q) >= 3 && len(t) >= 3 && (strings.HasPrefix(t, q) || strings.HasPrefix(q, t)) {
				return true
			}
		}
	}
	return false
}

// SearchContent returns up to limit chunks nearest to query, optionally
// restricted to one course and one lesson. Filters are exact matches.
func (s *Store) SearchContent(ctx context.Context, query, courseTitle string, lessonNumber *int, limit int) ([]domain.SearchResult, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	filter := Filter{}
	if courseTitle != "" {
		filter[metaCourseTitle] = courseTitle
	}
	if lessonNumber != nil {
		filter[metaLessonNumber] = strconv.Itoa(*lessonNumber)
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := s.content.Query(ctx, emb, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("content query: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(matches))
	for _, m := range matches {
		chunk, err := chunkFromRecord(m.Record)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Distance: m.Distance})
	}
	return results, nil
}

// GetCourseOutline looks up a course by exact title.
func (s *Store) GetCourseOutline(ctx context.Context, title string) (*domain.Course, error) {
	rec, err := s.catalog.Get(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	if rec == nil {
		return nil, &domain.ResolutionError{Name: title, Reason: "not in catalog"}
	}
	return courseFromRecord(*rec)
}

// AddCourseMetadata upserts one catalog entry per course, embedded from the title.
func (s *Store) AddCourseMetadata(ctx context.Context, courses ...domain.Course) error {
	if len(courses) == 0 {
		return nil
	}
	titles := make([]string, len(courses))
	for i, c := range courses {
		if c.Title == "" {
			return fmt.Errorf("course %d has no title", i)
		}
		titles[i] = c.Title
	}
	embs, err := s.embedder.EmbedBatch(ctx, titles)
	if err != nil {
		return fmt.Errorf("embed course titles: %w", err)
	}

	records := make([]Record, len(courses))
	for i, c := range courses {
		lessons, err := json.Marshal(c.Lessons)
		if err != nil {
			return fmt.Errorf("marshal lessons for %s: %w", c.Title, err)
		}
		records[i] = Record{
			ID:       c.Title,
			Document: c.Title,
			Metadata: map[string]string{
				metaCourseTitle: c.Title,
				metaInstructor:  c.Instructor,
				metaCourseLink:  c.Link,
				metaLessonCount: strconv.Itoa(len(c.Lessons)),
				metaLessonsJSON: string(lessons),
			},
			Embedding: embs[i],
		}
	}
	return s.catalog.Upsert(ctx, records)
}

// AddCourseContent upserts chunks into the content collection. Chunk IDs are
// "<course>_<chunk_index>", so re-ingesting a course replaces its chunks.
func (s *Store) AddCourseContent(ctx context.Context, chunks ...domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		meta := map[string]string{
			metaCourseTitle: c.CourseTitle,
			metaChunkIndex:  strconv.Itoa(c.ChunkIndex),
		}
		if c.LessonNumber != nil {
			meta[metaLessonNumber] = strconv.Itoa(*c.LessonNumber)
		}
		records[i] = Record{
			ID:        fmt.Sprintf("%s_%d", c.CourseTitle, c.ChunkIndex),
			Document:  c.Text,
			Metadata:  meta,
			Embedding: embs[i],
		}
	}
	return s.content.Upsert(ctx, records)
}

// CourseTitles lists catalog titles in ingestion order.
func (s *Store) CourseTitles(ctx context.Context) ([]string, error) {
	return s.catalog.IDs(ctx)
}

func (s *Store) CourseCount(ctx context.Context) (int, error) {
	return s.catalog.Count(ctx)
}

// ChunkCount reports the size of the content collection.
func (s *Store) ChunkCount(ctx context.Context) (int, error) {
	return s.content.Count(ctx)
}

// RemoveCourse deletes a course's catalog entry and all of its chunks. It is
// not an error if the course is absent.
func (s *Store) RemoveCourse(ctx context.Context, title string) error {
	if _, err := s.catalog.Delete(ctx, Filter{metaCourseTitle: title}); err != nil {
		return fmt.Errorf("remove catalog entry %q: %w", title, err)
	}
	n, err := s.content.Delete(ctx, Filter{metaCourseTitle: title})
	if err != nil {
		return fmt.Errorf("remove content for %q: %w", title, err)
	}
	s.logger.Debug("course removed", "course", title, "chunks", n)
	return nil
}

// Clear empties both collections.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.catalog.Clear(ctx); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	if err := s.content.Clear(ctx); err != nil {
		return fmt.Errorf("clear content: %w", err)
	}
	return nil
}

func chunkFromRecord(r Record) (domain.Chunk, error) {
	c := domain.Chunk{
		Text:        r.Document,
		CourseTitle: r.Metadata[metaCourseTitle],
	}
	if v, ok := r.Metadata[metaLessonNumber]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.Chunk{}, fmt.Errorf("record %s: bad lesson_number %q", r.ID, v)
		}
		c.LessonNumber = &n
	}
	if v := r.Metadata[metaChunkIndex]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.Chunk{}, fmt.Errorf("record %s: bad chunk_index %q", r.ID, v)
		}
		c.ChunkIndex = n
	}
	return c, nil
}

func courseFromRecord(r Record) (*domain.Course, error) {
	c := &domain.Course{
		Title:      r.ID,
		Instructor: r.Metadata[metaInstructor],
		Link:       r.Metadata[metaCourseLink],
	}
	if raw := r.Metadata[metaLessonsJSON]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Lessons); err != nil {
			return nil, fmt.Errorf("decode lessons for %s: %w", r.ID, err)
		}
	}
	return c, nil
}
