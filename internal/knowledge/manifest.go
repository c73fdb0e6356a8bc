package knowledge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CourseManifest describes one course on disk. Lessons carry either free
// text in Content, which is chunked at ingestion, or pre-split Chunks.
type CourseManifest struct {
	Title      string           `yaml:"title" json:"title"`
	Instructor string           `yaml:"instructor" json:"instructor"`
	Link       string           `yaml:"link" json:"link"`
	Overview   string           `yaml:"overview" json:"overview"` // course-level text, no lesson number
	Lessons    []LessonManifest `yaml:"lessons" json:"lessons"`

	Path string `yaml:"-" json:"-"`
}

type LessonManifest struct {
	Number  int      `yaml:"number" json:"number"`
	Title   string   `yaml:"title" json:"title"`
	Link    string   `yaml:"link" json:"link"`
	Content string   `yaml:"content" json:"content"`
	Chunks  []string `yaml:"chunks" json:"chunks"`
}

func isManifest(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadManifest reads every course in a file. A YAML file may hold several
// courses as separate documents; JSON is parsed as YAML.
func LoadManifest(path string) ([]CourseManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var courses []CourseManifest
	for {
		var m CourseManifest
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", path, err)
		}
		m.Path = path
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		courses = append(courses, m)
	}
	if len(courses) == 0 {
		return nil, fmt.Errorf("manifest %s: no courses", path)
	}
	return courses, nil
}

// Validate checks the fields ingestion relies on.
func (m *CourseManifest) Validate() error {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return errors.New("course title is required")
	}
	seen := make(map[int]bool, len(m.Lessons))
	for _, l := range m.Lessons {
		if l.Number < 0 {
			return fmt.Errorf("course %q: lesson number %d is negative", m.Title, l.Number)
		}
		if seen[l.Number] {
			return fmt.Errorf("course %q: duplicate lesson number %d", m.Title, l.Number)
		}
		seen[l.Number] = true
	}
	return nil
}

// LoadPaths loads manifests from files and directories. Directories are
// walked recursively; files without a manifest extension inside them are
// skipped, but a file named explicitly must parse.
func LoadPaths(paths []string, logger *slog.Logger) ([]CourseManifest, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isManifest(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	sort.Strings(files)

	var courses []CourseManifest
	for _, f := range files {
		ms, err := LoadManifest(f)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded course manifest", "path", f, "courses", len(ms))
		courses = append(courses, ms...)
	}
	return courses, nil
}
