// Package catalog holds the ordered, read-only set of lessons.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/veripop/internal/model"
)

//go:embed lessons/*.yaml
var lessonFS embed.FS

// DefaultFile is the embedded Verilog track.
const DefaultFile = "lessons/verilog.yaml"

var (
	// ErrLessonNotFound is returned when a lesson ID is not in the catalog.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrDuplicateLesson is returned when two lessons share an ID.
	ErrDuplicateLesson = errors.New("duplicate lesson id")
	// ErrEmpty is returned for a catalog without lessons.
	ErrEmpty = errors.New("catalog has no lessons")
)

// Group is one sidebar section: a category and its lessons in catalog order.
type Group struct {
	Category model.Category
	Lessons  []model.Lesson
}

// Catalog is safe for concurrent reads; it is never mutated after New.
type Catalog struct {
	lessons  []model.Lesson
	index    map[string]int
	patterns map[string]*regexp.Regexp
	groups   []Group
}

// File is the on-disk lesson document.
type File struct {
	Title   string         `yaml:"title"`
	Lessons []model.Lesson `yaml:"lessons"`
}

// New validates lessons and builds a catalog preserving their order.
func New(lessons []model.Lesson) (*Catalog, error) {
	if len(lessons) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{
		lessons:  make([]model.Lesson, len(lessons)),
		index:    make(map[string]int, len(lessons)),
		patterns: make(map[string]*regexp.Regexp),
	}
	copy(c.lessons, lessons)

	groupIdx := make(map[model.Category]int)
	for i, l := range c.lessons {
		if strings.TrimSpace(l.ID) == "" {
			return nil, fmt.Errorf("lesson %d: empty id", i)
		}
		if _, ok := c.index[l.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLesson, l.ID)
		}
		c.index[l.ID] = i

		if l.SolutionPattern != "" {
			re, err := regexp.Compile(l.SolutionPattern)
			if err != nil {
				return nil, fmt.Errorf("lesson %s: solution pattern: %w", l.ID, err)
			}
			c.patterns[l.ID] = re
		}

		gi, ok := groupIdx[l.Category]
		if !ok {
			gi = len(c.groups)
			groupIdx[l.Category] = gi
			c.groups = append(c.groups, Group{Category: l.Category})
		}
		c.groups[gi].Lessons = append(c.groups[gi].Lessons, l)
	}
	return c, nil
}

// Decode parses a YAML lesson document.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode lessons: %w", err)
	}
	return &f, nil
}

// Load decodes a YAML document and builds a catalog from it.
func Load(r io.Reader) (*Catalog, error) {
	f, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return New(f.Lessons)
}

// DefaultDocument returns the raw bytes of the embedded Verilog track.
func DefaultDocument() ([]byte, error) {
	return lessonFS.ReadFile(DefaultFile)
}

// Default returns the catalog for the embedded Verilog track.
func Default() (*Catalog, error) {
	f, err := lessonFS.Open(DefaultFile)
	if err != nil {
		return nil, fmt.Errorf("open embedded lessons: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Lessons returns all lessons in catalog order.
func (c *Catalog) Lessons() []model.Lesson {
	out := make([]model.Lesson, len(c.lessons))
	copy(out, c.lessons)
	return out
}

// Len returns the number of lessons.
func (c *Catalog) Len() int { return len(c.lessons) }

// First returns the first lesson in the catalog.
func (c *Catalog) First() model.Lesson { return c.lessons[0] }

// Lookup returns the lesson with the given ID.
func (c *Catalog) Lookup(id string) (model.Lesson, error) {
	i, ok := c.index[id]
	if !ok {
		return model.Lesson{}, fmt.Errorf("%w: %s", ErrLessonNotFound, id)
	}
	return c.lessons[i], nil
}

// Contains reports whether id names a lesson in the catalog.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Groups returns lessons grouped by category. Categories appear in order of
// their first lesson.
func (c *Catalog) Groups() []Group {
	out := make([]Group, len(c.groups))
	for i, g := range c.groups {
		out[i] = Group{Category: g.Category, Lessons: append([]model.Lesson(nil), g.Lessons...)}
	}
	return out
}

// Prev returns the lesson before id, if any.
func (c *Catalog) Prev(id string) (model.Lesson, bool) {
	i, ok := c.index[id]
	if !ok || i == 0 {
		return model.Lesson{}, false
	}
	return c.lessons[i-1], true
}

// Next returns the lesson after id, if any.
func (c *Catalog) Next(id string) (model.Lesson, bool) {
	i, ok := c.index[id]
	if !ok || i == len(c.lessons)-1 {
		return model.Lesson{}, false
	}
	return c.lessons[i+1], true
}

// PrecheckMatches runs the lesson's naive solution pattern against code.
// The result is a hint only; correctness is decided by the verifier.
func (c *Catalog) PrecheckMatches(id, code string) bool {
	re, ok := c.patterns[id]
	if !ok {
		return false
	}
	matched := re.MatchString(code)
	slog.Debug("solution precheck", "lesson", id, "matched", matched)
	return matched
}
