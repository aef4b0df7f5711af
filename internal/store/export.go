package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/veripop/internal/model"
)

// ExportCatalog builds the export document from the stored lessons.
func (s *Store) ExportCatalog() (model.CatalogExport, error) {
	info, err := s.GetCatalogInfo()
	if err != nil {
		return model.CatalogExport{}, fmt.Errorf("read catalog info: %w", err)
	}
	lessons, err := s.ListLessons()
	if err != nil {
		return model.CatalogExport{}, fmt.Errorf("list lessons: %w", err)
	}
	info.LessonCount = len(lessons)

	var counts []model.CategoryCount
	seen := make(map[model.Category]int)
	for _, l := range lessons {
		i, ok := seen[l.Category]
		if !ok {
			i = len(counts)
			seen[l.Category] = i
			counts = append(counts, model.CategoryCount{Category: l.Category})
		}
		counts[i].Lessons++
	}

	if lessons == nil {
		lessons = []model.Lesson{}
	}
	return model.CatalogExport{
		CatalogInfo: info,
		ExportedAt:  time.Now().UTC(),
		Categories:  counts,
		Lessons:     lessons,
	}, nil
}
