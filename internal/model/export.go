package model

import "time"

// CatalogInfo describes the imported lesson catalog.
type CatalogInfo struct {
	Title         string `json:"title"`
	PromptVariant string `json:"prompt_variant"`
	LessonCount   int    `json:"lesson_count"`
}

// CatalogExport is the top-level JSON structure written by `veripop export`.
type CatalogExport struct {
	CatalogInfo
	ExportedAt time.Time       `json:"exported_at"`
	Categories []CategoryCount `json:"categories"`
	Lessons    []Lesson        `json:"lessons"`
}

// CategoryCount is the number of lessons in one category.
type CategoryCount struct {
	Category Category `json:"category"`
	Lessons  int      `json:"lessons"`
}
