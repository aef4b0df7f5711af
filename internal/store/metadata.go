package store

import (
	"database/sql"
	"strconv"

	"github.com/pavelanni/veripop/internal/model"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetCatalogInfo stores all CatalogInfo fields as metadata rows.
func (s *Store) SetCatalogInfo(info model.CatalogInfo) error {
	pairs := []struct{ k, v string }{
		{"catalog_title", info.Title},
		{"prompt_variant", info.PromptVariant},
		{"lesson_count", strconv.Itoa(info.LessonCount)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetCatalogInfo reads all CatalogInfo fields from metadata.
func (s *Store) GetCatalogInfo() (model.CatalogInfo, error) {
	var info model.CatalogInfo
	var err error

	if info.Title, err = s.GetMetadata("catalog_title"); err != nil {
		return info, err
	}
	if info.PromptVariant, err = s.GetMetadata("prompt_variant"); err != nil {
		return info, err
	}
	n, err := s.GetMetadata("lesson_count")
	if err != nil {
		return info, err
	}
	if n != "" {
		info.LessonCount, err = strconv.Atoi(n)
		if err != nil {
			return info, err
		}
	}
	return info, nil
}
