package store

import (
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/pavelanni/veripop/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases consistent and
	// serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		seq INTEGER NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		diagram TEXT NOT NULL DEFAULT '',
		theory TEXT NOT NULL DEFAULT '',
		starter_code TEXT NOT NULL DEFAULT '',
		solution_code TEXT NOT NULL DEFAULT '',
		solution_pattern TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (source) REFERENCES imported_files(path)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetImportedFileHash returns the hash recorded for path, or "" if the file
// was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// ImportLessons replaces the lessons previously imported from path with
// lessons and records hash. Files keep the order of their first import;
// lessons keep their order within the file. A lesson ID seen in another file
// moves to this one.
func (s *Store) ImportLessons(path, hash string, lessons []model.Lesson) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO imported_files (path, hash, seq, imported_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM imported_files), ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, imported_at = excluded.imported_at`,
		path, hash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM lessons WHERE source = ?`, path); err != nil {
		return fmt.Errorf("clear lessons: %w", err)
	}

	for i, l := range lessons {
		_, err := tx.Exec(
			`INSERT INTO lessons (id, source, position, title, category, diagram, theory, starter_code, solution_code, solution_pattern)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				source = excluded.source, position = excluded.position, title = excluded.title,
				category = excluded.category, diagram = excluded.diagram, theory = excluded.theory,
				starter_code = excluded.starter_code, solution_code = excluded.solution_code,
				solution_pattern = excluded.solution_pattern`,
			l.ID, path, i, l.Title, string(l.Category), l.Diagram, l.Theory, l.StarterCode, l.SolutionCode, l.SolutionPattern,
		)
		if err != nil {
			return fmt.Errorf("insert lesson %s: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

// PruneImports forgets every imported file not listed in keep, along with
// its lessons. It returns the number of files removed.
func (s *Store) PruneImports(keep []string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT path FROM imported_files`)
	if err != nil {
		return 0, err
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, err
		}
		if !slices.Contains(keep, path) {
			stale = append(stale, path)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, path := range stale {
		if _, err := tx.Exec(`DELETE FROM lessons WHERE source = ?`, path); err != nil {
			return 0, fmt.Errorf("delete lessons from %s: %w", path, err)
		}
		if _, err := tx.Exec(`DELETE FROM imported_files WHERE path = ?`, path); err != nil {
			return 0, fmt.Errorf("forget %s: %w", path, err)
		}
	}
	return len(stale), tx.Commit()
}

const lessonColumns = `l.id, l.title, l.category, l.diagram, l.theory, l.starter_code, l.solution_code, l.solution_pattern`

type scanner interface {
	Scan(dest ...any) error
}

func scanLesson(row scanner) (model.Lesson, error) {
	var l model.Lesson
	var category string
	err := row.Scan(&l.ID, &l.Title, &category, &l.Diagram, &l.Theory, &l.StarterCode, &l.SolutionCode, &l.SolutionPattern)
	l.Category = model.Category(category)
	return l, err
}

// ListLessons returns all lessons in catalog order.
func (s *Store) ListLessons() ([]model.Lesson, error) {
	rows, err := s.db.Query(
		`SELECT ` + lessonColumns + `
		 FROM lessons l JOIN imported_files f ON f.path = l.source
		 ORDER BY f.seq, l.position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lessons []model.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// LessonCount returns the number of stored lessons.
func (s *Store) LessonCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM lessons`).Scan(&n)
	return n, err
}
