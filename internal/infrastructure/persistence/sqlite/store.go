// Package sqlite implements the answer and badge grant store on an embedded
// SQLite database for single-node deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/shared"
)

// Store implements journey.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = "journey.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// A single connection serializes writers and keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS answers (
			child_id TEXT NOT NULL,
			question_id TEXT NOT NULL,
			selected_option_id TEXT NOT NULL,
			created_at_unix_nano INTEGER NOT NULL,
			PRIMARY KEY (child_id, question_id)
		);`,
		`CREATE TABLE IF NOT EXISTS badge_grants (
			child_id TEXT NOT NULL,
			badge_id TEXT NOT NULL,
			unlocked_at_unix_nano INTEGER NOT NULL,
			PRIMARY KEY (child_id, badge_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_answers_child_created ON answers(child_id, created_at_unix_nano DESC);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts the answer or overwrites the existing row for the same
// (child, question).
func (s *Store) Upsert(ctx context.Context, a journey.Answer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answers (child_id, question_id, selected_option_id, created_at_unix_nano)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(child_id, question_id) DO UPDATE SET
			selected_option_id = excluded.selected_option_id,
			created_at_unix_nano = excluded.created_at_unix_nano
	`, a.ChildID, a.QuestionID, a.SelectedOptionID, a.CreatedAt.UnixNano())
	if err != nil {
		return shared.External("answers", "Upsert", err)
	}
	return nil
}

// History returns the child's answers, newest first.
func (s *Store) History(ctx context.Context, childID string) ([]journey.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT child_id, question_id, selected_option_id, created_at_unix_nano
		FROM answers
		WHERE child_id = ?
		ORDER BY created_at_unix_nano DESC, question_id
	`, childID)
	if err != nil {
		return nil, shared.External("answers", "History", err)
	}
	defer rows.Close()

	var answers []journey.Answer
	for rows.Next() {
		var (
			a  journey.Answer
			ns int64
		)
		if err := rows.Scan(&a.ChildID, &a.QuestionID, &a.SelectedOptionID, &ns); err != nil {
			return nil, shared.External("answers", "History", err)
		}
		a.CreatedAt = time.Unix(0, ns).UTC()
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.External("answers", "History", err)
	}
	return answers, nil
}

// InsertIfAbsent stores the grant unless one already exists for the pair.
func (s *Store) InsertIfAbsent(ctx context.Context, g journey.Grant) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO badge_grants (child_id, badge_id, unlocked_at_unix_nano)
		VALUES (?, ?, ?)
		ON CONFLICT(child_id, badge_id) DO NOTHING
	`, g.ChildID, g.BadgeID, g.UnlockedAt.UnixNano())
	if err != nil {
		return false, shared.External("grants", "InsertIfAbsent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, shared.External("grants", "InsertIfAbsent", err)
	}
	return n == 1, nil
}

// ListByChild returns the child's grants in unlock order.
func (s *Store) ListByChild(ctx context.Context, childID string) ([]journey.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT child_id, badge_id, unlocked_at_unix_nano
		FROM badge_grants
		WHERE child_id = ?
		ORDER BY unlocked_at_unix_nano, badge_id
	`, childID)
	if err != nil {
		return nil, shared.External("grants", "ListByChild", err)
	}
	defer rows.Close()

	var grants []journey.Grant
	for rows.Next() {
		var (
			g  journey.Grant
			ns int64
		)
		if err := rows.Scan(&g.ChildID, &g.BadgeID, &ns); err != nil {
			return nil, shared.External("grants", "ListByChild", err)
		}
		g.UnlockedAt = time.Unix(0, ns).UTC()
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.External("grants", "ListByChild", err)
	}
	return grants, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return shared.External("sqlite", "Ping", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ journey.Store = (*Store)(nil)
