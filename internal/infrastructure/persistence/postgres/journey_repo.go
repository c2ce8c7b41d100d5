package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOURNEY STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements journey.Store on PostgreSQL.
type Store struct {
	conn *Connection
}

// NewStore creates a Store over an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Open connects, applies pending migrations and returns the store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	conn, err := NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := NewMigrator(conn).Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return NewStore(conn), nil
}

// Connection exposes the pool for health reporting.
func (s *Store) Connection() *Connection {
	return s.conn
}

// ─────────────────────────────────────────────────────────────────────────────
// Answers
// ─────────────────────────────────────────────────────────────────────────────

// Upsert inserts the answer or overwrites the existing row for the same
// (child, question).
func (s *Store) Upsert(ctx context.Context, a journey.Answer) error {
	query := `
		INSERT INTO answers (id, child_id, question_id, selected_option_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(child_id, question_id) DO UPDATE SET
			selected_option_id = EXCLUDED.selected_option_id,
			created_at = EXCLUDED.created_at
	`

	_, err := s.conn.Exec(ctx, query,
		uuid.New(),
		a.ChildID,
		a.QuestionID,
		a.SelectedOptionID,
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return shared.External("answers", "Upsert", fmt.Errorf("failed to upsert answer: %w", err))
	}
	return nil
}

// History returns the child's answers, newest first.
func (s *Store) History(ctx context.Context, childID string) ([]journey.Answer, error) {
	query := `
		SELECT child_id, question_id, selected_option_id, created_at
		FROM answers
		WHERE child_id = $1
		ORDER BY created_at DESC, question_id
	`

	rows, err := s.conn.Query(ctx, query, childID)
	if err != nil {
		return nil, shared.External("answers", "History", fmt.Errorf("failed to query answers: %w", err))
	}
	defer rows.Close()

	var answers []journey.Answer
	for rows.Next() {
		var a journey.Answer
		if err := rows.Scan(&a.ChildID, &a.QuestionID, &a.SelectedOptionID, &a.CreatedAt); err != nil {
			return nil, shared.External("answers", "History", fmt.Errorf("failed to scan answer: %w", err))
		}
		a.CreatedAt = a.CreatedAt.UTC()
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.External("answers", "History", err)
	}
	return answers, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Badge grants
// ─────────────────────────────────────────────────────────────────────────────

// InsertIfAbsent stores the grant unless one already exists for the pair.
func (s *Store) InsertIfAbsent(ctx context.Context, g journey.Grant) (bool, error) {
	query := `
		INSERT INTO badge_grants (child_id, badge_id, unlocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT(child_id, badge_id) DO NOTHING
	`

	tag, err := s.conn.Exec(ctx, query, g.ChildID, g.BadgeID, g.UnlockedAt.UTC())
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, shared.External("grants", "InsertIfAbsent", fmt.Errorf("failed to insert grant: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

// ListByChild returns the child's grants in unlock order.
func (s *Store) ListByChild(ctx context.Context, childID string) ([]journey.Grant, error) {
	query := `
		SELECT child_id, badge_id, unlocked_at
		FROM badge_grants
		WHERE child_id = $1
		ORDER BY unlocked_at, badge_id
	`

	rows, err := s.conn.Query(ctx, query, childID)
	if err != nil {
		return nil, shared.External("grants", "ListByChild", fmt.Errorf("failed to query grants: %w", err))
	}
	defer rows.Close()

	var grants []journey.Grant
	for rows.Next() {
		var g journey.Grant
		if err := rows.Scan(&g.ChildID, &g.BadgeID, &g.UnlockedAt); err != nil {
			return nil, shared.External("grants", "ListByChild", fmt.Errorf("failed to scan grant: %w", err))
		}
		g.UnlockedAt = g.UnlockedAt.UTC()
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.External("grants", "ListByChild", err)
	}
	return grants, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return shared.External("postgres", "Ping", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

var _ journey.Store = (*Store)(nil)
