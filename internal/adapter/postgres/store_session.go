package postgres

import (
	"context"
	"fmt"

	"github.com/deckhand-ai/deckhand/internal/domain/session"
)

func (s *Store) ListSessions(ctx context.Context, workspaceID string) ([]session.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, workspace_id, title, created_at, updated_at
		 FROM sessions WHERE workspace_id = $1 ORDER BY updated_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		ses, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, ses)
	}
	return sessions, rows.Err()
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, workspace_id, title, created_at, updated_at
		 FROM sessions WHERE id = $1`, id)

	ses, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return &ses, nil
}

func (s *Store) CreateSession(ctx context.Context, workspaceID string, sess session.Session) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, workspace_id, title)
		 VALUES ($1, $2, $3)
		 RETURNING id, workspace_id, title, created_at, updated_at`,
		sess.ID, workspaceID, sess.Title)

	created, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &created, nil
}

func (s *Store) TouchSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE id = $1`, id)
	return execExpectOne(tag, err, "touch session %s", id)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete session %s", id)
}

func scanSession(row scannable) (session.Session, error) {
	var ses session.Session
	err := row.Scan(&ses.ID, &ses.WorkspaceID, &ses.Title, &ses.CreatedAt, &ses.UpdatedAt)
	return ses, err
}
