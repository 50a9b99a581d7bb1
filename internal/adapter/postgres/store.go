package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deckhand-ai/deckhand/internal/domain/workspace"
	"github.com/deckhand-ai/deckhand/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Workspaces ---

func (s *Store) ListWorkspaces(ctx context.Context) ([]workspace.Workspace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, path, endpoint, created_at, updated_at
		 FROM workspaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []workspace.Workspace
	for rows.Next() {
		wsp, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, wsp)
	}
	return workspaces, rows.Err()
}

func (s *Store) GetWorkspace(ctx context.Context, id string) (*workspace.Workspace, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, path, endpoint, created_at, updated_at
		 FROM workspaces WHERE id = $1`, id)

	wsp, err := scanWorkspace(row)
	if err != nil {
		return nil, notFoundWrap(err, "get workspace %s", id)
	}
	return &wsp, nil
}

func (s *Store) CreateWorkspace(ctx context.Context, req workspace.CreateRequest) (*workspace.Workspace, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO workspaces (id, name, path, endpoint)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, name, path, endpoint, created_at, updated_at`,
		uuid.NewString(), req.Name, req.Path, req.Endpoint)

	wsp, err := scanWorkspace(row)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &wsp, nil
}

func (s *Store) UpdateWorkspace(ctx context.Context, id string, req workspace.UpdateRequest) (*workspace.Workspace, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE workspaces
		 SET name = COALESCE($2, name), endpoint = COALESCE($3, endpoint), updated_at = now()
		 WHERE id = $1
		 RETURNING id, name, path, endpoint, created_at, updated_at`,
		id, req.Name, req.Endpoint)

	wsp, err := scanWorkspace(row)
	if err != nil {
		return nil, notFoundWrap(err, "update workspace %s", id)
	}
	return &wsp, nil
}

func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete workspace %s", id)
}

func scanWorkspace(row scannable) (workspace.Workspace, error) {
	var wsp workspace.Workspace
	err := row.Scan(&wsp.ID, &wsp.Name, &wsp.Path, &wsp.Endpoint, &wsp.CreatedAt, &wsp.UpdatedAt)
	return wsp, err
}
