package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/model"
	"github.com/sakif/compiler-playground/internal/repository"
)

var _ repository.SnippetRepository = (*DB)(nil)

// Create inserts snippet, filling in its ID and timestamps.
//
// xid IDs are 20 URL-safe characters and sort by creation time, which
// keeps them short in /snippets/{id} URLs.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	snippet.ID = xid.New().String()
	now := time.Now().UTC()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippets (id, user_id, title, code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snippet.ID,
		snippet.UserID,
		snippet.Title,
		snippet.Code,
		snippet.CreatedAt,
		snippet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}
	return nil
}

// GetByID returns the snippet if it exists and belongs to userID.
func (db *DB) GetByID(ctx context.Context, userID, id string) (*model.Snippet, error) {
	var s model.Snippet

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, title, code, created_at, updated_at
		 FROM snippets
		 WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&s.ID, &s.UserID, &s.Title, &s.Code, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("snippet", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}
	return &s, nil
}

// List returns userID's snippets, most recently updated first.
func (db *DB) List(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Snippet, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, title, code, created_at, updated_at
		 FROM snippets
		 WHERE user_id = ?
		 ORDER BY updated_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0, limit)
	for rows.Next() {
		var s model.Snippet
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.Code, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	return snippets, nil
}

// Update overwrites title and code. The WHERE clause includes user_id, so
// updating someone else's snippet affects zero rows and reports not found.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	snippet.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET title = ?, code = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		snippet.Title,
		snippet.Code,
		snippet.UpdatedAt,
		snippet.ID,
		snippet.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
	}
	return expectOneRow(result, "snippet", snippet.ID)
}

func (db *DB) Delete(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snippets WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}
	return expectOneRow(result, "snippet", id)
}

func expectOneRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
