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

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, password_hash, github_id, avatar_url, created_at, updated_at`

// CreateUser inserts a password account.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, github_id, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		nullableGitHubID(user.GitHubID),
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperror.Conflict("user", user.Username)
	}
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return u, nil
}

// UpsertGitHubUser creates the account for user.GitHubID on first login and
// refreshes its avatar afterwards. The existing internal ID is kept so
// snippets stay attached.
//
// A new account takes the GitHub login as its username. If a password
// account already owns that name, the GitHub ID is appended.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	existing, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, user.GitHubID))

	switch {
	case err == nil:
		user.ID = existing.ID
		user.Username = existing.Username
		user.PasswordHash = existing.PasswordHash
		user.CreatedAt = existing.CreatedAt
		user.UpdatedAt = time.Now().UTC()

		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`,
			user.AvatarURL, user.UpdatedAt, user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil

	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	login := user.Username
	err = db.CreateUser(ctx, user)
	if errors.Is(err, apperror.ErrConflict) {
		user.Username = fmt.Sprintf("%s-%d", login, user.GitHubID)
		err = db.CreateUser(ctx, user)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &githubID, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.GitHubID = githubID.Int64
	return &u, nil
}

func nullableGitHubID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
