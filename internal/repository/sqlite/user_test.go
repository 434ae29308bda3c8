package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/model"
)

func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, PasswordHash: "$2a$10$hash"}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := createTestUser(t, db, "alice")
	if user.ID == "" {
		t.Error("CreateUser() did not set user.ID")
	}

	byName, err := db.GetUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if byName.ID != user.ID || byName.PasswordHash != "$2a$10$hash" || byName.GitHubID != 0 {
		t.Errorf("GetUserByUsername() = %+v", byName)
	}

	byID, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if byID.Username != "alice" {
		t.Errorf("GetUserByID().Username = %q, want alice", byID.Username)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice")

	err := db.CreateUser(context.Background(), &model.User{Username: "alice", PasswordHash: "x"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateUser() duplicate error = %v, want ErrConflict", err)
	}
}

func TestCreateUser_ManyPasswordAccountsWithoutGitHub(t *testing.T) {
	db := newTestDB(t)

	// github_id is NULL for all of these and must not collide.
	createTestUser(t, db, "a")
	createTestUser(t, db, "b")
	createTestUser(t, db, "c")
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.GetUserByID(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUserByUsername(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByUsername() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertGitHubUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.User{GitHubID: 42, Username: "octocat", AvatarURL: "https://a/1.png"}
	if err := db.UpsertGitHubUser(ctx, first); err != nil {
		t.Fatalf("UpsertGitHubUser() insert error = %v", err)
	}
	if first.ID == "" || first.Username != "octocat" {
		t.Fatalf("UpsertGitHubUser() insert = %+v", first)
	}

	// Second login: same internal ID, refreshed avatar, username kept even
	// if the GitHub login changed.
	again := &model.User{GitHubID: 42, Username: "octocat-renamed", AvatarURL: "https://a/2.png"}
	if err := db.UpsertGitHubUser(ctx, again); err != nil {
		t.Fatalf("UpsertGitHubUser() update error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("ID changed on re-login: %s -> %s", first.ID, again.ID)
	}
	if again.Username != "octocat" {
		t.Errorf("Username = %q, want octocat", again.Username)
	}

	stored, err := db.GetUserByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if stored.AvatarURL != "https://a/2.png" || stored.GitHubID != 42 {
		t.Errorf("stored user = %+v", stored)
	}
}

func TestUpsertGitHubUser_UsernameTaken(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "octocat")

	gh := &model.User{GitHubID: 42, Username: "octocat"}
	if err := db.UpsertGitHubUser(context.Background(), gh); err != nil {
		t.Fatalf("UpsertGitHubUser() error = %v", err)
	}
	if gh.Username != "octocat-42" {
		t.Errorf("Username = %q, want octocat-42", gh.Username)
	}
}

func TestDeleteUserCascadesSnippets(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	snippet := createTestSnippet(t, db, owner.ID, "x", "y")

	if _, err := db.conn.Exec(`DELETE FROM users WHERE id = ?`, owner.ID); err != nil {
		t.Fatalf("deleting user: %v", err)
	}
	if _, err := db.GetByID(context.Background(), owner.ID, snippet.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("snippet survived its owner: %v", err)
	}
}
