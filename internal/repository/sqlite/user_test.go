package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/model"
)

// newTestDB opens a fresh in-memory database with the full schema applied.
// t.Cleanup closes it when the test (or subtest) finishes.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser is a test helper that creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$04$notarealhash",
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Username:     "bob",
		Email:        "bob@example.com",
		PasswordHash: "hash",
		AboutMe:      "I like soup",
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if user.ID == "" {
		t.Error("CreateUser() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreateUser() did not set user.CreatedAt")
	}

	got, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Username != "bob" || got.Email != "bob@example.com" || got.AboutMe != "I like soup" {
		t.Errorf("GetUserByID() = %+v", got)
	}
	if got.PasswordHash != "hash" {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, "hash")
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "bob")

	err := db.CreateUser(context.Background(), &model.User{
		Username: "bob", Email: "other@example.com", PasswordHash: "x",
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Field != "username" {
		t.Errorf("Field = %q, want %q", appErr.Field, "username")
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "bob")

	err := db.CreateUser(context.Background(), &model.User{
		Username: "robert", Email: "bob@example.com", PasswordHash: "x",
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Field != "email" {
		t.Errorf("Field = %q, want %q", appErr.Field, "email")
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestGetUserByUsername_CaseSensitive(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "bob")

	if _, err := db.GetUserByUsername(context.Background(), "bob"); err != nil {
		t.Fatalf("GetUserByUsername(bob) error = %v", err)
	}
	_, err := db.GetUserByUsername(context.Background(), "Bob")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByUsername(Bob) error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	db := newTestDB(t)
	want := createTestUser(t, db, "alice")

	got, err := db.GetUserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("ID = %q, want %q", got.ID, want.ID)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdateUser(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "bob")

	user.Username = "bobby"
	user.AboutMe = "updated"
	if err := db.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	got, err := db.GetUserByUsername(context.Background(), "bobby")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if got.AboutMe != "updated" {
		t.Errorf("AboutMe = %q, want %q", got.AboutMe, "updated")
	}
}

func TestUpdateUser_Conflict(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	bob.Email = "alice@example.com"
	err := db.UpdateUser(context.Background(), bob)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateUser() error = %v, want ErrConflict", err)
	}
}

func TestUpdateUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateUser(context.Background(), &model.User{ID: "ghost", Username: "g", Email: "g@x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateUser() error = %v, want ErrNotFound", err)
	}
}
