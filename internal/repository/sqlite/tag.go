package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/model"
)

// CreateTag inserts a tag. Names are globally unique; a duplicate returns
// apperror.ErrConflict so a caller racing another request can re-read.
func (db *DB) CreateTag(ctx context.Context, tag *model.Tag) error {
	tag.ID = xid.New().String()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tags (id, name) VALUES (?, ?)`, tag.ID, tag.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("tag", tag.Name)
		}
		return fmt.Errorf("sqlite: inserting tag %q: %w", tag.Name, err)
	}
	return nil
}

func (db *DB) GetTagByName(ctx context.Context, name string) (*model.Tag, error) {
	var t model.Tag
	err := db.conn.GetContext(ctx, &t, `SELECT id, name FROM tags WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("tag", name)
		}
		return nil, fmt.Errorf("sqlite: getting tag %q: %w", name, err)
	}
	return &t, nil
}

func (db *DB) ListAllTags(ctx context.Context) ([]model.Tag, error) {
	tags := []model.Tag{}
	if err := db.conn.SelectContext(ctx, &tags,
		`SELECT id, name FROM tags ORDER BY name`); err != nil {
		return nil, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	return tags, nil
}

func (db *DB) ListTags(ctx context.Context, recipeID string) ([]model.Tag, error) {
	tags := []model.Tag{}
	if err := db.conn.SelectContext(ctx, &tags,
		`SELECT t.id, t.name
		 FROM tags t
		 JOIN recipe_tags rt ON rt.tag_id = t.id
		 WHERE rt.recipe_id = ?
		 ORDER BY t.name`, recipeID); err != nil {
		return nil, fmt.Errorf("sqlite: listing tags of recipe %s: %w", recipeID, err)
	}
	return tags, nil
}

// AttachTag uses INSERT OR IGNORE on the (recipe_id, tag_id) primary key, so
// attaching twice leaves exactly one link and reports false the second time.
func (db *DB) AttachTag(ctx context.Context, recipeID, tagID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO recipe_tags (recipe_id, tag_id) VALUES (?, ?)`,
		recipeID, tagID)
	if err != nil {
		return false, fmt.Errorf("sqlite: tagging recipe %s: %w", recipeID, err)
	}
	return affected(result)
}

func (db *DB) DetachTag(ctx context.Context, recipeID, tagID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM recipe_tags WHERE recipe_id = ? AND tag_id = ?`,
		recipeID, tagID)
	if err != nil {
		return false, fmt.Errorf("sqlite: untagging recipe %s: %w", recipeID, err)
	}
	return affected(result)
}

func (db *DB) HasTag(ctx context.Context, recipeID, tagID string) (bool, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM recipe_tags WHERE recipe_id = ? AND tag_id = ?`,
		recipeID, tagID); err != nil {
		return false, fmt.Errorf("sqlite: checking tag on recipe %s: %w", recipeID, err)
	}
	return n > 0, nil
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rows > 0, nil
}
