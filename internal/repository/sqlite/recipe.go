package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/model"
)

const recipeColumns = `id, uuid, name, minutes, skill_level, calories, thumbnail, description, body, user_id, timestamp`

// CreateRecipe inserts a recipe. The caller supplies UUID; ID and Timestamp
// are assigned here. A second recipe with the same name by the same author
// is rejected with apperror.ErrConflict.
func (db *DB) CreateRecipe(ctx context.Context, recipe *model.Recipe) error {
	recipe.ID = xid.New().String()
	recipe.Timestamp = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO recipes (`+recipeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recipe.ID,
		recipe.UUID,
		recipe.Name,
		recipe.Minutes,
		recipe.SkillLevel,
		recipe.Calories,
		recipe.Thumbnail,
		recipe.Description,
		recipe.Body,
		recipe.UserID,
		recipe.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return recipeConflict(err, recipe)
		}
		return fmt.Errorf("sqlite: inserting recipe %q: %w", recipe.Name, err)
	}
	return nil
}

// GetRecipeByUUID retrieves a recipe by its public identifier.
func (db *DB) GetRecipeByUUID(ctx context.Context, uuid string) (*model.Recipe, error) {
	var r model.Recipe
	err := db.conn.GetContext(ctx, &r,
		`SELECT `+recipeColumns+` FROM recipes WHERE uuid = ?`, uuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("recipe", uuid)
		}
		return nil, fmt.Errorf("sqlite: getting recipe %s: %w", uuid, err)
	}
	return &r, nil
}

func (db *DB) UUIDExists(ctx context.Context, uuid string) (bool, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM recipes WHERE uuid = ?`, uuid); err != nil {
		return false, fmt.Errorf("sqlite: checking recipe uuid: %w", err)
	}
	return n > 0, nil
}

// UpdateRecipe writes the editable fields. UUID, author and timestamp are
// never touched. Renaming onto another of the author's recipes is a conflict;
// keeping the current name is not, since the row only collides with itself.
func (db *DB) UpdateRecipe(ctx context.Context, recipe *model.Recipe) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE recipes SET name = ?, minutes = ?, skill_level = ?, calories = ?,
		        thumbnail = ?, description = ?, body = ?
		 WHERE id = ?`,
		recipe.Name,
		recipe.Minutes,
		recipe.SkillLevel,
		recipe.Calories,
		recipe.Thumbnail,
		recipe.Description,
		recipe.Body,
		recipe.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return recipeConflict(err, recipe)
		}
		return fmt.Errorf("sqlite: updating recipe %s: %w", recipe.ID, err)
	}
	return checkAffected(result, "recipe", recipe.ID)
}

func (db *DB) UpdateThumbnail(ctx context.Context, recipeID, thumbnail string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE recipes SET thumbnail = ? WHERE id = ?`, thumbnail, recipeID)
	if err != nil {
		return fmt.Errorf("sqlite: updating thumbnail of recipe %s: %w", recipeID, err)
	}
	return checkAffected(result, "recipe", recipeID)
}

// DeleteRecipe removes a recipe, its images and its tag links in one
// transaction. Rows are removed explicitly rather than through ON DELETE
// CASCADE so the result does not depend on the foreign_keys pragma.
func (db *DB) DeleteRecipe(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete of recipe %s: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_tags WHERE recipe_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting tag links of recipe %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_images WHERE recipe_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting images of recipe %s: %w", id, err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting recipe %s: %w", id, err)
	}
	if err := checkAffected(result, "recipe", id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of recipe %s: %w", id, err)
	}
	return nil
}

// ListRecipes returns every recipe in insertion order.
func (db *DB) ListRecipes(ctx context.Context) ([]model.Recipe, error) {
	recipes := []model.Recipe{}
	if err := db.conn.SelectContext(ctx, &recipes,
		`SELECT `+recipeColumns+` FROM recipes ORDER BY rowid`); err != nil {
		return nil, fmt.Errorf("sqlite: listing recipes: %w", err)
	}
	return recipes, nil
}

// ListRecipesByUser returns an author's recipes, newest first.
func (db *DB) ListRecipesByUser(ctx context.Context, userID string) ([]model.Recipe, error) {
	recipes := []model.Recipe{}
	if err := db.conn.SelectContext(ctx, &recipes,
		`SELECT `+recipeColumns+` FROM recipes WHERE user_id = ?
		 ORDER BY timestamp DESC, rowid DESC`, userID); err != nil {
		return nil, fmt.Errorf("sqlite: listing recipes of user %s: %w", userID, err)
	}
	return recipes, nil
}

func (db *DB) ListRecipesByTag(ctx context.Context, tagID string, limit int) ([]model.Recipe, error) {
	recipes := []model.Recipe{}
	if err := db.conn.SelectContext(ctx, &recipes,
		`SELECT r.id, r.uuid, r.name, r.minutes, r.skill_level, r.calories, r.thumbnail,
		        r.description, r.body, r.user_id, r.timestamp
		 FROM recipes r
		 JOIN recipe_tags rt ON rt.recipe_id = r.id
		 WHERE rt.tag_id = ?
		 ORDER BY r.rowid
		 LIMIT ?`, tagID, limit); err != nil {
		return nil, fmt.Errorf("sqlite: listing recipes for tag %s: %w", tagID, err)
	}
	return recipes, nil
}

// SearchRecipesByName returns recipes whose name contains term. LIKE
// wildcards in term are escaped so they match literally; case folding is
// SQLite's (ASCII only).
func (db *DB) SearchRecipesByName(ctx context.Context, term string, limit int) ([]model.Recipe, error) {
	recipes := []model.Recipe{}
	if err := db.conn.SelectContext(ctx, &recipes,
		`SELECT `+recipeColumns+` FROM recipes
		 WHERE name LIKE ? ESCAPE '\'
		 ORDER BY rowid
		 LIMIT ?`, "%"+escapeLike(term)+"%", limit); err != nil {
		return nil, fmt.Errorf("sqlite: searching recipes for %q: %w", term, err)
	}
	return recipes, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// recipeConflict distinguishes the two UNIQUE constraints on recipes.
func recipeConflict(err error, recipe *model.Recipe) error {
	if strings.Contains(err.Error(), "recipes.uuid") {
		return apperror.Conflict("recipe", recipe.UUID)
	}
	return apperror.ConflictField("name",
		fmt.Sprintf("you already have a recipe named %q", recipe.Name))
}

func checkAffected(result sql.Result, resource, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
