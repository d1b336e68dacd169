package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/recipe-list/internal/model"
)

func (db *DB) AddImage(ctx context.Context, image *model.RecipeImage) error {
	image.ID = xid.New().String()
	image.FileName = model.ImageFileName(image.FileName)

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO recipe_images (id, recipe_id, file_name) VALUES (?, ?, ?)`,
		image.ID, image.RecipeID, image.FileName)
	if err != nil {
		return fmt.Errorf("sqlite: inserting image for recipe %s: %w", image.RecipeID, err)
	}
	return nil
}

// ListImages returns a recipe's images in upload order.
func (db *DB) ListImages(ctx context.Context, recipeID string) ([]model.RecipeImage, error) {
	images := []model.RecipeImage{}
	if err := db.conn.SelectContext(ctx, &images,
		`SELECT id, recipe_id, file_name FROM recipe_images
		 WHERE recipe_id = ? ORDER BY rowid`, recipeID); err != nil {
		return nil, fmt.Errorf("sqlite: listing images of recipe %s: %w", recipeID, err)
	}
	return images, nil
}
