// Package repository declares the persistence contracts the service layer
// depends on. Implementations live in sub-packages (see repository/sqlite).
//
// Relationships are exposed as explicit query methods (ListTags, ListImages,
// ListRecipesByUser) instead of lazily loaded struct fields, so a model value
// is always plain data.
package repository

import (
	"context"

	"github.com/sakif/recipe-list/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
}

// RecipeRepository stores recipes. CreateRecipe and UpdateRecipe return an
// apperror.ErrConflict error when the (name, author) pair is already taken.
type RecipeRepository interface {
	CreateRecipe(ctx context.Context, recipe *model.Recipe) error
	GetRecipeByUUID(ctx context.Context, uuid string) (*model.Recipe, error)
	UUIDExists(ctx context.Context, uuid string) (bool, error)
	UpdateRecipe(ctx context.Context, recipe *model.Recipe) error
	UpdateThumbnail(ctx context.Context, recipeID, thumbnail string) error

	// DeleteRecipe removes the recipe with its images and tag associations.
	// Tags themselves are left in place.
	DeleteRecipe(ctx context.Context, id string) error

	ListRecipes(ctx context.Context) ([]model.Recipe, error)
	ListRecipesByUser(ctx context.Context, userID string) ([]model.Recipe, error)
	ListRecipesByTag(ctx context.Context, tagID string, limit int) ([]model.Recipe, error)
	SearchRecipesByName(ctx context.Context, term string, limit int) ([]model.Recipe, error)
}

type TagRepository interface {
	CreateTag(ctx context.Context, tag *model.Tag) error
	GetTagByName(ctx context.Context, name string) (*model.Tag, error)
	ListAllTags(ctx context.Context) ([]model.Tag, error)

	// ListTags returns the tags attached to a recipe, ordered by name.
	ListTags(ctx context.Context, recipeID string) ([]model.Tag, error)

	// AttachTag links a tag to a recipe. It reports false when the link
	// already existed.
	AttachTag(ctx context.Context, recipeID, tagID string) (bool, error)

	// DetachTag unlinks a tag from a recipe. It reports false when there was
	// nothing to unlink.
	DetachTag(ctx context.Context, recipeID, tagID string) (bool, error)

	HasTag(ctx context.Context, recipeID, tagID string) (bool, error)
}

type ImageRepository interface {
	AddImage(ctx context.Context, image *model.RecipeImage) error
	ListImages(ctx context.Context, recipeID string) ([]model.RecipeImage, error)
}

// Store bundles every repository. *sqlite.DB satisfies it.
type Store interface {
	UserRepository
	RecipeRepository
	TagRepository
	ImageRepository
}
