package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/metrics"
	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/repository"
	"github.com/sakif/recipe-list/internal/storage"
)

const (
	// MaxUUIDAttempts bounds how many random UUIDs Create draws before
	// giving up. A collision on a v4 UUID is already astronomically rare.
	MaxUUIDAttempts = 10

	MaxRecipeImages = 25

	// ProfileRowWidth is how many recipes a profile grid row holds.
	ProfileRowWidth = 3
)

// ErrUUIDExhausted means every one of MaxUUIDAttempts candidates was already
// taken. It is not an apperror: the caller sees a 500.
var ErrUUIDExhausted = errors.New("service: no unused recipe UUID after retries")

// imageExtensions leaves out svg: an SVG can carry script, and uploads are
// served from the site's own origin.
var imageExtensions = []string{"jpg", "jpe", "jpeg", "png", "gif", "bmp", "webp"}

// RecipeInput holds the editable fields of a recipe. SkillLevel accepts a
// level name or its ordinal.
type RecipeInput struct {
	Name        string `json:"name"        validate:"required,max=100"`
	Minutes     int    `json:"minutes"     validate:"min=0,max=600"`
	SkillLevel  string `json:"skillLevel"`
	Calories    int    `json:"calories"    validate:"min=0,max=10000"`
	Description string `json:"description" validate:"max=500"`
	Body        string `json:"body"        validate:"max=10000"`
}

// Upload is one file submitted with a recipe.
type Upload struct {
	Filename string
	Content  io.Reader `validate:"-"`
}

// RecipeUploads are the files submitted with a new recipe. Thumbnail is nil
// when the author did not pick one.
type RecipeUploads struct {
	Thumbnail *Upload  `json:"thumbnail"`
	Images    []Upload `json:"recipe_images"`
}

var placeholderMessage = fmt.Sprintf("file name must not be %q", model.PlaceholderFilename)

var uploadRules = []rule[RecipeUploads]{
	{
		field:   "thumbnail",
		ok:      func(u RecipeUploads) bool { return u.Thumbnail == nil || !isPlaceholder(u.Thumbnail.Filename) },
		message: placeholderMessage,
	},
	{
		field:   "thumbnail",
		ok:      func(u RecipeUploads) bool { return u.Thumbnail == nil || isImageFile(u.Thumbnail.Filename) },
		message: "image files only",
	},
	{
		field: "recipe_images",
		ok: func(u RecipeUploads) bool {
			return !slices.ContainsFunc(u.Images, func(up Upload) bool { return isPlaceholder(up.Filename) })
		},
		message: placeholderMessage,
	},
	{
		field:   "recipe_images",
		ok:      func(u RecipeUploads) bool { return len(u.Images) <= MaxRecipeImages },
		message: fmt.Sprintf("too many files, at most %d", MaxRecipeImages),
	},
	{
		field: "recipe_images",
		ok: func(u RecipeUploads) bool {
			for _, up := range u.Images {
				if !isImageFile(up.Filename) {
					return false
				}
			}
			return true
		},
		message: "image files only",
	},
}

func isPlaceholder(filename string) bool {
	return filename == model.PlaceholderFilename
}

func isImageFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	return slices.Contains(imageExtensions, ext)
}

type tagInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

// RecipeService publishes recipes and manages their tags and pictures.
type RecipeService struct {
	recipes repository.RecipeRepository
	tags    repository.TagRepository
	images  repository.ImageRepository
	files   storage.FileStore
	metrics *metrics.Recorder
	logger  *slog.Logger

	newUUID func() (uuid.UUID, error)
}

func NewRecipeService(
	recipes repository.RecipeRepository,
	tags repository.TagRepository,
	images repository.ImageRepository,
	files storage.FileStore,
	m *metrics.Recorder,
	logger *slog.Logger,
) *RecipeService {
	return &RecipeService{
		recipes: recipes,
		tags:    tags,
		images:  images,
		files:   files,
		metrics: m,
		logger:  logger,
		newUUID: uuid.NewRandom,
	}
}

// Create publishes a recipe for authorID.
//
// The recipe row is written first, then each image is stored and recorded,
// then the thumbnail is settled. If storing an image fails the recipe is
// removed again so no half-built recipe stays visible.
func (s *RecipeService) Create(ctx context.Context, authorID string, in RecipeInput, uploads RecipeUploads) (*model.Recipe, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := runPipeline(in, nil); err != nil {
		return nil, err
	}
	if err := runPipeline(uploads, uploadRules); err != nil {
		return nil, err
	}

	id, err := s.generateUUID(ctx)
	if err != nil {
		return nil, err
	}

	recipe := &model.Recipe{
		UUID:        id,
		Name:        in.Name,
		Minutes:     in.Minutes,
		SkillLevel:  model.ParseSkillLevel(in.SkillLevel),
		Calories:    in.Calories,
		Thumbnail:   model.PlaceholderFilename,
		Description: in.Description,
		Body:        in.Body,
		UserID:      authorID,
	}
	if err := s.recipes.CreateRecipe(ctx, recipe); err != nil {
		return nil, err
	}

	stored, err := s.saveImages(ctx, recipe.ID, uploads.Images)
	if err != nil {
		s.discard(ctx, recipe)
		return nil, err
	}

	explicit := ""
	if uploads.Thumbnail != nil {
		name, err := s.files.Save(ctx, storage.SetThumbnails, uploads.Thumbnail.Filename, uploads.Thumbnail.Content)
		if err != nil {
			s.logger.Warn("thumbnail upload not stored, choosing from images",
				slog.String("file", uploads.Thumbnail.Filename),
				slog.String("error", err.Error()),
			)
		} else {
			explicit = name
		}
	}

	thumbnail := ChooseThumbnail(ctx, s.files, s.logger, explicit, stored)
	if explicit == "" && len(stored) > 0 && thumbnail == model.PlaceholderFilename {
		s.metrics.ThumbnailFallback()
	}
	if thumbnail != recipe.Thumbnail {
		if err := s.recipes.UpdateThumbnail(ctx, recipe.ID, thumbnail); err != nil {
			s.discard(ctx, recipe)
			return nil, err
		}
		recipe.Thumbnail = thumbnail
	}

	s.metrics.RecipeCreated()
	s.logger.Info("recipe created",
		slog.String("uuid", recipe.UUID),
		slog.String("author", authorID),
		slog.Int("images", len(stored)),
	)
	return recipe, nil
}

// discard removes a recipe whose creation failed part way. Its image rows
// and tag links go with it.
func (s *RecipeService) discard(ctx context.Context, recipe *model.Recipe) {
	if err := s.recipes.DeleteRecipe(ctx, recipe.ID); err != nil {
		s.logger.Error("cleanup after failed create",
			slog.String("recipeID", recipe.ID),
			slog.String("error", err.Error()),
		)
	}
}

// saveImages stores each upload in the images set and records it. It
// returns the stored names in upload order.
func (s *RecipeService) saveImages(ctx context.Context, recipeID string, uploads []Upload) ([]string, error) {
	stored := make([]string, 0, len(uploads))
	for _, up := range uploads {
		name, err := s.files.Save(ctx, storage.SetImages, up.Filename, up.Content)
		if err != nil {
			return nil, fmt.Errorf("service/recipe: storing image %q: %w", up.Filename, err)
		}
		if err := s.images.AddImage(ctx, &model.RecipeImage{RecipeID: recipeID, FileName: name}); err != nil {
			return nil, err
		}
		stored = append(stored, name)
	}
	return stored, nil
}

func (s *RecipeService) generateUUID(ctx context.Context) (string, error) {
	for range MaxUUIDAttempts {
		candidate, err := s.newUUID()
		if err != nil {
			return "", fmt.Errorf("service/recipe: generating uuid: %w", err)
		}
		exists, err := s.recipes.UUIDExists(ctx, candidate.String())
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate.String(), nil
		}
	}
	s.logger.Error("recipe uuid space exhausted", slog.Int("attempts", MaxUUIDAttempts))
	return "", ErrUUIDExhausted
}

// Edit overwrites every editable field. UUID, author and timestamp stay.
func (s *RecipeService) Edit(ctx context.Context, requesterID, recipeUUID string, in RecipeInput) (*model.Recipe, error) {
	recipe, err := s.ownedRecipe(ctx, requesterID, recipeUUID)
	if err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	if err := runPipeline(in, nil); err != nil {
		return nil, err
	}

	recipe.Name = in.Name
	recipe.Minutes = in.Minutes
	recipe.SkillLevel = model.ParseSkillLevel(in.SkillLevel)
	recipe.Calories = in.Calories
	recipe.Description = in.Description
	recipe.Body = in.Body

	if err := s.recipes.UpdateRecipe(ctx, recipe); err != nil {
		return nil, err
	}

	s.logger.Info("recipe edited", slog.String("uuid", recipe.UUID))
	return recipe, nil
}

// Delete removes a recipe with its images and tag links. Tags survive.
func (s *RecipeService) Delete(ctx context.Context, requesterID, recipeUUID string) error {
	recipe, err := s.ownedRecipe(ctx, requesterID, recipeUUID)
	if err != nil {
		return err
	}
	if err := s.recipes.DeleteRecipe(ctx, recipe.ID); err != nil {
		return err
	}

	s.metrics.RecipeDeleted()
	s.logger.Info("recipe deleted",
		slog.String("uuid", recipe.UUID),
		slog.String("name", recipe.Name),
	)
	return nil
}

// AddTag attaches the named tag, creating it on first use. It reports false
// when the recipe already carried the tag.
func (s *RecipeService) AddTag(ctx context.Context, requesterID, recipeUUID, tagName string) (bool, error) {
	in := tagInput{Name: strings.TrimSpace(tagName)}
	if err := runPipeline(in, nil); err != nil {
		return false, err
	}

	recipe, err := s.ownedRecipe(ctx, requesterID, recipeUUID)
	if err != nil {
		return false, err
	}

	tag, err := s.tagByName(ctx, in.Name)
	if err != nil {
		return false, err
	}

	added, err := s.tags.AttachTag(ctx, recipe.ID, tag.ID)
	if err != nil {
		return false, err
	}
	if added {
		s.logger.Info("tag added", slog.String("uuid", recipe.UUID), slog.String("tag", tag.Name))
	}
	return added, nil
}

// tagByName returns the tag, creating it if needed. Losing a create race to
// another request is resolved by reading the winner's row.
func (s *RecipeService) tagByName(ctx context.Context, name string) (*model.Tag, error) {
	tag, err := s.tags.GetTagByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	tag = &model.Tag{Name: name}
	if err := s.tags.CreateTag(ctx, tag); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return s.tags.GetTagByName(ctx, name)
		}
		return nil, err
	}
	return tag, nil
}

// RemoveTag detaches the named tag. It reports false, with no error, when
// the tag does not exist or was not attached.
func (s *RecipeService) RemoveTag(ctx context.Context, requesterID, recipeUUID, tagName string) (bool, error) {
	recipe, err := s.ownedRecipe(ctx, requesterID, recipeUUID)
	if err != nil {
		return false, err
	}

	tag, err := s.tags.GetTagByName(ctx, strings.TrimSpace(tagName))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	removed, err := s.tags.DetachTag(ctx, recipe.ID, tag.ID)
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("tag removed", slog.String("uuid", recipe.UUID), slog.String("tag", tag.Name))
	}
	return removed, nil
}

func (s *RecipeService) HasTag(ctx context.Context, recipeID, tagID string) (bool, error) {
	return s.tags.HasTag(ctx, recipeID, tagID)
}

func (s *RecipeService) GetByUUID(ctx context.Context, recipeUUID string) (*model.Recipe, error) {
	return s.recipes.GetRecipeByUUID(ctx, recipeUUID)
}

// RecipeDetail is a recipe with its tags and pictures loaded.
type RecipeDetail struct {
	Recipe *model.Recipe       `json:"recipe"`
	Tags   []model.Tag         `json:"tags"`
	Images []model.RecipeImage `json:"images"`
}

func (s *RecipeService) Detail(ctx context.Context, recipeUUID string) (*RecipeDetail, error) {
	recipe, err := s.recipes.GetRecipeByUUID(ctx, recipeUUID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.ListTags(ctx, recipe.ID)
	if err != nil {
		return nil, err
	}
	images, err := s.images.ListImages(ctx, recipe.ID)
	if err != nil {
		return nil, err
	}
	return &RecipeDetail{Recipe: recipe, Tags: tags, Images: images}, nil
}

func (s *RecipeService) ListTags(ctx context.Context, recipeID string) ([]model.Tag, error) {
	return s.tags.ListTags(ctx, recipeID)
}

func (s *RecipeService) ListImages(ctx context.Context, recipeID string) ([]model.RecipeImage, error) {
	return s.images.ListImages(ctx, recipeID)
}

// ListByAuthor returns an author's recipes, newest first.
func (s *RecipeService) ListByAuthor(ctx context.Context, authorID string) ([]model.Recipe, error) {
	return s.recipes.ListRecipesByUser(ctx, authorID)
}

// RecipeRows splits recipes into rows of width for a grid layout. The last
// row may be shorter.
func RecipeRows(recipes []model.Recipe, width int) [][]model.Recipe {
	if width < 1 {
		width = ProfileRowWidth
	}
	return slices.Collect(slices.Chunk(recipes, width))
}

// ownedRecipe loads a recipe and checks that requesterID wrote it.
func (s *RecipeService) ownedRecipe(ctx context.Context, requesterID, recipeUUID string) (*model.Recipe, error) {
	recipe, err := s.recipes.GetRecipeByUUID(ctx, recipeUUID)
	if err != nil {
		return nil, err
	}
	if recipe.UserID != requesterID {
		s.logger.Warn("rejected change to another user's recipe",
			slog.String("uuid", recipeUUID),
			slog.String("requester", requesterID),
		)
		return nil, apperror.Forbidden("only the author can change this recipe")
	}
	return recipe, nil
}
