package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/repository"
)

const (
	DefaultMaxSearchResults = 50

	FeaturedRecipeCount = 9
	FeaturedTagCount    = 6
)

// SearchService answers the read-only discovery queries: name search, tag
// listings, the featured selection and the random pick.
type SearchService struct {
	recipes    repository.RecipeRepository
	tags       repository.TagRepository
	maxResults int
	logger     *slog.Logger

	// intn returns a uniform int in [0, n). rand.IntN is safe for
	// concurrent use, which a shared *rand.Rand is not.
	intn func(n int) int
}

func NewSearchService(
	recipes repository.RecipeRepository,
	tags repository.TagRepository,
	maxResults int,
	logger *slog.Logger,
) *SearchService {
	if maxResults <= 0 {
		maxResults = DefaultMaxSearchResults
	}
	return &SearchService{
		recipes:    recipes,
		tags:       tags,
		maxResults: maxResults,
		logger:     logger,
		intn:       rand.IntN,
	}
}

func (s *SearchService) clamp(limit int) int {
	if limit <= 0 || limit > s.maxResults {
		return s.maxResults
	}
	return limit
}

type searchInput struct {
	Term string `json:"term" validate:"required,max=100"`
}

// FindByNameSubstring returns recipes whose name contains term, in store
// order. % and _ in term match literally.
func (s *SearchService) FindByNameSubstring(ctx context.Context, term string, limit int) ([]model.Recipe, error) {
	in := searchInput{Term: strings.TrimSpace(term)}
	if err := runPipeline(in, nil); err != nil {
		return nil, err
	}
	return s.recipes.SearchRecipesByName(ctx, in.Term, s.clamp(limit))
}

// FindByTag returns recipes carrying the tag with exactly this name. An
// unknown tag yields no recipes rather than an error.
func (s *SearchService) FindByTag(ctx context.Context, tagName string, limit int) ([]model.Recipe, error) {
	tag, err := s.tags.GetTagByName(ctx, strings.TrimSpace(tagName))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return []model.Recipe{}, nil
		}
		return nil, err
	}
	return s.recipes.ListRecipesByTag(ctx, tag.ID, s.clamp(limit))
}

// TagRecipes returns a tag and the recipes carrying it, at most the
// configured maximum of search results.
func (s *SearchService) TagRecipes(ctx context.Context, tagName string) (*model.Tag, []model.Recipe, error) {
	tag, err := s.tags.GetTagByName(ctx, tagName)
	if err != nil {
		return nil, nil, err
	}
	recipes, err := s.recipes.ListRecipesByTag(ctx, tag.ID, s.maxResults)
	if err != nil {
		return nil, nil, err
	}
	return tag, recipes, nil
}

// Featured is the content of the landing page.
type Featured struct {
	Recipes []model.Recipe `json:"recipes"`
	Tags    []model.Tag    `json:"tags"`
}

// Featured samples FeaturedRecipeCount recipes and FeaturedTagCount tags.
// Either list is empty while the store holds fewer than that many.
func (s *SearchService) Featured(ctx context.Context) (*Featured, error) {
	recipes, err := s.recipes.ListRecipes(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.ListAllTags(ctx)
	if err != nil {
		return nil, err
	}
	return &Featured{
		Recipes: SampleFeatured(s.intn, recipes, FeaturedRecipeCount),
		Tags:    SampleFeatured(s.intn, tags, FeaturedTagCount),
	}, nil
}

// RandomRecipe returns the UUID of a uniformly chosen recipe.
func (s *SearchService) RandomRecipe(ctx context.Context) (string, error) {
	recipes, err := s.recipes.ListRecipes(ctx)
	if err != nil {
		return "", err
	}
	r, err := RandomItem(s.intn, recipes)
	if err != nil {
		return "", err
	}
	return r.UUID, nil
}

// SampleFeatured picks count distinct items uniformly without replacement.
// It returns an empty slice when there are fewer than count items, so a
// page never shows a partial selection. items is not modified.
func SampleFeatured[T any](intn func(int) int, items []T, count int) []T {
	if count <= 0 || len(items) < count {
		return []T{}
	}

	// Partial Fisher-Yates over a copy: after i steps the first i slots
	// hold a uniform sample.
	pool := make([]T, len(items))
	copy(pool, items)
	for i := range count {
		j := i + intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:count]
}

// RandomItem returns one item chosen uniformly, or a NotFound error when
// items is empty.
func RandomItem[T any](intn func(int) int, items []T) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, &apperror.AppError{Err: apperror.ErrNotFound, Message: "there are no recipes"}
	}
	return items[intn(len(items))], nil
}
