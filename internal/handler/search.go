package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/service"
)

// SearchHandler serves the read-only discovery endpoints.
type SearchHandler struct {
	search *service.SearchService
	logger *slog.Logger
}

func NewSearchHandler(search *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logger}
}

// HandleIndex returns the landing page selection.
//
// HTTP: GET /api/index
func (h *SearchHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	featured, err := h.search.Featured(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, featured)
}

type searchResponse struct {
	Kind    string         `json:"kind"`
	Term    string         `json:"term"`
	Recipes []model.Recipe `json:"recipes"`
}

// HandleSearch finds recipes by name substring or by exact tag.
//
// HTTP: GET /api/search?kind=recipe|tag&term=...&limit=N
//
// kind defaults to "recipe". limit is optional and capped server-side.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := q.Get("kind")
	term := q.Get("term")

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, h.logger, apperror.ValidationFailed("limit", "limit must be a whole number"))
			return
		}
		limit = n
	}

	var (
		recipes []model.Recipe
		err     error
	)
	switch kind {
	case "", "recipe":
		kind = "recipe"
		recipes, err = h.search.FindByNameSubstring(r.Context(), term, limit)
	case "tag":
		recipes, err = h.search.FindByTag(r.Context(), term, limit)
	default:
		err = apperror.ValidationFailed("kind", `kind must be "recipe" or "tag"`)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Kind: kind, Term: term, Recipes: recipes})
}

type tagPageResponse struct {
	Tag     *model.Tag     `json:"tag"`
	Recipes []model.Recipe `json:"recipes"`
}

// HandleTag lists every recipe carrying a tag.
//
// HTTP: GET /api/tags/{name}
func (h *SearchHandler) HandleTag(w http.ResponseWriter, r *http.Request) {
	tag, recipes, err := h.search.TagRecipes(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tagPageResponse{Tag: tag, Recipes: recipes})
}

// HandleRandom picks a recipe at random.
//
// HTTP: GET /api/random
// RESPONSE: {"uuid": "..."}, or 404 when there are no recipes
func (h *SearchHandler) HandleRandom(w http.ResponseWriter, r *http.Request) {
	id, err := h.search.RandomRecipe(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uuid": id})
}
