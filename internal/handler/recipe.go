package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/auth"
	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/service"
)

// maxUploadMemory is how much of a multipart form is held in memory; the
// rest spills to temporary files.
const maxUploadMemory = 32 << 20

// maxUploadBody caps a whole recipe submission, images included.
const maxUploadBody = 256 << 20

// RecipeHandler serves recipe pages and the author's edit operations.
type RecipeHandler struct {
	recipes  *service.RecipeService
	identity *service.IdentityService
	logger   *slog.Logger
}

func NewRecipeHandler(recipes *service.RecipeService, identity *service.IdentityService, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{recipes: recipes, identity: identity, logger: logger}
}

// HandleCreate publishes a recipe from a multipart form.
//
// HTTP: POST /api/recipes (RequireAuth)
// FORM FIELDS: name, minutes, skill_level, calories, description, body
// FILES:       thumbnail (optional, one), recipe_images (zero or more)
// RESPONSE:    201 with the recipe
func (h *RecipeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("body", "expected a multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	in, err := recipeInputFromForm(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	uploads, closeAll, err := uploadsFromForm(r.MultipartForm)
	defer closeAll()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Create(r.Context(), userID, in, uploads)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, recipe)
}

func recipeInputFromForm(r *http.Request) (service.RecipeInput, error) {
	in := service.RecipeInput{
		Name:        r.FormValue("name"),
		SkillLevel:  r.FormValue("skill_level"),
		Description: r.FormValue("description"),
		Body:        r.FormValue("body"),
	}
	var err error
	if in.Minutes, err = formInt(r, "minutes"); err != nil {
		return in, err
	}
	if in.Calories, err = formInt(r, "calories"); err != nil {
		return in, err
	}
	return in, nil
}

// formInt reads an optional integer field. Missing means 0.
func formInt(r *http.Request, field string) (int, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.ValidationFailed(field, fmt.Sprintf("%s must be a whole number", field))
	}
	return n, nil
}

// uploadsFromForm opens the submitted files. Browsers send an empty part
// for an untouched file input; those are skipped. The returned func closes
// every opened file and is safe to call on error.
func uploadsFromForm(form *multipart.Form) (service.RecipeUploads, func(), error) {
	var (
		uploads service.RecipeUploads
		opened  []multipart.File
	)
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	open := func(fh *multipart.FileHeader) (*service.Upload, error) {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("handler: opening upload %q: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		return &service.Upload{Filename: fh.Filename, Content: f}, nil
	}

	for _, fh := range form.File["thumbnail"] {
		if fh.Filename == "" {
			continue
		}
		up, err := open(fh)
		if err != nil {
			return uploads, closeAll, err
		}
		uploads.Thumbnail = up
		break
	}

	for _, fh := range form.File["recipe_images"] {
		if fh.Filename == "" {
			continue
		}
		up, err := open(fh)
		if err != nil {
			return uploads, closeAll, err
		}
		uploads.Images = append(uploads.Images, *up)
	}

	return uploads, closeAll, nil
}

type recipeResponse struct {
	*service.RecipeDetail
	Author        *model.User `json:"author"`
	EditPrivilege bool        `json:"editPrivilege"`
}

// HandleGet shows a recipe with its author, tags and images.
//
// HTTP: GET /api/recipes/{uuid} (OptionalAuth)
func (h *RecipeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.recipes.Detail(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	author, err := h.identity.GetUserByID(r.Context(), detail.Recipe.UserID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		writeError(w, h.logger, err)
		return
	}

	viewerID, _ := auth.UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, recipeResponse{
		RecipeDetail:  detail,
		Author:        author,
		EditPrivilege: viewerID == detail.Recipe.UserID,
	})
}

// HandleEdit replaces a recipe's editable fields.
//
// HTTP: PUT /api/recipes/{uuid} (RequireAuth)
// REQUEST BODY: service.RecipeInput as JSON
func (h *RecipeHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.RecipeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Edit(r.Context(), userID, chi.URLParam(r, "uuid"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// HandleDelete removes a recipe.
//
// HTTP: DELETE /api/recipes/{uuid} (RequireAuth)
// RESPONSE: 204 No Content
func (h *RecipeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.recipes.Delete(r.Context(), userID, chi.URLParam(r, "uuid")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tagRequest struct {
	Name string `json:"name"`
}

type tagResponse struct {
	Added bool        `json:"added"`
	Tags  []model.Tag `json:"tags"`
}

// HandleAddTag attaches a tag, creating it on first use.
//
// HTTP: POST /api/recipes/{uuid}/tags (RequireAuth)
// REQUEST BODY: {"name": "breakfast"}
// RESPONSE: 201 when attached, 200 when the recipe already had it
func (h *RecipeHandler) HandleAddTag(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	recipeUUID := chi.URLParam(r, "uuid")

	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	added, err := h.recipes.AddTag(r.Context(), userID, recipeUUID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.GetByUUID(r.Context(), recipeUUID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	tags, err := h.recipes.ListTags(r.Context(), recipe.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, tagResponse{Added: added, Tags: tags})
}

// HandleRemoveTag detaches a tag. Removing a tag the recipe does not carry
// is not an error.
//
// HTTP: DELETE /api/recipes/{uuid}/tags/{name} (RequireAuth)
// RESPONSE: 204 No Content
func (h *RecipeHandler) HandleRemoveTag(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	_, err := h.recipes.RemoveTag(r.Context(), userID, chi.URLParam(r, "uuid"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
