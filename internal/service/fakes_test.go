package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/repository"
	"github.com/sakif/recipe-list/internal/storage"
)

// ============================================================
// Fakes
// ============================================================
//
// fakeStore is an in-memory repository.Store. It mirrors the SQLite
// implementation's contract closely enough for service tests: the same
// uniqueness rules and the same apperror results.

var _ repository.Store = (*fakeStore)(nil)

type fakeStore struct {
	mu sync.Mutex

	nextID  int
	users   []model.User
	recipes []model.Recipe
	tags    []model.Tag
	links   map[[2]string]bool
	images  []model.RecipeImage

	// updateUserCalls counts UpdateUser writes.
	updateUserCalls int
	// failUUIDExists makes UUIDExists report every candidate as taken.
	failUUIDExists bool
	// uuidChecks counts UUIDExists calls.
	uuidChecks int
	// failUpdateThumbnail makes UpdateThumbnail return errFakeStore.
	failUpdateThumbnail bool
}

var errFakeStore = errors.New("fake store failure")

func newFakeStore() *fakeStore {
	return &fakeStore{links: map[[2]string]bool{}}
}

func (f *fakeStore) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return apperror.ConflictField("username", "taken")
		}
		if existing.Email == u.Email {
			return apperror.ConflictField("email", "taken")
		}
	}
	u.ID = f.id()
	f.users = append(f.users, *u)
	return nil
}

func (f *fakeStore) findUser(match func(model.User) bool, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.findUser(func(u model.User) bool { return u.ID == id }, id)
}

func (f *fakeStore) GetUserByUsername(_ context.Context, name string) (*model.User, error) {
	return f.findUser(func(u model.User) bool { return u.Username == name }, name)
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return f.findUser(func(u model.User) bool { return u.Email == email }, email)
}

func (f *fakeStore) UpdateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateUserCalls++
	for i := range f.users {
		if f.users[i].ID == u.ID {
			f.users[i] = *u
			return nil
		}
	}
	return apperror.NotFound("user", u.ID)
}

func (f *fakeStore) CreateRecipe(_ context.Context, r *model.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.recipes {
		if existing.UUID == r.UUID {
			return apperror.Conflict("recipe", r.UUID)
		}
		if existing.Name == r.Name && existing.UserID == r.UserID {
			return apperror.ConflictField("name", "duplicate")
		}
	}
	r.ID = f.id()
	f.recipes = append(f.recipes, *r)
	return nil
}

func (f *fakeStore) GetRecipeByUUID(_ context.Context, uuid string) (*model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipes {
		if r.UUID == uuid {
			return &r, nil
		}
	}
	return nil, apperror.NotFound("recipe", uuid)
}

func (f *fakeStore) UUIDExists(_ context.Context, uuid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uuidChecks++
	if f.failUUIDExists {
		return true, nil
	}
	return slices.ContainsFunc(f.recipes, func(r model.Recipe) bool { return r.UUID == uuid }), nil
}

func (f *fakeStore) UpdateRecipe(_ context.Context, r *model.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := -1
	for i, existing := range f.recipes {
		if existing.ID == r.ID {
			idx = i
			continue
		}
		if existing.Name == r.Name && existing.UserID == r.UserID {
			return apperror.ConflictField("name", "duplicate")
		}
	}
	if idx < 0 {
		return apperror.NotFound("recipe", r.ID)
	}
	f.recipes[idx] = *r
	return nil
}

func (f *fakeStore) UpdateThumbnail(_ context.Context, recipeID, thumbnail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateThumbnail {
		return errFakeStore
	}
	for i := range f.recipes {
		if f.recipes[i].ID == recipeID {
			f.recipes[i].Thumbnail = thumbnail
			return nil
		}
	}
	return apperror.NotFound("recipe", recipeID)
}

func (f *fakeStore) DeleteRecipe(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := len(f.recipes)
	f.recipes = slices.DeleteFunc(f.recipes, func(r model.Recipe) bool { return r.ID == id })
	if len(f.recipes) == before {
		return apperror.NotFound("recipe", id)
	}
	f.images = slices.DeleteFunc(f.images, func(i model.RecipeImage) bool { return i.RecipeID == id })
	for k := range f.links {
		if k[0] == id {
			delete(f.links, k)
		}
	}
	return nil
}

func (f *fakeStore) ListRecipes(context.Context) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.recipes), nil
}

func (f *fakeStore) ListRecipesByUser(_ context.Context, userID string) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Recipe
	for i := len(f.recipes) - 1; i >= 0; i-- {
		if f.recipes[i].UserID == userID {
			out = append(out, f.recipes[i])
		}
	}
	return out, nil
}

func (f *fakeStore) ListRecipesByTag(_ context.Context, tagID string, limit int) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Recipe{}
	for _, r := range f.recipes {
		if f.links[[2]string{r.ID, tagID}] {
			out = append(out, r)
		}
	}
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) SearchRecipesByName(_ context.Context, term string, limit int) ([]model.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Recipe{}
	for _, r := range f.recipes {
		if strings.Contains(strings.ToLower(r.Name), strings.ToLower(term)) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateTag(_ context.Context, t *model.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slices.ContainsFunc(f.tags, func(x model.Tag) bool { return x.Name == t.Name }) {
		return apperror.Conflict("tag", t.Name)
	}
	t.ID = f.id()
	f.tags = append(f.tags, *t)
	return nil
}

func (f *fakeStore) GetTagByName(_ context.Context, name string) (*model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tags {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, apperror.NotFound("tag", name)
}

func (f *fakeStore) ListAllTags(context.Context) ([]model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.tags), nil
}

func (f *fakeStore) ListTags(_ context.Context, recipeID string) ([]model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Tag{}
	for _, t := range f.tags {
		if f.links[[2]string{recipeID, t.ID}] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) AttachTag(_ context.Context, recipeID, tagID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := [2]string{recipeID, tagID}
	if f.links[k] {
		return false, nil
	}
	f.links[k] = true
	return true, nil
}

func (f *fakeStore) DetachTag(_ context.Context, recipeID, tagID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := [2]string{recipeID, tagID}
	if !f.links[k] {
		return false, nil
	}
	delete(f.links, k)
	return true, nil
}

func (f *fakeStore) HasTag(_ context.Context, recipeID, tagID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[[2]string{recipeID, tagID}], nil
}

func (f *fakeStore) AddImage(_ context.Context, img *model.RecipeImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img.ID = f.id()
	img.FileName = model.ImageFileName(img.FileName)
	f.images = append(f.images, *img)
	return nil
}

func (f *fakeStore) ListImages(_ context.Context, recipeID string) ([]model.RecipeImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.RecipeImage{}
	for _, img := range f.images {
		if img.RecipeID == recipeID {
			out = append(out, img)
		}
	}
	return out, nil
}

// fakeFiles is an in-memory storage.FileStore. Saved names get a counter
// prefix instead of an xid so tests can predict them.
type fakeFiles struct {
	mu    sync.Mutex
	n     int
	files map[storage.Set]map[string]string

	failCopy bool
	failSave map[storage.Set]bool
}

var errFakeStorage = errors.New("fake storage failure")

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		files:    map[storage.Set]map[string]string{storage.SetImages: {}, storage.SetThumbnails: {}},
		failSave: map[storage.Set]bool{},
	}
}

func (f *fakeFiles) Save(_ context.Context, set storage.Set, name string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave[set] {
		return "", errFakeStorage
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.n++
	stored := fmt.Sprintf("%d_%s", f.n, name)
	f.files[set][stored] = string(data)
	return stored, nil
}

func (f *fakeFiles) Copy(_ context.Context, name string, from, to storage.Set) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCopy {
		return "", errFakeStorage
	}
	data, ok := f.files[from][name]
	if !ok {
		return "", storage.ErrNotExist
	}
	f.files[to][name] = data
	return name, nil
}

func (f *fakeFiles) Open(_ context.Context, set storage.Set, name string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[set][name]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (f *fakeFiles) has(set storage.Set, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[set][name]
	return ok
}

// ============================================================
// Helpers
// ============================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func upload(name, content string) Upload {
	return Upload{Filename: name, Content: bytes.NewBufferString(content)}
}

func assertAppError(t interface {
	Helper()
	Fatalf(string, ...any)
}, err, sentinel error, field string) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want %v", err, sentinel)
	}
	if field == "" {
		return
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an *apperror.AppError", err)
	}
	if appErr.Field != field {
		t.Fatalf("field = %q, want %q", appErr.Field, field)
	}
}
