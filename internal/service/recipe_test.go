package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/sakif/recipe-list/internal/apperror"
	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/storage"
)

func newTestRecipeService() (*RecipeService, *fakeStore, *fakeFiles) {
	store := newFakeStore()
	files := newFakeFiles()
	svc := NewRecipeService(store, store, store, files, nil, discardLogger())
	return svc, store, files
}

func validRecipe(name string) RecipeInput {
	return RecipeInput{
		Name:        name,
		Minutes:     30,
		SkillLevel:  "intermediate",
		Calories:    500,
		Description: "tasty",
		Body:        "mix and bake",
	}
}

func mustCreate(t *testing.T, svc *RecipeService, author, name string) *model.Recipe {
	t.Helper()
	r, err := svc.Create(context.Background(), author, validRecipe(name), RecipeUploads{})
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	return r
}

// ============================================================
// Create
// ============================================================

func TestCreate_NameUniquePerAuthor(t *testing.T) {
	svc, _, _ := newTestRecipeService()
	ctx := context.Background()

	mustCreate(t, svc, "bob", "Pancakes")

	_, err := svc.Create(ctx, "bob", validRecipe("Pancakes"), RecipeUploads{})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Pancakes for bob: error = %v, want ErrConflict", err)
	}

	if _, err := svc.Create(ctx, "alice", validRecipe("Pancakes"), RecipeUploads{}); err != nil {
		t.Fatalf("Pancakes for alice: %v", err)
	}
}

func TestCreate_DistinctUUIDs(t *testing.T) {
	svc, _, _ := newTestRecipeService()

	seen := map[string]bool{}
	for i := range 20 {
		r := mustCreate(t, svc, "bob", strings.Repeat("r", i+1))
		if _, err := uuid.Parse(r.UUID); err != nil {
			t.Fatalf("UUID %q does not parse: %v", r.UUID, err)
		}
		if seen[r.UUID] {
			t.Fatalf("UUID %s issued twice", r.UUID)
		}
		seen[r.UUID] = true
	}
}

func TestCreate_RetriesCollidingUUID(t *testing.T) {
	svc, store, _ := newTestRecipeService()
	existing := mustCreate(t, svc, "bob", "First")

	taken := uuid.MustParse(existing.UUID)
	fresh := uuid.New()
	calls := 0
	svc.newUUID = func() (uuid.UUID, error) {
		calls++
		if calls < 3 {
			return taken, nil
		}
		return fresh, nil
	}
	store.uuidChecks = 0

	r := mustCreate(t, svc, "bob", "Second")
	if r.UUID != fresh.String() {
		t.Errorf("UUID = %s, want %s", r.UUID, fresh)
	}
	if store.uuidChecks != 3 {
		t.Errorf("UUIDExists called %d times, want 3", store.uuidChecks)
	}
}

func TestCreate_UUIDExhausted(t *testing.T) {
	svc, store, _ := newTestRecipeService()
	store.failUUIDExists = true

	_, err := svc.Create(context.Background(), "bob", validRecipe("Pancakes"), RecipeUploads{})
	if !errors.Is(err, ErrUUIDExhausted) {
		t.Fatalf("error = %v, want ErrUUIDExhausted", err)
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		t.Error("exhaustion must not be an AppError")
	}
	if store.uuidChecks != MaxUUIDAttempts {
		t.Errorf("UUIDExists called %d times, want %d", store.uuidChecks, MaxUUIDAttempts)
	}
	if len(store.recipes) != 0 {
		t.Errorf("%d recipes stored, want 0", len(store.recipes))
	}
}

func TestCreate_Validation(t *testing.T) {
	tooMany := make([]Upload, MaxRecipeImages+1)
	for i := range tooMany {
		tooMany[i] = upload("pic.png", "x")
	}

	tests := []struct {
		name      string
		in        func(*RecipeInput)
		uploads   RecipeUploads
		wantField string
	}{
		{"missing name", func(in *RecipeInput) { in.Name = " " }, RecipeUploads{}, "name"},
		{"name too long", func(in *RecipeInput) { in.Name = strings.Repeat("n", 101) }, RecipeUploads{}, "name"},
		{"negative minutes", func(in *RecipeInput) { in.Minutes = -1 }, RecipeUploads{}, "minutes"},
		{"too many minutes", func(in *RecipeInput) { in.Minutes = 601 }, RecipeUploads{}, "minutes"},
		{"too many calories", func(in *RecipeInput) { in.Calories = 10001 }, RecipeUploads{}, "calories"},
		{"long description", func(in *RecipeInput) { in.Description = strings.Repeat("d", 501) }, RecipeUploads{}, "description"},
		{"long body", func(in *RecipeInput) { in.Body = strings.Repeat("b", 10001) }, RecipeUploads{}, "body"},
		{"placeholder image", nil, RecipeUploads{Images: []Upload{upload(model.PlaceholderFilename, "x")}}, "recipe_images"},
		{"placeholder thumbnail", nil, RecipeUploads{Thumbnail: &Upload{Filename: model.PlaceholderFilename}}, "thumbnail"},
		{"non-image upload", nil, RecipeUploads{Images: []Upload{upload("notes.txt", "x")}}, "recipe_images"},
		{"non-image thumbnail", nil, RecipeUploads{Thumbnail: &Upload{Filename: "run.exe"}}, "thumbnail"},
		{"svg image", nil, RecipeUploads{Images: []Upload{upload("chart.svg", "<svg/>")}}, "recipe_images"},
		{"svg thumbnail", nil, RecipeUploads{Thumbnail: &Upload{Filename: "x.SVG"}}, "thumbnail"},
		{"too many images", nil, RecipeUploads{Images: tooMany}, "recipe_images"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestRecipeService()
			in := validRecipe("Pancakes")
			if tt.in != nil {
				tt.in(&in)
			}

			_, err := svc.Create(context.Background(), "bob", in, tt.uploads)
			assertAppError(t, err, apperror.ErrValidation, tt.wantField)
			if len(store.recipes) != 0 {
				t.Errorf("%d recipes stored after rejected input", len(store.recipes))
			}
		})
	}
}

func TestCreate_PlaceholderMessage(t *testing.T) {
	svc, _, _ := newTestRecipeService()

	_, err := svc.Create(context.Background(), "bob", validRecipe("Pancakes"),
		RecipeUploads{Images: []Upload{upload("placeholder.png", "x")}})
	if err == nil || !strings.Contains(err.Error(), `"placeholder.png"`) {
		t.Fatalf("error = %v, want the reserved-name message", err)
	}
}

func TestCreate_SkillLevel(t *testing.T) {
	svc, _, _ := newTestRecipeService()

	for i, tt := range []struct {
		in   string
		want model.SkillLevel
	}{
		{"pro", model.SkillPro},
		{"2", model.SkillAdvanced},
		{"", model.SkillBeginner},
		{"chef", model.SkillBeginner},
	} {
		in := validRecipe(strings.Repeat("s", i+1))
		in.SkillLevel = tt.in
		r, err := svc.Create(context.Background(), "bob", in, RecipeUploads{})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if r.SkillLevel != tt.want {
			t.Errorf("SkillLevel(%q) = %q, want %q", tt.in, r.SkillLevel, tt.want)
		}
	}
}

// ============================================================
// Create: images and thumbnails
// ============================================================

func TestCreate_FirstImageBecomesThumbnail(t *testing.T) {
	svc, store, files := newTestRecipeService()

	r, err := svc.Create(context.Background(), "bob", validRecipe("Pancakes"), RecipeUploads{
		Images: []Upload{upload("a.png", "A"), upload("b.jpg", "B")},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if r.Thumbnail != "1_a.png" {
		t.Errorf("Thumbnail = %q, want 1_a.png", r.Thumbnail)
	}
	if !files.has(storage.SetThumbnails, "1_a.png") {
		t.Error("first image was not copied into the thumbnails set")
	}

	images, _ := svc.ListImages(context.Background(), r.ID)
	if len(images) != 2 || images[0].FileName != "1_a.png" || images[1].FileName != "2_b.jpg" {
		t.Errorf("images = %+v, want the two uploads in order", images)
	}

	stored, _ := store.GetRecipeByUUID(context.Background(), r.UUID)
	if stored.Thumbnail != "1_a.png" {
		t.Errorf("stored Thumbnail = %q, want 1_a.png", stored.Thumbnail)
	}
}

func TestCreate_ExplicitThumbnailWins(t *testing.T) {
	svc, _, files := newTestRecipeService()

	r, err := svc.Create(context.Background(), "bob", validRecipe("Pancakes"), RecipeUploads{
		Thumbnail: &Upload{Filename: "cover.png", Content: strings.NewReader("C")},
		Images:    []Upload{upload("a.png", "A")},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if r.Thumbnail != "2_cover.png" {
		t.Errorf("Thumbnail = %q, want 2_cover.png", r.Thumbnail)
	}
	if files.has(storage.SetThumbnails, "1_a.png") {
		t.Error("first image copied although an explicit thumbnail was given")
	}
}

func TestCreate_CopyFailureFallsBackToPlaceholder(t *testing.T) {
	svc, _, files := newTestRecipeService()
	files.failCopy = true

	r, err := svc.Create(context.Background(), "bob", validRecipe("Pancakes"), RecipeUploads{
		Images: []Upload{upload("a.png", "A")},
	})
	if err != nil {
		t.Fatalf("Create must succeed despite the copy failure: %v", err)
	}
	if r.Thumbnail != model.PlaceholderFilename {
		t.Errorf("Thumbnail = %q, want %q", r.Thumbnail, model.PlaceholderFilename)
	}
}

func TestCreate_ThumbnailSaveFailureUsesImages(t *testing.T) {
	svc, _, files := newTestRecipeService()
	files.failSave[storage.SetThumbnails] = true

	r, err := svc.Create(context.Background(), "bob", validRecipe("Pancakes"), RecipeUploads{
		Thumbnail: &Upload{Filename: "cover.png", Content: strings.NewReader("C")},
		Images:    []Upload{upload("a.png", "A")},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Thumbnail != "1_a.png" {
		t.Errorf("Thumbnail = %q, want 1_a.png", r.Thumbnail)
	}
}

func TestCreate_ImageSaveFailureRemovesRecipe(t *testing.T) {
	svc, store, files := newTestRecipeService()
	files.failSave[storage.SetImages] = true

	_, err := svc.Create(context.Background(), "bob", validRecipe("Pancakes"), RecipeUploads{
		Images: []Upload{upload("a.png", "A")},
	})
	if !errors.Is(err, errFakeStorage) {
		t.Fatalf("error = %v, want the storage failure", err)
	}
	if len(store.recipes) != 0 {
		t.Errorf("%d recipes left behind, want 0", len(store.recipes))
	}
}

func TestCreate_ThumbnailUpdateFailureRemovesRecipe(t *testing.T) {
	svc, store, _ := newTestRecipeService()
	store.failUpdateThumbnail = true

	_, err := svc.Create(context.Background(), "bob", validRecipe("Pancakes"), RecipeUploads{
		Images: []Upload{upload("a.png", "A")},
	})
	if !errors.Is(err, errFakeStore) {
		t.Fatalf("error = %v, want the store failure", err)
	}
	if len(store.recipes) != 0 || len(store.images) != 0 {
		t.Errorf("left behind %d recipes and %d images, want none", len(store.recipes), len(store.images))
	}

	// The same name can be published again once the store recovers.
	store.failUpdateThumbnail = false
	if _, err := svc.Create(context.Background(), "bob", validRecipe("Pancakes"), RecipeUploads{}); err != nil {
		t.Errorf("retry: %v", err)
	}
}

// ============================================================
// Edit / Delete
// ============================================================

func TestEdit(t *testing.T) {
	svc, _, _ := newTestRecipeService()
	ctx := context.Background()
	r := mustCreate(t, svc, "bob", "Pancakes")
	mustCreate(t, svc, "bob", "Waffles")

	in := validRecipe("Pancakes")
	in.Minutes = 45
	edited, err := svc.Edit(ctx, "bob", r.UUID, in)
	if err != nil {
		t.Fatalf("Edit keeping the name: %v", err)
	}
	if edited.Minutes != 45 || edited.UUID != r.UUID || edited.UserID != "bob" {
		t.Errorf("edited = %+v", edited)
	}

	_, err = svc.Edit(ctx, "bob", r.UUID, validRecipe("Waffles"))
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("rename onto Waffles: error = %v, want ErrConflict", err)
	}

	_, err = svc.Edit(ctx, "alice", r.UUID, in)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("edit by alice: error = %v, want ErrForbidden", err)
	}

	_, err = svc.Edit(ctx, "bob", "no-such-uuid", in)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("edit of missing recipe: error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	svc, store, _ := newTestRecipeService()
	ctx := context.Background()
	r := mustCreate(t, svc, "bob", "Pancakes")
	if _, err := svc.AddTag(ctx, "bob", r.UUID, "breakfast"); err != nil {
		t.Fatalf("AddTag: %v", err)
	}

	if err := svc.Delete(ctx, "alice", r.UUID); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("delete by alice: error = %v, want ErrForbidden", err)
	}
	if err := svc.Delete(ctx, "bob", r.UUID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := svc.GetByUUID(ctx, r.UUID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByUUID after delete: error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetTagByName(ctx, "breakfast"); err != nil {
		t.Errorf("tag removed with its recipe: %v", err)
	}
}

// ============================================================
// Tags
// ============================================================

func TestAddTag_Idempotent(t *testing.T) {
	svc, store, _ := newTestRecipeService()
	ctx := context.Background()
	r := mustCreate(t, svc, "bob", "Pancakes")

	added, err := svc.AddTag(ctx, "bob", r.UUID, "breakfast")
	if err != nil || !added {
		t.Fatalf("first AddTag = %v, %v; want true, nil", added, err)
	}
	added, err = svc.AddTag(ctx, "bob", r.UUID, "breakfast")
	if err != nil || added {
		t.Fatalf("second AddTag = %v, %v; want false, nil", added, err)
	}

	tags, _ := svc.ListTags(ctx, r.ID)
	if len(tags) != 1 {
		t.Errorf("recipe has %d tags, want 1", len(tags))
	}
	if len(store.tags) != 1 {
		t.Errorf("%d tags exist, want 1", len(store.tags))
	}

	has, _ := svc.HasTag(ctx, r.ID, tags[0].ID)
	if !has {
		t.Error("HasTag = false after AddTag")
	}
}

func TestAddTag_ReusesExistingTag(t *testing.T) {
	svc, store, _ := newTestRecipeService()
	ctx := context.Background()
	a := mustCreate(t, svc, "bob", "Pancakes")
	b := mustCreate(t, svc, "bob", "Waffles")

	svc.AddTag(ctx, "bob", a.UUID, "breakfast")
	svc.AddTag(ctx, "bob", b.UUID, "breakfast")

	if len(store.tags) != 1 {
		t.Errorf("%d tags exist, want 1 shared tag", len(store.tags))
	}
}

func TestAddTag_Rejections(t *testing.T) {
	svc, store, _ := newTestRecipeService()
	ctx := context.Background()
	r := mustCreate(t, svc, "bob", "Pancakes")

	_, err := svc.AddTag(ctx, "alice", r.UUID, "stolen")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("AddTag by alice: error = %v, want ErrForbidden", err)
	}
	if len(store.tags) != 0 {
		t.Error("tag created before the ownership check")
	}

	_, err = svc.AddTag(ctx, "bob", r.UUID, "  ")
	assertAppError(t, err, apperror.ErrValidation, "name")

	_, err = svc.AddTag(ctx, "bob", r.UUID, strings.Repeat("t", 101))
	assertAppError(t, err, apperror.ErrValidation, "name")
}

func TestRemoveTag(t *testing.T) {
	svc, _, _ := newTestRecipeService()
	ctx := context.Background()
	r := mustCreate(t, svc, "bob", "Pancakes")
	svc.AddTag(ctx, "bob", r.UUID, "breakfast")

	tests := []struct {
		name        string
		requester   string
		tag         string
		wantRemoved bool
		wantErr     error
	}{
		{"unknown tag", "bob", "dinner", false, nil},
		{"not the author", "alice", "breakfast", false, apperror.ErrForbidden},
		{"attached tag", "bob", "breakfast", true, nil},
		{"already removed", "bob", "breakfast", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed, err := svc.RemoveTag(ctx, tt.requester, r.UUID, tt.tag)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("RemoveTag: %v", err)
			}
			if removed != tt.wantRemoved {
				t.Errorf("removed = %v, want %v", removed, tt.wantRemoved)
			}
		})
	}
}

// ============================================================
// Reads
// ============================================================

func TestDetail(t *testing.T) {
	svc, _, _ := newTestRecipeService()
	ctx := context.Background()
	r, err := svc.Create(ctx, "bob", validRecipe("Pancakes"), RecipeUploads{Images: []Upload{upload("a.png", "A")}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	svc.AddTag(ctx, "bob", r.UUID, "breakfast")

	d, err := svc.Detail(ctx, r.UUID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if d.Recipe.UUID != r.UUID || len(d.Tags) != 1 || len(d.Images) != 1 {
		t.Errorf("detail = %+v", d)
	}
}

func TestListByAuthor_NewestFirst(t *testing.T) {
	svc, _, _ := newTestRecipeService()
	mustCreate(t, svc, "bob", "First")
	mustCreate(t, svc, "alice", "Other")
	mustCreate(t, svc, "bob", "Second")

	got, err := svc.ListByAuthor(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ListByAuthor: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Second" || got[1].Name != "First" {
		t.Errorf("ListByAuthor = %v", got)
	}
}

func TestRecipeRows(t *testing.T) {
	recipes := make([]model.Recipe, 7)

	rows := RecipeRows(recipes, ProfileRowWidth)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if len(rows[0]) != 3 || len(rows[1]) != 3 || len(rows[2]) != 1 {
		t.Errorf("row sizes = %d/%d/%d, want 3/3/1", len(rows[0]), len(rows[1]), len(rows[2]))
	}

	if got := RecipeRows(nil, 3); len(got) != 0 {
		t.Errorf("RecipeRows(nil) = %v, want no rows", got)
	}
}
