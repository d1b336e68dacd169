package service

import (
	"context"
	"log/slog"

	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/storage"
)

// ChooseThumbnail decides which file a new recipe shows as its thumbnail.
//
//  1. An explicitly uploaded thumbnail wins.
//  2. Otherwise the first uploaded image is copied into the thumbnails set.
//  3. Otherwise, or if that copy fails, the placeholder is used.
//
// A failed copy is logged and never returned: a recipe is still publishable
// without its preferred thumbnail.
func ChooseThumbnail(ctx context.Context, files storage.FileStore, logger *slog.Logger, explicit string, uploaded []string) string {
	if explicit != "" {
		return explicit
	}
	if len(uploaded) == 0 || uploaded[0] == "" {
		return model.PlaceholderFilename
	}

	first := uploaded[0]
	name, err := files.Copy(ctx, first, storage.SetImages, storage.SetThumbnails)
	if err != nil {
		logger.Warn("could not copy image as thumbnail, using placeholder",
			slog.String("file", first),
			slog.String("error", err.Error()),
		)
		return model.PlaceholderFilename
	}
	return name
}
