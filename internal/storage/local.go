package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/recipe-list/internal/model"
)

var _ FileStore = (*LocalStore)(nil)

// LocalStore keeps each set in its own directory under root.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocalStore creates the set directories under root if needed.
func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	for _, set := range Sets {
		if err := os.MkdirAll(filepath.Join(root, string(set)), 0755); err != nil {
			return nil, fmt.Errorf("storage: creating %s directory: %w", set, err)
		}
	}
	return &LocalStore{root: root, logger: logger}, nil
}

func (s *LocalStore) path(set Set, name string) string {
	return filepath.Join(s.root, string(set), name)
}

func (s *LocalStore) Save(ctx context.Context, set Set, name string, r io.Reader) (string, error) {
	stored := StoredName(name)
	if err := s.write(set, stored, r); err != nil {
		return "", err
	}
	return stored, nil
}

// Copy keeps the file's name: stored names are already unique, and the
// thumbnail set is keyed by the same name as the image it came from.
func (s *LocalStore) Copy(ctx context.Context, name string, from, to Set) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	src, err := os.Open(s.path(from, name))
	if err != nil {
		return "", fmt.Errorf("storage: opening %s/%s: %w", from, name, err)
	}
	defer src.Close()

	if err := s.write(to, name, src); err != nil {
		return "", err
	}
	return name, nil
}

func (s *LocalStore) Open(ctx context.Context, set Set, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(set, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("storage: opening %s/%s: %w", set, name, err)
	}
	return f, nil
}

// EnsurePlaceholders copies the stock placeholder image at source into every
// set. A missing source still yields an empty placeholder file so that
// references to it never 404.
func (s *LocalStore) EnsurePlaceholders(source string) error {
	for _, set := range Sets {
		dst := s.path(set, model.PlaceholderFilename)
		if _, err := os.Stat(dst); err == nil {
			continue
		}

		src, err := os.Open(source)
		if err != nil {
			s.logger.Warn("placeholder image missing, creating empty file",
				slog.String("source", source),
				slog.String("set", string(set)),
			)
			if err := os.WriteFile(dst, nil, 0644); err != nil {
				return fmt.Errorf("storage: creating placeholder in %s: %w", set, err)
			}
			continue
		}
		err = s.write(set, model.PlaceholderFilename, src)
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// write streams r to a temp file in the set directory and renames it into
// place, so readers never see a partially written file.
func (s *LocalStore) write(set Set, name string, r io.Reader) error {
	dir := filepath.Join(s.root, string(set))
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("storage: creating temp file in %s: %w", set, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: writing %s/%s: %w", set, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: closing %s/%s: %w", set, name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(set, name)); err != nil {
		return fmt.Errorf("storage: moving %s/%s into place: %w", set, name, err)
	}
	return nil
}
