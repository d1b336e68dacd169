// Package storage persists uploaded recipe pictures.
//
// Files are grouped into named sets ("images", "thumbnails"). Every set holds
// a copy of model.PlaceholderFilename so a reference to it always resolves.
// Two backends exist: LocalStore (a directory per set) and S3Store (a key
// prefix per set in one bucket, MinIO compatible).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rs/xid"
)

// Set names a group of stored files.
type Set string

const (
	SetImages     Set = "images"
	SetThumbnails Set = "thumbnails"
)

// Sets lists every set a backend must provision.
var Sets = []Set{SetImages, SetThumbnails}

// ErrNotExist is returned by Open when the file is absent.
var ErrNotExist = errors.New("storage: file does not exist")

// ErrUnknownSet is returned by ParseSet.
var ErrUnknownSet = errors.New("storage: unknown file set")

// ParseSet validates a set name taken from a URL.
func ParseSet(s string) (Set, error) {
	for _, set := range Sets {
		if string(set) == s {
			return set, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSet, s)
}

// FileStore is the file primitive the upload policy depends on.
type FileStore interface {
	// Save stores r under a collision-free name derived from name and
	// returns that stored name.
	Save(ctx context.Context, set Set, name string, r io.Reader) (string, error)

	// Copy duplicates an existing file from one set into another and returns
	// the name it has in the target set.
	Copy(ctx context.Context, name string, from, to Set) (string, error)

	// Open returns the content of a stored file, or ErrNotExist.
	Open(ctx context.Context, set Set, name string) (io.ReadCloser, error)
}

// StoredName turns a client-supplied filename into the name a file is saved
// under: the base name with path separators and spaces neutralised, prefixed
// with an xid so two uploads of "cake.png" never overwrite each other.
func StoredName(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, base)
	if base == "." || base == "/" || base == ".." || base == "" {
		base = "upload"
	}
	return xid.New().String() + "_" + base
}

// validName rejects names that could escape a set. Names produced by
// StoredName, and the placeholder, always pass.
func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("storage: invalid file name %q", name)
	}
	return nil
}
