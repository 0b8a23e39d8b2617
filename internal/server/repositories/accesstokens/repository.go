// Package accesstokens persists the full set of access-token records.
//
// A Store is the single source of truth for tokens. It only knows how to
// read and atomically replace the whole record set; all mutation rules live
// in the token services that sit on top of it.
package accesstokens

import (
	"context"

	"github.com/pmfstudio/reportgate/internal/server/models"
)

// Store loads and saves the complete, insertion-ordered set of records.
//
// Load fails with common.ErrStoreUnavailable when the backing medium cannot
// be read and with common.ErrStoreCorrupt when its content cannot be parsed.
// A store that has never been written loads as an empty set.
//
// Save replaces the whole set atomically: concurrent Loads observe either
// the previous set or the new one. It fails with common.ErrStoreUnavailable
// on I/O errors.
//
// Update runs one load-modify-save cycle while holding the store's writer
// lock, which also excludes writers in other processes. fn gets the current
// set and returns the set to store; a nil result leaves the store untouched.
// An error from fn is returned as is. fn may be called more than once when
// the backend resolves conflicts by retrying.
type Store interface {
	Load(ctx context.Context) ([]models.AccessToken, error)
	Save(ctx context.Context, tokens []models.AccessToken) error
	Update(ctx context.Context, fn UpdateFunc) error
}

// UpdateFunc computes the next record set from the current one.
type UpdateFunc func(tokens []models.AccessToken) ([]models.AccessToken, error)
