package repository

import (
	"context"

	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
)

// BookmarkQuery is an equality filter over bookmarks. PatientID is required;
// nil optional fields are not filtered on.
type BookmarkQuery struct {
	PatientID uuid.UUID
	Name      *string
	Address   *string
}

// BookmarkRepository provides access to patient bookmarks.
type BookmarkRepository interface {
	// Find returns bookmarks matching q ordered by name.
	Find(ctx context.Context, q BookmarkQuery) ([]model.Bookmark, error)
	// Get loads a single bookmark.
	Get(ctx context.Context, id uuid.UUID) (*model.Bookmark, error)
	// Create inserts b and fills UpdatedAt.
	Create(ctx context.Context, b *model.Bookmark) error
	// Update overwrites name, address and coordinate of b and fills UpdatedAt.
	Update(ctx context.Context, b *model.Bookmark) error
	// Delete removes a bookmark.
	Delete(ctx context.Context, id uuid.UUID) error
}
