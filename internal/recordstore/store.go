// Package recordstore defines the record-store contract consumed by the session core
// and the bookmark navigator, together with the schema that guards equality queries.
package recordstore

import (
	"context"

	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Store is the remote record store: authentication, record creation,
// equality queries, fetch-by-reference and a local handle cache.
type Store interface {
	// Authenticate signs in with username/password and caches the returned handle.
	Authenticate(ctx context.Context, username, password string) (model.Handle, error)
	// CreateRecord registers a new account record and caches the returned handle.
	CreateRecord(ctx context.Context, reg model.Registration) (model.Handle, error)
	// Query returns records of collection matching every equality filter.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Record, error)
	// Fetch loads the account a reference points at.
	Fetch(ctx context.Context, ref model.AccountRef) (model.Account, error)
	// CurrentCachedHandle returns the locally cached handle without any network call.
	CurrentCachedHandle() (model.Handle, bool)
	// SignOut ends the remote session and drops the local cache.
	SignOut(ctx context.Context) error
}

// BookmarkWriter persists bookmark mutations.
type BookmarkWriter interface {
	// CreateBookmark stores a new bookmark owned by b.Patient.
	CreateBookmark(ctx context.Context, b model.Bookmark) (model.Bookmark, error)
	// UpdateBookmark applies a partial change.
	UpdateBookmark(ctx context.Context, id uuid.UUID, ch model.BookmarkChange) (model.Bookmark, error)
	// DeleteBookmark removes a bookmark.
	DeleteBookmark(ctx context.Context, id uuid.UUID) error
}

// Linker links the signed-in caretaker to a patient account.
type Linker interface {
	// Link links the caller to the patient registered under patientEmail and returns the caller's updated handle.
	Link(ctx context.Context, patientEmail string) (model.Handle, error)
}
