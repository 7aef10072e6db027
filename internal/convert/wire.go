// Package convert maps domain models to API bodies and back.
package convert

import (
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/safety-beacon/internal/api"
	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
)

// --- refs ---

func refID(r *model.AccountRef) *uuid.UUID {
	if r == nil {
		return nil
	}
	id := r.ID
	return &id
}

func idRef(id *uuid.UUID) *model.AccountRef {
	if id == nil {
		return nil
	}
	return model.NewAccountRef(*id)
}

// --- accounts ---

// ToAPIAccount projects an account; credential fields are never copied.
func ToAPIAccount(a model.Account) api.Account {
	return api.Account{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Caretaker: refID(a.Caretaker),
		Patient:   refID(a.Patient),
		CreatedAt: a.CreatedAt,
	}
}

// FromAPIAccount converts an API account to the domain model.
func FromAPIAccount(a api.Account) model.Account {
	return model.Account{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Caretaker: idRef(a.Caretaker),
		Patient:   idRef(a.Patient),
		CreatedAt: a.CreatedAt,
	}
}

// ToAPIHandle converts a handle.
func ToAPIHandle(h model.Handle) api.Handle {
	return api.Handle{Account: ToAPIAccount(h.Account), AccessToken: h.AccessToken, ExpiresAt: h.ExpiresAt}
}

// FromAPIHandle converts a handle.
func FromAPIHandle(h api.Handle) model.Handle {
	return model.Handle{Account: FromAPIAccount(h.Account), AccessToken: h.AccessToken, ExpiresAt: h.ExpiresAt}
}

// --- bookmarks ---

func coordFields(c *model.Coordinate) (lat, lng *float64) {
	if c == nil {
		return nil, nil
	}
	la, ln := c.Latitude, c.Longitude
	return &la, &ln
}

func fieldsCoord(lat, lng *float64) (*model.Coordinate, error) {
	switch {
	case lat == nil && lng == nil:
		return nil, nil
	case lat == nil || lng == nil:
		return nil, fmt.Errorf("lat and lng must be set together: %w", errs.ErrValidation)
	}
	return &model.Coordinate{Latitude: *lat, Longitude: *lng}, nil
}

// ToAPIBookmark converts a bookmark.
func ToAPIBookmark(b model.Bookmark) api.Bookmark {
	lat, lng := coordFields(b.Coordinate)
	return api.Bookmark{
		ID:        b.ID,
		Patient:   b.Patient.ID,
		Name:      b.Name,
		Address:   b.Address,
		Lat:       lat,
		Lng:       lng,
		UpdatedAt: b.UpdatedAt,
	}
}

// FromAPIBookmark converts a bookmark body; a lone lat or lng is rejected.
func FromAPIBookmark(in api.Bookmark) (model.Bookmark, error) {
	if in.Patient == uuid.Nil {
		return model.Bookmark{}, fmt.Errorf("bookmark without patient: %w", errs.ErrValidation)
	}
	c, err := fieldsCoord(in.Lat, in.Lng)
	if err != nil {
		return model.Bookmark{}, err
	}
	return model.Bookmark{
		ID:         in.ID,
		Patient:    model.AccountRef{ID: in.Patient},
		Name:       in.Name,
		Address:    in.Address,
		Coordinate: c,
		UpdatedAt:  in.UpdatedAt,
	}, nil
}

// ToAPIBookmarkChange converts an edit intent.
func ToAPIBookmarkChange(ch model.BookmarkChange) api.BookmarkChange {
	lat, lng := coordFields(ch.Coordinate)
	return api.BookmarkChange{Name: ch.Name, Address: ch.Address, Lat: lat, Lng: lng}
}

// FromAPIBookmarkChange converts an edit intent.
func FromAPIBookmarkChange(in api.BookmarkChange) (model.BookmarkChange, error) {
	c, err := fieldsCoord(in.Lat, in.Lng)
	if err != nil {
		return model.BookmarkChange{}, err
	}
	return model.BookmarkChange{Name: in.Name, Address: in.Address, Coordinate: c}, nil
}
