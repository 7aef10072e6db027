package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// BookmarkService manages a patient's bookmarks on behalf of the patient or its caretaker.
type BookmarkService interface {
	// Find returns bookmarks matching q.
	Find(ctx context.Context, callerID uuid.UUID, q repository.BookmarkQuery) ([]model.Bookmark, error)
	// Create stores a new bookmark for b.Patient.
	Create(ctx context.Context, callerID uuid.UUID, b model.Bookmark) (model.Bookmark, error)
	// Update applies a partial change.
	Update(ctx context.Context, callerID, id uuid.UUID, ch model.BookmarkChange) (model.Bookmark, error)
	// Delete removes a bookmark.
	Delete(ctx context.Context, callerID, id uuid.UUID) error
}

// BookmarkServiceImpl implements BookmarkService.
type BookmarkServiceImpl struct {
	accounts  repository.AccountRepository
	bookmarks repository.BookmarkRepository
}

// NewBookmarkService constructs BookmarkService.
func NewBookmarkService(accounts repository.AccountRepository, bookmarks repository.BookmarkRepository) *BookmarkServiceImpl {
	return &BookmarkServiceImpl{accounts: accounts, bookmarks: bookmarks}
}

// Find lists bookmarks of q.PatientID.
func (s *BookmarkServiceImpl) Find(ctx context.Context, callerID uuid.UUID, q repository.BookmarkQuery) ([]model.Bookmark, error) {
	if err := s.authorize(ctx, callerID, q.PatientID); err != nil {
		return nil, err
	}
	return s.bookmarks.Find(ctx, q)
}

// Create validates and inserts a bookmark with a server-assigned ID.
func (s *BookmarkServiceImpl) Create(ctx context.Context, callerID uuid.UUID, b model.Bookmark) (model.Bookmark, error) {
	b.Name, b.Address = strings.TrimSpace(b.Name), strings.TrimSpace(b.Address)
	if b.Name == "" || b.Address == "" {
		return model.Bookmark{}, fmt.Errorf("name and address required: %w", errs.ErrValidation)
	}
	if err := s.authorize(ctx, callerID, b.Patient.ID); err != nil {
		return model.Bookmark{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Bookmark{}, err
	}
	b.ID = id
	if err := s.bookmarks.Create(ctx, &b); err != nil {
		return model.Bookmark{}, err
	}
	return b, nil
}

// Update merges ch into the stored bookmark. A new address without a
// coordinate clears the stored coordinate.
func (s *BookmarkServiceImpl) Update(ctx context.Context, callerID, id uuid.UUID, ch model.BookmarkChange) (model.Bookmark, error) {
	b, err := s.owned(ctx, callerID, id)
	if err != nil {
		return model.Bookmark{}, err
	}
	if ch.Name != nil {
		if b.Name = strings.TrimSpace(*ch.Name); b.Name == "" {
			return model.Bookmark{}, fmt.Errorf("empty name: %w", errs.ErrValidation)
		}
	}
	if ch.Address != nil {
		if b.Address = strings.TrimSpace(*ch.Address); b.Address == "" {
			return model.Bookmark{}, fmt.Errorf("empty address: %w", errs.ErrValidation)
		}
		b.Coordinate = nil
	}
	if ch.Coordinate != nil {
		c := *ch.Coordinate
		b.Coordinate = &c
	}
	if err := s.bookmarks.Update(ctx, b); err != nil {
		return model.Bookmark{}, err
	}
	return *b, nil
}

// Delete removes a bookmark the caller may manage.
func (s *BookmarkServiceImpl) Delete(ctx context.Context, callerID, id uuid.UUID) error {
	if _, err := s.owned(ctx, callerID, id); err != nil {
		return err
	}
	return s.bookmarks.Delete(ctx, id)
}

func (s *BookmarkServiceImpl) owned(ctx context.Context, callerID, id uuid.UUID) (*model.Bookmark, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("empty bookmark id: %w", errs.ErrValidation)
	}
	b, err := s.bookmarks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, callerID, b.Patient.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// authorize allows the patient itself and the patient's linked caretaker.
func (s *BookmarkServiceImpl) authorize(ctx context.Context, callerID, patientID uuid.UUID) error {
	if callerID == uuid.Nil || patientID == uuid.Nil {
		return fmt.Errorf("empty caller or patient: %w", errs.ErrValidation)
	}
	if callerID == patientID {
		return nil
	}
	caller, err := s.accounts.GetByID(ctx, callerID)
	if err != nil {
		return err
	}
	if caller.Patient == nil || caller.Patient.ID != patientID {
		return errs.ErrForbidden
	}
	return nil
}
