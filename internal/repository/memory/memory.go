// Package memory contains in-process implementations of the repository
// interfaces, used by development servers and tests. State is lost on exit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/repository"
)

// Store holds accounts and bookmarks behind one lock.
type Store struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]model.Account
	bookmarks map[uuid.UUID]model.Bookmark
	now       func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:  map[uuid.UUID]model.Account{},
		bookmarks: map[uuid.UUID]model.Bookmark{},
		now:       time.Now,
	}
}

// Accounts returns the account repository view.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// Bookmarks returns the bookmark repository view.
func (s *Store) Bookmarks() *BookmarkRepo { return &BookmarkRepo{s: s} }

// AccountRepo implements repository.AccountRepository.
type AccountRepo struct{ s *Store }

var _ repository.AccountRepository = (*AccountRepo)(nil)

// Create inserts a, enforcing unique email and username.
func (r *AccountRepo) Create(_ context.Context, a *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[a.ID]; ok {
		return errs.ErrAlreadyExists
	}
	for _, x := range r.s.accounts {
		if x.Email == a.Email || x.Username == a.Username {
			return errs.ErrAlreadyExists
		}
	}
	a.CreatedAt = r.s.now()
	r.s.accounts[a.ID] = cloneAccount(*a)
	return nil
}

// GetByID loads an account.
func (r *AccountRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := cloneAccount(a)
	return &c, nil
}

// GetByEmail loads an account by its exact email.
func (r *AccountRepo) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Email == email {
			c := cloneAccount(a)
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

// Link sets both sides of a caretaker/patient relationship atomically.
func (r *AccountRepo) Link(_ context.Context, caretakerID, patientID uuid.UUID) error {
	if caretakerID == patientID {
		return fmt.Errorf("account cannot link to itself: %w", errs.ErrValidation)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ct, ok1 := r.s.accounts[caretakerID]
	pt, ok2 := r.s.accounts[patientID]
	if !ok1 || !ok2 {
		return errs.ErrNotFound
	}
	if ct.Caretaker != nil || ct.Patient != nil || pt.Caretaker != nil || pt.Patient != nil {
		return errs.ErrAlreadyLinked
	}
	ct.Patient = model.NewAccountRef(patientID)
	pt.Caretaker = model.NewAccountRef(caretakerID)
	r.s.accounts[caretakerID] = ct
	r.s.accounts[patientID] = pt
	return nil
}

// BookmarkRepo implements repository.BookmarkRepository.
type BookmarkRepo struct{ s *Store }

var _ repository.BookmarkRepository = (*BookmarkRepo)(nil)

// Find returns the patient's bookmarks matching q, ordered by name then id.
func (r *BookmarkRepo) Find(_ context.Context, q repository.BookmarkQuery) ([]model.Bookmark, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Bookmark{}
	for _, b := range r.s.bookmarks {
		if b.Patient.ID != q.PatientID {
			continue
		}
		if q.Name != nil && b.Name != *q.Name {
			continue
		}
		if q.Address != nil && b.Address != *q.Address {
			continue
		}
		out = append(out, cloneBookmark(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Get loads a bookmark.
func (r *BookmarkRepo) Get(_ context.Context, id uuid.UUID) (*model.Bookmark, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookmarks[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := cloneBookmark(b)
	return &c, nil
}

// Create inserts b; its patient must exist.
func (r *BookmarkRepo) Create(_ context.Context, b *model.Bookmark) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[b.Patient.ID]; !ok {
		return fmt.Errorf("bookmark patient: %w", errs.ErrNotFound)
	}
	if _, ok := r.s.bookmarks[b.ID]; ok {
		return errs.ErrAlreadyExists
	}
	b.UpdatedAt = r.s.now()
	r.s.bookmarks[b.ID] = cloneBookmark(*b)
	return nil
}

// Update overwrites name, address and coordinate.
func (r *BookmarkRepo) Update(_ context.Context, b *model.Bookmark) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.bookmarks[b.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Name, cur.Address, cur.Coordinate = b.Name, b.Address, b.Coordinate
	cur.UpdatedAt = r.s.now()
	b.UpdatedAt = cur.UpdatedAt
	r.s.bookmarks[b.ID] = cloneBookmark(cur)
	return nil
}

// Delete removes a bookmark.
func (r *BookmarkRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bookmarks[id]; !ok {
		return errs.ErrNotFound
	}
	delete(r.s.bookmarks, id)
	return nil
}

func cloneAccount(a model.Account) model.Account {
	if a.Caretaker != nil {
		c := *a.Caretaker
		a.Caretaker = &c
	}
	if a.Patient != nil {
		p := *a.Patient
		a.Patient = &p
	}
	a.PwdHash = append([]byte(nil), a.PwdHash...)
	a.SaltAuth = append([]byte(nil), a.SaltAuth...)
	return a
}

func cloneBookmark(b model.Bookmark) model.Bookmark {
	if b.Coordinate != nil {
		c := *b.Coordinate
		b.Coordinate = &c
	}
	return b
}
