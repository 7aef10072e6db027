package service

import (
	"context"
	"sort"
	"time"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/limiter"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type fakeAccounts struct {
	byID map[uuid.UUID]*model.Account

	createErr error
	getErr    error
	linkErr   error
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts(accs ...*model.Account) *fakeAccounts {
	f := &fakeAccounts{byID: map[uuid.UUID]*model.Account{}}
	for _, a := range accs {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) Create(_ context.Context, a *model.Account) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, x := range f.byID {
		if x.Email == a.Email || x.Username == a.Username {
			return errs.ErrAlreadyExists
		}
	}
	cpy := *a
	f.byID[a.ID] = &cpy
	a.CreatedAt = time.Now()
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.byID {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeAccounts) Link(_ context.Context, caretakerID, patientID uuid.UUID) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	ct, ok1 := f.byID[caretakerID]
	pt, ok2 := f.byID[patientID]
	if !ok1 || !ok2 {
		return errs.ErrNotFound
	}
	if ct.Caretaker != nil || ct.Patient != nil || pt.Caretaker != nil || pt.Patient != nil {
		return errs.ErrAlreadyLinked
	}
	ct.Patient = &model.AccountRef{ID: patientID}
	pt.Caretaker = &model.AccountRef{ID: caretakerID}
	return nil
}

type fakeBookmarks struct {
	byID      map[uuid.UUID]model.Bookmark
	createErr error
}

var _ repository.BookmarkRepository = (*fakeBookmarks)(nil)

func newFakeBookmarks(bs ...model.Bookmark) *fakeBookmarks {
	f := &fakeBookmarks{byID: map[uuid.UUID]model.Bookmark{}}
	for _, b := range bs {
		f.byID[b.ID] = b
	}
	return f
}

func (f *fakeBookmarks) Find(_ context.Context, q repository.BookmarkQuery) ([]model.Bookmark, error) {
	var out []model.Bookmark
	for _, b := range f.byID {
		if b.Patient.ID != q.PatientID {
			continue
		}
		if q.Name != nil && b.Name != *q.Name {
			continue
		}
		if q.Address != nil && b.Address != *q.Address {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeBookmarks) Get(_ context.Context, id uuid.UUID) (*model.Bookmark, error) {
	b, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &b, nil
}

func (f *fakeBookmarks) Create(_ context.Context, b *model.Bookmark) error {
	if f.createErr != nil {
		return f.createErr
	}
	b.UpdatedAt = time.Now()
	f.byID[b.ID] = *b
	return nil
}

func (f *fakeBookmarks) Update(_ context.Context, b *model.Bookmark) error {
	if _, ok := f.byID[b.ID]; !ok {
		return errs.ErrNotFound
	}
	b.UpdatedAt = time.Now()
	f.byID[b.ID] = *b
	return nil
}

func (f *fakeBookmarks) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.byID[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
	lastKey      string
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, email string, _ []byte) (bool, time.Duration, error) {
	l.allowCalls++
	l.lastKey = email
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

// linkedPair returns a caretaker linked to a patient and an unrelated stranger.
func linkedPair() (caretaker, patient, stranger *model.Account) {
	caretaker = &model.Account{ID: uuid.Must(uuid.NewV4()), Username: "ct@example.com", Email: "ct@example.com"}
	patient = &model.Account{ID: uuid.Must(uuid.NewV4()), Username: "pt@example.com", Email: "pt@example.com"}
	stranger = &model.Account{ID: uuid.Must(uuid.NewV4()), Username: "x@example.com", Email: "x@example.com"}
	caretaker.Patient = &model.AccountRef{ID: patient.ID}
	patient.Caretaker = &model.AccountRef{ID: caretaker.ID}
	return caretaker, patient, stranger
}
