package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
)

func TestAccounts_Get_Visibility(t *testing.T) {
	t.Parallel()
	ct, pt, stranger := linkedPair()
	pt.PwdHash = []byte("secret")
	s := NewAccountService(newFakeAccounts(ct, pt, stranger))
	ctx := context.Background()

	got, err := s.Get(ctx, ct.ID, pt.ID)
	if err != nil || got.ID != pt.ID {
		t.Fatalf("caretaker reading patient: %+v, %v", got, err)
	}
	if got.PwdHash != nil {
		t.Fatalf("credential material leaked")
	}
	if _, err := s.Get(ctx, pt.ID, ct.ID); err != nil {
		t.Fatalf("patient reading caretaker: %v", err)
	}
	if _, err := s.Get(ctx, stranger.ID, stranger.ID); err != nil {
		t.Fatalf("self read: %v", err)
	}
	if _, err := s.Get(ctx, stranger.ID, pt.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("want ErrForbidden for stranger, got %v", err)
	}
	if _, err := s.Get(ctx, uuid.Nil, pt.ID); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for nil caller, got %v", err)
	}
}

func TestAccounts_Link(t *testing.T) {
	t.Parallel()
	ct := &model.Account{ID: uuid.Must(uuid.NewV4()), Email: "ct@example.com", Username: "ct@example.com"}
	pt := &model.Account{ID: uuid.Must(uuid.NewV4()), Email: "pt@example.com", Username: "pt@example.com"}
	repo := newFakeAccounts(ct, pt)
	s := NewAccountService(repo)
	ctx := context.Background()

	got, err := s.Link(ctx, ct.ID, " PT@example.com")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if got.Patient == nil || got.Patient.ID != pt.ID || got.Caretaker != nil {
		t.Fatalf("caretaker after link: %+v", got)
	}
	if repo.byID[pt.ID].Caretaker == nil || repo.byID[pt.ID].Caretaker.ID != ct.ID {
		t.Fatalf("patient not back-linked")
	}

	if _, err := s.Link(ctx, ct.ID, "pt@example.com"); !errors.Is(err, errs.ErrAlreadyLinked) {
		t.Fatalf("want ErrAlreadyLinked, got %v", err)
	}
	if _, err := s.Link(ctx, ct.ID, "nobody@example.com"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.Link(ctx, ct.ID, ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestAccounts_Visible(t *testing.T) {
	t.Parallel()
	ct, pt, stranger := linkedPair()
	s := NewAccountService(newFakeAccounts(ct, pt, stranger))

	got, err := s.Visible(context.Background(), ct.ID)
	if err != nil || len(got) != 2 {
		t.Fatalf("Visible(caretaker) = %v, %v", got, err)
	}
	got, err = s.Visible(context.Background(), stranger.ID)
	if err != nil || len(got) != 1 || got[0].ID != stranger.ID {
		t.Fatalf("Visible(stranger) = %v, %v", got, err)
	}
}
