package service

import (
	"context"
	"fmt"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// AccountService exposes accounts to their owner and the linked counterpart.
type AccountService interface {
	// Get returns account id if the caller is that account or linked to it.
	Get(ctx context.Context, callerID, id uuid.UUID) (model.Account, error)
	// Link makes the caller the caretaker of the patient registered under patientEmail
	// and returns the caller's updated account.
	Link(ctx context.Context, callerID uuid.UUID, patientEmail string) (model.Account, error)
	// Visible returns the caller and, when linked, its counterpart.
	Visible(ctx context.Context, callerID uuid.UUID) ([]model.Account, error)
}

// AccountServiceImpl implements AccountService.
type AccountServiceImpl struct {
	accounts repository.AccountRepository
}

// NewAccountService constructs AccountService.
func NewAccountService(accounts repository.AccountRepository) *AccountServiceImpl {
	return &AccountServiceImpl{accounts: accounts}
}

// Get loads an account visible to the caller.
func (s *AccountServiceImpl) Get(ctx context.Context, callerID, id uuid.UUID) (model.Account, error) {
	if callerID == uuid.Nil || id == uuid.Nil {
		return model.Account{}, fmt.Errorf("empty id: %w", errs.ErrValidation)
	}
	caller, err := s.accounts.GetByID(ctx, callerID)
	if err != nil {
		return model.Account{}, err
	}
	if id == callerID {
		return public(*caller), nil
	}
	if !linkedTo(caller, id) {
		return model.Account{}, errs.ErrForbidden
	}
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	return public(*a), nil
}

// Link joins the caller, as caretaker, with a patient found by email.
func (s *AccountServiceImpl) Link(ctx context.Context, callerID uuid.UUID, patientEmail string) (model.Account, error) {
	email := normalizeEmail(patientEmail)
	if callerID == uuid.Nil || email == "" {
		return model.Account{}, fmt.Errorf("caller and patient email required: %w", errs.ErrValidation)
	}
	patient, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return model.Account{}, err
	}
	if err := s.accounts.Link(ctx, callerID, patient.ID); err != nil {
		return model.Account{}, err
	}
	caller, err := s.accounts.GetByID(ctx, callerID)
	if err != nil {
		return model.Account{}, err
	}
	return public(*caller), nil
}

// Visible lists the accounts the caller may read.
func (s *AccountServiceImpl) Visible(ctx context.Context, callerID uuid.UUID) ([]model.Account, error) {
	caller, err := s.accounts.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	out := []model.Account{public(*caller)}
	for _, ref := range []*model.AccountRef{caller.Caretaker, caller.Patient} {
		if ref == nil {
			continue
		}
		a, err := s.accounts.GetByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, public(*a))
	}
	return out, nil
}

func linkedTo(a *model.Account, id uuid.UUID) bool {
	return (a.Caretaker != nil && a.Caretaker.ID == id) || (a.Patient != nil && a.Patient.ID == id)
}
