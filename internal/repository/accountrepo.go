// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository provides access to accounts and their caretaker/patient link.
type AccountRepository interface {
	// Create inserts a new account.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByEmail loads an account by email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// Link sets patient on the caretaker and caretaker on the patient atomically.
	// Both accounts must be unlinked.
	Link(ctx context.Context, caretakerID, patientID uuid.UUID) error
}
