package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

// Nullable refs are read through COALESCE so scans always target uuid.UUID.
const accountCols = `id, username, email, pwd_hash, salt_auth,
COALESCE(caretaker_id, '00000000-0000-0000-0000-000000000000'::uuid),
COALESCE(patient_id, '00000000-0000-0000-0000-000000000000'::uuid),
created_at`

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, username, email, pwd_hash, salt_auth)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, a.ID, a.Username, a.Email, a.PwdHash, a.SaltAuth).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountCols+` FROM accounts WHERE id=$1`, id)
}

// GetByEmail selects an account by email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountCols+` FROM accounts WHERE email=$1`, email)
}

func (r *AccountRepo) getOne(ctx context.Context, q string, arg any) (*model.Account, error) {
	var (
		a                  model.Account
		caretaker, patient uuid.UUID
	)
	row := r.db.Pool.QueryRow(ctx, q, arg)
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PwdHash, &a.SaltAuth, &caretaker, &patient, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	a.Caretaker = model.NewAccountRef(caretaker)
	a.Patient = model.NewAccountRef(patient)
	return &a, nil
}

// Link joins a caretaker and a patient in one transaction. Both rows are
// locked first; either side already carrying a relationship aborts the link.
func (r *AccountRepo) Link(ctx context.Context, caretakerID, patientID uuid.UUID) error {
	if caretakerID == patientID {
		return fmt.Errorf("link account to itself: %w", errs.ErrValidation)
	}
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		const sel = `
SELECT caretaker_id IS NOT NULL OR patient_id IS NOT NULL
FROM accounts WHERE id=$1 FOR UPDATE`
		for _, id := range []uuid.UUID{caretakerID, patientID} {
			var linked bool
			if err := tx.QueryRow(ctx, sel, id).Scan(&linked); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return errs.ErrNotFound
				}
				return err
			}
			if linked {
				return errs.ErrAlreadyLinked
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE accounts SET patient_id=$2 WHERE id=$1`, caretakerID, patientID); err != nil {
			return mapLinkErr(err)
		}
		if _, err := tx.Exec(ctx, `UPDATE accounts SET caretaker_id=$2 WHERE id=$1`, patientID, caretakerID); err != nil {
			return mapLinkErr(err)
		}
		return nil
	})
}

func mapLinkErr(err error) error {
	if isCheckViolation(err) {
		return fmt.Errorf("%v: %w", err, errs.ErrCorruptRelationship)
	}
	return err
}
