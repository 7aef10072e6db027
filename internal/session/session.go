// Package session owns the current authenticated session and resolves its
// caretaker/patient relationship.
package session

import (
	"fmt"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Role is the relationship role of a session.
type Role int

const (
	// RoleUnlinked means neither reference is set; the account requires setup.
	RoleUnlinked Role = iota
	// RoleCaretaker means the account is linked to a patient.
	RoleCaretaker
	// RolePatient means the account is linked to a caretaker.
	RolePatient
)

func (r Role) String() string {
	switch r {
	case RoleCaretaker:
		return "caretaker"
	case RolePatient:
		return "patient"
	default:
		return "unlinked"
	}
}

// Session is an authenticated account with its relationship references.
// It is immutable; a relationship change produces a new Session.
type Session struct {
	handle model.Handle
}

// New builds a session from an authenticated handle. A handle carrying both a
// caretaker and a patient reference is rejected with errs.ErrCorruptRelationship.
func New(h model.Handle) (*Session, error) {
	if h.Account.ID == uuid.Nil {
		return nil, fmt.Errorf("session: handle without account id: %w", errs.ErrValidation)
	}
	if h.Account.Caretaker != nil && h.Account.Patient != nil {
		return nil, fmt.Errorf("session %s: %w", h.Account.ID, errs.ErrCorruptRelationship)
	}
	return &Session{handle: h}, nil
}

// Handle returns the remote handle backing the session.
func (s *Session) Handle() model.Handle { return s.handle }

// AccountRef returns the raw backend reference to the session's account.
// Equality filters must use this, never the Session itself.
func (s *Session) AccountRef() model.AccountRef { return s.handle.Account.Ref() }

// ID is the account identifier.
func (s *Session) ID() uuid.UUID { return s.handle.Account.ID }

// Username is the account username.
func (s *Session) Username() string { return s.handle.Account.Username }

// Email is the account email.
func (s *Session) Email() string { return s.handle.Account.Email }

// CaretakerRef is set iff the session is a patient linked to a caretaker.
func (s *Session) CaretakerRef() *model.AccountRef { return copyRef(s.handle.Account.Caretaker) }

// PatientRef is set iff the session is a caretaker linked to a patient.
func (s *Session) PatientRef() *model.AccountRef { return copyRef(s.handle.Account.Patient) }

// IsCaretaker reports that no caretaker is referenced.
func (s *Session) IsCaretaker() bool { return s.handle.Account.Caretaker == nil }

// IsPatient reports that no patient is referenced.
func (s *Session) IsPatient() bool { return s.handle.Account.Patient == nil }

// RequiresSetup reports that the account is linked to nobody.
func (s *Session) RequiresSetup() bool { return s.IsCaretaker() && s.IsPatient() }

// Role derives the relationship role.
func (s *Session) Role() Role {
	switch {
	case s.handle.Account.Patient != nil:
		return RoleCaretaker
	case s.handle.Account.Caretaker != nil:
		return RolePatient
	default:
		return RoleUnlinked
	}
}

// Linked returns the reference of the other side of the relationship, if any.
func (s *Session) Linked() *model.AccountRef {
	if r := s.PatientRef(); r != nil {
		return r
	}
	return s.CaretakerRef()
}

func copyRef(r *model.AccountRef) *model.AccountRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
