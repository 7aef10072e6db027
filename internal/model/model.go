// Package model defines domain entities shared by the backend, the record-store client and the session core.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// AddressSeparator joins the structured parts of a stored bookmark address.
const AddressSeparator = ", "

// AccountRef is a typed foreign key to an account record.
type AccountRef struct {
	ID uuid.UUID
}

// NewAccountRef returns a pointer to a reference for id, or nil for uuid.Nil.
func NewAccountRef(id uuid.UUID) *AccountRef {
	if id == uuid.Nil {
		return nil
	}
	return &AccountRef{ID: id}
}

// String returns the referenced ID.
func (r AccountRef) String() string { return r.ID.String() }

// Account is the raw backend account record.
type Account struct {
	ID        uuid.UUID   // PK
	Username  string      // unique, equals Email for self-registered accounts
	Email     string      // unique
	Caretaker *AccountRef // set on a patient linked to a caretaker
	Patient   *AccountRef // set on a caretaker linked to a patient
	CreatedAt time.Time

	// Server-side only; never serialized to clients.
	PwdHash  []byte
	SaltAuth []byte
}

// Ref returns the reference pointing at this account.
func (a Account) Ref() AccountRef { return AccountRef{ID: a.ID} }

// Handle is an authenticated remote handle: the account record plus its access token.
type Handle struct {
	Account     Account
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the handle carries a token that has not expired at now.
func (h Handle) Valid(now time.Time) bool {
	return h.AccessToken != "" && h.Account.ID != uuid.Nil && now.Before(h.ExpiresAt)
}

// Credentials are the login/registration inputs.
type Credentials struct {
	Email    string
	Password string
}

// Registration is the set of fields used to create a new account record.
type Registration struct {
	Username string
	Email    string
	Password string
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// PostalAddress is a structured street address.
type PostalAddress struct {
	Street     string
	City       string
	Region     string
	PostalCode string
}

// Complete reports whether every structured field is present.
func (a PostalAddress) Complete() bool {
	return a.Street != "" && a.City != "" && a.Region != "" && a.PostalCode != ""
}

// Concat joins the structured fields into the stored address form.
func (a PostalAddress) Concat() string {
	return strings.Join([]string{a.Street, a.City, a.Region, a.PostalCode}, AddressSeparator)
}

// ParsePostalAddress splits a stored address back into its structured fields.
// Missing trailing parts are left empty.
func ParsePostalAddress(s string) PostalAddress {
	parts := strings.Split(s, AddressSeparator)
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	return PostalAddress{
		Street:     parts[0],
		City:       parts[1],
		Region:     parts[2],
		PostalCode: strings.Join(parts[3:], AddressSeparator),
	}
}

// Bookmark is a named, addressed location saved for a patient.
type Bookmark struct {
	ID         uuid.UUID
	Patient    AccountRef  // owning patient account
	Name       string
	Address    string      // concatenated PostalAddress
	Coordinate *Coordinate // nil until resolved
	UpdatedAt  time.Time
}

// Title returns the first address component, used as the destination marker title.
func (b Bookmark) Title() string {
	title, _, _ := strings.Cut(b.Address, AddressSeparator)
	return title
}

// BookmarkChange is an edit intent; nil fields are left untouched.
type BookmarkChange struct {
	Name       *string
	Address    *string
	Coordinate *Coordinate
}
