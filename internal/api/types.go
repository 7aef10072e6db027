// Package api holds the JSON request and response bodies of the beacon HTTP API.
package api

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/safety-beacon/internal/recordstore"
)

// Route paths.
const (
	PathLogin     = "/v1/login"
	PathLogout    = "/v1/logout"
	PathAccounts  = "/v1/accounts"
	PathLink      = "/v1/accounts/link"
	PathQuery     = "/v1/query"
	PathBookmarks = "/v1/bookmarks"
	PathHealth    = "/healthz"
)

// LoginRequest authenticates by email.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Account is the public projection of an account.
type Account struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Caretaker *uuid.UUID `json:"caretaker,omitempty"`
	Patient   *uuid.UUID `json:"patient,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Handle is returned by login, registration and linking.
type Handle struct {
	Account     Account   `json:"account"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LinkRequest links the caller, as caretaker, to a patient.
type LinkRequest struct {
	PatientEmail string `json:"patient_email"`
}

// QueryRequest carries schema-checked equality filters.
type QueryRequest struct {
	Filters []recordstore.WireFilter `json:"filters"`
}

// QueryResponse lists matching records.
type QueryResponse struct {
	Records []recordstore.Record `json:"records"`
}

// Bookmark is a bookmark body. Lat and Lng are both set or both absent.
type Bookmark struct {
	ID        uuid.UUID `json:"id,omitempty"`
	Patient   uuid.UUID `json:"patient"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// BookmarkChange is a partial bookmark update.
type BookmarkChange struct {
	Name    *string  `json:"name,omitempty"`
	Address *string  `json:"address,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// Error is the body of every non-2xx response. Code is a stable machine-readable kind.
type Error struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes.
const (
	CodeNotFound          = "not_found"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeRateLimited       = "rate_limited"
	CodeAlreadyExists     = "already_exists"
	CodeAlreadyLinked     = "already_linked"
	CodeValidation        = "validation"
	CodeQueryTypeMismatch = "query_type_mismatch"
	CodeCorrupt           = "corrupt_relationship"
	CodeInternal          = "internal"
)
