// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/client layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller acting on a record it may not touch.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation")

	// ErrQueryTypeMismatch indicates an equality filter whose value type disagrees
	// with the field type declared by the collection schema.
	ErrQueryTypeMismatch = errors.New("query type mismatch")

	// ErrCorruptRelationship indicates an account carrying both a caretaker and a patient reference.
	ErrCorruptRelationship = errors.New("corrupt relationship: both caretaker and patient set")

	// ErrAlreadyLinked indicates a link attempt on an account that already has a relationship.
	ErrAlreadyLinked = errors.New("already linked")

	// ErrNoSession indicates an operation that needs a current session ran without one.
	ErrNoSession = errors.New("no session")

	// ErrSetupRequired indicates the session is not yet linked to a caretaker or patient.
	ErrSetupRequired = errors.New("setup required")

	// ErrGeocodeMiss indicates the geocoder returned no usable candidate.
	ErrGeocodeMiss = errors.New("geocode miss")

	// ErrIncompleteAddress indicates a reverse-geocoded candidate lacking a structured field.
	ErrIncompleteAddress = errors.New("incomplete structured address")
)
