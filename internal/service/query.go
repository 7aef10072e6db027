package service

import (
	"context"
	"fmt"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/recordstore"
	"github.com/and161185/safety-beacon/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// QueryService answers equality queries over collections of the record schema.
type QueryService interface {
	// Query returns records of collection visible to the caller that match every filter.
	Query(ctx context.Context, callerID uuid.UUID, collection string, filters []recordstore.WireFilter) ([]recordstore.Record, error)
}

// QueryServiceImpl checks filters against a schema and dispatches to the owning service.
type QueryServiceImpl struct {
	schema    recordstore.Schema
	accounts  AccountService
	bookmarks BookmarkService
}

// NewQueryService constructs QueryService over recordstore.DefaultSchema.
func NewQueryService(accounts AccountService, bookmarks BookmarkService) *QueryServiceImpl {
	return &QueryServiceImpl{schema: recordstore.DefaultSchema, accounts: accounts, bookmarks: bookmarks}
}

// Query validates filters, then runs them. A filter whose value type disagrees
// with the schema fails with errs.ErrQueryTypeMismatch.
func (s *QueryServiceImpl) Query(ctx context.Context, callerID uuid.UUID, collection string, filters []recordstore.WireFilter) ([]recordstore.Record, error) {
	if err := s.schema.CheckWire(collection, filters); err != nil {
		return nil, err
	}
	switch collection {
	case recordstore.CollectionBookmarks:
		return s.queryBookmarks(ctx, callerID, filters)
	case recordstore.CollectionAccounts:
		return s.queryAccounts(ctx, callerID, filters)
	default:
		return nil, fmt.Errorf("collection %q: %w", collection, errs.ErrValidation)
	}
}

func (s *QueryServiceImpl) queryBookmarks(ctx context.Context, callerID uuid.UUID, filters []recordstore.WireFilter) ([]recordstore.Record, error) {
	var q repository.BookmarkQuery
	for _, f := range filters {
		switch f.Field {
		case recordstore.FieldPatient:
			q.PatientID = f.Value.Ref.ID
		case recordstore.FieldName:
			v := f.Value.String
			q.Name = &v
		case recordstore.FieldAddress:
			v := f.Value.String
			q.Address = &v
		default:
			return nil, fmt.Errorf("bookmarks cannot be filtered by %s: %w", f.Field, errs.ErrValidation)
		}
	}
	if q.PatientID == uuid.Nil {
		return nil, fmt.Errorf("bookmarks query needs a patient filter: %w", errs.ErrValidation)
	}
	list, err := s.bookmarks.Find(ctx, callerID, q)
	if err != nil {
		return nil, err
	}
	out := make([]recordstore.Record, 0, len(list))
	for _, b := range list {
		out = append(out, recordstore.BookmarkRecord(b))
	}
	return out, nil
}

// queryAccounts filters the caller's visible accounts in memory; there are at most two.
func (s *QueryServiceImpl) queryAccounts(ctx context.Context, callerID uuid.UUID, filters []recordstore.WireFilter) ([]recordstore.Record, error) {
	visible, err := s.accounts.Visible(ctx, callerID)
	if err != nil {
		return nil, err
	}
	var out []recordstore.Record
	for _, a := range visible {
		rec := recordstore.AccountRecord(a)
		if matches(rec, filters) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func matches(r recordstore.Record, filters []recordstore.WireFilter) bool {
	for _, f := range filters {
		v, ok := r.Fields[f.Field]
		if !ok || !equal(v, f.Value) {
			return false
		}
	}
	return true
}

func equal(a, b recordstore.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case recordstore.KindPointer:
		return a.Ref != nil && b.Ref != nil && *a.Ref == *b.Ref
	case recordstore.KindNumber:
		return a.Number == b.Number
	default:
		return a.String == b.String
	}
}

