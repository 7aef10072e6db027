package recordstore

import (
	"fmt"
	"time"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Record is a generic record returned by Query.
type Record struct {
	ID         uuid.UUID        `json:"id"`
	Collection string           `json:"collection"`
	Fields     map[string]Value `json:"fields"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (r Record) str(field string) string {
	if v, ok := r.Fields[field]; ok && v.Kind == KindString {
		return v.String
	}
	return ""
}

func (r Record) num(field string) (float64, bool) {
	v, ok := r.Fields[field]
	if !ok || v.Kind != KindNumber {
		return 0, false
	}
	return v.Number, true
}

func (r Record) ref(field string) *model.AccountRef {
	v, ok := r.Fields[field]
	if !ok || v.Kind != KindPointer || v.Ref == nil {
		return nil
	}
	return model.NewAccountRef(v.Ref.ID)
}

// BookmarkRecord encodes a bookmark.
func BookmarkRecord(b model.Bookmark) Record {
	fields := map[string]Value{
		FieldPatient: AccountPointer(b.Patient),
		FieldName:    StringValue(b.Name),
		FieldAddress: StringValue(b.Address),
	}
	if b.Coordinate != nil {
		fields[FieldLatitude] = NumberValue(b.Coordinate.Latitude)
		fields[FieldLongitude] = NumberValue(b.Coordinate.Longitude)
	}
	return Record{ID: b.ID, Collection: CollectionBookmarks, Fields: fields, UpdatedAt: b.UpdatedAt}
}

// BookmarkFromRecord decodes a bookmark; a coordinate is set only when both axes are present.
func BookmarkFromRecord(r Record) (model.Bookmark, error) {
	if r.Collection != CollectionBookmarks {
		return model.Bookmark{}, fmt.Errorf("record %s is a %q, not a bookmark: %w", r.ID, r.Collection, errs.ErrValidation)
	}
	patient := r.ref(FieldPatient)
	if patient == nil {
		return model.Bookmark{}, fmt.Errorf("bookmark %s has no patient: %w", r.ID, errs.ErrValidation)
	}
	b := model.Bookmark{
		ID:        r.ID,
		Patient:   *patient,
		Name:      r.str(FieldName),
		Address:   r.str(FieldAddress),
		UpdatedAt: r.UpdatedAt,
	}
	lat, okLat := r.num(FieldLatitude)
	lng, okLng := r.num(FieldLongitude)
	if okLat && okLng {
		b.Coordinate = &model.Coordinate{Latitude: lat, Longitude: lng}
	}
	return b, nil
}

// AccountRecord encodes the public projection of an account.
func AccountRecord(a model.Account) Record {
	fields := map[string]Value{
		FieldUsername: StringValue(a.Username),
		FieldEmail:    StringValue(a.Email),
	}
	if a.Caretaker != nil {
		fields[FieldCaretaker] = AccountPointer(*a.Caretaker)
	}
	if a.Patient != nil {
		fields[FieldPatient] = AccountPointer(*a.Patient)
	}
	return Record{ID: a.ID, Collection: CollectionAccounts, Fields: fields, UpdatedAt: a.CreatedAt}
}

// AccountFromRecord decodes an account.
func AccountFromRecord(r Record) (model.Account, error) {
	if r.Collection != CollectionAccounts {
		return model.Account{}, fmt.Errorf("record %s is a %q, not an account: %w", r.ID, r.Collection, errs.ErrValidation)
	}
	return model.Account{
		ID:        r.ID,
		Username:  r.str(FieldUsername),
		Email:     r.str(FieldEmail),
		Caretaker: r.ref(FieldCaretaker),
		Patient:   r.ref(FieldPatient),
		CreatedAt: r.UpdatedAt,
	}, nil
}
