package recordstore

import (
	"fmt"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Collections served by the backend.
const (
	CollectionAccounts  = "accounts"
	CollectionBookmarks = "bookmarks"
)

// Field names shared by the schema, codecs and SQL mapping.
const (
	FieldUsername  = "username"
	FieldEmail     = "email"
	FieldCaretaker = "caretaker"
	FieldPatient   = "patient"
	FieldName      = "name"
	FieldAddress   = "address"
	FieldLatitude  = "lat"
	FieldLongitude = "lng"
)

// Kind is the wire type of a record field.
type Kind string

// Supported field kinds.
const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindPointer Kind = "pointer"
)

// Pointer references a record in another collection.
type Pointer struct {
	Collection string    `json:"collection"`
	ID         uuid.UUID `json:"id"`
}

// Value is a typed field value on the wire.
type Value struct {
	Kind   Kind     `json:"kind"`
	String string   `json:"string,omitempty"`
	Number float64  `json:"number,omitempty"`
	Ref    *Pointer `json:"ref,omitempty"`
}

// StringValue wraps s.
func StringValue(s string) Value { return Value{Kind: KindString, String: s} }

// NumberValue wraps n.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// AccountPointer wraps an account reference.
func AccountPointer(ref model.AccountRef) Value {
	return Value{Kind: KindPointer, Ref: &Pointer{Collection: CollectionAccounts, ID: ref.ID}}
}

// Filter is an equality constraint. Value must be a string, a number or a raw
// model.AccountRef; anything else (a session wrapper, say) is rejected before dispatch.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, v any) Filter { return Filter{Field: field, Value: v} }

// WireFilter is a schema-checked filter ready to send.
type WireFilter struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// FieldSpec declares the type of a field; Target names the collection a pointer must reference.
type FieldSpec struct {
	Kind   Kind
	Target string
}

// Schema maps collection -> field -> spec.
type Schema map[string]map[string]FieldSpec

// DefaultSchema is the backend schema.
var DefaultSchema = Schema{
	CollectionAccounts: {
		FieldUsername:  {Kind: KindString},
		FieldEmail:     {Kind: KindString},
		FieldCaretaker: {Kind: KindPointer, Target: CollectionAccounts},
		FieldPatient:   {Kind: KindPointer, Target: CollectionAccounts},
	},
	CollectionBookmarks: {
		FieldPatient:   {Kind: KindPointer, Target: CollectionAccounts},
		FieldName:      {Kind: KindString},
		FieldAddress:   {Kind: KindString},
		FieldLatitude:  {Kind: KindNumber},
		FieldLongitude: {Kind: KindNumber},
	},
}

// EncodeValue converts a Go filter value into its wire form.
func EncodeValue(v any) (Value, error) {
	switch t := v.(type) {
	case string:
		return StringValue(t), nil
	case float64:
		return NumberValue(t), nil
	case int:
		return NumberValue(float64(t)), nil
	case model.AccountRef:
		return AccountPointer(t), nil
	case *model.AccountRef:
		if t == nil {
			return Value{}, fmt.Errorf("nil account reference: %w", errs.ErrQueryTypeMismatch)
		}
		return AccountPointer(*t), nil
	case Value:
		return t, nil
	default:
		return Value{}, fmt.Errorf("cannot compare against %T: %w", v, errs.ErrQueryTypeMismatch)
	}
}

// Check verifies that v matches the declared type of collection.field.
func (s Schema) Check(collection, field string, v Value) error {
	fields, ok := s[collection]
	if !ok {
		return fmt.Errorf("unknown collection %q: %w", collection, errs.ErrValidation)
	}
	spec, ok := fields[field]
	if !ok {
		return fmt.Errorf("unknown field %s.%s: %w", collection, field, errs.ErrValidation)
	}
	if v.Kind != spec.Kind {
		return fmt.Errorf("%s.%s expects %s, got %s: %w", collection, field, spec.Kind, v.Kind, errs.ErrQueryTypeMismatch)
	}
	if spec.Kind == KindPointer {
		if v.Ref == nil || v.Ref.ID == uuid.Nil {
			return fmt.Errorf("%s.%s: empty pointer: %w", collection, field, errs.ErrQueryTypeMismatch)
		}
		if v.Ref.Collection != spec.Target {
			return fmt.Errorf("%s.%s expects pointer to %s, got %s: %w",
				collection, field, spec.Target, v.Ref.Collection, errs.ErrQueryTypeMismatch)
		}
	}
	return nil
}

// Compile encodes and checks filters against the schema.
func (s Schema) Compile(collection string, filters []Filter) ([]WireFilter, error) {
	out := make([]WireFilter, 0, len(filters))
	for _, f := range filters {
		v, err := EncodeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", collection, f.Field, err)
		}
		if err := s.Check(collection, f.Field, v); err != nil {
			return nil, err
		}
		out = append(out, WireFilter{Field: f.Field, Value: v})
	}
	return out, nil
}

// CheckWire re-validates filters received over the wire.
func (s Schema) CheckWire(collection string, filters []WireFilter) error {
	for _, f := range filters {
		if err := s.Check(collection, f.Field, f.Value); err != nil {
			return err
		}
	}
	return nil
}
