// Package docstore is the minimal document-database interface the core runs on, with
// adapters for Firestore, Postgres (jsonb) and an in-memory store.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// MaxInValues is the largest value list an "in" filter accepts.
const MaxInValues = 10

// Filter operators
const (
	OpEqual = "=="
	OpIn    = "in"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrUnavailable     = errors.New("document store unavailable")
	ErrInvalidArgument = errors.New("invalid document store argument")
)

// Document is a stored document. Set-valued fields hold []any of scalars.
type Document struct {
	ID   string
	Data map[string]any
}

// String returns the string field or "".
func (d Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// Strings returns the array field as strings, skipping non-string members.
func (d Document) Strings(field string) []string {
	switch v := d.Data[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// Filter restricts a query to documents whose Field matches Value.
// For OpIn, Value must be a []string of at most MaxInValues entries.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// OpKind is the kind of a field mutation.
type OpKind int

const (
	OpAddMember OpKind = iota
	OpRemoveMember
	OpSetField
)

// Mutation is one field update applied by Store.Mutate.
type Mutation struct {
	Kind  OpKind
	Field string
	Value any
}

// AddMember adds value to the set in field (array union).
func AddMember(field string, value any) Mutation {
	return Mutation{Kind: OpAddMember, Field: field, Value: value}
}

// RemoveMember removes value from the set in field (array remove). Removing a
// non-member is a no-op.
func RemoveMember(field string, value any) Mutation {
	return Mutation{Kind: OpRemoveMember, Field: field, Value: value}
}

// SetField replaces a scalar field.
func SetField(field string, value any) Mutation {
	return Mutation{Kind: OpSetField, Field: field, Value: value}
}

// ChangeFunc receives the current state of a subscribed document. A nil doc means the
// document does not exist.
type ChangeFunc func(doc *Document)

// Store is the backend collaborator. All set changes go through Mutate; there is no
// whole-array write.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, filter Filter, orderBy string, dir Direction) ([]Document, error)
	// Mutate applies ops to one document atomically. Returns ErrNotFound if it is absent.
	Mutate(ctx context.Context, collection, id string, ops ...Mutation) error
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	// Set creates or replaces a document under a caller-chosen id.
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Subscribe delivers the current state and every later change until the returned
	// func is called.
	Subscribe(ctx context.Context, collection, id string, onChange ChangeFunc) (unsubscribe func(), err error)
}

// validateFilter enforces the operator set and the "in" size limit for every adapter.
func validateFilter(f Filter) error {
	switch f.Op {
	case OpEqual:
		return nil
	case OpIn:
		values, ok := f.Value.([]string)
		if !ok {
			return fmt.Errorf("%w: in filter on %q needs []string", ErrInvalidArgument, f.Field)
		}
		if len(values) == 0 || len(values) > MaxInValues {
			return fmt.Errorf("%w: in filter on %q has %d values (1..%d allowed)",
				ErrInvalidArgument, f.Field, len(values), MaxInValues)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported operator %q", ErrInvalidArgument, f.Op)
	}
}
