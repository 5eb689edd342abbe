// Package docstore is a small document store: collections of JSON documents
// addressed by id, with field-level updates and conjunctive field queries.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrInvalidFilter is returned for unsupported fields, operators or values.
	ErrInvalidFilter = errors.New("docstore: invalid filter")
)

var fieldPathRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Store is the document contract consumed by the membership services.
// Every method is atomic for a single document; nothing spans documents.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error)
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Document is a stored document and its id.
type Document struct {
	ID   string
	Data map[string]any
}

// Decode copies the document data into dest through its JSON tags.
func (d Document) Decode(dest any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Op is a query comparison operator.
type Op string

const (
	OpEqual          Op = "=="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
)

func (o Op) valid() bool {
	switch o {
	case OpEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		return true
	}
	return false
}

// Filter selects documents whose Field compares to Value with Op.
// Field may be a dotted path into nested maps. Clauses added with And must
// all match.
type Filter struct {
	Field string
	Op    Op
	Value any

	and []Filter
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// And returns a copy of f that also requires field to compare to value.
func (f Filter) And(field string, op Op, value any) Filter {
	out := f
	out.and = append(append([]Filter(nil), f.and...), Where(field, op, value))
	return out
}

func (f Filter) clauses() []Filter {
	out := make([]Filter, 0, 1+len(f.and))
	out = append(out, Where(f.Field, f.Op, f.Value))
	return append(out, f.and...)
}

func (f Filter) validate() error {
	for _, c := range f.clauses() {
		if !fieldPathRe.MatchString(c.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidFilter, c.Field)
		}
		if !c.Op.valid() {
			return fmt.Errorf("%w: operator %q", ErrInvalidFilter, c.Op)
		}
	}
	return nil
}

type setOptions struct {
	merge bool
}

// SetOption configures Set.
type SetOption func(*setOptions)

// Merge makes Set deep-merge into an existing document instead of replacing it.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

func resolveSetOptions(opts []SetOption) setOptions {
	var out setOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// ToMap converts a tagged struct into document data.
func ToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
