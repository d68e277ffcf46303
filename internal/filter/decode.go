package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// ErrBadOperand reports a filter value that violates the construction
// contract at the untyped boundary: a non-list handed to a membership
// operator, or the defensive rejection of a one-element list holding only
// null.
var ErrBadOperand = errors.New("bad filter operand")

// FromAny coerces an untyped value into a filter, applying the construction
// rules once: nil means no filter, a list coerces to membership (in),
// anything else to equality (eq). Maps are rejected; keyed values filter
// through Meta or a nested Model. A one-element list holding only nil is
// rejected, it is always a construction bug rather than an intended filter.
func FromAny(v any) (Filter[any], error) {
	if v == nil {
		return Filter[any]{}, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		elems := make([]any, n)
		for i := 0; i < n; i++ {
			elems[i] = rv.Index(i).Interface()
		}
		if n == 1 && elems[0] == nil {
			return Filter[any]{}, fmt.Errorf("%w: single-element list holding only nil", ErrBadOperand)
		}
		return Filter[any]{In: elems}, nil
	case reflect.Map:
		return Filter[any]{}, fmt.Errorf("%w: keyed values filter through a meta or nested model", ErrBadOperand)
	default:
		return Filter[any]{Eq: &v}, nil
	}
}

// MetaFromAny coerces a raw attribute map into a Meta, entry by entry.
func MetaFromAny(values map[string]any) (Meta, error) {
	if values == nil {
		return nil, nil
	}
	meta := make(Meta, len(values))
	for key, value := range values {
		f, err := FromAny(value)
		if err != nil {
			return nil, fmt.Errorf("meta key %q: %w", key, err)
		}
		meta[key] = f
	}
	return meta, nil
}

// UnmarshalJSON decodes the wire form of a filter. An object is read
// strictly as operator slots; a bare array coerces to membership and a bare
// scalar to equality, mirroring FromAny. JSON null leaves the filter empty.
func (f *Filter[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = Filter[T]{}
		return nil
	}
	switch trimmed[0] {
	case '{':
		return f.unmarshalOperators(trimmed)
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return fmt.Errorf("%w: %v", ErrBadOperand, err)
		}
		if len(raws) == 1 && bytes.Equal(bytes.TrimSpace(raws[0]), []byte("null")) {
			return fmt.Errorf("%w: single-element list holding only null", ErrBadOperand)
		}
		values := make([]T, 0, len(raws))
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return fmt.Errorf("%w: %v", ErrBadOperand, err)
		}
		*f = Filter[T]{In: values}
		return nil
	default:
		var value T
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return fmt.Errorf("%w: %v", ErrBadOperand, err)
		}
		*f = Filter[T]{Eq: &value}
		return nil
	}
}

// unmarshalOperators reads the operator-object form. Unknown operator names
// are rejected so a typoed operator cannot silently widen a query.
func (f *Filter[T]) unmarshalOperators(data []byte) error {
	var raw struct {
		Eq         *T    `json:"eq"`
		Neq        *T    `json:"neq"`
		In         []T   `json:"in"`
		Nin        []T   `json:"nin"`
		Gt         *T    `json:"gt"`
		Gte        *T    `json:"gte"`
		Lt         *T    `json:"lt"`
		Lte        *T    `json:"lte"`
		Contains   *T    `json:"contains"`
		IContains  *T    `json:"icontains"`
		Startswith *T    `json:"startswith"`
		IsNull     *bool `json:"isnull"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOperand, err)
	}
	*f = Filter[T]{
		Eq:         raw.Eq,
		Neq:        raw.Neq,
		In:         raw.In,
		Nin:        raw.Nin,
		Gt:         raw.Gt,
		Gte:        raw.Gte,
		Lt:         raw.Lt,
		Lte:        raw.Lte,
		Contains:   raw.Contains,
		IContains:  raw.IContains,
		Startswith: raw.Startswith,
		IsNull:     raw.IsNull,
	}
	return nil
}

// UnmarshalJSON decodes a meta filter map, coercing each entry through the
// filter wire form.
func (mf *Meta) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*mf = nil
		return nil
	}
	var raws map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOperand, err)
	}
	meta := make(Meta, len(raws))
	for key, raw := range raws {
		var f Filter[any]
		if err := json.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("meta key %q: %w", key, err)
		}
		meta[key] = f
	}
	*mf = meta
	return nil
}
