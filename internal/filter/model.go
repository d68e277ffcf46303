package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Caller-contract violations surfaced by model compilation. These signal a
// bug in calling code and are never retried.
var (
	// ErrUnknownField reports a column override naming a field the model
	// does not declare.
	ErrUnknownField = errors.New("unknown filter field")
	// ErrBadMetaKey reports a JSON attribute key that cannot be placed
	// safely inside a JSON-path expression.
	ErrBadMetaKey = errors.New("invalid meta filter key")
)

// FieldValue is the closed set of shapes a model field can hold: a Filter,
// a nested *Model, or a Meta map for semi-structured JSON attributes.
type FieldValue interface {
	// IsAlwaysFalse reports whether the field can never match.
	IsAlwaysFalse() bool
	// NormalizeKey returns the field's canonical grouping key.
	NormalizeKey() Key

	compileField(column, base string, cfg fieldCompileConfig) (string, map[string]any, error)
}

// Model is a named composite of filters describing one entity's queryable
// attributes. Fields are registered explicitly and kept in registration
// order; the whole model compiles to a single ANDed predicate. Models are
// immutable once built and safe to reuse across requests.
type Model struct {
	fields []modelField
}

type modelField struct {
	name  string
	value FieldValue
}

// NewModel returns an empty model ready for field registration.
func NewModel() *Model {
	return &Model{}
}

// Field registers a filter under the given field name and returns the model
// for chaining.
func (m *Model) Field(name string, value FieldValue) *Model {
	m.fields = append(m.fields, modelField{name: name, value: value})
	return m
}

// Nested registers a nested model under the given field name.
func (m *Model) Nested(name string, nested *Model) *Model {
	return m.Field(name, nested)
}

// MetaField registers a JSON-attribute filter map under the given field name.
func (m *Model) MetaField(name string, meta Meta) *Model {
	return m.Field(name, meta)
}

// IsAlwaysFalse reports whether any field of the model can never match,
// which makes the whole conjunction unsatisfiable.
func (m *Model) IsAlwaysFalse() bool {
	if m == nil {
		return false
	}
	for _, f := range m.fields {
		if f.value != nil && f.value.IsAlwaysFalse() {
			return true
		}
	}
	return false
}

// NormalizeKey normalizes the model as (name, key) pairs sorted by field
// name, so field registration order never affects grouping.
func (m *Model) NormalizeKey() Key {
	if m == nil {
		return Normalize(nil)
	}
	pairs := make(map[string]any, len(m.fields))
	for _, f := range m.fields {
		if f.value == nil {
			pairs[f.name] = nil
			continue
		}
		pairs[f.name] = f.value.NormalizeKey()
	}
	return Normalize(pairs)
}

// CompileOptions adjusts model compilation.
type CompileOptions struct {
	// Columns overrides the SQL column expression per field name; fields
	// not listed compile against their own name. Naming an undeclared
	// field is an error.
	Columns map[string]string
	// Only restricts compilation to the listed fields; Exclude removes
	// fields afterwards. Names the model does not declare are ignored.
	Only    []string
	Exclude []string
	// JSONExtract builds the expression for filtering one key inside a
	// JSON attribute column. Defaults to JSON_EXTRACT(column, '$.key').
	JSONExtract func(column, key string) string
	// ParamPrefix namespaces every bound-parameter name, for combining
	// several compiled models in one query.
	ParamPrefix string
}

type fieldCompileConfig struct {
	jsonExtract func(column, key string) string
}

func defaultJSONExtract(column, key string) string {
	return fmt.Sprintf("JSON_EXTRACT(%s, '$.%s')", column, key)
}

// Compile renders every included field's predicate and ANDs them together.
// If any included field (recursively, JSON attribute entries included) can
// never match, the whole model short-circuits to an always-false predicate
// without binding any parameters. Zero included clauses compile to an
// always-true predicate.
func (m *Model) Compile(opts CompileOptions) (string, map[string]any, error) {
	if m == nil {
		return alwaysTrue, map[string]any{}, nil
	}

	declared := make(map[string]int, len(m.fields))
	for _, f := range m.fields {
		declared[f.name]++
	}
	for _, f := range m.fields {
		if declared[f.name] > 1 {
			return "", nil, fmt.Errorf("duplicate filter field %q", f.name)
		}
	}
	for name := range opts.Columns {
		if _, ok := declared[name]; !ok {
			return "", nil, fmt.Errorf("%w: column override %q", ErrUnknownField, name)
		}
	}

	included := m.includedFields(opts.Only, opts.Exclude)

	for _, f := range included {
		if f.value != nil && f.value.IsAlwaysFalse() {
			return alwaysFalse, map[string]any{}, nil
		}
	}

	cfg := fieldCompileConfig{jsonExtract: opts.JSONExtract}
	if cfg.jsonExtract == nil {
		cfg.jsonExtract = defaultJSONExtract
	}

	clauses := make([]string, 0, len(included))
	params := make(map[string]any)
	bases := make(map[string]bool)
	for _, f := range included {
		if f.value == nil {
			continue
		}
		column := f.name
		if c, ok := opts.Columns[f.name]; ok {
			column = c
		}
		base := disambiguate(bases, paramName(opts.ParamPrefix+column))
		sql, fieldParams, err := f.value.compileField(column, base, cfg)
		if err != nil {
			return "", nil, fmt.Errorf("compile field %q: %w", f.name, err)
		}
		if sql == "" {
			continue
		}
		clauses = append(clauses, sql)
		for name, value := range fieldParams {
			params[name] = value
		}
	}

	if len(clauses) == 0 {
		return alwaysTrue, params, nil
	}
	return strings.Join(clauses, " AND "), params, nil
}

// includedFields applies Only then Exclude, preserving registration order.
func (m *Model) includedFields(only, exclude []string) []modelField {
	keep := m.fields
	if only != nil {
		wanted := make(map[string]bool, len(only))
		for _, name := range only {
			wanted[name] = true
		}
		filtered := make([]modelField, 0, len(keep))
		for _, f := range keep {
			if wanted[f.name] {
				filtered = append(filtered, f)
			}
		}
		keep = filtered
	}
	if len(exclude) > 0 {
		dropped := make(map[string]bool, len(exclude))
		for _, name := range exclude {
			dropped[name] = true
		}
		filtered := make([]modelField, 0, len(keep))
		for _, f := range keep {
			if !dropped[f.name] {
				filtered = append(filtered, f)
			}
		}
		keep = filtered
	}
	return keep
}

// disambiguate reserves base in seen, suffixing a counter when two fields
// derive the same parameter base (for example two fields overridden to one
// column).
func disambiguate(seen map[string]bool, base string) string {
	if !seen[base] {
		seen[base] = true
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !seen[candidate] {
			seen[candidate] = true
			return candidate
		}
	}
}

// compileField recurses for a nested model: nested fields compile against
// their own names under the parent field's parameter namespace.
func (m *Model) compileField(_, base string, cfg fieldCompileConfig) (string, map[string]any, error) {
	if m == nil {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(m.fields))
	params := make(map[string]any)
	bases := make(map[string]bool)
	for _, f := range m.fields {
		if f.value == nil {
			continue
		}
		fieldBase := disambiguate(bases, base+"_"+paramName(f.name))
		sql, fieldParams, err := f.value.compileField(f.name, fieldBase, cfg)
		if err != nil {
			return "", nil, fmt.Errorf("compile field %q: %w", f.name, err)
		}
		if sql == "" {
			continue
		}
		clauses = append(clauses, sql)
		for name, value := range fieldParams {
			params[name] = value
		}
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return strings.Join(clauses, " AND "), params, nil
}

// Meta filters keys inside a semi-structured JSON attribute column: each
// entry compiles against a JSON-path expression for its key. The JSON form
// coerces bare scalars to eq and bare lists to in, per entry.
type Meta map[string]Filter[any]

// IsAlwaysFalse reports whether any entry can never match.
func (mf Meta) IsAlwaysFalse() bool {
	for _, f := range mf {
		if f.IsAlwaysFalse() {
			return true
		}
	}
	return false
}

// NormalizeKey normalizes entries sorted by key.
func (mf Meta) NormalizeKey() Key {
	return Normalize(map[string]Filter[any](mf))
}

// compileField compiles each entry against the JSON-path expression for its
// key, in key order. Keys carrying quote characters are rejected: they
// cannot be placed inside the path literal safely.
func (mf Meta) compileField(column, base string, cfg fieldCompileConfig) (string, map[string]any, error) {
	if len(mf) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(mf))
	for key := range mf {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	params := make(map[string]any)
	bases := make(map[string]bool)
	for _, key := range keys {
		if strings.ContainsAny(key, `"'\`) {
			return "", nil, fmt.Errorf("%w: %q", ErrBadMetaKey, key)
		}
		expr := cfg.jsonExtract(column, key)
		keyBase := disambiguate(bases, base+"_"+paramName(key))
		sql, keyParams := mf[key].compile(expr, keyBase)
		if sql == "" {
			continue
		}
		clauses = append(clauses, sql)
		for name, value := range keyParams {
			params[name] = value
		}
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return strings.Join(clauses, " AND "), params, nil
}
