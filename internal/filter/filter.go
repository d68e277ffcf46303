package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Literal predicates used for degenerate filters. Spelled as comparisons
// because bare TRUE/FALSE literals are not accepted by every engine.
const (
	alwaysTrue  = "1=1"
	alwaysFalse = "1=0"
)

var nonWord = regexp.MustCompile(`\W`)

// paramName derives a bound-parameter base name from a column expression,
// replacing every non-word character so expressions like "s.meta" or
// "JSON_EXTRACT(meta, '$.depth')" stay valid parameter names.
func paramName(column string) string {
	return nonWord.ReplaceAllString(column, "_")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcard characters so pattern operands match their
// text literally before the compiler adds its own wildcards.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Filter captures which comparison operators are requested for a single field
// and their operands. Nil slots are absent; every populated slot contributes
// one predicate clause and all clauses are ANDed. In and Nin distinguish nil
// (absent) from empty (present with zero elements): an empty In can never
// match and compiles to an always-false predicate.
//
// Filters are value objects: build one, never mutate it afterwards. The JSON
// form accepts either an operator object ({"in": [1, 2]}), a bare scalar
// (coerced to eq) or a bare list (coerced to in).
type Filter[T any] struct {
	Eq         *T    `json:"eq,omitempty"`
	Neq        *T    `json:"neq,omitempty"`
	In         []T   `json:"in,omitempty"`
	Nin        []T   `json:"nin,omitempty"`
	Gt         *T    `json:"gt,omitempty"`
	Gte        *T    `json:"gte,omitempty"`
	Lt         *T    `json:"lt,omitempty"`
	Lte        *T    `json:"lte,omitempty"`
	Contains   *T    `json:"contains,omitempty"`
	IContains  *T    `json:"icontains,omitempty"`
	Startswith *T    `json:"startswith,omitempty"`
	IsNull     *bool `json:"isnull,omitempty"`
}

// Ptr returns a pointer to v, for building filter literals in place.
func Ptr[T any](v T) *T {
	return &v
}

// CompileOption adjusts how a filter compiles to SQL.
type CompileOption func(*compileConfig)

type compileConfig struct {
	prefix string
}

// WithParamPrefix namespaces every bound-parameter name with the given
// prefix, so one filter compiled against two columns in the same query never
// collides.
func WithParamPrefix(prefix string) CompileOption {
	return func(c *compileConfig) { c.prefix = prefix }
}

// Compile renders the filter into a parameterized SQL predicate against the
// given column expression. Parameters use :name placeholders; the returned
// map binds each name to a scalar or, for membership operators, a list that
// the executor expands. An empty filter compiles to an always-true predicate.
// Compile cannot fail: every populated combination of slots is valid.
func (f Filter[T]) Compile(column string, opts ...CompileOption) (string, map[string]any) {
	var cfg compileConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	sql, params := f.compile(column, paramName(cfg.prefix+column))
	if sql == "" {
		return alwaysTrue, map[string]any{}
	}
	return sql, params
}

// compile emits clauses in slot declaration order with parameter names built
// from base plus a per-operator suffix. Returns "" when no slot is populated.
func (f Filter[T]) compile(column, base string) (string, map[string]any) {
	clauses := make([]string, 0, 4)
	params := make(map[string]any)

	bind := func(op, suffix string, value any) {
		name := base + "_" + suffix
		clauses = append(clauses, column+" "+op+" :"+name)
		params[name] = value
	}

	if f.Eq != nil {
		bind("=", "eq", *f.Eq)
	}
	if f.Neq != nil {
		bind("!=", "neq", *f.Neq)
	}
	if f.In != nil {
		switch len(f.In) {
		case 0:
			// IN over an empty set matches nothing; "IN ()" is invalid
			// in several engines
			clauses = append(clauses, alwaysFalse)
		case 1:
			// single-element membership degrades to plain equality
			bind("=", "in", f.In[0])
		default:
			bind("IN", "in", f.In)
		}
	}
	if len(f.Nin) > 0 {
		bind("NOT IN", "nin", f.Nin)
	}
	if f.Gt != nil {
		bind(">", "gt", *f.Gt)
	}
	if f.Gte != nil {
		bind(">=", "gte", *f.Gte)
	}
	if f.Lt != nil {
		bind("<", "lt", *f.Lt)
	}
	if f.Lte != nil {
		bind("<=", "lte", *f.Lte)
	}
	if f.Contains != nil {
		name := base + "_contains"
		clauses = append(clauses, column+" LIKE :"+name)
		params[name] = "%" + escapeLike(operandString(*f.Contains)) + "%"
	}
	if f.IContains != nil {
		name := base + "_icontains"
		clauses = append(clauses, "LOWER("+column+") LIKE :"+name)
		params[name] = strings.ToLower("%" + escapeLike(operandString(*f.IContains)) + "%")
	}
	if f.Startswith != nil {
		name := base + "_startswith"
		clauses = append(clauses, column+" LIKE :"+name)
		params[name] = escapeLike(operandString(*f.Startswith)) + "%"
	}
	if f.IsNull != nil {
		if *f.IsNull {
			clauses = append(clauses, column+" IS NULL")
		} else {
			clauses = append(clauses, column+" IS NOT NULL")
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return strings.Join(clauses, " AND "), params
}

// operandString renders a pattern operand; non-string operands take their
// default formatting.
func operandString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// IsAlwaysFalse reports whether the filter can never match: membership over
// an explicitly empty set.
func (f Filter[T]) IsAlwaysFalse() bool {
	return f.In != nil && len(f.In) == 0
}

// NormalizeKey normalizes the ordered tuple of all operand slots, so two
// equal filters built through different code paths share one key.
func (f Filter[T]) NormalizeKey() Key {
	return Normalize([]any{
		f.Eq, f.Neq, f.In, f.Nin,
		f.Gt, f.Gte, f.Lt, f.Lte,
		f.Contains, f.IContains, f.Startswith,
		f.IsNull,
	})
}

// compileField implements FieldValue for use inside a Model.
func (f Filter[T]) compileField(column, base string, _ fieldCompileConfig) (string, map[string]any, error) {
	sql, params := f.compile(column, base)
	return sql, params, nil
}

// Map applies fn to every populated operand, producing a filter over the
// mapped type. Used to translate external formatted IDs into internal
// integer IDs before compiling. A nil-vs-empty distinction on In and Nin is
// preserved, so an always-false filter stays always-false.
func Map[T, U any](f Filter[T], fn func(T) (U, error)) (Filter[U], error) {
	mapPtr := func(p *T) (*U, error) {
		if p == nil {
			return nil, nil
		}
		u, err := fn(*p)
		if err != nil {
			return nil, err
		}
		return &u, nil
	}
	mapSlice := func(s []T) ([]U, error) {
		if s == nil {
			return nil, nil
		}
		out := make([]U, len(s))
		for i, v := range s {
			u, err := fn(v)
			if err != nil {
				return nil, err
			}
			out[i] = u
		}
		return out, nil
	}

	var out Filter[U]
	var err error
	if out.Eq, err = mapPtr(f.Eq); err != nil {
		return Filter[U]{}, err
	}
	if out.Neq, err = mapPtr(f.Neq); err != nil {
		return Filter[U]{}, err
	}
	if out.In, err = mapSlice(f.In); err != nil {
		return Filter[U]{}, err
	}
	if out.Nin, err = mapSlice(f.Nin); err != nil {
		return Filter[U]{}, err
	}
	if out.Gt, err = mapPtr(f.Gt); err != nil {
		return Filter[U]{}, err
	}
	if out.Gte, err = mapPtr(f.Gte); err != nil {
		return Filter[U]{}, err
	}
	if out.Lt, err = mapPtr(f.Lt); err != nil {
		return Filter[U]{}, err
	}
	if out.Lte, err = mapPtr(f.Lte); err != nil {
		return Filter[U]{}, err
	}
	if out.Contains, err = mapPtr(f.Contains); err != nil {
		return Filter[U]{}, err
	}
	if out.IContains, err = mapPtr(f.IContains); err != nil {
		return Filter[U]{}, err
	}
	if out.Startswith, err = mapPtr(f.Startswith); err != nil {
		return Filter[U]{}, err
	}
	out.IsNull = f.IsNull
	return out, nil
}
