package db

import (
	"fmt"
	"reflect"
	"strings"
)

// Bind rewrites a statement using :name parameters into the positional
// placeholder style of the dialect and returns the arguments in placeholder
// order. List parameters expand into a parenthesised placeholder group, so
// "id IN :ids" with []int{1, 2} binds as "id IN ($1, $2)". Quoted literals
// and postgres casts pass through untouched.
func Bind(query string, params map[string]any, dialect Dialect) (string, []any, error) {
	var out strings.Builder
	out.Grow(len(query))

	var args []any
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch c {
		case '\'', '"', '`':
			end, err := skipQuoted(query, i)
			if err != nil {
				return "", nil, err
			}
			out.WriteString(query[i:end])
			i = end - 1
		case ':':
			if i+1 < len(query) && query[i+1] == ':' {
				out.WriteString("::")
				i++
				continue
			}
			j := i + 1
			for j < len(query) && isNameByte(query[j]) {
				j++
			}
			if j == i+1 {
				out.WriteByte(c)
				continue
			}
			name := query[i+1 : j]
			value, ok := params[name]
			if !ok {
				return "", nil, fmt.Errorf("missing value for parameter %q", name)
			}
			if list, isList := listValues(value); isList {
				if len(list) == 0 {
					return "", nil, fmt.Errorf("empty list for parameter %q", name)
				}
				out.WriteByte('(')
				for k, v := range list {
					if k > 0 {
						out.WriteString(", ")
					}
					args = append(args, v)
					out.WriteString(dialect.Placeholder(len(args)))
				}
				out.WriteByte(')')
			} else {
				args = append(args, value)
				out.WriteString(dialect.Placeholder(len(args)))
			}
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}

	return out.String(), args, nil
}

// listValues reports whether v should expand into a placeholder group.
// Byte slices bind as a single blob value.
func listValues(v any) ([]any, bool) {
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// skipQuoted returns the index just past a quoted region opened at start.
// A doubled quote character stays inside the literal.
func skipQuoted(s string, start int) (int, error) {
	q := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1, nil
	}
	return 0, fmt.Errorf("unterminated quote in statement %q", s)
}

func isNameByte(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}
