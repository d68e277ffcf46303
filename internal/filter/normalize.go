package filter

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Key is the canonical, hashable form of a filter value. Two values with equal
// keys are interchangeable for batch-grouping purposes; two values with
// different keys are never merged into one group.
type Key string

// Keyer is the normalization hook for composite filter values. Filter, Model
// and Meta implement it so normalization recurses through them.
type Keyer interface {
	NormalizeKey() Key
}

// Normalize converts any filter value into its canonical Key.
//
// Scalars encode as themselves (named types reduce to their underlying kind,
// so enums encode as their underlying value). Slices and arrays encode
// element-wise in order: two lists with the same elements in different order
// produce different keys. Maps encode as key/value pairs sorted by key, so map
// order never matters. Values implementing Keyer delegate to their own hook.
// Anything else falls back to a type-tagged rendering.
//
// The encoding is injective across the supported kinds: a collision would
// silently merge unrelated batch groups.
func Normalize(v any) Key {
	var b strings.Builder
	appendKey(&b, v)
	return Key(b.String())
}

// appendKey is the single exhaustive dispatch over value shapes. Every
// reflect.Kind is either handled or deliberately routed to the fallback arm.
func appendKey(b *strings.Builder, v any) {
	if v == nil {
		b.WriteByte('z')
		return
	}
	if k, ok := v.(Keyer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			b.WriteByte('z')
			return
		}
		b.WriteString("k(")
		b.WriteString(string(k.NormalizeKey()))
		b.WriteByte(')')
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			b.WriteByte('z')
			return
		}
		appendKey(b, rv.Elem().Interface())
	case reflect.Bool:
		if rv.Bool() {
			b.WriteByte('t')
		} else {
			b.WriteByte('f')
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteByte('i')
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteByte('u')
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		b.WriteByte('d')
		b.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.String:
		b.WriteByte('s')
		b.WriteString(strconv.Quote(rv.String()))
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			b.WriteByte('z')
			return
		}
		b.WriteString("l(")
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			appendKey(b, rv.Index(i).Interface())
		}
		b.WriteByte(')')
	case reflect.Map:
		if rv.IsNil() {
			b.WriteByte('z')
			return
		}
		type pair struct {
			k, v string
		}
		pairs := make([]pair, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			var kb, vb strings.Builder
			appendKey(&kb, iter.Key().Interface())
			appendKey(&vb, iter.Value().Interface())
			pairs = append(pairs, pair{kb.String(), vb.String()})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })
		b.WriteString("m(")
		for i, p := range pairs {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(p.k)
			b.WriteByte('=')
			b.WriteString(p.v)
		}
		b.WriteByte(')')
	default:
		// Chan, Func, Struct, Complex, UnsafePointer
		b.WriteByte('o')
		b.WriteString(strconv.Quote(fmt.Sprintf("%T=%v", v, v)))
	}
}
