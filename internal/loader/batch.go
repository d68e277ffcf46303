package loader

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"golang.org/x/sync/errgroup"

	"github.com/genlab/seqmeta/internal/filter"
)

// Caller-contract violations; they abort the whole batch with no partial
// results and are never retried.
var (
	// ErrMissingID reports a batch request whose id is the zero value.
	ErrMissingID = errors.New("batch request missing id")
	// ErrReservedKey reports a request smuggling a data-access handle
	// through its extra parameters.
	ErrReservedKey = errors.New("reserved key in batch request extra")
)

// reservedExtraKey is the data-access-handle key that must never ride
// through a request: fetchers receive their database access at
// construction, not per call.
const reservedExtraKey = "connection"

// Request is one single-id load request: which row to fetch plus the extra
// query shape (usually a filter model) shared by its batch group.
type Request[K comparable, E any] struct {
	ID    K
	Extra E
}

// BatchKey returns the grouping key derived from the request's extra
// parameters. The id never participates: requests group purely by the shape
// of their query.
func (r Request[K, E]) BatchKey() filter.Key {
	return filter.Normalize(r.Extra)
}

// BatchFetcher issues one bulk query for a group of ids sharing the same
// extra parameters, returning a mapping from id to result (a slice for
// one-to-many relations, a single value for one-to-one). Implemented once
// per entity relation.
type BatchFetcher[K comparable, E, V any] interface {
	FetchBatch(ctx context.Context, ids []K, extra E) (map[K]V, error)
}

// FetcherFunc adapts a bare function to BatchFetcher.
type FetcherFunc[K comparable, E, V any] func(ctx context.Context, ids []K, extra E) (map[K]V, error)

// FetchBatch calls fn.
func (fn FetcherFunc[K, E, V]) FetchBatch(ctx context.Context, ids []K, extra E) (map[K]V, error) {
	return fn(ctx, ids, extra)
}

// Loader coalesces heterogeneous single-id requests into grouped bulk
// fetches. It holds only configuration; all per-call state lives on the
// stack of Load, so a Loader value is safe to share.
type Loader[K comparable, E, V any] struct {
	fetcher    BatchFetcher[K, E, V]
	defaultVal V
	groupLimit int
}

// New wraps a fetcher in a grouping loader.
func New[K comparable, E, V any](fetcher BatchFetcher[K, E, V]) Loader[K, E, V] {
	return Loader[K, E, V]{fetcher: fetcher}
}

// WithDefault returns a loader resolving unmatched ids to v instead of the
// zero value.
func (l Loader[K, E, V]) WithDefault(v V) Loader[K, E, V] {
	l.defaultVal = v
	return l
}

// WithGroupLimit returns a loader fetching at most n groups concurrently.
// Zero means no limit.
func (l Loader[K, E, V]) WithGroupLimit(n int) Loader[K, E, V] {
	l.groupLimit = n
	return l
}

// Load resolves a batch of requests through grouped bulk fetches:
//
//  1. every request must carry a non-zero id and a clean extra,
//  2. requests partition by the normalized extra, preserving within-group
//     order, groups ordered by first appearance,
//  3. one FetchBatch call per group, independent groups issued concurrently
//     and awaited together,
//  4. group results merge keyed by (id, group key) so one id queried under
//     two extras never collides,
//  5. results return in original request order; ids absent from their
//     group's mapping resolve to the configured default.
//
// Any validation or fetch error aborts the whole batch: no partial results
// are ever returned, and in-flight sibling groups are cancelled.
func (l Loader[K, E, V]) Load(ctx context.Context, reqs []Request[K, E]) ([]V, error) {
	if len(reqs) == 0 {
		return []V{}, nil
	}

	var zeroID K
	for i, r := range reqs {
		if r.ID == zeroID {
			return nil, fmt.Errorf("%w: request %d", ErrMissingID, i)
		}
		if err := checkReservedExtra(r.Extra); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}

	type group struct {
		key   filter.Key
		ids   []K
		extra E
	}
	index := make(map[filter.Key]int)
	groups := make([]*group, 0, 1)
	keys := make([]filter.Key, len(reqs))
	for i, r := range reqs {
		k := r.BatchKey()
		keys[i] = k
		gi, ok := index[k]
		if !ok {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, &group{key: k, extra: r.Extra})
		}
		groups[gi].ids = append(groups[gi].ids, r.ID)
	}

	fetched := make([]map[K]V, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	if l.groupLimit > 0 {
		g.SetLimit(l.groupLimit)
	}
	for gi, grp := range groups {
		gi, grp := gi, grp
		g.Go(func() error {
			m, err := l.fetcher.FetchBatch(gctx, grp.ids, grp.extra)
			if err != nil {
				return fmt.Errorf("batch fetch: %w", err)
			}
			fetched[gi] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	type mergeKey struct {
		id  K
		key filter.Key
	}
	merged := make(map[mergeKey]V, len(reqs))
	for gi, grp := range groups {
		for id, v := range fetched[gi] {
			merged[mergeKey{id: id, key: grp.key}] = v
		}
	}

	out := make([]V, len(reqs))
	for i, r := range reqs {
		v, ok := merged[mergeKey{id: r.ID, key: keys[i]}]
		if !ok {
			v = l.defaultVal
		}
		out[i] = v
	}
	return out, nil
}

// checkReservedExtra rejects string-keyed map extras carrying the reserved
// data-access-handle key.
func checkReservedExtra(extra any) error {
	rv := reflect.ValueOf(extra)
	if !rv.IsValid() {
		return nil
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil
	}
	for _, k := range rv.MapKeys() {
		if k.String() == reservedExtraKey {
			return fmt.Errorf("%w: %q", ErrReservedKey, reservedExtraKey)
		}
	}
	return nil
}
