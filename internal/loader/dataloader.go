package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/graph-gophers/dataloader"

	"github.com/genlab/seqmeta/internal/filter"
)

// ErrBadKey reports a dataloader key or result that did not come from this
// package's typed constructors. The whole batch fails; no partial results.
var ErrBadKey = errors.New("malformed batch loader key")

// requestKey carries a typed request through the untyped dataloader layer.
// The string form covers id and extra, so the dataloader's in-request cache
// never conflates one id queried under two extras.
type requestKey[K comparable, E any] struct {
	req         Request[K, E]
	fingerprint string
}

func (k requestKey[K, E]) String() string {
	return k.fingerprint
}

func (k requestKey[K, E]) Raw() any {
	return k.req
}

// NewKey wraps a request for submission to a batched loader built by
// Batched with the same type parameters.
func NewKey[K comparable, E any](req Request[K, E]) dataloader.Key {
	return requestKey[K, E]{
		req:         req,
		fingerprint: string(filter.Normalize([]any{req.ID, req.Extra})),
	}
}

// Batched exposes the grouping engine as a graph-gophers batched loader:
// requests submitted inside one batching window coalesce into a single
// grouped Load call. Keys must be built with NewKey; a foreign key fails the
// whole batch.
func Batched[K comparable, E, V any](l Loader[K, E, V], opts ...dataloader.Option) *dataloader.Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		reqs := make([]Request[K, E], len(keys))
		for i, k := range keys {
			req, ok := k.Raw().(Request[K, E])
			if !ok {
				return failAll(len(keys), fmt.Errorf("%w: %T", ErrBadKey, k.Raw()))
			}
			reqs[i] = req
		}

		values, err := l.Load(ctx, reqs)
		if err != nil {
			return failAll(len(keys), err)
		}

		results := make([]*dataloader.Result, len(values))
		for i, v := range values {
			results[i] = &dataloader.Result{Data: v}
		}
		return results
	}
	return dataloader.NewBatchedLoader(batchFn, opts...)
}

// failAll fails every key in the batch with the same error.
func failAll(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}

// LoadOne submits one request through a batched loader and blocks for its
// grouped result.
func LoadOne[K comparable, E, V any](ctx context.Context, dl *dataloader.Loader, req Request[K, E]) (V, error) {
	var zero V
	raw, err := dl.Load(ctx, NewKey(req))()
	if err != nil {
		return zero, err
	}
	v, ok := raw.(V)
	if !ok {
		return zero, fmt.Errorf("%w: result %T", ErrBadKey, raw)
	}
	return v, nil
}

// LoadAll submits every request before awaiting any of them, so they share
// one batching window, then returns results in request order.
func LoadAll[K comparable, E, V any](ctx context.Context, dl *dataloader.Loader, reqs []Request[K, E]) ([]V, error) {
	thunks := make([]dataloader.Thunk, len(reqs))
	for i, r := range reqs {
		thunks[i] = dl.Load(ctx, NewKey(r))
	}
	out := make([]V, len(reqs))
	for i, thunk := range thunks {
		raw, err := thunk()
		if err != nil {
			return nil, err
		}
		v, ok := raw.(V)
		if !ok {
			return nil, fmt.Errorf("%w: result %T", ErrBadKey, raw)
		}
		out[i] = v
	}
	return out, nil
}
