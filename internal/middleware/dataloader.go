package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/loader"
	"github.com/genlab/seqmeta/internal/repository"

	"github.com/graph-gophers/dataloader"
)

type ctxKey string

const loaderRegistryKey ctxKey = "loaderRegistry"

// Loader names resolvable through the request registry.
const (
	SamplesForParticipantLoader     = "samples_for_participant"
	SequencingGroupsForSampleLoader = "sequencing_groups_for_sample"
	ParticipantsForProjectLoader    = "participants_for_project"
)

// defaultBatchWait is how long a loader coalesces requests before fetching
const defaultBatchWait = 5 * time.Millisecond

type loaderSettings struct {
	wait       time.Duration
	batchLimit int
	groupLimit int
}

type LoaderOption func(*loaderSettings)

// WithBatchWait sets the coalescing window before a batch is dispatched.
func WithBatchWait(d time.Duration) LoaderOption {
	return func(s *loaderSettings) {
		if d > 0 {
			s.wait = d
		}
	}
}

// WithBatchLimit caps how many requests one batch may hold. Zero means
// unbounded.
func WithBatchLimit(n int) LoaderOption {
	return func(s *loaderSettings) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// WithGroupLimit caps how many batch groups fetch concurrently. Zero means
// unbounded.
func WithGroupLimit(n int) LoaderOption {
	return func(s *loaderSettings) {
		if n > 0 {
			s.groupLimit = n
		}
	}
}

// LoaderMiddleware attaches a fresh loader registry to every request. A
// registry is never shared across requests: loader caches hold rows the
// current caller is allowed to see, and reuse would leak them to the next
// caller.
func LoaderMiddleware(
	participants repository.ParticipantRepository,
	samples repository.SampleRepository,
	groups repository.SequencingGroupRepository,
	opts ...LoaderOption,
) func(http.Handler) http.Handler {
	settings := loaderSettings{wait: defaultBatchWait}
	for _, opt := range opts {
		opt(&settings)
	}
	dlOpts := []dataloader.Option{dataloader.WithWait(settings.wait)}
	if settings.batchLimit > 0 {
		dlOpts = append(dlOpts, dataloader.WithBatchCapacity(settings.batchLimit))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reg := loader.NewRegistry()
			reg.Register(ParticipantsForProjectLoader, loader.Batched(
				loader.New[int, domain.ParticipantFilter, []domain.Participant](
					loader.FetcherFunc[int, domain.ParticipantFilter, []domain.Participant](participants.ByProject),
				).WithDefault([]domain.Participant{}).WithGroupLimit(settings.groupLimit),
				dlOpts...,
			))
			reg.Register(SamplesForParticipantLoader, loader.Batched(
				loader.New[int, domain.SampleFilter, []domain.Sample](
					loader.FetcherFunc[int, domain.SampleFilter, []domain.Sample](samples.ByParticipant),
				).WithDefault([]domain.Sample{}).WithGroupLimit(settings.groupLimit),
				dlOpts...,
			))
			reg.Register(SequencingGroupsForSampleLoader, loader.Batched(
				loader.New[int, domain.SequencingGroupFilter, []domain.SequencingGroup](
					loader.FetcherFunc[int, domain.SequencingGroupFilter, []domain.SequencingGroup](groups.BySample),
				).WithDefault([]domain.SequencingGroup{}).WithGroupLimit(settings.groupLimit),
				dlOpts...,
			))

			ctx := context.WithValue(r.Context(), loaderRegistryKey, reg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RegistryFromContext retrieves the request's loader registry
func RegistryFromContext(ctx context.Context) *loader.Registry {
	if reg, ok := ctx.Value(loaderRegistryKey).(*loader.Registry); ok {
		return reg
	}
	return nil
}
