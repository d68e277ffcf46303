package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/graph-gophers/dataloader"

	"github.com/genlab/seqmeta/internal/filter"
	"github.com/genlab/seqmeta/internal/idformat"
	"github.com/genlab/seqmeta/internal/loader"
	"github.com/genlab/seqmeta/internal/middleware"
	"github.com/genlab/seqmeta/internal/repository"
)

// Prefix is the path every API route lives under.
const Prefix = "/api/v1/"

var errBothIDFilters = errors.New("ids and filter.id are mutually exclusive")

// Handler serves the query and relation endpoints of the metadata API.
type Handler struct {
	projects     repository.ProjectRepository
	participants repository.ParticipantRepository
	samples      repository.SampleRepository
	groups       repository.SequencingGroupRepository
}

// NewHandler creates the API handler over the given repositories
func NewHandler(
	projects repository.ProjectRepository,
	participants repository.ParticipantRepository,
	samples repository.SampleRepository,
	groups repository.SequencingGroupRepository,
) *Handler {
	return &Handler{
		projects:     projects,
		participants: participants,
		samples:      samples,
		groups:       groups,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, Prefix)
	if path == r.URL.Path {
		notFound(w)
		return
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	rest := segments[1:]
	switch segments[0] {
	case "projects":
		h.serveProjects(w, r, rest)
	case "participants":
		h.serveParticipants(w, r, rest)
	case "samples":
		h.serveSamples(w, r, rest)
	case "sequencing-groups":
		h.serveSequencingGroups(w, r, rest)
	default:
		notFound(w)
	}
}

func (h *Handler) serveProjects(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "query":
		h.queryProjects(w, r)
	case r.Method == http.MethodGet && len(rest) == 1:
		h.getProject(w, r, rest[0])
	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "participants":
		h.participantsOfProject(w, r, rest[0])
	default:
		notFound(w)
	}
}

func (h *Handler) serveParticipants(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "query":
		h.queryParticipants(w, r)
	case r.Method == http.MethodGet && len(rest) == 1:
		h.getParticipant(w, r, rest[0])
	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "samples":
		h.samplesOfParticipant(w, r, rest[0])
	default:
		notFound(w)
	}
}

func (h *Handler) serveSamples(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "query":
		h.querySamples(w, r)
	case r.Method == http.MethodGet && len(rest) == 1:
		h.getSample(w, r, rest[0])
	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "sequencing-groups":
		h.sequencingGroupsOfSample(w, r, rest[0])
	default:
		notFound(w)
	}
}

func (h *Handler) serveSequencingGroups(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "query":
		h.querySequencingGroups(w, r)
	case r.Method == http.MethodGet && len(rest) == 1:
		h.getSequencingGroup(w, r, rest[0])
	default:
		notFound(w)
	}
}

// requestLoader resolves a named loader from the request's registry. The
// registry is installed by middleware.LoaderMiddleware; a missing registry is
// a wiring bug, not a client error.
func requestLoader(r *http.Request, name string) (*dataloader.Loader, error) {
	reg := middleware.RegistryFromContext(r.Context())
	if reg == nil {
		return nil, errors.New("loader registry missing from request context")
	}
	return reg.Get(name)
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps an error to its response status: contract violations are
// the caller's fault, missing rows are 404, everything else is 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, filter.ErrBadOperand),
		errors.Is(err, filter.ErrUnknownField),
		errors.Is(err, filter.ErrBadMetaKey),
		errors.Is(err, idformat.ErrMalformedID),
		errors.Is(err, repository.ErrBadSort),
		errors.Is(err, loader.ErrMissingID),
		errors.Is(err, loader.ErrReservedKey),
		errors.Is(err, errBothIDFilters):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func invalidPayload(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
}

// zeroFilter reports whether no operator slot is populated.
func zeroFilter[T any](f filter.Filter[T]) bool {
	return f.Eq == nil && f.Neq == nil && f.In == nil && f.Nin == nil &&
		f.Gt == nil && f.Gte == nil && f.Lt == nil && f.Lte == nil &&
		f.Contains == nil && f.IContains == nil && f.Startswith == nil &&
		f.IsNull == nil
}
