package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/filter"
	"github.com/genlab/seqmeta/internal/idformat"
	"github.com/genlab/seqmeta/internal/loader"
	"github.com/genlab/seqmeta/internal/middleware"
)

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request, name string) {
	project, err := h.projects.GetByName(r.Context(), name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *Handler) getParticipant(w http.ResponseWriter, r *http.Request, formatted string) {
	id, err := idformat.ParseParticipant(formatted)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	participant, err := h.participants.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, formatParticipant(participant))
}

func (h *Handler) getSample(w http.ResponseWriter, r *http.Request, formatted string) {
	id, err := idformat.ParseSample(formatted)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sample, err := h.samples.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, formatSample(sample))
}

func (h *Handler) getSequencingGroup(w http.ResponseWriter, r *http.Request, formatted string) {
	id, err := idformat.ParseSequencingGroup(formatted)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	group, err := h.groups.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, formatSequencingGroup(group))
}

// Relation endpoints resolve through the request's batched loaders, so many
// lookups issued within one batching window collapse into grouped bulk
// queries instead of one query per id.

func (h *Handler) participantsOfProject(w http.ResponseWriter, r *http.Request, name string) {
	project, err := h.projects.GetByName(r.Context(), name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	dl, err := requestLoader(r, middleware.ParticipantsForProjectLoader)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	participants, err := loader.LoadOne[int, domain.ParticipantFilter, []domain.Participant](
		r.Context(), dl, loader.Request[int, domain.ParticipantFilter]{ID: project.ID})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, formatParticipants(participants))
}

func (h *Handler) samplesOfParticipant(w http.ResponseWriter, r *http.Request, formatted string) {
	id, err := idformat.ParseParticipant(formatted)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	extra, err := sampleRelationFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dl, err := requestLoader(r, middleware.SamplesForParticipantLoader)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	samples, err := loader.LoadOne[int, domain.SampleFilter, []domain.Sample](
		r.Context(), dl, loader.Request[int, domain.SampleFilter]{ID: id, Extra: extra})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, formatSamples(samples))
}

func (h *Handler) sequencingGroupsOfSample(w http.ResponseWriter, r *http.Request, formatted string) {
	id, err := idformat.ParseSample(formatted)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	extra, err := sequencingGroupRelationFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dl, err := requestLoader(r, middleware.SequencingGroupsForSampleLoader)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	groups, err := loader.LoadOne[int, domain.SequencingGroupFilter, []domain.SequencingGroup](
		r.Context(), dl, loader.Request[int, domain.SequencingGroupFilter]{ID: id, Extra: extra})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, formatSequencingGroups(groups))
}

// sampleRelationFilter narrows a participant's samples from query params.
// Requests sharing the same narrowing share one bulk query; a different
// narrowing opens its own batch group.
func sampleRelationFilter(r *http.Request) (domain.SampleFilter, error) {
	var f domain.SampleFilter
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		f.Type = filter.Filter[string]{Eq: &raw}
	}
	if raw := strings.TrimSpace(q.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.SampleFilter{}, fmt.Errorf("active must be a boolean: %w", err)
		}
		f.Active = filter.Filter[bool]{Eq: &active}
	}
	return f, nil
}

// sequencingGroupRelationFilter narrows a sample's sequencing groups from
// query params.
func sequencingGroupRelationFilter(r *http.Request) (domain.SequencingGroupFilter, error) {
	var f domain.SequencingGroupFilter
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("platform")); raw != "" {
		f.Platform = filter.Filter[string]{Eq: &raw}
	}
	if raw := strings.TrimSpace(q.Get("archived")); raw != "" {
		archived, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.SequencingGroupFilter{}, fmt.Errorf("archived must be a boolean: %w", err)
		}
		f.Archived = filter.Filter[bool]{Eq: &archived}
	}
	return f, nil
}
