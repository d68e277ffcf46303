package api

import (
	"net/http"

	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/filter"
	"github.com/genlab/seqmeta/internal/idformat"
	"github.com/genlab/seqmeta/internal/repository"
)

// Query envelopes. The ids field carries formatted external identifiers
// (SAM…, PRT…, SGP…) and is translated onto the filter's id field before
// querying; sending both ids and filter.id is rejected.

type projectQueryRequest struct {
	Filter domain.ProjectFilter `json:"filter"`
	Sort   []domain.Sort        `json:"sort"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

type participantQueryRequest struct {
	Filter domain.ParticipantFilter `json:"filter"`
	IDs    filter.Filter[string]    `json:"ids"`
	Sort   []domain.Sort            `json:"sort"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

type sampleQueryRequest struct {
	Filter domain.SampleFilter   `json:"filter"`
	IDs    filter.Filter[string] `json:"ids"`
	Sort   []domain.Sort         `json:"sort"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type sequencingGroupQueryRequest struct {
	Filter domain.SequencingGroupFilter `json:"filter"`
	IDs    filter.Filter[string]        `json:"ids"`
	Sort   []domain.Sort                `json:"sort"`
	Limit  int                          `json:"limit"`
	Offset int                          `json:"offset"`
}

type queryResponse struct {
	Data   any `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// mergeIDs translates a formatted-id filter into the internal integer id
// filter. An unset ids filter leaves the explicit filter.id in force.
func mergeIDs(prefix string, ids filter.Filter[string], id filter.Filter[int]) (filter.Filter[int], error) {
	if zeroFilter(ids) {
		return id, nil
	}
	if !zeroFilter(id) {
		return filter.Filter[int]{}, errBothIDFilters
	}
	return idformat.ParseFilter(prefix, ids)
}

func (h *Handler) queryProjects(w http.ResponseWriter, r *http.Request) {
	var req projectQueryRequest
	if err := decodeBody(r, &req); err != nil {
		invalidPayload(w, err)
		return
	}
	projects, total, err := h.projects.Query(r.Context(), req.Filter, repository.Page{
		Limit:  req.Limit,
		Offset: req.Offset,
		Sort:   req.Sort,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Data:   projects,
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

func (h *Handler) queryParticipants(w http.ResponseWriter, r *http.Request) {
	var req participantQueryRequest
	if err := decodeBody(r, &req); err != nil {
		invalidPayload(w, err)
		return
	}
	id, err := mergeIDs(idformat.ParticipantPrefix, req.IDs, req.Filter.ID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	req.Filter.ID = id
	participants, total, err := h.participants.Query(r.Context(), req.Filter, repository.Page{
		Limit:  req.Limit,
		Offset: req.Offset,
		Sort:   req.Sort,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Data:   formatParticipants(participants),
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

func (h *Handler) querySamples(w http.ResponseWriter, r *http.Request) {
	var req sampleQueryRequest
	if err := decodeBody(r, &req); err != nil {
		invalidPayload(w, err)
		return
	}
	id, err := mergeIDs(idformat.SamplePrefix, req.IDs, req.Filter.ID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	req.Filter.ID = id
	samples, total, err := h.samples.Query(r.Context(), req.Filter, repository.Page{
		Limit:  req.Limit,
		Offset: req.Offset,
		Sort:   req.Sort,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Data:   formatSamples(samples),
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

func (h *Handler) querySequencingGroups(w http.ResponseWriter, r *http.Request) {
	var req sequencingGroupQueryRequest
	if err := decodeBody(r, &req); err != nil {
		invalidPayload(w, err)
		return
	}
	id, err := mergeIDs(idformat.SequencingGroupPrefix, req.IDs, req.Filter.ID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	req.Filter.ID = id
	groups, total, err := h.groups.Query(r.Context(), req.Filter, repository.Page{
		Limit:  req.Limit,
		Offset: req.Offset,
		Sort:   req.Sort,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Data:   formatSequencingGroups(groups),
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
}

// Response shapes carry the formatted external identifier alongside the raw
// record, so clients never have to compute check digits themselves.

type participantResponse struct {
	domain.Participant
	FormattedID string `json:"formatted_id"`
}

type sampleResponse struct {
	domain.Sample
	FormattedID string `json:"formatted_id"`
}

type sequencingGroupResponse struct {
	domain.SequencingGroup
	FormattedID string `json:"formatted_id"`
}

func formatParticipant(p domain.Participant) participantResponse {
	return participantResponse{Participant: p, FormattedID: idformat.Participant(p.ID)}
}

func formatParticipants(list []domain.Participant) []participantResponse {
	out := make([]participantResponse, len(list))
	for i, p := range list {
		out[i] = formatParticipant(p)
	}
	return out
}

func formatSample(s domain.Sample) sampleResponse {
	return sampleResponse{Sample: s, FormattedID: idformat.Sample(s.ID)}
}

func formatSamples(list []domain.Sample) []sampleResponse {
	out := make([]sampleResponse, len(list))
	for i, s := range list {
		out[i] = formatSample(s)
	}
	return out
}

func formatSequencingGroup(g domain.SequencingGroup) sequencingGroupResponse {
	return sequencingGroupResponse{SequencingGroup: g, FormattedID: idformat.SequencingGroup(g.ID)}
}

func formatSequencingGroups(list []domain.SequencingGroup) []sequencingGroupResponse {
	out := make([]sequencingGroupResponse, len(list))
	for i, g := range list {
		out[i] = formatSequencingGroup(g)
	}
	return out
}
