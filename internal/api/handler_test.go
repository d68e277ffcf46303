package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/idformat"
	"github.com/genlab/seqmeta/internal/middleware"
	"github.com/genlab/seqmeta/internal/repository"
)

type fakeProjects struct {
	lastFilter domain.ProjectFilter
	lastPage   repository.Page
	projects   []domain.Project
	total      int
	err        error
}

func (f *fakeProjects) GetByID(_ context.Context, id int) (domain.Project, error) {
	for _, p := range f.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Project{}, repository.ErrNotFound
}

func (f *fakeProjects) GetByName(_ context.Context, name string) (domain.Project, error) {
	if f.err != nil {
		return domain.Project{}, f.err
	}
	for _, p := range f.projects {
		if p.Name == name {
			return p, nil
		}
	}
	return domain.Project{}, repository.ErrNotFound
}

func (f *fakeProjects) Query(_ context.Context, flt domain.ProjectFilter, page repository.Page) ([]domain.Project, int, error) {
	f.lastFilter = flt
	f.lastPage = page
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.projects, f.total, nil
}

type fakeParticipants struct {
	lastFilter   domain.ParticipantFilter
	lastPage     repository.Page
	lastGroupIDs []int
	participants []domain.Participant
	total        int
	grouped      map[int][]domain.Participant
	err          error
}

func (f *fakeParticipants) GetByID(_ context.Context, id int) (domain.Participant, error) {
	if f.err != nil {
		return domain.Participant{}, f.err
	}
	for _, p := range f.participants {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Participant{}, repository.ErrNotFound
}

func (f *fakeParticipants) GetByIDs(context.Context, []int) ([]domain.Participant, error) {
	panic("not implemented")
}

func (f *fakeParticipants) Query(_ context.Context, flt domain.ParticipantFilter, page repository.Page) ([]domain.Participant, int, error) {
	f.lastFilter = flt
	f.lastPage = page
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.participants, f.total, nil
}

func (f *fakeParticipants) ByProject(_ context.Context, ids []int, flt domain.ParticipantFilter) (map[int][]domain.Participant, error) {
	f.lastGroupIDs = ids
	f.lastFilter = flt
	if f.err != nil {
		return nil, f.err
	}
	return f.grouped, nil
}

type fakeSamples struct {
	lastFilter   domain.SampleFilter
	lastPage     repository.Page
	lastGroupIDs []int
	samples      []domain.Sample
	total        int
	grouped      map[int][]domain.Sample
	err          error
}

func (f *fakeSamples) GetByID(_ context.Context, id int) (domain.Sample, error) {
	if f.err != nil {
		return domain.Sample{}, f.err
	}
	for _, s := range f.samples {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Sample{}, repository.ErrNotFound
}

func (f *fakeSamples) GetByIDs(context.Context, []int) ([]domain.Sample, error) {
	panic("not implemented")
}

func (f *fakeSamples) Query(_ context.Context, flt domain.SampleFilter, page repository.Page) ([]domain.Sample, int, error) {
	f.lastFilter = flt
	f.lastPage = page
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.samples, f.total, nil
}

func (f *fakeSamples) ByParticipant(_ context.Context, ids []int, flt domain.SampleFilter) (map[int][]domain.Sample, error) {
	f.lastGroupIDs = ids
	f.lastFilter = flt
	if f.err != nil {
		return nil, f.err
	}
	return f.grouped, nil
}

type fakeGroups struct {
	lastFilter   domain.SequencingGroupFilter
	lastPage     repository.Page
	lastGroupIDs []int
	groups       []domain.SequencingGroup
	total        int
	grouped      map[int][]domain.SequencingGroup
	err          error
}

func (f *fakeGroups) GetByID(_ context.Context, id int) (domain.SequencingGroup, error) {
	if f.err != nil {
		return domain.SequencingGroup{}, f.err
	}
	for _, g := range f.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return domain.SequencingGroup{}, repository.ErrNotFound
}

func (f *fakeGroups) GetByIDs(context.Context, []int) ([]domain.SequencingGroup, error) {
	panic("not implemented")
}

func (f *fakeGroups) Query(_ context.Context, flt domain.SequencingGroupFilter, page repository.Page) ([]domain.SequencingGroup, int, error) {
	f.lastFilter = flt
	f.lastPage = page
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.groups, f.total, nil
}

func (f *fakeGroups) BySample(_ context.Context, ids []int, flt domain.SequencingGroupFilter) (map[int][]domain.SequencingGroup, error) {
	f.lastGroupIDs = ids
	f.lastFilter = flt
	if f.err != nil {
		return nil, f.err
	}
	return f.grouped, nil
}

var (
	_ repository.ProjectRepository         = (*fakeProjects)(nil)
	_ repository.ParticipantRepository     = (*fakeParticipants)(nil)
	_ repository.SampleRepository          = (*fakeSamples)(nil)
	_ repository.SequencingGroupRepository = (*fakeGroups)(nil)
)

type harness struct {
	projects     *fakeProjects
	participants *fakeParticipants
	samples      *fakeSamples
	groups       *fakeGroups
	handler      http.Handler
}

func newHarness() *harness {
	h := &harness{
		projects:     &fakeProjects{},
		participants: &fakeParticipants{},
		samples:      &fakeSamples{},
		groups:       &fakeGroups{},
	}
	api := NewHandler(h.projects, h.participants, h.samples, h.groups)
	h.handler = middleware.LoaderMiddleware(h.participants, h.samples, h.groups)(api)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

type decodedList struct {
	Data   []map[string]any `json:"data"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) decodedList {
	t.Helper()
	var out decodedList
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func decodeObject(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestQuerySamplesAppliesFilterAndPage(t *testing.T) {
	h := newHarness()
	h.samples.samples = []domain.Sample{{ID: 1, ProjectID: 2, ExternalID: "EX-01", Type: "blood", Active: true}}
	h.samples.total = 7

	rec := h.do(t, http.MethodPost, "/api/v1/samples/query",
		`{"filter": {"type": "blood"}, "limit": 10, "offset": 5}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if h.samples.lastFilter.Type.Eq == nil || *h.samples.lastFilter.Type.Eq != "blood" {
		t.Fatalf("expected type eq filter, got %+v", h.samples.lastFilter.Type)
	}
	if h.samples.lastPage.Limit != 10 || h.samples.lastPage.Offset != 5 {
		t.Fatalf("unexpected page %+v", h.samples.lastPage)
	}

	resp := decodeList(t, rec)
	if resp.Total != 7 || resp.Limit != 10 || resp.Offset != 5 {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("expected one sample, got %d", len(resp.Data))
	}
	if resp.Data[0]["formatted_id"] != idformat.Sample(1) {
		t.Fatalf("expected formatted id %q, got %v", idformat.Sample(1), resp.Data[0]["formatted_id"])
	}
	if resp.Data[0]["external_id"] != "EX-01" {
		t.Fatalf("expected raw record fields alongside the formatted id, got %v", resp.Data[0])
	}
}

func TestQuerySamplesTranslatesFormattedIDs(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/v1/samples/query",
		fmt.Sprintf(`{"ids": [%q, %q]}`, idformat.Sample(1), idformat.Sample(1255)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !reflect.DeepEqual(h.samples.lastFilter.ID.In, []int{1, 1255}) {
		t.Fatalf("expected translated id membership, got %+v", h.samples.lastFilter.ID)
	}
}

func TestQuerySamplesRejectsConflictingIDFilters(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/v1/samples/query",
		fmt.Sprintf(`{"ids": [%q], "filter": {"id": 1}}`, idformat.Sample(1)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeObject(t, rec)["error"]; !strings.Contains(msg.(string), "mutually exclusive") {
		t.Fatalf("unexpected error message %v", msg)
	}
}

func TestQuerySamplesRejectsMalformedFormattedID(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/v1/samples/query", `{"ids": ["SAM000017"]}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryRejectsUnknownEnvelopeField(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/v1/samples/query", `{"filters": {}}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryRejectsBadMembershipOperand(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/v1/samples/query",
		`{"filter": {"type": {"in": "blood"}}}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQuerySamplesMapsSortErrors(t *testing.T) {
	h := newHarness()
	h.samples.err = fmt.Errorf("order samples: %w", repository.ErrBadSort)

	rec := h.do(t, http.MethodPost, "/api/v1/samples/query",
		`{"sort": [{"field": "meta"}]}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQuerySamplesMapsUnknownErrorsTo500(t *testing.T) {
	h := newHarness()
	h.samples.err = errors.New("connection reset")

	rec := h.do(t, http.MethodPost, "/api/v1/samples/query", `{}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryProjects(t *testing.T) {
	h := newHarness()
	h.projects.projects = []domain.Project{{ID: 3, Name: "acute-care", Dataset: "rd"}}
	h.projects.total = 1

	rec := h.do(t, http.MethodPost, "/api/v1/projects/query", `{"filter": {"dataset": "rd"}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if h.projects.lastFilter.Dataset.Eq == nil || *h.projects.lastFilter.Dataset.Eq != "rd" {
		t.Fatalf("expected dataset eq filter, got %+v", h.projects.lastFilter.Dataset)
	}
	resp := decodeList(t, rec)
	if len(resp.Data) != 1 || resp.Data[0]["name"] != "acute-care" {
		t.Fatalf("unexpected projects payload %+v", resp.Data)
	}
}

func TestGetSampleByFormattedID(t *testing.T) {
	h := newHarness()
	h.samples.samples = []domain.Sample{{ID: 1255, ProjectID: 2, ExternalID: "EX-02", Type: "saliva"}}

	rec := h.do(t, http.MethodGet, "/api/v1/samples/"+idformat.Sample(1255), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	obj := decodeObject(t, rec)
	if obj["formatted_id"] != idformat.Sample(1255) || obj["type"] != "saliva" {
		t.Fatalf("unexpected sample payload %+v", obj)
	}
}

func TestGetSampleNotFound(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/v1/samples/"+idformat.Sample(99), "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetSampleRejectsMalformedID(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/v1/samples/SAM17", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetParticipantByFormattedID(t *testing.T) {
	h := newHarness()
	h.participants.participants = []domain.Participant{{ID: 9, ProjectID: 3, ExternalID: "HG-009"}}

	rec := h.do(t, http.MethodGet, "/api/v1/participants/"+idformat.Participant(9), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if obj := decodeObject(t, rec); obj["formatted_id"] != idformat.Participant(9) {
		t.Fatalf("unexpected participant payload %+v", obj)
	}
}

func TestSamplesOfParticipantResolveThroughLoader(t *testing.T) {
	h := newHarness()
	h.samples.grouped = map[int][]domain.Sample{
		9: {{ID: 42, ProjectID: 3, ExternalID: "EX-42", Type: "blood"}},
	}

	rec := h.do(t, http.MethodGet, "/api/v1/participants/"+idformat.Participant(9)+"/samples", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !reflect.DeepEqual(h.samples.lastGroupIDs, []int{9}) {
		t.Fatalf("expected bulk fetch for participant 9, got %v", h.samples.lastGroupIDs)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list) != 1 || list[0]["formatted_id"] != idformat.Sample(42) {
		t.Fatalf("unexpected samples payload %+v", list)
	}
}

func TestSamplesOfParticipantUnknownIDResolvesEmpty(t *testing.T) {
	h := newHarness()
	h.samples.grouped = map[int][]domain.Sample{}

	rec := h.do(t, http.MethodGet, "/api/v1/participants/"+idformat.Participant(8)+"/samples", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected the empty default, got %+v", list)
	}
}

func TestSamplesOfParticipantAppliesQueryParams(t *testing.T) {
	h := newHarness()
	h.samples.grouped = map[int][]domain.Sample{}

	rec := h.do(t, http.MethodGet,
		"/api/v1/participants/"+idformat.Participant(9)+"/samples?type=saliva&active=true", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	extra := h.samples.lastFilter
	if extra.Type.Eq == nil || *extra.Type.Eq != "saliva" {
		t.Fatalf("expected type narrowing, got %+v", extra.Type)
	}
	if extra.Active.Eq == nil || !*extra.Active.Eq {
		t.Fatalf("expected active narrowing, got %+v", extra.Active)
	}
}

func TestSamplesOfParticipantRejectsBadBoolParam(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet,
		"/api/v1/participants/"+idformat.Participant(9)+"/samples?active=banana", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSequencingGroupsOfSampleResolveThroughLoader(t *testing.T) {
	h := newHarness()
	h.groups.grouped = map[int][]domain.SequencingGroup{
		1: {{ID: 7, SampleID: 1, Type: "genome", Technology: "short-read", Platform: "illumina"}},
	}

	rec := h.do(t, http.MethodGet, "/api/v1/samples/"+idformat.Sample(1)+"/sequencing-groups", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !reflect.DeepEqual(h.groups.lastGroupIDs, []int{1}) {
		t.Fatalf("expected bulk fetch for sample 1, got %v", h.groups.lastGroupIDs)
	}
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list) != 1 || list[0]["formatted_id"] != idformat.SequencingGroup(7) {
		t.Fatalf("unexpected groups payload %+v", list)
	}
}

func TestParticipantsOfProject(t *testing.T) {
	h := newHarness()
	h.projects.projects = []domain.Project{{ID: 3, Name: "acute-care"}}
	h.participants.grouped = map[int][]domain.Participant{
		3: {{ID: 9, ProjectID: 3, ExternalID: "HG-009"}},
	}

	rec := h.do(t, http.MethodGet, "/api/v1/projects/acute-care/participants", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !reflect.DeepEqual(h.participants.lastGroupIDs, []int{3}) {
		t.Fatalf("expected bulk fetch for project 3, got %v", h.participants.lastGroupIDs)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/v1/projects/nonexistent", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/v1/labs", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeObject(t, rec)["error"]; msg != "not found" {
		t.Fatalf("expected a JSON error envelope, got %s", rec.Body.String())
	}
}

func TestRelationWithoutRegistryFails(t *testing.T) {
	h := newHarness()
	// Skip the loader middleware entirely: a handler reached without a
	// registry is a wiring bug and must not fall back to per-id queries.
	bare := NewHandler(h.projects, h.participants, h.samples, h.groups)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/participants/"+idformat.Participant(9)+"/samples", nil)
	rec := httptest.NewRecorder()
	bare.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}
