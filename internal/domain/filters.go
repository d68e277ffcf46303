package domain

import (
	"github.com/genlab/seqmeta/internal/filter"
)

// ProjectFilter narrows project queries.
type ProjectFilter struct {
	ID      filter.Filter[int]    `json:"id"`
	Name    filter.Filter[string] `json:"name"`
	Dataset filter.Filter[string] `json:"dataset"`
	Meta    filter.Meta           `json:"meta"`
}

// Model maps the filter onto the shared compilation model.
func (f ProjectFilter) Model() *filter.Model {
	return filter.NewModel().
		Field("id", f.ID).
		Field("name", f.Name).
		Field("dataset", f.Dataset).
		MetaField("meta", f.Meta)
}

// ParticipantFilter narrows participant queries.
type ParticipantFilter struct {
	ID          filter.Filter[int]    `json:"id"`
	ProjectID   filter.Filter[int]    `json:"project_id"`
	ExternalID  filter.Filter[string] `json:"external_id"`
	ReportedSex filter.Filter[string] `json:"reported_sex"`
	Karyotype   filter.Filter[string] `json:"karyotype"`
	Meta        filter.Meta           `json:"meta"`
}

// Model maps the filter onto the shared compilation model.
func (f ParticipantFilter) Model() *filter.Model {
	return filter.NewModel().
		Field("id", f.ID).
		Field("project_id", f.ProjectID).
		Field("external_id", f.ExternalID).
		Field("reported_sex", f.ReportedSex).
		Field("karyotype", f.Karyotype).
		MetaField("meta", f.Meta)
}

// SampleFilter narrows sample queries. The optional participant branch
// filters on attributes of the linked participant.
type SampleFilter struct {
	ID            filter.Filter[int]    `json:"id"`
	ProjectID     filter.Filter[int]    `json:"project_id"`
	ParticipantID filter.Filter[int]    `json:"participant_id"`
	ExternalID    filter.Filter[string] `json:"external_id"`
	Type          filter.Filter[string] `json:"type"`
	Active        filter.Filter[bool]   `json:"active"`
	Meta          filter.Meta           `json:"meta"`
	Participant   *ParticipantFilter    `json:"participant,omitempty"`
}

// Model maps the filter onto the shared compilation model.
func (f SampleFilter) Model() *filter.Model {
	m := filter.NewModel().
		Field("id", f.ID).
		Field("project_id", f.ProjectID).
		Field("participant_id", f.ParticipantID).
		Field("external_id", f.ExternalID).
		Field("type", f.Type).
		Field("active", f.Active).
		MetaField("meta", f.Meta)
	if f.Participant != nil {
		m.Nested("participant", f.Participant.Model())
	}
	return m
}

// SequencingGroupFilter narrows sequencing group queries.
type SequencingGroupFilter struct {
	ID         filter.Filter[int]    `json:"id"`
	SampleID   filter.Filter[int]    `json:"sample_id"`
	Type       filter.Filter[string] `json:"type"`
	Technology filter.Filter[string] `json:"technology"`
	Platform   filter.Filter[string] `json:"platform"`
	Archived   filter.Filter[bool]   `json:"archived"`
	Meta       filter.Meta           `json:"meta"`
	Sample     *SampleFilter         `json:"sample,omitempty"`
}

// Model maps the filter onto the shared compilation model.
func (f SequencingGroupFilter) Model() *filter.Model {
	m := filter.NewModel().
		Field("id", f.ID).
		Field("sample_id", f.SampleID).
		Field("type", f.Type).
		Field("technology", f.Technology).
		Field("platform", f.Platform).
		Field("archived", f.Archived).
		MetaField("meta", f.Meta)
	if f.Sample != nil {
		m.Nested("sample", f.Sample.Model())
	}
	return m
}
