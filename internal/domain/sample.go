package domain

import "time"

// Sample represents a physical specimen registered against a participant
type Sample struct {
	ID            int            `json:"id"`
	ProjectID     int            `json:"project_id"`
	ParticipantID *int           `json:"participant_id,omitempty"`
	ExternalID    string         `json:"external_id"`
	Type          string         `json:"type"`
	Active        bool           `json:"active"`
	Meta          map[string]any `json:"meta"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewSample creates a new sample with immutable pattern
func NewSample(projectID int, externalID, sampleType string, meta map[string]any) Sample {
	now := time.Now()
	return Sample{
		ProjectID:  projectID,
		ExternalID: externalID,
		Type:       sampleType,
		Active:     true,
		Meta:       copyMeta(meta),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithParticipant returns a new sample linked to the given participant
func (s Sample) WithParticipant(participantID int) Sample {
	return Sample{
		ID:            s.ID,
		ProjectID:     s.ProjectID,
		ParticipantID: &participantID,
		ExternalID:    s.ExternalID,
		Type:          s.Type,
		Active:        s.Active,
		Meta:          copyMeta(s.Meta),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     time.Now(),
	}
}

// WithActive returns a new sample with updated active state
func (s Sample) WithActive(active bool) Sample {
	return Sample{
		ID:            s.ID,
		ProjectID:     s.ProjectID,
		ParticipantID: s.ParticipantID,
		ExternalID:    s.ExternalID,
		Type:          s.Type,
		Active:        active,
		Meta:          copyMeta(s.Meta),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     time.Now(),
	}
}

// WithType returns a new sample with updated specimen type
func (s Sample) WithType(sampleType string) Sample {
	return Sample{
		ID:            s.ID,
		ProjectID:     s.ProjectID,
		ParticipantID: s.ParticipantID,
		ExternalID:    s.ExternalID,
		Type:          sampleType,
		Active:        s.Active,
		Meta:          copyMeta(s.Meta),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     time.Now(),
	}
}

// WithMeta returns a new sample with an added/updated meta attribute
func (s Sample) WithMeta(key string, value any) Sample {
	meta := copyMeta(s.Meta)
	meta[key] = value

	return Sample{
		ID:            s.ID,
		ProjectID:     s.ProjectID,
		ParticipantID: s.ParticipantID,
		ExternalID:    s.ExternalID,
		Type:          s.Type,
		Active:        s.Active,
		Meta:          meta,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     time.Now(),
	}
}

// WithoutMeta returns a new sample without the specified meta attribute
func (s Sample) WithoutMeta(key string) Sample {
	meta := copyMeta(s.Meta)
	delete(meta, key)

	return Sample{
		ID:            s.ID,
		ProjectID:     s.ProjectID,
		ParticipantID: s.ParticipantID,
		ExternalID:    s.ExternalID,
		Type:          s.Type,
		Active:        s.Active,
		Meta:          meta,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     time.Now(),
	}
}
