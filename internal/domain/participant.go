package domain

import "time"

// Participant represents a study participant samples are drawn from
type Participant struct {
	ID             int            `json:"id"`
	ProjectID      int            `json:"project_id"`
	ExternalID     string         `json:"external_id"`
	ReportedSex    *string        `json:"reported_sex,omitempty"`
	ReportedGender *string        `json:"reported_gender,omitempty"`
	Karyotype      *string        `json:"karyotype,omitempty"`
	Meta           map[string]any `json:"meta"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewParticipant creates a new participant with immutable pattern
func NewParticipant(projectID int, externalID string, meta map[string]any) Participant {
	now := time.Now()
	return Participant{
		ProjectID:  projectID,
		ExternalID: externalID,
		Meta:       copyMeta(meta),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithExternalID returns a new participant with updated external identifier
func (p Participant) WithExternalID(externalID string) Participant {
	return Participant{
		ID:             p.ID,
		ProjectID:      p.ProjectID,
		ExternalID:     externalID,
		ReportedSex:    p.ReportedSex,
		ReportedGender: p.ReportedGender,
		Karyotype:      p.Karyotype,
		Meta:           copyMeta(p.Meta),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      time.Now(),
	}
}

// WithReportedSex returns a new participant with updated reported sex
func (p Participant) WithReportedSex(reportedSex *string) Participant {
	return Participant{
		ID:             p.ID,
		ProjectID:      p.ProjectID,
		ExternalID:     p.ExternalID,
		ReportedSex:    reportedSex,
		ReportedGender: p.ReportedGender,
		Karyotype:      p.Karyotype,
		Meta:           copyMeta(p.Meta),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      time.Now(),
	}
}

// WithMeta returns a new participant with an added/updated meta attribute
func (p Participant) WithMeta(key string, value any) Participant {
	meta := copyMeta(p.Meta)
	meta[key] = value

	return Participant{
		ID:             p.ID,
		ProjectID:      p.ProjectID,
		ExternalID:     p.ExternalID,
		ReportedSex:    p.ReportedSex,
		ReportedGender: p.ReportedGender,
		Karyotype:      p.Karyotype,
		Meta:           meta,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      time.Now(),
	}
}
