package domain

import "time"

// SequencingGroup represents one sequencing run over a sample
type SequencingGroup struct {
	ID         int            `json:"id"`
	SampleID   int            `json:"sample_id"`
	Type       string         `json:"type"`
	Technology string         `json:"technology"`
	Platform   string         `json:"platform"`
	Archived   bool           `json:"archived"`
	Meta       map[string]any `json:"meta"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewSequencingGroup creates a new sequencing group with immutable pattern
func NewSequencingGroup(sampleID int, groupType, technology, platform string, meta map[string]any) SequencingGroup {
	now := time.Now()
	return SequencingGroup{
		SampleID:   sampleID,
		Type:       groupType,
		Technology: technology,
		Platform:   platform,
		Meta:       copyMeta(meta),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithArchived returns a new sequencing group with updated archived state
func (g SequencingGroup) WithArchived(archived bool) SequencingGroup {
	return SequencingGroup{
		ID:         g.ID,
		SampleID:   g.SampleID,
		Type:       g.Type,
		Technology: g.Technology,
		Platform:   g.Platform,
		Archived:   archived,
		Meta:       copyMeta(g.Meta),
		CreatedAt:  g.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

// WithMeta returns a new sequencing group with an added/updated meta attribute
func (g SequencingGroup) WithMeta(key string, value any) SequencingGroup {
	meta := copyMeta(g.Meta)
	meta[key] = value

	return SequencingGroup{
		ID:         g.ID,
		SampleID:   g.SampleID,
		Type:       g.Type,
		Technology: g.Technology,
		Platform:   g.Platform,
		Archived:   g.Archived,
		Meta:       meta,
		CreatedAt:  g.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

// copyMeta creates a deep copy of the meta map to ensure immutability
func copyMeta(meta map[string]any) map[string]any {
	newMeta := make(map[string]any, len(meta))
	for k, v := range meta {
		// For a truly immutable implementation, you'd need to deep copy each value
		// For simplicity, we're doing a shallow copy here
		newMeta[k] = v
	}
	return newMeta
}
