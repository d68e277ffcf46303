package domain

import "time"

// Project represents a dataset-scoped tenant in the system
type Project struct {
	ID        int            `json:"id"`
	Name      string         `json:"name"`
	Dataset   string         `json:"dataset"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewProject creates a new project with immutable pattern
func NewProject(name, dataset string, meta map[string]any) Project {
	now := time.Now()
	return Project{
		Name:      name,
		Dataset:   dataset,
		Meta:      copyMeta(meta),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithName returns a new project with updated name
func (p Project) WithName(name string) Project {
	return Project{
		ID:        p.ID,
		Name:      name,
		Dataset:   p.Dataset,
		Meta:      copyMeta(p.Meta),
		CreatedAt: p.CreatedAt,
		UpdatedAt: time.Now(),
	}
}

// WithMeta returns a new project with an added/updated meta attribute
func (p Project) WithMeta(key string, value any) Project {
	meta := copyMeta(p.Meta)
	meta[key] = value

	return Project{
		ID:        p.ID,
		Name:      p.Name,
		Dataset:   p.Dataset,
		Meta:      meta,
		CreatedAt: p.CreatedAt,
		UpdatedAt: time.Now(),
	}
}
