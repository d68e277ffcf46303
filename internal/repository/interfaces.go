package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/genlab/seqmeta/internal/domain"
)

// ErrNotFound reports a lookup for a row that does not exist.
var ErrNotFound = errors.New("not found")

// ErrBadSort reports a sort descriptor naming a field outside the entity's
// allowed sort columns.
var ErrBadSort = errors.New("unsupported sort field")

// Page bounds and orders a listing query.
type Page struct {
	Limit  int
	Offset int
	Sort   []domain.Sort
}

// ProjectRepository defines the interface for project read operations
type ProjectRepository interface {
	GetByID(ctx context.Context, id int) (domain.Project, error)
	GetByName(ctx context.Context, name string) (domain.Project, error)
	Query(ctx context.Context, f domain.ProjectFilter, page Page) ([]domain.Project, int, error)
}

// ParticipantRepository defines the interface for participant read operations
type ParticipantRepository interface {
	GetByID(ctx context.Context, id int) (domain.Participant, error)
	GetByIDs(ctx context.Context, ids []int) ([]domain.Participant, error)
	Query(ctx context.Context, f domain.ParticipantFilter, page Page) ([]domain.Participant, int, error)
	// ByProject bulk-fetches participants grouped by project id.
	ByProject(ctx context.Context, projectIDs []int, f domain.ParticipantFilter) (map[int][]domain.Participant, error)
}

// SampleRepository defines the interface for sample read operations
type SampleRepository interface {
	GetByID(ctx context.Context, id int) (domain.Sample, error)
	GetByIDs(ctx context.Context, ids []int) ([]domain.Sample, error)
	Query(ctx context.Context, f domain.SampleFilter, page Page) ([]domain.Sample, int, error)
	// ByParticipant bulk-fetches samples grouped by participant id.
	ByParticipant(ctx context.Context, participantIDs []int, f domain.SampleFilter) (map[int][]domain.Sample, error)
}

// SequencingGroupRepository defines the interface for sequencing group read
// operations
type SequencingGroupRepository interface {
	GetByID(ctx context.Context, id int) (domain.SequencingGroup, error)
	GetByIDs(ctx context.Context, ids []int) ([]domain.SequencingGroup, error)
	Query(ctx context.Context, f domain.SequencingGroupFilter, page Page) ([]domain.SequencingGroup, int, error)
	// BySample bulk-fetches sequencing groups grouped by sample id.
	BySample(ctx context.Context, sampleIDs []int, f domain.SequencingGroupFilter) (map[int][]domain.SequencingGroup, error)
}

// defaultPageLimit bounds listings that do not ask for a page size
const defaultPageLimit = 100

func pageBounds(page Page) (int, int) {
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// orderBy renders an ORDER BY clause from sort descriptors, restricted to
// the allowed column set so user input never reaches the SQL as-is.
func orderBy(sorts []domain.Sort, allowed map[string]string, fallback string) (string, error) {
	if len(sorts) == 0 {
		return " ORDER BY " + fallback, nil
	}
	clauses := make([]string, 0, len(sorts))
	for _, s := range sorts {
		column, ok := allowed[s.Field]
		if !ok {
			return "", fmt.Errorf("%w %q", ErrBadSort, s.Field)
		}
		direction := "ASC"
		if s.Normalized() == domain.SortDirectionDesc {
			direction = "DESC"
		}
		clauses = append(clauses, column+" "+direction)
	}
	return " ORDER BY " + strings.Join(clauses, ", "), nil
}
