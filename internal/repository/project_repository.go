package repository

import (
	"context"
	"fmt"

	"github.com/genlab/seqmeta/internal/db"
	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/filter"
)

const projectSelectColumns = "pr.id, pr.name, pr.dataset, pr.meta, pr.created_at, pr.updated_at"

// projectColumns maps filter fields onto aliased project columns
var projectColumns = map[string]string{
	"id":      "pr.id",
	"name":    "pr.name",
	"dataset": "pr.dataset",
	"meta":    "pr.meta",
}

var projectSortColumns = map[string]string{
	"id":         "pr.id",
	"name":       "pr.name",
	"dataset":    "pr.dataset",
	"created_at": "pr.created_at",
	"updated_at": "pr.updated_at",
}

// projectRepository implements ProjectRepository interface
type projectRepository struct {
	q       db.Querier
	dialect db.Dialect
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(q db.Querier, dialect db.Dialect) ProjectRepository {
	return &projectRepository{
		q:       q,
		dialect: dialect,
	}
}

// GetByID retrieves a project by ID
func (r *projectRepository) GetByID(ctx context.Context, id int) (domain.Project, error) {
	return r.getOne(ctx, "pr.id = :id", map[string]any{"id": id}, fmt.Sprintf("project %d", id))
}

// GetByName retrieves a project by name
func (r *projectRepository) GetByName(ctx context.Context, name string) (domain.Project, error) {
	return r.getOne(ctx, "pr.name = :name", map[string]any{"name": name}, fmt.Sprintf("project %q", name))
}

func (r *projectRepository) getOne(ctx context.Context, where string, params map[string]any, what string) (domain.Project, error) {
	query := "SELECT " + projectSelectColumns + " FROM project pr WHERE " + where
	stmt, args, err := db.Bind(query, params, r.dialect)
	if err != nil {
		return domain.Project{}, fmt.Errorf("failed to bind project query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return domain.Project{}, fmt.Errorf("failed to get project: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Project{}, fmt.Errorf("failed to read project row: %w", err)
		}
		return domain.Project{}, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return scanProject(rows)
}

// Query retrieves projects matching the filter, with the total match count
func (r *projectRepository) Query(ctx context.Context, f domain.ProjectFilter, page Page) ([]domain.Project, int, error) {
	if f.Model().IsAlwaysFalse() {
		return []domain.Project{}, 0, nil
	}

	where, params, err := f.Model().Compile(filter.CompileOptions{
		Columns:     projectColumns,
		JSONExtract: r.dialect.JSONExtract,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to compile project filter: %w", err)
	}

	order, err := orderBy(page.Sort, projectSortColumns, "pr.id")
	if err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(page)
	params["limit"] = limit
	params["offset"] = offset

	query := "SELECT " + projectSelectColumns + ", COUNT(*) OVER() AS total_count" +
		" FROM project pr WHERE " + where + order +
		" LIMIT :limit OFFSET :offset"
	stmt, args, err := db.Bind(query, params, r.dialect)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to bind project query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	total := 0
	for rows.Next() {
		var (
			p       domain.Project
			metaRaw []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Dataset, &metaRaw, &p.CreatedAt, &p.UpdatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan project: %w", err)
		}
		if p.Meta, err = unmarshalMeta(metaRaw); err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read project rows: %w", err)
	}

	return projects, total, nil
}

// scanProject builds a project from the standard column list
func scanProject(rows db.Rows) (domain.Project, error) {
	var (
		p       domain.Project
		metaRaw []byte
	)
	if err := rows.Scan(&p.ID, &p.Name, &p.Dataset, &metaRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Project{}, fmt.Errorf("failed to scan project: %w", err)
	}
	meta, err := unmarshalMeta(metaRaw)
	if err != nil {
		return domain.Project{}, err
	}
	p.Meta = meta
	return p, nil
}
