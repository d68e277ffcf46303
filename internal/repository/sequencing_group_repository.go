package repository

import (
	"context"
	"fmt"

	"github.com/genlab/seqmeta/internal/db"
	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/filter"
)

const sequencingGroupSelectColumns = "g.id, g.sample_id, g.type, g.technology, g.platform, g.archived, g.meta, g.created_at, g.updated_at"

// sequencingGroupColumns maps filter fields onto aliased sequencing group
// columns
var sequencingGroupColumns = map[string]string{
	"id":         "g.id",
	"sample_id":  "g.sample_id",
	"type":       "g.type",
	"technology": "g.technology",
	"platform":   "g.platform",
	"archived":   "g.archived",
	"meta":       "g.meta",
}

var sequencingGroupSortColumns = map[string]string{
	"id":         "g.id",
	"type":       "g.type",
	"technology": "g.technology",
	"platform":   "g.platform",
	"created_at": "g.created_at",
	"updated_at": "g.updated_at",
}

// sequencingGroupRepository implements SequencingGroupRepository interface
type sequencingGroupRepository struct {
	q       db.Querier
	dialect db.Dialect
}

// NewSequencingGroupRepository creates a new sequencing group repository
func NewSequencingGroupRepository(q db.Querier, dialect db.Dialect) SequencingGroupRepository {
	return &sequencingGroupRepository{
		q:       q,
		dialect: dialect,
	}
}

// GetByID retrieves a sequencing group by ID
func (r *sequencingGroupRepository) GetByID(ctx context.Context, id int) (domain.SequencingGroup, error) {
	groups, err := r.GetByIDs(ctx, []int{id})
	if err != nil {
		return domain.SequencingGroup{}, err
	}
	if len(groups) == 0 {
		return domain.SequencingGroup{}, fmt.Errorf("sequencing group %d: %w", id, ErrNotFound)
	}
	return groups[0], nil
}

// GetByIDs retrieves multiple sequencing groups by their IDs
func (r *sequencingGroupRepository) GetByIDs(ctx context.Context, ids []int) ([]domain.SequencingGroup, error) {
	if len(ids) == 0 {
		return []domain.SequencingGroup{}, nil
	}

	query := "SELECT " + sequencingGroupSelectColumns + " FROM sequencing_group g WHERE g.id IN :ids ORDER BY g.id"
	stmt, args, err := db.Bind(query, map[string]any{"ids": ids}, r.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to bind sequencing group query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sequencing groups by IDs: %w", err)
	}
	defer rows.Close()

	groups := []domain.SequencingGroup{}
	for rows.Next() {
		g, err := scanSequencingGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sequencing group rows: %w", err)
	}

	return groups, nil
}

// Query retrieves sequencing groups matching the filter, with the total
// match count
func (r *sequencingGroupRepository) Query(ctx context.Context, f domain.SequencingGroupFilter, page Page) ([]domain.SequencingGroup, int, error) {
	if f.Model().IsAlwaysFalse() {
		return []domain.SequencingGroup{}, 0, nil
	}

	join, where, params, err := sequencingGroupWhere(f, r.dialect)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to compile sequencing group filter: %w", err)
	}

	order, err := orderBy(page.Sort, sequencingGroupSortColumns, "g.id")
	if err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(page)
	params["limit"] = limit
	params["offset"] = offset

	query := "SELECT " + sequencingGroupSelectColumns + ", COUNT(*) OVER() AS total_count" +
		" FROM sequencing_group g" + join +
		" WHERE " + where + order +
		" LIMIT :limit OFFSET :offset"
	stmt, args, err := db.Bind(query, params, r.dialect)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to bind sequencing group query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sequencing groups: %w", err)
	}
	defer rows.Close()

	groups := []domain.SequencingGroup{}
	total := 0
	for rows.Next() {
		var (
			g       domain.SequencingGroup
			metaRaw []byte
		)
		if err := rows.Scan(&g.ID, &g.SampleID, &g.Type, &g.Technology, &g.Platform, &g.Archived, &metaRaw, &g.CreatedAt, &g.UpdatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan sequencing group: %w", err)
		}
		if g.Meta, err = unmarshalMeta(metaRaw); err != nil {
			return nil, 0, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read sequencing group rows: %w", err)
	}

	return groups, total, nil
}

// BySample bulk-fetches sequencing groups for the given samples, narrowed by
// the filter, grouped by sample id
func (r *sequencingGroupRepository) BySample(ctx context.Context, sampleIDs []int, f domain.SequencingGroupFilter) (map[int][]domain.SequencingGroup, error) {
	out := map[int][]domain.SequencingGroup{}
	if len(sampleIDs) == 0 || f.Model().IsAlwaysFalse() {
		return out, nil
	}

	join, where, params, err := sequencingGroupWhere(f, r.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to compile sequencing group filter: %w", err)
	}
	params["sample_ids"] = sampleIDs

	query := "SELECT " + sequencingGroupSelectColumns +
		" FROM sequencing_group g" + join +
		" WHERE g.sample_id IN :sample_ids AND " + where +
		" ORDER BY g.sample_id, g.id"
	stmt, args, err := db.Bind(query, params, r.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to bind sequencing group query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequencing groups by sample: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		g, err := scanSequencingGroup(rows)
		if err != nil {
			return nil, err
		}
		out[g.SampleID] = append(out[g.SampleID], g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sequencing group rows: %w", err)
	}

	return out, nil
}

// sequencingGroupWhere compiles the filter against aliased sequencing group
// columns, adding sample (and transitively participant) joins when nested
// branches are set.
func sequencingGroupWhere(f domain.SequencingGroupFilter, dialect db.Dialect) (string, string, map[string]any, error) {
	base := f
	base.Sample = nil
	where, params, err := base.Model().Compile(filter.CompileOptions{
		Columns:     sequencingGroupColumns,
		JSONExtract: dialect.JSONExtract,
	})
	if err != nil {
		return "", "", nil, err
	}
	if f.Sample == nil {
		return "", where, params, nil
	}

	sjoin, swhere, sparams, err := sampleWhere(*f.Sample, dialect)
	if err != nil {
		return "", "", nil, err
	}
	for name, value := range sparams {
		params[name] = value
	}
	join := " JOIN sample s ON s.id = g.sample_id" + sjoin
	return join, where + " AND " + swhere, params, nil
}

// scanSequencingGroup builds a sequencing group from the standard column list
func scanSequencingGroup(rows db.Rows) (domain.SequencingGroup, error) {
	var (
		g       domain.SequencingGroup
		metaRaw []byte
	)
	if err := rows.Scan(&g.ID, &g.SampleID, &g.Type, &g.Technology, &g.Platform, &g.Archived, &metaRaw, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return domain.SequencingGroup{}, fmt.Errorf("failed to scan sequencing group: %w", err)
	}
	meta, err := unmarshalMeta(metaRaw)
	if err != nil {
		return domain.SequencingGroup{}, err
	}
	g.Meta = meta
	return g, nil
}
