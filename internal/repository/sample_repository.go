package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/genlab/seqmeta/internal/db"
	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/filter"
)

const sampleSelectColumns = "s.id, s.project_id, s.participant_id, s.external_id, s.type, s.active, s.meta, s.created_at, s.updated_at"

// sampleColumns maps filter fields onto aliased sample columns
var sampleColumns = map[string]string{
	"id":             "s.id",
	"project_id":     "s.project_id",
	"participant_id": "s.participant_id",
	"external_id":    "s.external_id",
	"type":           "s.type",
	"active":         "s.active",
	"meta":           "s.meta",
}

var sampleSortColumns = map[string]string{
	"id":          "s.id",
	"external_id": "s.external_id",
	"type":        "s.type",
	"created_at":  "s.created_at",
	"updated_at":  "s.updated_at",
}

// sampleRepository implements SampleRepository interface
type sampleRepository struct {
	q       db.Querier
	dialect db.Dialect
}

// NewSampleRepository creates a new sample repository
func NewSampleRepository(q db.Querier, dialect db.Dialect) SampleRepository {
	return &sampleRepository{
		q:       q,
		dialect: dialect,
	}
}

// GetByID retrieves a sample by ID
func (r *sampleRepository) GetByID(ctx context.Context, id int) (domain.Sample, error) {
	samples, err := r.GetByIDs(ctx, []int{id})
	if err != nil {
		return domain.Sample{}, err
	}
	if len(samples) == 0 {
		return domain.Sample{}, fmt.Errorf("sample %d: %w", id, ErrNotFound)
	}
	return samples[0], nil
}

// GetByIDs retrieves multiple samples by their IDs
func (r *sampleRepository) GetByIDs(ctx context.Context, ids []int) ([]domain.Sample, error) {
	if len(ids) == 0 {
		return []domain.Sample{}, nil
	}

	query := "SELECT " + sampleSelectColumns + " FROM sample s WHERE s.id IN :ids ORDER BY s.id"
	stmt, args, err := db.Bind(query, map[string]any{"ids": ids}, r.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to bind sample query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get samples by IDs: %w", err)
	}
	defer rows.Close()

	samples := []domain.Sample{}
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sample rows: %w", err)
	}

	return samples, nil
}

// Query retrieves samples matching the filter, with the total match count
func (r *sampleRepository) Query(ctx context.Context, f domain.SampleFilter, page Page) ([]domain.Sample, int, error) {
	if f.Model().IsAlwaysFalse() {
		return []domain.Sample{}, 0, nil
	}

	join, where, params, err := sampleWhere(f, r.dialect)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to compile sample filter: %w", err)
	}

	order, err := orderBy(page.Sort, sampleSortColumns, "s.id")
	if err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(page)
	params["limit"] = limit
	params["offset"] = offset

	query := "SELECT " + sampleSelectColumns + ", COUNT(*) OVER() AS total_count" +
		" FROM sample s" + join +
		" WHERE " + where + order +
		" LIMIT :limit OFFSET :offset"
	stmt, args, err := db.Bind(query, params, r.dialect)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to bind sample query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := []domain.Sample{}
	total := 0
	for rows.Next() {
		var (
			s       domain.Sample
			pid     sql.NullInt64
			metaRaw []byte
		)
		if err := rows.Scan(&s.ID, &s.ProjectID, &pid, &s.ExternalID, &s.Type, &s.Active, &metaRaw, &s.CreatedAt, &s.UpdatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan sample: %w", err)
		}
		if pid.Valid {
			v := int(pid.Int64)
			s.ParticipantID = &v
		}
		if s.Meta, err = unmarshalMeta(metaRaw); err != nil {
			return nil, 0, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read sample rows: %w", err)
	}

	return samples, total, nil
}

// ByParticipant bulk-fetches samples for the given participants, narrowed by
// the filter, grouped by participant id
func (r *sampleRepository) ByParticipant(ctx context.Context, participantIDs []int, f domain.SampleFilter) (map[int][]domain.Sample, error) {
	out := map[int][]domain.Sample{}
	if len(participantIDs) == 0 || f.Model().IsAlwaysFalse() {
		return out, nil
	}

	join, where, params, err := sampleWhere(f, r.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to compile sample filter: %w", err)
	}
	params["participant_ids"] = participantIDs

	query := "SELECT " + sampleSelectColumns +
		" FROM sample s" + join +
		" WHERE s.participant_id IN :participant_ids AND " + where +
		" ORDER BY s.participant_id, s.id"
	stmt, args, err := db.Bind(query, params, r.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to bind sample query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples by participant: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		if s.ParticipantID == nil {
			continue
		}
		out[*s.ParticipantID] = append(out[*s.ParticipantID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sample rows: %w", err)
	}

	return out, nil
}

// sampleWhere compiles the filter against aliased sample columns, adding a
// participant join when the nested branch is set.
func sampleWhere(f domain.SampleFilter, dialect db.Dialect) (string, string, map[string]any, error) {
	base := f
	base.Participant = nil
	where, params, err := base.Model().Compile(filter.CompileOptions{
		Columns:     sampleColumns,
		JSONExtract: dialect.JSONExtract,
	})
	if err != nil {
		return "", "", nil, err
	}
	if f.Participant == nil {
		return "", where, params, nil
	}

	pwhere, pparams, err := f.Participant.Model().Compile(filter.CompileOptions{
		Columns:     participantColumns,
		JSONExtract: dialect.JSONExtract,
	})
	if err != nil {
		return "", "", nil, err
	}
	for name, value := range pparams {
		params[name] = value
	}
	return " JOIN participant p ON p.id = s.participant_id", where + " AND " + pwhere, params, nil
}

// scanSample builds a sample from the standard column list
func scanSample(rows db.Rows) (domain.Sample, error) {
	var (
		s       domain.Sample
		pid     sql.NullInt64
		metaRaw []byte
	)
	if err := rows.Scan(&s.ID, &s.ProjectID, &pid, &s.ExternalID, &s.Type, &s.Active, &metaRaw, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.Sample{}, fmt.Errorf("failed to scan sample: %w", err)
	}
	if pid.Valid {
		v := int(pid.Int64)
		s.ParticipantID = &v
	}
	meta, err := unmarshalMeta(metaRaw)
	if err != nil {
		return domain.Sample{}, err
	}
	s.Meta = meta
	return s, nil
}

// unmarshalMeta decodes a JSON attribute column, treating NULL as empty
func unmarshalMeta(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode meta attributes: %w", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, nil
}
