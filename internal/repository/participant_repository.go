package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/genlab/seqmeta/internal/db"
	"github.com/genlab/seqmeta/internal/domain"
	"github.com/genlab/seqmeta/internal/filter"
)

const participantSelectColumns = "p.id, p.project_id, p.external_id, p.reported_sex, p.reported_gender, p.karyotype, p.meta, p.created_at, p.updated_at"

// participantColumns maps filter fields onto aliased participant columns
var participantColumns = map[string]string{
	"id":           "p.id",
	"project_id":   "p.project_id",
	"external_id":  "p.external_id",
	"reported_sex": "p.reported_sex",
	"karyotype":    "p.karyotype",
	"meta":         "p.meta",
}

var participantSortColumns = map[string]string{
	"id":          "p.id",
	"external_id": "p.external_id",
	"created_at":  "p.created_at",
	"updated_at":  "p.updated_at",
}

// participantRepository implements ParticipantRepository interface
type participantRepository struct {
	q       db.Querier
	dialect db.Dialect
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(q db.Querier, dialect db.Dialect) ParticipantRepository {
	return &participantRepository{
		q:       q,
		dialect: dialect,
	}
}

// GetByID retrieves a participant by ID
func (r *participantRepository) GetByID(ctx context.Context, id int) (domain.Participant, error) {
	participants, err := r.GetByIDs(ctx, []int{id})
	if err != nil {
		return domain.Participant{}, err
	}
	if len(participants) == 0 {
		return domain.Participant{}, fmt.Errorf("participant %d: %w", id, ErrNotFound)
	}
	return participants[0], nil
}

// GetByIDs retrieves multiple participants by their IDs
func (r *participantRepository) GetByIDs(ctx context.Context, ids []int) ([]domain.Participant, error) {
	if len(ids) == 0 {
		return []domain.Participant{}, nil
	}

	query := "SELECT " + participantSelectColumns + " FROM participant p WHERE p.id IN :ids ORDER BY p.id"
	stmt, args, err := db.Bind(query, map[string]any{"ids": ids}, r.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to bind participant query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants by IDs: %w", err)
	}
	defer rows.Close()

	participants := []domain.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read participant rows: %w", err)
	}

	return participants, nil
}

// Query retrieves participants matching the filter, with the total match count
func (r *participantRepository) Query(ctx context.Context, f domain.ParticipantFilter, page Page) ([]domain.Participant, int, error) {
	if f.Model().IsAlwaysFalse() {
		return []domain.Participant{}, 0, nil
	}

	where, params, err := f.Model().Compile(filter.CompileOptions{
		Columns:     participantColumns,
		JSONExtract: r.dialect.JSONExtract,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to compile participant filter: %w", err)
	}

	order, err := orderBy(page.Sort, participantSortColumns, "p.id")
	if err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(page)
	params["limit"] = limit
	params["offset"] = offset

	query := "SELECT " + participantSelectColumns + ", COUNT(*) OVER() AS total_count" +
		" FROM participant p WHERE " + where + order +
		" LIMIT :limit OFFSET :offset"
	stmt, args, err := db.Bind(query, params, r.dialect)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to bind participant query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	participants := []domain.Participant{}
	total := 0
	for rows.Next() {
		var (
			p              domain.Participant
			reportedSex    sql.NullString
			reportedGender sql.NullString
			karyotype      sql.NullString
			metaRaw        []byte
		)
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.ExternalID, &reportedSex, &reportedGender, &karyotype, &metaRaw, &p.CreatedAt, &p.UpdatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan participant: %w", err)
		}
		applyParticipantNullables(&p, reportedSex, reportedGender, karyotype)
		if p.Meta, err = unmarshalMeta(metaRaw); err != nil {
			return nil, 0, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read participant rows: %w", err)
	}

	return participants, total, nil
}

// ByProject bulk-fetches participants for the given projects, narrowed by
// the filter, grouped by project id
func (r *participantRepository) ByProject(ctx context.Context, projectIDs []int, f domain.ParticipantFilter) (map[int][]domain.Participant, error) {
	out := map[int][]domain.Participant{}
	if len(projectIDs) == 0 || f.Model().IsAlwaysFalse() {
		return out, nil
	}

	where, params, err := f.Model().Compile(filter.CompileOptions{
		Columns:     participantColumns,
		JSONExtract: r.dialect.JSONExtract,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile participant filter: %w", err)
	}
	params["project_ids"] = projectIDs

	query := "SELECT " + participantSelectColumns +
		" FROM participant p WHERE p.project_id IN :project_ids AND " + where +
		" ORDER BY p.project_id, p.id"
	stmt, args, err := db.Bind(query, params, r.dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to bind participant query: %w", err)
	}

	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants by project: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out[p.ProjectID] = append(out[p.ProjectID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read participant rows: %w", err)
	}

	return out, nil
}

// scanParticipant builds a participant from the standard column list
func scanParticipant(rows db.Rows) (domain.Participant, error) {
	var (
		p              domain.Participant
		reportedSex    sql.NullString
		reportedGender sql.NullString
		karyotype      sql.NullString
		metaRaw        []byte
	)
	if err := rows.Scan(&p.ID, &p.ProjectID, &p.ExternalID, &reportedSex, &reportedGender, &karyotype, &metaRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Participant{}, fmt.Errorf("failed to scan participant: %w", err)
	}
	applyParticipantNullables(&p, reportedSex, reportedGender, karyotype)
	meta, err := unmarshalMeta(metaRaw)
	if err != nil {
		return domain.Participant{}, err
	}
	p.Meta = meta
	return p, nil
}

func applyParticipantNullables(p *domain.Participant, reportedSex, reportedGender, karyotype sql.NullString) {
	if reportedSex.Valid {
		v := reportedSex.String
		p.ReportedSex = &v
	}
	if reportedGender.Valid {
		v := reportedGender.String
		p.ReportedGender = &v
	}
	if karyotype.Valid {
		v := karyotype.String
		p.Karyotype = &v
	}
}
