package fhirresource

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const resourceCols = `id, resource_type, fhir_id, patient_id, version_id, source, body, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*StoredResource, error) {
	var sr StoredResource
	err := row.Scan(&sr.ID, &sr.ResourceType, &sr.FHIRID, &sr.PatientID, &sr.VersionID,
		&sr.Source, &sr.Body, &sr.CreatedAt, &sr.UpdatedAt)
	return &sr, err
}

func (r *repoPG) Create(ctx context.Context, sr *StoredResource) error {
	sr.ID = uuid.New()
	sr.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stored_resource (id, resource_type, fhir_id, patient_id, version_id, source, body)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sr.ID, sr.ResourceType, sr.FHIRID, sr.PatientID, sr.VersionID, sr.Source, sr.Body)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*StoredResource, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+resourceCols+` FROM stored_resource WHERE id = $1`, id))
}

func (r *repoPG) GetByTypeAndFHIRID(ctx context.Context, resourceType, fhirID string) (*StoredResource, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+resourceCols+` FROM stored_resource WHERE resource_type = $1 AND fhir_id = $2`,
		resourceType, fhirID))
}

func (r *repoPG) Update(ctx context.Context, sr *StoredResource) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE stored_resource
		SET patient_id=$2, version_id=version_id+1, source=$3, body=$4, updated_at=NOW()
		WHERE id = $1`,
		sr.ID, sr.PatientID, sr.Source, sr.Body)
	if err == nil {
		sr.VersionID++
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM stored_resource WHERE id = $1`, id)
	return err
}

func (r *repoPG) Search(ctx context.Context, params SearchParams) ([]*StoredResource, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	if params.ResourceType != "" {
		args = append(args, params.ResourceType)
		where += fmt.Sprintf(` AND resource_type = $%d`, len(args))
	}
	if params.PatientID != uuid.Nil {
		args = append(args, params.PatientID)
		where += fmt.Sprintf(` AND patient_id = $%d`, len(args))
	}
	if params.FHIRID != "" {
		args = append(args, params.FHIRID)
		where += fmt.Sprintf(` AND fhir_id = $%d`, len(args))
	}
	if params.Text != "" {
		args = append(args, "%"+params.Text+"%")
		where += fmt.Sprintf(` AND body::text ILIKE $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM stored_resource`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, params.Limit, params.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+resourceCols+` FROM stored_resource`+where+` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
			len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*StoredResource
	for rows.Next() {
		sr, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, sr)
	}
	return items, total, nil
}

func (r *repoPG) ListTypes(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT resource_type, COUNT(*) FROM stored_resource GROUP BY resource_type ORDER BY resource_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var rt string
		var n int
		if err := rows.Scan(&rt, &n); err != nil {
			return nil, err
		}
		counts[rt] = n
	}
	return counts, nil
}
