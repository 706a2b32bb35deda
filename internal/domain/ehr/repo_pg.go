package ehr

import (
	"context"

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

// =========== Integration Repository ===========

type integrationRepoPG struct{ pool *pgxpool.Pool }

func NewIntegrationRepoPG(pool *pgxpool.Pool) IntegrationRepository {
	return &integrationRepoPG{pool: pool}
}

func (r *integrationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const integrationCols = `id, name, vendor, base_url, client_id, client_secret, status,
	last_test_at, last_test_result, last_sync_at, created_at, updated_at`

func (r *integrationRepoPG) scan(row pgx.Row) (*Integration, error) {
	var i Integration
	err := row.Scan(&i.ID, &i.Name, &i.Vendor, &i.BaseURL, &i.ClientID, &i.ClientSecret, &i.Status,
		&i.LastTestAt, &i.LastTestResult, &i.LastSyncAt, &i.CreatedAt, &i.UpdatedAt)
	return &i, err
}

func (r *integrationRepoPG) Create(ctx context.Context, i *Integration) error {
	i.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ehr_integration (id, name, vendor, base_url, client_id, client_secret, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		i.ID, i.Name, i.Vendor, i.BaseURL, i.ClientID, i.ClientSecret, i.Status)
	return err
}

func (r *integrationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Integration, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+integrationCols+` FROM ehr_integration WHERE id = $1`, id))
}

func (r *integrationRepoPG) Update(ctx context.Context, i *Integration) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE ehr_integration
		SET name=$2, vendor=$3, base_url=$4, client_id=$5, client_secret=$6, status=$7,
			last_test_at=$8, last_test_result=$9, last_sync_at=$10, updated_at=NOW()
		WHERE id = $1`,
		i.ID, i.Name, i.Vendor, i.BaseURL, i.ClientID, i.ClientSecret, i.Status,
		i.LastTestAt, i.LastTestResult, i.LastSyncAt)
	return err
}

func (r *integrationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM ehr_integration WHERE id = $1`, id)
	return err
}

func (r *integrationRepoPG) List(ctx context.Context) ([]*Integration, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+integrationCols+` FROM ehr_integration ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Integration
	for rows.Next() {
		i, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, nil
}

// =========== Sync Job Repository ===========

type syncJobRepoPG struct{ pool *pgxpool.Pool }

func NewSyncJobRepoPG(pool *pgxpool.Pool) SyncJobRepository {
	return &syncJobRepoPG{pool: pool}
}

func (r *syncJobRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const syncJobCols = `id, integration_id, resource_types, status, fetched, stored, failed,
	error, started_at, finished_at`

func (r *syncJobRepoPG) scan(row pgx.Row) (*SyncJob, error) {
	var j SyncJob
	err := row.Scan(&j.ID, &j.IntegrationID, &j.ResourceTypes, &j.Status, &j.Fetched, &j.Stored,
		&j.Failed, &j.Error, &j.StartedAt, &j.FinishedAt)
	return &j, err
}

func (r *syncJobRepoPG) Create(ctx context.Context, j *SyncJob) error {
	j.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO sync_job (id, integration_id, resource_types, status, fetched, stored, failed, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		j.ID, j.IntegrationID, j.ResourceTypes, j.Status, j.Fetched, j.Stored, j.Failed, j.StartedAt)
	return err
}

func (r *syncJobRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*SyncJob, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+syncJobCols+` FROM sync_job WHERE id = $1`, id))
}

func (r *syncJobRepoPG) Update(ctx context.Context, j *SyncJob) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE sync_job SET status=$2, fetched=$3, stored=$4, failed=$5, error=$6, finished_at=$7
		WHERE id = $1`,
		j.ID, j.Status, j.Fetched, j.Stored, j.Failed, j.Error, j.FinishedAt)
	return err
}

func (r *syncJobRepoPG) ListByIntegration(ctx context.Context, integrationID uuid.UUID, limit, offset int) ([]*SyncJob, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM sync_job WHERE integration_id = $1`, integrationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+syncJobCols+` FROM sync_job WHERE integration_id = $1
		ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		integrationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*SyncJob
	for rows.Next() {
		j, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, j)
	}
	return items, total, nil
}
