package wearable

import (
	"context"
	"fmt"
	"time"

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

const integrationCols = `id, patient_id, provider, status, access_token, refresh_token, scope,
	connected_at, created_at, updated_at`

func (r *integrationRepoPG) scan(row pgx.Row) (*Integration, error) {
	var i Integration
	err := row.Scan(&i.ID, &i.PatientID, &i.Provider, &i.Status, &i.AccessToken, &i.RefreshToken,
		&i.Scope, &i.ConnectedAt, &i.CreatedAt, &i.UpdatedAt)
	return &i, err
}

func (r *integrationRepoPG) Create(ctx context.Context, i *Integration) error {
	i.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO wearable_integration (id, patient_id, provider, status, access_token, refresh_token, scope, connected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		i.ID, i.PatientID, i.Provider, i.Status, i.AccessToken, i.RefreshToken, i.Scope, i.ConnectedAt)
	return err
}

func (r *integrationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Integration, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+integrationCols+` FROM wearable_integration WHERE id = $1`, id))
}

func (r *integrationRepoPG) GetByPatientAndProvider(ctx context.Context, patientID uuid.UUID, provider string) (*Integration, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+integrationCols+` FROM wearable_integration WHERE patient_id = $1 AND provider = $2`,
		patientID, provider))
}

func (r *integrationRepoPG) Update(ctx context.Context, i *Integration) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE wearable_integration
		SET status=$2, access_token=$3, refresh_token=$4, scope=$5, connected_at=$6, updated_at=NOW()
		WHERE id = $1`,
		i.ID, i.Status, i.AccessToken, i.RefreshToken, i.Scope, i.ConnectedAt)
	return err
}

func (r *integrationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Integration, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+integrationCols+` FROM wearable_integration WHERE patient_id = $1 ORDER BY created_at ASC`,
		patientID)
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

// =========== Device Repository ===========

type deviceRepoPG struct{ pool *pgxpool.Pool }

func NewDeviceRepoPG(pool *pgxpool.Pool) DeviceRepository {
	return &deviceRepoPG{pool: pool}
}

func (r *deviceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const deviceCols = `id, integration_id, model, battery, last_seen_at, status, created_at`

func (r *deviceRepoPG) scan(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.IntegrationID, &d.Model, &d.Battery, &d.LastSeenAt, &d.Status, &d.CreatedAt)
	return &d, err
}

func (r *deviceRepoPG) Upsert(ctx context.Context, d *Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO wearable_device (id, integration_id, model, battery, last_seen_at, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET model=EXCLUDED.model, battery=EXCLUDED.battery, last_seen_at=EXCLUDED.last_seen_at, status=EXCLUDED.status`,
		d.ID, d.IntegrationID, d.Model, d.Battery, d.LastSeenAt, d.Status)
	return err
}

func (r *deviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Device, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+deviceCols+` FROM wearable_device WHERE id = $1`, id))
}

func (r *deviceRepoPG) ListConnectedByPatient(ctx context.Context, patientID uuid.UUID) ([]*Device, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.integration_id, d.model, d.battery, d.last_seen_at, d.status, d.created_at
		FROM wearable_device d
		JOIN wearable_integration i ON i.id = d.integration_id
		WHERE i.patient_id = $1 AND i.status = 'connected'
		ORDER BY d.created_at ASC`,
		patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Device
	for rows.Next() {
		d, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, nil
}

// =========== Measurement Repository ===========

type measurementRepoPG struct{ pool *pgxpool.Pool }

func NewMeasurementRepoPG(pool *pgxpool.Pool) MeasurementRepository {
	return &measurementRepoPG{pool: pool}
}

func (r *measurementRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const measurementCols = `id, device_id, patient_id, kind, value, unit, measured_at, created_at`

func (r *measurementRepoPG) CreateBatch(ctx context.Context, batch []*Measurement) error {
	for _, m := range batch {
		m.ID = uuid.New()
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO measurement (id, device_id, patient_id, kind, value, unit, measured_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			m.ID, m.DeviceID, m.PatientID, m.Kind, m.Value, m.Unit, m.MeasuredAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *measurementRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, kind string, from, to time.Time, limit, offset int) ([]*Measurement, int, error) {
	where := ` WHERE patient_id = $1 AND measured_at >= $2 AND measured_at < $3`
	args := []interface{}{patientID, from, to}
	if kind != "" {
		where += ` AND kind = $4`
		args = append(args, kind)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM measurement`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+measurementCols+` FROM measurement`+where+
			` ORDER BY measured_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Measurement
	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.PatientID, &m.Kind, &m.Value, &m.Unit, &m.MeasuredAt, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &m)
	}
	return items, total, nil
}
