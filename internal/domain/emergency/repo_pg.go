package emergency

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

// =========== Contact Repository ===========

type contactRepoPG struct{ pool *pgxpool.Pool }

func NewContactRepoPG(pool *pgxpool.Pool) ContactRepository {
	return &contactRepoPG{pool: pool}
}

func (r *contactRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const contactCols = `id, patient_id, name, relationship, phone, email, priority, verified, notify_by, created_at, updated_at`

func (r *contactRepoPG) scan(row pgx.Row) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.PatientID, &c.Name, &c.Relationship, &c.Phone, &c.Email,
		&c.Priority, &c.Verified, &c.NotifyBy, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *contactRepoPG) Create(ctx context.Context, c *Contact) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_contact (id, patient_id, name, relationship, phone, email, priority, verified, notify_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.PatientID, c.Name, c.Relationship, c.Phone, c.Email, c.Priority, c.Verified, c.NotifyBy)
	return err
}

func (r *contactRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+contactCols+` FROM emergency_contact WHERE id = $1`, id))
}

func (r *contactRepoPG) Update(ctx context.Context, c *Contact) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_contact
		SET name=$2, relationship=$3, phone=$4, email=$5, priority=$6, verified=$7, notify_by=$8, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Name, c.Relationship, c.Phone, c.Email, c.Priority, c.Verified, c.NotifyBy)
	return err
}

func (r *contactRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM emergency_contact WHERE id = $1`, id)
	return err
}

func (r *contactRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Contact, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+contactCols+` FROM emergency_contact WHERE patient_id = $1 ORDER BY priority ASC, created_at ASC`,
		patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Contact
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, nil
}

// =========== Alert Repository ===========

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewAlertRepoPG(pool *pgxpool.Pool) AlertRepository {
	return &alertRepoPG{pool: pool}
}

func (r *alertRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const alertCols = `id, patient_id, message, location, status, outcomes, dispatched_at`

func (r *alertRepoPG) scan(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.PatientID, &a.Message, &a.Location, &a.Status, &a.Outcomes, &a.DispatchedAt)
	return &a, err
}

func (r *alertRepoPG) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_alert (id, patient_id, message, location, status, outcomes, dispatched_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.PatientID, a.Message, a.Location, a.Status, a.Outcomes, a.DispatchedAt)
	return err
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM emergency_alert WHERE id = $1`, id))
}

func (r *alertRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency_alert WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+alertCols+` FROM emergency_alert WHERE patient_id = $1
		ORDER BY dispatched_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *alertRepoPG) ListRecent(ctx context.Context, limit int) ([]*Alert, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+alertCols+` FROM emergency_alert ORDER BY dispatched_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}
