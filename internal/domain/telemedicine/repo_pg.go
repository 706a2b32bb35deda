package telemedicine

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const sessionCols = `id, appointment_id, patient_id, provider_id, status, join_url, room_token,
	patient_joined, provider_joined, started_at, ended_at, created_at, updated_at`

func (r *repoPG) scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.AppointmentID, &s.PatientID, &s.ProviderID, &s.Status, &s.JoinURL,
		&s.RoomToken, &s.PatientJoined, &s.ProviderJoined, &s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *repoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO telemedicine_session (id, appointment_id, patient_id, provider_id, status,
			join_url, room_token, patient_joined, provider_joined, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.AppointmentID, s.PatientID, s.ProviderID, s.Status,
		s.JoinURL, s.RoomToken, s.PatientJoined, s.ProviderJoined, s.StartedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return r.scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM telemedicine_session WHERE id = $1`, id))
}

func (r *repoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Session, error) {
	return r.scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM telemedicine_session WHERE appointment_id = $1 ORDER BY created_at DESC LIMIT 1`,
		appointmentID))
}

func (r *repoPG) Update(ctx context.Context, s *Session) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE telemedicine_session SET status=$2, patient_joined=$3, provider_joined=$4,
			started_at=$5, ended_at=$6, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Status, s.PatientJoined, s.ProviderJoined, s.StartedAt, s.EndedAt)
	return err
}

func (r *repoPG) ListOpen(ctx context.Context) ([]*Session, error) {
	return r.listWhere(ctx, `WHERE status IN ('waiting','in-progress')`)
}

func (r *repoPG) ListWaitingByProvider(ctx context.Context, providerID uuid.UUID) ([]*Session, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+sessionCols+` FROM telemedicine_session WHERE provider_id = $1 AND status = 'waiting' ORDER BY created_at ASC`,
		providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) listWhere(ctx context.Context, where string) ([]*Session, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+sessionCols+` FROM telemedicine_session `+where+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) collect(rows pgx.Rows) ([]*Session, error) {
	var items []*Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}
