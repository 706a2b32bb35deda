package medication

import (
	"context"
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

// =========== Medication Repository ===========

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const medicationCols = `id, patient_id, name, dosage, form, route, prescriber_id, instructions,
	refills_left, status, start_date, end_date, created_at, updated_at`

func (r *medicationRepoPG) scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.PatientID, &m.Name, &m.Dosage, &m.Form, &m.Route, &m.PrescriberID,
		&m.Instructions, &m.RefillsLeft, &m.Status, &m.StartDate, &m.EndDate, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication (id, patient_id, name, dosage, form, route, prescriber_id,
			instructions, refills_left, status, start_date, end_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		m.ID, m.PatientID, m.Name, m.Dosage, m.Form, m.Route, m.PrescriberID,
		m.Instructions, m.RefillsLeft, m.Status, m.StartDate, m.EndDate)
	return err
}

func (r *medicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return r.scanMedication(r.conn(ctx).QueryRow(ctx, `SELECT `+medicationCols+` FROM medication WHERE id = $1`, id))
}

func (r *medicationRepoPG) Update(ctx context.Context, m *Medication) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE medication SET name=$2, dosage=$3, form=$4, route=$5, instructions=$6,
			refills_left=$7, status=$8, start_date=$9, end_date=$10, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.Dosage, m.Form, m.Route, m.Instructions,
		m.RefillsLeft, m.Status, m.StartDate, m.EndDate)
	return err
}

func (r *medicationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM medication WHERE id = $1`, id)
	return err
}

func (r *medicationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, activeOnly bool, limit, offset int) ([]*Medication, int, error) {
	where := ` WHERE patient_id = $1`
	if activeOnly {
		where += ` AND status = 'active'`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medication`+where, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+medicationCols+` FROM medication`+where+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Medication
	for rows.Next() {
		m, err := r.scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, nil
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const prescriptionCols = `id, medication_id, patient_id, provider_id, quantity, refills,
	pharmacy, status, written_at, expires_at, created_at, updated_at`

func (r *prescriptionRepoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.MedicationID, &p.PatientID, &p.ProviderID, &p.Quantity, &p.Refills,
		&p.Pharmacy, &p.Status, &p.WrittenAt, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription (id, medication_id, patient_id, provider_id, quantity, refills,
			pharmacy, status, written_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.MedicationID, p.PatientID, p.ProviderID, p.Quantity, p.Refills,
		p.Pharmacy, p.Status, p.WrittenAt, p.ExpiresAt)
	return err
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+prescriptionCols+` FROM prescription WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription SET quantity=$2, refills=$3, pharmacy=$4, status=$5, expires_at=$6, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Quantity, p.Refills, p.Pharmacy, p.Status, p.ExpiresAt)
	return err
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+prescriptionCols+` FROM prescription WHERE patient_id = $1 ORDER BY written_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

// =========== Dose Repository ===========

type doseRepoPG struct{ pool *pgxpool.Pool }

func NewDoseRepoPG(pool *pgxpool.Pool) DoseRepository { return &doseRepoPG{pool: pool} }

func (r *doseRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const doseCols = `id, medication_id, patient_id, scheduled_time, taken, taken_at, skipped, created_at`

func (r *doseRepoPG) scanDose(row pgx.Row) (*DoseEntry, error) {
	var d DoseEntry
	err := row.Scan(&d.ID, &d.MedicationID, &d.PatientID, &d.ScheduledTime, &d.Taken, &d.TakenAt, &d.Skipped, &d.CreatedAt)
	return &d, err
}

func (r *doseRepoPG) Create(ctx context.Context, d *DoseEntry) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dose_entry (id, medication_id, patient_id, scheduled_time, taken, taken_at, skipped)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		d.ID, d.MedicationID, d.PatientID, d.ScheduledTime, d.Taken, d.TakenAt, d.Skipped)
	return err
}

func (r *doseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DoseEntry, error) {
	return r.scanDose(r.conn(ctx).QueryRow(ctx, `SELECT `+doseCols+` FROM dose_entry WHERE id = $1`, id))
}

func (r *doseRepoPG) Update(ctx context.Context, d *DoseEntry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE dose_entry SET taken=$2, taken_at=$3, skipped=$4 WHERE id = $1`,
		d.ID, d.Taken, d.TakenAt, d.Skipped)
	return err
}

func (r *doseRepoPG) ListByPatientBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*DoseEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+doseCols+` FROM dose_entry
		WHERE patient_id = $1 AND scheduled_time >= $2 AND scheduled_time < $3
		ORDER BY scheduled_time ASC`,
		patientID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DoseEntry
	for rows.Next() {
		d, err := r.scanDose(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, nil
}

func (r *doseRepoPG) ListUnresolvedBetween(ctx context.Context, from, to time.Time) ([]*DoseEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+doseCols+` FROM dose_entry
		WHERE scheduled_time >= $1 AND scheduled_time < $2 AND NOT taken AND NOT skipped
		ORDER BY scheduled_time ASC`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DoseEntry
	for rows.Next() {
		d, err := r.scanDose(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, nil
}
