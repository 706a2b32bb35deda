package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MedicationRepository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	Update(ctx context.Context, m *Medication) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, activeOnly bool, limit, offset int) ([]*Medication, int, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
}

type DoseRepository interface {
	Create(ctx context.Context, d *DoseEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*DoseEntry, error)
	Update(ctx context.Context, d *DoseEntry) error
	ListByPatientBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*DoseEntry, error)
	ListUnresolvedBetween(ctx context.Context, from, to time.Time) ([]*DoseEntry, error)
}
