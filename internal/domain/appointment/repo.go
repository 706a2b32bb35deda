package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListBetween(ctx context.Context, from, to time.Time, limit, offset int) ([]*Appointment, int, error)
	ListUpcoming(ctx context.Context, patientID uuid.UUID, after time.Time, limit int) ([]*Appointment, error)
}
