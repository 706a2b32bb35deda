package emergency

import (
	"context"

	"github.com/google/uuid"
)

type ContactRepository interface {
	Create(ctx context.Context, c *Contact) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contact, error)
	Update(ctx context.Context, c *Contact) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByPatient returns contacts ordered by priority ascending.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Contact, error)
}

type AlertRepository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error)
	ListRecent(ctx context.Context, limit int) ([]*Alert, error)
}
