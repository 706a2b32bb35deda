package telemedicine

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	ListOpen(ctx context.Context) ([]*Session, error)
	ListWaitingByProvider(ctx context.Context, providerID uuid.UUID) ([]*Session, error)
}
