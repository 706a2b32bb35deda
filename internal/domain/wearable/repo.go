package wearable

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type IntegrationRepository interface {
	Create(ctx context.Context, i *Integration) error
	GetByID(ctx context.Context, id uuid.UUID) (*Integration, error)
	GetByPatientAndProvider(ctx context.Context, patientID uuid.UUID, provider string) (*Integration, error)
	Update(ctx context.Context, i *Integration) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Integration, error)
}

type DeviceRepository interface {
	Upsert(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	// ListConnectedByPatient returns devices whose integration is
	// currently connected. Devices under disabled or disconnected
	// integrations are excluded at the query level.
	ListConnectedByPatient(ctx context.Context, patientID uuid.UUID) ([]*Device, error)
}

type MeasurementRepository interface {
	CreateBatch(ctx context.Context, batch []*Measurement) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, kind string, from, to time.Time, limit, offset int) ([]*Measurement, int, error)
}
