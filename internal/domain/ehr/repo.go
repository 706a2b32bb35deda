package ehr

import (
	"context"

	"github.com/google/uuid"
)

type IntegrationRepository interface {
	Create(ctx context.Context, i *Integration) error
	GetByID(ctx context.Context, id uuid.UUID) (*Integration, error)
	Update(ctx context.Context, i *Integration) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Integration, error)
}

type SyncJobRepository interface {
	Create(ctx context.Context, j *SyncJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*SyncJob, error)
	Update(ctx context.Context, j *SyncJob) error
	ListByIntegration(ctx context.Context, integrationID uuid.UUID, limit, offset int) ([]*SyncJob, int, error)
}
