package fhirresource

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *StoredResource) error
	GetByID(ctx context.Context, id uuid.UUID) (*StoredResource, error)
	GetByTypeAndFHIRID(ctx context.Context, resourceType, fhirID string) (*StoredResource, error)
	Update(ctx context.Context, r *StoredResource) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params SearchParams) ([]*StoredResource, int, error)
	ListTypes(ctx context.Context) (map[string]int, error)
}
