package core

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines aggregate persistence. Resources are always saved together with
// their characteristics in one atomic call.
type Repository interface {
	// FindByID loads the resource row without its characteristics.
	FindByID(ctx context.Context, id uuid.UUID) (*Resource, error)
	FindByIDWithCharacteristics(ctx context.Context, id uuid.UUID) (*Resource, error)

	FindAll(ctx context.Context, page PageRequest) (*Page[*Resource], error)
	FindByCountryCode(ctx context.Context, countryCode string, page PageRequest) (*Page[*Resource], error)
	FindByType(ctx context.Context, t ResourceType, page PageRequest) (*Page[*Resource], error)
	FindByCountryCodeAndType(ctx context.Context, countryCode string, t ResourceType, page PageRequest) (*Page[*Resource], error)
	FindAllWithCharacteristics(ctx context.Context) ([]*Resource, error)
	Count(ctx context.Context) (int64, error)

	// Save inserts a new resource (version 0) or updates an existing one with a
	// compare-and-swap on r.Version. On success r carries the stored id, timestamps and
	// version. A stale version yields ErrConcurrencyConflict and nothing is written.
	Save(ctx context.Context, r *Resource) error
	// Delete removes the resource and all of its characteristics.
	Delete(ctx context.Context, r *Resource) error
	Ping(ctx context.Context) error
}

// EventPublisher defines the best-effort notification channel. Implementations may
// deliver asynchronously; a nil error only means the event was handed off.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event, batchSize int) error
	Close() error
}
