package service

import (
	"context"
	"errors"
	"fmt"

	"resource-management-service/internal/core"
	"resource-management-service/internal/platform/logger"

	"github.com/google/uuid"
)

type ResourceService struct {
	repo            core.Repository
	publisher       core.EventPublisher
	log             *logger.Logger
	exportBatchSize int
}

// Option customises a ResourceService.
type Option func(*ResourceService)

// WithExportBatchSize overrides the number of envelopes per export batch.
func WithExportBatchSize(n int) Option {
	return func(s *ResourceService) {
		if n > 0 {
			s.exportBatchSize = n
		}
	}
}

func NewResourceService(r core.Repository, p core.EventPublisher, log *logger.Logger, opts ...Option) *ResourceService {
	s := &ResourceService{
		repo:            r,
		publisher:       p,
		log:             log,
		exportBatchSize: core.DefaultExportBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates req, persists a new resource and announces it.
func (s *ResourceService) Create(ctx context.Context, req core.CreateResourceRequest) (*core.ResourceSnapshot, error) {
	s.log.Info("creating resource", "type", req.Type, "country_code", req.CountryCode)

	if err := core.ValidateCreate(req); err != nil {
		return nil, err
	}
	if err := core.CheckDuplicateCharacteristics(req.Characteristics); err != nil {
		return nil, err
	}

	resource := core.NewResource(req.Type, req.CountryCode, *req.Location)
	for _, c := range core.NewCharacteristics(req.Characteristics) {
		resource.AddCharacteristic(c)
	}

	if err := s.repo.Save(ctx, resource); err != nil {
		return nil, fmt.Errorf("save resource: %w", err)
	}
	s.log.Info("resource created", "resource_id", resource.ID)

	snapshot := resource.Snapshot()
	s.publish(ctx, core.EventResourceCreated, snapshot)

	return snapshot, nil
}

func (s *ResourceService) Get(ctx context.Context, id uuid.UUID) (*core.ResourceSnapshot, error) {
	resource, err := s.repo.FindByIDWithCharacteristics(ctx, id)
	if err != nil {
		return nil, err
	}
	return resource.Snapshot(), nil
}

// List picks the narrowest query matching the filters that are set.
func (s *ResourceService) List(ctx context.Context, filter core.ListFilter, page core.PageRequest) (*core.Page[*core.ResourceSnapshot], error) {
	if err := core.ValidateFilter(filter); err != nil {
		return nil, err
	}
	page = page.Normalize()

	var (
		result *core.Page[*core.Resource]
		err    error
	)
	switch {
	case filter.CountryCode != "" && filter.Type != "":
		result, err = s.repo.FindByCountryCodeAndType(ctx, filter.CountryCode, filter.Type, page)
	case filter.CountryCode != "":
		result, err = s.repo.FindByCountryCode(ctx, filter.CountryCode, page)
	case filter.Type != "":
		result, err = s.repo.FindByType(ctx, filter.Type, page)
	default:
		result, err = s.repo.FindAll(ctx, page)
	}
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	return core.MapPage(result, (*core.Resource).Snapshot), nil
}

// Update applies req to the resource identified by id. When version is non-nil it must
// match the stored version, otherwise nothing is changed.
func (s *ResourceService) Update(ctx context.Context, id uuid.UUID, version *int64, req core.UpdateResourceRequest) (*core.ResourceSnapshot, error) {
	s.log.Info("updating resource", "resource_id", id)

	if err := core.ValidateUpdate(req); err != nil {
		return nil, err
	}
	if err := core.CheckDuplicateCharacteristics(req.Characteristics); err != nil {
		return nil, err
	}

	resource, err := s.repo.FindByIDWithCharacteristics(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := core.CheckVersion(version, resource.Version); err != nil {
		return nil, err
	}

	if req.Location != nil {
		resource.Location = *req.Location
	}
	if req.Characteristics != nil {
		resource.ReplaceCharacteristics(core.NewCharacteristics(req.Characteristics))
	}

	if err := s.repo.Save(ctx, resource); err != nil {
		return nil, fmt.Errorf("save resource: %w", err)
	}
	s.log.Info("resource updated", "resource_id", id, "version", resource.Version)

	snapshot := resource.Snapshot()
	s.publish(ctx, core.EventResourceUpdated, snapshot)

	return snapshot, nil
}

// Delete removes the resource and announces the state it had before removal.
func (s *ResourceService) Delete(ctx context.Context, id uuid.UUID) error {
	s.log.Info("deleting resource", "resource_id", id)

	resource, err := s.repo.FindByIDWithCharacteristics(ctx, id)
	if err != nil {
		return err
	}
	snapshot := resource.Snapshot()

	if err := s.repo.Delete(ctx, resource); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	s.log.Info("resource deleted", "resource_id", id)

	s.publish(ctx, core.EventResourceDeleted, snapshot)
	return nil
}

// ExportAll publishes every resource in bounded batches and returns how many were exported.
// Batch failures are logged only; storage is never touched.
func (s *ResourceService) ExportAll(ctx context.Context) (int, error) {
	s.log.Info("starting bulk export")

	resources, err := s.repo.FindAllWithCharacteristics(ctx)
	if err != nil {
		return 0, fmt.Errorf("load resources for export: %w", err)
	}

	events := make([]core.Event, 0, len(resources))
	for _, r := range resources {
		events = append(events, core.NewEvent(core.EventResourceExported, r.Snapshot()))
	}

	if err := s.publisher.PublishBatch(context.WithoutCancel(ctx), events, s.exportBatchSize); err != nil {
		s.log.Error("bulk export incomplete", "error", err)
	}

	s.log.Info("bulk export completed", "total", len(events))
	return len(events), nil
}

// publish hands the event off without letting a failure reach the caller.
func (s *ResourceService) publish(ctx context.Context, t core.EventType, snapshot *core.ResourceSnapshot) {
	event := core.NewEvent(t, snapshot)
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.log.Error("failed to publish event",
			"event_type", t,
			"resource_id", snapshot.ID,
			"error", err,
		)
	}
}

// IsClientError reports whether err is caused by the caller rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrValidation) ||
		errors.Is(err, core.ErrDuplicateCharacteristic) ||
		errors.Is(err, core.ErrConcurrencyConflict)
}
