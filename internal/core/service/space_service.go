package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

const DefaultMaxSpacesPerOwner = 10

type SpaceService struct {
	store     CatalogStore
	audit     *AuditService
	logger    *zap.Logger
	maxSpaces int
	owners    *keyedMutex // serializes creation per owner so the limit holds
	now       func() time.Time
}

func NewSpaceService(store CatalogStore, audit *AuditService, logger *zap.Logger, maxSpaces int) *SpaceService {
	if maxSpaces <= 0 {
		maxSpaces = DefaultMaxSpacesPerOwner
	}
	return &SpaceService{
		store:     store,
		audit:     audit,
		logger:    logger,
		maxSpaces: maxSpaces,
		owners:    newKeyedMutex(),
		now:       utcNow,
	}
}

func (s *SpaceService) MaxSpaces() int {
	return s.maxSpaces
}

func (s *SpaceService) CreateSpace(ctx context.Context, ownerID, ownerName, name string) (*domain.Space, error) {
	ctx, span := tracer.Start(ctx, "space.create", trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	name, err := domain.NormalizeName("space", name)
	if err != nil {
		return nil, err
	}

	unlock, err := s.owners.Lock(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	count, err := s.store.CountSpaces(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count spaces: %w", err)
	}
	if count >= s.maxSpaces {
		return nil, domain.Validationf("maximum limit of %d spaces reached", s.maxSpaces)
	}

	now := s.now()
	space := domain.Space{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   ownerID,
		OwnerName: ownerName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSpace(ctx, space); err != nil {
		if errors.Is(err, port.ErrDuplicate) {
			return nil, domain.Validationf("space with name %q already exists", name)
		}
		return nil, fmt.Errorf("create space: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		OwnerID:    ownerID,
		EntityType: domain.EntitySpace,
		EntityID:   space.ID,
		Operation:  domain.OperationCreate,
		Details: map[string]any{
			"spaceName": space.Name,
			"ownerName": ownerName,
		},
	})
	s.logger.Info("space created",
		zap.String("owner_id", ownerID),
		zap.String("space_id", space.ID),
		zap.String("name", space.Name),
	)
	return &space, nil
}

func (s *SpaceService) RenameSpace(ctx context.Context, ownerID, spaceID, newName string) (*domain.Space, error) {
	ctx, span := tracer.Start(ctx, "space.rename", trace.WithAttributes(attribute.String("space.id", spaceID)))
	defer span.End()

	name, err := domain.NormalizeName("space", newName)
	if err != nil {
		return nil, err
	}

	space, err := lookupSpace(ctx, s.store, ownerID, spaceID)
	if err != nil {
		return nil, err
	}
	if space.Name == name {
		return space, nil
	}

	oldName := space.Name
	space.Name = name
	space.UpdatedAt = s.now()
	if err := s.store.UpdateSpace(ctx, *space); err != nil {
		switch {
		case errors.Is(err, port.ErrDuplicate):
			return nil, domain.Validationf("space with name %q already exists", name)
		case errors.Is(err, port.ErrNotFound):
			return nil, domain.NotFoundf("space %s not found", spaceID)
		}
		return nil, fmt.Errorf("update space: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		OwnerID:    ownerID,
		EntityType: domain.EntitySpace,
		EntityID:   space.ID,
		Operation:  domain.OperationUpdate,
		Details: map[string]any{
			"oldName": oldName,
			"newName": name,
		},
	})
	s.logger.Info("space renamed",
		zap.String("space_id", space.ID),
		zap.String("old_name", oldName),
		zap.String("new_name", name),
	)
	return space, nil
}

// DeleteSpace removes the space together with its products and their
// adjustment history, returning how many products went with it.
func (s *SpaceService) DeleteSpace(ctx context.Context, ownerID, spaceID string) (int, error) {
	ctx, span := tracer.Start(ctx, "space.delete", trace.WithAttributes(attribute.String("space.id", spaceID)))
	defer span.End()

	space, err := lookupSpace(ctx, s.store, ownerID, spaceID)
	if err != nil {
		return 0, err
	}

	removed, err := s.store.DeleteSpace(ctx, space.ID)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return 0, domain.NotFoundf("space %s not found", spaceID)
		}
		return 0, fmt.Errorf("delete space: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		OwnerID:    ownerID,
		EntityType: domain.EntitySpace,
		EntityID:   space.ID,
		Operation:  domain.OperationDelete,
		Details: map[string]any{
			"spaceName":       space.Name,
			"productsDeleted": removed,
		},
	})
	s.logger.Info("space deleted",
		zap.String("space_id", space.ID),
		zap.Int("products_deleted", removed),
	)
	return removed, nil
}

func (s *SpaceService) ListSpaces(ctx context.Context, ownerID string) ([]domain.Space, error) {
	spaces, err := s.store.ListSpaces(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	return spaces, nil
}

func (s *SpaceService) GetSpace(ctx context.Context, ownerID, spaceID string) (*domain.SpaceSummary, error) {
	space, err := lookupSpace(ctx, s.store, ownerID, spaceID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountProducts(ctx, space.ID)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	return &domain.SpaceSummary{Space: *space, ProductCount: count}, nil
}

func (s *SpaceService) CreationStatus(ctx context.Context, ownerID string) (domain.CreationStatus, error) {
	count, err := s.store.CountSpaces(ctx, ownerID)
	if err != nil {
		return domain.CreationStatus{}, fmt.Errorf("count spaces: %w", err)
	}
	remaining := max(s.maxSpaces-count, 0)
	return domain.CreationStatus{
		CurrentCount:   count,
		MaxSpaces:      s.maxSpaces,
		RemainingSlots: remaining,
		CanCreate:      remaining > 0,
	}, nil
}
