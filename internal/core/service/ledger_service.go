package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/metrics"
	"github.com/rl1809/inventory/internal/port"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// LedgerStore is the storage the stock ledger writes through.
type LedgerStore interface {
	CatalogStore
	port.LedgerRepository
}

type LedgerService struct {
	store       LedgerStore
	cache       port.CacheRepository
	events      *EventDispatcher
	audit       *AuditService
	logger      *zap.Logger
	locks       *keyedMutex
	maxAttempts int
	now         func() time.Time
}

func NewLedgerService(
	store LedgerStore,
	cache port.CacheRepository,
	events *EventDispatcher,
	audit *AuditService,
	logger *zap.Logger,
	maxAttempts int,
) *LedgerService {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}
	return &LedgerService{
		store:       store,
		cache:       cache,
		events:      events,
		audit:       audit,
		logger:      logger,
		locks:       newKeyedMutex(),
		maxAttempts: maxAttempts,
		now:         utcNow,
	}
}

func (s *LedgerService) AddStock(ctx context.Context, ownerID, spaceID, productID string, quantity int, requestID string) (*domain.Product, error) {
	return s.adjust(ctx, ownerID, spaceID, productID, domain.DirectionAdd, quantity, requestID)
}

func (s *LedgerService) RemoveStock(ctx context.Context, ownerID, spaceID, productID string, quantity int, requestID string) (*domain.Product, error) {
	return s.adjust(ctx, ownerID, spaceID, productID, domain.DirectionRemove, quantity, requestID)
}

func idempotencyKey(ownerID, requestID string) string {
	return fmt.Sprintf("stock:%s:%s", ownerID, requestID)
}

func (s *LedgerService) adjust(
	ctx context.Context,
	ownerID, spaceID, productID string,
	dir domain.Direction,
	quantity int,
	requestID string,
) (_ *domain.Product, err error) {
	ctx, span := tracer.Start(ctx, "ledger."+string(dir), trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	defer func() {
		metrics.StockAdjustments.WithLabelValues(string(dir), adjustmentOutcome(err)).Inc()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if quantity <= 0 {
		return nil, domain.Validationf("quantity must be positive")
	}

	if requestID != "" {
		key := idempotencyKey(ownerID, requestID)
		claimed, claimErr := s.cache.SetIdempotency(ctx, key)
		if claimErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !claimed {
			return nil, ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); relErr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
			}
		}()
	}

	unlock, err := s.locks.Lock(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		product, space, err := lookupProduct(ctx, s.store, ownerID, spaceID, productID)
		if err != nil {
			return nil, err
		}

		next, adj, err := product.Adjust(dir, quantity, s.now())
		if err != nil {
			return nil, err
		}
		adj.ID = uuid.NewString()
		adj.OwnerID = ownerID
		adj.RequestID = requestID

		err = s.store.ApplyAdjustment(ctx, next, adj)
		if errors.Is(err, port.ErrOptimisticLock) && attempt < s.maxAttempts {
			metrics.OptimisticRetries.Inc()
			s.logger.Debug("stock write conflict, retrying",
				zap.String("product_id", productID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("apply adjustment: %w", err)
		}
		next.Version++

		s.committed(ctx, ownerID, space, *product, next, adj)
		return &next, nil
	}
}

func adjustmentOutcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInsufficientStock):
		return "rejected"
	default:
		return "error"
	}
}

// committed runs the side effects of a stored adjustment. None of them can
// fail the adjustment.
func (s *LedgerService) committed(ctx context.Context, ownerID string, space *domain.Space, before, after domain.Product, adj domain.StockAdjustment) {
	op := domain.OperationStockAdd
	quantityKey := "quantityAdded"
	if adj.Direction == domain.DirectionRemove {
		op = domain.OperationStockRemove
		quantityKey = "quantityRemoved"
	}

	s.audit.Record(ctx, domain.AuditEntry{
		OwnerID:           ownerID,
		EntityType:        domain.EntityProduct,
		EntityID:          after.ID,
		Operation:         op,
		RelatedEntityType: domain.EntitySpace,
		RelatedEntityID:   space.ID,
		Details: map[string]any{
			"productName": after.Name,
			"spaceName":   space.Name,
			"oldStock":    before.CurrentStock,
			"newStock":    after.CurrentStock,
			quantityKey:   adj.Quantity,
		},
	})

	events := []domain.Event{{
		Type:         domain.EventStockAdjusted,
		OwnerID:      ownerID,
		SpaceID:      space.ID,
		ProductID:    after.ID,
		ProductName:  after.Name,
		AdjustmentID: adj.ID,
		Direction:    adj.Direction,
		Quantity:     adj.Quantity,
		CurrentStock: after.CurrentStock,
		Minimum:      after.MinimumQuantity,
		OccurredAt:   adj.CreatedAt,
	}}
	if !before.IsLowStock() && after.IsLowStock() {
		severity, _ := after.Severity()
		metrics.LowStockTransitions.Inc()
		events = append(events, domain.Event{
			Type:         domain.EventLowStock,
			OwnerID:      ownerID,
			SpaceID:      space.ID,
			ProductID:    after.ID,
			ProductName:  after.Name,
			CurrentStock: after.CurrentStock,
			Minimum:      after.MinimumQuantity,
			Severity:     severity,
			OccurredAt:   adj.CreatedAt,
		})
		s.logger.Warn("product reached low stock",
			zap.String("product_id", after.ID),
			zap.Int("stock", after.CurrentStock),
			zap.Int("minimum", after.MinimumQuantity),
			zap.String("severity", string(severity)),
		)
	}
	if s.events != nil {
		s.events.Dispatch(ctx, events...)
	}

	s.logger.Info("stock adjusted",
		zap.String("product_id", after.ID),
		zap.String("direction", string(adj.Direction)),
		zap.Int("quantity", adj.Quantity),
		zap.Int("previous", before.CurrentStock),
		zap.Int("current", after.CurrentStock),
	)
}

// History returns the product's adjustments, newest first.
func (s *LedgerService) History(ctx context.Context, ownerID, spaceID, productID string, limit int) ([]domain.StockAdjustment, error) {
	product, _, err := lookupProduct(ctx, s.store, ownerID, spaceID, productID)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultHistoryLimit, maxHistoryLimit)
	adjustments, err := s.store.ListAdjustments(ctx, product.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	return adjustments, nil
}
