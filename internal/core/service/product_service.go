package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

// NewProduct holds the fields accepted when a product is created.
type NewProduct struct {
	Name            string
	Price           decimal.Decimal
	CurrentStock    int
	MinimumQuantity int
	MaximumQuantity int
}

type ProductService struct {
	store       CatalogStore
	audit       *AuditService
	logger      *zap.Logger
	maxAttempts int
	now         func() time.Time
}

func NewProductService(store CatalogStore, audit *AuditService, logger *zap.Logger, maxAttempts int) *ProductService {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}
	return &ProductService{
		store:       store,
		audit:       audit,
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         utcNow,
	}
}

func (s *ProductService) CreateProduct(ctx context.Context, ownerID, spaceID string, in NewProduct) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "product.create", trace.WithAttributes(attribute.String("space.id", spaceID)))
	defer span.End()

	name, err := domain.NormalizeName("product", in.Name)
	if err != nil {
		return nil, err
	}

	now := s.now()
	product := domain.Product{
		ID:              uuid.NewString(),
		Name:            name,
		Price:           in.Price,
		CurrentStock:    in.CurrentStock,
		MinimumQuantity: in.MinimumQuantity,
		MaximumQuantity: in.MaximumQuantity,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := product.Validate(); err != nil {
		return nil, err
	}

	space, err := lookupSpace(ctx, s.store, ownerID, spaceID)
	if err != nil {
		return nil, err
	}
	product.SpaceID = space.ID

	if err := s.store.CreateProduct(ctx, product); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return nil, domain.NotFoundf("space %s not found", spaceID)
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		OwnerID:           ownerID,
		EntityType:        domain.EntityProduct,
		EntityID:          product.ID,
		Operation:         domain.OperationCreate,
		RelatedEntityType: domain.EntitySpace,
		RelatedEntityID:   space.ID,
		Details: map[string]any{
			"productName":     product.Name,
			"spaceName":       space.Name,
			"price":           product.Price.String(),
			"currentStock":    product.CurrentStock,
			"minimumQuantity": product.MinimumQuantity,
			"maximumQuantity": product.MaximumQuantity,
		},
	})
	s.logger.Info("product created",
		zap.String("space_id", space.ID),
		zap.String("product_id", product.ID),
		zap.String("name", product.Name),
	)
	return &product, nil
}

// UpdateProduct applies a metadata patch. Stock only moves through the ledger.
// A patch that changes nothing returns the stored product without writing.
func (s *ProductService) UpdateProduct(ctx context.Context, ownerID, spaceID, productID string, patch domain.ProductPatch) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "product.update", trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	for attempt := 1; ; attempt++ {
		product, space, err := lookupProduct(ctx, s.store, ownerID, spaceID, productID)
		if err != nil {
			return nil, err
		}

		next, err := product.Apply(patch)
		if err != nil {
			return nil, err
		}
		if next.SameMetadata(*product) {
			return product, nil
		}
		next.UpdatedAt = s.now()

		err = s.store.UpdateProduct(ctx, next)
		if errors.Is(err, port.ErrOptimisticLock) && attempt < s.maxAttempts {
			s.logger.Debug("product update conflict, retrying",
				zap.String("product_id", productID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			if errors.Is(err, port.ErrNotFound) {
				return nil, domain.NotFoundf("product %s not found in space %s", productID, spaceID)
			}
			return nil, fmt.Errorf("update product: %w", err)
		}
		next.Version++

		s.audit.Record(ctx, domain.AuditEntry{
			OwnerID:           ownerID,
			EntityType:        domain.EntityProduct,
			EntityID:          product.ID,
			Operation:         domain.OperationUpdate,
			RelatedEntityType: domain.EntitySpace,
			RelatedEntityID:   space.ID,
			Details: map[string]any{
				"productName": next.Name,
				"spaceName":   space.Name,
				"changes":     metadataChanges(*product, next),
			},
		})
		s.logger.Info("product updated",
			zap.String("product_id", product.ID),
			zap.Int("version", next.Version),
		)
		return &next, nil
	}
}

func metadataChanges(before, after domain.Product) map[string]any {
	changes := make(map[string]any)
	if before.Name != after.Name {
		changes["name"] = map[string]any{"old": before.Name, "new": after.Name}
	}
	if !before.Price.Equal(after.Price) {
		changes["price"] = map[string]any{"old": before.Price.String(), "new": after.Price.String()}
	}
	if before.MinimumQuantity != after.MinimumQuantity {
		changes["minimumQuantity"] = map[string]any{"old": before.MinimumQuantity, "new": after.MinimumQuantity}
	}
	if before.MaximumQuantity != after.MaximumQuantity {
		changes["maximumQuantity"] = map[string]any{"old": before.MaximumQuantity, "new": after.MaximumQuantity}
	}
	return changes
}

func (s *ProductService) DeleteProduct(ctx context.Context, ownerID, spaceID, productID string) error {
	ctx, span := tracer.Start(ctx, "product.delete", trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	product, space, err := lookupProduct(ctx, s.store, ownerID, spaceID, productID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteProduct(ctx, product.ID); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return domain.NotFoundf("product %s not found in space %s", productID, spaceID)
		}
		return fmt.Errorf("delete product: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEntry{
		OwnerID:           ownerID,
		EntityType:        domain.EntityProduct,
		EntityID:          product.ID,
		Operation:         domain.OperationDelete,
		RelatedEntityType: domain.EntitySpace,
		RelatedEntityID:   space.ID,
		Details: map[string]any{
			"productName":  product.Name,
			"spaceName":    space.Name,
			"finalStock":   product.CurrentStock,
			"productValue": product.Value().StringFixed(2),
		},
	})
	s.logger.Info("product deleted", zap.String("product_id", product.ID))
	return nil
}

// ListProducts returns the space's products, narrowed to names containing
// nameFilter (case-insensitive) when it is not blank.
func (s *ProductService) ListProducts(ctx context.Context, ownerID, spaceID, nameFilter string) ([]domain.Product, error) {
	space, err := lookupSpace(ctx, s.store, ownerID, spaceID)
	if err != nil {
		return nil, err
	}

	products, err := s.store.ListProducts(ctx, space.ID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(nameFilter))
	if needle == "" {
		return products, nil
	}
	filtered := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *ProductService) GetProduct(ctx context.Context, ownerID, spaceID, productID string) (*domain.Product, error) {
	product, _, err := lookupProduct(ctx, s.store, ownerID, spaceID, productID)
	return product, err
}

func (s *ProductService) LowStockProducts(ctx context.Context, ownerID, spaceID string) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx, ownerID, spaceID, "")
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0)
	for _, p := range products {
		if p.IsLowStock() {
			low = append(low, p)
		}
	}
	return low, nil
}
