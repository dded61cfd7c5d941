package port

import (
	"context"
	"errors"

	"github.com/rl1809/inventory/internal/core/domain"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrDuplicate      = errors.New("duplicate record")
)

type SpaceRepository interface {
	// CreateSpace returns ErrDuplicate when the owner already has a space with that name
	CreateSpace(ctx context.Context, space domain.Space) error

	// GetSpace returns nil when the space does not exist
	GetSpace(ctx context.Context, spaceID string) (*domain.Space, error)

	// ListSpaces returns the owner's spaces, newest first
	ListSpaces(ctx context.Context, ownerID string) ([]domain.Space, error)

	CountSpaces(ctx context.Context, ownerID string) (int, error)

	// UpdateSpace returns ErrNotFound or ErrDuplicate
	UpdateSpace(ctx context.Context, space domain.Space) error

	// DeleteSpace removes the space, its products and their adjustments in one step
	// and reports how many products were removed
	DeleteSpace(ctx context.Context, spaceID string) (int, error)
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, product domain.Product) error

	// GetProduct returns nil when the product does not exist
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// ListProducts returns the space's products, newest first
	ListProducts(ctx context.Context, spaceID string) ([]domain.Product, error)

	ListProductsByOwner(ctx context.Context, ownerID string) ([]domain.Product, error)

	CountProducts(ctx context.Context, spaceID string) (int, error)

	// UpdateProduct writes metadata with a version check for optimistic locking
	UpdateProduct(ctx context.Context, product domain.Product) error

	DeleteProduct(ctx context.Context, productID string) error
}

type LedgerRepository interface {
	// ApplyAdjustment stores the new stock of product (version checked against
	// product.Version) and appends adj atomically
	ApplyAdjustment(ctx context.Context, product domain.Product, adj domain.StockAdjustment) error

	// ListAdjustments returns the product's adjustments, newest first
	ListAdjustments(ctx context.Context, productID string, limit int) ([]domain.StockAdjustment, error)
}

type AuditRepository interface {
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error

	// ListAudit returns the owner's entries matching filter, newest first
	ListAudit(ctx context.Context, ownerID string, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

// DatabaseRepository is the full storage surface a backend must provide.
type DatabaseRepository interface {
	SpaceRepository
	ProductRepository
	LedgerRepository
	AuditRepository

	Ping(ctx context.Context) error
	Close() error
}
