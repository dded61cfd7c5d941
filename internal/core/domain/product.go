package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity bounds stock levels and thresholds to what the INT columns hold.
const MaxQuantity = math.MaxInt32

type Product struct {
	ID              string
	SpaceID         string
	Name            string
	Price           decimal.Decimal
	CurrentStock    int
	MinimumQuantity int
	MaximumQuantity int
	Version         int // optimistic locking
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProductPatch carries the metadata fields of a partial update. Nil means unchanged.
type ProductPatch struct {
	Name            *string
	Price           *decimal.Decimal
	MinimumQuantity *int
	MaximumQuantity *int
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Price == nil && p.MinimumQuantity == nil && p.MaximumQuantity == nil
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

func (p Product) IsLowStock() bool {
	return p.CurrentStock <= p.MinimumQuantity
}

func (p Product) IsOutOfStock() bool {
	return p.CurrentStock == 0
}

// Value is price times current stock.
func (p Product) Value() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.CurrentStock)))
}

// Severity classifies a low-stock product. It returns false when the product
// is not low on stock.
//
//	critical: stock is 0
//	high:     stock <= 50% of the minimum
//	medium:   any other low-stock level
func (p Product) Severity() (Severity, bool) {
	if !p.IsLowStock() {
		return "", false
	}
	switch {
	case p.CurrentStock == 0:
		return SeverityCritical, true
	case 2*p.CurrentStock <= p.MinimumQuantity:
		return SeverityHigh, true
	default:
		return SeverityMedium, true
	}
}

// Validate checks the numeric and naming invariants shared by creation and update.
func (p Product) Validate() error {
	if p.Price.IsNegative() {
		return Validationf("price must be non-negative")
	}
	if p.CurrentStock < 0 {
		return Validationf("current stock must be non-negative")
	}
	if p.MinimumQuantity < 0 {
		return Validationf("minimum quantity must be non-negative")
	}
	if p.MaximumQuantity < 0 {
		return Validationf("maximum quantity must be non-negative")
	}
	if p.CurrentStock > MaxQuantity || p.MinimumQuantity > MaxQuantity || p.MaximumQuantity > MaxQuantity {
		return Validationf("quantities must not exceed %d", MaxQuantity)
	}
	if p.MinimumQuantity > p.MaximumQuantity {
		return Validationf("minimum quantity (%d) must not exceed maximum quantity (%d)",
			p.MinimumQuantity, p.MaximumQuantity)
	}
	return nil
}

// Apply merges the patch into a copy of the product and validates the result.
// Stock is never touched.
func (p Product) Apply(patch ProductPatch) (Product, error) {
	next := p
	if patch.Name != nil {
		name, err := NormalizeName("product", *patch.Name)
		if err != nil {
			return Product{}, err
		}
		next.Name = name
	}
	if patch.Price != nil {
		next.Price = *patch.Price
	}
	if patch.MinimumQuantity != nil {
		next.MinimumQuantity = *patch.MinimumQuantity
	}
	if patch.MaximumQuantity != nil {
		next.MaximumQuantity = *patch.MaximumQuantity
	}
	if err := next.Validate(); err != nil {
		return Product{}, err
	}
	return next, nil
}

// SameMetadata reports whether q carries the same editable fields as p.
func (p Product) SameMetadata(q Product) bool {
	return p.Name == q.Name &&
		p.Price.Equal(q.Price) &&
		p.MinimumQuantity == q.MinimumQuantity &&
		p.MaximumQuantity == q.MaximumQuantity
}
