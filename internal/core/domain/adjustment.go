package domain

import "time"

type Direction string

const (
	DirectionAdd    Direction = "add"
	DirectionRemove Direction = "remove"
)

type StockAdjustment struct {
	ID             string
	ProductID      string
	SpaceID        string
	OwnerID        string
	Direction      Direction
	Quantity       int
	PreviousStock  int
	ResultingStock int
	RequestID      string
	CreatedAt      time.Time
}

// Adjust computes the product state after moving quantity units in the given
// direction. The returned adjustment still needs an ID and owner.
func (p Product) Adjust(dir Direction, quantity int, now time.Time) (Product, StockAdjustment, error) {
	if quantity <= 0 {
		return Product{}, StockAdjustment{}, Validationf("quantity must be positive")
	}
	if quantity > MaxQuantity {
		return Product{}, StockAdjustment{}, Validationf("quantity must not exceed %d", MaxQuantity)
	}

	next := p
	switch dir {
	case DirectionAdd:
		if quantity > MaxQuantity-p.CurrentStock {
			return Product{}, StockAdjustment{}, Validationf(
				"stock would exceed %d: current %d, adding %d", MaxQuantity, p.CurrentStock, quantity)
		}
		next.CurrentStock = p.CurrentStock + quantity
	case DirectionRemove:
		if quantity > p.CurrentStock {
			return Product{}, StockAdjustment{}, InsufficientStockf(
				"insufficient stock: current %d, requested %d", p.CurrentStock, quantity)
		}
		next.CurrentStock = p.CurrentStock - quantity
	default:
		return Product{}, StockAdjustment{}, Validationf("unknown direction %q", dir)
	}
	next.UpdatedAt = now

	adj := StockAdjustment{
		ProductID:      p.ID,
		SpaceID:        p.SpaceID,
		Direction:      dir,
		Quantity:       quantity,
		PreviousStock:  p.CurrentStock,
		ResultingStock: next.CurrentStock,
		CreatedAt:      now,
	}
	return next, adj, nil
}
