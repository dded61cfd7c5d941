package domain

import "time"

type EventType string

const (
	EventStockAdjusted EventType = "stock.adjusted"
	EventLowStock      EventType = "stock.low"
)

// Event is published after a committed stock adjustment.
type Event struct {
	Type         EventType `json:"type"`
	OwnerID      string    `json:"ownerId"`
	SpaceID      string    `json:"spaceId"`
	ProductID    string    `json:"productId"`
	ProductName  string    `json:"productName"`
	AdjustmentID string    `json:"adjustmentId,omitempty"`
	Direction    Direction `json:"direction,omitempty"`
	Quantity     int       `json:"quantity,omitempty"`
	CurrentStock int       `json:"currentStock"`
	Minimum      int       `json:"minimumQuantity"`
	Severity     Severity  `json:"severity,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}
