package handler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/inventory/internal/core/domain"
)

type createSpaceRequest struct {
	Name string `json:"name"`
}

type renameSpaceRequest struct {
	Name string `json:"name"`
}

type createProductRequest struct {
	Name            string           `json:"name"`
	Price           *decimal.Decimal `json:"price"`
	CurrentStock    int              `json:"currentStock"`
	MinimumQuantity int              `json:"minimumQuantity"`
	MaximumQuantity int              `json:"maximumQuantity"`
}

type updateProductRequest struct {
	Name            *string          `json:"name"`
	Price           *decimal.Decimal `json:"price"`
	MinimumQuantity *int             `json:"minimumQuantity"`
	MaximumQuantity *int             `json:"maximumQuantity"`
}

func (r updateProductRequest) patch() domain.ProductPatch {
	return domain.ProductPatch{
		Name:            r.Name,
		Price:           r.Price,
		MinimumQuantity: r.MinimumQuantity,
		MaximumQuantity: r.MaximumQuantity,
	}
}

type stockRequest struct {
	Quantity  int    `json:"quantity"`
	RequestID string `json:"requestId"`
}

type spaceResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OwnerID      string    `json:"ownerId"`
	OwnerName    string    `json:"ownerName"`
	ProductCount *int      `json:"productCount,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func newSpaceResponse(s domain.Space) spaceResponse {
	return spaceResponse{
		ID:        s.ID,
		Name:      s.Name,
		OwnerID:   s.OwnerID,
		OwnerName: s.OwnerName,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

type creationStatusResponse struct {
	CurrentCount   int  `json:"currentCount"`
	MaxSpaces      int  `json:"maxSpaces"`
	RemainingSlots int  `json:"remainingSlots"`
	CanCreate      bool `json:"canCreate"`
}

type productResponse struct {
	ID              string          `json:"id"`
	SpaceID         string          `json:"spaceId"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	CurrentStock    int             `json:"currentStock"`
	MinimumQuantity int             `json:"minimumQuantity"`
	MaximumQuantity int             `json:"maximumQuantity"`
	IsLowStock      bool            `json:"isLowStock"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:              p.ID,
		SpaceID:         p.SpaceID,
		Name:            p.Name,
		Price:           p.Price,
		CurrentStock:    p.CurrentStock,
		MinimumQuantity: p.MinimumQuantity,
		MaximumQuantity: p.MaximumQuantity,
		IsLowStock:      p.IsLowStock(),
		Version:         p.Version,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func newProductResponses(products []domain.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	return out
}

type adjustmentResponse struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"productId"`
	Direction      string    `json:"direction"`
	Quantity       int       `json:"quantity"`
	PreviousStock  int       `json:"previousStock"`
	ResultingStock int       `json:"resultingStock"`
	RequestID      string    `json:"requestId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newAdjustmentResponses(adjs []domain.StockAdjustment) []adjustmentResponse {
	out := make([]adjustmentResponse, 0, len(adjs))
	for _, a := range adjs {
		out = append(out, adjustmentResponse{
			ID:             a.ID,
			ProductID:      a.ProductID,
			Direction:      string(a.Direction),
			Quantity:       a.Quantity,
			PreviousStock:  a.PreviousStock,
			ResultingStock: a.ResultingStock,
			RequestID:      a.RequestID,
			CreatedAt:      a.CreatedAt,
		})
	}
	return out
}

type auditResponse struct {
	ID                string         `json:"id"`
	EntityType        string         `json:"entityType"`
	EntityID          string         `json:"entityId"`
	Operation         string         `json:"operation"`
	Details           map[string]any `json:"details,omitempty"`
	RelatedEntityType string         `json:"relatedEntityType,omitempty"`
	RelatedEntityID   string         `json:"relatedEntityId,omitempty"`
	IPAddress         string         `json:"ipAddress,omitempty"`
	UserAgent         string         `json:"userAgent,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

func newAuditResponses(entries []domain.AuditEntry) []auditResponse {
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{
			ID:                e.ID,
			EntityType:        string(e.EntityType),
			EntityID:          e.EntityID,
			Operation:         string(e.Operation),
			Details:           e.Details,
			RelatedEntityType: string(e.RelatedEntityType),
			RelatedEntityID:   e.RelatedEntityID,
			IPAddress:         e.IPAddress,
			UserAgent:         e.UserAgent,
			Timestamp:         e.Timestamp,
		})
	}
	return out
}

type auditSummaryResponse struct {
	TotalLogs        int `json:"totalLogs"`
	SpaceLogs        int `json:"spaceLogs"`
	ProductLogs      int `json:"productLogs"`
	CreateOperations int `json:"createOperations"`
	UpdateOperations int `json:"updateOperations"`
	DeleteOperations int `json:"deleteOperations"`
	StockOperations  int `json:"stockOperations"`
}

func newAuditSummaryResponse(s domain.AuditSummary) auditSummaryResponse {
	return auditSummaryResponse{
		TotalLogs:        s.Total,
		SpaceLogs:        s.ByEntity[domain.EntitySpace],
		ProductLogs:      s.ByEntity[domain.EntityProduct],
		CreateOperations: s.Create,
		UpdateOperations: s.Update,
		DeleteOperations: s.Delete,
		StockOperations:  s.Stock,
	}
}

type activityTrendsResponse struct {
	DailyActivity      map[string]int `json:"dailyActivity"`
	OperationBreakdown map[string]int `json:"operationBreakdown"`
	TotalActivities    int            `json:"totalActivities"`
	Period             string         `json:"period"`
}

func newActivityTrendsResponse(t domain.ActivityTrends) activityTrendsResponse {
	ops := make(map[string]int, len(t.ByOperation))
	for op, n := range t.ByOperation {
		ops[string(op)] = n
	}
	return activityTrendsResponse{
		DailyActivity:      t.Daily,
		OperationBreakdown: ops,
		TotalActivities:    t.Total,
		Period:             fmt.Sprintf("%d days", t.Days),
	}
}

type auditFiltersResponse struct {
	EntityTypes []domain.EntityType `json:"entityTypes"`
	Operations  []domain.Operation  `json:"operations"`
}
