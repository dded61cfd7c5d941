package domain

import "time"

type EntityType string

const (
	EntitySpace   EntityType = "SPACE"
	EntityProduct EntityType = "PRODUCT"
)

type Operation string

const (
	OperationCreate      Operation = "CREATE"
	OperationUpdate      Operation = "UPDATE"
	OperationDelete      Operation = "DELETE"
	OperationStockAdd    Operation = "STOCK_ADD"
	OperationStockRemove Operation = "STOCK_REMOVE"
)

type AuditEntry struct {
	ID                string
	OwnerID           string
	EntityType        EntityType
	EntityID          string
	Operation         Operation
	Details           map[string]any
	RelatedEntityType EntityType
	RelatedEntityID   string
	IPAddress         string
	UserAgent         string
	Timestamp         time.Time
}

// AuditFilter narrows an activity listing. Zero values match everything.
type AuditFilter struct {
	EntityType EntityType
	Operation  Operation
	EntityID   string
	Since      time.Time
	Limit      int
}

func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// EntityTypes lists every entity type the audit trail records.
func EntityTypes() []EntityType {
	return []EntityType{EntitySpace, EntityProduct}
}

// Operations lists every operation the audit trail records.
func Operations() []Operation {
	return []Operation{OperationCreate, OperationUpdate, OperationDelete, OperationStockAdd, OperationStockRemove}
}

type AuditSummary struct {
	Create   int
	Update   int
	Delete   int
	Stock    int
	Total    int
	ByEntity map[EntityType]int
}

// ActivityTrends groups the audit entries of the last Days days.
type ActivityTrends struct {
	Days        int
	Daily       map[string]int // UTC date (2006-01-02) -> entries
	ByOperation map[Operation]int
	Total       int
}
