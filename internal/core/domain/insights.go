package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StockStatus struct {
	InStock    int `json:"inStock"`
	LowStock   int `json:"lowStock"`
	OutOfStock int `json:"outOfStock"`
}

type Overview struct {
	TotalSpaces             int             `json:"totalSpaces"`
	MaxSpaces               int             `json:"maxSpaces"`
	SpaceUtilization        float64         `json:"spaceUtilization"`
	TotalProducts           int             `json:"totalProducts"`
	TotalValue              decimal.Decimal `json:"totalValue"`
	LowStockCount           int             `json:"lowStockCount"`
	StockStatus             StockStatus     `json:"stockStatus"`
	AverageProductsPerSpace float64         `json:"averageProductsPerSpace"`
}

type PriceAnalysis struct {
	Minimum decimal.Decimal `json:"minimum"`
	Maximum decimal.Decimal `json:"maximum"`
	Average decimal.Decimal `json:"average"`
}

type StockAnalysis struct {
	Minimum int     `json:"minimum"`
	Maximum int     `json:"maximum"`
	Average float64 `json:"average"`
	Total   int     `json:"total"`
}

type Insights struct {
	HasData             bool                       `json:"hasData"`
	PriceAnalysis       PriceAnalysis              `json:"priceAnalysis"`
	StockAnalysis       StockAnalysis              `json:"stockAnalysis"`
	ValueBySpace        map[string]decimal.Decimal `json:"valueBySpace"`
	ProductCountBySpace map[string]int             `json:"productCountBySpace"`
}

type SeverityBreakdown struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
}

func (b SeverityBreakdown) Total() int {
	return b.Critical + b.High + b.Medium
}

type LowStockAlert struct {
	ProductID       string   `json:"productId"`
	ProductName     string   `json:"productName"`
	SpaceID         string   `json:"spaceId"`
	SpaceName       string   `json:"spaceName"`
	CurrentStock    int      `json:"currentStock"`
	MinimumQuantity int      `json:"minimumQuantity"`
	Severity        Severity `json:"severity"`
	StockDifference int      `json:"stockDifference"`
}

type LowStockAlerts struct {
	TotalAlerts       int                        `json:"totalAlerts"`
	SeverityBreakdown SeverityBreakdown          `json:"severityBreakdown"`
	AlertsBySpace     map[string][]LowStockAlert `json:"alertsBySpace"`
	HasAlerts         bool                       `json:"hasAlerts"`
}

type SpaceMetric struct {
	SpaceID       string          `json:"spaceId"`
	SpaceName     string          `json:"spaceName"`
	ProductCount  int             `json:"productCount"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	LowStockCount int             `json:"lowStockCount"`
	HealthScore   float64         `json:"healthScore"`
}

type SpaceMetricsSummary struct {
	TotalSpaces          int             `json:"totalSpaces"`
	TotalValue           decimal.Decimal `json:"totalValue"`
	TotalProducts        int             `json:"totalProducts"`
	AverageValuePerSpace decimal.Decimal `json:"averageValuePerSpace"`
}

type SpaceMetrics struct {
	HasData bool                `json:"hasData"`
	Spaces  []SpaceMetric       `json:"spaceMetrics"`
	Summary SpaceMetricsSummary `json:"summary"`
}

type TopProduct struct {
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	SpaceName    string          `json:"spaceName"`
	Price        decimal.Decimal `json:"price"`
	CurrentStock int             `json:"currentStock"`
	TotalValue   decimal.Decimal `json:"totalValue"`
	IsLowStock   bool            `json:"isLowStock"`
}

type TopProducts struct {
	HasData  bool         `json:"hasData"`
	Products []TopProduct `json:"topProducts"`
	SortedBy string       `json:"sortedBy"`
	Limit    int          `json:"limit"`
}

type InventorySnapshot struct {
	Date          time.Time       `json:"date"`
	TotalProducts int             `json:"totalProducts"`
	TotalSpaces   int             `json:"totalSpaces"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	LowStockCount int             `json:"lowStockCount"`
}

// DailyStockMovement sums the stock adjustments of one UTC day.
type DailyStockMovement struct {
	Date        string `json:"date"`
	Added       int    `json:"added"`
	Removed     int    `json:"removed"`
	Adjustments int    `json:"adjustments"`
}

type InventoryTrends struct {
	RequestedDays     int                  `json:"requestedDays"`
	HasHistoricalData bool                 `json:"hasHistoricalData"`
	CurrentSnapshot   InventorySnapshot    `json:"currentSnapshot"`
	StockMovement     []DailyStockMovement `json:"stockMovement"`
}
