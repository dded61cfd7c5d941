package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

const (
	defaultTopProductsLimit = 5
	maxTopProductsLimit     = 100
)

const (
	SortByValue = "value"
	SortByStock = "stock"
	SortByPrice = "price"
)

// InsightsStore is the read side the aggregator recomputes from. Stock
// movement over time comes from the audit trail.
type InsightsStore interface {
	ListSpaces(ctx context.Context, ownerID string) ([]domain.Space, error)
	ListProductsByOwner(ctx context.Context, ownerID string) ([]domain.Product, error)
	ListAudit(ctx context.Context, ownerID string, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

var _ InsightsStore = (port.DatabaseRepository)(nil)

// InsightsService derives read models from the current spaces and products on
// every call.
type InsightsService struct {
	store     InsightsStore
	maxSpaces int
	now       func() time.Time
}

func NewInsightsService(store InsightsStore, maxSpaces int) *InsightsService {
	if maxSpaces <= 0 {
		maxSpaces = DefaultMaxSpacesPerOwner
	}
	return &InsightsService{store: store, maxSpaces: maxSpaces, now: utcNow}
}

type inventory struct {
	spaces   []domain.Space
	products []domain.Product
	byID     map[string]domain.Space
}

func (s *InsightsService) load(ctx context.Context, ownerID string) (*inventory, error) {
	ctx, span := tracer.Start(ctx, "insights.load", trace.WithAttributes(attribute.String("owner.id", ownerID)))
	defer span.End()

	spaces, err := s.store.ListSpaces(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	products, err := s.store.ListProductsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	inv := &inventory{spaces: spaces, byID: make(map[string]domain.Space, len(spaces))}
	for _, sp := range spaces {
		inv.byID[sp.ID] = sp
	}
	// Products whose space vanished between the two reads are ignored.
	inv.products = make([]domain.Product, 0, len(products))
	for _, p := range products {
		if _, ok := inv.byID[p.SpaceID]; ok {
			inv.products = append(inv.products, p)
		}
	}
	return inv, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func (s *InsightsService) Overview(ctx context.Context, ownerID string) (domain.Overview, error) {
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return domain.Overview{}, err
	}
	return overview(inv, s.maxSpaces), nil
}

func overview(inv *inventory, maxSpaces int) domain.Overview {
	out := domain.Overview{
		TotalSpaces:   len(inv.spaces),
		MaxSpaces:     maxSpaces,
		TotalProducts: len(inv.products),
		TotalValue:    decimal.Zero,
	}
	for _, p := range inv.products {
		out.TotalValue = out.TotalValue.Add(p.Value())
		switch {
		case p.IsOutOfStock():
			out.StockStatus.OutOfStock++
		case p.IsLowStock():
			out.StockStatus.LowStock++
		default:
			out.StockStatus.InStock++
		}
		if p.IsLowStock() {
			out.LowStockCount++
		}
	}
	out.TotalValue = out.TotalValue.Round(2)
	if maxSpaces > 0 {
		out.SpaceUtilization = round2(float64(out.TotalSpaces) / float64(maxSpaces) * 100)
	}
	if out.TotalSpaces > 0 {
		out.AverageProductsPerSpace = round2(float64(out.TotalProducts) / float64(out.TotalSpaces))
	}
	return out
}

// ValueBySpace maps every space name, empty spaces included, to the value of
// its stock.
func (s *InsightsService) ValueBySpace(ctx context.Context, ownerID string) (map[string]decimal.Decimal, error) {
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return valueBySpace(inv), nil
}

func valueBySpace(inv *inventory) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal, len(inv.spaces))
	for _, sp := range inv.spaces {
		values[sp.Name] = decimal.Zero
	}
	for _, p := range inv.products {
		name := inv.byID[p.SpaceID].Name
		values[name] = values[name].Add(p.Value())
	}
	for name, v := range values {
		values[name] = v.Round(2)
	}
	return values
}

func (s *InsightsService) ProductCountBySpace(ctx context.Context, ownerID string) (map[string]int, error) {
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return productCountBySpace(inv), nil
}

func productCountBySpace(inv *inventory) map[string]int {
	counts := make(map[string]int, len(inv.spaces))
	for _, sp := range inv.spaces {
		counts[sp.Name] = 0
	}
	for _, p := range inv.products {
		counts[inv.byID[p.SpaceID].Name]++
	}
	return counts
}

func (s *InsightsService) PriceAnalysis(ctx context.Context, ownerID string) (domain.PriceAnalysis, error) {
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return domain.PriceAnalysis{}, err
	}
	return priceAnalysis(inv.products), nil
}

func priceAnalysis(products []domain.Product) domain.PriceAnalysis {
	if len(products) == 0 {
		return domain.PriceAnalysis{Minimum: decimal.Zero, Maximum: decimal.Zero, Average: decimal.Zero}
	}
	minPrice, maxPrice, sum := products[0].Price, products[0].Price, decimal.Zero
	for _, p := range products {
		minPrice = decimal.Min(minPrice, p.Price)
		maxPrice = decimal.Max(maxPrice, p.Price)
		sum = sum.Add(p.Price)
	}
	return domain.PriceAnalysis{
		Minimum: minPrice,
		Maximum: maxPrice,
		Average: sum.Div(decimal.NewFromInt(int64(len(products)))).Round(2),
	}
}

func (s *InsightsService) StockAnalysis(ctx context.Context, ownerID string) (domain.StockAnalysis, error) {
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return domain.StockAnalysis{}, err
	}
	return stockAnalysis(inv.products), nil
}

func stockAnalysis(products []domain.Product) domain.StockAnalysis {
	if len(products) == 0 {
		return domain.StockAnalysis{}
	}
	out := domain.StockAnalysis{Minimum: products[0].CurrentStock, Maximum: products[0].CurrentStock}
	for _, p := range products {
		out.Minimum = min(out.Minimum, p.CurrentStock)
		out.Maximum = max(out.Maximum, p.CurrentStock)
		out.Total += p.CurrentStock
	}
	out.Average = round2(float64(out.Total) / float64(len(products)))
	return out
}

func (s *InsightsService) LowStockAlerts(ctx context.Context, ownerID string) (domain.LowStockAlerts, error) {
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return domain.LowStockAlerts{}, err
	}
	return lowStockAlerts(inv), nil
}

func lowStockAlerts(inv *inventory) domain.LowStockAlerts {
	out := domain.LowStockAlerts{AlertsBySpace: make(map[string][]domain.LowStockAlert)}
	for _, p := range inv.products {
		severity, low := p.Severity()
		if !low {
			continue
		}
		switch severity {
		case domain.SeverityCritical:
			out.SeverityBreakdown.Critical++
		case domain.SeverityHigh:
			out.SeverityBreakdown.High++
		default:
			out.SeverityBreakdown.Medium++
		}
		space := inv.byID[p.SpaceID]
		out.AlertsBySpace[space.Name] = append(out.AlertsBySpace[space.Name], domain.LowStockAlert{
			ProductID:       p.ID,
			ProductName:     p.Name,
			SpaceID:         space.ID,
			SpaceName:       space.Name,
			CurrentStock:    p.CurrentStock,
			MinimumQuantity: p.MinimumQuantity,
			Severity:        severity,
			StockDifference: p.MinimumQuantity - p.CurrentStock,
		})
	}
	out.TotalAlerts = out.SeverityBreakdown.Total()
	out.HasAlerts = out.TotalAlerts > 0
	return out
}

func (s *InsightsService) Insights(ctx context.Context, ownerID string) (domain.Insights, error) {
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return domain.Insights{}, err
	}
	return domain.Insights{
		HasData:             len(inv.products) > 0,
		PriceAnalysis:       priceAnalysis(inv.products),
		StockAnalysis:       stockAnalysis(inv.products),
		ValueBySpace:        valueBySpace(inv),
		ProductCountBySpace: productCountBySpace(inv),
	}, nil
}

// SpaceMetrics scores each space by stock health:
// 100 - 30*lowRatio - 50*outRatio, floored at 0, 100 for an empty space.
func (s *InsightsService) SpaceMetrics(ctx context.Context, ownerID string) (domain.SpaceMetrics, error) {
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return domain.SpaceMetrics{}, err
	}
	return spaceMetrics(inv), nil
}

func spaceMetrics(inv *inventory) domain.SpaceMetrics {
	bySpace := make(map[string][]domain.Product, len(inv.spaces))
	for _, p := range inv.products {
		bySpace[p.SpaceID] = append(bySpace[p.SpaceID], p)
	}

	out := domain.SpaceMetrics{
		HasData: len(inv.spaces) > 0,
		Spaces:  make([]domain.SpaceMetric, 0, len(inv.spaces)),
		Summary: domain.SpaceMetricsSummary{
			TotalSpaces:          len(inv.spaces),
			TotalValue:           decimal.Zero,
			TotalProducts:        len(inv.products),
			AverageValuePerSpace: decimal.Zero,
		},
	}
	for _, sp := range inv.spaces {
		m := domain.SpaceMetric{SpaceID: sp.ID, SpaceName: sp.Name, TotalValue: decimal.Zero, HealthScore: 100}
		outOfStock := 0
		for _, p := range bySpace[sp.ID] {
			m.ProductCount++
			m.TotalValue = m.TotalValue.Add(p.Value())
			if p.IsLowStock() {
				m.LowStockCount++
			}
			if p.IsOutOfStock() {
				outOfStock++
			}
		}
		if m.ProductCount > 0 {
			lowRatio := float64(m.LowStockCount) / float64(m.ProductCount)
			outRatio := float64(outOfStock) / float64(m.ProductCount)
			m.HealthScore = round2(math.Max(0, 100-30*lowRatio-50*outRatio))
		}
		m.TotalValue = m.TotalValue.Round(2)
		out.Summary.TotalValue = out.Summary.TotalValue.Add(m.TotalValue)
		out.Spaces = append(out.Spaces, m)
	}
	sort.SliceStable(out.Spaces, func(i, j int) bool {
		return out.Spaces[i].TotalValue.GreaterThan(out.Spaces[j].TotalValue)
	})
	if len(inv.spaces) > 0 {
		out.Summary.AverageValuePerSpace = out.Summary.TotalValue.
			Div(decimal.NewFromInt(int64(len(inv.spaces)))).Round(2)
	}
	return out
}

// TopProducts ranks products by value, stock or price. Unknown sort keys fall
// back to value.
func (s *InsightsService) TopProducts(ctx context.Context, ownerID, sortBy string, limit int) (domain.TopProducts, error) {
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return domain.TopProducts{}, err
	}
	return topProducts(inv, sortBy, limit), nil
}

func topProducts(inv *inventory, sortBy string, limit int) domain.TopProducts {
	limit = clampLimit(limit, defaultTopProductsLimit, maxTopProductsLimit)

	var less func(a, b domain.Product) bool
	switch sortBy {
	case SortByStock:
		less = func(a, b domain.Product) bool { return a.CurrentStock > b.CurrentStock }
	case SortByPrice:
		less = func(a, b domain.Product) bool { return a.Price.GreaterThan(b.Price) }
	default:
		sortBy = SortByValue
		less = func(a, b domain.Product) bool { return a.Value().GreaterThan(b.Value()) }
	}

	ranked := make([]domain.Product, len(inv.products))
	copy(ranked, inv.products)
	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := domain.TopProducts{
		HasData:  len(ranked) > 0,
		Products: make([]domain.TopProduct, 0, len(ranked)),
		SortedBy: sortBy,
		Limit:    limit,
	}
	for _, p := range ranked {
		out.Products = append(out.Products, domain.TopProduct{
			ProductID:    p.ID,
			ProductName:  p.Name,
			SpaceName:    inv.byID[p.SpaceID].Name,
			Price:        p.Price,
			CurrentStock: p.CurrentStock,
			TotalValue:   p.Value().Round(2),
			IsLowStock:   p.IsLowStock(),
		})
	}
	return out
}

// Trends pairs the current inventory snapshot with the daily stock movement
// of the last days days. Zero days means DefaultTrendDays.
func (s *InsightsService) Trends(ctx context.Context, ownerID string, days int) (domain.InventoryTrends, error) {
	days, err := trendDays(days)
	if err != nil {
		return domain.InventoryTrends{}, err
	}
	inv, err := s.load(ctx, ownerID)
	if err != nil {
		return domain.InventoryTrends{}, err
	}

	now := s.now()
	entries, err := s.store.ListAudit(ctx, ownerID, domain.AuditFilter{
		EntityType: domain.EntityProduct,
		Since:      trendStart(now, days),
	})
	if err != nil {
		return domain.InventoryTrends{}, fmt.Errorf("list audit entries: %w", err)
	}

	ov := overview(inv, s.maxSpaces)
	movement := stockMovement(entries)
	return domain.InventoryTrends{
		RequestedDays:     days,
		HasHistoricalData: len(movement) > 0,
		CurrentSnapshot: domain.InventorySnapshot{
			Date:          now,
			TotalProducts: ov.TotalProducts,
			TotalSpaces:   ov.TotalSpaces,
			TotalValue:    ov.TotalValue,
			LowStockCount: ov.LowStockCount,
		},
		StockMovement: movement,
	}, nil
}

// stockMovement folds stock audit entries into per-day totals, oldest day first.
func stockMovement(entries []domain.AuditEntry) []domain.DailyStockMovement {
	byDay := make(map[string]*domain.DailyStockMovement)
	for _, e := range entries {
		var added, removed int
		switch e.Operation {
		case domain.OperationStockAdd:
			added = detailInt(e.Details, "quantityAdded")
		case domain.OperationStockRemove:
			removed = detailInt(e.Details, "quantityRemoved")
		default:
			continue
		}
		day := e.Timestamp.UTC().Format(dayLayout)
		m, ok := byDay[day]
		if !ok {
			m = &domain.DailyStockMovement{Date: day}
			byDay[day] = m
		}
		m.Added += added
		m.Removed += removed
		m.Adjustments++
	}

	out := make([]domain.DailyStockMovement, 0, len(byDay))
	for _, m := range byDay {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// detailInt reads a numeric audit detail. Details decoded from JSON carry
// float64 values.
func detailInt(details map[string]any, key string) int {
	switch v := details[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
