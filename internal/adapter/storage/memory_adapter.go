package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

// MemoryAdapter keeps everything in process. One RWMutex guards all maps, so
// cascade deletes and stock compare-and-swap are single critical sections.
type MemoryAdapter struct {
	mu          sync.RWMutex
	spaces      map[string]domain.Space
	products    map[string]domain.Product
	adjustments map[string][]domain.StockAdjustment // by product, oldest first
	audit       map[string][]domain.AuditEntry      // by owner, oldest first
}

var _ port.DatabaseRepository = (*MemoryAdapter)(nil)

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		spaces:      make(map[string]domain.Space),
		products:    make(map[string]domain.Product),
		adjustments: make(map[string][]domain.StockAdjustment),
		audit:       make(map[string][]domain.AuditEntry),
	}
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryAdapter) Close() error {
	return nil
}

func (m *MemoryAdapter) nameTaken(ownerID, name, exceptID string) bool {
	for _, s := range m.spaces {
		if s.OwnerID == ownerID && s.Name == name && s.ID != exceptID {
			return true
		}
	}
	return false
}

func (m *MemoryAdapter) CreateSpace(ctx context.Context, space domain.Space) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(space.OwnerID, space.Name, "") {
		return port.ErrDuplicate
	}
	m.spaces[space.ID] = space
	return nil
}

func (m *MemoryAdapter) GetSpace(ctx context.Context, spaceID string) (*domain.Space, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.spaces[spaceID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryAdapter) ListSpaces(ctx context.Context, ownerID string) ([]domain.Space, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Space, 0)
	for _, s := range m.spaces {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryAdapter) CountSpaces(ctx context.Context, ownerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.spaces {
		if s.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryAdapter) UpdateSpace(ctx context.Context, space domain.Space) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.spaces[space.ID]
	if !ok {
		return port.ErrNotFound
	}
	if m.nameTaken(current.OwnerID, space.Name, space.ID) {
		return port.ErrDuplicate
	}
	current.Name = space.Name
	current.UpdatedAt = space.UpdatedAt
	m.spaces[space.ID] = current
	return nil
}

func (m *MemoryAdapter) DeleteSpace(ctx context.Context, spaceID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.spaces[spaceID]; !ok {
		return 0, port.ErrNotFound
	}
	removed := 0
	for id, p := range m.products {
		if p.SpaceID == spaceID {
			delete(m.products, id)
			delete(m.adjustments, id)
			removed++
		}
	}
	delete(m.spaces, spaceID)
	return removed, nil
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.spaces[product.SpaceID]; !ok {
		return port.ErrNotFound
	}
	if _, ok := m.products[product.ID]; ok {
		return port.ErrDuplicate
	}
	m.products[product.ID] = product
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func sortProducts(products []domain.Product) {
	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].ID < products[j].ID
	})
}

func (m *MemoryAdapter) ListProducts(ctx context.Context, spaceID string) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Product, 0)
	for _, p := range m.products {
		if p.SpaceID == spaceID {
			out = append(out, p)
		}
	}
	sortProducts(out)
	return out, nil
}

func (m *MemoryAdapter) ListProductsByOwner(ctx context.Context, ownerID string) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Product, 0)
	for _, p := range m.products {
		if s, ok := m.spaces[p.SpaceID]; ok && s.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sortProducts(out)
	return out, nil
}

func (m *MemoryAdapter) CountProducts(ctx context.Context, spaceID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, p := range m.products {
		if p.SpaceID == spaceID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.products[product.ID]
	if !ok {
		return port.ErrNotFound
	}
	if current.Version != product.Version {
		return port.ErrOptimisticLock
	}
	current.Name = product.Name
	current.Price = product.Price
	current.MinimumQuantity = product.MinimumQuantity
	current.MaximumQuantity = product.MaximumQuantity
	current.UpdatedAt = product.UpdatedAt
	current.Version++
	m.products[product.ID] = current
	return nil
}

func (m *MemoryAdapter) DeleteProduct(ctx context.Context, productID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[productID]; !ok {
		return port.ErrNotFound
	}
	delete(m.products, productID)
	delete(m.adjustments, productID)
	return nil
}

func (m *MemoryAdapter) ApplyAdjustment(ctx context.Context, product domain.Product, adj domain.StockAdjustment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.products[product.ID]
	if !ok || current.Version != product.Version {
		return port.ErrOptimisticLock
	}
	current.CurrentStock = product.CurrentStock
	current.UpdatedAt = product.UpdatedAt
	current.Version++
	m.products[product.ID] = current
	m.adjustments[product.ID] = append(m.adjustments[product.ID], adj)
	return nil
}

func (m *MemoryAdapter) ListAdjustments(ctx context.Context, productID string, limit int) ([]domain.StockAdjustment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.adjustments[productID]
	out := make([]domain.StockAdjustment, 0, min(len(history), max(limit, 0)))
	for i := len(history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, history[i])
	}
	return out, nil
}

func (m *MemoryAdapter) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.audit[entry.OwnerID] = append(m.audit[entry.OwnerID], entry)
	return nil
}

func (m *MemoryAdapter) ListAudit(ctx context.Context, ownerID string, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.audit[ownerID]
	out := make([]domain.AuditEntry, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
		if filter.Matches(entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out, nil
}
