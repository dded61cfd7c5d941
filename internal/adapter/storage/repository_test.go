package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

// testRepository runs the behaviour every port.DatabaseRepository backend
// must share. IDs are random so the suite can run against a live database.
func testRepository(t *testing.T, repo port.DatabaseRepository) {
	t.Run("spaces", func(t *testing.T) { testSpaces(t, repo) })
	t.Run("products", func(t *testing.T) { testProducts(t, repo) })
	t.Run("adjustments", func(t *testing.T) { testAdjustments(t, repo) })
	t.Run("concurrent adjustments", func(t *testing.T) { testConcurrentAdjustments(t, repo) })
	t.Run("cascade delete", func(t *testing.T) { testCascadeDelete(t, repo) })
	t.Run("audit", func(t *testing.T) { testAudit(t, repo) })
}

func baseTime() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func newSpace(owner, name string, at time.Time) domain.Space {
	return domain.Space{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   owner,
		OwnerName: "Test Owner",
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func newProduct(spaceID, name string, stock int, at time.Time) domain.Product {
	return domain.Product{
		ID:              uuid.NewString(),
		SpaceID:         spaceID,
		Name:            name,
		Price:           decimal.RequireFromString("9.99"),
		CurrentStock:    stock,
		MinimumQuantity: 5,
		MaximumQuantity: 100,
		Version:         1,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func mustCreateSpace(t *testing.T, repo port.DatabaseRepository, s domain.Space) {
	t.Helper()
	if err := repo.CreateSpace(context.Background(), s); err != nil {
		t.Fatalf("create space: %v", err)
	}
}

func mustCreateProduct(t *testing.T, repo port.DatabaseRepository, p domain.Product) {
	t.Helper()
	if err := repo.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("create product: %v", err)
	}
}

func testSpaces(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()
	now := baseTime()

	older := newSpace(owner, "Warehouse A", now)
	newer := newSpace(owner, "Warehouse B", now.Add(time.Second))
	mustCreateSpace(t, repo, older)
	mustCreateSpace(t, repo, newer)

	if err := repo.CreateSpace(ctx, newSpace(owner, "Warehouse A", now)); !errors.Is(err, port.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for same owner and name, got %v", err)
	}
	if err := repo.CreateSpace(ctx, newSpace("other-"+owner, "Warehouse A", now)); err != nil {
		t.Errorf("same name for another owner should succeed: %v", err)
	}

	got, err := repo.GetSpace(ctx, older.ID)
	if err != nil || got == nil {
		t.Fatalf("get space: %v %v", got, err)
	}
	if got.Name != "Warehouse A" || got.OwnerID != owner {
		t.Errorf("unexpected space %+v", got)
	}

	missing, err := repo.GetSpace(ctx, uuid.NewString())
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for unknown space, got %v %v", missing, err)
	}

	list, err := repo.ListSpaces(ctx, owner)
	if err != nil {
		t.Fatalf("list spaces: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID {
		t.Errorf("expected newest first, got %+v", list)
	}

	count, _ := repo.CountSpaces(ctx, owner)
	if count != 2 {
		t.Errorf("expected 2 spaces, got %d", count)
	}

	older.Name = "Warehouse B"
	if err := repo.UpdateSpace(ctx, older); !errors.Is(err, port.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate on rename collision, got %v", err)
	}
	older.Name = "Cold Storage"
	older.UpdatedAt = now.Add(time.Minute)
	if err := repo.UpdateSpace(ctx, older); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ = repo.GetSpace(ctx, older.ID)
	if got.Name != "Cold Storage" {
		t.Errorf("expected renamed space, got %q", got.Name)
	}

	if err := repo.UpdateSpace(ctx, newSpace(owner, "Ghost", now)); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testProducts(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()
	now := baseTime()
	space := newSpace(owner, "Main", now)
	mustCreateSpace(t, repo, space)

	first := newProduct(space.ID, "Widget", 20, now)
	second := newProduct(space.ID, "Gadget", 3, now.Add(time.Second))
	mustCreateProduct(t, repo, first)
	mustCreateProduct(t, repo, second)

	if err := repo.CreateProduct(ctx, newProduct(uuid.NewString(), "Orphan", 1, now)); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown space, got %v", err)
	}

	got, err := repo.GetProduct(ctx, first.ID)
	if err != nil || got == nil {
		t.Fatalf("get product: %v %v", got, err)
	}
	if !got.Price.Equal(first.Price) || got.CurrentStock != 20 || got.Version != 1 {
		t.Errorf("unexpected product %+v", got)
	}

	list, _ := repo.ListProducts(ctx, space.ID)
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("expected newest first, got %+v", list)
	}
	byOwner, _ := repo.ListProductsByOwner(ctx, owner)
	if len(byOwner) != 2 {
		t.Errorf("expected 2 products for owner, got %d", len(byOwner))
	}
	count, _ := repo.CountProducts(ctx, space.ID)
	if count != 2 {
		t.Errorf("expected 2 products, got %d", count)
	}

	update := *got
	update.Name = "Widget XL"
	update.Price = decimal.RequireFromString("12.50")
	update.UpdatedAt = now.Add(time.Minute)
	if err := repo.UpdateProduct(ctx, update); err != nil {
		t.Fatalf("update product: %v", err)
	}
	if err := repo.UpdateProduct(ctx, update); !errors.Is(err, port.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock for stale version, got %v", err)
	}

	got, _ = repo.GetProduct(ctx, first.ID)
	if got.Name != "Widget XL" || got.Version != 2 || got.CurrentStock != 20 {
		t.Errorf("unexpected product after update %+v", got)
	}

	if err := repo.DeleteProduct(ctx, second.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if err := repo.DeleteProduct(ctx, second.ID); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func adjustment(p domain.Product, dir domain.Direction, qty int, at time.Time) (domain.Product, domain.StockAdjustment) {
	next, adj, err := p.Adjust(dir, qty, at)
	if err != nil {
		panic(err)
	}
	adj.ID = uuid.NewString()
	adj.OwnerID = "owner"
	return next, adj
}

func testAdjustments(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	now := baseTime()
	space := newSpace("owner-"+uuid.NewString(), "Main", now)
	mustCreateSpace(t, repo, space)
	product := newProduct(space.ID, "Widget", 10, now)
	mustCreateProduct(t, repo, product)

	next, adj := adjustment(product, domain.DirectionAdd, 5, now.Add(time.Second))
	if err := repo.ApplyAdjustment(ctx, next, adj); err != nil {
		t.Fatalf("apply add: %v", err)
	}
	// Same expected version again must lose the race.
	if err := repo.ApplyAdjustment(ctx, next, adj); !errors.Is(err, port.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}

	current, _ := repo.GetProduct(ctx, product.ID)
	if current.CurrentStock != 15 || current.Version != 2 {
		t.Fatalf("expected stock 15 version 2, got %d %d", current.CurrentStock, current.Version)
	}

	next, adj = adjustment(*current, domain.DirectionRemove, 7, now.Add(2*time.Second))
	if err := repo.ApplyAdjustment(ctx, next, adj); err != nil {
		t.Fatalf("apply remove: %v", err)
	}

	history, err := repo.ListAdjustments(ctx, product.ID, 0)
	if err != nil {
		t.Fatalf("list adjustments: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 adjustments, got %d", len(history))
	}
	if history[0].Direction != domain.DirectionRemove || history[0].PreviousStock != 15 || history[0].ResultingStock != 8 {
		t.Errorf("unexpected latest adjustment %+v", history[0])
	}

	limited, _ := repo.ListAdjustments(ctx, product.ID, 1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1 to return 1 entry, got %d", len(limited))
	}
}

func testConcurrentAdjustments(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	now := baseTime()
	space := newSpace("owner-"+uuid.NewString(), "Main", now)
	mustCreateSpace(t, repo, space)
	product := newProduct(space.ID, "Widget", 0, now)
	mustCreateProduct(t, repo, product)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			current, err := repo.GetProduct(ctx, product.ID)
			if err != nil {
				t.Errorf("get product: %v", err)
				return
			}
			next, adj := adjustment(*current, domain.DirectionAdd, 1, now)
			err = repo.ApplyAdjustment(ctx, next, adj)
			if errors.Is(err, port.ErrOptimisticLock) {
				return
			}
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			mu.Lock()
			applied++
			mu.Unlock()
		}()
	}
	wg.Wait()

	final, _ := repo.GetProduct(ctx, product.ID)
	if final.CurrentStock != applied {
		t.Errorf("stock %d does not match %d committed adjustments", final.CurrentStock, applied)
	}
	history, _ := repo.ListAdjustments(ctx, product.ID, 0)
	if len(history) != applied {
		t.Errorf("expected %d adjustments, got %d", applied, len(history))
	}
}

func testCascadeDelete(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	now := baseTime()
	space := newSpace("owner-"+uuid.NewString(), "Doomed", now)
	mustCreateSpace(t, repo, space)
	a := newProduct(space.ID, "A", 1, now)
	b := newProduct(space.ID, "B", 1, now)
	mustCreateProduct(t, repo, a)
	mustCreateProduct(t, repo, b)
	next, adj := adjustment(a, domain.DirectionAdd, 1, now)
	if err := repo.ApplyAdjustment(ctx, next, adj); err != nil {
		t.Fatalf("apply: %v", err)
	}

	removed, err := repo.DeleteSpace(ctx, space.ID)
	if err != nil {
		t.Fatalf("delete space: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 products removed, got %d", removed)
	}
	if p, _ := repo.GetProduct(ctx, a.ID); p != nil {
		t.Error("product survived its space")
	}
	if history, _ := repo.ListAdjustments(ctx, a.ID, 0); len(history) != 0 {
		t.Errorf("adjustments survived their product: %d", len(history))
	}
	if _, err := repo.DeleteSpace(ctx, space.ID); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testAudit(t *testing.T, repo port.DatabaseRepository) {
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()
	now := baseTime()

	entries := []domain.AuditEntry{
		{EntityType: domain.EntitySpace, Operation: domain.OperationCreate, Details: map[string]any{"name": "Main"}},
		{EntityType: domain.EntityProduct, Operation: domain.OperationCreate, Details: map[string]any{"name": "Widget"}},
		{EntityType: domain.EntityProduct, Operation: domain.OperationStockAdd, Details: map[string]any{"quantityAdded": 5}},
	}
	for i, e := range entries {
		e.ID = uuid.NewString()
		e.OwnerID = owner
		e.EntityID = "entity"
		e.IPAddress = "127.0.0.1"
		e.Timestamp = now.Add(time.Duration(i) * time.Second)
		if err := repo.AppendAudit(ctx, e); err != nil {
			t.Fatalf("append audit: %v", err)
		}
	}

	all, err := repo.ListAudit(ctx, owner, domain.AuditFilter{})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(all) != 3 || all[0].Operation != domain.OperationStockAdd {
		t.Fatalf("expected 3 entries newest first, got %+v", all)
	}
	if all[2].Details["name"] != "Main" || all[2].IPAddress != "127.0.0.1" {
		t.Errorf("details not preserved: %+v", all[2])
	}

	products, _ := repo.ListAudit(ctx, owner, domain.AuditFilter{EntityType: domain.EntityProduct})
	if len(products) != 2 {
		t.Errorf("expected 2 product entries, got %d", len(products))
	}
	stock, _ := repo.ListAudit(ctx, owner, domain.AuditFilter{Operation: domain.OperationStockAdd, Limit: 10})
	if len(stock) != 1 {
		t.Errorf("expected 1 stock entry, got %d", len(stock))
	}
	since, _ := repo.ListAudit(ctx, owner, domain.AuditFilter{Since: now.Add(time.Second)})
	if len(since) != 2 {
		t.Errorf("expected 2 entries since the second, got %d", len(since))
	}
	limited, _ := repo.ListAudit(ctx, owner, domain.AuditFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected 1 entry, got %d", len(limited))
	}

	other, _ := repo.ListAudit(ctx, "other-"+owner, domain.AuditFilter{})
	if len(other) != 0 {
		t.Errorf("entries leaked across owners: %d", len(other))
	}
}
