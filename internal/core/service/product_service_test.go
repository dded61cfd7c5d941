package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/inventory/internal/adapter/storage"
	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

func ptr[T any](v T) *T { return &v }

func TestCreateProduct_Success(t *testing.T) {
	env := newTestEnv(t)
	s := env.space(t, ownerA, "Warehouse A")

	p := env.product(t, ownerA, s.ID, " Widget ", "9.99", 20, 5, 100)

	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, s.ID, p.SpaceID)
	assert.True(t, decimal.RequireFromString("9.99").Equal(p.Price))
	assert.Equal(t, 1, p.Version)
	assert.False(t, p.IsLowStock())
}

func TestCreateProduct_Validation(t *testing.T) {
	env := newTestEnv(t)
	s := env.space(t, ownerA, "Warehouse A")

	tests := []struct {
		name string
		in   NewProduct
	}{
		{"empty name", NewProduct{Name: " ", MaximumQuantity: 1}},
		{"negative price", NewProduct{Name: "x", Price: decimal.NewFromInt(-1), MaximumQuantity: 1}},
		{"negative stock", NewProduct{Name: "x", CurrentStock: -1, MaximumQuantity: 1}},
		{"negative minimum", NewProduct{Name: "x", MinimumQuantity: -1, MaximumQuantity: 1}},
		{"negative maximum", NewProduct{Name: "x", MaximumQuantity: -1}},
		{"minimum above maximum", NewProduct{Name: "x", MinimumQuantity: 10, MaximumQuantity: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.products.CreateProduct(context.Background(), ownerA, s.ID, tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	products, err := env.store.ListProducts(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestCreateProduct_UnknownSpace(t *testing.T) {
	env := newTestEnv(t)
	foreign := env.space(t, ownerB, "Theirs")

	in := NewProduct{Name: "x", MaximumQuantity: 1}
	_, err := env.products.CreateProduct(context.Background(), ownerA, "missing", in)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.products.CreateProduct(context.Background(), ownerA, foreign.ID, in)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateProduct_Patch(t *testing.T) {
	env := newTestEnv(t)
	s := env.space(t, ownerA, "W")
	p := env.product(t, ownerA, s.ID, "Widget", "9.99", 20, 5, 100)

	updated, err := env.products.UpdateProduct(context.Background(), ownerA, s.ID, p.ID, domain.ProductPatch{
		Name:            ptr("Gadget"),
		MinimumQuantity: ptr(25),
	})
	require.NoError(t, err)

	assert.Equal(t, "Gadget", updated.Name)
	assert.Equal(t, 25, updated.MinimumQuantity)
	assert.True(t, updated.Price.Equal(p.Price), "unpatched fields are kept")
	assert.Equal(t, 20, updated.CurrentStock, "stock is never patched")
	assert.True(t, updated.IsLowStock())
	assert.Equal(t, 2, updated.Version)

	stored, err := env.store.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gadget", stored.Name)
	assert.Equal(t, 2, stored.Version)
}

func TestUpdateProduct_NoOp(t *testing.T) {
	env := newTestEnv(t)
	s := env.space(t, ownerA, "W")
	p := env.product(t, ownerA, s.ID, "Widget", "9.99", 20, 5, 100)

	same, err := env.products.UpdateProduct(context.Background(), ownerA, s.ID, p.ID, domain.ProductPatch{})
	require.NoError(t, err)
	assert.Equal(t, p.Version, same.Version)

	same, err = env.products.UpdateProduct(context.Background(), ownerA, s.ID, p.ID, domain.ProductPatch{
		Price: ptr(decimal.RequireFromString("9.990")),
	})
	require.NoError(t, err)
	assert.Equal(t, p.Version, same.Version, "an equal price is not a change")

	entries, err := env.audit.RecentActivity(context.Background(), ownerA, domain.AuditFilter{Operation: domain.OperationUpdate})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateProduct_Invalid(t *testing.T) {
	env := newTestEnv(t)
	s := env.space(t, ownerA, "W")
	p := env.product(t, ownerA, s.ID, "Widget", "9.99", 20, 5, 10)

	_, err := env.products.UpdateProduct(context.Background(), ownerA, s.ID, p.ID, domain.ProductPatch{
		MinimumQuantity: ptr(11),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.products.UpdateProduct(context.Background(), ownerA, s.ID, "missing", domain.ProductPatch{Name: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateProduct_RetriesOnConflict(t *testing.T) {
	store := &conflictingStore{MemoryAdapter: storage.NewMemoryAdapter()}
	store.remaining.Store(2)
	logger := zaptest.NewLogger(t)
	audit := NewAuditService(store, logger)
	spaces := NewSpaceService(store, audit, logger, 10)
	products := NewProductService(store, audit, logger, 3)

	ctx := context.Background()
	s, err := spaces.CreateSpace(ctx, ownerA, "", "W")
	require.NoError(t, err)
	p, err := products.CreateProduct(ctx, ownerA, s.ID, NewProduct{Name: "Widget", MaximumQuantity: 10})
	require.NoError(t, err)

	updated, err := products.UpdateProduct(ctx, ownerA, s.ID, p.ID, domain.ProductPatch{Name: ptr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, int32(3), store.attempts.Load())

	store.remaining.Store(5)
	_, err = products.UpdateProduct(ctx, ownerA, s.ID, p.ID, domain.ProductPatch{Name: ptr("Again")})
	assert.ErrorIs(t, err, port.ErrOptimisticLock)
}

func TestDeleteProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.space(t, ownerA, "W")
	p := env.product(t, ownerA, s.ID, "Widget", "2.50", 4, 1, 10)

	require.NoError(t, env.products.DeleteProduct(ctx, ownerA, s.ID, p.ID))

	_, err := env.products.GetProduct(ctx, ownerA, s.ID, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, env.products.DeleteProduct(ctx, ownerA, s.ID, p.ID), domain.ErrNotFound)

	entries, err := env.audit.RecentActivity(ctx, ownerA, domain.AuditFilter{
		EntityType: domain.EntityProduct,
		Operation:  domain.OperationDelete,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "10.00", entries[0].Details["productValue"])
	assert.Equal(t, s.ID, entries[0].RelatedEntityID)
}

func TestGetProduct_WrongSpace(t *testing.T) {
	env := newTestEnv(t)
	a := env.space(t, ownerA, "A")
	b := env.space(t, ownerA, "B")
	p := env.product(t, ownerA, a.ID, "Widget", "1", 1, 0, 1)

	_, err := env.products.GetProduct(context.Background(), ownerA, b.ID, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.products.GetProduct(context.Background(), ownerB, a.ID, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListProducts_Filter(t *testing.T) {
	env := newTestEnv(t)
	s := env.space(t, ownerA, "W")
	bolt := env.product(t, ownerA, s.ID, "Steel Bolt", "1", 1, 0, 10)
	env.product(t, ownerA, s.ID, "Nut", "1", 1, 0, 10)
	washer := env.product(t, ownerA, s.ID, "bolt washer", "1", 1, 0, 10)

	all, err := env.products.ListProducts(context.Background(), ownerA, s.ID, "   ")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := env.products.ListProducts(context.Background(), ownerA, s.ID, "BOLT")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, washer.ID, got[0].ID, "newest first")
	assert.Equal(t, bolt.ID, got[1].ID)

	none, err := env.products.ListProducts(context.Background(), ownerA, s.ID, "screw")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLowStockProducts(t *testing.T) {
	env := newTestEnv(t)
	s := env.space(t, ownerA, "W")
	low := env.product(t, ownerA, s.ID, "Low", "1", 5, 5, 10)
	env.product(t, ownerA, s.ID, "Fine", "1", 6, 5, 10)
	out := env.product(t, ownerA, s.ID, "Out", "1", 0, 0, 10)

	got, err := env.products.LowStockProducts(context.Background(), ownerA, s.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{low.ID, out.ID}, []string{got[0].ID, got[1].ID})
}
