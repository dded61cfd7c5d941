package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/inventory/internal/adapter/storage"
	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

const (
	ownerA = "owner-a"
	ownerB = "owner-b"
)

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) byType(t domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// conflictingStore fails the first n version-checked writes with an
// optimistic lock conflict.
type conflictingStore struct {
	*storage.MemoryAdapter
	remaining atomic.Int32
	attempts  atomic.Int32
}

func (s *conflictingStore) conflict() bool {
	s.attempts.Add(1)
	return s.remaining.Add(-1) >= 0
}

func (s *conflictingStore) ApplyAdjustment(ctx context.Context, p domain.Product, adj domain.StockAdjustment) error {
	if s.conflict() {
		return port.ErrOptimisticLock
	}
	return s.MemoryAdapter.ApplyAdjustment(ctx, p, adj)
}

func (s *conflictingStore) UpdateProduct(ctx context.Context, p domain.Product) error {
	if s.conflict() {
		return port.ErrOptimisticLock
	}
	return s.MemoryAdapter.UpdateProduct(ctx, p)
}

// failingAudit rejects every append.
type failingAudit struct{}

func (failingAudit) AppendAudit(context.Context, domain.AuditEntry) error {
	return errors.New("audit store down")
}

func (failingAudit) ListAudit(context.Context, string, domain.AuditFilter) ([]domain.AuditEntry, error) {
	return nil, errors.New("audit store down")
}

type testEnv struct {
	store     *storage.MemoryAdapter
	cache     *storage.MemoryCache
	publisher *recordingPublisher
	events    *EventDispatcher
	audit     *AuditService
	spaces    *SpaceService
	products  *ProductService
	ledger    *LedgerService
	insights  *InsightsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	env := &testEnv{
		store:     storage.NewMemoryAdapter(),
		cache:     storage.NewMemoryCache(),
		publisher: &recordingPublisher{},
	}
	env.events = NewEventDispatcher(env.publisher, logger, 100)
	env.events.Start(2)
	t.Cleanup(env.events.Close)

	env.audit = NewAuditService(env.store, logger)
	env.spaces = NewSpaceService(env.store, env.audit, logger, DefaultMaxSpacesPerOwner)
	env.products = NewProductService(env.store, env.audit, logger, 3)
	env.ledger = NewLedgerService(env.store, env.cache, env.events, env.audit, logger, 5)
	env.insights = NewInsightsService(env.store, DefaultMaxSpacesPerOwner)

	// Strictly increasing timestamps keep creation order observable.
	clock := steppingClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	env.audit.now = clock
	env.spaces.now = clock
	env.products.now = clock
	env.ledger.now = clock
	return env
}

func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Millisecond)
		return current
	}
}

func (e *testEnv) space(t *testing.T, owner, name string) *domain.Space {
	t.Helper()
	s, err := e.spaces.CreateSpace(context.Background(), owner, owner+"-name", name)
	require.NoError(t, err)
	return s
}

func (e *testEnv) product(t *testing.T, owner, spaceID, name, price string, stock, minQty, maxQty int) *domain.Product {
	t.Helper()
	p, err := e.products.CreateProduct(context.Background(), owner, spaceID, NewProduct{
		Name:            name,
		Price:           decimal.RequireFromString(price),
		CurrentStock:    stock,
		MinimumQuantity: minQty,
		MaximumQuantity: maxQty,
	})
	require.NoError(t, err)
	return p
}
