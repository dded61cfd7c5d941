package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
)

const defaultRetryAttempts = 5

var tracer = otel.Tracer("github.com/rl1809/inventory/internal/core/service")

// CatalogStore is the storage a service needs to resolve spaces and products.
type CatalogStore interface {
	port.SpaceRepository
	port.ProductRepository
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// keyedMutex hands out one lock per key and forgets it once nobody holds or
// waits for it. Waiters give up when their context is done.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) (unlock func(), err error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
	return func() {
		<-l.sem
		k.release(key, l)
	}, nil
}

func (k *keyedMutex) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// lookupSpace resolves a space owned by ownerID. Spaces of other owners are
// reported as missing.
func lookupSpace(ctx context.Context, spaces port.SpaceRepository, ownerID, spaceID string) (*domain.Space, error) {
	space, err := spaces.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}
	if space == nil || space.OwnerID != ownerID {
		return nil, domain.NotFoundf("space %s not found", spaceID)
	}
	return space, nil
}

// lookupProduct resolves a product that lives in spaceID and belongs to ownerID.
func lookupProduct(ctx context.Context, store CatalogStore, ownerID, spaceID, productID string) (*domain.Product, *domain.Space, error) {
	space, err := lookupSpace(ctx, store, ownerID, spaceID)
	if err != nil {
		return nil, nil, err
	}

	product, err := store.GetProduct(ctx, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || product.SpaceID != space.ID {
		return nil, nil, domain.NotFoundf("product %s not found in space %s", productID, spaceID)
	}
	return product, space, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
