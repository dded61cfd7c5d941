package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/adapter/storage"
	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/core/service"
	"github.com/rl1809/inventory/internal/port"
)

const (
	ownerID       = "stress-owner"
	initialStock  = 20
	totalRequests = 50
	restocks      = 10
)

func main() {
	ctx := context.Background()
	logger := zap.NewNop()

	// Idempotency keys go to Redis when REDIS_ADDR is set.
	var cache port.CacheRepository = storage.NewMemoryCache()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
	}

	store := storage.NewMemoryAdapter()
	audit := service.NewAuditService(store, logger)
	spaces := service.NewSpaceService(store, audit, logger, service.DefaultMaxSpacesPerOwner)
	products := service.NewProductService(store, audit, logger, 0)
	ledger := service.NewLedgerService(store, cache, nil, audit, logger, 0)

	space, err := spaces.CreateSpace(ctx, ownerID, "Stress", "Flash Sale")
	if err != nil {
		log.Fatalf("failed to create space: %v", err)
	}
	product, err := products.CreateProduct(ctx, ownerID, space.ID, service.NewProduct{
		Name:            "flash-sale-item",
		Price:           decimal.NewFromInt(10),
		CurrentStock:    initialStock,
		MaximumQuantity: initialStock,
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	var successCount, rejectedCount, errorCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.RemoveStock(ctx, ownerID, space.ID, product.ID, 1, uuid.NewString())
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}()
	}
	for i := 0; i < restocks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.AddStock(ctx, ownerID, space.ID, product.ID, 1, uuid.NewString()); err != nil {
				errorCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	rejected := rejectedCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Restocks:         %d\n", restocks)
	fmt.Printf("Removals:         %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	final, err := products.GetProduct(ctx, ownerID, space.ID, product.ID)
	if err != nil {
		log.Fatalf("failed to read product: %v", err)
	}
	history, err := ledger.History(ctx, ownerID, space.ID, product.ID, 200)
	if err != nil {
		log.Fatalf("failed to read history: %v", err)
	}

	expected := initialStock + restocks - int(success)
	fmt.Printf("Final Stock:      %d\n", final.CurrentStock)
	if final.CurrentStock == expected && final.CurrentStock >= 0 {
		fmt.Println("PASS: No lost updates")
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", expected, final.CurrentStock)
	}
	if len(history) == int(success)+restocks {
		fmt.Println("PASS: Every committed adjustment is in the ledger")
	} else {
		fmt.Printf("FAIL: Expected %d ledger entries, got %d\n", int(success)+restocks, len(history))
	}
}
