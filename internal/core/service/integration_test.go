package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/inventory/internal/adapter/storage"
)

type integrationEnv struct {
	db       *storage.SQLAdapter
	cache    *storage.RedisAdapter
	products *ProductService
	spaces   *SpaceService
	ledger   *LedgerService
	cleanup  func()
}

func setupIntegrationEnv(t *testing.T) *integrationEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	sqlDB, err := storage.OpenSQL(ctx, storage.DialectMySQL, mysqlDSN)
	if err != nil {
		rdb.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	if err := storage.Migrate(ctx, sqlDB, storage.DialectMySQL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := zaptest.NewLogger(t)
	db := storage.NewSQLAdapter(sqlDB, storage.DialectMySQL)
	cache := storage.NewRedisAdapter(rdb)
	audit := NewAuditService(db, logger)

	return &integrationEnv{
		db:       db,
		cache:    cache,
		spaces:   NewSpaceService(db, audit, logger, DefaultMaxSpacesPerOwner),
		products: NewProductService(db, audit, logger, defaultRetryAttempts),
		ledger:   NewLedgerService(db, cache, nil, audit, logger, 20),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func TestIntegration_ConcurrentRemovalsNeverOversell(t *testing.T) {
	env := setupIntegrationEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	owner := "integration-" + uuid.NewString()
	space, err := env.spaces.CreateSpace(ctx, owner, "Integration", "Flash Sale")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}
	defer env.spaces.DeleteSpace(ctx, owner, space.ID)

	initialStock := 10
	product, err := env.products.CreateProduct(ctx, owner, space.ID, NewProduct{
		Name:            "Limited Item",
		Price:           dec("49.90"),
		CurrentStock:    initialStock,
		MaximumQuantity: initialStock,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	var successCount atomic.Int32
	var wg sync.WaitGroup
	totalRequests := 20
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.RemoveStock(ctx, owner, space.ID, product.ID, 1, uuid.NewString())
			if err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successful removals, got %d", initialStock, successCount.Load())
	}

	final, err := env.products.GetProduct(ctx, owner, space.ID, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if final.CurrentStock != 0 {
		t.Errorf("expected stock 0, got %d", final.CurrentStock)
	}

	history, _ := env.ledger.History(ctx, owner, space.ID, product.ID, maxHistoryLimit)
	if len(history) != initialStock {
		t.Errorf("expected %d adjustments, got %d", initialStock, len(history))
	}
}

func TestIntegration_IdempotencyPreventsDoubleAdjustment(t *testing.T) {
	env := setupIntegrationEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	owner := "integration-" + uuid.NewString()
	space, err := env.spaces.CreateSpace(ctx, owner, "Integration", "Idempotency")
	if err != nil {
		t.Fatalf("create space: %v", err)
	}
	defer env.spaces.DeleteSpace(ctx, owner, space.ID)

	product, err := env.products.CreateProduct(ctx, owner, space.ID, NewProduct{
		Name:         "Widget",
		Price:        dec("1"),
		CurrentStock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	requestID := "same-request-id-" + uuid.NewString()
	if _, err := env.ledger.RemoveStock(ctx, owner, space.ID, product.ID, 1, requestID); err != nil {
		t.Fatalf("first removal failed: %v", err)
	}

	_, err = env.ledger.RemoveStock(ctx, owner, space.ID, product.ID, 1, requestID)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	final, _ := env.products.GetProduct(ctx, owner, space.ID, product.ID)
	if final.CurrentStock != 9 {
		t.Errorf("expected stock 9, got %d", final.CurrentStock)
	}
}
