//go:build integration

package service_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/store-inventory/internal/adapter/storage"
	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	cache   *storage.RedisAdapter
	db      *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	return &testEnv{
		redis: rdb,
		cache: storage.NewRedisAdapter(rdb),
		db:    adapter,
		cleanup: func() {
			rdb.Close()
			adapter.Close()
		},
	}
}

// seedProduct stocks a fresh product in two stores.
func (env *testEnv) seedProduct(t *testing.T, svc *service.InventoryService, stockA, stockB int) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	productID := uuid.NewString()

	err := env.db.CreateProduct(ctx, domain.Product{
		ID:        productID,
		Name:      "Integration Item",
		Category:  "integration",
		Price:     decimal.RequireFromString("9.99"),
		SKU:       "INT-" + productID[:8],
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	for storeID, qty := range map[string]int{"store-a": stockA, "store-b": stockB} {
		if _, err := svc.InitializeStock(ctx, service.InitializeStockCommand{StoreID: storeID, ProductID: productID, Quantity: qty}); err != nil {
			t.Fatalf("initialize %s: %v", storeID, err)
		}
	}
	return productID
}

func TestIntegration_ConcurrentOppositeTransfers(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	svc := service.NewInventoryService(env.db, env.cache)
	productID := env.seedProduct(t, svc, 50, 50)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	totalRequests := 40

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source, target := "store-a", "store-b"
			if i%2 == 1 {
				source, target = target, source
			}
			_, err := svc.Transfer(ctx, service.TransferCommand{
				ProductID:     productID,
				SourceStoreID: source,
				TargetStoreID: target,
				Quantity:      5,
			})
			if err == nil {
				successCount.Add(1)
			} else if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	a, _ := env.db.GetInventory(ctx, productID, "store-a")
	b, _ := env.db.GetInventory(ctx, productID, "store-b")
	if a.Quantity+b.Quantity != 100 {
		t.Errorf("expected total 100, got %d + %d", a.Quantity, b.Quantity)
	}

	movements, err := env.db.ListMovements(ctx, productID)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != int(successCount.Load()) {
		t.Errorf("expected %d movements, got %d", successCount.Load(), len(movements))
	}
}

func TestIntegration_ConcurrentTransfersIntoNewStore(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	svc := service.NewInventoryService(env.db, env.cache)
	productID := env.seedProduct(t, svc, 30, 30)

	var wg sync.WaitGroup
	for _, source := range []string{"store-a", "store-b"} {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(source string) {
				defer wg.Done()
				if _, err := svc.Transfer(ctx, service.TransferCommand{
					ProductID:     productID,
					SourceStoreID: source,
					TargetStoreID: "store-c",
					Quantity:      1,
				}); err != nil {
					t.Errorf("transfer from %s: %v", source, err)
				}
			}(source)
		}
	}

	wg.Wait()

	c, _ := env.db.GetInventory(ctx, productID, "store-c")
	if c == nil || c.Quantity != 20 {
		t.Errorf("expected store-c to hold 20, got %+v", c)
	}
}

func TestIntegration_IdempotencyPreventsDoubleTransfer(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	svc := service.NewInventoryService(env.db, env.cache)
	productID := env.seedProduct(t, svc, 100, 0)
	key := uuid.NewString()

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, service.TransferCommand{
				ProductID:      productID,
				SourceStoreID:  "store-a",
				TargetStoreID:  "store-b",
				Quantity:       10,
				IdempotencyKey: key,
			})
			if err == nil {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected 1 successful transfer, got %d", successCount.Load())
	}
	a, _ := env.db.GetInventory(ctx, productID, "store-a")
	if a.Quantity != 90 {
		t.Errorf("expected store-a 90, got %d", a.Quantity)
	}
}
