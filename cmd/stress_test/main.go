package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/store-inventory/internal/adapter/storage"
	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/core/service"
)

const (
	storeA        = "store-a"
	storeB        = "store-b"
	initialStock  = 100
	totalRequests = 200
	transferSize  = 3
)

// Fires transfers in both directions between two stores at once and checks
// that no unit is created or lost. Runs against MySQL when MYSQL_DSN is set.
func main() {
	ctx := context.Background()

	repo, cleanup := openRepository(ctx)
	defer cleanup()

	inventoryService := service.NewInventoryService(repo, storage.NewMemoryCache())

	productID := uuid.NewString()
	now := time.Now().UTC()
	if err := repo.CreateProduct(ctx, domain.Product{
		ID:        productID,
		Name:      "Stress Test Item",
		Category:  "stress",
		Price:     decimal.NewFromInt(1),
		SKU:       "STRESS-" + productID[:8],
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		log.Fatalf("failed to create product: %v", err)
	}
	for _, storeID := range []string{storeA, storeB} {
		if _, err := inventoryService.InitializeStock(ctx, service.InitializeStockCommand{
			StoreID:   storeID,
			ProductID: productID,
			Quantity:  initialStock,
		}); err != nil {
			log.Fatalf("failed to initialize %s: %v", storeID, err)
		}
	}

	// Counters
	var successCount atomic.Int32
	var rejectedCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent transfers, alternating direction
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			source, target := storeA, storeB
			if i%2 == 1 {
				source, target = target, source
			}
			_, err := inventoryService.Transfer(ctx, service.TransferCommand{
				ProductID:     productID,
				SourceStoreID: source,
				TargetStoreID: target,
				Quantity:      transferSize,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("transfer %d failed: %v", i, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	a, _ := repo.GetInventory(ctx, productID, storeA)
	b, _ := repo.GetInventory(ctx, productID, storeB)
	movements, _ := repo.ListMovements(ctx, productID)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d + %d\n", initialStock, initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Rejected:         %d\n", rejectedCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Final Stock:      %d + %d\n", a.Quantity, b.Quantity)
	fmt.Println("==========================================")

	// Assertions
	failed := false
	if total := a.Quantity + b.Quantity; total != 2*initialStock {
		fmt.Printf("FAIL: Expected total %d, got %d\n", 2*initialStock, total)
		failed = true
	} else {
		fmt.Println("PASS: Total stock conserved")
	}
	if len(movements) != int(successCount.Load()) {
		fmt.Printf("FAIL: Expected %d movements, got %d\n", successCount.Load(), len(movements))
		failed = true
	} else {
		fmt.Println("PASS: One movement per successful transfer")
	}
	if errorCount.Load() > 0 {
		fmt.Println("FAIL: Transfers failed with unexpected errors")
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}

func openRepository(ctx context.Context) (service.Repository, func()) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		log.Println("MYSQL_DSN not set, using in-memory storage")
		return storage.NewMemoryAdapter(), func() {}
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	return adapter, func() { adapter.Close() }
}
