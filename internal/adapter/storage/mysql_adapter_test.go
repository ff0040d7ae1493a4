package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/port"
)

func getMySQLAdapter(t *testing.T) *MySQLAdapter {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

// newSQLProduct builds a product with unique id and sku so tests can share a database.
func newSQLProduct() domain.Product {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	return domain.Product{
		ID:        id,
		Name:      "Dog Leash",
		Category:  "Dogs",
		Price:     decimal.RequireFromString("19.99"),
		SKU:       "TST-" + id[:8],
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMySQLCreateProduct_DuplicateSKU(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()

	product := newSQLProduct()
	if err := adapter.CreateProduct(ctx, product); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	dup := newSQLProduct()
	dup.SKU = product.SKU
	if err := adapter.CreateProduct(ctx, dup); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got: %v", err)
	}

	got, err := adapter.GetProductBySKU(ctx, product.SKU)
	if err != nil {
		t.Fatalf("GetProductBySKU failed: %v", err)
	}
	if got == nil || got.ID != product.ID {
		t.Fatalf("expected product %s, got %+v", product.ID, got)
	}
	if !got.Price.Equal(product.Price) {
		t.Errorf("expected price %s, got %s", product.Price, got.Price)
	}
}

func TestMySQLGetInventory_NotFound(t *testing.T) {
	adapter := getMySQLAdapter(t)

	inv, err := adapter.GetInventory(context.Background(), "nonexistent-product", "nonexistent-store")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv != nil {
		t.Error("expected nil for nonexistent position")
	}
}

func TestMySQLCreateInventory_Constraints(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()

	product := newSQLProduct()
	if err := adapter.CreateProduct(ctx, product); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	inv := domain.NewInventory(uuid.NewString(), product.ID, "store-a", product.CreatedAt)
	if err := adapter.CreateInventory(ctx, inv); err != nil {
		t.Fatalf("CreateInventory failed: %v", err)
	}

	inv.ID = uuid.NewString()
	if err := adapter.CreateInventory(ctx, inv); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate pair, got: %v", err)
	}

	orphan := domain.NewInventory(uuid.NewString(), uuid.NewString(), "store-a", product.CreatedAt)
	if err := adapter.CreateInventory(ctx, orphan); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown product, got: %v", err)
	}

	if err := adapter.DeleteProduct(ctx, product.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict deleting referenced product, got: %v", err)
	}
}

func TestMySQLWithinTx_TransferAndRollback(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()

	product := newSQLProduct()
	if err := adapter.CreateProduct(ctx, product); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	source := domain.NewInventory(uuid.NewString(), product.ID, "store-a", product.CreatedAt)
	source.Quantity = 100
	if err := adapter.CreateInventory(ctx, source); err != nil {
		t.Fatalf("CreateInventory failed: %v", err)
	}

	transfer := func(fail bool) error {
		return adapter.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
			src, err := tx.LockInventory(ctx, product.ID, "store-a")
			if err != nil {
				return err
			}
			if err := tx.CreateInventoryIfAbsent(ctx, domain.NewInventory(uuid.NewString(), product.ID, "store-b", product.CreatedAt)); err != nil {
				return err
			}
			dst, err := tx.LockInventory(ctx, product.ID, "store-b")
			if err != nil {
				return err
			}
			src.Quantity -= 30
			dst.Quantity += 30
			if err := tx.UpdateInventory(ctx, *src); err != nil {
				return err
			}
			if err := tx.UpdateInventory(ctx, *dst); err != nil {
				return err
			}
			if fail {
				return errors.New("abort")
			}
			return tx.CreateMovement(ctx, domain.NewTransferMovement(uuid.NewString(), product.ID, "store-a", "store-b", 30, time.Now().UTC()))
		})
	}

	if err := transfer(false); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if err := transfer(true); err == nil {
		t.Fatal("expected aborted transfer to fail")
	}

	src, _ := adapter.GetInventory(ctx, product.ID, "store-a")
	dst, _ := adapter.GetInventory(ctx, product.ID, "store-b")
	if src.Quantity != 70 || dst.Quantity != 30 {
		t.Errorf("expected 70/30 after one committed transfer, got %d/%d", src.Quantity, dst.Quantity)
	}

	movements, err := adapter.ListMovements(ctx, product.ID)
	if err != nil {
		t.Fatalf("ListMovements failed: %v", err)
	}
	if len(movements) != 1 || movements[0].Type != domain.MovementTypeTransfer {
		t.Errorf("expected one TRANSFER movement, got %v", movements)
	}
}

func TestMySQLListLowStock(t *testing.T) {
	adapter := getMySQLAdapter(t)
	ctx := context.Background()

	product := newSQLProduct()
	if err := adapter.CreateProduct(ctx, product); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	low := domain.NewInventory(uuid.NewString(), product.ID, "store-low", product.CreatedAt)
	low.Quantity, low.MinStock = 5, 10
	high := domain.NewInventory(uuid.NewString(), product.ID, "store-high", product.CreatedAt)
	high.Quantity, high.MinStock = 15, 10
	for _, inv := range []domain.Inventory{low, high} {
		if err := adapter.CreateInventory(ctx, inv); err != nil {
			t.Fatalf("CreateInventory failed: %v", err)
		}
	}

	positions, err := adapter.ListLowStock(ctx)
	if err != nil {
		t.Fatalf("ListLowStock failed: %v", err)
	}

	var sawLow, sawHigh bool
	for _, pos := range positions {
		switch pos.ID {
		case low.ID:
			sawLow = true
			if pos.Product.SKU != product.SKU {
				t.Errorf("expected joined product %s, got %s", product.SKU, pos.Product.SKU)
			}
		case high.ID:
			sawHigh = true
		}
	}
	if !sawLow || sawHigh {
		t.Errorf("expected only the low position, low=%v high=%v", sawLow, sawHigh)
	}
}
