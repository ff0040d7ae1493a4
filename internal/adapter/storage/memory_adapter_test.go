package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/port"
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func seedProduct(t *testing.T, m *MemoryAdapter, id, sku, category string, price string) domain.Product {
	t.Helper()
	product := domain.Product{
		ID:        id,
		Name:      "product " + id,
		Category:  category,
		Price:     decimal.RequireFromString(price),
		SKU:       sku,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
	if err := m.CreateProduct(context.Background(), product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func seedInventory(t *testing.T, m *MemoryAdapter, id, productID, storeID string, quantity, minStock int) {
	t.Helper()
	inv := domain.Inventory{
		ID:        id,
		ProductID: productID,
		StoreID:   storeID,
		Quantity:  quantity,
		MinStock:  minStock,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
	if err := m.CreateInventory(context.Background(), inv); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}

func TestMemoryCreateProduct_DuplicateSKU(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "DOG-0001", "Dogs", "9.99")

	err := m.CreateProduct(context.Background(), domain.Product{ID: "p2", SKU: "DOG-0001"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got: %v", err)
	}
}

func TestMemoryListProducts_Filters(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "DOG-0001", "Dogs", "10.00")
	seedProduct(t, m, "p2", "DOG-0002", "Dogs", "30.00")
	seedProduct(t, m, "p3", "CAT-0001", "Cats", "20.00")
	seedInventory(t, m, "i1", "p1", "store-a", 5, 0)
	seedInventory(t, m, "i2", "p1", "store-b", 10, 0)
	seedInventory(t, m, "i3", "p2", "store-a", 3, 0)

	minPrice := decimal.RequireFromString("15")
	minStock := 12

	tests := []struct {
		name   string
		filter domain.ProductFilter
		want   []string
	}{
		{"all", domain.ProductFilter{}, []string{"p1", "p2", "p3"}},
		{"category", domain.ProductFilter{Category: "Dogs"}, []string{"p1", "p2"}},
		{"min price", domain.ProductFilter{MinPrice: &minPrice}, []string{"p2", "p3"}},
		{"min stock sums stores", domain.ProductFilter{MinStock: &minStock}, []string{"p1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.filter.Page, tt.filter.PerPage = 1, 10
			items, total, err := m.ListProducts(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("ListProducts failed: %v", err)
			}
			if total != len(tt.want) {
				t.Errorf("expected total %d, got %d", len(tt.want), total)
			}
			for i, id := range tt.want {
				if i >= len(items) || items[i].ID != id {
					t.Fatalf("expected items %v, got %v", tt.want, items)
				}
			}
		})
	}
}

func TestMemoryListProducts_Pagination(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "S1", "Dogs", "1")
	seedProduct(t, m, "p2", "S2", "Dogs", "1")
	seedProduct(t, m, "p3", "S3", "Dogs", "1")

	items, total, err := m.ListProducts(context.Background(), domain.ProductFilter{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 1 || items[0].ID != "p3" {
		t.Errorf("expected [p3] on page 2, got %v", items)
	}

	items, _, _ = m.ListProducts(context.Background(), domain.ProductFilter{Page: 5, PerPage: 2})
	if len(items) != 0 {
		t.Errorf("expected empty page past the end, got %v", items)
	}
}

func TestMemoryCreateInventory_Constraints(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "S1", "Dogs", "1")
	seedInventory(t, m, "i1", "p1", "store-a", 5, 1)

	err := m.CreateInventory(context.Background(), domain.Inventory{ID: "i2", ProductID: "p1", StoreID: "store-a"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate pair, got: %v", err)
	}

	err = m.CreateInventory(context.Background(), domain.Inventory{ID: "i3", ProductID: "missing", StoreID: "store-a"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown product, got: %v", err)
	}
}

func TestMemoryDeleteProduct_WithInventory(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "S1", "Dogs", "1")
	seedProduct(t, m, "p2", "S2", "Dogs", "1")
	seedInventory(t, m, "i1", "p1", "store-a", 5, 1)

	if err := m.DeleteProduct(context.Background(), "p1"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got: %v", err)
	}
	if err := m.DeleteProduct(context.Background(), "p2"); err != nil {
		t.Fatalf("DeleteProduct failed: %v", err)
	}
	if p, _ := m.GetProduct(context.Background(), "p2"); p != nil {
		t.Error("expected p2 to be deleted")
	}
}

func TestMemoryWithinTx_Commit(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "S1", "Dogs", "1")
	seedInventory(t, m, "i1", "p1", "store-a", 10, 1)
	ctx := context.Background()

	err := m.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
		src, err := tx.LockInventory(ctx, "p1", "store-a")
		if err != nil {
			return err
		}
		if err := tx.CreateInventoryIfAbsent(ctx, domain.NewInventory("i2", "p1", "store-b", testTime)); err != nil {
			return err
		}
		dst, err := tx.LockInventory(ctx, "p1", "store-b")
		if err != nil {
			return err
		}
		src.Quantity -= 4
		dst.Quantity += 4
		if err := tx.UpdateInventory(ctx, *src); err != nil {
			return err
		}
		if err := tx.UpdateInventory(ctx, *dst); err != nil {
			return err
		}
		return tx.CreateMovement(ctx, domain.NewTransferMovement("mv1", "p1", "store-a", "store-b", 4, testTime))
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	src, _ := m.GetInventory(ctx, "p1", "store-a")
	dst, _ := m.GetInventory(ctx, "p1", "store-b")
	if src.Quantity != 6 {
		t.Errorf("expected source 6, got %d", src.Quantity)
	}
	if dst == nil || dst.Quantity != 4 {
		t.Fatalf("expected target with 4, got %+v", dst)
	}
	movements, _ := m.ListMovements(ctx, "p1")
	if len(movements) != 1 || movements[0].ID != "mv1" {
		t.Errorf("expected one movement, got %v", movements)
	}
}

func TestMemoryWithinTx_RollbackDiscardsStagedWrites(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "S1", "Dogs", "1")
	seedInventory(t, m, "i1", "p1", "store-a", 10, 1)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
		src, _ := tx.LockInventory(ctx, "p1", "store-a")
		src.Quantity = 0
		if err := tx.UpdateInventory(ctx, *src); err != nil {
			return err
		}
		if err := tx.CreateInventoryIfAbsent(ctx, domain.NewInventory("i2", "p1", "store-b", testTime)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got: %v", err)
	}

	src, _ := m.GetInventory(ctx, "p1", "store-a")
	if src.Quantity != 10 {
		t.Errorf("expected source untouched at 10, got %d", src.Quantity)
	}
	if dst, _ := m.GetInventory(ctx, "p1", "store-b"); dst != nil {
		t.Error("expected staged target to be discarded")
	}

	// Locks must be released after rollback.
	lockCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err = m.WithinTx(lockCtx, func(ctx context.Context, tx port.InventoryTx) error {
		_, err := tx.LockInventory(ctx, "p1", "store-a")
		return err
	})
	if err != nil {
		t.Errorf("expected lock to be free, got: %v", err)
	}
}

func TestMemoryWithinTx_UpdateRequiresLock(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "S1", "Dogs", "1")
	seedInventory(t, m, "i1", "p1", "store-a", 10, 1)

	err := m.WithinTx(context.Background(), func(ctx context.Context, tx port.InventoryTx) error {
		inv, _ := m.GetInventory(ctx, "p1", "store-a")
		return tx.UpdateInventory(ctx, *inv)
	})
	if !errors.Is(err, errNotLocked) {
		t.Errorf("expected errNotLocked, got: %v", err)
	}
}

func TestMemoryLockInventory_BlocksSecondTransaction(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "S1", "Dogs", "1")
	seedInventory(t, m, "i1", "p1", "store-a", 10, 1)
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- m.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
			if _, err := tx.LockInventory(ctx, "p1", "store-a"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := m.WithinTx(waitCtx, func(ctx context.Context, tx port.InventoryTx) error {
		_, err := tx.LockInventory(ctx, "p1", "store-a")
		return err
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded while lock is held, got: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first transaction failed: %v", err)
	}
}

func TestMemoryListLowStock(t *testing.T) {
	m := NewMemoryAdapter()
	seedProduct(t, m, "p1", "S1", "Dogs", "1")
	seedInventory(t, m, "i1", "p1", "store-a", 5, 10)
	seedInventory(t, m, "i2", "p1", "store-b", 15, 10)
	seedInventory(t, m, "i3", "p1", "store-c", 10, 10)

	positions, err := m.ListLowStock(context.Background())
	if err != nil {
		t.Fatalf("ListLowStock failed: %v", err)
	}
	if len(positions) != 2 || positions[0].ID != "i1" || positions[1].ID != "i3" {
		t.Fatalf("expected [i1 i3], got %v", positions)
	}
	if positions[0].Product.ID != "p1" {
		t.Errorf("expected joined product p1, got %q", positions[0].Product.ID)
	}
}
