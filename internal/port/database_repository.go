package port

import (
	"context"

	"github.com/rl1809/store-inventory/internal/core/domain"
)

// Lookups return (nil, nil) when the record does not exist. Writes that
// collide with a uniqueness or reference constraint return an error
// wrapping domain.ErrConflict.

type ProductRepository interface {
	CreateProduct(ctx context.Context, product domain.Product) error

	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)

	// ListProducts returns one page of matching products and the total match count
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)

	UpdateProduct(ctx context.Context, product domain.Product) error

	DeleteProduct(ctx context.Context, id string) error

	// CountProductInventory returns how many stock positions reference the product
	CountProductInventory(ctx context.Context, productID string) (int, error)
}

type InventoryRepository interface {
	// CreateInventory inserts a new position, failing on a duplicate (product, store) pair
	CreateInventory(ctx context.Context, inventory domain.Inventory) error

	GetInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error)

	ListStoreInventory(ctx context.Context, storeID string) ([]domain.StockPosition, error)

	// ListLowStock returns every position with quantity <= min_stock
	ListLowStock(ctx context.Context) ([]domain.StockPosition, error)

	// ListMovements returns the audit trail of a product, newest first
	ListMovements(ctx context.Context, productID string) ([]domain.Movement, error)

	// WithinTx runs fn in a transaction. It commits when fn returns nil and
	// rolls back otherwise; locks taken through tx are held until then.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx InventoryTx) error) error
}

// InventoryTx is the set of writes a transfer performs atomically.
type InventoryTx interface {
	// LockInventory reads a position and locks it until the transaction ends
	LockInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error)

	// CreateInventoryIfAbsent inserts the position unless the pair already exists
	CreateInventoryIfAbsent(ctx context.Context, inventory domain.Inventory) error

	// UpdateInventory writes quantity and updated_at of a locked position
	UpdateInventory(ctx context.Context, inventory domain.Inventory) error

	CreateMovement(ctx context.Context, movement domain.Movement) error
}

type DatabaseRepository interface {
	ProductRepository
	InventoryRepository

	Ping(ctx context.Context) error
	Close() error
}
