package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/port"
)

const (
	mysqlDuplicateEntry  = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

const (
	mysqlPositionColumns = inventoryColumns + ", p.id AS `product.id`, p.name AS `product.name`, p.description AS `product.description`, p.category AS `product.category`, p.price AS `product.price`, p.sku AS `product.sku`, p.created_at AS `product.created_at`, p.updated_at AS `product.updated_at`"
	mysqlPositionFrom    = " FROM inventory i JOIN products p ON p.id = i.product_id"
)

type MySQLAdapter struct {
	db *sqlx.DB
}

var _ port.DatabaseRepository = (*MySQLAdapter)(nil)

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: sqlx.NewDb(db, "mysql")}
}

// mapMySQLError translates constraint violations into domain error kinds.
// fkKind is the kind reported for a foreign key violation, which depends on
// whether the statement inserted a child or deleted a parent.
func mapMySQLError(err error, fkKind error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case mysqlDuplicateEntry:
		return fmt.Errorf("%w: %s", domain.ErrConflict, myErr.Message)
	case mysqlRowIsReferenced, mysqlNoReferencedRow:
		return fmt.Errorf("%w: %s", fkKind, myErr.Message)
	}
	return err
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements("mysql")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) Close() error {
	return m.db.Close()
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO products (id, name, description, category, price, sku, created_at, updated_at)
		VALUES (:id, :name, :description, :category, :price, :sku, :created_at, :updated_at)`,
		newProductRow(product),
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", mapMySQLError(err, domain.ErrConflict))
	}
	return nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return m.getProduct(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = ?`, id)
}

func (m *MySQLAdapter) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return m.getProduct(ctx, `SELECT `+productColumns+` FROM products p WHERE p.sku = ?`, sku)
}

func (m *MySQLAdapter) getProduct(ctx context.Context, query string, arg any) (*domain.Product, error) {
	var row productRow
	err := m.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	product := row.toDomain()
	return &product, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	where, args := productFilterClause(filter)

	var total int
	if err := m.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM products p`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	var rows []productRow
	query := `SELECT ` + productColumns + ` FROM products p` + where + ` ORDER BY p.created_at, p.id LIMIT ? OFFSET ?`
	if err := m.db.SelectContext(ctx, &rows, query, append(args, filter.PerPage, filter.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("query products: %w", err)
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toDomain())
	}
	return products, total, nil
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	result, err := m.db.NamedExecContext(ctx, `
		UPDATE products
		SET name = :name, description = :description, category = :category,
			price = :price, sku = :sku, updated_at = :updated_at
		WHERE id = :id`,
		newProductRow(product),
	)
	if err != nil {
		return fmt.Errorf("update product: %w", mapMySQLError(err, domain.ErrConflict))
	}

	// MySQL reports matched-but-unchanged rows as unaffected, so only treat
	// zero as missing when the row is really gone.
	if rows, _ := result.RowsAffected(); rows == 0 {
		existing, err := m.GetProduct(ctx, product.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: product %s", domain.ErrNotFound, product.ID)
		}
	}
	return nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete product: %w", mapMySQLError(err, domain.ErrConflict))
	}
	return nil
}

func (m *MySQLAdapter) CountProductInventory(ctx context.Context, productID string) (int, error) {
	var count int
	if err := m.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM inventory WHERE product_id = ?`, productID); err != nil {
		return 0, fmt.Errorf("count inventory: %w", err)
	}
	return count, nil
}

func (m *MySQLAdapter) CreateInventory(ctx context.Context, inventory domain.Inventory) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO inventory (id, product_id, store_id, quantity, min_stock, created_at, updated_at)
		VALUES (:id, :product_id, :store_id, :quantity, :min_stock, :created_at, :updated_at)`,
		newInventoryRow(inventory),
	)
	if err != nil {
		return fmt.Errorf("insert inventory: %w", mapMySQLError(err, domain.ErrNotFound))
	}
	return nil
}

func (m *MySQLAdapter) GetInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error) {
	return getInventory(ctx, m.db, `
		SELECT `+inventoryColumns+`
		FROM inventory i WHERE i.product_id = ? AND i.store_id = ?`,
		productID, storeID,
	)
}

func (m *MySQLAdapter) ListStoreInventory(ctx context.Context, storeID string) ([]domain.StockPosition, error) {
	return m.listPositions(ctx, ` WHERE i.store_id = ?`, storeID)
}

func (m *MySQLAdapter) ListLowStock(ctx context.Context) ([]domain.StockPosition, error) {
	return m.listPositions(ctx, ` WHERE i.quantity <= i.min_stock`)
}

func (m *MySQLAdapter) listPositions(ctx context.Context, where string, args ...any) ([]domain.StockPosition, error) {
	var rows []positionRow
	query := `SELECT ` + mysqlPositionColumns + mysqlPositionFrom + where + ` ORDER BY i.created_at, i.id`
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	positions := make([]domain.StockPosition, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, row.toDomain())
	}
	return positions, nil
}

func (m *MySQLAdapter) ListMovements(ctx context.Context, productID string) ([]domain.Movement, error) {
	var rows []movementRow
	err := m.db.SelectContext(ctx, &rows, `
		SELECT `+movementColumns+`
		FROM movements WHERE product_id = ?
		ORDER BY moved_at DESC, id DESC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}

	movements := make([]domain.Movement, 0, len(rows))
	for _, row := range rows {
		movements = append(movements, row.toDomain())
	}
	return movements, nil
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.InventoryTx) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type mysqlTx struct {
	tx *sqlx.Tx
}

func (t *mysqlTx) LockInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error) {
	return getInventory(ctx, t.tx, `
		SELECT `+inventoryColumns+`
		FROM inventory i WHERE i.product_id = ? AND i.store_id = ?
		FOR UPDATE`,
		productID, storeID,
	)
}

// CreateInventoryIfAbsent relies on the (product_id, store_id) unique key;
// the no-op update leaves an existing row untouched but still takes its lock.
func (t *mysqlTx) CreateInventoryIfAbsent(ctx context.Context, inventory domain.Inventory) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO inventory (id, product_id, store_id, quantity, min_stock, created_at, updated_at)
		VALUES (:id, :product_id, :store_id, :quantity, :min_stock, :created_at, :updated_at)
		ON DUPLICATE KEY UPDATE id = id`,
		newInventoryRow(inventory),
	)
	if err != nil {
		return fmt.Errorf("insert inventory: %w", mapMySQLError(err, domain.ErrNotFound))
	}
	return nil
}

func (t *mysqlTx) UpdateInventory(ctx context.Context, inventory domain.Inventory) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE inventory SET quantity = ?, updated_at = ?
		WHERE id = ?`,
		inventory.Quantity, inventory.UpdatedAt, inventory.ID,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	return nil
}

func (t *mysqlTx) CreateMovement(ctx context.Context, movement domain.Movement) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO movements (id, product_id, source_store_id, target_store_id, quantity, type, moved_at)
		VALUES (:id, :product_id, :source_store_id, :target_store_id, :quantity, :type, :moved_at)`,
		newMovementRow(movement),
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", mapMySQLError(err, domain.ErrNotFound))
	}
	return nil
}

func getInventory(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*domain.Inventory, error) {
	var row inventoryRow
	err := sqlx.GetContext(ctx, q, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	inv := row.toDomain()
	return &inv, nil
}
