package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/port"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const (
	pgPositionColumns = inventoryColumns + ", " + productColumns
	pgPositionFrom    = " FROM inventory i JOIN products p ON p.id = i.product_id"
)

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

var _ port.DatabaseRepository = (*PostgresAdapter)(nil)

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func mapPgError(err error, fkKind error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Detail)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", fkKind, pgErr.Detail)
	}
	return err
}

func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements("postgres")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresAdapter) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresAdapter) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	row := newProductRow(product)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO products (id, name, description, category, price, sku, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		row.ID, row.Name, row.Description, row.Category, row.Price, row.SKU, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", mapPgError(err, domain.ErrConflict))
	}
	return nil
}

func (p *PostgresAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return p.getProduct(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id)
}

func (p *PostgresAdapter) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return p.getProduct(ctx, `SELECT `+productColumns+` FROM products p WHERE p.sku = $1`, sku)
}

func (p *PostgresAdapter) getProduct(ctx context.Context, query string, arg any) (*domain.Product, error) {
	rows, err := p.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[productRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}

	product := row.toDomain()
	return &product, nil
}

func (p *PostgresAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	where, args := productFilterClause(filter)

	var total int
	countQuery := sqlx.Rebind(sqlx.DOLLAR, `SELECT COUNT(*) FROM products p`+where)
	if err := p.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := sqlx.Rebind(sqlx.DOLLAR, `SELECT `+productColumns+` FROM products p`+where+` ORDER BY p.created_at, p.id LIMIT ? OFFSET ?`)
	rows, err := p.pool.Query(ctx, query, append(args, filter.PerPage, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("query products: %w", err)
	}
	productRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[productRow])
	if err != nil {
		return nil, 0, fmt.Errorf("scan products: %w", err)
	}

	products := make([]domain.Product, 0, len(productRows))
	for _, row := range productRows {
		products = append(products, row.toDomain())
	}
	return products, total, nil
}

func (p *PostgresAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	row := newProductRow(product)
	tag, err := p.pool.Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, price = $5, sku = $6, updated_at = $7
		WHERE id = $1`,
		row.ID, row.Name, row.Description, row.Category, row.Price, row.SKU, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", mapPgError(err, domain.ErrConflict))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, product.ID)
	}
	return nil
}

func (p *PostgresAdapter) DeleteProduct(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete product: %w", mapPgError(err, domain.ErrConflict))
	}
	return nil
}

func (p *PostgresAdapter) CountProductInventory(ctx context.Context, productID string) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory WHERE product_id = $1`, productID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count inventory: %w", err)
	}
	return count, nil
}

func (p *PostgresAdapter) CreateInventory(ctx context.Context, inventory domain.Inventory) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO inventory (id, product_id, store_id, quantity, min_stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inventory.ID, inventory.ProductID, inventory.StoreID, inventory.Quantity, inventory.MinStock,
		inventory.CreatedAt, inventory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inventory: %w", mapPgError(err, domain.ErrNotFound))
	}
	return nil
}

func (p *PostgresAdapter) GetInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error) {
	return queryInventory(ctx, p.pool, `
		SELECT `+inventoryColumns+`
		FROM inventory i WHERE i.product_id = $1 AND i.store_id = $2`,
		productID, storeID,
	)
}

func (p *PostgresAdapter) ListStoreInventory(ctx context.Context, storeID string) ([]domain.StockPosition, error) {
	return p.listPositions(ctx, ` WHERE i.store_id = $1`, storeID)
}

func (p *PostgresAdapter) ListLowStock(ctx context.Context) ([]domain.StockPosition, error) {
	return p.listPositions(ctx, ` WHERE i.quantity <= i.min_stock`)
}

func (p *PostgresAdapter) listPositions(ctx context.Context, where string, args ...any) ([]domain.StockPosition, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgPositionColumns+pgPositionFrom+where+` ORDER BY i.created_at, i.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	positions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StockPosition, error) {
		var r positionRow
		err := row.Scan(
			&r.ID, &r.ProductID, &r.StoreID, &r.Quantity, &r.MinStock, &r.CreatedAt, &r.UpdatedAt,
			&r.Product.ID, &r.Product.Name, &r.Product.Description, &r.Product.Category,
			&r.Product.Price, &r.Product.SKU, &r.Product.CreatedAt, &r.Product.UpdatedAt,
		)
		return r.toDomain(), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan inventory: %w", err)
	}
	return positions, nil
}

func (p *PostgresAdapter) ListMovements(ctx context.Context, productID string) ([]domain.Movement, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+movementColumns+`
		FROM movements WHERE product_id = $1
		ORDER BY moved_at DESC, id DESC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	movementRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[movementRow])
	if err != nil {
		return nil, fmt.Errorf("scan movements: %w", err)
	}

	movements := make([]domain.Movement, 0, len(movementRows))
	for _, row := range movementRows {
		movements = append(movements, row.toDomain())
	}
	return movements, nil
}

func (p *PostgresAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.InventoryTx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error) {
	return queryInventory(ctx, t.tx, `
		SELECT `+inventoryColumns+`
		FROM inventory i WHERE i.product_id = $1 AND i.store_id = $2
		FOR UPDATE`,
		productID, storeID,
	)
}

func (t *postgresTx) CreateInventoryIfAbsent(ctx context.Context, inventory domain.Inventory) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory (id, product_id, store_id, quantity, min_stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_id, store_id) DO NOTHING`,
		inventory.ID, inventory.ProductID, inventory.StoreID, inventory.Quantity, inventory.MinStock,
		inventory.CreatedAt, inventory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inventory: %w", mapPgError(err, domain.ErrNotFound))
	}
	return nil
}

func (t *postgresTx) UpdateInventory(ctx context.Context, inventory domain.Inventory) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE inventory SET quantity = $2, updated_at = $3
		WHERE id = $1`,
		inventory.ID, inventory.Quantity, inventory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	return nil
}

func (t *postgresTx) CreateMovement(ctx context.Context, movement domain.Movement) error {
	row := newMovementRow(movement)
	_, err := t.tx.Exec(ctx, `
		INSERT INTO movements (id, product_id, source_store_id, target_store_id, quantity, type, moved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ID, row.ProductID, row.SourceStoreID, row.TargetStoreID, row.Quantity, row.Type, row.MovedAt,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", mapPgError(err, domain.ErrNotFound))
	}
	return nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryInventory(ctx context.Context, q pgQuerier, query string, args ...any) (*domain.Inventory, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[inventoryRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan inventory: %w", err)
	}

	inv := row.toDomain()
	return &inv, nil
}
