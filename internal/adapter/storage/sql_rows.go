package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/store-inventory/internal/core/domain"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// schemaStatements returns the DDL statements for a driver, one per entry.
func schemaStatements(driver string) ([]string, error) {
	data, err := schemaFS.ReadFile("schema/" + driver + ".sql")
	if err != nil {
		return nil, fmt.Errorf("read %s schema: %w", driver, err)
	}

	var stmts []string
	for _, stmt := range strings.Split(string(data), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

const (
	productColumns   = "p.id, p.name, p.description, p.category, p.price, p.sku, p.created_at, p.updated_at"
	inventoryColumns = "i.id, i.product_id, i.store_id, i.quantity, i.min_stock, i.created_at, i.updated_at"
	movementColumns  = "id, product_id, source_store_id, target_store_id, quantity, type, moved_at"
)

type productRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description sql.NullString  `db:"description"`
	Category    string          `db:"category"`
	Price       decimal.Decimal `db:"price"`
	SKU         string          `db:"sku"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func newProductRow(p domain.Product) productRow {
	return productRow{
		ID:          p.ID,
		Name:        p.Name,
		Description: sql.NullString{String: p.Description, Valid: p.Description != ""},
		Category:    p.Category,
		Price:       p.Price,
		SKU:         p.SKU,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Category:    r.Category,
		Price:       r.Price,
		SKU:         r.SKU,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type inventoryRow struct {
	ID        string    `db:"id"`
	ProductID string    `db:"product_id"`
	StoreID   string    `db:"store_id"`
	Quantity  int       `db:"quantity"`
	MinStock  int       `db:"min_stock"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func newInventoryRow(inv domain.Inventory) inventoryRow {
	return inventoryRow{
		ID:        inv.ID,
		ProductID: inv.ProductID,
		StoreID:   inv.StoreID,
		Quantity:  inv.Quantity,
		MinStock:  inv.MinStock,
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}
}

func (r inventoryRow) toDomain() domain.Inventory {
	return domain.Inventory{
		ID:        r.ID,
		ProductID: r.ProductID,
		StoreID:   r.StoreID,
		Quantity:  r.Quantity,
		MinStock:  r.MinStock,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// positionRow is an inventory row joined with its product; product columns
// are aliased "product.<column>".
type positionRow struct {
	inventoryRow
	Product productRow `db:"product"`
}

func (r positionRow) toDomain() domain.StockPosition {
	return domain.StockPosition{Inventory: r.inventoryRow.toDomain(), Product: r.Product.toDomain()}
}

type movementRow struct {
	ID            string         `db:"id"`
	ProductID     string         `db:"product_id"`
	SourceStoreID sql.NullString `db:"source_store_id"`
	TargetStoreID sql.NullString `db:"target_store_id"`
	Quantity      int            `db:"quantity"`
	Type          string         `db:"type"`
	MovedAt       time.Time      `db:"moved_at"`
}

func newMovementRow(m domain.Movement) movementRow {
	return movementRow{
		ID:            m.ID,
		ProductID:     m.ProductID,
		SourceStoreID: nullString(m.SourceStoreID),
		TargetStoreID: nullString(m.TargetStoreID),
		Quantity:      m.Quantity,
		Type:          string(m.Type),
		MovedAt:       m.Timestamp,
	}
}

func (r movementRow) toDomain() domain.Movement {
	return domain.Movement{
		ID:            r.ID,
		ProductID:     r.ProductID,
		SourceStoreID: stringPtr(r.SourceStoreID),
		TargetStoreID: stringPtr(r.TargetStoreID),
		Quantity:      r.Quantity,
		Type:          domain.MovementType(r.Type),
		Timestamp:     r.MovedAt.UTC(),
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// productFilterClause builds the WHERE clause of a product listing with "?"
// placeholders. Callers rebind it for their driver.
func productFilterClause(filter domain.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		conds = append(conds, "p.category = ?")
		args = append(args, filter.Category)
	}
	if filter.MinPrice != nil {
		conds = append(conds, "p.price >= ?")
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		conds = append(conds, "p.price <= ?")
		args = append(args, *filter.MaxPrice)
	}
	if filter.MinStock != nil {
		conds = append(conds, "p.id IN (SELECT product_id FROM inventory GROUP BY product_id HAVING SUM(quantity) >= ?)")
		args = append(args, *filter.MinStock)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
