package domain

import "time"

// Inventory is a stock position: how much of a product a store holds and
// the level at which it should be restocked.
type Inventory struct {
	ID        string
	ProductID string
	StoreID   string
	Quantity  int
	MinStock  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewInventory returns a position with the defaults used when a transfer
// lands in a store that has never held the product.
func NewInventory(id, productID, storeID string, now time.Time) Inventory {
	return Inventory{
		ID:        id,
		ProductID: productID,
		StoreID:   storeID,
		Quantity:  0,
		MinStock:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// BelowMinimum reports whether the position is at or under its restock threshold.
func (i Inventory) BelowMinimum() bool {
	return i.Quantity <= i.MinStock
}

// StockPosition is an inventory row joined with its product.
type StockPosition struct {
	Inventory
	Product Product
}

// Alert is a position at or below its minimum stock.
type Alert struct {
	StockPosition
	MissingQuantity int
}

// NewAlert builds an alert for pos, or returns false when pos is above its minimum.
func NewAlert(pos StockPosition) (Alert, bool) {
	if !pos.BelowMinimum() {
		return Alert{}, false
	}
	return Alert{StockPosition: pos, MissingQuantity: pos.MinStock - pos.Quantity}, true
}
