package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/port"
)

var (
	errNotLocked        = errors.New("inventory position not locked by transaction")
	errNegativeQuantity = errors.New("inventory quantity cannot be negative")
)

type positionKey struct {
	productID string
	storeID   string
}

// keyLocks hands out one lock per (product, store) pair. A buffered channel
// is used instead of a mutex so waiting honours context cancellation.
type keyLocks struct {
	mu    sync.Mutex
	locks map[positionKey]chan struct{}
}

func (l *keyLocks) get(key positionKey) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locks == nil {
		l.locks = make(map[positionKey]chan struct{})
	}
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

func (l *keyLocks) lock(ctx context.Context, key positionKey) error {
	select {
	case l.get(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *keyLocks) unlock(key positionKey) {
	<-l.get(key)
}

// MemoryAdapter keeps every record in process memory. Records come back in
// insertion order. Transactions lock positions per key and stage their
// writes until commit, so readers never observe half a transfer.
type MemoryAdapter struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	productIDs   []string
	inventory    map[string]domain.Inventory
	inventoryIDs []string
	positions    map[positionKey]string
	movements    []domain.Movement

	locks keyLocks
}

var _ port.DatabaseRepository = (*MemoryAdapter)(nil)

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:  make(map[string]domain.Product),
		inventory: make(map[string]domain.Inventory),
		positions: make(map[positionKey]string),
	}
}

func (m *MemoryAdapter) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryAdapter) Close() error { return nil }

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[product.ID]; ok {
		return fmt.Errorf("%w: product %s exists", domain.ErrConflict, product.ID)
	}
	if m.findBySKU(product.SKU) != nil {
		return fmt.Errorf("%w: sku %s exists", domain.ErrConflict, product.SKU)
	}

	m.products[product.ID] = product
	m.productIDs = append(m.productIDs, product.ID)
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &product, nil
}

func (m *MemoryAdapter) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.findBySKU(sku), nil
}

func (m *MemoryAdapter) findBySKU(sku string) *domain.Product {
	for _, id := range m.productIDs {
		if product := m.products[id]; product.SKU == sku {
			return &product
		}
	}
	return nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stock map[string]int
	if filter.MinStock != nil {
		stock = make(map[string]int)
		for _, inv := range m.inventory {
			stock[inv.ProductID] += inv.Quantity
		}
	}

	var matched []domain.Product
	for _, id := range m.productIDs {
		product := m.products[id]
		if filter.Category != "" && product.Category != filter.Category {
			continue
		}
		if filter.MinPrice != nil && product.Price.LessThan(*filter.MinPrice) {
			continue
		}
		if filter.MaxPrice != nil && product.Price.GreaterThan(*filter.MaxPrice) {
			continue
		}
		if filter.MinStock != nil {
			total, held := stock[product.ID]
			if !held || total < *filter.MinStock {
				continue
			}
		}
		matched = append(matched, product)
	}

	start := min(filter.Offset(), len(matched))
	end := min(start+filter.PerPage, len(matched))
	return slices.Clone(matched[start:end]), len(matched), nil
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[product.ID]; !ok {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, product.ID)
	}
	if other := m.findBySKU(product.SKU); other != nil && other.ID != product.ID {
		return fmt.Errorf("%w: sku %s exists", domain.ErrConflict, product.SKU)
	}
	m.products[product.ID] = product
	return nil
}

func (m *MemoryAdapter) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.countInventory(id) > 0 {
		return fmt.Errorf("%w: product %s has inventory", domain.ErrConflict, id)
	}
	delete(m.products, id)
	m.productIDs = slices.DeleteFunc(m.productIDs, func(pid string) bool { return pid == id })
	return nil
}

func (m *MemoryAdapter) CountProductInventory(ctx context.Context, productID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.countInventory(productID), nil
}

func (m *MemoryAdapter) countInventory(productID string) int {
	count := 0
	for _, inv := range m.inventory {
		if inv.ProductID == productID {
			count++
		}
	}
	return count
}

// CreateInventory takes the position lock so it cannot race a transfer
// creating the same pair.
func (m *MemoryAdapter) CreateInventory(ctx context.Context, inventory domain.Inventory) error {
	key := positionKey{inventory.ProductID, inventory.StoreID}
	if err := m.locks.lock(ctx, key); err != nil {
		return err
	}
	defer m.locks.unlock(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[inventory.ProductID]; !ok {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, inventory.ProductID)
	}
	if _, ok := m.positions[key]; ok {
		return fmt.Errorf("%w: inventory %s/%s exists", domain.ErrConflict, key.productID, key.storeID)
	}
	m.insertInventory(inventory)
	return nil
}

func (m *MemoryAdapter) insertInventory(inventory domain.Inventory) {
	m.inventory[inventory.ID] = inventory
	m.inventoryIDs = append(m.inventoryIDs, inventory.ID)
	m.positions[positionKey{inventory.ProductID, inventory.StoreID}] = inventory.ID
}

func (m *MemoryAdapter) GetInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lookup(positionKey{productID, storeID}), nil
}

func (m *MemoryAdapter) lookup(key positionKey) *domain.Inventory {
	id, ok := m.positions[key]
	if !ok {
		return nil
	}
	inv := m.inventory[id]
	return &inv
}

func (m *MemoryAdapter) ListStoreInventory(ctx context.Context, storeID string) ([]domain.StockPosition, error) {
	return m.listPositions(func(inv domain.Inventory) bool { return inv.StoreID == storeID }), nil
}

func (m *MemoryAdapter) ListLowStock(ctx context.Context) ([]domain.StockPosition, error) {
	return m.listPositions(domain.Inventory.BelowMinimum), nil
}

func (m *MemoryAdapter) listPositions(match func(domain.Inventory) bool) []domain.StockPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	positions := []domain.StockPosition{}
	for _, id := range m.inventoryIDs {
		inv := m.inventory[id]
		if match(inv) {
			positions = append(positions, domain.StockPosition{Inventory: inv, Product: m.products[inv.ProductID]})
		}
	}
	return positions
}

func (m *MemoryAdapter) ListMovements(ctx context.Context, productID string) ([]domain.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	movements := []domain.Movement{}
	for i := len(m.movements) - 1; i >= 0; i-- {
		if m.movements[i].ProductID == productID {
			movements = append(movements, m.movements[i])
		}
	}
	return movements, nil
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.InventoryTx) error) error {
	tx := &memoryTx{
		store:   m,
		held:    make(map[positionKey]bool),
		staged:  make(map[positionKey]domain.Inventory),
		created: make(map[positionKey]bool),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	store *MemoryAdapter

	held      map[positionKey]bool
	lockOrder []positionKey

	// staged holds the pending state of every position written by the
	// transaction; created marks the ones that do not exist yet.
	staged       map[positionKey]domain.Inventory
	created      map[positionKey]bool
	createdOrder []positionKey
	movements    []domain.Movement
}

func (t *memoryTx) acquire(ctx context.Context, key positionKey) error {
	if t.held[key] {
		return nil
	}
	if err := t.store.locks.lock(ctx, key); err != nil {
		return err
	}
	t.held[key] = true
	t.lockOrder = append(t.lockOrder, key)
	return nil
}

func (t *memoryTx) current(key positionKey) *domain.Inventory {
	if inv, ok := t.staged[key]; ok {
		return &inv
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.lookup(key)
}

func (t *memoryTx) LockInventory(ctx context.Context, productID, storeID string) (*domain.Inventory, error) {
	key := positionKey{productID, storeID}
	if err := t.acquire(ctx, key); err != nil {
		return nil, err
	}
	return t.current(key), nil
}

func (t *memoryTx) CreateInventoryIfAbsent(ctx context.Context, inventory domain.Inventory) error {
	key := positionKey{inventory.ProductID, inventory.StoreID}
	if err := t.acquire(ctx, key); err != nil {
		return err
	}
	if t.current(key) != nil {
		return nil
	}

	t.store.mu.RLock()
	_, productExists := t.store.products[inventory.ProductID]
	t.store.mu.RUnlock()
	if !productExists {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, inventory.ProductID)
	}

	t.staged[key] = inventory
	t.created[key] = true
	t.createdOrder = append(t.createdOrder, key)
	return nil
}

func (t *memoryTx) UpdateInventory(ctx context.Context, inventory domain.Inventory) error {
	key := positionKey{inventory.ProductID, inventory.StoreID}
	if !t.held[key] {
		return errNotLocked
	}
	if inventory.Quantity < 0 {
		return errNegativeQuantity
	}
	current := t.current(key)
	if current == nil {
		return fmt.Errorf("%w: inventory %s", domain.ErrNotFound, inventory.ID)
	}

	current.Quantity = inventory.Quantity
	current.UpdatedAt = inventory.UpdatedAt
	t.staged[key] = *current
	return nil
}

func (t *memoryTx) CreateMovement(ctx context.Context, movement domain.Movement) error {
	t.movements = append(t.movements, movement)
	return nil
}

func (t *memoryTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range t.createdOrder {
		s.insertInventory(t.staged[key])
	}
	for key, inv := range t.staged {
		if !t.created[key] {
			s.inventory[inv.ID] = inv
		}
	}
	s.movements = append(s.movements, t.movements...)
}

func (t *memoryTx) release() {
	for i := len(t.lockOrder) - 1; i >= 0; i-- {
		t.store.locks.unlock(t.lockOrder[i])
	}
}
