package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/port"
)

const idempotencyKeyPrefix = "transfer:"

// Repository is the persistence the inventory service needs.
type Repository interface {
	port.ProductRepository
	port.InventoryRepository
}

type InventoryService struct {
	db    Repository
	cache port.CacheRepository
	options
}

// NewInventoryService wires the service. cache may be nil, in which case
// idempotency keys are ignored.
func NewInventoryService(db Repository, cache port.CacheRepository, opts ...Option) *InventoryService {
	return &InventoryService{
		db:      db,
		cache:   cache,
		options: buildOptions(opts),
	}
}

type TransferCommand struct {
	ProductID      string
	SourceStoreID  string
	TargetStoreID  string
	Quantity       int
	IdempotencyKey string
}

func (c TransferCommand) validate() error {
	if c.ProductID == "" || c.SourceStoreID == "" || c.TargetStoreID == "" {
		return domain.NewValidationError(domain.MsgMissingFields)
	}
	if c.Quantity <= 0 {
		return domain.NewValidationError(domain.MsgQuantityPositive)
	}
	return nil
}

// Transfer moves quantity units of a product from one store to another.
// Both position updates and the TRANSFER movement commit together.
func (s *InventoryService) Transfer(ctx context.Context, cmd TransferCommand) (_ *domain.Movement, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.transfer")
	defer span.End()

	span.SetAttributes(
		attribute.String("inventory.product_id", cmd.ProductID),
		attribute.String("inventory.source_store_id", cmd.SourceStoreID),
		attribute.String("inventory.target_store_id", cmd.TargetStoreID),
		attribute.Int("inventory.quantity", cmd.Quantity),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := cmd.validate(); err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" && s.cache != nil {
		key := idempotencyKeyPrefix + cmd.IdempotencyKey
		ok, claimErr := s.cache.SetIdempotency(ctx, key)
		if claimErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Error("failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
			}
		}()
	}

	var movement domain.Movement
	err = s.db.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
		source, target, err := s.lockPositions(ctx, tx, cmd)
		if err != nil {
			return err
		}
		if source.Quantity < cmd.Quantity {
			return domain.NewInsufficientStockError(domain.MsgInsufficientStock)
		}

		now := s.timestamp()
		if source.ID != target.ID {
			source.Quantity -= cmd.Quantity
			source.UpdatedAt = now
			target.Quantity += cmd.Quantity
			target.UpdatedAt = now

			if err := tx.UpdateInventory(ctx, *source); err != nil {
				return fmt.Errorf("debit source: %w", err)
			}
			if err := tx.UpdateInventory(ctx, *target); err != nil {
				return fmt.Errorf("credit target: %w", err)
			}
		}

		movement = domain.NewTransferMovement(s.newID(), cmd.ProductID, cmd.SourceStoreID, cmd.TargetStoreID, cmd.Quantity, now)
		if err := tx.CreateMovement(ctx, movement); err != nil {
			return fmt.Errorf("record movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("inventory.movement_id", movement.ID))
	span.SetStatus(codes.Ok, "transferred")
	s.logger.Info("inventory transferred",
		zap.String("movement_id", movement.ID),
		zap.String("product_id", cmd.ProductID),
		zap.String("source_store_id", cmd.SourceStoreID),
		zap.String("target_store_id", cmd.TargetStoreID),
		zap.Int("quantity", cmd.Quantity),
	)
	return &movement, nil
}

// lockPositions locks source and target in store id order, so transfers
// running in opposite directions between two stores never wait on each other
// in a cycle. A missing target is created with zero stock before it is locked.
func (s *InventoryService) lockPositions(ctx context.Context, tx port.InventoryTx, cmd TransferCommand) (source, target *domain.Inventory, err error) {
	if cmd.SourceStoreID == cmd.TargetStoreID {
		source, err = s.lockSource(ctx, tx, cmd.ProductID, cmd.SourceStoreID)
		if err != nil {
			return nil, nil, err
		}
		return source, source, nil
	}

	stores := []string{cmd.SourceStoreID, cmd.TargetStoreID}
	slices.Sort(stores)
	for _, storeID := range stores {
		if storeID == cmd.SourceStoreID {
			source, err = s.lockSource(ctx, tx, cmd.ProductID, storeID)
		} else {
			target, err = s.lockTarget(ctx, tx, cmd.ProductID, storeID)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return source, target, nil
}

func (s *InventoryService) lockSource(ctx context.Context, tx port.InventoryTx, productID, storeID string) (*domain.Inventory, error) {
	source, err := tx.LockInventory(ctx, productID, storeID)
	if err != nil {
		return nil, fmt.Errorf("lock source inventory: %w", err)
	}
	if source == nil {
		return nil, domain.NewNotFoundError(domain.MsgSourceNotFound)
	}
	return source, nil
}

func (s *InventoryService) lockTarget(ctx context.Context, tx port.InventoryTx, productID, storeID string) (*domain.Inventory, error) {
	err := tx.CreateInventoryIfAbsent(ctx, domain.NewInventory(s.newID(), productID, storeID, s.timestamp()))
	if errors.Is(err, domain.ErrNotFound) {
		// The product does not exist, so neither can the source position.
		return nil, domain.NewNotFoundError(domain.MsgSourceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("create target inventory: %w", err)
	}

	target, err := tx.LockInventory(ctx, productID, storeID)
	if err != nil {
		return nil, fmt.Errorf("lock target inventory: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("target inventory %s/%s missing after create", productID, storeID)
	}
	return target, nil
}

// Alerts lists every position at or below its minimum stock.
func (s *InventoryService) Alerts(ctx context.Context) ([]domain.Alert, error) {
	positions, err := s.db.ListLowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}

	alerts := make([]domain.Alert, 0, len(positions))
	for _, pos := range positions {
		if alert, ok := domain.NewAlert(pos); ok {
			alerts = append(alerts, alert)
		}
	}
	return alerts, nil
}

type InitializeStockCommand struct {
	StoreID   string
	ProductID string
	Quantity  int
	MinStock  int
}

func (c InitializeStockCommand) validate() error {
	if c.StoreID == "" || c.ProductID == "" {
		return domain.NewValidationError(domain.MsgMissingFields)
	}
	if c.Quantity < 0 {
		return domain.NewValidationError(domain.MsgQuantityNegative)
	}
	if c.MinStock < 0 {
		return domain.NewValidationError(domain.MsgMinStockNegative)
	}
	return nil
}

// InitializeStock opens a position for a product in a store.
func (s *InventoryService) InitializeStock(ctx context.Context, cmd InitializeStockCommand) (*domain.StockPosition, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	product, err := s.db.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, domain.NewNotFoundError(domain.MsgProductNotFound)
	}

	existing, err := s.db.GetInventory(ctx, cmd.ProductID, cmd.StoreID)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	if existing != nil {
		return nil, domain.NewConflictError(domain.MsgInventoryExists)
	}

	now := s.timestamp()
	inv := domain.Inventory{
		ID:        s.newID(),
		ProductID: cmd.ProductID,
		StoreID:   cmd.StoreID,
		Quantity:  cmd.Quantity,
		MinStock:  cmd.MinStock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.CreateInventory(ctx, inv); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.NewConflictError(domain.MsgInventoryExists)
		}
		return nil, fmt.Errorf("create inventory: %w", err)
	}

	s.logger.Info("store inventory initialized",
		zap.String("inventory_id", inv.ID),
		zap.String("product_id", inv.ProductID),
		zap.String("store_id", inv.StoreID),
		zap.Int("quantity", inv.Quantity),
	)
	return &domain.StockPosition{Inventory: inv, Product: *product}, nil
}

func (s *InventoryService) ListStoreInventory(ctx context.Context, storeID string) ([]domain.StockPosition, error) {
	positions, err := s.db.ListStoreInventory(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("list store inventory: %w", err)
	}
	return positions, nil
}

// ListMovements returns the audit trail of a product.
func (s *InventoryService) ListMovements(ctx context.Context, productID string) ([]domain.Movement, error) {
	product, err := s.db.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, domain.NewNotFoundError(domain.MsgProductNotFound)
	}

	movements, err := s.db.ListMovements(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}
