package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/port"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 10
	MaxPerPage     = 100
)

type ProductService struct {
	db port.ProductRepository
	options
}

func NewProductService(db port.ProductRepository, opts ...Option) *ProductService {
	return &ProductService{db: db, options: buildOptions(opts)}
}

type CreateProductCommand struct {
	Name        string
	Description string
	Category    string
	Price       *decimal.Decimal
	SKU         string
}

func (c CreateProductCommand) validate() error {
	switch {
	case c.Name == "":
		return missingField("name")
	case c.Category == "":
		return missingField("category")
	case c.Price == nil:
		return missingField("price")
	case c.SKU == "":
		return missingField("sku")
	}
	return validatePrice(*c.Price)
}

func missingField(name string) error {
	return domain.NewValidationError("missing required field: " + name)
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return domain.NewValidationError(domain.MsgPriceNegative)
	}
	if price.Round(domain.PriceScale).GreaterThan(domain.MaxPrice) {
		return domain.NewValidationError(domain.MsgPriceTooLarge)
	}
	return nil
}

func (s *ProductService) Create(ctx context.Context, cmd CreateProductCommand) (*domain.Product, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureSKUFree(ctx, cmd.SKU); err != nil {
		return nil, err
	}

	now := s.timestamp()
	product := domain.Product{
		ID:          s.newID(),
		Name:        cmd.Name,
		Description: cmd.Description,
		Category:    cmd.Category,
		Price:       cmd.Price.Round(domain.PriceScale),
		SKU:         cmd.SKU,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateProduct(ctx, product); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.NewConflictError(domain.MsgSKUExists)
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.Info("product created", zap.String("product_id", product.ID), zap.String("sku", product.SKU))
	return &product, nil
}

func (s *ProductService) Get(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.db.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, domain.NewNotFoundError(domain.MsgProductNotFound)
	}
	return product, nil
}

// List applies the filter, defaulting and clamping the pagination fields.
func (s *ProductService) List(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	if filter.Page < 1 {
		filter.Page = DefaultPage
	}
	if filter.PerPage < 1 {
		filter.PerPage = DefaultPerPage
	}
	if filter.PerPage > MaxPerPage {
		filter.PerPage = MaxPerPage
	}

	items, total, err := s.db.ListProducts(ctx, filter)
	if err != nil {
		return domain.ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	return domain.NewProductPage(items, total, filter), nil
}

// UpdateProductCommand holds a partial update; nil fields are left unchanged.
type UpdateProductCommand struct {
	ID          string
	Name        *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
	SKU         *string
}

func (s *ProductService) Update(ctx context.Context, cmd UpdateProductCommand) (*domain.Product, error) {
	product, err := s.Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}

	if cmd.SKU != nil && *cmd.SKU != product.SKU {
		if *cmd.SKU == "" {
			return nil, missingField("sku")
		}
		if err := s.ensureSKUFree(ctx, *cmd.SKU); err != nil {
			return nil, err
		}
		product.SKU = *cmd.SKU
	}
	if cmd.Name != nil {
		if *cmd.Name == "" {
			return nil, missingField("name")
		}
		product.Name = *cmd.Name
	}
	if cmd.Category != nil {
		if *cmd.Category == "" {
			return nil, missingField("category")
		}
		product.Category = *cmd.Category
	}
	if cmd.Description != nil {
		product.Description = *cmd.Description
	}
	if cmd.Price != nil {
		if err := validatePrice(*cmd.Price); err != nil {
			return nil, err
		}
		product.Price = cmd.Price.Round(domain.PriceScale)
	}
	product.UpdatedAt = s.timestamp()

	if err := s.db.UpdateProduct(ctx, *product); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.NewConflictError(domain.MsgSKUExists)
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

// Delete removes a product that no store holds.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	count, err := s.db.CountProductInventory(ctx, id)
	if err != nil {
		return fmt.Errorf("count inventory: %w", err)
	}
	if count > 0 {
		return domain.NewConflictError(domain.MsgProductHasStock)
	}

	if err := s.db.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.NewConflictError(domain.MsgProductHasStock)
		}
		return fmt.Errorf("delete product: %w", err)
	}

	s.logger.Info("product deleted", zap.String("product_id", id))
	return nil
}

func (s *ProductService) ensureSKUFree(ctx context.Context, sku string) error {
	existing, err := s.db.GetProductBySKU(ctx, sku)
	if err != nil {
		return fmt.Errorf("get product by sku: %w", err)
	}
	if existing != nil {
		return domain.NewConflictError(domain.MsgSKUExists)
	}
	return nil
}
