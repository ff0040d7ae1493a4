package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fraction digits kept on a product price.
const PriceScale = 2

// MaxPrice is the largest price the DECIMAL(10,2) price column holds.
var MaxPrice = decimal.RequireFromString("99999999.99")

type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	SKU         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductFilter narrows a product listing. Nil fields are not applied.
type ProductFilter struct {
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	// MinStock matches products whose quantity summed over all stores is at least this value.
	MinStock *int
	Page     int
	PerPage  int
}

func (f ProductFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Items       []Product
	Total       int
	Pages       int
	CurrentPage int
}

func NewProductPage(items []Product, total int, filter ProductFilter) ProductPage {
	pages := 0
	if filter.PerPage > 0 {
		pages = (total + filter.PerPage - 1) / filter.PerPage
	}
	return ProductPage{Items: items, Total: total, Pages: pages, CurrentPage: filter.Page}
}
