package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/store-inventory/internal/core/domain"
)

// Request fields are pointers so an absent field can be told apart from a zero value.

type TransferRequest struct {
	ProductID     *string `json:"product_id"`
	SourceStoreID *string `json:"source_store_id"`
	TargetStoreID *string `json:"target_store_id"`
	Quantity      *int    `json:"quantity"`
}

type InitializeStockRequest struct {
	ProductID *string `json:"product_id"`
	Quantity  *int    `json:"quantity"`
	MinStock  *int    `json:"min_stock"`
}

type ProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	SKU         *string          `json:"sku"`
}

type ProductResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	SKU         string  `json:"sku"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type ProductPageResponse struct {
	Items       []ProductResponse `json:"items"`
	Total       int               `json:"total"`
	Pages       int               `json:"pages"`
	CurrentPage int               `json:"current_page"`
}

type InventoryResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	StoreID   string          `json:"store_id"`
	Quantity  int             `json:"quantity"`
	MinStock  int             `json:"min_stock"`
	Product   ProductResponse `json:"product"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type AlertResponse struct {
	InventoryResponse
	MissingQuantity int `json:"missing_quantity"`
}

type MovementResponse struct {
	ID            string  `json:"id"`
	ProductID     string  `json:"product_id"`
	SourceStoreID *string `json:"source_store_id"`
	TargetStoreID *string `json:"target_store_id"`
	Quantity      int     `json:"quantity"`
	Type          string  `json:"type"`
	Timestamp     string  `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func newProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price.InexactFloat64(),
		SKU:         p.SKU,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
}

func newProductPageResponse(page domain.ProductPage) ProductPageResponse {
	items := make([]ProductResponse, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, newProductResponse(p))
	}
	return ProductPageResponse{Items: items, Total: page.Total, Pages: page.Pages, CurrentPage: page.CurrentPage}
}

func newInventoryResponse(pos domain.StockPosition) InventoryResponse {
	return InventoryResponse{
		ID:        pos.ID,
		ProductID: pos.ProductID,
		StoreID:   pos.StoreID,
		Quantity:  pos.Quantity,
		MinStock:  pos.MinStock,
		Product:   newProductResponse(pos.Product),
		CreatedAt: formatTime(pos.CreatedAt),
		UpdatedAt: formatTime(pos.UpdatedAt),
	}
}

func newInventoryListResponse(positions []domain.StockPosition) []InventoryResponse {
	resp := make([]InventoryResponse, 0, len(positions))
	for _, pos := range positions {
		resp = append(resp, newInventoryResponse(pos))
	}
	return resp
}

func newAlertListResponse(alerts []domain.Alert) []AlertResponse {
	resp := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		resp = append(resp, AlertResponse{
			InventoryResponse: newInventoryResponse(a.StockPosition),
			MissingQuantity:   a.MissingQuantity,
		})
	}
	return resp
}

func newMovementResponse(m domain.Movement) MovementResponse {
	return MovementResponse{
		ID:            m.ID,
		ProductID:     m.ProductID,
		SourceStoreID: m.SourceStoreID,
		TargetStoreID: m.TargetStoreID,
		Quantity:      m.Quantity,
		Type:          string(m.Type),
		Timestamp:     formatTime(m.Timestamp),
	}
}

func newMovementListResponse(movements []domain.Movement) []MovementResponse {
	resp := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		resp = append(resp, newMovementResponse(m))
	}
	return resp
}
