package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/core/service"
	"github.com/rl1809/store-inventory/internal/platform/metrics"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	msgInvalidBody = "invalid request body"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	products  *service.ProductService
	inventory *service.InventoryService
	db        Pinger
	metrics   *metrics.ServerMetrics
	logger    *zap.Logger
}

func NewHTTPHandler(products *service.ProductService, inventory *service.InventoryService, db Pinger, m *metrics.ServerMetrics, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		products:  products,
		inventory: inventory,
		db:        db,
		metrics:   m,
		logger:    logger,
	}
}

// Register mounts every route on r.
func (h *HTTPHandler) Register(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := r.Group("/api")
	{
		api.POST("/inventory/transfer", h.Transfer)
		api.GET("/inventory/alerts", h.Alerts)

		api.GET("/stores/:store_id/inventory", h.ListStoreInventory)
		api.POST("/stores/:store_id/inventory", h.InitializeStock)

		api.GET("/products", h.ListProducts)
		api.POST("/products", h.CreateProduct)
		api.GET("/products/:id", h.GetProduct)
		api.PUT("/products/:id", h.UpdateProduct)
		api.DELETE("/products/:id", h.DeleteProduct)
		api.GET("/products/:id/movements", h.ListMovements)
	}
}

func (h *HTTPHandler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.Transfers.WithLabelValues("invalid").Inc()
		badRequest(c, msgInvalidBody)
		return
	}
	if req.ProductID == nil || req.SourceStoreID == nil || req.TargetStoreID == nil || req.Quantity == nil {
		h.metrics.Transfers.WithLabelValues("invalid").Inc()
		badRequest(c, domain.MsgMissingFields)
		return
	}

	movement, err := h.inventory.Transfer(c.Request.Context(), service.TransferCommand{
		ProductID:      *req.ProductID,
		SourceStoreID:  *req.SourceStoreID,
		TargetStoreID:  *req.TargetStoreID,
		Quantity:       *req.Quantity,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(IdempotencyHeader)),
	})
	h.metrics.Transfers.WithLabelValues(transferOutcome(err)).Inc()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, newMovementResponse(*movement))
}

func (h *HTTPHandler) Alerts(c *gin.Context) {
	alerts, err := h.inventory.Alerts(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newAlertListResponse(alerts))
}

func (h *HTTPHandler) ListStoreInventory(c *gin.Context) {
	positions, err := h.inventory.ListStoreInventory(c.Request.Context(), c.Param("store_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newInventoryListResponse(positions))
}

func (h *HTTPHandler) InitializeStock(c *gin.Context) {
	var req InitializeStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}
	if req.ProductID == nil || req.Quantity == nil || req.MinStock == nil {
		badRequest(c, domain.MsgMissingFields)
		return
	}

	pos, err := h.inventory.InitializeStock(c.Request.Context(), service.InitializeStockCommand{
		StoreID:   c.Param("store_id"),
		ProductID: *req.ProductID,
		Quantity:  *req.Quantity,
		MinStock:  *req.MinStock,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newInventoryResponse(*pos))
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	filter, msg := parseProductFilter(c)
	if msg != "" {
		badRequest(c, msg)
		return
	}

	page, err := h.products.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductPageResponse(page))
}

// parseProductFilter reads the listing query string. A non-empty message
// names the first malformed parameter.
func parseProductFilter(c *gin.Context) (domain.ProductFilter, string) {
	filter := domain.ProductFilter{Category: c.Query("category")}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &filter.Page},
		{"per_page", &filter.PerPage},
	} {
		if v := c.Query(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return filter, "invalid " + p.name
			}
			*p.dst = n
		}
	}

	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"min_price", &filter.MinPrice},
		{"max_price", &filter.MaxPrice},
	} {
		if v := c.Query(p.name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return filter, "invalid " + p.name
			}
			*p.dst = &d
		}
	}

	if v := c.Query("min_stock"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, "invalid min_stock"
		}
		filter.MinStock = &n
	}
	return filter, ""
}

func (h *HTTPHandler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}

	product, err := h.products.Create(c.Request.Context(), service.CreateProductCommand{
		Name:        deref(req.Name),
		Description: deref(req.Description),
		Category:    deref(req.Category),
		Price:       req.Price,
		SKU:         deref(req.SKU),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newProductResponse(*product))
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	product, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(*product))
}

func (h *HTTPHandler) UpdateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}

	product, err := h.products.Update(c.Request.Context(), service.UpdateProductCommand{
		ID:          c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		SKU:         req.SKU,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(*product))
}

func (h *HTTPHandler) DeleteProduct(c *gin.Context) {
	if err := h.products.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) ListMovements(c *gin.Context) {
	movements, err := h.inventory.ListMovements(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newMovementListResponse(movements))
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
