// Package handler содержит HTTP обработчики REST API Inventory Service.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/commerce-platform/pkg/logger"
	"example.com/commerce-platform/services/inventory/internal/domain"
	"example.com/commerce-platform/services/inventory/internal/service"
)

// HeaderIdempotencyKey — заголовок ключа идемпотентности резервирования.
const HeaderIdempotencyKey = "Idempotency-Key"

// InventoryHandler — обработчик операций Inventory Engine.
type InventoryHandler struct {
	service service.InventoryService
}

// NewInventoryHandler создаёт новый обработчик Inventory Service.
func NewInventoryHandler(svc service.InventoryService) *InventoryHandler {
	return &InventoryHandler{service: svc}
}

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// === Request/Response DTOs ===

// ReserveRequest — запрос на резервирование.
type ReserveRequest struct {
	OrderID string               `json:"orderId" binding:"required"`
	Items   []ReserveItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ReserveItemRequest — позиция запроса на резервирование.
type ReserveItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Qty       int64  `json:"qty" binding:"required,min=1"`
	SKU       string `json:"sku"`
}

// ReservedItemResponse — позиция ответа на резервирование.
type ReservedItemResponse struct {
	ReservationID string `json:"reservationId,omitempty"`
	ProductID     string `json:"productId"`
	SKU           string `json:"sku,omitempty"`
	Warehouse     string `json:"warehouse,omitempty"`
	QtyReserved   int64  `json:"qtyReserved,omitempty"`
	QtyRequested  int64  `json:"qtyRequested,omitempty"`
	QtyAvailable  int64  `json:"qtyAvailable"`
}

// ReserveResponse — ответ на резервирование.
type ReserveResponse struct {
	Status         string                 `json:"status"`
	OrderID        string                 `json:"orderId"`
	Items          []ReservedItemResponse `json:"items"`
	Unavailable    []ReservedItemResponse `json:"unavailable,omitempty"`
	ExpiresAt      *time.Time             `json:"expiresAt,omitempty"`
	Idempotent     bool                   `json:"idempotent,omitempty"`
	ActionRequired string                 `json:"actionRequired,omitempty"`
}

// Reserve резервирует сток под заказ.
// POST /v1/inventory/reserve
func (h *InventoryHandler) Reserve(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	idempotencyKey := c.GetHeader(HeaderIdempotencyKey)
	if idempotencyKey == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "VALIDATION_FAILED",
			Message: domain.ErrMissingIdempotencyKey.Error(),
		})
		return
	}

	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос на резервирование")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "VALIDATION_FAILED",
			Message: "невалидные данные запроса",
		})
		return
	}

	lines := make([]domain.ReserveLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = domain.ReserveLine{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			SKU:       item.SKU,
		}
	}

	outcome, err := h.service.Reserve(ctx, service.ReserveRequest{
		OrderID:        req.OrderID,
		IdempotencyKey: idempotencyKey,
		Lines:          lines,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReservation) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "DUPLICATE_IDEMPOTENCY_KEY",
				Message: domain.ErrDuplicateReservation.Error(),
			})
			return
		}
		h.handleError(c, err, "Reserve")
		return
	}

	response := ReserveResponse{
		Status:         outcome.Status,
		OrderID:        outcome.OrderID,
		Items:          make([]ReservedItemResponse, len(outcome.Items)),
		ExpiresAt:      outcome.ExpiresAt,
		Idempotent:     outcome.Idempotent,
		ActionRequired: outcome.ActionRequired,
	}
	for i, item := range outcome.Items {
		response.Items[i] = ReservedItemResponse{
			ReservationID: item.ReservationID,
			ProductID:     item.ProductID,
			SKU:           item.SKU,
			Warehouse:     item.Warehouse,
			QtyReserved:   item.QtyReserved,
		}
	}
	for _, item := range outcome.Unavailable {
		response.Unavailable = append(response.Unavailable, ReservedItemResponse{
			ProductID:    item.ProductID,
			SKU:          item.SKU,
			QtyRequested: item.QtyRequested,
			QtyAvailable: item.QtyAvailable,
		})
	}

	c.JSON(http.StatusOK, response)
}

// ConfirmRequest — запрос на подтверждение резерваций.
type ConfirmRequest struct {
	OrderID        string   `json:"orderId" binding:"required"`
	ReservationIDs []string `json:"reservationIds"`
}

// Confirm подтверждает резервации заказа.
// POST /v1/inventory/reserve/confirm
func (h *InventoryHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "VALIDATION_FAILED",
			Message: "невалидные данные запроса",
		})
		return
	}

	confirmed, err := h.service.Confirm(c.Request.Context(), req.OrderID, req.ReservationIDs)
	if err != nil {
		h.handleError(c, err, "Confirm")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "CONFIRMED",
		"orderId":   req.OrderID,
		"confirmed": confirmed,
	})
}

// ReleaseRequest — запрос на освобождение резерваций заказа.
type ReleaseRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// Release освобождает все активные резервации заказа.
// POST /v1/inventory/release
func (h *InventoryHandler) Release(c *gin.Context) {
	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "VALIDATION_FAILED",
			Message: "невалидные данные запроса",
		})
		return
	}

	released, err := h.service.Release(c.Request.Context(), req.OrderID)
	if err != nil {
		h.handleError(c, err, "Release")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               "RELEASED",
		"orderId":              req.OrderID,
		"releasedReservations": released,
	})
}

// ShipRequest — запрос на отгрузку.
type ShipRequest struct {
	OrderID string            `json:"orderId" binding:"required"`
	Items   []ShipItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ShipItemRequest — позиция запроса на отгрузку.
type ShipItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Qty       int64  `json:"qty" binding:"required,min=1"`
	Warehouse string `json:"warehouse" binding:"required"`
	SKU       string `json:"sku"`
}

// Ship отгружает зарезервированный сток.
// POST /v1/inventory/ship
func (h *InventoryHandler) Ship(c *gin.Context) {
	var req ShipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "VALIDATION_FAILED",
			Message: "невалидные данные запроса",
		})
		return
	}

	lines := make([]service.ShipLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = service.ShipLine{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			Warehouse: item.Warehouse,
			SKU:       item.SKU,
		}
	}

	if err := h.service.Ship(c.Request.Context(), req.OrderID, lines); err != nil {
		h.handleError(c, err, "Ship")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "SHIPPED",
		"orderId": req.OrderID,
	})
}

// ReapExpired освобождает просроченные резервации.
// POST /v1/inventory/reaper/expired
func (h *InventoryHandler) ReapExpired(c *gin.Context) {
	outcome, err := h.service.ReapExpired(c.Request.Context())
	if err != nil {
		h.handleError(c, err, "ReapExpired")
		return
	}

	released := make([]gin.H, len(outcome.Released))
	for i, r := range outcome.Released {
		released[i] = gin.H{
			"reservationId": r.ID,
			"orderId":       r.OrderID,
			"productId":     r.ProductID,
			"warehouse":     r.Warehouse,
			"qty":           r.Qty,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               "PROCESSED",
		"expiredCount":         outcome.ExpiredCount,
		"releasedReservations": released,
	})
}

// InventoryRowResponse — остаток товара на складе в ответах API.
type InventoryRowResponse struct {
	ProductID string    `json:"productId"`
	SKU       string    `json:"sku"`
	Warehouse string    `json:"warehouse"`
	OnHand    int64     `json:"onHand"`
	Reserved  int64     `json:"reserved"`
	Available int64     `json:"available"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetProduct возвращает остатки товара по всем складам.
// GET /v1/inventory/:productId
func (h *InventoryHandler) GetProduct(c *gin.Context) {
	productID := c.Param("productId")

	rows, err := h.service.GetProduct(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "PRODUCT_NOT_FOUND",
				Message: domain.ErrProductNotFound.Error(),
			})
			return
		}
		h.handleError(c, err, "GetProduct")
		return
	}

	response := make([]InventoryRowResponse, len(rows))
	for i, row := range rows {
		response[i] = InventoryRowResponse{
			ProductID: row.ProductID,
			SKU:       row.SKU,
			Warehouse: row.Warehouse,
			OnHand:    row.OnHand,
			Reserved:  row.Reserved,
			Available: row.Available(),
			UpdatedAt: row.UpdatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{"productId": productID, "warehouses": response})
}

// MovementResponse — запись журнала движений в ответах API.
type MovementResponse struct {
	ID            int64     `json:"id"`
	Type          string    `json:"type"`
	ProductID     string    `json:"productId"`
	Warehouse     string    `json:"warehouse"`
	Qty           int64     `json:"qty"`
	OrderID       string    `json:"orderId,omitempty"`
	ReservationID string    `json:"reservationId,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Movements возвращает последние движения товара.
// GET /v1/inventory/:productId/movements
func (h *InventoryHandler) Movements(c *gin.Context) {
	productID := c.Param("productId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	movements, err := h.service.Movements(c.Request.Context(), productID, limit)
	if err != nil {
		h.handleError(c, err, "Movements")
		return
	}

	response := make([]MovementResponse, len(movements))
	for i, m := range movements {
		response[i] = MovementResponse{
			ID:            m.ID,
			Type:          string(m.Type),
			ProductID:     m.ProductID,
			Warehouse:     m.Warehouse,
			Qty:           m.Qty,
			OrderID:       m.OrderID,
			ReservationID: m.ReservationID,
			Note:          m.Note,
			CreatedAt:     m.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{"productId": productID, "movements": response})
}

// handleError преобразует доменную ошибку в HTTP ответ.
func (h *InventoryHandler) handleError(c *gin.Context, err error, method string) {
	log := logger.FromContext(c.Request.Context())

	switch {
	case errors.Is(err, domain.ErrInvalidOrderID),
		errors.Is(err, domain.ErrInvalidProductID),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrEmptyReserveItems),
		errors.Is(err, domain.ErrMissingIdempotencyKey):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "VALIDATION_FAILED",
			Message: err.Error(),
		})
	default:
		log.Error().Err(err).Str("method", method).Msg("Внутренняя ошибка Inventory Service")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "INTERNAL_ERROR",
			Message: "внутренняя ошибка сервера",
		})
	}
}
