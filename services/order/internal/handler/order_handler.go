// Package handler содержит HTTP обработчики REST API Order Service.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"

	"example.com/commerce-platform/pkg/logger"
	"example.com/commerce-platform/services/order/internal/client"
	"example.com/commerce-platform/services/order/internal/domain"
	"example.com/commerce-platform/services/order/internal/pricing"
	"example.com/commerce-platform/services/order/internal/repository"
	"example.com/commerce-platform/services/order/internal/saga"
)

// Максимальное число заказов в листинге.
const listOrdersLimit = 50

// OrderHandler — обработчик заказов.
type OrderHandler struct {
	saga   saga.Orchestrator
	orders repository.OrderRepository
}

// NewOrderHandler создаёт новый обработчик заказов.
func NewOrderHandler(orchestrator saga.Orchestrator, orders repository.OrderRepository) *OrderHandler {
	return &OrderHandler{
		saga:   orchestrator,
		orders: orders,
	}
}

// === Request DTOs ===

// CreateOrderRequest — запрос на создание заказа.
type CreateOrderRequest struct {
	CustomerID    string                   `json:"customerId" binding:"required"`
	Items         []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	PaymentMethod string                   `json:"paymentMethod"`
}

// CreateOrderItemRequest — позиция в запросе на создание заказа.
type CreateOrderItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Qty       int64  `json:"qty" binding:"required,min=1"`
	SKU       string `json:"sku"`
}

// === Handlers ===

// CreateOrder создаёт новый заказ через сагу.
// POST /v1/orders
// Заголовок Idempotency-Key обязателен: без него запрос отклоняется до
// любых побочных эффектов.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	idempotencyKey := c.GetHeader(client.HeaderIdempotencyKey)
	if idempotencyKey == "" {
		c.JSON(http.StatusBadRequest, saga.ErrorEnvelope{
			ErrorCode: saga.CodeValidationFailed,
			Message:   domain.ErrMissingIdempotencyKey.Error(),
		})
		return
	}

	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, saga.ErrorEnvelope{
			ErrorCode: saga.CodeValidationFailed,
			Message:   "не удалось прочитать тело запроса",
		})
		return
	}

	var req CreateOrderRequest
	if err := binding.JSON.BindBody(rawBody, &req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос на создание заказа")
		c.JSON(http.StatusBadRequest, saga.ErrorEnvelope{
			ErrorCode: saga.CodeValidationFailed,
			Message:   "невалидные данные запроса",
		})
		return
	}

	items := make([]saga.CreateOrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = saga.CreateOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Qty,
			SKU:       item.SKU,
		}
	}

	result, err := h.saga.CreateOrder(ctx, saga.CreateOrderRequest{
		CustomerID:     req.CustomerID,
		Items:          items,
		IdempotencyKey: idempotencyKey,
		PaymentMethod:  req.PaymentMethod,
		RawBody:        rawBody,
	})
	if err != nil {
		var sagaErr *saga.Error
		if errors.As(err, &sagaErr) {
			c.JSON(sagaErr.HTTPStatus, sagaErr.Envelope())
			return
		}
		c.JSON(http.StatusInternalServerError, saga.ErrorEnvelope{
			ErrorCode: saga.CodeInternal,
			Message:   "внутренняя ошибка сервера",
		})
		return
	}

	// Тело сериализовано сагой: реплей по ключу идемпотентности
	// возвращает исходный ответ байт-в-байт
	c.Data(result.Status, "application/json; charset=utf-8", result.Body)
}

// GetOrder возвращает заказ по ID.
// GET /v1/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	orderID := c.Param("id")

	order, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, saga.ErrorEnvelope{
				ErrorCode: "ORDER_NOT_FOUND",
				Message:   domain.ErrOrderNotFound.Error(),
				OrderID:   orderID,
			})
			return
		}
		log.Error().Err(err).Str("order_id", orderID).Msg("Ошибка чтения заказа")
		c.JSON(http.StatusInternalServerError, saga.ErrorEnvelope{
			ErrorCode: saga.CodeInternal,
			Message:   "внутренняя ошибка сервера",
		})
		return
	}

	c.JSON(http.StatusOK, h.orderPayload(ctx, order))
}

// ListOrders возвращает последние заказы.
// GET /v1/orders
type ListOrdersResponse struct {
	Orders []saga.OrderPayload `json:"orders"`
	Count  int                 `json:"count"`
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	orders, err := h.orders.List(ctx, listOrdersLimit)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка чтения списка заказов")
		c.JSON(http.StatusInternalServerError, saga.ErrorEnvelope{
			ErrorCode: saga.CodeInternal,
			Message:   "внутренняя ошибка сервера",
		})
		return
	}

	payloads := make([]saga.OrderPayload, len(orders))
	for i := range orders {
		payloads[i] = h.orderPayload(ctx, orders[i])
	}

	c.JSON(http.StatusOK, ListOrdersResponse{Orders: payloads, Count: len(payloads)})
}

// orderPayload собирает ответное представление заказа.
// Разбивка итогов восстанавливается из снапшотов заказа (цены, ставка,
// итоговая сумма), а не из текущей конфигурации калькулятора: смена
// ставок после оформления не должна менять отображение старых заказов.
func (h *OrderHandler) orderPayload(ctx context.Context, order *domain.Order) saga.OrderPayload {
	lineItems := make([]pricing.LineItem, len(order.Items))
	for i, item := range order.Items {
		lineItems[i] = pricing.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	taxRate := decimal.Zero
	if len(order.Items) > 0 {
		taxRate = order.Items[0].TaxRate
	}

	breakdown := pricing.SnapshotBreakdown(lineItems, taxRate, order.TotalAmount)

	if order.TotalsSignature != "" && pricing.Signature(lineItems, breakdown) != order.TotalsSignature {
		log := logger.FromContext(ctx)
		log.Warn().Str("order_id", order.ID).Msg("Подпись итогов не совпадает с восстановленной разбивкой")
	}

	return saga.BuildOrderPayload(order, breakdown, nil)
}
