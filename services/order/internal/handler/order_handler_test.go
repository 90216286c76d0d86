// Package handler содержит unit тесты HTTP обработчиков Order Service.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/commerce-platform/services/order/internal/domain"
	"example.com/commerce-platform/services/order/internal/saga"
)

// MockOrchestrator — мок saga.Orchestrator.
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) CreateOrder(ctx context.Context, req saga.CreateOrderRequest) (*saga.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*saga.Result), args.Error(1)
}

// MockOrderRepository — мок repository.OrderRepository для read-обработчиков.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, limit int) ([]*domain.Order, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdatePayment(ctx context.Context, orderID string, status domain.PaymentStatus, paymentRef *string) error {
	args := m.Called(ctx, orderID, status, paymentRef)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

// setupRouter собирает тестовый роутер с моками.
func setupRouter(t *testing.T) (*gin.Engine, *MockOrchestrator, *MockOrderRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orchestrator := new(MockOrchestrator)
	orders := new(MockOrderRepository)
	h := NewOrderHandler(orchestrator, orders)

	engine := gin.New()
	engine.POST("/v1/orders", h.CreateOrder)
	engine.GET("/v1/orders", h.ListOrders)
	engine.GET("/v1/orders/:id", h.GetOrder)

	return engine, orchestrator, orders
}

const validCreateBody = `{"customerId":"customer-1","items":[{"productId":"product-1","qty":2}]}`

// =====================================
// Тесты POST /v1/orders
// =====================================

func TestCreateOrder_MissingIdempotencyKey(t *testing.T) {
	engine, orchestrator, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(validCreateBody))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var envelope saga.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, saga.CodeValidationFailed, envelope.ErrorCode)

	orchestrator.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "пустое тело", body: `{}`},
		{name: "без позиций", body: `{"customerId":"c1","items":[]}`},
		{name: "нулевое количество", body: `{"customerId":"c1","items":[{"productId":"p1","qty":0}]}`},
		{name: "битый JSON", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, _ := setupRouter(t)

			req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(tt.body))
			req.Header.Set("Idempotency-Key", "k1")
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateOrder_Success(t *testing.T) {
	engine, orchestrator, _ := setupRouter(t)

	body := []byte(`{"orderId":"order-1","totals":{"total":"47.50"}}`)
	orchestrator.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req saga.CreateOrderRequest) bool {
		return req.IdempotencyKey == "k1" && req.CustomerID == "customer-1"
	})).Return(&saga.Result{Status: 201, Body: body}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(validCreateBody))
	req.Header.Set("Idempotency-Key", "k1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	// Тело отдаётся байт-в-байт как сериализовала сага
	assert.Equal(t, body, w.Body.Bytes())
}

func TestCreateOrder_SagaError(t *testing.T) {
	engine, orchestrator, _ := setupRouter(t)

	orchestrator.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, &saga.Error{
		Code:       saga.CodeOrderCreationFailed,
		HTTPStatus: 500,
		Message:    "оплата заказа отклонена",
		OrderID:    "order-1",
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(validCreateBody))
	req.Header.Set("Idempotency-Key", "k1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var envelope saga.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, saga.CodeOrderCreationFailed, envelope.ErrorCode)
	assert.Equal(t, "order-1", envelope.OrderID)
}

func TestCreateOrder_Conflict(t *testing.T) {
	engine, orchestrator, _ := setupRouter(t)

	orchestrator.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, &saga.Error{
		Code:       saga.CodeIdempotencyConflict,
		HTTPStatus: 409,
		Message:    "ключ занят",
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(validCreateBody))
	req.Header.Set("Idempotency-Key", "k1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

// =====================================
// Тесты GET /v1/orders/:id
// =====================================

func storedOrder() *domain.Order {
	ref := "pay-1"
	return &domain.Order{
		ID:            "order-1",
		CustomerID:    "customer-1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusSuccess,
		PaymentRef:    &ref,
		TotalAmount:   decimal.RequireFromString("47.50"),
		CreatedAt:     time.Now(),
		Items: []domain.OrderItem{
			{
				ID: "item-1", OrderID: "order-1", ProductID: "product-1",
				SKU: "SKU-1", ProductName: "Товар 1", Quantity: 2,
				UnitPrice: decimal.RequireFromString("10.00"),
				TaxRate:   decimal.RequireFromString("0.05"),
				Status:    domain.ItemStatusPending,
			},
			{
				ID: "item-2", OrderID: "order-1", ProductID: "product-2",
				SKU: "SKU-2", ProductName: "Товар 2", Quantity: 1,
				UnitPrice: decimal.RequireFromString("10.00"),
				TaxRate:   decimal.RequireFromString("0.05"),
				Status:    domain.ItemStatusPending,
			},
		},
	}
}

func TestGetOrder_Success(t *testing.T) {
	engine, _, orders := setupRouter(t)
	orders.On("GetByID", mock.Anything, "order-1").Return(storedOrder(), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/order-1", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var payload saga.OrderPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "order-1", payload.OrderID)
	// Разбивка восстанавливается из снапшотов заказа
	assert.Equal(t, "30.00", payload.Totals.Subtotal)
	assert.Equal(t, "0.05", payload.Totals.TaxRate)
	assert.Equal(t, "1.50", payload.Totals.TaxAmount)
	assert.Equal(t, "16.00", payload.Totals.Shipping)
	assert.Equal(t, "47.50", payload.Totals.Total)
	assert.Len(t, payload.Items, 2)
}

// Заказ, оформленный по старой налоговой ставке, отдаётся с его
// сохранёнными итогами: конфигурация сервиса на чтение не влияет.
func TestGetOrder_SnapshotRates(t *testing.T) {
	engine, _, orders := setupRouter(t)

	order := storedOrder()
	order.TotalAmount = decimal.RequireFromString("49.00")
	for i := range order.Items {
		order.Items[i].TaxRate = decimal.RequireFromString("0.1")
	}
	orders.On("GetByID", mock.Anything, "order-1").Return(order, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/order-1", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var payload saga.OrderPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "30.00", payload.Totals.Subtotal)
	assert.Equal(t, "0.1", payload.Totals.TaxRate)
	assert.Equal(t, "3.00", payload.Totals.TaxAmount)
	assert.Equal(t, "16.00", payload.Totals.Shipping)
	assert.Equal(t, "49.00", payload.Totals.Total)
}

func TestGetOrder_NotFound(t *testing.T) {
	engine, _, orders := setupRouter(t)
	orders.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrOrderNotFound)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/missing", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =====================================
// Тесты GET /v1/orders
// =====================================

func TestListOrders(t *testing.T) {
	engine, _, orders := setupRouter(t)
	orders.On("List", mock.Anything, listOrdersLimit).
		Return([]*domain.Order{storedOrder()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response ListOrdersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
	require.Len(t, response.Orders, 1)
	assert.Equal(t, "order-1", response.Orders[0].OrderID)
}
