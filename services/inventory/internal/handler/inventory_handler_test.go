// Package handler содержит unit тесты HTTP обработчиков Inventory Service.
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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/commerce-platform/services/inventory/internal/domain"
	"example.com/commerce-platform/services/inventory/internal/service"
)

// MockInventoryService — мок service.InventoryService.
type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) Reserve(ctx context.Context, req service.ReserveRequest) (*service.ReserveOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReserveOutcome), args.Error(1)
}

func (m *MockInventoryService) Confirm(ctx context.Context, orderID string, reservationIDs []string) (int64, error) {
	args := m.Called(ctx, orderID, reservationIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInventoryService) Release(ctx context.Context, orderID string) ([]string, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockInventoryService) Ship(ctx context.Context, orderID string, lines []service.ShipLine) error {
	args := m.Called(ctx, orderID, lines)
	return args.Error(0)
}

func (m *MockInventoryService) ReapExpired(ctx context.Context) (*service.ReapOutcome, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReapOutcome), args.Error(1)
}

func (m *MockInventoryService) GetProduct(ctx context.Context, productID string) ([]domain.InventoryRow, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.InventoryRow), args.Error(1)
}

func (m *MockInventoryService) Movements(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	args := m.Called(ctx, productID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Movement), args.Error(1)
}

// setupRouter собирает тестовый роутер с мок-сервисом.
func setupRouter(t *testing.T) (*gin.Engine, *MockInventoryService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := new(MockInventoryService)
	h := NewInventoryHandler(svc)

	engine := gin.New()
	inventory := engine.Group("/v1/inventory")
	{
		inventory.POST("/reserve", h.Reserve)
		inventory.POST("/reserve/confirm", h.Confirm)
		inventory.POST("/release", h.Release)
		inventory.POST("/ship", h.Ship)
		inventory.POST("/reaper/expired", h.ReapExpired)
		inventory.GET("/:productId", h.GetProduct)
		inventory.GET("/:productId/movements", h.Movements)
	}
	return engine, svc
}

const validReserveBody = `{"orderId":"order-1","items":[{"productId":"product-1","qty":2}]}`

// =====================================
// Тесты POST /v1/inventory/reserve
// =====================================

func TestReserve_MissingIdempotencyKey(t *testing.T) {
	engine, svc := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/inventory/reserve", strings.NewReader(validReserveBody))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
}

func TestReserve_Success(t *testing.T) {
	engine, svc := setupRouter(t)

	expires := time.Now().Add(15 * time.Minute).UTC()
	svc.On("Reserve", mock.Anything, mock.MatchedBy(func(req service.ReserveRequest) bool {
		return req.IdempotencyKey == "k1" && req.OrderID == "order-1"
	})).Return(&service.ReserveOutcome{
		Status:  service.StatusReserved,
		OrderID: "order-1",
		Items: []service.ReservedLine{
			{ReservationID: "res-1", ProductID: "product-1", SKU: "SKU-1", Warehouse: "WH1", QtyReserved: 2},
		},
		ExpiresAt: &expires,
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/inventory/reserve", strings.NewReader(validReserveBody))
	req.Header.Set(HeaderIdempotencyKey, "k1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response ReserveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "RESERVED", response.Status)
	require.Len(t, response.Items, 1)
	assert.Equal(t, "res-1", response.Items[0].ReservationID)
	assert.Equal(t, "WH1", response.Items[0].Warehouse)
	require.NotNil(t, response.ExpiresAt)
}

func TestReserve_Partial(t *testing.T) {
	engine, svc := setupRouter(t)

	svc.On("Reserve", mock.Anything, mock.Anything).Return(&service.ReserveOutcome{
		Status:  service.StatusPartial,
		OrderID: "order-1",
		Unavailable: []service.UnavailableLine{
			{ProductID: "product-1", QtyRequested: 4, QtyAvailable: 2},
		},
		ActionRequired: service.ActionBackorderOrReduce,
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/inventory/reserve", strings.NewReader(validReserveBody))
	req.Header.Set(HeaderIdempotencyKey, "k1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, "PARTIAL — это 200, решение за вызывающим")

	var response ReserveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "PARTIAL", response.Status)
	assert.Equal(t, "BACKORDER_OR_REDUCE", response.ActionRequired)
	require.Len(t, response.Unavailable, 1)
	assert.Equal(t, int64(2), response.Unavailable[0].QtyAvailable)
}

func TestReserve_DuplicateKey(t *testing.T) {
	engine, svc := setupRouter(t)

	svc.On("Reserve", mock.Anything, mock.Anything).Return(nil, domain.ErrDuplicateReservation)

	req := httptest.NewRequest(http.MethodPost, "/v1/inventory/reserve", strings.NewReader(validReserveBody))
	req.Header.Set(HeaderIdempotencyKey, "k1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "DUPLICATE_IDEMPOTENCY_KEY", response.Error)
}

// =====================================
// Тесты POST /v1/inventory/release
// =====================================

func TestRelease(t *testing.T) {
	engine, svc := setupRouter(t)

	svc.On("Release", mock.Anything, "order-1").Return([]string{"res-1", "res-2"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/inventory/release",
		strings.NewReader(`{"orderId":"order-1"}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "res-1")
	assert.Contains(t, w.Body.String(), "RELEASED")
}

// =====================================
// Тесты POST /v1/inventory/reaper/expired
// =====================================

func TestReapExpired(t *testing.T) {
	engine, svc := setupRouter(t)

	svc.On("ReapExpired", mock.Anything).Return(&service.ReapOutcome{
		ExpiredCount: 1,
		Released: []domain.Reservation{
			{ID: "res-1", OrderID: "order-1", ProductID: "product-1", Warehouse: "WH1", Qty: 3},
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/inventory/reaper/expired", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "PROCESSED", response["status"])
	assert.Equal(t, float64(1), response["expiredCount"])
}

// =====================================
// Тесты GET /v1/inventory/:productId
// =====================================

func TestGetProduct(t *testing.T) {
	engine, svc := setupRouter(t)

	svc.On("GetProduct", mock.Anything, "product-1").Return([]domain.InventoryRow{
		{ProductID: "product-1", SKU: "SKU-1", Warehouse: "WH1", OnHand: 10, Reserved: 2},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/inventory/product-1", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		ProductID  string                 `json:"productId"`
		Warehouses []InventoryRowResponse `json:"warehouses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Warehouses, 1)
	assert.Equal(t, int64(8), response.Warehouses[0].Available)
}

func TestGetProduct_NotFound(t *testing.T) {
	engine, svc := setupRouter(t)

	svc.On("GetProduct", mock.Anything, "ghost").Return(nil, domain.ErrProductNotFound)

	req := httptest.NewRequest(http.MethodGet, "/v1/inventory/ghost", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =====================================
// Тесты GET /v1/inventory/:productId/movements
// =====================================

func TestMovements(t *testing.T) {
	engine, svc := setupRouter(t)

	svc.On("Movements", mock.Anything, "product-1", 50).Return([]domain.Movement{
		{ID: 2, Type: domain.MovementRelease, ProductID: "product-1", Warehouse: "WH1", Qty: 2},
		{ID: 1, Type: domain.MovementReserve, ProductID: "product-1", Warehouse: "WH1", Qty: 2},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/inventory/product-1/movements", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Movements []MovementResponse `json:"movements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Movements, 2)
	assert.Equal(t, "RELEASE", response.Movements[0].Type)
}
