// Package saga содержит моки для тестирования оркестратора.
package saga

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"example.com/commerce-platform/services/order/internal/client"
	"example.com/commerce-platform/services/order/internal/domain"
	"example.com/commerce-platform/services/order/internal/repository"
)

// =============================================================================
// MockCatalogGateway — мок CatalogGateway
// =============================================================================

type MockCatalogGateway struct {
	mock.Mock
}

func (m *MockCatalogGateway) Prices(ctx context.Context, productIDs []string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

func (m *MockCatalogGateway) Details(ctx context.Context, productID string) (*client.ProductDetails, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.ProductDetails), args.Error(1)
}

// =============================================================================
// MockInventoryGateway — мок InventoryGateway
// =============================================================================

type MockInventoryGateway struct {
	mock.Mock
}

func (m *MockInventoryGateway) Reserve(ctx context.Context, orderID, idempotencyKey string, items []client.ReserveItem) (*client.ReserveResult, error) {
	args := m.Called(ctx, orderID, idempotencyKey, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.ReserveResult), args.Error(1)
}

func (m *MockInventoryGateway) Release(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

// =============================================================================
// MockPaymentGateway — мок PaymentGateway
// =============================================================================

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal, method, idempotencyKey string) (*client.ChargeResult, error) {
	args := m.Called(ctx, orderID, amount, method, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.ChargeResult), args.Error(1)
}

// =============================================================================
// MockOrderRepository — мок repository.OrderRepository
// =============================================================================

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

// =============================================================================
// MockIdempotencyRepository — мок repository.IdempotencyRepository
// =============================================================================

type MockIdempotencyRepository struct {
	mock.Mock
}

func (m *MockIdempotencyRepository) Insert(ctx context.Context, record *repository.IdempotencyRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockIdempotencyRepository) GetByKey(ctx context.Context, key string) (*repository.IdempotencyRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.IdempotencyRecord), args.Error(1)
}

func (m *MockIdempotencyRepository) Finalize(ctx context.Context, key string, status int, body []byte) error {
	args := m.Called(ctx, key, status, body)
	return args.Error(0)
}
