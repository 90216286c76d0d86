// Package repository содержит unit тесты для OrderRepository.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/commerce-platform/services/order/internal/domain"
)

// =====================================
// Вспомогательные функции
// =====================================

// setupMockDB создаёт мок базы данных с GORM.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Ошибка создания sqlmock")

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Ошибка инициализации GORM")

	return gormDB, mock, func() { _ = db.Close() }
}

func testOrder() *domain.Order {
	return &domain.Order{
		ID:              "order-uuid",
		CustomerID:      "customer-uuid",
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		TotalAmount:     decimal.RequireFromString("47.50"),
		TotalsSignature: "abc123",
		Items: []domain.OrderItem{
			{
				ID: "item-uuid", OrderID: "order-uuid", ProductID: "product-1",
				SKU: "SKU-1", ProductName: "Товар 1", Quantity: 2,
				UnitPrice: decimal.RequireFromString("10.00"),
				TaxRate:   decimal.RequireFromString("0.05"),
				Status:    domain.ItemStatusPending,
			},
		},
	}
}

// =====================================
// Тесты Create
// =====================================

func TestCreate(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectedErr error
	}{
		{
			name: "успешное создание с позициями",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders`")).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `order_items`")).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
			expectedErr: nil,
		},
		{
			name: "ошибка БД откатывает транзакцию",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders`")).
					WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			expectedErr: sql.ErrConnDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock, cleanup := setupMockDB(t)
			defer cleanup()

			repo := NewOrderRepository(gormDB)
			tt.mockSetup(mock)

			err := repo.Create(context.Background(), testOrder())

			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// =====================================
// Тесты GetByID
// =====================================

func TestGetByID(t *testing.T) {
	tests := []struct {
		name        string
		orderID     string
		mockSetup   func(mock sqlmock.Sqlmock, orderID string)
		expectedErr error
		checkOrder  func(t *testing.T, order *domain.Order)
	}{
		{
			name:    "успешное получение с позициями",
			orderID: "order-123",
			mockSetup: func(mock sqlmock.Sqlmock, orderID string) {
				now := time.Now().Truncate(time.Second)
				orderRows := sqlmock.NewRows([]string{
					"id", "customer_id", "status", "payment_status",
					"total_amount", "totals_signature", "payment_ref", "created_at", "updated_at",
				}).AddRow(orderID, "customer-1", "PENDING", "SUCCESS", "47.50", "sig", nil, now, now)
				mock.ExpectQuery("SELECT \\* FROM `orders` WHERE id = \\? ORDER BY `orders`.`id` LIMIT \\?").
					WithArgs(orderID, 1).WillReturnRows(orderRows)

				itemRows := sqlmock.NewRows([]string{
					"id", "order_id", "product_id", "sku", "product_name",
					"quantity", "unit_price", "tax_rate", "status", "created_at", "updated_at",
				}).AddRow("item-1", orderID, "product-1", "SKU-1", "Товар 1", 2, "10.00", "0.05", "PENDING", now, now)
				mock.ExpectQuery("SELECT \\* FROM `order_items` WHERE `order_items`.`order_id` = \\?").
					WithArgs(orderID).WillReturnRows(itemRows)
			},
			expectedErr: nil,
			checkOrder: func(t *testing.T, order *domain.Order) {
				assert.Equal(t, "order-123", order.ID)
				assert.Equal(t, domain.PaymentStatusSuccess, order.PaymentStatus)
				require.Len(t, order.Items, 1)
				assert.Equal(t, int64(2), order.Items[0].Quantity)
			},
		},
		{
			name:    "не найден",
			orderID: "unknown-order",
			mockSetup: func(mock sqlmock.Sqlmock, orderID string) {
				rows := sqlmock.NewRows([]string{"id"})
				mock.ExpectQuery("SELECT \\* FROM `orders` WHERE id = \\? ORDER BY `orders`.`id` LIMIT \\?").
					WithArgs(orderID, 1).WillReturnRows(rows)
			},
			expectedErr: domain.ErrOrderNotFound,
		},
		{
			name:    "ошибка БД",
			orderID: "order-456",
			mockSetup: func(mock sqlmock.Sqlmock, orderID string) {
				mock.ExpectQuery("SELECT \\* FROM `orders` WHERE id = \\? ORDER BY `orders`.`id` LIMIT \\?").
					WithArgs(orderID, 1).WillReturnError(sql.ErrConnDone)
			},
			expectedErr: sql.ErrConnDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock, cleanup := setupMockDB(t)
			defer cleanup()

			repo := NewOrderRepository(gormDB)
			tt.mockSetup(mock, tt.orderID)

			order, err := repo.GetByID(context.Background(), tt.orderID)

			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, order)
			} else {
				require.NoError(t, err)
				require.NotNil(t, order)
				if tt.checkOrder != nil {
					tt.checkOrder(t, order)
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// =====================================
// Тесты UpdatePayment
// =====================================

func TestUpdatePayment(t *testing.T) {
	t.Run("успешное обновление со ссылкой на платёж", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		repo := NewOrderRepository(gormDB)
		ref := "pay-1"
		err := repo.UpdatePayment(context.Background(), "order-1", domain.PaymentStatusSuccess, &ref)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("заказ не найден", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		repo := NewOrderRepository(gormDB)
		err := repo.UpdatePayment(context.Background(), "missing", domain.PaymentStatusFailed, nil)

		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// =====================================
// Тесты UpdateStatus
// =====================================

func TestUpdateStatus(t *testing.T) {
	t.Run("отмена каскадно отменяет позиции", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `order_items` SET")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		repo := NewOrderRepository(gormDB)
		err := repo.UpdateStatus(context.Background(), "order-1", domain.OrderStatusCancelled)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("доставка не трогает позиции", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		repo := NewOrderRepository(gormDB)
		err := repo.UpdateStatus(context.Background(), "order-1", domain.OrderStatusDelivered)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("заказ не найден", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		repo := NewOrderRepository(gormDB)
		err := repo.UpdateStatus(context.Background(), "missing", domain.OrderStatusCancelled)

		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// =====================================
// Тесты конвертации Domain <-> Model
// =====================================

func TestOrderModel_RoundTrip(t *testing.T) {
	order := testOrder()

	model := orderModelFromDomain(order)
	restored := model.toDomain()

	assert.Equal(t, order.ID, restored.ID)
	assert.Equal(t, order.Status, restored.Status)
	assert.True(t, order.TotalAmount.Equal(restored.TotalAmount))
	require.Len(t, restored.Items, 1)
	assert.Equal(t, order.Items[0].ProductID, restored.Items[0].ProductID)
	assert.True(t, order.Items[0].TaxRate.Equal(restored.Items[0].TaxRate))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "orders", OrderModel{}.TableName())
	assert.Equal(t, "order_items", OrderItemModel{}.TableName())
}

// =====================================
// Тесты isDuplicateKeyError
// =====================================

func TestIsDuplicateKeyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil ошибка", nil, false},
		{"MySQL Error 1062", errors.New("Error 1062: Duplicate entry"), true},
		{"GORM ErrDuplicatedKey", gorm.ErrDuplicatedKey, true},
		{"обычная ошибка", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isDuplicateKeyError(tt.err))
		})
	}
}
