// Package repository содержит реализацию доступа к данным для Order Service.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/commerce-platform/services/order/internal/domain"
)

// OrderRepository определяет интерфейс для работы с заказами в БД.
type OrderRepository interface {
	// Create создаёт новый заказ с позициями.
	// Выполняется в транзакции для атомарности.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID возвращает заказ по ID с загруженными позициями.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// List возвращает последние заказы (новые первыми).
	List(ctx context.Context, limit int) ([]*domain.Order, error)

	// UpdatePayment атомарно обновляет статус оплаты и ссылку на платёж.
	UpdatePayment(ctx context.Context, orderID string, status domain.PaymentStatus, paymentRef *string) error

	// UpdateStatus атомарно обновляет статус заказа.
	// При переходе в CANCELLED также отменяет позиции.
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
}

// OrderModel — GORM модель для таблицы orders.
// Отделена от доменной сущности для гибкости.
type OrderModel struct {
	ID              string           `gorm:"column:id;type:varchar(36);primaryKey"`
	CustomerID      string           `gorm:"column:customer_id;type:varchar(36);not null;index"`
	Status          string           `gorm:"column:status;type:varchar(20);not null;index"`
	PaymentStatus   string           `gorm:"column:payment_status;type:varchar(20);not null"`
	TotalAmount     decimal.Decimal  `gorm:"column:total_amount;type:decimal(12,2);not null"`
	TotalsSignature string           `gorm:"column:totals_signature;type:char(64);not null"`
	PaymentRef      *string          `gorm:"column:payment_ref;type:varchar(64)"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	Items           []OrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName возвращает имя таблицы в БД.
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel — GORM модель для таблицы order_items.
// Цена, SKU, название и налоговая ставка — снапшоты на момент создания.
type OrderItemModel struct {
	ID          string          `gorm:"column:id;type:varchar(36);primaryKey"`
	OrderID     string          `gorm:"column:order_id;type:varchar(36);not null;index"`
	ProductID   string          `gorm:"column:product_id;type:varchar(36);not null"`
	SKU         string          `gorm:"column:sku;type:varchar(64);not null"`
	ProductName string          `gorm:"column:product_name;type:varchar(255);not null"`
	Quantity    int64           `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:decimal(12,2);not null"`
	TaxRate     decimal.Decimal `gorm:"column:tax_rate;type:decimal(6,4);not null"`
	Status      string          `gorm:"column:status;type:varchar(20);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName возвращает имя таблицы в БД.
func (OrderItemModel) TableName() string {
	return "order_items"
}

// toDomain конвертирует GORM модель заказа в доменную сущность.
func (m *OrderModel) toDomain() *domain.Order {
	order := &domain.Order{
		ID:              m.ID,
		CustomerID:      m.CustomerID,
		Status:          domain.OrderStatus(m.Status),
		PaymentStatus:   domain.PaymentStatus(m.PaymentStatus),
		TotalAmount:     m.TotalAmount,
		TotalsSignature: m.TotalsSignature,
		PaymentRef:      m.PaymentRef,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		Items:           make([]domain.OrderItem, len(m.Items)),
	}

	for i, item := range m.Items {
		order.Items[i] = domain.OrderItem{
			ID:          item.ID,
			OrderID:     item.OrderID,
			ProductID:   item.ProductID,
			SKU:         item.SKU,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			Status:      domain.ItemStatus(item.Status),
		}
	}

	return order
}

// orderModelFromDomain конвертирует доменную сущность заказа в GORM модель.
func orderModelFromDomain(o *domain.Order) *OrderModel {
	model := &OrderModel{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		TotalAmount:     o.TotalAmount,
		TotalsSignature: o.TotalsSignature,
		PaymentRef:      o.PaymentRef,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Items:           make([]OrderItemModel, len(o.Items)),
	}

	for i, item := range o.Items {
		model.Items[i] = OrderItemModel{
			ID:          item.ID,
			OrderID:     item.OrderID,
			ProductID:   item.ProductID,
			SKU:         item.SKU,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			Status:      string(item.Status),
		}
	}

	return model
}

// orderRepository — GORM реализация OrderRepository.
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create создаёт новый заказ с позициями в одной транзакции.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := orderModelFromDomain(order)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Позиции GORM создаст автоматически через ассоциацию
		return tx.Create(model).Error
	})
	if err != nil {
		return err
	}

	// Обновляем timestamps в доменной сущности
	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt

	return nil
}

// GetByID возвращает заказ по ID с загруженными позициями.
func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel

	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// List возвращает последние заказы с позициями (новые первыми).
func (r *orderRepository) List(ctx context.Context, limit int) ([]*domain.Order, error) {
	var models []OrderModel

	if err := r.db.WithContext(ctx).
		Preload("Items").
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = models[i].toDomain()
	}

	return orders, nil
}

// UpdatePayment атомарно обновляет статус оплаты заказа.
func (r *orderRepository) UpdatePayment(ctx context.Context, orderID string, status domain.PaymentStatus, paymentRef *string) error {
	updates := map[string]interface{}{
		"payment_status": string(status),
		"updated_at":     time.Now(),
	}
	if paymentRef != nil {
		updates["payment_ref"] = *paymentRef
	}

	result := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ?", orderID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

// UpdateStatus атомарно обновляет статус заказа.
// CANCELLED каскадно отменяет позиции в той же транзакции.
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&OrderModel{}).
			Where("id = ?", orderID).
			Updates(map[string]interface{}{
				"status":     string(status),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrOrderNotFound
		}

		if status == domain.OrderStatusCancelled {
			if err := tx.Model(&OrderItemModel{}).
				Where("order_id = ?", orderID).
				Updates(map[string]interface{}{
					"status":     string(domain.ItemStatusCancelled),
					"updated_at": time.Now(),
				}).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// isDuplicateKeyError проверяет, является ли ошибка дубликатом ключа.
// MySQL возвращает ошибку с кодом 1062 при попытке вставить дубликат.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	// GORM v2 имеет ErrDuplicatedKey, также проверяем текст ошибки MySQL
	errMsg := err.Error()
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "1062")
}
