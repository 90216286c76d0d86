// Package domain содержит бизнес-сущности и доменные ошибки Order Service.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus — статус заказа в системе.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, сага ещё выполняется.
	OrderStatusPending OrderStatus = "PENDING"

	// OrderStatusDelivered — заказ отгружен и доставлен (вне саги создания).
	OrderStatusDelivered OrderStatus = "DELIVERED"

	// OrderStatusCancelled — заказ отменён компенсацией саги или клиентом.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PaymentStatus — статус оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusPending — оплата ещё не выполнена.
	PaymentStatusPending PaymentStatus = "PENDING"

	// PaymentStatusSuccess — оплата прошла успешно.
	PaymentStatusSuccess PaymentStatus = "SUCCESS"

	// PaymentStatusFailed — оплата отклонена платёжным шлюзом.
	PaymentStatusFailed PaymentStatus = "FAILED"
)

// ItemStatus — статус позиции заказа.
type ItemStatus string

const (
	// ItemStatusPending — позиция ожидает отгрузки.
	ItemStatusPending ItemStatus = "PENDING"

	// ItemStatusShipped — позиция отгружена со склада.
	ItemStatusShipped ItemStatus = "SHIPPED"

	// ItemStatusCancelled — позиция отменена вместе с заказом.
	ItemStatusCancelled ItemStatus = "CANCELLED"
)

// Order — заказ в системе.
// Это доменная сущность без зависимостей от инфраструктуры (GORM, HTTP DTO).
// TotalsSignature — SHA-256 подпись канонической разбивки итогов,
// используется оркестратором для сверки перед финализацией.
type Order struct {
	ID              string          // Уникальный идентификатор заказа (UUID)
	CustomerID      string          // ID покупателя, создавшего заказ
	Items           []OrderItem     // Позиции заказа
	Status          OrderStatus     // Текущий статус заказа
	PaymentStatus   PaymentStatus   // Статус оплаты
	TotalAmount     decimal.Decimal // Итоговая сумма заказа (2 знака)
	TotalsSignature string          // Подпись итогов (64 hex символа)
	PaymentRef      *string         // Ссылка на платёж (nil пока платёж не создан)
	CreatedAt       time.Time       // Дата создания заказа
	UpdatedAt       time.Time       // Дата последнего обновления
}

// Validate проверяет корректность полей заказа.
// Вызывается перед созданием заказа.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.CustomerID) == "" {
		return ErrInvalidCustomerID
	}

	if len(o.Items) == 0 {
		return ErrEmptyOrderItems
	}

	for i := range o.Items {
		if err := o.Items[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}

// CanCancel проверяет, можно ли отменить заказ.
// Отменить можно только заказ в статусе PENDING.
func (o *Order) CanCancel() bool {
	return o.Status == OrderStatusPending
}

// Cancel отменяет заказ (компенсация саги или отмена клиентом).
// Возвращает ошибку, если заказ нельзя отменить.
func (o *Order) Cancel() error {
	if !o.CanCancel() {
		return ErrOrderCannotCancel
	}
	o.Status = OrderStatusCancelled
	for i := range o.Items {
		o.Items[i].Status = ItemStatusCancelled
	}
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaid помечает заказ как успешно оплаченный.
// Возвращает ошибку, если оплата уже была зафиксирована.
func (o *Order) MarkPaid(paymentRef string) error {
	if o.PaymentStatus != PaymentStatusPending {
		return ErrOrderAlreadyPaid
	}
	o.PaymentStatus = PaymentStatusSuccess
	o.PaymentRef = &paymentRef
	o.UpdatedAt = time.Now()
	return nil
}

// OrderItem — позиция заказа.
// Цена, название, SKU и налоговая ставка — снапшоты на момент создания,
// после создания не изменяются.
type OrderItem struct {
	ID          string          // Уникальный идентификатор позиции (UUID)
	OrderID     string          // ID заказа, к которому относится позиция
	ProductID   string          // ID товара
	SKU         string          // Артикул товара (снапшот из каталога)
	ProductName string          // Название товара (снапшот из каталога)
	Quantity    int64           // Количество единиц товара (> 0)
	UnitPrice   decimal.Decimal // Цена за единицу на момент заказа
	TaxRate     decimal.Decimal // Налоговая ставка на момент заказа
	Status      ItemStatus      // Статус позиции
}

// Validate проверяет корректность полей позиции заказа.
func (oi *OrderItem) Validate() error {
	if strings.TrimSpace(oi.ProductID) == "" {
		return ErrInvalidProductID
	}

	if oi.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	return nil
}

// LineTotal возвращает общую стоимость позиции (количество * цена за единицу).
func (oi *OrderItem) LineTotal() decimal.Decimal {
	return oi.UnitPrice.Mul(decimal.NewFromInt(oi.Quantity))
}
