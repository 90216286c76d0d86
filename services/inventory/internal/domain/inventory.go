// Package domain содержит бизнес-сущности и доменные ошибки Inventory Service.
package domain

import (
	"strings"
	"time"
)

// ReservationStatus — статус резервации.
type ReservationStatus string

const (
	// ReservationStatusActive — резервация держит сток и ждёт оплаты или TTL.
	ReservationStatusActive ReservationStatus = "ACTIVE"

	// ReservationStatusConfirmed — резервация подтверждена оплаченным заказом.
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"

	// ReservationStatusReleased — резервация освобождена (компенсация или отмена).
	ReservationStatusReleased ReservationStatus = "RELEASED"

	// ReservationStatusExpired — резервация освобождена реапером по истечении TTL.
	ReservationStatusExpired ReservationStatus = "EXPIRED"
)

// MovementType — тип складского движения.
type MovementType string

const (
	// MovementReserve — резервирование стока под заказ.
	MovementReserve MovementType = "RESERVE"

	// MovementRelease — освобождение резервации.
	MovementRelease MovementType = "RELEASE"

	// MovementShip — отгрузка: списание on_hand и reserved.
	MovementShip MovementType = "SHIP"
)

// InventoryRow — остаток товара на конкретном складе.
// Инвариант: 0 <= Reserved <= OnHand. Обе величины меняются только
// через guarded UPDATE в репозитории, сущность сама их не мутирует.
type InventoryRow struct {
	ID        int64
	ProductID string
	SKU       string
	Warehouse string
	OnHand    int64
	Reserved  int64
	UpdatedAt time.Time
}

// Available возвращает количество, доступное для резервирования.
func (r *InventoryRow) Available() int64 {
	return r.OnHand - r.Reserved
}

// Reservation — удержание стока под заказ.
// Тройка (IdempotencyKey, OrderID, ProductID) уникальна: повторное
// резервирование с тем же ключом возвращает существующие записи.
type Reservation struct {
	ID             string
	IdempotencyKey string
	OrderID        string
	ProductID      string
	SKU            string
	Warehouse      string
	Qty            int64
	Status         ReservationStatus
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active возвращает true, если резервация ещё держит сток.
func (r *Reservation) Active() bool {
	return r.Status == ReservationStatusActive
}

// ExpiredAt возвращает true, если TTL резервации истёк к моменту now.
func (r *Reservation) ExpiredAt(now time.Time) bool {
	return r.Active() && !r.ExpiresAt.After(now)
}

// Movement — запись журнала складских движений (append-only).
type Movement struct {
	ID            int64
	Type          MovementType
	ProductID     string
	Warehouse     string
	Qty           int64
	OrderID       string
	ReservationID string
	Note          string
	CreatedAt     time.Time
}

// ReserveLine — позиция запроса на резервирование.
type ReserveLine struct {
	ProductID string
	Qty       int64
	SKU       string
}

// Validate проверяет корректность позиции запроса.
func (l *ReserveLine) Validate() error {
	if strings.TrimSpace(l.ProductID) == "" {
		return ErrInvalidProductID
	}
	if l.Qty <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
