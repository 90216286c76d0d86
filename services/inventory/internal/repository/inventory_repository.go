// Package repository реализует доступ к данным Inventory Service через GORM.
//
// Конкурентная безопасность резервирования держится на двух механизмах:
//   - SELECT ... FOR UPDATE при выборе складов внутри транзакции;
//   - guarded UPDATE (on_hand - reserved >= qty) — проверка и инкремент
//     reserved в одном атомарном statement, overselling невозможен
//     даже без блокировки.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/commerce-platform/services/inventory/internal/domain"
)

// InventoryRepository — репозиторий остатков, резерваций и журнала движений.
type InventoryRepository interface {
	// Transact выполняет fn в транзакции: все вызовы репозитория внутри fn
	// идут через один tx, ошибка fn откатывает транзакцию.
	Transact(ctx context.Context, fn func(tx InventoryRepository) error) error

	// GetRowsByProduct возвращает остатки товара по всем складам.
	GetRowsByProduct(ctx context.Context, productID string) ([]domain.InventoryRow, error)

	// GetRowsByProductForUpdate возвращает остатки товара с блокировкой строк.
	// Имеет смысл только внутри Transact.
	GetRowsByProductForUpdate(ctx context.Context, productID string) ([]domain.InventoryRow, error)

	// TryReserve атомарно увеличивает reserved, если доступного стока хватает.
	// Возвращает false без ошибки, если стока не хватило.
	TryReserve(ctx context.Context, productID, warehouse string, qty int64) (bool, error)

	// ReleaseQuantity уменьшает reserved, не опуская его ниже нуля.
	ReleaseQuantity(ctx context.Context, productID, warehouse string, qty int64) error

	// ShipQuantity списывает отгруженное количество из on_hand и reserved.
	ShipQuantity(ctx context.Context, productID, warehouse string, qty int64) error

	// CreateReservation создаёт резервацию.
	// Коллизия (idempotency_key, order_id, product_id) — ErrDuplicateReservation.
	CreateReservation(ctx context.Context, reservation *domain.Reservation) error

	// FindReservationsByKeyAndOrder возвращает резервации по ключу и заказу.
	FindReservationsByKeyAndOrder(ctx context.Context, key, orderID string) ([]domain.Reservation, error)

	// FindActiveByOrder возвращает активные резервации заказа.
	FindActiveByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error)

	// FindExpiredActive возвращает активные резервации с истёкшим TTL.
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)

	// UpdateReservationStatus переводит резервации из статуса from в to.
	// Возвращает число фактически обновлённых строк: условие WHERE status = from
	// делает переход идемпотентным.
	UpdateReservationStatus(ctx context.Context, ids []string, from, to domain.ReservationStatus) (int64, error)

	// AppendMovement добавляет запись в журнал движений.
	AppendMovement(ctx context.Context, movement *domain.Movement) error

	// ListMovements возвращает последние движения товара (по всем складам,
	// если productID пуст).
	ListMovements(ctx context.Context, productID string, limit int) ([]domain.Movement, error)
}

// === GORM модели ===

// InventoryRowModel — GORM модель остатка товара на складе.
type InventoryRowModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ProductID string    `gorm:"column:product_id;type:varchar(64);not null;uniqueIndex:uniq_product_warehouse,priority:1"`
	SKU       string    `gorm:"column:sku;type:varchar(64);not null"`
	Warehouse string    `gorm:"column:warehouse;type:varchar(32);not null;uniqueIndex:uniq_product_warehouse,priority:2"`
	OnHand    int64     `gorm:"column:on_hand;not null;default:0"`
	Reserved  int64     `gorm:"column:reserved;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName задаёт имя таблицы для GORM.
func (InventoryRowModel) TableName() string {
	return "inventory_rows"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *InventoryRowModel) toDomain() domain.InventoryRow {
	return domain.InventoryRow{
		ID:        m.ID,
		ProductID: m.ProductID,
		SKU:       m.SKU,
		Warehouse: m.Warehouse,
		OnHand:    m.OnHand,
		Reserved:  m.Reserved,
		UpdatedAt: m.UpdatedAt,
	}
}

// ReservationModel — GORM модель резервации.
type ReservationModel struct {
	ID             string    `gorm:"primaryKey;type:char(36)"`
	IdempotencyKey string    `gorm:"column:idempotency_key;type:varchar(128);not null;uniqueIndex:uniq_key_order_product,priority:1"`
	OrderID        string    `gorm:"column:order_id;type:char(36);not null;uniqueIndex:uniq_key_order_product,priority:2;index:idx_reservations_order"`
	ProductID      string    `gorm:"column:product_id;type:varchar(64);not null;uniqueIndex:uniq_key_order_product,priority:3"`
	SKU            string    `gorm:"column:sku;type:varchar(64)"`
	Warehouse      string    `gorm:"column:warehouse;type:varchar(32);not null"`
	Qty            int64     `gorm:"column:qty;not null"`
	Status         string    `gorm:"column:status;type:varchar(16);not null;index:idx_reservations_status_expires,priority:1"`
	ExpiresAt      time.Time `gorm:"column:expires_at;not null;index:idx_reservations_status_expires,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName задаёт имя таблицы для GORM.
func (ReservationModel) TableName() string {
	return "reservations"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *ReservationModel) toDomain() domain.Reservation {
	return domain.Reservation{
		ID:             m.ID,
		IdempotencyKey: m.IdempotencyKey,
		OrderID:        m.OrderID,
		ProductID:      m.ProductID,
		SKU:            m.SKU,
		Warehouse:      m.Warehouse,
		Qty:            m.Qty,
		Status:         domain.ReservationStatus(m.Status),
		ExpiresAt:      m.ExpiresAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// reservationModelFromDomain конвертирует доменную сущность в GORM модель.
func reservationModelFromDomain(r *domain.Reservation) *ReservationModel {
	return &ReservationModel{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		OrderID:        r.OrderID,
		ProductID:      r.ProductID,
		SKU:            r.SKU,
		Warehouse:      r.Warehouse,
		Qty:            r.Qty,
		Status:         string(r.Status),
		ExpiresAt:      r.ExpiresAt,
	}
}

// MovementModel — GORM модель записи журнала движений (append-only).
type MovementModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	Type          string    `gorm:"column:type;type:varchar(16);not null"`
	ProductID     string    `gorm:"column:product_id;type:varchar(64);not null;index:idx_movements_product"`
	Warehouse     string    `gorm:"column:warehouse;type:varchar(32);not null"`
	Qty           int64     `gorm:"column:qty;not null"`
	OrderID       string    `gorm:"column:order_id;type:char(36)"`
	ReservationID string    `gorm:"column:reservation_id;type:char(36)"`
	Note          string    `gorm:"column:note;type:varchar(255)"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName задаёт имя таблицы для GORM.
func (MovementModel) TableName() string {
	return "stock_movements"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *MovementModel) toDomain() domain.Movement {
	return domain.Movement{
		ID:            m.ID,
		Type:          domain.MovementType(m.Type),
		ProductID:     m.ProductID,
		Warehouse:     m.Warehouse,
		Qty:           m.Qty,
		OrderID:       m.OrderID,
		ReservationID: m.ReservationID,
		Note:          m.Note,
		CreatedAt:     m.CreatedAt,
	}
}

// === Реализация ===

// inventoryRepository — GORM реализация InventoryRepository.
type inventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository создаёт новый репозиторий Inventory Service.
func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

// Transact выполняет fn в транзакции поверх того же репозитория.
func (r *inventoryRepository) Transact(ctx context.Context, fn func(tx InventoryRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&inventoryRepository{db: tx})
	})
}

// GetRowsByProduct возвращает остатки товара по всем складам,
// отсортированные по доступному количеству (убывание).
func (r *inventoryRepository) GetRowsByProduct(ctx context.Context, productID string) ([]domain.InventoryRow, error) {
	return r.rowsByProduct(ctx, productID, false)
}

// GetRowsByProductForUpdate — то же с блокировкой FOR UPDATE.
func (r *inventoryRepository) GetRowsByProductForUpdate(ctx context.Context, productID string) ([]domain.InventoryRow, error) {
	return r.rowsByProduct(ctx, productID, true)
}

func (r *inventoryRepository) rowsByProduct(ctx context.Context, productID string, forUpdate bool) ([]domain.InventoryRow, error) {
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("(on_hand - reserved) DESC, warehouse ASC")

	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var models []InventoryRowModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	if len(models) == 0 {
		return nil, domain.ErrProductNotFound
	}

	rows := make([]domain.InventoryRow, len(models))
	for i := range models {
		rows[i] = models[i].toDomain()
	}
	return rows, nil
}

// TryReserve атомарно резервирует qty на складе warehouse.
// Guard в WHERE гарантирует reserved <= on_hand без блокировки.
func (r *inventoryRepository) TryReserve(ctx context.Context, productID, warehouse string, qty int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&InventoryRowModel{}).
		Where("product_id = ? AND warehouse = ? AND on_hand - reserved >= ?", productID, warehouse, qty).
		Update("reserved", gorm.Expr("reserved + ?", qty))

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseQuantity уменьшает reserved. GREATEST защищает инвариант
// reserved >= 0 при повторном освобождении.
func (r *inventoryRepository) ReleaseQuantity(ctx context.Context, productID, warehouse string, qty int64) error {
	return r.db.WithContext(ctx).
		Model(&InventoryRowModel{}).
		Where("product_id = ? AND warehouse = ?", productID, warehouse).
		Update("reserved", gorm.Expr("GREATEST(reserved - ?, 0)", qty)).Error
}

// ShipQuantity списывает отгруженное количество из обеих колонок.
func (r *inventoryRepository) ShipQuantity(ctx context.Context, productID, warehouse string, qty int64) error {
	return r.db.WithContext(ctx).
		Model(&InventoryRowModel{}).
		Where("product_id = ? AND warehouse = ?", productID, warehouse).
		Updates(map[string]any{
			"on_hand":  gorm.Expr("GREATEST(on_hand - ?, 0)", qty),
			"reserved": gorm.Expr("GREATEST(reserved - ?, 0)", qty),
		}).Error
}

// CreateReservation создаёт резервацию.
func (r *inventoryRepository) CreateReservation(ctx context.Context, reservation *domain.Reservation) error {
	model := reservationModelFromDomain(reservation)

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrDuplicateReservation
		}
		return err
	}

	reservation.CreatedAt = model.CreatedAt
	reservation.UpdatedAt = model.UpdatedAt
	return nil
}

// FindReservationsByKeyAndOrder возвращает резервации по ключу идемпотентности и заказу.
func (r *inventoryRepository) FindReservationsByKeyAndOrder(ctx context.Context, key, orderID string) ([]domain.Reservation, error) {
	var models []ReservationModel
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ? AND order_id = ?", key, orderID).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return reservationsToDomain(models), nil
}

// FindActiveByOrder возвращает активные резервации заказа.
func (r *inventoryRepository) FindActiveByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	var models []ReservationModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, string(domain.ReservationStatusActive)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return reservationsToDomain(models), nil
}

// FindExpiredActive возвращает активные резервации с истёкшим TTL.
func (r *inventoryRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	var models []ReservationModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(domain.ReservationStatusActive), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return reservationsToDomain(models), nil
}

// UpdateReservationStatus переводит резервации из статуса from в to.
func (r *inventoryRepository) UpdateReservationStatus(ctx context.Context, ids []string, from, to domain.ReservationStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&ReservationModel{}).
		Where("id IN ? AND status = ?", ids, string(from)).
		Update("status", string(to))

	return result.RowsAffected, result.Error
}

// AppendMovement добавляет запись в журнал движений.
func (r *inventoryRepository) AppendMovement(ctx context.Context, movement *domain.Movement) error {
	model := &MovementModel{
		Type:          string(movement.Type),
		ProductID:     movement.ProductID,
		Warehouse:     movement.Warehouse,
		Qty:           movement.Qty,
		OrderID:       movement.OrderID,
		ReservationID: movement.ReservationID,
		Note:          movement.Note,
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	movement.ID = model.ID
	movement.CreatedAt = model.CreatedAt
	return nil
}

// ListMovements возвращает последние движения товара.
func (r *inventoryRepository) ListMovements(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	query := r.db.WithContext(ctx).Model(&MovementModel{})
	if productID != "" {
		query = query.Where("product_id = ?", productID)
	}

	var models []MovementModel
	if err := query.Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}

	movements := make([]domain.Movement, len(models))
	for i := range models {
		movements[i] = models[i].toDomain()
	}
	return movements, nil
}

// reservationsToDomain конвертирует слайс моделей в доменные сущности.
func reservationsToDomain(models []ReservationModel) []domain.Reservation {
	reservations := make([]domain.Reservation, len(models))
	for i := range models {
		reservations[i] = models[i].toDomain()
	}
	return reservations
}

// isDuplicateKeyError проверяет ошибку на нарушение уникального индекса MySQL.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "1062")
}
