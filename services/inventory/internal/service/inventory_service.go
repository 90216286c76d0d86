// Package service реализует бизнес-логику Inventory Engine:
// резервирование с аллокацией по складам, подтверждение, освобождение,
// отгрузку и реапер просроченных резерваций.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/commerce-platform/pkg/logger"
	"example.com/commerce-platform/pkg/metrics"
	"example.com/commerce-platform/services/inventory/internal/domain"
	"example.com/commerce-platform/services/inventory/internal/events"
	"example.com/commerce-platform/services/inventory/internal/repository"
)

// Статусы результата резервирования.
const (
	StatusReserved = "RESERVED"
	StatusPartial  = "PARTIAL"
)

// ActionBackorderOrReduce — подсказка клиенту при частичном резервировании.
const ActionBackorderOrReduce = "BACKORDER_OR_REDUCE"

// reaperBatchLimit ограничивает размер пачки реапера за один проход.
const reaperBatchLimit = 500

// errReservationRace — конкурентная транзакция с тем же ключом и заказом
// успела создать резервацию первой. Вся транзакция откатывается и
// повторяется: свежий снапшот увидит закоммиченные строки победителя.
var errReservationRace = errors.New("резервация создана конкурентной транзакцией")

// ReserveRequest — запрос на резервирование стока под заказ.
type ReserveRequest struct {
	OrderID        string
	IdempotencyKey string
	Lines          []domain.ReserveLine
}

// ReservedLine — успешно зарезервированная позиция.
type ReservedLine struct {
	ReservationID string
	ProductID     string
	SKU           string
	Warehouse     string
	QtyReserved   int64
}

// UnavailableLine — позиция, которую не удалось зарезервировать целиком.
type UnavailableLine struct {
	ProductID    string
	SKU          string
	QtyRequested int64
	QtyAvailable int64
}

// ReserveOutcome — результат резервирования.
type ReserveOutcome struct {
	Status         string
	OrderID        string
	Items          []ReservedLine
	Unavailable    []UnavailableLine
	ExpiresAt      *time.Time
	Idempotent     bool
	ActionRequired string
}

// ShipLine — позиция запроса на отгрузку.
type ShipLine struct {
	ProductID string
	Qty       int64
	Warehouse string
	SKU       string
}

// ReapOutcome — результат прохода реапера.
type ReapOutcome struct {
	ExpiredCount int
	Released     []domain.Reservation
}

// InventoryService — операции Inventory Engine.
type InventoryService interface {
	// Reserve резервирует сток под заказ.
	// Повторный вызов с тем же ключом возвращает существующие резервации
	// (Idempotent=true); ключ, занятый только нетерминальными для реплея
	// резервациями, даёт ErrDuplicateReservation.
	Reserve(ctx context.Context, req ReserveRequest) (*ReserveOutcome, error)

	// Confirm переводит резервации заказа из ACTIVE в CONFIRMED.
	// Пустой список ids означает все активные резервации заказа.
	Confirm(ctx context.Context, orderID string, reservationIDs []string) (int64, error)

	// Release освобождает все активные резервации заказа. Идемпотентна.
	Release(ctx context.Context, orderID string) ([]string, error)

	// Ship списывает отгруженное количество из on_hand и reserved.
	Ship(ctx context.Context, orderID string, lines []ShipLine) error

	// ReapExpired освобождает активные резервации с истёкшим TTL.
	ReapExpired(ctx context.Context) (*ReapOutcome, error)

	// GetProduct возвращает остатки товара по всем складам.
	GetProduct(ctx context.Context, productID string) ([]domain.InventoryRow, error)

	// Movements возвращает последние движения товара.
	Movements(ctx context.Context, productID string, limit int) ([]domain.Movement, error)
}

// inventoryService — реализация InventoryService.
type inventoryService struct {
	repo              repository.InventoryRepository
	publisher         events.Publisher
	reservationTTL    time.Duration
	lowStockThreshold int64
}

// NewInventoryService создаёт новый сервис Inventory Engine.
func NewInventoryService(
	repo repository.InventoryRepository,
	publisher events.Publisher,
	reservationTTL time.Duration,
	lowStockThreshold int64,
) InventoryService {
	return &inventoryService{
		repo:              repo,
		publisher:         publisher,
		reservationTTL:    reservationTTL,
		lowStockThreshold: lowStockThreshold,
	}
}

// lowStockSignal — отложенный сигнал о низком остатке: публикуется
// после коммита транзакции резервирования.
type lowStockSignal struct {
	productID string
	warehouse string
	available int64
}

// Reserve резервирует сток под заказ.
func (s *inventoryService) Reserve(ctx context.Context, req ReserveRequest) (*ReserveOutcome, error) {
	log := logger.FromContext(ctx)

	if err := validateReserveRequest(req); err != nil {
		return nil, err
	}

	var (
		outcome   *ReserveOutcome
		movements []domain.Movement
		lowStock  []lowStockSignal
	)

	reserve := func(tx repository.InventoryRepository) error {
		// Реплей по ключу идемпотентности
		existing, err := tx.FindReservationsByKeyAndOrder(ctx, req.IdempotencyKey, req.OrderID)
		if err != nil {
			return fmt.Errorf("ошибка поиска резерваций по ключу: %w", err)
		}
		if len(existing) > 0 {
			replay := replayOutcome(req.OrderID, existing)
			if replay == nil {
				return domain.ErrDuplicateReservation
			}
			outcome = replay
			return nil
		}

		outcome, movements, lowStock, err = s.allocate(ctx, tx, req)
		return err
	}

	err := s.repo.Transact(ctx, reserve)
	if errors.Is(err, errReservationRace) {
		// Проигранная гонка по уникальному индексу (key, order, product):
		// победитель уже закоммитился, повторная транзакция со свежим
		// снапшотом вернёт его резервации как реплей
		log.Info().
			Str("order_id", req.OrderID).
			Msg("Гонка резервирования по ключу идемпотентности, повторяем транзакцию")
		err = s.repo.Transact(ctx, reserve)
	}
	if errors.Is(err, errReservationRace) {
		return nil, domain.ErrDuplicateReservation
	}
	if err != nil {
		return nil, err
	}

	// События публикуются после коммита: упавшая публикация
	// не откатывает уже выполненное резервирование
	for i := range movements {
		s.publisher.PublishMovement(ctx, &movements[i])
	}
	for _, sig := range lowStock {
		metrics.LowStockAlertsTotal.Inc()
		s.publisher.PublishLowStock(ctx, sig.productID, sig.warehouse, sig.available, s.lowStockThreshold)
		log.Warn().
			Str("product_id", sig.productID).
			Str("warehouse", sig.warehouse).
			Int64("available", sig.available).
			Int64("threshold", s.lowStockThreshold).
			Msg("Низкий остаток на складе после резервирования")
	}

	switch {
	case outcome.Idempotent:
		metrics.ReservationsTotal.WithLabelValues("idempotent_replay").Inc()
	case outcome.Status == StatusReserved:
		metrics.ReservationsTotal.WithLabelValues("reserved").Inc()
	default:
		metrics.ReservationsTotal.WithLabelValues("partial").Inc()
	}

	log.Info().
		Str("order_id", req.OrderID).
		Str("status", outcome.Status).
		Bool("idempotent", outcome.Idempotent).
		Int("reserved", len(outcome.Items)).
		Int("unavailable", len(outcome.Unavailable)).
		Msg("Резервирование выполнено")

	return outcome, nil
}

// validateReserveRequest проверяет входной контракт резервирования.
func validateReserveRequest(req ReserveRequest) error {
	if req.IdempotencyKey == "" {
		return domain.ErrMissingIdempotencyKey
	}
	if req.OrderID == "" {
		return domain.ErrInvalidOrderID
	}
	if len(req.Lines) == 0 {
		return domain.ErrEmptyReserveItems
	}
	for i := range req.Lines {
		if err := req.Lines[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// replayOutcome строит результат реплея из существующих резерваций.
// Возвращает nil, если среди них нет ни одной активной (DUPLICATE).
func replayOutcome(orderID string, existing []domain.Reservation) *ReserveOutcome {
	items := make([]ReservedLine, 0, len(existing))
	var expiresAt *time.Time

	for i := range existing {
		r := &existing[i]
		if !r.Active() {
			continue
		}
		items = append(items, ReservedLine{
			ReservationID: r.ID,
			ProductID:     r.ProductID,
			SKU:           r.SKU,
			Warehouse:     r.Warehouse,
			QtyReserved:   r.Qty,
		})
		if expiresAt == nil || r.ExpiresAt.Before(*expiresAt) {
			exp := r.ExpiresAt
			expiresAt = &exp
		}
	}

	if len(items) == 0 {
		return nil
	}

	return &ReserveOutcome{
		Status:     StatusReserved,
		OrderID:    orderID,
		Items:      items,
		ExpiresAt:  expiresAt,
		Idempotent: true,
	}
}

// productStock — снапшот остатков товара по складам под блокировкой.
type productStock struct {
	line domain.ReserveLine
	rows []domain.InventoryRow
}

// available возвращает доступное количество товара на складе.
func (p *productStock) available(warehouse string) int64 {
	for i := range p.rows {
		if p.rows[i].Warehouse == warehouse {
			return p.rows[i].Available()
		}
	}
	return 0
}

// bestAvailable возвращает максимальное доступное количество среди складов.
func (p *productStock) bestAvailable() int64 {
	var best int64
	for i := range p.rows {
		if a := p.rows[i].Available(); a > best {
			best = a
		}
	}
	return best
}

// allocate выполняет аллокацию стока внутри транзакции.
func (s *inventoryService) allocate(
	ctx context.Context,
	tx repository.InventoryRepository,
	req ReserveRequest,
) (*ReserveOutcome, []domain.Movement, []lowStockSignal, error) {
	// Снимаем остатки всех товаров под блокировкой строк.
	// Неизвестный товар не ошибка: он попадёт в unavailable с qty_available=0
	stocks := make([]productStock, len(req.Lines))
	for i, line := range req.Lines {
		rows, err := tx.GetRowsByProductForUpdate(ctx, line.ProductID)
		if err != nil && err != domain.ErrProductNotFound {
			return nil, nil, nil, fmt.Errorf("ошибка чтения остатков товара %s: %w", line.ProductID, err)
		}
		stocks[i] = productStock{line: line, rows: rows}
	}

	// single-warehouse-first: склад, вмещающий весь заказ целиком
	singleWarehouse := findSingleWarehouse(stocks)

	expiresAt := time.Now().Add(s.reservationTTL)
	outcome := &ReserveOutcome{
		Status:    StatusReserved,
		OrderID:   req.OrderID,
		ExpiresAt: &expiresAt,
	}

	var movements []domain.Movement
	var lowStock []lowStockSignal

	for i := range stocks {
		stock := &stocks[i]
		line := stock.line

		warehouse, ok, err := s.reserveLine(ctx, tx, stock, singleWarehouse)
		if err != nil {
			return nil, nil, nil, err
		}
		if !ok {
			outcome.Unavailable = append(outcome.Unavailable, UnavailableLine{
				ProductID:    line.ProductID,
				SKU:          stock.sku(),
				QtyRequested: line.Qty,
				QtyAvailable: stock.bestAvailable(),
			})
			continue
		}

		reservation := &domain.Reservation{
			ID:             uuid.New().String(),
			IdempotencyKey: req.IdempotencyKey,
			OrderID:        req.OrderID,
			ProductID:      line.ProductID,
			SKU:            stock.sku(),
			Warehouse:      warehouse,
			Qty:            line.Qty,
			Status:         domain.ReservationStatusActive,
			ExpiresAt:      expiresAt,
		}

		if err := tx.CreateReservation(ctx, reservation); err != nil {
			if errors.Is(err, domain.ErrDuplicateReservation) {
				// Конкурентная транзакция с тем же ключом создала резервацию
				// первой. Снапшот этой транзакции её не видит, поэтому
				// откатываемся целиком и повторяем с новым снапшотом
				return nil, nil, nil, errReservationRace
			}
			return nil, nil, nil, fmt.Errorf("ошибка создания резервации: %w", err)
		}

		movements = append(movements, domain.Movement{
			Type:          domain.MovementReserve,
			ProductID:     line.ProductID,
			Warehouse:     warehouse,
			Qty:           line.Qty,
			OrderID:       req.OrderID,
			ReservationID: reservation.ID,
		})
		if err := tx.AppendMovement(ctx, &movements[len(movements)-1]); err != nil {
			return nil, nil, nil, fmt.Errorf("ошибка записи движения: %w", err)
		}

		if remaining := stock.available(warehouse) - line.Qty; remaining < s.lowStockThreshold {
			lowStock = append(lowStock, lowStockSignal{
				productID: line.ProductID,
				warehouse: warehouse,
				available: remaining,
			})
		}

		outcome.Items = append(outcome.Items, ReservedLine{
			ReservationID: reservation.ID,
			ProductID:     line.ProductID,
			SKU:           reservation.SKU,
			Warehouse:     warehouse,
			QtyReserved:   line.Qty,
		})
	}

	if len(outcome.Unavailable) > 0 {
		outcome.Status = StatusPartial
		outcome.ActionRequired = ActionBackorderOrReduce
	}

	return outcome, movements, lowStock, nil
}

// sku возвращает артикул товара: из снапшота склада или подсказки клиента.
func (p *productStock) sku() string {
	if len(p.rows) > 0 {
		return p.rows[0].SKU
	}
	return p.line.SKU
}

// reserveLine резервирует одну позицию: сначала на выбранном едином складе,
// затем по кандидатам в порядке убывания доступного количества.
// Zero-affected-rows на guarded UPDATE означает проигранную гонку —
// пробуем следующий склад.
func (s *inventoryService) reserveLine(
	ctx context.Context,
	tx repository.InventoryRepository,
	stock *productStock,
	singleWarehouse string,
) (string, bool, error) {
	line := stock.line

	if singleWarehouse != "" {
		ok, err := tx.TryReserve(ctx, line.ProductID, singleWarehouse, line.Qty)
		if err != nil {
			return "", false, fmt.Errorf("ошибка резервирования товара %s: %w", line.ProductID, err)
		}
		if ok {
			return singleWarehouse, true, nil
		}
	}

	// Строки уже отсортированы по убыванию доступного количества
	for i := range stock.rows {
		row := &stock.rows[i]
		if row.Warehouse == singleWarehouse || row.Available() < line.Qty {
			continue
		}
		ok, err := tx.TryReserve(ctx, line.ProductID, row.Warehouse, line.Qty)
		if err != nil {
			return "", false, fmt.Errorf("ошибка резервирования товара %s: %w", line.ProductID, err)
		}
		if ok {
			return row.Warehouse, true, nil
		}
	}

	return "", false, nil
}

// findSingleWarehouse ищет склад, где доступного стока хватает
// на все позиции заказа сразу. Пустая строка — такого склада нет.
func findSingleWarehouse(stocks []productStock) string {
	if len(stocks) == 0 {
		return ""
	}

	// Кандидаты — склады первого товара
	for _, row := range stocks[0].rows {
		warehouse := row.Warehouse
		fits := true
		for i := range stocks {
			if stocks[i].available(warehouse) < stocks[i].line.Qty {
				fits = false
				break
			}
		}
		if fits {
			return warehouse
		}
	}
	return ""
}

// Confirm переводит резервации заказа из ACTIVE в CONFIRMED.
func (s *inventoryService) Confirm(ctx context.Context, orderID string, reservationIDs []string) (int64, error) {
	if orderID == "" {
		return 0, domain.ErrInvalidOrderID
	}

	if len(reservationIDs) == 0 {
		active, err := s.repo.FindActiveByOrder(ctx, orderID)
		if err != nil {
			return 0, fmt.Errorf("ошибка поиска активных резерваций: %w", err)
		}
		for i := range active {
			reservationIDs = append(reservationIDs, active[i].ID)
		}
	}

	confirmed, err := s.repo.UpdateReservationStatus(ctx, reservationIDs,
		domain.ReservationStatusActive, domain.ReservationStatusConfirmed)
	if err != nil {
		return 0, fmt.Errorf("ошибка подтверждения резерваций: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("order_id", orderID).
		Int64("confirmed", confirmed).
		Msg("Резервации подтверждены")

	return confirmed, nil
}

// Release освобождает все активные резервации заказа.
// Повторный вызов no-op: переход статуса guarded условием status = ACTIVE.
func (s *inventoryService) Release(ctx context.Context, orderID string) ([]string, error) {
	if orderID == "" {
		return nil, domain.ErrInvalidOrderID
	}

	var released []string
	var movements []domain.Movement

	err := s.repo.Transact(ctx, func(tx repository.InventoryRepository) error {
		active, err := tx.FindActiveByOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("ошибка поиска активных резерваций: %w", err)
		}

		for i := range active {
			r := &active[i]
			updated, err := tx.UpdateReservationStatus(ctx, []string{r.ID},
				domain.ReservationStatusActive, domain.ReservationStatusReleased)
			if err != nil {
				return fmt.Errorf("ошибка освобождения резервации %s: %w", r.ID, err)
			}
			if updated == 0 {
				continue
			}

			if err := tx.ReleaseQuantity(ctx, r.ProductID, r.Warehouse, r.Qty); err != nil {
				return fmt.Errorf("ошибка уменьшения reserved: %w", err)
			}

			movement := domain.Movement{
				Type:          domain.MovementRelease,
				ProductID:     r.ProductID,
				Warehouse:     r.Warehouse,
				Qty:           r.Qty,
				OrderID:       orderID,
				ReservationID: r.ID,
			}
			if err := tx.AppendMovement(ctx, &movement); err != nil {
				return fmt.Errorf("ошибка записи движения: %w", err)
			}
			movements = append(movements, movement)
			released = append(released, r.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range movements {
		s.publisher.PublishMovement(ctx, &movements[i])
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("order_id", orderID).
		Int("released", len(released)).
		Msg("Резервации заказа освобождены")

	return released, nil
}

// Ship списывает отгруженное количество из on_hand и reserved.
func (s *inventoryService) Ship(ctx context.Context, orderID string, lines []ShipLine) error {
	if orderID == "" {
		return domain.ErrInvalidOrderID
	}
	if len(lines) == 0 {
		return domain.ErrEmptyReserveItems
	}
	for _, line := range lines {
		if line.ProductID == "" {
			return domain.ErrInvalidProductID
		}
		if line.Qty <= 0 {
			return domain.ErrInvalidQuantity
		}
	}

	var movements []domain.Movement

	err := s.repo.Transact(ctx, func(tx repository.InventoryRepository) error {
		for _, line := range lines {
			if err := tx.ShipQuantity(ctx, line.ProductID, line.Warehouse, line.Qty); err != nil {
				return fmt.Errorf("ошибка списания товара %s: %w", line.ProductID, err)
			}

			movement := domain.Movement{
				Type:      domain.MovementShip,
				ProductID: line.ProductID,
				Warehouse: line.Warehouse,
				Qty:       line.Qty,
				OrderID:   orderID,
			}
			if err := tx.AppendMovement(ctx, &movement); err != nil {
				return fmt.Errorf("ошибка записи движения: %w", err)
			}
			movements = append(movements, movement)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := range movements {
		s.publisher.PublishMovement(ctx, &movements[i])
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("order_id", orderID).
		Int("lines", len(lines)).
		Msg("Отгрузка выполнена")

	return nil
}

// ReapExpired освобождает активные резервации с истёкшим TTL.
// Переход ACTIVE→EXPIRED guarded по статусу: гонка с Confirm разрешается
// в пользу того, кто закоммитился первым.
func (s *inventoryService) ReapExpired(ctx context.Context) (*ReapOutcome, error) {
	outcome := &ReapOutcome{}
	var movements []domain.Movement

	err := s.repo.Transact(ctx, func(tx repository.InventoryRepository) error {
		expired, err := tx.FindExpiredActive(ctx, time.Now(), reaperBatchLimit)
		if err != nil {
			return fmt.Errorf("ошибка поиска просроченных резерваций: %w", err)
		}

		for i := range expired {
			r := &expired[i]
			updated, err := tx.UpdateReservationStatus(ctx, []string{r.ID},
				domain.ReservationStatusActive, domain.ReservationStatusExpired)
			if err != nil {
				return fmt.Errorf("ошибка перевода резервации %s в EXPIRED: %w", r.ID, err)
			}
			if updated == 0 {
				continue
			}

			if err := tx.ReleaseQuantity(ctx, r.ProductID, r.Warehouse, r.Qty); err != nil {
				return fmt.Errorf("ошибка уменьшения reserved: %w", err)
			}

			movement := domain.Movement{
				Type:          domain.MovementRelease,
				ProductID:     r.ProductID,
				Warehouse:     r.Warehouse,
				Qty:           r.Qty,
				OrderID:       r.OrderID,
				ReservationID: r.ID,
				Note:          "автоматическое освобождение по истечении TTL",
			}
			if err := tx.AppendMovement(ctx, &movement); err != nil {
				return fmt.Errorf("ошибка записи движения: %w", err)
			}
			movements = append(movements, movement)

			r.Status = domain.ReservationStatusExpired
			outcome.Released = append(outcome.Released, *r)
		}

		outcome.ExpiredCount = len(outcome.Released)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range movements {
		s.publisher.PublishMovement(ctx, &movements[i])
	}
	metrics.ExpiredReservationsTotal.Add(float64(outcome.ExpiredCount))

	if outcome.ExpiredCount > 0 {
		log := logger.FromContext(ctx)
		log.Info().
			Int("expired", outcome.ExpiredCount).
			Msg("Реапер освободил просроченные резервации")
	}

	return outcome, nil
}

// GetProduct возвращает остатки товара по всем складам.
func (s *inventoryService) GetProduct(ctx context.Context, productID string) ([]domain.InventoryRow, error) {
	if productID == "" {
		return nil, domain.ErrInvalidProductID
	}
	return s.repo.GetRowsByProduct(ctx, productID)
}

// Movements возвращает последние движения товара.
func (s *inventoryService) Movements(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListMovements(ctx, productID, limit)
}
