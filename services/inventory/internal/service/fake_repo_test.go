// Package service содержит unit тесты Inventory Engine.
// Репозиторий эмулируется in-memory фейком: семантика guarded UPDATE
// и переходов статусов воспроизводится на структурах в памяти.
package service

import (
	"context"
	"sort"
	"time"

	"example.com/commerce-platform/services/inventory/internal/domain"
	"example.com/commerce-platform/services/inventory/internal/repository"
)

// fakeRepo — in-memory реализация InventoryRepository для тестов.
type fakeRepo struct {
	rows         map[string]map[string]*domain.InventoryRow // product → warehouse → row
	reservations map[string]*domain.Reservation             // id → reservation
	movements    []domain.Movement
	nextMoveID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rows:         make(map[string]map[string]*domain.InventoryRow),
		reservations: make(map[string]*domain.Reservation),
	}
}

// seed добавляет остаток товара на складе.
func (f *fakeRepo) seed(productID, sku, warehouse string, onHand, reserved int64) {
	if f.rows[productID] == nil {
		f.rows[productID] = make(map[string]*domain.InventoryRow)
	}
	f.rows[productID][warehouse] = &domain.InventoryRow{
		ProductID: productID,
		SKU:       sku,
		Warehouse: warehouse,
		OnHand:    onHand,
		Reserved:  reserved,
	}
}

func (f *fakeRepo) row(productID, warehouse string) *domain.InventoryRow {
	if byWH := f.rows[productID]; byWH != nil {
		return byWH[warehouse]
	}
	return nil
}

// Transact эмулирует транзакцию: ошибка fn откатывает состояние репозитория.
func (f *fakeRepo) Transact(ctx context.Context, fn func(tx repository.InventoryRepository) error) error {
	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

// snapshot делает глубокую копию состояния для отката.
func (f *fakeRepo) snapshot() *fakeRepo {
	snap := newFakeRepo()
	for productID, byWH := range f.rows {
		snap.rows[productID] = make(map[string]*domain.InventoryRow, len(byWH))
		for warehouse, row := range byWH {
			copied := *row
			snap.rows[productID][warehouse] = &copied
		}
	}
	for id, r := range f.reservations {
		copied := *r
		snap.reservations[id] = &copied
	}
	snap.movements = append([]domain.Movement(nil), f.movements...)
	snap.nextMoveID = f.nextMoveID
	return snap
}

// restore возвращает состояние к снапшоту.
func (f *fakeRepo) restore(snap *fakeRepo) {
	f.rows = snap.rows
	f.reservations = snap.reservations
	f.movements = snap.movements
	f.nextMoveID = snap.nextMoveID
}

func (f *fakeRepo) GetRowsByProduct(ctx context.Context, productID string) ([]domain.InventoryRow, error) {
	return f.GetRowsByProductForUpdate(ctx, productID)
}

func (f *fakeRepo) GetRowsByProductForUpdate(ctx context.Context, productID string) ([]domain.InventoryRow, error) {
	byWH := f.rows[productID]
	if len(byWH) == 0 {
		return nil, domain.ErrProductNotFound
	}

	rows := make([]domain.InventoryRow, 0, len(byWH))
	for _, row := range byWH {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Available() != rows[j].Available() {
			return rows[i].Available() > rows[j].Available()
		}
		return rows[i].Warehouse < rows[j].Warehouse
	})
	return rows, nil
}

func (f *fakeRepo) TryReserve(ctx context.Context, productID, warehouse string, qty int64) (bool, error) {
	row := f.row(productID, warehouse)
	if row == nil || row.OnHand-row.Reserved < qty {
		return false, nil
	}
	row.Reserved += qty
	return true, nil
}

func (f *fakeRepo) ReleaseQuantity(ctx context.Context, productID, warehouse string, qty int64) error {
	if row := f.row(productID, warehouse); row != nil {
		row.Reserved -= qty
		if row.Reserved < 0 {
			row.Reserved = 0
		}
	}
	return nil
}

func (f *fakeRepo) ShipQuantity(ctx context.Context, productID, warehouse string, qty int64) error {
	if row := f.row(productID, warehouse); row != nil {
		row.OnHand -= qty
		if row.OnHand < 0 {
			row.OnHand = 0
		}
		row.Reserved -= qty
		if row.Reserved < 0 {
			row.Reserved = 0
		}
	}
	return nil
}

func (f *fakeRepo) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	for _, existing := range f.reservations {
		if existing.IdempotencyKey == r.IdempotencyKey &&
			existing.OrderID == r.OrderID &&
			existing.ProductID == r.ProductID {
			return domain.ErrDuplicateReservation
		}
	}
	stored := *r
	stored.CreatedAt = time.Now()
	f.reservations[r.ID] = &stored
	return nil
}

func (f *fakeRepo) FindReservationsByKeyAndOrder(ctx context.Context, key, orderID string) ([]domain.Reservation, error) {
	var found []domain.Reservation
	for _, r := range f.reservations {
		if r.IdempotencyKey == key && r.OrderID == orderID {
			found = append(found, *r)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

func (f *fakeRepo) FindActiveByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	var found []domain.Reservation
	for _, r := range f.reservations {
		if r.OrderID == orderID && r.Status == domain.ReservationStatusActive {
			found = append(found, *r)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

func (f *fakeRepo) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	var found []domain.Reservation
	for _, r := range f.reservations {
		if r.Status == domain.ReservationStatusActive && !r.ExpiresAt.After(now) {
			found = append(found, *r)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ExpiresAt.Before(found[j].ExpiresAt) })
	if len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (f *fakeRepo) UpdateReservationStatus(ctx context.Context, ids []string, from, to domain.ReservationStatus) (int64, error) {
	var updated int64
	for _, id := range ids {
		if r, ok := f.reservations[id]; ok && r.Status == from {
			r.Status = to
			updated++
		}
	}
	return updated, nil
}

func (f *fakeRepo) AppendMovement(ctx context.Context, movement *domain.Movement) error {
	f.nextMoveID++
	movement.ID = f.nextMoveID
	movement.CreatedAt = time.Now()
	f.movements = append(f.movements, *movement)
	return nil
}

func (f *fakeRepo) ListMovements(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	var found []domain.Movement
	for i := len(f.movements) - 1; i >= 0 && len(found) < limit; i-- {
		if productID == "" || f.movements[i].ProductID == productID {
			found = append(found, f.movements[i])
		}
	}
	return found, nil
}

// movementsOfType возвращает движения указанного типа.
func (f *fakeRepo) movementsOfType(t domain.MovementType) []domain.Movement {
	var found []domain.Movement
	for _, m := range f.movements {
		if m.Type == t {
			found = append(found, m)
		}
	}
	return found
}

// staleReadRepo эмулирует снапшот REPEATABLE READ проигравшей транзакции:
// первый Transact не видит резервации, закоммиченные победителем после
// старта снапшота, хотя уникальный индекс коллизию всё равно ловит.
type staleReadRepo struct {
	*fakeRepo
	transactions int
}

func (r *staleReadRepo) Transact(ctx context.Context, fn func(tx repository.InventoryRepository) error) error {
	r.transactions++
	snap := r.snapshot()
	if err := fn(r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *staleReadRepo) FindReservationsByKeyAndOrder(ctx context.Context, key, orderID string) ([]domain.Reservation, error) {
	if r.transactions == 1 {
		return nil, nil
	}
	return r.fakeRepo.FindReservationsByKeyAndOrder(ctx, key, orderID)
}

// capturePublisher — публикатор событий, накапливающий вызовы.
type capturePublisher struct {
	movements []domain.Movement
	lowStock  []string // product:warehouse
}

func (p *capturePublisher) PublishMovement(ctx context.Context, movement *domain.Movement) {
	p.movements = append(p.movements, *movement)
}

func (p *capturePublisher) PublishLowStock(ctx context.Context, productID, warehouse string, available, threshold int64) {
	p.lowStock = append(p.lowStock, productID+":"+warehouse)
}
