// Package saga реализует оркестрацию создания заказа.
//
// Сага выполняет последовательность: ценообразование → создание заказа PENDING →
// резервирование стока → списание оплаты → финализация. Каждый шаг — локальная
// транзакция или удалённый вызов; при ошибке любого шага выполняется компенсация
// (отмена заказа, освобождение резерваций) вместо распределённой транзакции.
//
// Идемпотентность: запись в idempotency store создаётся до первого побочного
// эффекта и финализируется итоговым ответом, поэтому ретрай клиента с тем же
// ключом получает либо реплей, либо конфликт — но никогда второй заказ.
package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/commerce-platform/pkg/logger"
	"example.com/commerce-platform/pkg/metrics"
	"example.com/commerce-platform/services/order/internal/client"
	"example.com/commerce-platform/services/order/internal/domain"
	"example.com/commerce-platform/services/order/internal/idempotency"
	"example.com/commerce-platform/services/order/internal/pricing"
	"example.com/commerce-platform/services/order/internal/repository"
)

// Путь ресурса для записей идемпотентности.
const ordersResourcePath = "/v1/orders"

// CatalogGateway — контракт Catalog Adapter для оркестратора.
type CatalogGateway interface {
	Prices(ctx context.Context, productIDs []string) (map[string]decimal.Decimal, error)
	Details(ctx context.Context, productID string) (*client.ProductDetails, error)
}

// InventoryGateway — контракт Inventory Engine для оркестратора.
type InventoryGateway interface {
	Reserve(ctx context.Context, orderID, idempotencyKey string, items []client.ReserveItem) (*client.ReserveResult, error)
	Release(ctx context.Context, orderID string) error
}

// PaymentGateway — контракт платёжного шлюза для оркестратора.
type PaymentGateway interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal, method, idempotencyKey string) (*client.ChargeResult, error)
}

// CreateOrderItem — позиция входящего запроса на создание заказа.
type CreateOrderItem struct {
	ProductID string
	Quantity  int64
	SKU       string // Опционально: подсказка клиента, каталог всё равно авторитетен
}

// CreateOrderRequest — входной контракт саги.
type CreateOrderRequest struct {
	CustomerID     string
	Items          []CreateOrderItem
	IdempotencyKey string
	PaymentMethod  string
	RawBody        []byte // Исходное тело запроса для хэша идемпотентности
}

// Result — успешный результат саги: готовый к отдаче HTTP ответ.
// Body формируется сагой один раз и сохраняется в idempotency store,
// поэтому реплей байт-в-байт совпадает с исходным ответом.
type Result struct {
	Status   int
	Body     []byte
	Replayed bool
}

// Orchestrator — координатор саги создания заказа.
type Orchestrator interface {
	// CreateOrder выполняет сагу создания заказа.
	// Ошибки возвращаются как *Error со стабильным кодом и HTTP статусом.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Result, error)
}

// orchestrator — реализация Orchestrator.
type orchestrator struct {
	idem      *idempotency.Store
	catalog   CatalogGateway
	inventory InventoryGateway
	payment   PaymentGateway
	orders    repository.OrderRepository
	calc      *pricing.Calculator
}

// NewOrchestrator создаёт новый координатор саги.
func NewOrchestrator(
	idem *idempotency.Store,
	catalog CatalogGateway,
	inventory InventoryGateway,
	payment PaymentGateway,
	orders repository.OrderRepository,
	calc *pricing.Calculator,
) Orchestrator {
	return &orchestrator{
		idem:      idem,
		catalog:   catalog,
		inventory: inventory,
		payment:   payment,
		orders:    orders,
		calc:      calc,
	}
}

// CreateOrder выполняет сагу создания заказа.
func (o *orchestrator) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Result, error) {
	log := logger.FromContext(ctx)

	// === Валидация — до любых записей ===
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// === Фаза 1: гейт идемпотентности ===
	bodyHash := idempotency.HashBody(req.RawBody)
	acquired, err := o.idem.Acquire(ctx, req.IdempotencyKey, ordersResourcePath, bodyHash)
	if err != nil {
		return nil, internalError("", "ошибка хранилища идемпотентности")
	}

	switch acquired.Outcome {
	case idempotency.OutcomeReplay:
		return &Result{Status: acquired.Status, Body: acquired.Body, Replayed: true}, nil
	case idempotency.OutcomeConflict:
		return nil, &Error{
			Code:       CodeIdempotencyConflict,
			HTTPStatus: 409,
			Message:    "запрос с таким ключом идемпотентности уже обрабатывается или завершился ошибкой",
		}
	}

	// === Фаза 2: цены и карточки товаров ===
	priced, err := o.priceItems(ctx, req.Items)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка ценообразования, заказ не создан")
		metrics.SagaStepsTotal.WithLabelValues("pricing", "failure").Inc()
		return nil, o.failSaga(ctx, req.IdempotencyKey, &Error{
			Code:       CodePricingFailed,
			HTTPStatus: 500,
			Message:    "не удалось получить цены или карточки товаров",
		})
	}
	metrics.SagaStepsTotal.WithLabelValues("pricing", "success").Inc()

	// === Фаза 3: итоги и создание заказа PENDING ===
	order, breakdown, err := o.persistPendingOrder(ctx, req, priced)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка создания заказа")
		metrics.SagaStepsTotal.WithLabelValues("persist", "failure").Inc()
		return nil, o.failSaga(ctx, req.IdempotencyKey, internalError("", "не удалось создать заказ"))
	}
	metrics.SagaStepsTotal.WithLabelValues("persist", "success").Inc()

	log.Info().
		Str("order_id", order.ID).
		Str("customer_id", order.CustomerID).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("Заказ создан в статусе PENDING")

	// === Фаза 4: резервирование стока ===
	reserveItems := make([]client.ReserveItem, len(order.Items))
	for i, item := range order.Items {
		reserveItems[i] = client.ReserveItem{
			ProductID: item.ProductID,
			Qty:       item.Quantity,
			SKU:       item.SKU,
		}
	}

	reservation, err := o.inventory.Reserve(ctx, order.ID, req.IdempotencyKey, reserveItems)
	if err != nil || !reservation.Reserved() {
		if err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("Ошибка вызова резервирования")
		} else {
			log.Warn().
				Str("order_id", order.ID).
				Str("status", reservation.Status).
				Msg("Сток зарезервирован не полностью, запускаем компенсацию")
		}
		metrics.SagaStepsTotal.WithLabelValues("reserve", "failure").Inc()
		// Резервирование могло пройти частично — release идемпотентен и безопасен
		o.compensate(ctx, order, true, "reservation_failed")
		return nil, o.failSaga(ctx, req.IdempotencyKey, &Error{
			Code:       CodeOrderCreationFailed,
			HTTPStatus: 500,
			Message:    "не удалось зарезервировать сток под заказ",
			OrderID:    order.ID,
		})
	}
	metrics.SagaStepsTotal.WithLabelValues("reserve", "success").Inc()

	// === Фаза 5: списание оплаты ===
	// Ключ идемпотентности платежа выводим из ID заказа: он уникален на заказ
	// даже если клиентский ключ когда-нибудь переиспользуют
	paymentKey := "order-" + order.ID
	charge, err := o.payment.Charge(ctx, order.ID, order.TotalAmount, req.PaymentMethod, paymentKey)
	if err != nil || !charge.Success() {
		if err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("Ошибка вызова платёжного шлюза")
		} else {
			log.Warn().
				Str("order_id", order.ID).
				Str("payment_status", charge.Status).
				Str("payment_id", charge.PaymentID).
				Msg("Платёж отклонён, запускаем компенсацию")
		}
		metrics.SagaStepsTotal.WithLabelValues("charge", "failure").Inc()
		o.compensate(ctx, order, true, "payment_failed")
		return nil, o.failSaga(ctx, req.IdempotencyKey, &Error{
			Code:       CodeOrderCreationFailed,
			HTTPStatus: 500,
			Message:    "оплата заказа отклонена",
			OrderID:    order.ID,
		})
	}
	metrics.SagaStepsTotal.WithLabelValues("charge", "success").Inc()

	// === Сверка подписи итогов перед финализацией ===
	// Пересчитываем подпись из позиций заказа: расхождение означает
	// повреждение данных между фазами — фатальная внутренняя ошибка
	if err := o.verifySignature(order, breakdown); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("Подпись итогов не сошлась")
		metrics.SagaStepsTotal.WithLabelValues("finalize", "failure").Inc()
		o.compensate(ctx, order, true, "internal")
		return nil, o.failSaga(ctx, req.IdempotencyKey, internalError(order.ID, "сверка итогов заказа не прошла"))
	}

	// === Фаза 6: финализация ===
	if err := order.MarkPaid(charge.PaymentID); err != nil {
		metrics.SagaStepsTotal.WithLabelValues("finalize", "failure").Inc()
		o.compensate(ctx, order, true, "internal")
		return nil, o.failSaga(ctx, req.IdempotencyKey, internalError(order.ID, "не удалось зафиксировать оплату"))
	}

	if err := o.orders.UpdatePayment(ctx, order.ID, order.PaymentStatus, order.PaymentRef); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("Ошибка обновления статуса оплаты")
		metrics.SagaStepsTotal.WithLabelValues("finalize", "failure").Inc()
		o.compensate(ctx, order, true, "internal")
		return nil, o.failSaga(ctx, req.IdempotencyKey, internalError(order.ID, "не удалось обновить заказ"))
	}

	body := marshalOrderPayload(order, breakdown, reservation.ExpiresAt)
	o.idem.Finalize(ctx, req.IdempotencyKey, 201, body)
	metrics.SagaStepsTotal.WithLabelValues("finalize", "success").Inc()

	log.Info().
		Str("order_id", order.ID).
		Str("payment_id", charge.PaymentID).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("Сага завершена успешно, заказ оплачен")

	return &Result{Status: 201, Body: body}, nil
}

// validateRequest проверяет входной контракт до любых побочных эффектов.
func validateRequest(req CreateOrderRequest) *Error {
	if req.IdempotencyKey == "" {
		return &Error{
			Code:       CodeValidationFailed,
			HTTPStatus: 400,
			Message:    domain.ErrMissingIdempotencyKey.Error(),
		}
	}
	if req.CustomerID == "" {
		return &Error{
			Code:       CodeValidationFailed,
			HTTPStatus: 400,
			Message:    domain.ErrInvalidCustomerID.Error(),
		}
	}
	if len(req.Items) == 0 {
		return &Error{
			Code:       CodeValidationFailed,
			HTTPStatus: 400,
			Message:    domain.ErrEmptyOrderItems.Error(),
		}
	}
	for _, item := range req.Items {
		if item.ProductID == "" {
			return &Error{
				Code:       CodeValidationFailed,
				HTTPStatus: 400,
				Message:    domain.ErrInvalidProductID.Error(),
			}
		}
		if item.Quantity <= 0 {
			return &Error{
				Code:       CodeValidationFailed,
				HTTPStatus: 400,
				Message:    domain.ErrInvalidQuantity.Error(),
			}
		}
	}
	return nil
}

// pricedItem — позиция с ценой и карточкой из каталога.
type pricedItem struct {
	CreateOrderItem
	UnitPrice decimal.Decimal
	SKU       string
	Name      string
}

// priceItems запрашивает цены одним вызовом, затем карточки товаров параллельно.
// Одна неудача проваливает всю фазу — частично оценённый заказ бессмыслен.
func (o *orchestrator) priceItems(ctx context.Context, items []CreateOrderItem) ([]pricedItem, error) {
	productIDs := make([]string, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	prices, err := o.catalog.Prices(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения цен: %w", err)
	}

	// Полнота цен проверяется до запуска горутин: ранний выход
	// посреди цикла оставил бы запущенные Details без wg.Wait
	priced := make([]pricedItem, len(items))
	for i, item := range items {
		price, ok := prices[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("каталог не вернул цену для товара %s", item.ProductID)
		}
		priced[i] = pricedItem{CreateOrderItem: item, UnitPrice: price}
	}

	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, productID string) {
			defer wg.Done()
			details, err := o.catalog.Details(ctx, productID)
			if err != nil {
				errs[i] = err
				return
			}
			priced[i].SKU = details.SKU
			priced[i].Name = details.Name
		}(i, item.ProductID)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("ошибка получения карточки товара: %w", err)
		}
	}

	return priced, nil
}

// persistPendingOrder вычисляет итоги и создаёт заказ с позициями в статусе PENDING.
func (o *orchestrator) persistPendingOrder(ctx context.Context, req CreateOrderRequest, priced []pricedItem) (*domain.Order, pricing.Breakdown, error) {
	lineItems := make([]pricing.LineItem, len(priced))
	for i, item := range priced {
		lineItems[i] = pricing.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	breakdown := o.calc.Calculate(lineItems, nil)
	signature := pricing.Signature(lineItems, breakdown)

	orderID := uuid.New().String()
	now := time.Now()

	orderItems := make([]domain.OrderItem, len(priced))
	for i, item := range priced {
		orderItems[i] = domain.OrderItem{
			ID:          uuid.New().String(),
			OrderID:     orderID,
			ProductID:   item.ProductID,
			SKU:         item.SKU,
			ProductName: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     breakdown.TaxRate,
			Status:      domain.ItemStatusPending,
		}
	}

	order := &domain.Order{
		ID:              orderID,
		CustomerID:      req.CustomerID,
		Items:           orderItems,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		TotalAmount:     breakdown.Total,
		TotalsSignature: signature,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := order.Validate(); err != nil {
		return nil, pricing.Breakdown{}, err
	}

	if err := o.orders.Create(ctx, order); err != nil {
		return nil, pricing.Breakdown{}, err
	}

	return order, breakdown, nil
}

// verifySignature пересчитывает подпись итогов из позиций заказа
// и сравнивает с сохранённой.
func (o *orchestrator) verifySignature(order *domain.Order, breakdown pricing.Breakdown) error {
	lineItems := make([]pricing.LineItem, len(order.Items))
	for i, item := range order.Items {
		lineItems[i] = pricing.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	if pricing.Signature(lineItems, breakdown) != order.TotalsSignature {
		return domain.ErrSignatureMismatch
	}
	return nil
}

// compensate выполняет откат саги: отменяет заказ и освобождает резервации.
// Ошибки компенсации логируются как события для ручной сверки (reconciliation),
// но не перекрывают исходную ошибку, возвращаемую клиенту.
func (o *orchestrator) compensate(ctx context.Context, order *domain.Order, releaseStock bool, reason string) {
	log := logger.FromContext(ctx)
	metrics.SagaCompensationsTotal.WithLabelValues(reason).Inc()

	if err := o.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled); err != nil {
		log.Error().Err(err).
			Str("order_id", order.ID).
			Str("reason", reason).
			Msg("РЕКОНСИЛИАЦИЯ: не удалось отменить заказ при компенсации")
	}

	if releaseStock {
		if err := o.inventory.Release(ctx, order.ID); err != nil {
			log.Error().Err(err).
				Str("order_id", order.ID).
				Str("reason", reason).
				Msg("РЕКОНСИЛИАЦИЯ: не удалось освободить резервации при компенсации")
		}
	}

	log.Info().
		Str("order_id", order.ID).
		Str("reason", reason).
		Msg("Компенсация выполнена, заказ отменён")
}

// failSaga финализирует запись идемпотентности ошибкой и возвращает её же.
func (o *orchestrator) failSaga(ctx context.Context, key string, sagaErr *Error) *Error {
	envelope, err := json.Marshal(sagaErr.Envelope())
	if err == nil {
		o.idem.Finalize(ctx, key, sagaErr.HTTPStatus, envelope)
	}
	return sagaErr
}

// internalError строит *Error с кодом INTERNAL_ERROR.
func internalError(orderID, message string) *Error {
	return &Error{
		Code:       CodeInternal,
		HTTPStatus: 500,
		Message:    message,
		OrderID:    orderID,
	}
}
