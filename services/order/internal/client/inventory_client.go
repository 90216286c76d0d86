package client

import (
	"context"
	"net/http"
	"time"

	"example.com/commerce-platform/pkg/circuitbreaker"
)

// Статусы ответа Inventory Service на резервирование.
const (
	ReserveStatusReserved = "RESERVED"
	ReserveStatusPartial  = "PARTIAL"
)

// ReserveItem — позиция запроса на резервирование.
type ReserveItem struct {
	ProductID string `json:"productId"`
	Qty       int64  `json:"qty"`
	SKU       string `json:"sku,omitempty"`
}

// ReservedItem — позиция ответа на резервирование.
type ReservedItem struct {
	ReservationID string `json:"reservationId,omitempty"`
	ProductID     string `json:"productId"`
	SKU           string `json:"sku,omitempty"`
	Warehouse     string `json:"warehouse,omitempty"`
	QtyReserved   int64  `json:"qtyReserved,omitempty"`
	QtyRequested  int64  `json:"qtyRequested,omitempty"`
	QtyAvailable  int64  `json:"qtyAvailable,omitempty"`
}

// ReserveResult — результат вызова резервирования.
type ReserveResult struct {
	Status         string         `json:"status"`
	OrderID        string         `json:"orderId"`
	Items          []ReservedItem `json:"items"`
	Unavailable    []ReservedItem `json:"unavailable,omitempty"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	Idempotent     bool           `json:"idempotent,omitempty"`
	ActionRequired string         `json:"actionRequired,omitempty"`
}

// Reserved возвращает true, если все позиции зарезервированы.
func (r *ReserveResult) Reserved() bool {
	return r.Status == ReserveStatusReserved
}

// InventoryClient — клиент Inventory Service.
type InventoryClient struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

// InventoryClientConfig — конфигурация клиента Inventory Service.
type InventoryClientConfig struct {
	BaseURL string
	Timeout time.Duration // Per-hop timeout (по умолчанию 8s)
}

// NewInventoryClient создаёт новый клиент Inventory Service.
func NewInventoryClient(cfg InventoryClientConfig) *InventoryClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}

	return &InventoryClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New("inventory-service"),
	}
}

// reserveRequest — тело POST /v1/inventory/reserve.
type reserveRequest struct {
	OrderID string        `json:"orderId"`
	Items   []ReserveItem `json:"items"`
}

// Reserve резервирует сток под заказ.
// Ключ идемпотентности передаётся заголовком — Inventory Service
// превращает повторный вызов в реплей существующих резерваций.
func (c *InventoryClient) Reserve(ctx context.Context, orderID, idempotencyKey string, items []ReserveItem) (*ReserveResult, error) {
	var result ReserveResult
	err := doJSON(ctx, c.http, c.breaker, "Inventory Service",
		http.MethodPost, c.baseURL+"/v1/inventory/reserve",
		map[string]string{HeaderIdempotencyKey: idempotencyKey},
		reserveRequest{OrderID: orderID, Items: items},
		&result,
	)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// releaseRequest — тело POST /v1/inventory/release.
type releaseRequest struct {
	OrderID string `json:"orderId"`
}

// Release освобождает все активные резервации заказа.
// Идемпотентна: повторный вызов — no-op.
func (c *InventoryClient) Release(ctx context.Context, orderID string) error {
	return doJSON(ctx, c.http, c.breaker, "Inventory Service",
		http.MethodPost, c.baseURL+"/v1/inventory/release",
		nil,
		releaseRequest{OrderID: orderID},
		nil,
	)
}
