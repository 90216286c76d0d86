package client

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"example.com/commerce-platform/pkg/circuitbreaker"
)

// PaymentStatusSuccess — статус успешного платежа в ответе Payment Service.
const PaymentStatusSuccess = "SUCCESS"

// ChargeResult — результат списания оплаты.
// Payment Service отвечает snake_case полями.
type ChargeResult struct {
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
}

// Success возвращает true, если платёж прошёл и у него есть идентификатор.
// Отсутствие payment_id — само по себе отказ, даже при статусе SUCCESS.
func (r *ChargeResult) Success() bool {
	return r.Status == PaymentStatusSuccess && r.PaymentID != ""
}

// PaymentClient — клиент Payment Service.
type PaymentClient struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

// PaymentClientConfig — конфигурация клиента Payment Service.
type PaymentClientConfig struct {
	BaseURL string
	Timeout time.Duration // Per-hop timeout (по умолчанию 10s)
}

// NewPaymentClient создаёт новый клиент Payment Service.
func NewPaymentClient(cfg PaymentClientConfig) *PaymentClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &PaymentClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New("payment-service"),
	}
}

// chargeRequest — тело POST /v1/payments.
type chargeRequest struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method,omitempty"`
}

// Charge списывает оплату заказа.
// Ключ идемпотентности защищает от двойного списания при ретрае саги.
func (c *PaymentClient) Charge(ctx context.Context, orderID string, amount decimal.Decimal, method, idempotencyKey string) (*ChargeResult, error) {
	var result ChargeResult
	err := doJSON(ctx, c.http, c.breaker, "Payment Service",
		http.MethodPost, c.baseURL+"/v1/payments",
		map[string]string{HeaderIdempotencyKey: idempotencyKey},
		chargeRequest{OrderID: orderID, Amount: amount, Method: method},
		&result,
	)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
