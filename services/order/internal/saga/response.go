package saga

import (
	"encoding/json"
	"time"

	"example.com/commerce-platform/services/order/internal/domain"
	"example.com/commerce-platform/services/order/internal/pricing"
)

// OrderPayload — JSON представление заказа в ответах API.
// Денежные поля отдаются строками с двумя знаками после запятой.
type OrderPayload struct {
	OrderID         string             `json:"orderId"`
	CustomerID      string             `json:"customerId"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"paymentStatus"`
	PaymentRef      *string            `json:"paymentRef,omitempty"`
	Items           []OrderItemPayload `json:"items"`
	Totals          TotalsPayload      `json:"totals"`
	TotalsSignature string             `json:"totalsSignature"`
	ReservedUntil   *time.Time         `json:"reservedUntil,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// OrderItemPayload — позиция заказа в ответах API.
type OrderItemPayload struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
	Status    string `json:"status"`
}

// TotalsPayload — разбивка итогов заказа в ответах API.
type TotalsPayload struct {
	Subtotal  string `json:"subtotal"`
	TaxRate   string `json:"taxRate"`
	TaxAmount string `json:"taxAmount"`
	Shipping  string `json:"shipping"`
	Total     string `json:"total"`
}

// BuildOrderPayload собирает JSON представление заказа.
func BuildOrderPayload(order *domain.Order, breakdown pricing.Breakdown, reservedUntil *time.Time) OrderPayload {
	items := make([]OrderItemPayload, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemPayload{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			LineTotal: item.LineTotal().StringFixed(2),
			Status:    string(item.Status),
		}
	}

	return OrderPayload{
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentRef:    order.PaymentRef,
		Items:         items,
		Totals: TotalsPayload{
			Subtotal:  breakdown.Subtotal.StringFixed(2),
			TaxRate:   breakdown.TaxRate.String(),
			TaxAmount: breakdown.TaxAmount.StringFixed(2),
			Shipping:  breakdown.Shipping.StringFixed(2),
			Total:     breakdown.Total.StringFixed(2),
		},
		TotalsSignature: order.TotalsSignature,
		ReservedUntil:   reservedUntil,
		CreatedAt:       order.CreatedAt,
	}
}

// marshalOrderPayload сериализует заказ для ответа и записи идемпотентности.
func marshalOrderPayload(order *domain.Order, breakdown pricing.Breakdown, reservedUntil *time.Time) []byte {
	data, _ := json.Marshal(BuildOrderPayload(order, breakdown, reservedUntil))
	return data
}
