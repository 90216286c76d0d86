// Package pricing содержит калькулятор итогов заказа и подпись разбивки.
// Все денежные значения округляются до 2 знаков банковским округлением
// (half-to-even), чтобы суммы сходились при пересчёте.
package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// LineItem — входная позиция для расчёта итогов.
type LineItem struct {
	ProductID string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// Breakdown — разбивка итогов заказа.
// Все денежные поля округлены до 2 знаков банковским округлением.
type Breakdown struct {
	Subtotal  decimal.Decimal // Сумма позиций (цена * количество)
	TaxRate   decimal.Decimal // Применённая налоговая ставка
	TaxAmount decimal.Decimal // Налог = subtotal * tax_rate
	Shipping  decimal.Decimal // Стоимость доставки
	Total     decimal.Decimal // Итого = subtotal + tax + shipping
}

// Calculator вычисляет итоги заказа по настроенным ставкам.
type Calculator struct {
	taxRate         decimal.Decimal
	shippingBase    decimal.Decimal
	shippingPerUnit decimal.Decimal
}

// NewCalculator создаёт калькулятор итогов.
// taxRate — налоговая ставка (например 0.05),
// shippingBase/shippingPerUnit — базовая стоимость доставки и надбавка за единицу.
func NewCalculator(taxRate, shippingBase, shippingPerUnit decimal.Decimal) *Calculator {
	return &Calculator{
		taxRate:         taxRate,
		shippingBase:    shippingBase,
		shippingPerUnit: shippingPerUnit,
	}
}

// NewCalculatorFromStrings создаёт калькулятор из строковых значений конфигурации.
func NewCalculatorFromStrings(taxRate, shippingBase, shippingPerUnit string) (*Calculator, error) {
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return nil, fmt.Errorf("некорректная налоговая ставка %q: %w", taxRate, err)
	}
	base, err := decimal.NewFromString(shippingBase)
	if err != nil {
		return nil, fmt.Errorf("некорректная базовая стоимость доставки %q: %w", shippingBase, err)
	}
	perUnit, err := decimal.NewFromString(shippingPerUnit)
	if err != nil {
		return nil, fmt.Errorf("некорректная надбавка доставки %q: %w", shippingPerUnit, err)
	}
	return NewCalculator(rate, base, perUnit), nil
}

// TaxRate возвращает настроенную налоговую ставку.
func (c *Calculator) TaxRate() decimal.Decimal {
	return c.taxRate
}

// Calculate вычисляет разбивку итогов для списка позиций.
// shippingOverride — явная стоимость доставки; nil означает расчёт по формуле
// base + Σ(количество) * per_unit.
//
// Округление: half-to-even (банковское), 2 знака. Округляются все четыре
// денежных значения независимо, налог считается от неокруглённого subtotal.
func (c *Calculator) Calculate(items []LineItem, shippingOverride *decimal.Decimal) Breakdown {
	subtotal := decimal.Zero
	var totalQty int64

	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
		totalQty += item.Quantity
	}

	taxAmount := subtotal.Mul(c.taxRate)

	var shipping decimal.Decimal
	if shippingOverride != nil {
		shipping = *shippingOverride
	} else {
		shipping = c.shippingBase.Add(c.shippingPerUnit.Mul(decimal.NewFromInt(totalQty)))
	}

	total := subtotal.Add(taxAmount).Add(shipping)

	return Breakdown{
		Subtotal:  subtotal.RoundBank(2),
		TaxRate:   c.taxRate,
		TaxAmount: taxAmount.RoundBank(2),
		Shipping:  shipping.RoundBank(2),
		Total:     total.RoundBank(2),
	}
}

// SnapshotBreakdown восстанавливает разбивку итогов из сохранённых
// снапшотов заказа: цен позиций, налоговой ставки и итоговой суммы.
// Текущая конфигурация калькулятора не участвует — заказ показывается
// с теми ставками, по которым он был оформлен. Доставка выводится как
// остаток, поэтому компоненты всегда сходятся в сохранённый итог.
func SnapshotBreakdown(items []LineItem, taxRate, total decimal.Decimal) Breakdown {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}

	taxAmount := subtotal.Mul(taxRate).RoundBank(2)
	subtotal = subtotal.RoundBank(2)

	return Breakdown{
		Subtotal:  subtotal,
		TaxRate:   taxRate,
		TaxAmount: taxAmount,
		Shipping:  total.Sub(subtotal).Sub(taxAmount),
		Total:     total,
	}
}

// signaturePayload — каноническое представление разбивки для подписи.
// Позиции сортируются по product_id, денежные значения сериализуются
// строками с фиксированными 2 знаками — encoding/json детерминированно
// кодирует struct, порядок полей фиксирован.
type signaturePayload struct {
	Items     []signatureItem `json:"items"`
	Subtotal  string          `json:"subtotal"`
	TaxRate   string          `json:"tax_rate"`
	TaxAmount string          `json:"tax_amount"`
	Shipping  string          `json:"shipping_cost"`
	Total     string          `json:"total"`
}

type signatureItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// Signature вычисляет SHA-256 подпись канонической разбивки итогов.
// Подпись детерминирована: один и тот же набор позиций и итогов
// всегда даёт одну и ту же hex-строку (64 символа).
func Signature(items []LineItem, b Breakdown) string {
	sigItems := make([]signatureItem, len(items))
	for i, item := range items {
		sigItems[i] = signatureItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		}
	}

	sort.Slice(sigItems, func(i, j int) bool {
		return sigItems[i].ProductID < sigItems[j].ProductID
	})

	payload := signaturePayload{
		Items:     sigItems,
		Subtotal:  b.Subtotal.StringFixed(2),
		TaxRate:   b.TaxRate.String(),
		TaxAmount: b.TaxAmount.StringFixed(2),
		Shipping:  b.Shipping.StringFixed(2),
		Total:     b.Total.StringFixed(2),
	}

	// Marshal для struct не возвращает ошибку — поля сериализуемы
	data, _ := json.Marshal(payload)

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
