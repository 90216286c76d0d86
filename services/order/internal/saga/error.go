package saga

// Стабильные коды ошибок саги. Код попадает в поле error ответа
// и не меняется между версиями — клиенты матчатся по нему.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodePricingFailed       = "PRICING_FAILED"
	CodeOrderCreationFailed = "ORDER_CREATION_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error — ошибка саги со стабильным кодом и HTTP статусом.
// OrderID заполняется, если заказ успел создаться до провала:
// клиент видит, какой заказ был отменён компенсацией.
type Error struct {
	Code       string
	HTTPStatus int
	Message    string
	OrderID    string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorEnvelope — JSON представление ошибки для ответа клиенту.
type ErrorEnvelope struct {
	ErrorCode string `json:"error"`
	Message   string `json:"message"`
	OrderID   string `json:"orderId,omitempty"`
}

// Envelope возвращает JSON представление ошибки.
func (e *Error) Envelope() ErrorEnvelope {
	return ErrorEnvelope{
		ErrorCode: e.Code,
		Message:   e.Message,
		OrderID:   e.OrderID,
	}
}
