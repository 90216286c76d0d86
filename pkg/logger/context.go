package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// Приватный тип ключей контекста исключает коллизии с другими пакетами.
type ctxKey string

const (
	// traceIDKey - ключ для хранения trace_id в контексте.
	// Trace ID сквозной для запроса через Order и Inventory сервисы.
	traceIDKey ctxKey = "trace_id"

	// correlationIDKey - ключ для хранения correlation_id в контексте.
	// Correlation ID связывает все операции саги одного заказа.
	correlationIDKey ctxKey = "correlation_id"

	// loggerKey - ключ для хранения логгера в контексте.
	loggerKey ctxKey = "logger"
)

// WithTraceID добавляет trace_id в контекст.
// Trace ID генерируется middleware на входе в сервис, если клиент
// не передал свой заголовком X-Trace-ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext извлекает trace_id из контекста.
// Возвращает пустую строку, если trace_id не установлен.
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithCorrelationID добавляет correlation_id в контекст.
//
// Пример:
//
//	ctx = logger.WithCorrelationID(ctx, "order-789")
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext извлекает correlation_id из контекста.
// Возвращает пустую строку, если correlation_id не установлен.
func CorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

// WithLogger добавляет логгер в контекст.
//
// Пример:
//
//	log := logger.With().Str("service", "order").Logger()
//	ctx = logger.WithLogger(ctx, log)
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext извлекает логгер из контекста и автоматически добавляет
// trace_id и correlation_id, если они присутствуют в контексте.
// Если логгер не был явно добавлен, возвращает глобальный логгер.
// Это основной способ получения логгера в обработчиках и сервисах.
//
// Пример:
//
//	func (s *Service) Reserve(ctx context.Context, orderID string) error {
//	    log := logger.FromContext(ctx)
//	    log.Info().Str("order_id", orderID).Msg("Резервирование товара")
//	    // ...
//	}
func FromContext(ctx context.Context) zerolog.Logger {
	var l zerolog.Logger
	if ctxLogger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		l = ctxLogger
	} else {
		l = log
	}

	if traceID := TraceIDFromContext(ctx); traceID != "" {
		l = l.With().Str("trace_id", traceID).Logger()
	}

	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		l = l.With().Str("correlation_id", correlationID).Logger()
	}

	return l
}

// Ctx возвращает указатель на zerolog.Logger из контекста.
// Альтернативный способ использования, совместимый с zerolog.Ctx().
func Ctx(ctx context.Context) *zerolog.Logger {
	l := FromContext(ctx)
	return &l
}

// NewContextWithIDs добавляет в контекст оба идентификатора, пропуская пустые.
func NewContextWithIDs(ctx context.Context, traceID, correlationID string) context.Context {
	if traceID != "" {
		ctx = WithTraceID(ctx, traceID)
	}
	if correlationID != "" {
		ctx = WithCorrelationID(ctx, correlationID)
	}
	return ctx
}
