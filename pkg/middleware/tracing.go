// Package middleware содержит HTTP middleware для сервисов платформы.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/commerce-platform/pkg/logger"
)

// HTTP заголовки для трассировки.
const (
	HeaderTraceID       = "X-Trace-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID" // Алиас для Trace ID
)

// Tracing — middleware для добавления trace_id и correlation_id.
// Генерирует новые ID если они отсутствуют в запросе.
// ID передаются в context для дальнейшего использования в логах и исходящих HTTP вызовах.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Извлекаем или генерируем trace_id
		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = c.GetHeader(HeaderRequestID)
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// Извлекаем или генерируем correlation_id
		correlationID := c.GetHeader(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		// Добавляем ID в контекст запроса (используем pkg/logger для единообразия)
		ctx := logger.NewContextWithIDs(c.Request.Context(), traceID, correlationID)
		c.Request = c.Request.WithContext(ctx)

		// Устанавливаем заголовки в ответ для клиента
		c.Header(HeaderTraceID, traceID)
		c.Header(HeaderCorrelationID, correlationID)

		// Сохраняем в Gin context для удобства
		c.Set("trace_id", traceID)
		c.Set("correlation_id", correlationID)

		c.Next()
	}
}
