package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"example.com/commerce-platform/pkg/logger"
)

// AccessLog — middleware для структурированного логирования HTTP запросов.
// Логирует метод, путь, статус и длительность обработки.
// Ошибки сервера (5xx) логируются уровнем error, клиентские (4xx) — warn.
func AccessLog(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log := logger.FromContext(c.Request.Context())
		status := c.Writer.Status()

		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Str("service", service).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("HTTP запрос обработан")
	}
}
