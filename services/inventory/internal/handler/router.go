package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/commerce-platform/pkg/metrics"
	"example.com/commerce-platform/pkg/middleware"
	"example.com/commerce-platform/services/inventory/internal/service"
)

// ReadinessChecker — функция проверки готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// Router — конфигурация роутера Inventory Service.
type Router struct {
	engine         *gin.Engine
	readinessCheck ReadinessChecker
}

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	Service        service.InventoryService
	ReadinessCheck ReadinessChecker // опциональная проверка готовности для /readyz
	Debug          bool             // Режим отладки Gin
}

// NewRouter создаёт и настраивает HTTP роутер Inventory Service.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// OpenTelemetry tracing — создаёт spans для Jaeger
	engine.Use(otelgin.Middleware("inventory-service"))

	// Trace/Correlation ID в контекст и логгер
	engine.Use(middleware.Tracing())

	// Prometheus метрики
	engine.Use(metrics.GinMetricsMiddleware("inventory-service"))

	// Access log
	engine.Use(middleware.AccessLog("inventory-service"))

	r := &Router{
		engine:         engine,
		readinessCheck: cfg.ReadinessCheck,
	}

	// Health endpoints
	engine.GET("/healthz", r.livenessCheck)
	engine.GET("/readyz", r.readinessCheckHandler)

	// === Inventory routes ===
	h := NewInventoryHandler(cfg.Service)
	inventory := engine.Group("/v1/inventory")
	{
		inventory.POST("/reserve", h.Reserve)
		inventory.POST("/reserve/confirm", h.Confirm)
		inventory.POST("/release", h.Release)
		inventory.POST("/ship", h.Ship)
		inventory.POST("/reaper/expired", h.ReapExpired)
		inventory.GET("/:productId", h.GetProduct)
		inventory.GET("/:productId/movements", h.Movements)
	}

	return r
}

// Engine возвращает Gin engine для запуска сервера.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// livenessCheck — liveness probe для Kubernetes.
func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheckHandler — readiness probe для Kubernetes.
func (r *Router) readinessCheckHandler(c *gin.Context) {
	if r.readinessCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := r.readinessCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
