package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/commerce-platform/pkg/metrics"
	"example.com/commerce-platform/pkg/middleware"
	"example.com/commerce-platform/services/order/internal/repository"
	"example.com/commerce-platform/services/order/internal/saga"
)

// ReadinessChecker — функция проверки готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// Router — конфигурация роутера Order Service.
type Router struct {
	engine         *gin.Engine
	readinessCheck ReadinessChecker
}

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	Saga           saga.Orchestrator
	Orders         repository.OrderRepository
	ReadinessCheck ReadinessChecker // опциональная проверка готовности для /readyz
	Debug          bool             // Режим отладки Gin
}

// NewRouter создаёт и настраивает HTTP роутер Order Service.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// OpenTelemetry tracing — создаёт spans для Jaeger
	engine.Use(otelgin.Middleware("order-service"))

	// Trace/Correlation ID в контекст и логгер
	engine.Use(middleware.Tracing())

	// Prometheus метрики — requests_total, request_duration_seconds
	engine.Use(metrics.GinMetricsMiddleware("order-service"))

	// Access log
	engine.Use(middleware.AccessLog("order-service"))

	r := &Router{
		engine:         engine,
		readinessCheck: cfg.ReadinessCheck,
	}

	// Health endpoints
	engine.GET("/healthz", r.livenessCheck)
	engine.GET("/readyz", r.readinessCheckHandler)

	// === Order routes ===
	orderHandler := NewOrderHandler(cfg.Saga, cfg.Orders)
	orders := engine.Group("/v1/orders")
	{
		orders.POST("", orderHandler.CreateOrder)
		orders.GET("", orderHandler.ListOrders)
		orders.GET("/:id", orderHandler.GetOrder)
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
// Возвращает 200 OK если все зависимости сервиса доступны.
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
