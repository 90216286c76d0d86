// Package metrics предоставляет Prometheus метрики для всех сервисов.
// Содержит базовые метрики (requests, latency) и доменные метрики
// саги и резервирования, а также HTTP server для /metrics endpoint.
//
// Типы метрик в Prometheus:
//   - Counter: только растёт (запросы, ошибки) — "сколько всего произошло"
//   - Histogram: распределение значений (latency) — "как быстро работает"
//
// Использование:
//
//	server := metrics.NewServer(":9090", "order-service")
//	go server.Start()
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/commerce-platform/pkg/logger"
)

// =============================================================================
// Метрики — определяем что будем собирать
// =============================================================================

var (
	// RequestsTotal — счётчик всех HTTP запросов.
	// PromQL пример: rate(requests_total{service="order"}[5m]) — RPS за 5 минут
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Общее количество запросов по сервису, методу и статусу",
		},
		[]string{"service", "method", "status"},
	)

	// RequestDuration — гистограмма latency запросов.
	// PromQL пример: histogram_quantile(0.95, rate(request_duration_seconds_bucket[5m])) — p95 latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "request_duration_seconds",
			Help: "Время выполнения запроса в секундах",
			// Buckets оптимизированы для типичных API: от 5ms до 10s
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method"},
	)

	// SagaStepsTotal — счётчик шагов саги создания заказа.
	// step: pricing|persist|reserve|charge|finalize, status: success|failure
	SagaStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_steps_total",
			Help: "Количество выполненных шагов саги по шагу и результату",
		},
		[]string{"step", "status"},
	)

	// SagaCompensationsTotal — счётчик компенсаций саги.
	// reason: pricing_failed|reservation_failed|payment_failed|internal
	SagaCompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_compensations_total",
			Help: "Количество компенсаций саги по причине",
		},
		[]string{"reason"},
	)

	// ReservationsTotal — счётчик операций резервирования.
	// result: reserved|partial|duplicate|idempotent_replay
	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_reservations_total",
			Help: "Количество операций резервирования по результату",
		},
		[]string{"result"},
	)

	// LowStockAlertsTotal — счётчик предупреждений о низком остатке.
	LowStockAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_low_stock_alerts_total",
			Help: "Количество предупреждений о низком остатке на складе",
		},
	)

	// ExpiredReservationsTotal — счётчик резерваций, отменённых реапером по TTL.
	ExpiredReservationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_expired_reservations_total",
			Help: "Количество резерваций, освобождённых по истечении TTL",
		},
	)
)

// =============================================================================
// Gin middleware
// =============================================================================

// GinMetricsMiddleware собирает requests_total и request_duration_seconds
// для каждого HTTP запроса.
func GinMetricsMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// FullPath возвращает шаблон маршрута (/v1/orders/:id), а не конкретный URL —
		// иначе кардинальность label взорвётся
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		method := c.Request.Method + " " + path
		RequestsTotal.WithLabelValues(service, method, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
	}
}

// =============================================================================
// HTTP Server для /metrics endpoint
// =============================================================================

// ReadinessChecker — функция проверки готовности сервиса.
// Возвращает nil если сервис готов принимать трафик, иначе — ошибку.
type ReadinessChecker func(ctx context.Context) error

// Server — HTTP сервер для экспорта метрик Prometheus.
type Server struct {
	httpServer     *http.Server
	service        string
	readinessCheck ReadinessChecker // опциональная проверка готовности для /readyz
}

// Option — функциональная опция для настройки Server.
type Option func(*Server)

// WithReadinessCheck добавляет проверку готовности для /readyz endpoint.
// Если checker возвращает ошибку — /readyz вернёт 503 Service Unavailable.
func WithReadinessCheck(checker ReadinessChecker) Option {
	return func(s *Server) {
		s.readinessCheck = checker
	}
}

// NewServer создаёт новый metrics server.
// addr — адрес для прослушивания (например ":9090")
// service — имя сервиса для логирования
func NewServer(addr, service string, opts ...Option) *Server {
	s := &Server{
		service: service,
	}

	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()

	// /metrics — endpoint для Prometheus (он сам приходит сюда и забирает метрики)
	mux.Handle("/metrics", promhttp.Handler())

	// /healthz — liveness probe для Kubernetes
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	})

	// /readyz — readiness probe для Kubernetes
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// Если ReadinessChecker не установлен — считаем сервис готовым
		if s.readinessCheck == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready"}`))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.readinessCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			// Не выводим детали ошибки наружу (безопасность)
			_, _ = w.Write([]byte(`{"status":"not_ready"}`))
			logger.Warn().Err(err).Str("service", s.service).Msg("Readiness check failed")
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start запускает metrics server. Блокирующий вызов.
func (s *Server) Start() error {
	logger.Info().
		Str("service", s.service).
		Str("addr", s.httpServer.Addr).
		Msg("Metrics server запущен")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown останавливает metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
