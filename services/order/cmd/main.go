// Package main — точка входа Order Service.
// Order Service принимает заказы через REST API и выполняет сагу создания:
// ценообразование через Catalog, резервирование стока через Inventory,
// списание оплаты через Payment, с компенсацией при отказе любого шага.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/commerce-platform/pkg/config"
	"example.com/commerce-platform/pkg/db"
	"example.com/commerce-platform/pkg/healthcheck"
	"example.com/commerce-platform/pkg/logger"
	"example.com/commerce-platform/pkg/metrics"
	"example.com/commerce-platform/pkg/tracing"
	"example.com/commerce-platform/services/order/internal/client"
	"example.com/commerce-platform/services/order/internal/handler"
	"example.com/commerce-platform/services/order/internal/idempotency"
	"example.com/commerce-platform/services/order/internal/pricing"
	"example.com/commerce-platform/services/order/internal/repository"
	"example.com/commerce-platform/services/order/internal/saga"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Ошибка загрузки конфигурации")
	}

	// Инициализируем логгер
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Pretty: cfg.App.LogPretty,
	})

	logger.Info().
		Str("service", "order-service").
		Str("env", cfg.App.Env).
		Msg("Запуск Order Service")

	// === Observability: Metrics + Tracing ===

	// HTTP сервер для Prometheus метрик
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr(), "order-service")
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// Distributed tracing (Jaeger)
	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "order-service",
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Инициализация зависимостей ===

	// MySQL через GORM
	gormDB, err := db.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		logger.Fatal().Err(err).Msg("Не удалось подключиться к MySQL")
	}
	logger.Info().Str("database", cfg.MySQL.Database).Msg("Подключено к MySQL")

	// Redis — кэш цен каталога
	redisClient := db.ConnectRedis(cfg.Redis)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("Ошибка закрытия Redis")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("Не удалось подключиться к Redis")
	}
	cancel()
	logger.Info().Str("addr", cfg.Redis.Addr()).Msg("Подключено к Redis")

	// Калькулятор итогов заказа
	calc, err := pricing.NewCalculatorFromStrings(
		cfg.Pricing.TaxRate,
		cfg.Pricing.ShippingBase,
		cfg.Pricing.ShippingPerUnit,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Невалидная конфигурация ценообразования")
	}

	// Репозитории
	orderRepo := repository.NewOrderRepository(gormDB)
	idemRepo := repository.NewIdempotencyRepository(gormDB)
	idemStore := idempotency.NewStore(idemRepo)

	// HTTP клиенты внешних сервисов
	catalogClient := client.NewCatalogClient(client.CatalogClientConfig{
		BaseURL:  cfg.Catalog.BaseURL,
		Timeout:  cfg.Catalog.Timeout,
		Redis:    redisClient,
		CacheTTL: cfg.Catalog.PriceCacheTTL,
	})
	inventoryClient := client.NewInventoryClient(client.InventoryClientConfig{
		BaseURL: cfg.Inventory.BaseURL,
		Timeout: cfg.Inventory.Timeout,
	})
	paymentClient := client.NewPaymentClient(client.PaymentClientConfig{
		BaseURL: cfg.Payment.BaseURL,
		Timeout: cfg.Payment.Timeout,
	})

	// Оркестратор саги
	orchestrator := saga.NewOrchestrator(idemStore, catalogClient, inventoryClient, paymentClient, orderRepo, calc)

	// === Настройка роутера ===

	readiness := healthcheck.Composite(
		func(ctx context.Context) error { return healthcheck.CheckMySQL(ctx, gormDB) },
		func(ctx context.Context) error { return healthcheck.CheckRedis(ctx, redisClient) },
	)

	router := handler.NewRouter(handler.RouterConfig{
		Saga:           orchestrator,
		Orders:         orderRepo,
		ReadinessCheck: readiness,
		Debug:          cfg.IsDevelopment(),
	})

	// === HTTP сервер ===

	srv := &http.Server{
		Addr:              cfg.HTTP.OrderAddr(),
		Handler:           router.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.HTTP.OrderAddr()).
			Msg("HTTP сервер Order Service запущен")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	// === Graceful Shutdown ===

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Ошибка при остановке сервера")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			logger.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	logger.Info().Msg("Order Service остановлен")
}
