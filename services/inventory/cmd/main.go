// Package main — точка входа Inventory Service.
// Inventory Service ведёт остатки по складам, выдаёт временные резервации
// под заказы и публикует складские события в Kafka.
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
	"example.com/commerce-platform/pkg/kafka"
	"example.com/commerce-platform/pkg/logger"
	"example.com/commerce-platform/pkg/metrics"
	"example.com/commerce-platform/pkg/tracing"
	"example.com/commerce-platform/services/inventory/internal/events"
	"example.com/commerce-platform/services/inventory/internal/handler"
	"example.com/commerce-platform/services/inventory/internal/repository"
	"example.com/commerce-platform/services/inventory/internal/service"
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
		Str("service", "inventory-service").
		Str("env", cfg.App.Env).
		Msg("Запуск Inventory Service")

	// === Observability: Metrics + Tracing ===

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr(), "inventory-service")
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "inventory-service",
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

	// Kafka — публикация складских событий (опционально)
	publisher := events.NewNoopPublisher()
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			logger.Fatal().Err(err).Msg("Не удалось создать Kafka Producer")
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
			}
		}()
		publisher = events.NewKafkaPublisher(producer)
	} else {
		logger.Info().Msg("Kafka отключена, складские события не публикуются")
	}

	// Репозиторий и сервис
	repo := repository.NewInventoryRepository(gormDB)
	svc := service.NewInventoryService(repo, publisher, cfg.Inventory.ReservationTTL, cfg.Inventory.LowStockThreshold)

	// === Настройка роутера ===

	readiness := healthcheck.Composite(
		func(ctx context.Context) error { return healthcheck.CheckMySQL(ctx, gormDB) },
	)

	router := handler.NewRouter(handler.RouterConfig{
		Service:        svc,
		ReadinessCheck: readiness,
		Debug:          cfg.IsDevelopment(),
	})

	// === HTTP сервер ===

	srv := &http.Server{
		Addr:              cfg.HTTP.InventoryAddr(),
		Handler:           router.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.HTTP.InventoryAddr()).
			Dur("reservation_ttl", cfg.Inventory.ReservationTTL).
			Int64("low_stock_threshold", cfg.Inventory.LowStockThreshold).
			Msg("HTTP сервер Inventory Service запущен")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	// === Graceful Shutdown ===

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

	logger.Info().Msg("Inventory Service остановлен")
}
