// Package logger предоставляет структурированное логирование на базе zerolog
// для сервисов платформы (Order, Inventory). JSON формат для production,
// pretty-print для разработки. Все сообщения логов пишутся на русском языке.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// log - глобальный экземпляр логгера.
// Инициализируется при вызове Init() или автоматически при импорте пакета.
var log zerolog.Logger

// Config содержит настройки для инициализации логгера.
type Config struct {
	// Level задает минимальный уровень логирования:
	// "debug", "info", "warn", "error". По умолчанию: "info".
	Level string

	// Pretty включает форматированный вывод для разработки.
	// При Pretty=false логи выводятся в JSON формате для production.
	Pretty bool

	// Output задает writer для вывода логов.
	// По умолчанию: os.Stdout.
	Output io.Writer
}

// init настраивает логгер из переменных окружения LOG_LEVEL и LOG_PRETTY,
// чтобы логирование работало до чтения конфигурации сервиса.
func init() {
	pretty := strings.ToLower(os.Getenv("LOG_PRETTY")) == "true"

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	Init(Config{
		Level:  level,
		Pretty: pretty,
	})
}

// Init инициализирует глобальный логгер с заданной конфигурацией.
// Вызывается в main каждого сервиса после чтения конфигурации.
func Init(cfg Config) {
	var output io.Writer = os.Stdout

	if cfg.Output != nil {
		output = cfg.Output
	}

	// ConsoleWriter форматирует логи в читаемый вид с цветами.
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	level := parseLevel(cfg.Level)

	// Каждая запись несет timestamp и caller (файл:строка).
	log = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
}

// parseLevel преобразует строковое представление уровня в zerolog.Level.
// При неизвестном уровне возвращает InfoLevel.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug создает событие лога уровня debug.
// Пример: logger.Debug().Str("product_id", "p1").Msg("Запрос цены из кэша")
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info создает событие лога уровня info.
// Пример: logger.Info().Str("order_id", "456").Msg("Заказ успешно создан")
func Info() *zerolog.Event {
	return log.Info()
}

// Warn создает событие лога уровня warn.
// Пример: logger.Warn().Int("retry", 3).Msg("Повторная попытка подключения")
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error создает событие лога уровня error.
// Пример: logger.Error().Err(err).Msg("Ошибка при резервировании товара")
func Error() *zerolog.Event {
	return log.Error()
}

// Fatal создает событие лога уровня fatal и завершает приложение.
// ВНИМАНИЕ: после вызова Msg() приложение завершится с кодом 1.
func Fatal() *zerolog.Event {
	return log.Fatal()
}

// Panic создает событие лога уровня panic и вызывает panic.
// ВНИМАНИЕ: после вызова Msg() будет вызван panic.
func Panic() *zerolog.Event {
	return log.Panic()
}

// With создает новый логгер с дополнительными полями.
// Пример:
//
//	serviceLog := logger.With().Str("service", "inventory").Logger()
//	serviceLog.Info().Msg("Сервис запущен")
func With() zerolog.Context {
	return log.With()
}

// Logger возвращает глобальный экземпляр zerolog.Logger.
func Logger() zerolog.Logger {
	return log
}

// SetGlobalLogger устанавливает глобальный логгер.
// Используется в тестах для перехвата вывода.
func SetGlobalLogger(l zerolog.Logger) {
	log = l
}
