// Package circuitbreaker предоставляет Circuit Breaker для защиты от каскадных сбоев.
// Используется в HTTP клиентах внешних сервисов (Catalog, Inventory, Payment)
// для быстрого отказа при недоступности сервиса.
//
// Состояния Circuit Breaker:
//   - Closed: нормальная работа, запросы проходят
//   - Open: сервис недоступен, запросы отклоняются мгновенно (без ожидания timeout)
//   - Half-Open: пробный период, пропускаем часть запросов для проверки восстановления
//
// Использование:
//
//	cb := circuitbreaker.New("payment-service")
//	resp, err := circuitbreaker.Do(ctx, cb, func() (*http.Response, error) {
//	    return httpClient.Do(req)
//	})
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"example.com/commerce-platform/pkg/logger"
)

// ErrOpen возвращается, когда breaker открыт и запрос отклонён без выполнения.
var ErrOpen = errors.New("circuit breaker открыт, запрос отклонён")

// Settings — настройки Circuit Breaker.
type Settings struct {
	MaxRequests  uint32        // Макс. запросов в Half-Open состоянии (по умолчанию 1)
	Interval     time.Duration // Интервал сброса счётчика в Closed (по умолчанию 60s)
	Timeout      time.Duration // Время в Open до перехода в Half-Open (по умолчанию 30s)
	FailureRatio float64       // Доля ошибок для перехода в Open (по умолчанию 0.5)
	MinRequests  uint32        // Мин. запросов для расчёта ratio (по умолчанию 5)
}

// DefaultSettings возвращает настройки по умолчанию.
// Оптимизированы для микросервисов с быстрым восстановлением.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  1,                // В Half-Open пропускаем 1 запрос
		Interval:     60 * time.Second, // Сбрасываем счётчик каждые 60 секунд
		Timeout:      30 * time.Second, // Через 30 секунд пробуем восстановить связь
		FailureRatio: 0.5,              // Открываем при 50% ошибок
		MinRequests:  5,                // Минимум 5 запросов для принятия решения
	}
}

// Breaker — обёртка над gobreaker с логированием смены состояний.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// New создаёт новый Circuit Breaker с настройками по умолчанию.
func New(name string) *Breaker {
	return NewWithSettings(name, DefaultSettings())
}

// NewWithSettings создаёт Circuit Breaker с пользовательскими настройками.
func NewWithSettings(name string, s Settings) *Breaker {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,

		// ReadyToTrip определяет когда открыть breaker.
		// Открываем если доля ошибок >= FailureRatio и было >= MinRequests запросов.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},

		// OnStateChange логирует смену состояния.
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit Breaker сменил состояние")
		},
	})

	return &Breaker{cb: cb, name: name}
}

// Name возвращает имя breaker'а.
func (b *Breaker) Name() string {
	return b.name
}

// Execute выполняет функцию через Circuit Breaker.
// Если breaker открыт — возвращает ErrOpen без выполнения fn.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return result, err
}

// Do выполняет типизированную функцию через Circuit Breaker.
// Generic-обёртка над Execute, чтобы вызывающий код не кастовал any.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	result, err := b.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
