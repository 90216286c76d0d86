// Package idempotency реализует хранилище ключей идемпотентности POST /v1/orders.
// Делает повторную отправку запроса с тем же ключом безопасной: клиент либо
// получает реплей исходного ответа, либо конфликт, пока первый запрос в работе.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"example.com/commerce-platform/pkg/logger"
	"example.com/commerce-platform/services/order/internal/domain"
	"example.com/commerce-platform/services/order/internal/repository"
)

// Outcome — результат попытки захвата ключа.
type Outcome string

const (
	// OutcomeCreated — ключ свободен, создана новая pending запись.
	OutcomeCreated Outcome = "CREATED"

	// OutcomeReplay — ключ финализирован успешным ответом, его нужно реплеить.
	OutcomeReplay Outcome = "REPLAY"

	// OutcomeConflict — ключ занят: запись pending или финализирована ошибкой.
	OutcomeConflict Outcome = "CONFLICT"
)

// AcquireResult — результат Acquire.
// Status и Body заполнены только для OutcomeReplay.
type AcquireResult struct {
	Outcome Outcome
	Status  int
	Body    []byte
}

// Store — хранилище ключей идемпотентности поверх репозитория.
// Записи живут бессрочно; ретеншен — забота оператора.
type Store struct {
	repo repository.IdempotencyRepository
}

// NewStore создаёт новое хранилище ключей идемпотентности.
func NewStore(repo repository.IdempotencyRepository) *Store {
	return &Store{repo: repo}
}

// HashBody возвращает SHA-256 hex тела запроса.
// Хэш сохраняется для аудита; реплей по нему не гейтится —
// уникальность ключа находится в зоне ответственности клиента.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Acquire пытается захватить ключ идемпотентности.
// Возвращает:
//   - OutcomeCreated — ключ свободен, сага может выполняться;
//   - OutcomeReplay — запись финализирована 2xx, вернуть сохранённый ответ;
//   - OutcomeConflict — запись pending или финализирована ошибкой.
func (s *Store) Acquire(ctx context.Context, key, resourcePath, bodyHash string) (*AcquireResult, error) {
	log := logger.FromContext(ctx)

	record := &repository.IdempotencyRecord{
		Key:          key,
		ResourcePath: resourcePath,
		RequestHash:  bodyHash,
	}

	err := s.repo.Insert(ctx, record)
	if err == nil {
		return &AcquireResult{Outcome: OutcomeCreated}, nil
	}

	if !errors.Is(err, domain.ErrDuplicateIdempotencyRecord) {
		return nil, fmt.Errorf("ошибка вставки записи идемпотентности: %w", err)
	}

	// Ключ занят — читаем существующую запись и решаем: реплей или конфликт
	existing, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записи идемпотентности: %w", err)
	}

	if existing.Finalized() && *existing.ResponseStatus >= 200 && *existing.ResponseStatus < 300 {
		log.Info().
			Str("idempotency_key", key).
			Int("status", *existing.ResponseStatus).
			Msg("Реплей финализированного ответа по ключу идемпотентности")
		return &AcquireResult{
			Outcome: OutcomeReplay,
			Status:  *existing.ResponseStatus,
			Body:    existing.ResponseBody,
		}, nil
	}

	// Pending или финализирована ошибкой — клиент должен взять новый ключ
	log.Warn().
		Str("idempotency_key", key).
		Bool("finalized", existing.Finalized()).
		Msg("Конфликт ключа идемпотентности")
	return &AcquireResult{Outcome: OutcomeConflict}, nil
}

// Finalize финализирует pending запись статусом и телом ответа.
// Повторная финализация — ошибка в логике вызывающего кода:
// логируется, но не фатальна.
func (s *Store) Finalize(ctx context.Context, key string, status int, body []byte) {
	if err := s.repo.Finalize(ctx, key, status, body); err != nil {
		log := logger.FromContext(ctx)
		if errors.Is(err, domain.ErrIdempotencyAlreadyFinalized) {
			log.Error().
				Str("idempotency_key", key).
				Int("status", status).
				Msg("Повторная финализация записи идемпотентности проигнорирована")
			return
		}
		log.Error().Err(err).
			Str("idempotency_key", key).
			Msg("Ошибка финализации записи идемпотентности")
	}
}
