package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"example.com/commerce-platform/services/order/internal/domain"
)

// IdempotencyRecord — запись идемпотентности POST /v1/orders.
// Пока ResponseStatus == nil запись считается pending; после финализации
// запись неизменяема (Finalize защищён условием response_status IS NULL).
type IdempotencyRecord struct {
	Key            string    // Клиентский ключ идемпотентности
	ResourcePath   string    // Путь ресурса (например "/v1/orders")
	RequestHash    string    // SHA-256 тела запроса (для аудита, не для гейтинга)
	ResponseStatus *int      // HTTP статус ответа (nil = pending)
	ResponseBody   []byte    // Тело ответа (nil = pending)
	CreatedAt      time.Time // Время создания записи
}

// Finalized возвращает true, если запись финализирована.
func (r *IdempotencyRecord) Finalized() bool {
	return r.ResponseStatus != nil
}

// IdempotencyRepository определяет интерфейс хранения записей идемпотентности.
type IdempotencyRepository interface {
	// Insert вставляет новую pending запись.
	// Возвращает domain.ErrDuplicateIdempotencyRecord, если ключ уже занят.
	Insert(ctx context.Context, record *IdempotencyRecord) error

	// GetByKey возвращает запись по ключу.
	GetByKey(ctx context.Context, key string) (*IdempotencyRecord, error)

	// Finalize переводит pending запись в финализированную ровно один раз.
	// Возвращает domain.ErrIdempotencyAlreadyFinalized при повторной финализации.
	Finalize(ctx context.Context, key string, status int, body []byte) error
}

// IdempotencyModel — GORM модель для таблицы idempotency_records.
type IdempotencyModel struct {
	Key            string    `gorm:"column:idempotency_key;type:varchar(128);primaryKey"`
	ResourcePath   string    `gorm:"column:resource_path;type:varchar(255);not null"`
	RequestHash    string    `gorm:"column:request_hash;type:char(64);not null"`
	ResponseStatus *int      `gorm:"column:response_status"`
	ResponseBody   []byte    `gorm:"column:response_body;type:mediumblob"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName возвращает имя таблицы в БД.
func (IdempotencyModel) TableName() string {
	return "idempotency_records"
}

func (m *IdempotencyModel) toRecord() *IdempotencyRecord {
	return &IdempotencyRecord{
		Key:            m.Key,
		ResourcePath:   m.ResourcePath,
		RequestHash:    m.RequestHash,
		ResponseStatus: m.ResponseStatus,
		ResponseBody:   m.ResponseBody,
		CreatedAt:      m.CreatedAt,
	}
}

// idempotencyRepository — GORM реализация IdempotencyRepository.
type idempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository создаёт новый репозиторий записей идемпотентности.
func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

// Insert вставляет новую pending запись.
func (r *idempotencyRepository) Insert(ctx context.Context, record *IdempotencyRecord) error {
	model := &IdempotencyModel{
		Key:          record.Key,
		ResourcePath: record.ResourcePath,
		RequestHash:  record.RequestHash,
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrDuplicateIdempotencyRecord
		}
		return err
	}

	record.CreatedAt = model.CreatedAt
	return nil
}

// GetByKey возвращает запись по ключу.
func (r *idempotencyRepository) GetByKey(ctx context.Context, key string) (*IdempotencyRecord, error) {
	var model IdempotencyModel

	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrIdempotencyRecordNotFound
		}
		return nil, err
	}

	return model.toRecord(), nil
}

// Finalize переводит pending запись в финализированную.
// Условие response_status IS NULL гарантирует финализацию ровно один раз
// даже при гонке двух завершающих вызовов.
func (r *idempotencyRepository) Finalize(ctx context.Context, key string, status int, body []byte) error {
	result := r.db.WithContext(ctx).
		Model(&IdempotencyModel{}).
		Where("idempotency_key = ? AND response_status IS NULL", key).
		Updates(map[string]interface{}{
			"response_status": status,
			"response_body":   body,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrIdempotencyAlreadyFinalized
	}

	return nil
}
