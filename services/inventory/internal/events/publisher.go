// Package events публикует складские события в Kafka.
// События информационные: ошибка публикации логируется, но не откатывает
// транзакцию резервирования.
package events

import (
	"context"
	"encoding/json"
	"time"

	"example.com/commerce-platform/pkg/kafka"
	"example.com/commerce-platform/pkg/logger"
	"example.com/commerce-platform/services/inventory/internal/domain"
)

// Publisher — публикатор складских событий.
type Publisher interface {
	// PublishMovement публикует движение стока в топик inventory.movements.
	PublishMovement(ctx context.Context, movement *domain.Movement)

	// PublishLowStock публикует предупреждение о низком остатке
	// в топик inventory.low-stock.
	PublishLowStock(ctx context.Context, productID, warehouse string, available, threshold int64)
}

// MovementEvent — событие движения стока.
type MovementEvent struct {
	Type          string    `json:"type"`
	ProductID     string    `json:"productId"`
	Warehouse     string    `json:"warehouse"`
	Qty           int64     `json:"qty"`
	OrderID       string    `json:"orderId,omitempty"`
	ReservationID string    `json:"reservationId,omitempty"`
	Note          string    `json:"note,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// LowStockEvent — предупреждение о низком остатке на складе.
type LowStockEvent struct {
	ProductID  string    `json:"productId"`
	Warehouse  string    `json:"warehouse"`
	Available  int64     `json:"available"`
	Threshold  int64     `json:"threshold"`
	OccurredAt time.Time `json:"occurredAt"`
}

// kafkaPublisher — реализация Publisher поверх Kafka Producer.
type kafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher создаёт публикатор складских событий.
func NewKafkaPublisher(producer *kafka.Producer) Publisher {
	return &kafkaPublisher{producer: producer}
}

// PublishMovement публикует движение стока.
// Ключ сообщения — product_id: движения одного товара попадают
// в одну партицию и сохраняют порядок.
func (p *kafkaPublisher) PublishMovement(ctx context.Context, movement *domain.Movement) {
	event := MovementEvent{
		Type:          string(movement.Type),
		ProductID:     movement.ProductID,
		Warehouse:     movement.Warehouse,
		Qty:           movement.Qty,
		OrderID:       movement.OrderID,
		ReservationID: movement.ReservationID,
		Note:          movement.Note,
		OccurredAt:    movement.CreatedAt,
	}

	p.send(ctx, kafka.TopicStockMovements, movement.ProductID, event)
}

// PublishLowStock публикует предупреждение о низком остатке.
func (p *kafkaPublisher) PublishLowStock(ctx context.Context, productID, warehouse string, available, threshold int64) {
	event := LowStockEvent{
		ProductID:  productID,
		Warehouse:  warehouse,
		Available:  available,
		Threshold:  threshold,
		OccurredAt: time.Now(),
	}

	p.send(ctx, kafka.TopicLowStock, productID, event)
}

func (p *kafkaPublisher) send(ctx context.Context, topic, key string, event any) {
	log := logger.FromContext(ctx)

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Ошибка сериализации складского события")
		return
	}

	if err := p.producer.Send(ctx, topic, []byte(key), payload); err != nil {
		log.Error().Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Ошибка публикации складского события")
	}
}

// NoopPublisher — заглушка для окружений без Kafka (KAFKA_ENABLED=false) и тестов.
type NoopPublisher struct{}

// NewNoopPublisher создаёт публикатор-заглушку.
func NewNoopPublisher() Publisher {
	return NoopPublisher{}
}

// PublishMovement ничего не делает.
func (NoopPublisher) PublishMovement(context.Context, *domain.Movement) {}

// PublishLowStock ничего не делает.
func (NoopPublisher) PublishLowStock(context.Context, string, string, int64, int64) {}
