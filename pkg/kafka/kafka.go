// Package kafka предоставляет обёртку над kafka-go для публикации складских событий.
// Inventory Service публикует движения стока и предупреждения о низком остатке;
// потребители (аналитика, закупки) подписываются на топики самостоятельно.
package kafka

import (
	"time"
)

// Топики складских событий.
const (
	// TopicStockMovements - топик для движений стока (RESERVE/RELEASE/SHIP).
	TopicStockMovements = "inventory.movements"

	// TopicLowStock - топик для предупреждений о низком остатке на складе.
	TopicLowStock = "inventory.low-stock"
)

// Ключи для headers сообщений Kafka.
const (
	// HeaderTraceID - идентификатор трассировки для distributed tracing.
	HeaderTraceID = "trace_id"

	// HeaderCorrelationID - идентификатор корреляции для связи запросов и ответов.
	HeaderCorrelationID = "correlation_id"

	// HeaderTimestamp - временная метка создания сообщения.
	HeaderTimestamp = "timestamp"
)

// Config содержит настройки для подключения к Kafka.
type Config struct {
	// Brokers - список адресов брокеров Kafka.
	Brokers []string
}

// Message представляет сообщение Kafka с метаданными.
type Message struct {
	// Key - ключ сообщения для партиционирования (обычно product_id).
	Key []byte

	// Value - тело сообщения (payload).
	Value []byte

	// Topic - топик сообщения.
	Topic string

	// Headers - заголовки сообщения (trace_id, correlation_id и т.д.).
	Headers map[string]string

	// Time - временная метка сообщения.
	Time time.Time
}
