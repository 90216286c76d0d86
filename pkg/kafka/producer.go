package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/commerce-platform/pkg/logger"
)

// Producer отправляет сообщения в Kafka с поддержкой headers и трассировки.
type Producer struct {
	writer *kafka.Writer
	cfg    Config
}

// NewProducer создаёт новый Producer для отправки складских событий.
func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond, // События не должны задерживать транзакции резервирования
		RequiredAcks: kafka.RequireOne,      // Ждём подтверждения от лидера
		Async:        false,                 // По умолчанию sync режим
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Msg("Создан Kafka Producer")

	return &Producer{
		writer: writer,
		cfg:    cfg,
	}, nil
}

// Send отправляет сообщение в указанный топик.
// Автоматически добавляет headers: trace_id, correlation_id, timestamp.
// Headers извлекаются из context, если они там есть.
func (p *Producer) Send(ctx context.Context, topic string, key []byte, value []byte) error {
	return p.SendWithHeaders(ctx, topic, key, value, nil)
}

// SendWithHeaders отправляет сообщение с дополнительными headers.
// Стандартные headers (trace_id, correlation_id, timestamp) добавляются автоматически.
func (p *Producer) SendWithHeaders(ctx context.Context, topic string, key []byte, value []byte, extraHeaders map[string]string) error {
	headers := p.buildHeaders(ctx, extraHeaders)

	msg := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error().
			Err(err).
			Str("topic", topic).
			Str("key", string(key)).
			Str("trace_id", logger.TraceIDFromContext(ctx)).
			Msg("Ошибка отправки сообщения в Kafka")
		return fmt.Errorf("ошибка отправки в Kafka: %w", err)
	}

	logger.Debug().
		Str("topic", topic).
		Str("key", string(key)).
		Str("trace_id", logger.TraceIDFromContext(ctx)).
		Msg("Сообщение отправлено в Kafka")

	return nil
}

// buildHeaders собирает headers сообщения из context и дополнительных значений.
func (p *Producer) buildHeaders(ctx context.Context, extra map[string]string) []kafka.Header {
	headers := make([]kafka.Header, 0, len(extra)+3)

	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		headers = append(headers, kafka.Header{Key: HeaderTraceID, Value: []byte(traceID)})
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(correlationID)})
	}
	headers = append(headers, kafka.Header{
		Key:   HeaderTimestamp,
		Value: []byte(strconv.FormatInt(time.Now().UnixMilli(), 10)),
	})

	for k, v := range extra {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return headers
}

// Close закрывает writer и освобождает ресурсы.
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
