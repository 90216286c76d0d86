// Package client содержит HTTP клиенты внешних сервисов:
// Catalog (цены и карточки товаров), Inventory (резервирование стока)
// и Payment (списание оплаты).
//
// Все клиенты:
//   - несут собственный per-hop timeout (Catalog 5s, Inventory 8s, Payment 10s);
//   - защищены Circuit Breaker'ом;
//   - пробрасывают trace_id/correlation_id в заголовках;
//   - не ретраят сами — ретраи принадлежат клиенту платформы с тем же ключом идемпотентности.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"example.com/commerce-platform/pkg/circuitbreaker"
	"example.com/commerce-platform/pkg/logger"
	"example.com/commerce-platform/pkg/middleware"
)

// HeaderIdempotencyKey — заголовок ключа идемпотентности исходящих запросов.
const HeaderIdempotencyKey = "Idempotency-Key"

// httpError — не-2xx ответ внешнего сервиса.
type httpError struct {
	Service string
	Status  int
	Body    []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%s вернул статус %d: %s", e.Service, e.Status, string(e.Body))
}

// doJSON выполняет HTTP запрос через Circuit Breaker и декодирует JSON ответ в out.
// body == nil означает запрос без тела. Не-2xx ответ превращается в *httpError.
func doJSON(ctx context.Context, hc *http.Client, cb *circuitbreaker.Breaker, service, method, url string, headers map[string]string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ошибка сериализации запроса к %s: %w", service, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса к %s: %w", service, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Пробрасываем трассировку в нижестоящий сервис
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set(middleware.HeaderTraceID, traceID)
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set(middleware.HeaderCorrelationID, correlationID)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := circuitbreaker.Do(cb, func() (*http.Response, error) {
		return hc.Do(req)
	})
	if err != nil {
		return fmt.Errorf("ошибка вызова %s: %w", service, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа %s: %w", service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &httpError{Service: service, Status: resp.StatusCode, Body: data}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("ошибка декодирования ответа %s: %w", service, err)
		}
	}

	return nil
}
