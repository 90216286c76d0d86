package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"example.com/commerce-platform/pkg/circuitbreaker"
	"example.com/commerce-platform/pkg/logger"
)

// ProductDetails — карточка товара из каталога.
type ProductDetails struct {
	SKU  string `json:"sku"`
	Name string `json:"name"`
}

// CatalogClient — клиент Catalog Service (read-only).
// Цены кэшируются в Redis с коротким TTL: каталог читается на каждый заказ,
// а цены меняются редко. redis == nil отключает кэш.
type CatalogClient struct {
	baseURL  string
	http     *http.Client
	breaker  *circuitbreaker.Breaker
	redis    *redis.Client
	cacheTTL time.Duration
}

// CatalogClientConfig — конфигурация клиента каталога.
type CatalogClientConfig struct {
	BaseURL  string
	Timeout  time.Duration // Per-hop timeout (по умолчанию 5s)
	Redis    *redis.Client // Опциональный кэш цен
	CacheTTL time.Duration // TTL кэша цен (по умолчанию 30s)
}

// NewCatalogClient создаёт новый клиент Catalog Service.
func NewCatalogClient(cfg CatalogClientConfig) *CatalogClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	return &CatalogClient{
		baseURL:  cfg.BaseURL,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  circuitbreaker.New("catalog-service"),
		redis:    cfg.Redis,
		cacheTTL: cfg.CacheTTL,
	}
}

// priceCacheKey возвращает ключ кэша цены товара.
func priceCacheKey(productID string) string {
	return "catalog:price:" + productID
}

// Prices возвращает текущие цены товаров одним вызовом каталога.
// Сначала пробуем кэш; в каталог идём только за отсутствующими ценами.
// Отсутствие цены для любого из запрошенных ID — ошибка.
func (c *CatalogClient) Prices(ctx context.Context, productIDs []string) (map[string]decimal.Decimal, error) {
	log := logger.FromContext(ctx)

	prices := make(map[string]decimal.Decimal, len(productIDs))
	missing := make([]string, 0, len(productIDs))

	// Кэш цен (best-effort: ошибки Redis не фатальны)
	for _, id := range productIDs {
		if c.redis == nil {
			missing = append(missing, id)
			continue
		}
		cached, err := c.redis.Get(ctx, priceCacheKey(id)).Result()
		if err != nil {
			missing = append(missing, id)
			continue
		}
		price, err := decimal.NewFromString(cached)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		prices[id] = price
	}

	if len(missing) == 0 {
		log.Debug().Int("count", len(prices)).Msg("Все цены получены из кэша")
		return prices, nil
	}

	// GET /v1/products/prices?productIds=1&productIds=2
	query := url.Values{}
	for _, id := range missing {
		query.Add("productIds", id)
	}
	reqURL := fmt.Sprintf("%s/v1/products/prices?%s", c.baseURL, query.Encode())

	var response map[string]decimal.Decimal
	if err := doJSON(ctx, c.http, c.breaker, "Catalog Service", http.MethodGet, reqURL, nil, nil, &response); err != nil {
		return nil, err
	}

	for _, id := range missing {
		price, ok := response[id]
		if !ok {
			return nil, fmt.Errorf("каталог не вернул цену для товара %s", id)
		}
		prices[id] = price

		if c.redis != nil {
			if err := c.redis.Set(ctx, priceCacheKey(id), price.String(), c.cacheTTL).Err(); err != nil {
				log.Debug().Err(err).Str("product_id", id).Msg("Не удалось закэшировать цену")
			}
		}
	}

	return prices, nil
}

// Details возвращает карточку товара (SKU, название).
// Пустые SKU или название — ошибка: снапшоты позиций заказа обязательны.
func (c *CatalogClient) Details(ctx context.Context, productID string) (*ProductDetails, error) {
	reqURL := fmt.Sprintf("%s/v1/products/%s", c.baseURL, url.PathEscape(productID))

	var details ProductDetails
	if err := doJSON(ctx, c.http, c.breaker, "Catalog Service", http.MethodGet, reqURL, nil, nil, &details); err != nil {
		return nil, err
	}

	if details.SKU == "" || details.Name == "" {
		return nil, fmt.Errorf("каталог вернул неполную карточку товара %s", productID)
	}

	return &details, nil
}
