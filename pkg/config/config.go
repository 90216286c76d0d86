// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию платформы.
type Config struct {
	App       AppConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	HTTP      HTTPConfig
	Catalog   CatalogConfig
	Inventory InventoryConfig
	Payment   PaymentConfig
	Pricing   PricingConfig
	Jaeger    JaegerConfig
	Metrics   MetricsConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"commerce-platform"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// MySQLConfig содержит настройки подключения к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"commerce"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN возвращает строку подключения к MySQL.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
// Redis используется Order Service как кэш цен каталога.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки подключения к Kafka.
// Inventory Service публикует в Kafka складские события (движения, low stock).
type KafkaConfig struct {
	Enabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

// HTTPConfig содержит порты HTTP серверов сервисов.
type HTTPConfig struct {
	OrderPort     int `env:"ORDER_HTTP_PORT" envDefault:"8080"`
	InventoryPort int `env:"INVENTORY_HTTP_PORT" envDefault:"8081"`
}

// OrderAddr возвращает адрес HTTP сервера Order Service.
func (c HTTPConfig) OrderAddr() string {
	return fmt.Sprintf(":%d", c.OrderPort)
}

// InventoryAddr возвращает адрес HTTP сервера Inventory Service.
func (c HTTPConfig) InventoryAddr() string {
	return fmt.Sprintf(":%d", c.InventoryPort)
}

// CatalogConfig содержит настройки клиента Catalog Service.
type CatalogConfig struct {
	BaseURL       string        `env:"CATALOG_BASE_URL" envDefault:"http://localhost:8082"`
	Timeout       time.Duration `env:"CATALOG_TIMEOUT" envDefault:"5s"`
	PriceCacheTTL time.Duration `env:"CATALOG_PRICE_CACHE_TTL" envDefault:"30s"`
}

// InventoryConfig содержит настройки Inventory Service:
// адрес для клиента оркестратора и параметры движка резервирования.
type InventoryConfig struct {
	BaseURL           string        `env:"INVENTORY_BASE_URL" envDefault:"http://localhost:8081"`
	Timeout           time.Duration `env:"INVENTORY_TIMEOUT" envDefault:"8s"`
	ReservationTTL    time.Duration `env:"RESERVATION_TTL" envDefault:"15m"`
	LowStockThreshold int64         `env:"LOW_STOCK_THRESHOLD" envDefault:"10"`
}

// PaymentConfig содержит настройки клиента Payment Service.
type PaymentConfig struct {
	BaseURL string        `env:"PAYMENT_BASE_URL" envDefault:"http://localhost:8083"`
	Timeout time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10s"`
}

// PricingConfig содержит параметры расчёта итогов заказа.
// Денежные значения задаются строками и парсятся в decimal при создании калькулятора.
type PricingConfig struct {
	TaxRate         string `env:"PRICING_TAX_RATE" envDefault:"0.05"`
	ShippingBase    string `env:"PRICING_SHIPPING_BASE" envDefault:"10.00"`
	ShippingPerUnit string `env:"PRICING_SHIPPING_PER_UNIT" envDefault:"2.00"`
}

// JaegerConfig содержит настройки трассировки Jaeger.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"true"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"` // OTLP gRPC порт
}

// OTLPEndpoint возвращает OTLP gRPC endpoint для Jaeger.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig содержит настройки Prometheus метрик.
// В K8s все сервисы могут использовать один порт (разные pods).
// Локально — каждый сервис переопределяет METRICS_PORT.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"` // Включить metrics endpoint
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`    // Порт для /metrics
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файл не найден)
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// IsDevelopment возвращает true, если приложение запущено в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true, если приложение запущено в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
