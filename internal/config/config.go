// Package config предоставляет структуры и функции для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Поддерживаемые бэкенды key-value хранилища.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	JWTToken        `yaml:"jwttoken"`
	Quota           `yaml:"quota"`
	RateLimit       `yaml:"rate_limit"`
	Identity        `yaml:"identity"`
	Internal        `yaml:"internal"`
	RabbitMQ        `yaml:"rabbitmq"`
}

// Storage выбирает бэкенд хранилища счётчиков и записей.
type Storage struct {
	Backend                 string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory"`
	StorageConnectionString string `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	// PurgeInterval период удаления истёкших записей, только для postgres.
	PurgeInterval time.Duration `yaml:"purge_interval" env-default:"10m"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с токенами сессии
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET" env-required:"true"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
	// AcceptLegacy разрешает старые base64-токены. Выключить, когда они закончатся.
	AcceptLegacy bool `yaml:"accept_legacy" env:"ACCEPT_LEGACY_TOKENS" env-default:"true"`
}

// Quota описывает бесплатный лимит и бонус за привязку аккаунта.
type Quota struct {
	FreeLimit int `yaml:"free_limit" env-default:"5"`
	LinkBonus int `yaml:"link_bonus" env-default:"5"`
}

// RateLimit задаёт длину окна и лимиты запросов по уровням доверия.
type RateLimit struct {
	Window    time.Duration `yaml:"window" env-default:"60s"`
	Anonymous int           `yaml:"anonymous" env-default:"5"`
	Free      int           `yaml:"free" env-default:"10"`
	Premium   int           `yaml:"premium" env-default:"100"`
}

// Identity настройки анонимной идентификации.
type Identity struct {
	CookieName        string        `yaml:"cookie_name" env-default:"safemessage_uid"`
	CookieMaxAge      time.Duration `yaml:"cookie_max_age" env-default:"8760h"`
	CookieSecure      bool          `yaml:"cookie_secure"`
	FingerprintMinLen int           `yaml:"fingerprint_min_len" env-default:"8"`
}

// Internal ключ для эндпоинтов внешних коллабораторов (OAuth callback).
type Internal struct {
	APIKey string `yaml:"api_key" env:"INTERNAL_API_KEY"`
	// BurstRPS и Burst ограничивают общий поток на внутренние маршруты.
	BurstRPS float64 `yaml:"burst_rps" env-default:"20"`
	Burst    int     `yaml:"burst" env-default:"40"`
}

// RabbitMQ настройки очереди биллинговых событий.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	Exchange   string        `yaml:"exchange" env-default:"billing"`
	Queue      string        `yaml:"queue" env-default:"billing.events"`
	RoutingKey string        `yaml:"routing_key" env-default:"event"`
	Prefetch   int           `yaml:"prefetch" env-default:"10"`
	Retries    int           `yaml:"retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// Load читает конфиг из файла и переменных окружения.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига из CONFIG_PATH, завершает процесс при ошибке
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.AddressRedis == "" {
			return fmt.Errorf("redis backend requires redis_connection.addressredis")
		}
	case BackendPostgres:
		if c.StorageConnectionString == "" {
			return fmt.Errorf("postgres backend requires storage.connection_string")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	if c.FreeLimit < 0 || c.LinkBonus < 0 {
		return fmt.Errorf("quota values must not be negative")
	}
	if c.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Backend: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"JWTToken:\n"+
			"  TokenTTL: %s\n"+
			"  AcceptLegacy: %t\n"+
			"Quota:\n"+
			"  FreeLimit: %d\n"+
			"  LinkBonus: %d\n"+
			"RateLimit:\n"+
			"  Window: %s\n"+
			"  Anonymous/Free/Premium: %d/%d/%d\n",
		c.Env,
		c.Backend,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.TokenTTL,
		c.AcceptLegacy,
		c.FreeLimit,
		c.LinkBonus,
		c.Window,
		c.Anonymous,
		c.Free,
		c.Premium,
	)
}
