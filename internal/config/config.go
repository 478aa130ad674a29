// Package config описывает настройки сервиса и загружает их из YAML-файла
// с переопределением через переменные окружения.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/magabrotheeeer/learnhub/internal/models"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string             `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string             `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string             `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	GRPCHealthAddress       string             `yaml:"grpc_health_address" env:"GRPC_HEALTH_ADDRESS" env-default:":50051"`
	HTTPServer              HTTPServer         `yaml:"http_server"`
	RedisConnection         RedisConnection    `yaml:"redis_connection"`
	JWTToken                JWTToken           `yaml:"jwttoken"`
	Cache                   Cache              `yaml:"cache"`
	RabbitMQ                RabbitMQ           `yaml:"rabbitmq"`
	Scheduler               Scheduler          `yaml:"scheduler"`
	Admin                   Admin              `yaml:"admin"`
	SMTP                    SMTP               `yaml:"smtp"`
	PaymentInfo             models.PaymentInfo `yaml:"payment_info"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"20"`
	RateBurst   int           `yaml:"rate_burst" env-default:"40"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	Address     string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	User        string        `yaml:"user" env:"REDIS_USER"`
	DB          int           `yaml:"db" env-default:"0"`
	MaxRetries  int           `yaml:"max_retries" env-default:"3"`
	DialTimeout time.Duration `yaml:"dial_timeout" env-default:"5s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"3s"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY" env-required:"true"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Cache настройки кэша каталогов.
type Cache struct {
	// Backend принимает значения memory (в памяти процесса) или redis.
	Backend         string        `yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"`
	LessonsTTL      time.Duration `yaml:"lessons_ttl" env-default:"60s"`
	RewardsTTL      time.Duration `yaml:"rewards_ttl" env-default:"5m"`
	JanitorInterval time.Duration `yaml:"janitor_interval" env-default:"1m"`
}

// RabbitMQ настройки брокера уведомлений. Пустой URL отключает публикацию.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// Scheduler настройки планировщика уведомлений о пробном периоде.
type Scheduler struct {
	Interval  time.Duration `yaml:"interval" env-default:"1h"`
	Lookahead time.Duration `yaml:"lookahead" env-default:"24h"`
}

// Admin учетная запись администратора, создаваемая при старте, если ее еще нет.
type Admin struct {
	Email    string `yaml:"email" env:"ADMIN_EMAIL"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD"`
}

// SMTP настройки почтового сервера для рассылки уведомлений.
type SMTP struct {
	Host string `yaml:"host" env:"SMTP_HOST"`
	Port string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User string `yaml:"user" env:"SMTP_USER"`
	Pass string `yaml:"pass" env:"SMTP_PASS"`
	// From задает адрес отправителя, по умолчанию совпадает с User.
	From string `yaml:"from" env:"SMTP_FROM"`
	// AllowPlaintext разрешает отправку без STARTTLS, если сервер его не предлагает.
	AllowPlaintext bool `yaml:"allow_plaintext" env:"SMTP_ALLOW_PLAINTEXT"`
	// Concurrency ограничивает число писем, отправляемых параллельно.
	Concurrency int `yaml:"concurrency" env-default:"10"`
}

// MustLoad загружает конфиг из файла CONFIG_PATH. Перед этим подхватывается
// .env, если он есть. При ошибке процесс завершается.
func MustLoad() *Config {
	_ = godotenv.Load()

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

// Load читает конфиг из файла path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
