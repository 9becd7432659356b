package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/utils"
)

type Config struct {
	Env      string  `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTP    `yaml:"http"`
	Postgres PG      `yaml:"postgres"`
	Redis    Redis   `yaml:"redis"`
	Kafka    Kafka   `yaml:"kafka"`
	Gateway  Gateway `yaml:"gateway"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL string `yaml:"url" env:"DB_URL"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"5m"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Topics  Topics   `yaml:"topics"`
}

// Topics names every channel of the saga. All services share this layout so
// that producer and consumer sides always agree.
type Topics struct {
	OrdersEvents     string `yaml:"orders_events" env-default:"orders.events"`
	OrdersCommands   string `yaml:"orders_commands" env-default:"orders.commands"`
	ProductsEvents   string `yaml:"products_events" env-default:"products.events"`
	ProductsCommands string `yaml:"products_commands" env-default:"products.commands"`
	PaymentsEvents   string `yaml:"payments_events" env-default:"payments.events"`
	PaymentsCommands string `yaml:"payments_commands" env-default:"payments.commands"`
	DeadLetter       string `yaml:"dead_letter" env-default:"saga.dead-letter"`
}

// Gateway points at the external card processor. A call that exceeds
// Timeout is treated as failed, never retried inside the domain layer.
type Gateway struct {
	URL     string        `yaml:"url" env:"GATEWAY_URL" env-default:"http://localhost:8085/charge"`
	Timeout time.Duration `yaml:"timeout" env-default:"3s"`
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}
