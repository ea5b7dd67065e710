package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port string
}

type PostgresConfig struct {
	URL string
}

type KafkaConfig struct {
	Brokers []string
	// NotificationsTopic carries post-commit wallet events, keyed by user.
	NotificationsTopic string
	// CallbacksTopic carries gateway settlement results for pending top-ups.
	CallbacksTopic string
	Partitions     int
	Version        string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type WorkerConfig struct {
	LockCleanupInterval time.Duration
	TopupLockTTL        time.Duration
}

func New() *Config {
	// Local development reads a .env file; missing is fine.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: os.Getenv("SERVER_PORT"),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:            strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
			NotificationsTopic: os.Getenv("KAFKA_NOTIFICATIONS_TOPIC"),
			CallbacksTopic:     os.Getenv("KAFKA_CALLBACKS_TOPIC"),
			Partitions:         envInt("KAFKA_PARTITIONS"),
			Version:            os.Getenv("KAFKA_VERSION"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB"),
			PoolSize: envInt("REDIS_POOL_SIZE"),
		},
		Worker: WorkerConfig{
			LockCleanupInterval: envSeconds("WORKER_LOCK_CLEANUP_INTERVAL", 60),
			TopupLockTTL:        envSeconds("TOPUP_LOCK_TTL", 15*60),
		},
	}
}

func envInt(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}

func envSeconds(key string, fallback int) time.Duration {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func (k *KafkaConfig) GetSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()

	if k.Version != "" {
		version, err := sarama.ParseKafkaVersion(k.Version)
		if err == nil {
			config.Version = version
		}
	}

	// Consumer settings
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Offsets.AutoCommit.Interval = 2 * time.Minute
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	config.Consumer.Fetch.Min = 1
	config.Consumer.Fetch.Default = 1024 * 1024 // 1MB
	config.Consumer.MaxWaitTime = 100 * time.Millisecond

	// Network settings
	config.Net.MaxOpenRequests = 5
	config.Net.DialTimeout = 30 * time.Second
	config.Net.ReadTimeout = 30 * time.Second
	config.Net.WriteTimeout = 30 * time.Second

	return config
}
