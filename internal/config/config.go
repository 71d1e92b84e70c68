package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Worker   WorkerConfig
	Queue    QueueConfig
	Metrics  MetricsConfig
	Auth     AuthConfig
	Coordinator CoordinatorConfig
	LogLevel string
}

// CoordinatorConfig holds the PTC-specific knobs from spec §6: heartbeat
// cadence, stale detection, retry/backoff, ack timeout, dead-letter
// handling, and the SQLite storage path.
type CoordinatorConfig struct {
	Name                string
	StoragePath         string
	HeartbeatIntervalMS int
	StaleThresholdMS    int
	PollIntervalMS      int
	RetryMaxAttempts    int
	RetryBackoffMS      []int
	RetryMaxBackoffMS   int
	RetryJitterFactor   float64
	AckTimeoutMS        int
	DeadLetterEnabled   bool
	MaxTasksPerWorker   int
	ReadyTaskCommand    string
}

type ServerConfig struct {
	Host         string
	Port         int
	AdminPort    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type WorkerConfig struct {
	ID                string
	Concurrency       int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ShutdownTimeout   time.Duration
}

type QueueConfig struct {
	StreamPrefix        string
	ConsumerGroup       string
	MaxQueueSize        int64
	BlockTimeout        time.Duration
	ClaimMinIdle        time.Duration
	RecoveryInterval    time.Duration
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryBackoffFactor  float64
	TaskRetentionDays   int
	RateLimitRPS        int
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/ptc")

	// Set defaults
	setDefaults()

	// Environment variable binding
	viper.SetEnvPrefix("PTC")
	viper.AutomaticEnv()

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	// UnmarshalExact rejects unknown top-level keys rather than silently
	// dropping them, per spec §6's config-validation requirement.
	if err := viper.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.adminport", 8081)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 100)
	viper.SetDefault("redis.minidleconns", 10)
	viper.SetDefault("redis.maxretries", 3)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	// Worker defaults
	viper.SetDefault("worker.id", "")
	viper.SetDefault("worker.concurrency", 10)
	viper.SetDefault("worker.heartbeatinterval", 5*time.Second)
	viper.SetDefault("worker.heartbeattimeout", 15*time.Second)
	viper.SetDefault("worker.shutdowntimeout", 30*time.Second)

	// Queue defaults
	viper.SetDefault("queue.streamprefix", "tasks")
	viper.SetDefault("queue.consumergroup", "workers")
	viper.SetDefault("queue.maxqueuesize", 1000000)
	viper.SetDefault("queue.blocktimeout", 5*time.Second)
	viper.SetDefault("queue.claimminidle", 30*time.Second)
	viper.SetDefault("queue.recoveryinterval", 10*time.Second)
	viper.SetDefault("queue.retrymaxattempts", 3)
	viper.SetDefault("queue.retryinitialbackoff", 1*time.Second)
	viper.SetDefault("queue.retrymaxbackoff", 5*time.Minute)
	viper.SetDefault("queue.retrybackofffactor", 2.0)
	viper.SetDefault("queue.taskretentiondays", 7)
	viper.SetDefault("queue.ratelimitrps", 1000)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	// Logging defaults
	viper.SetDefault("loglevel", "info")

	// Coordinator defaults (spec §6)
	viper.SetDefault("coordinator.name", "ptc")
	viper.SetDefault("coordinator.storagepath", "./data/ptc.db")
	viper.SetDefault("coordinator.heartbeatintervalms", 30000)
	viper.SetDefault("coordinator.stalethresholdms", 90000)
	viper.SetDefault("coordinator.pollintervalms", 10000)
	viper.SetDefault("coordinator.retrymaxattempts", 3)
	viper.SetDefault("coordinator.retrybackoffms", []int{1000, 5000, 30000})
	viper.SetDefault("coordinator.retrymaxbackoffms", 30000)
	viper.SetDefault("coordinator.retryjitterfactor", 0.2)
	viper.SetDefault("coordinator.acktimeoutms", 60000)
	viper.SetDefault("coordinator.deadletterenabled", true)
	viper.SetDefault("coordinator.maxtasksperworker", 10)
	viper.SetDefault("coordinator.readytaskcommand", "")
}
