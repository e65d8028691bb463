package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"campaign_worker/pkg/apperr"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// Backend names
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreSQLite   = "sqlite"

	SearchCorpus   = "corpus"
	SearchPGVector = "pgvector"
	SearchNeo4j    = "neo4j"

	DeliveryMock    = "mock"
	DeliveryKafka   = "kafka"
	DeliveryWebhook = "webhook"
	DeliveryStream  = "stream"
)

type Config struct {
	Port        string
	Environment string

	// Backends
	StoreBackend    string
	SearchBackend   string
	DeliveryBackend string
	DryRun          bool

	// Database
	DatabaseURL string
	SQLitePath  string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string
	StateTTL    time.Duration

	// Neo4j
	Neo4jURL      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	// Kafka
	KafkaBrokers       []string
	KafkaDeliveryTopic string
	KafkaEventsTopic   string

	// Webhook delivery
	WebhookURL        string
	WebhookTimeoutSec int

	// OpenAI
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	LLMModel          string
	LLMEmbeddingModel string
	LLMMaxTokens      int
	LLMTemperature    float64
	LLMTimeoutSec     int
	LLMMaxRetries     int

	// Retrieval
	CorpusPath    string
	RetrievalTopK int

	// Policy
	PolicyFile string

	// Worker
	WorkerID         string
	SnowflakeNode    int64
	WorkerCount      int
	WorkerQueueSize  int
	BatchConcurrency int

	// Consumer (Redis Stream)
	ConsumerGroup           string
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int
	ConsumerPendingIdleSec  int

	// HTTP
	AllowedOrigins     []string
	RateLimitPerMinute int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		SearchBackend:   strings.ToLower(getEnv("SEARCH_BACKEND", SearchCorpus)),
		DeliveryBackend: strings.ToLower(getEnv("DELIVERY_BACKEND", DeliveryMock)),
		DryRun:          getEnvBool("DRY_RUN", true),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "campaign.db"),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "campaign"),
		RedisURL:    getEnv("REDIS_URL", ""),
		StateTTL:    time.Duration(getEnvInt("STATE_TTL_HOURS", 72)) * time.Hour,

		Neo4jURL:      getEnv("NEO4J_URL", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", "neo4j"),

		KafkaBrokers:       getEnvSlice("KAFKA_BROKERS", nil),
		KafkaDeliveryTopic: getEnv("KAFKA_DELIVERY_TOPIC", "campaign.delivery"),
		KafkaEventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "campaign.events"),

		WebhookURL:        getEnv("WEBHOOK_URL", ""),
		WebhookTimeoutSec: getEnvInt("WEBHOOK_TIMEOUT_SEC", 10),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMEmbeddingModel: getEnv("LLM_EMBEDDING_MODEL", "text-embedding-ada-002"),
		LLMMaxTokens:      getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:    getEnvFloat("LLM_TEMPERATURE", 0.7),
		LLMTimeoutSec:     getEnvInt("LLM_TIMEOUT_SEC", 45),
		LLMMaxRetries:     getEnvInt("LLM_MAX_RETRIES", 2),

		CorpusPath:    getEnv("CORPUS_PATH", "data/corpus.jsonl"),
		RetrievalTopK: getEnvInt("RETRIEVAL_TOP_K", 0), // 0이면 policy 값 사용

		PolicyFile: getEnv("POLICY_FILE", "policy.yaml"),

		WorkerID:         getEnv("WORKER_ID", generateWorkerID()),
		SnowflakeNode:    int64(getEnvInt("SNOWFLAKE_NODE", 1)),
		WorkerCount:      getEnvInt("WORKER_COUNT", 8),
		WorkerQueueSize:  getEnvInt("WORKER_QUEUE_SIZE", 1000),
		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 4),

		ConsumerGroup:           getEnv("CONSUMER_GROUP", "campaign-workers"),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 30),
		ConsumerPendingIdleSec:  getEnvInt("CONSUMER_PENDING_IDLE_SEC", 120),

		AllowedOrigins:     getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and backends missing their URL.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite:
	case StoreRedis:
		if c.RedisURL == "" {
			return apperr.ConfigError("STORE_BACKEND=redis requires REDIS_URL")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return apperr.ConfigError("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	case StoreMongo:
		if c.MongoDBURL == "" {
			return apperr.ConfigError("STORE_BACKEND=mongo requires MONGODB_URL")
		}
	default:
		return apperr.ConfigError("unknown STORE_BACKEND " + strconv.Quote(c.StoreBackend))
	}

	switch c.SearchBackend {
	case SearchCorpus:
	case SearchPGVector:
		if c.DatabaseURL == "" {
			return apperr.ConfigError("SEARCH_BACKEND=pgvector requires DATABASE_URL")
		}
	case SearchNeo4j:
		if c.Neo4jURL == "" {
			return apperr.ConfigError("SEARCH_BACKEND=neo4j requires NEO4J_URL")
		}
	default:
		return apperr.ConfigError("unknown SEARCH_BACKEND " + strconv.Quote(c.SearchBackend))
	}

	switch c.DeliveryBackend {
	case DeliveryMock:
	case DeliveryStream:
		if c.RedisURL == "" {
			return apperr.ConfigError("DELIVERY_BACKEND=stream requires REDIS_URL")
		}
	case DeliveryKafka:
		if len(c.KafkaBrokers) == 0 {
			return apperr.ConfigError("DELIVERY_BACKEND=kafka requires KAFKA_BROKERS")
		}
	case DeliveryWebhook:
		if c.WebhookURL == "" {
			return apperr.ConfigError("DELIVERY_BACKEND=webhook requires WEBHOOK_URL")
		}
	default:
		return apperr.ConfigError("unknown DELIVERY_BACKEND " + strconv.Quote(c.DeliveryBackend))
	}
	return nil
}

// LLMEnabled is true only when an API key is configured.
func (c *Config) LLMEnabled() bool {
	return c.OpenAIAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
