package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Analysis      AnalysisConfig
	Storage       StorageConfig
	Publish       PublishConfig
	Observability ObservabilityConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string
	Environment    string
	ServiceName    string
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout time.Duration
	CORSOrigins    string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	ScoreTTL time.Duration
}

// RateLimitConfig holds per-client API rate limits
type RateLimitConfig struct {
	Enabled     bool
	Limit       int
	Window      time.Duration
	RedisPrefix string
}

// AnalysisConfig holds the detector and scoring knobs
type AnalysisConfig struct {
	WeightRing        float64
	WeightCluster     float64
	WeightBurst       float64
	WeightStake       float64
	WeightReciprocity float64

	RingMaxLength int
	RingMaxRings  int
	RingBudget    time.Duration

	LouvainSeed         uint64
	LouvainResolution   float64
	IsolationThreshold  float64
	MembershipThreshold float64

	BurstStdThreshold float64
	BurstMinRecords   int
	BurstMinWindows   int

	TinyStake         float64
	MinIncomingStakes int

	Workers          int
	RiskThreshold    float64
	TopN             int
	OfficialAccounts []string
}

// StorageConfig holds S3 configuration for inputs and reports
type StorageConfig struct {
	Enabled      bool
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	ReportPrefix string
}

// PublishConfig holds broker configuration for flagged profiles
type PublishConfig struct {
	BatchSize    int
	NATSEnabled  bool
	NATSURL      string
	NATSSubject  string
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// ObservabilityConfig holds error reporting, tracing and metrics push settings
type ObservabilityConfig struct {
	SentryDSN      string
	OTLPEndpoint   string
	PushgatewayURL string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ServiceName:    serviceName,
			ReadTimeout:    getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:   getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 5*time.Second),
			CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "trust_rings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			ScoreTTL: getEnvAsDuration("REDIS_SCORE_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getEnvAsBool("RATE_LIMIT_ENABLED", false),
			Limit:       getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
			Window:      getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			RedisPrefix: getEnv("RATE_LIMIT_PREFIX", "rl"),
		},
		Analysis: AnalysisConfig{
			WeightRing:          getEnvAsFloat("WEIGHT_RING", 0.30),
			WeightCluster:       getEnvAsFloat("WEIGHT_CLUSTER", 0.25),
			WeightBurst:         getEnvAsFloat("WEIGHT_BURST", 0.20),
			WeightStake:         getEnvAsFloat("WEIGHT_STAKE", 0.15),
			WeightReciprocity:   getEnvAsFloat("WEIGHT_RECIPROCITY", 0.10),
			RingMaxLength:       getEnvAsInt("RING_MAX_LENGTH", 5),
			RingMaxRings:        getEnvAsInt("RING_MAX_RINGS", 10000),
			RingBudget:          getEnvAsDuration("RING_BUDGET", 60*time.Second),
			LouvainSeed:         uint64(getEnvAsInt("LOUVAIN_SEED", 42)),
			LouvainResolution:   getEnvAsFloat("LOUVAIN_RESOLUTION", 1.0),
			IsolationThreshold:  getEnvAsFloat("ISOLATION_THRESHOLD", 0.8),
			MembershipThreshold: getEnvAsFloat("MEMBERSHIP_THRESHOLD", 0.7),
			BurstStdThreshold:   getEnvAsFloat("BURST_STD_THRESHOLD", 3.0),
			BurstMinRecords:     getEnvAsInt("BURST_MIN_RECORDS", 10),
			BurstMinWindows:     getEnvAsInt("BURST_MIN_WINDOWS", 3),
			TinyStake:           getEnvAsFloat("TINY_STAKE", 0.01),
			MinIncomingStakes:   getEnvAsInt("MIN_INCOMING_STAKES", 3),
			Workers:             getEnvAsInt("SCORING_WORKERS", 0),
			RiskThreshold:       getEnvAsFloat("RISK_THRESHOLD", 30),
			TopN:                getEnvAsInt("SUMMARY_TOP_N", 10),
			OfficialAccounts:    getEnvAsSlice("OFFICIAL_ACCOUNTS", []string{"ethos", "ethos_network", "ethosnetwork"}),
		},
		Storage: StorageConfig{
			Enabled:      getEnvAsBool("S3_ENABLED", false),
			Bucket:       getEnv("S3_BUCKET", ""),
			Region:       getEnv("S3_REGION", "us-east-1"),
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			AccessKey:    getEnv("S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("S3_SECRET_KEY", ""),
			ReportPrefix: getEnv("S3_REPORT_PREFIX", "reports"),
		},
		Publish: PublishConfig{
			BatchSize:    getEnvAsInt("PUBLISH_BATCH_SIZE", 100),
			NATSEnabled:  getEnvAsBool("NATS_ENABLED", false),
			NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
			NATSSubject:  getEnv("NATS_SUBJECT", "trust.risk.flagged"),
			KafkaEnabled: getEnvAsBool("KAFKA_ENABLED", false),
			KafkaBrokers: getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "trust-risk-flagged"),
		},
		Observability: ObservabilityConfig{
			SentryDSN:      getEnv("SENTRY_DSN", ""),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		},
	}

	if cfg.Analysis.RingMaxLength < 3 {
		return nil, fmt.Errorf("RING_MAX_LENGTH must be at least 3, got %d", cfg.Analysis.RingMaxLength)
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the database connection string in URL form, as migrate expects
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
