// Package config loads process configuration from environment variables,
// with .env support for local development, following the same flat-struct
// + helper-function pattern the rest of this stack uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full set of knobs the gateway process needs at startup.
type Config struct {
	Port        string
	Environment string
	ServiceName string
	NodeID      string

	// LiveStore (Redis)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// DurableStore (Firestore)
	FirestoreProjectID      string
	FirestoreCredentialsFile string

	// Identity verification
	JWTSecret string

	CORSAllowedOrigins []string

	// Matchmaking (§4.3)
	SearchSessionTTL   time.Duration
	InitialSearchRange int
	MaxSearchRange     int
	RangeStepPerTick   int
	RangeStepInterval  time.Duration
	MatchLockTTL       time.Duration

	// TimeManager (§4.7)
	ClockScanPeriod time.Duration
	TimeUpTolerance time.Duration

	// LiveGame TTL (§3, §5)
	LiveGameTTL time.Duration

	// PersistencePipeline (§4.9)
	HighPriorityBatchSize  int
	HighPriorityFlushAfter time.Duration
	MediumPriorityBatchSize  int
	MediumPriorityFlushAfter time.Duration
	LowPriorityMaxQueueDepth int
	PipelineMaxRetries       int
	PipelineRetryBaseDelay   time.Duration

	// Store/bus timeouts (§5)
	StoreOpTimeout     time.Duration
	DurableWriteTimeout time.Duration
	BusOpTimeout       time.Duration
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return strings.Split(v, ",")
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Load reads configuration from the environment, loading a local .env file
// first when present (ignored in production deployments where the file
// does not exist).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		ServiceName: getEnv("SERVICE_NAME", "chess-core"),
		NodeID:      getEnv("NODE_ID", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		FirestoreProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCredentialsFile: getEnv("FIRESTORE_CREDENTIALS_FILE", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),

		SearchSessionTTL:   getEnvAsDuration("SEARCH_SESSION_TTL", 300*time.Second),
		InitialSearchRange: getEnvAsInt("INITIAL_SEARCH_RANGE", 60),
		MaxSearchRange:     getEnvAsInt("MAX_SEARCH_RANGE", 600),
		RangeStepPerTick:   getEnvAsInt("RANGE_STEP_PER_TICK", 60),
		RangeStepInterval:  getEnvAsDuration("RANGE_STEP_INTERVAL", 3*time.Second),
		MatchLockTTL:       getEnvAsDuration("MATCH_LOCK_TTL", 5*time.Second),

		ClockScanPeriod: getEnvAsDuration("CLOCK_SCAN_PERIOD", 1*time.Second),
		TimeUpTolerance: getEnvAsDuration("TIME_UP_TOLERANCE", 100*time.Millisecond),

		LiveGameTTL: getEnvAsDuration("LIVE_GAME_TTL", 7200*time.Second),

		HighPriorityBatchSize:    getEnvAsInt("PIPELINE_HIGH_BATCH_SIZE", 10),
		HighPriorityFlushAfter:   getEnvAsDuration("PIPELINE_HIGH_FLUSH_AFTER", 1*time.Second),
		MediumPriorityBatchSize:  getEnvAsInt("PIPELINE_MEDIUM_BATCH_SIZE", 100),
		MediumPriorityFlushAfter: getEnvAsDuration("PIPELINE_MEDIUM_FLUSH_AFTER", 5*time.Second),
		LowPriorityMaxQueueDepth: getEnvAsInt("PIPELINE_LOW_MAX_QUEUE_DEPTH", 1000),
		PipelineMaxRetries:       getEnvAsInt("PIPELINE_MAX_RETRIES", 5),
		PipelineRetryBaseDelay:   getEnvAsDuration("PIPELINE_RETRY_BASE_DELAY", 200*time.Millisecond),

		StoreOpTimeout:      getEnvAsDuration("STORE_OP_TIMEOUT", 2*time.Second),
		DurableWriteTimeout: getEnvAsDuration("DURABLE_WRITE_TIMEOUT", 5*time.Second),
		BusOpTimeout:        getEnvAsDuration("BUS_OP_TIMEOUT", 2*time.Second),
	}

	if cfg.NodeID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = fmt.Sprintf("node-%d", os.Getpid())
		}
		cfg.NodeID = host
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required fields are present for the current
// environment.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required in production")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("config: REDIS_ADDR is required")
	}
	return nil
}

// IsProduction reports whether this process is running in production.
func (c *Config) IsProduction() bool { return c.Environment == "production" }

// IsDevelopment reports whether this process is running in development.
func (c *Config) IsDevelopment() bool { return c.Environment == "development" }

// GetRedisAddr returns the address the Redis client should dial.
func (c *Config) GetRedisAddr() string { return c.RedisAddr }
