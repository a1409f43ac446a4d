package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source selectors
const (
	FastSourceSQLite = "sqlite"
	FastSourceNone   = "none"

	GenericSourceMemory   = "memory"
	GenericSourceDynamoDB = "dynamodb"
	GenericSourceNeo4j    = "neo4j"

	FacetCacheMemory = "memory"
	FacetCacheRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"serverAddress"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"logLevel"`

	// Backing sources
	FastSource    string `yaml:"fastSource"`
	SQLitePath    string `yaml:"sqlitePath"`
	GenericSource string `yaml:"genericSource"`
	SnapshotFile  string `yaml:"snapshotFile"`

	// AWS configuration
	AWSRegion         string `yaml:"awsRegion"`
	DynamoDBTable     string `yaml:"dynamodbTable"`
	DynamoDBNodeIndex string `yaml:"dynamodbNodeIndex"`

	// Neo4j configuration
	Neo4jURI      string `yaml:"neo4jUri"`
	Neo4jUser     string `yaml:"neo4jUser"`
	Neo4jPassword string `yaml:"neo4jPassword"`
	Neo4jDatabase string `yaml:"neo4jDatabase"`

	// Facet cache
	FacetCache    string        `yaml:"facetCache"`
	RedisAddr     string        `yaml:"redisAddr"`
	FacetCacheTTL time.Duration `yaml:"facetCacheTtl"`

	// Query limits
	NodePageDefault   int `yaml:"nodePageDefault"`
	EdgePageDefault   int `yaml:"edgePageDefault"`
	PageMax           int `yaml:"pageMax"`
	SceneDefaultLimit int `yaml:"sceneDefaultLimit"`
	SceneNodeCap      int `yaml:"sceneNodeCap"`
	SceneEdgeCap      int `yaml:"sceneEdgeCap"`

	// Labels
	LabelsFile string `yaml:"labelsFile"`

	// Circuit breaker around the fast source
	BreakerFailureRatio float64       `yaml:"breakerFailureRatio"`
	BreakerMinRequests  int           `yaml:"breakerMinRequests"`
	BreakerOpenTimeout  time.Duration `yaml:"breakerOpenTimeout"`

	// Per-org request budget on the API; zero disables it
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
	RateLimitBurst     int `yaml:"rateLimitBurst"`

	// Feature flags
	EnableMetrics bool   `yaml:"enableMetrics"`
	EnableTracing bool   `yaml:"enableTracing"`
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	EnableCORS    bool   `yaml:"enableCors"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		ServerAddress:       ":8080",
		Environment:         "development",
		LogLevel:            "info",
		FastSource:          FastSourceSQLite,
		SQLitePath:          "kbquery.db",
		GenericSource:       GenericSourceMemory,
		AWSRegion:           "us-west-2",
		DynamoDBTable:       "kbquery",
		DynamoDBNodeIndex:   "GSI1",
		Neo4jUser:           "neo4j",
		FacetCache:          FacetCacheMemory,
		FacetCacheTTL:       15 * time.Minute,
		NodePageDefault:     20,
		EdgePageDefault:     50,
		PageMax:             100,
		SceneDefaultLimit:   50,
		SceneNodeCap:        200,
		SceneEdgeCap:        400,
		BreakerFailureRatio: 0.8,
		BreakerMinRequests:  5,
		BreakerOpenTimeout:  60 * time.Second,
		EnableCORS:          true,
	}
}

// LoadConfig loads configuration from defaults, the optional YAML file named
// by CONFIG_FILE, then environment variables. Environment wins.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.FastSource = getEnv("FAST_SOURCE", c.FastSource)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.GenericSource = getEnv("GENERIC_SOURCE", c.GenericSource)
	c.SnapshotFile = getEnv("SNAPSHOT_FILE", c.SnapshotFile)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.DynamoDBTable))
	c.DynamoDBNodeIndex = getEnv("DYNAMODB_NODE_INDEX", c.DynamoDBNodeIndex)

	c.Neo4jURI = getEnv("NEO4J_URI", c.Neo4jURI)
	c.Neo4jUser = getEnv("NEO4J_USER", c.Neo4jUser)
	c.Neo4jPassword = getEnv("NEO4J_PASSWORD", c.Neo4jPassword)
	c.Neo4jDatabase = getEnv("NEO4J_DATABASE", c.Neo4jDatabase)

	c.FacetCache = getEnv("FACET_CACHE", c.FacetCache)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.FacetCacheTTL = getEnvDuration("FACET_CACHE_TTL", c.FacetCacheTTL)

	c.NodePageDefault = getEnvInt("NODE_PAGE_DEFAULT", c.NodePageDefault)
	c.EdgePageDefault = getEnvInt("EDGE_PAGE_DEFAULT", c.EdgePageDefault)
	c.PageMax = getEnvInt("PAGE_MAX", c.PageMax)
	c.SceneDefaultLimit = getEnvInt("SCENE_DEFAULT_LIMIT", c.SceneDefaultLimit)
	c.SceneNodeCap = getEnvInt("SCENE_NODE_CAP", c.SceneNodeCap)
	c.SceneEdgeCap = getEnvInt("SCENE_EDGE_CAP", c.SceneEdgeCap)

	c.LabelsFile = getEnv("LABELS_FILE", c.LabelsFile)

	c.BreakerFailureRatio = getEnvFloat("BREAKER_FAILURE_RATIO", c.BreakerFailureRatio)
	c.BreakerMinRequests = getEnvInt("BREAKER_MIN_REQUESTS", c.BreakerMinRequests)
	c.BreakerOpenTimeout = getEnvDuration("BREAKER_OPEN_TIMEOUT", c.BreakerOpenTimeout)

	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst)

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.OTLPEndpoint = getEnv("OTLP_ENDPOINT", c.OTLPEndpoint)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.FastSource {
	case FastSourceSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when FAST_SOURCE=sqlite")
		}
	case FastSourceNone:
	default:
		return fmt.Errorf("unknown FAST_SOURCE %q", c.FastSource)
	}

	switch c.GenericSource {
	case GenericSourceMemory:
	case GenericSourceDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required when GENERIC_SOURCE=dynamodb")
		}
	case GenericSourceNeo4j:
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required when GENERIC_SOURCE=neo4j")
		}
	default:
		return fmt.Errorf("unknown GENERIC_SOURCE %q", c.GenericSource)
	}

	switch c.FacetCache {
	case FacetCacheMemory:
	case FacetCacheRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when FACET_CACHE=redis")
		}
	default:
		return fmt.Errorf("unknown FACET_CACHE %q", c.FacetCache)
	}

	if c.FacetCacheTTL <= 0 {
		return fmt.Errorf("FACET_CACHE_TTL must be positive")
	}
	if c.PageMax <= 0 || c.NodePageDefault <= 0 || c.EdgePageDefault <= 0 {
		return fmt.Errorf("page sizes must be positive")
	}
	if c.NodePageDefault > c.PageMax || c.EdgePageDefault > c.PageMax {
		return fmt.Errorf("default page sizes must not exceed PAGE_MAX (%d)", c.PageMax)
	}
	if c.SceneNodeCap <= 0 || c.SceneEdgeCap <= 0 || c.SceneDefaultLimit <= 0 {
		return fmt.Errorf("scene limits must be positive")
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.EnableTracing && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP_ENDPOINT is required when tracing is enabled")
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
