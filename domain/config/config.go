// Package config provides domain models for application configuration.
package config

import (
	"strconv"
	"time"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// Name is a human-readable name for this cell.
	Name string `json:"name" yaml:"name"`

	// Workflow contains attempt budget and review settings.
	Workflow WorkflowConfig `json:"workflow" yaml:"workflow"`
	// Knowledge selects the knowledge graph backend.
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`
	// State selects the robot state store.
	State StoreConfig `json:"state" yaml:"state"`
	// History selects the run history store.
	History StoreConfig `json:"history" yaml:"history"`
	// Execution configures the robot link.
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	// LLM configures the language model client.
	LLM LLMConfig `json:"llm,omitempty" yaml:"llm,omitempty"`
	// Archive configures where sequence documents are written.
	Archive ArchiveConfig `json:"archive,omitempty" yaml:"archive,omitempty"`
	// Notify configures operator notifications.
	Notify NotifyConfig `json:"notify,omitempty" yaml:"notify,omitempty"`
	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Telemetry configures tracing and metrics.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// Review modes.
const (
	ReviewTerminal = "terminal"
	ReviewAuto     = "auto"
	ReviewTelegram = "telegram"
)

// WorkflowConfig contains workflow engine settings.
type WorkflowConfig struct {
	// MaxPlanAttempts bounds the planning/verification loop.
	MaxPlanAttempts int `json:"max_plan_attempts,omitempty" yaml:"max_plan_attempts,omitempty"`
	// ReviewTimeout is the human review window.
	ReviewTimeout Duration `json:"review_timeout,omitempty" yaml:"review_timeout,omitempty"`
	// ReviewMode selects the reviewer (terminal, auto, telegram).
	ReviewMode string `json:"review_mode,omitempty" yaml:"review_mode,omitempty"`
}

// Backend names shared by several sections.
const (
	BackendMemory     = "memory"
	BackendNeo4j      = "neo4j"
	BackendSQLite     = "sqlite"
	BackendPostgres   = "postgres"
	BackendMongo      = "mongodb"
	BackendDynamo     = "dynamodb"
	BackendRedis      = "redis"
	BackendBadger     = "badger"
	BackendFilesystem = "filesystem"
	BackendS3         = "s3"
	BackendGCS        = "gcs"
	BackendAzure      = "azblob"
	BackendNone       = "none"
)

// KnowledgeConfig selects and configures the knowledge graph.
type KnowledgeConfig struct {
	// Backend is memory or neo4j.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// GraphFile is the YAML graph loaded by the memory backend.
	GraphFile string `json:"graph_file,omitempty" yaml:"graph_file,omitempty"`
	// Watch reloads GraphFile on change.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty"`
	// Neo4j configures the neo4j backend.
	Neo4j Neo4jConfig `json:"neo4j,omitempty" yaml:"neo4j,omitempty"`
	// Cache configures the query cache in front of the backend.
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// Neo4jConfig configures the neo4j connection.
type Neo4jConfig struct {
	URI      string `json:"uri,omitempty" yaml:"uri,omitempty"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// CacheConfig configures the knowledge query cache.
type CacheConfig struct {
	// Backend is none, memory, redis, badger or dynamodb.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// TTL is how long cached answers stay valid.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// Addr is the redis address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	// Dir is the badger directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Table is the dynamodb table, created on first use.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
	// Region and Endpoint locate the dynamodb service.
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// SQLite drivers.
const (
	DriverMattn  = "sqlite3"
	DriverPureGo = "sqlite"
)

// StoreConfig selects a relational or in-memory store.
type StoreConfig struct {
	// Backend is memory, sqlite, postgres or mongodb.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Path is the sqlite database file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Driver is the sqlite driver name (sqlite3 or sqlite).
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	// DSN is the postgres or mongodb connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Database is the mongodb database name.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// Execution modes.
const (
	ModeSimulation = "simulation"
	ModeSocket     = "socket"
)

// ExecutionConfig configures step dispatch.
type ExecutionConfig struct {
	// Mode is simulation or socket.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Host is the address the socket link listens on.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	// Port is the socket link port.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`
	// StepDelay paces simulated steps.
	StepDelay Duration `json:"step_delay,omitempty" yaml:"step_delay,omitempty"`
	// Resilience wraps each dispatched step.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
	// Lock makes execution exclusive across processes sharing one cell.
	Lock LockConfig `json:"lock,omitempty" yaml:"lock,omitempty"`
}

// LockConfig configures the cell execution lock.
type LockConfig struct {
	// Backend is none, memory or redis.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Addr is the redis address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
	// TTL is renewed after every step; a crashed holder frees the cell
	// once it lapses.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// ResilienceConfig contains resilience settings.
type ResilienceConfig struct {
	// Timeout bounds a single step round trip.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Retry configures retry behavior.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// CircuitBreaker configures circuit breaker behavior.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// Bulkhead configures bulkhead behavior.
	Bulkhead BulkheadConfig `json:"bulkhead,omitempty" yaml:"bulkhead,omitempty"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	Enabled      bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MaxAttempts  int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	MaxDelay     Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	Multiplier   float64  `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	Enabled   bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Threshold int      `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Timeout   Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// BulkheadConfig configures bulkhead behavior.
type BulkheadConfig struct {
	Enabled       bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MaxConcurrent int  `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

// LLMConfig configures the OpenAI-compatible model client.
type LLMConfig struct {
	// Provider is openai or ollama. Empty disables the model.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	// Timeout bounds a single model call.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Enabled reports whether a model provider is configured.
func (c LLMConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != BackendNone
}

// ArchiveConfig configures sequence document output.
type ArchiveConfig struct {
	// ActionsFile is the path of the latest verified sequence.
	ActionsFile string `json:"actions_file,omitempty" yaml:"actions_file,omitempty"`
	// Backend is none, filesystem, s3, gcs or azblob.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Dir is the filesystem archive directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Bucket is the bucket or container name.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	// Prefix is prepended to object keys.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// Region is the S3 region.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint is an S3-compatible endpoint override.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Account is the Azure storage account name.
	Account string `json:"account,omitempty" yaml:"account,omitempty"`
}

// NotifyConfig configures notifications and remote review.
type NotifyConfig struct {
	// DiscordWebhook receives run outcome messages.
	DiscordWebhook string `json:"discord_webhook,omitempty" yaml:"discord_webhook,omitempty"`
	// TelegramToken is the bot token used for remote review.
	TelegramToken string `json:"telegram_token,omitempty" yaml:"telegram_token,omitempty"`
	// TelegramChatID is the chat that reviews plans.
	TelegramChatID int64 `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	// Exporter is otlp, stdout or none.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure bool   `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	// Metrics enables the metric instruments.
	Metrics bool `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() AppConfig {
	return AppConfig{
		Name: "robotflow",
		Workflow: WorkflowConfig{
			MaxPlanAttempts: 3,
			ReviewTimeout:   Duration(120 * time.Second),
			ReviewMode:      ReviewTerminal,
		},
		Knowledge: KnowledgeConfig{
			Backend:   BackendMemory,
			GraphFile: "graph.yaml",
			Cache:     CacheConfig{Backend: BackendNone, TTL: Duration(time.Minute)},
		},
		State:   StoreConfig{Backend: BackendSQLite, Path: "data/robot_state.db", Driver: DriverMattn},
		History: StoreConfig{Backend: BackendSQLite, Path: "data/history.db", Driver: DriverMattn},
		Execution: ExecutionConfig{
			Mode: ModeSimulation,
			Host: "127.0.0.1",
			Port: 5000,
			Resilience: ResilienceConfig{
				Timeout:        Duration(30 * time.Second),
				CircuitBreaker: CircuitBreakerConfig{Enabled: true, Threshold: 3, Timeout: Duration(30 * time.Second)},
			},
			Lock: LockConfig{Backend: BackendNone, TTL: Duration(2 * time.Minute)},
		},
		LLM:       LLMConfig{Timeout: Duration(30 * time.Second)},
		Archive:   ArchiveConfig{ActionsFile: "actions.yaml", Backend: BackendNone},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
		Telemetry: TelemetryConfig{Exporter: BackendNone},
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// parseDuration accepts Go durations and bare integers as seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
