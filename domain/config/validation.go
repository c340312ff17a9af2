package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates application configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *AppConfig) ValidationErrors {
	v.errors = nil

	v.validateWorkflow(config)
	v.validateKnowledge(config)
	v.validateStore("state", config.State)
	v.validateStore("history", config.History)
	v.validateExecution(config)
	v.validateArchive(config)
	v.validateNotify(config)
	v.validateLogging(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) oneOf(path, value string, allowed ...string) bool {
	if value == "" || slices.Contains(allowed, value) {
		return true
	}
	v.addError(path, fmt.Sprintf("invalid value %q (want one of %s)", value, strings.Join(allowed, ", ")))
	return false
}

func (v *Validator) validateWorkflow(config *AppConfig) {
	if config.Workflow.MaxPlanAttempts < 0 {
		v.addError("workflow.max_plan_attempts", "max_plan_attempts must be non-negative")
	}
	if config.Workflow.ReviewTimeout < 0 {
		v.addError("workflow.review_timeout", "review_timeout must be non-negative")
	}
	v.oneOf("workflow.review_mode", config.Workflow.ReviewMode, ReviewTerminal, ReviewAuto, ReviewTelegram)
	if config.Workflow.ReviewMode == ReviewTelegram {
		if config.Notify.TelegramToken == "" {
			v.addError("notify.telegram_token", "telegram_token is required for telegram review")
		}
		if config.Notify.TelegramChatID == 0 {
			v.addError("notify.telegram_chat_id", "telegram_chat_id is required for telegram review")
		}
	}
}

func (v *Validator) validateKnowledge(config *AppConfig) {
	k := config.Knowledge
	if v.oneOf("knowledge.backend", k.Backend, BackendMemory, BackendNeo4j) {
		switch k.Backend {
		case BackendMemory, "":
			if k.GraphFile == "" {
				v.addError("knowledge.graph_file", "graph_file is required for the memory backend")
			}
		case BackendNeo4j:
			if k.Neo4j.URI == "" {
				v.addError("knowledge.neo4j.uri", "uri is required for the neo4j backend")
			}
			if k.Watch {
				v.addError("knowledge.watch", "watch is only supported by the memory backend")
			}
		}
	}
	if v.oneOf("knowledge.cache.backend", k.Cache.Backend, BackendNone, BackendMemory, BackendRedis, BackendBadger, BackendDynamo) {
		switch k.Cache.Backend {
		case BackendRedis:
			if k.Cache.Addr == "" {
				v.addError("knowledge.cache.addr", "addr is required for the redis cache")
			}
		case BackendBadger:
			if k.Cache.Dir == "" {
				v.addError("knowledge.cache.dir", "dir is required for the badger cache")
			}
		}
	}
	if k.Cache.TTL < 0 {
		v.addError("knowledge.cache.ttl", "ttl must be non-negative")
	}
}

func (v *Validator) validateStore(path string, sc StoreConfig) {
	if !v.oneOf(path+".backend", sc.Backend, BackendMemory, BackendSQLite, BackendPostgres, BackendMongo) {
		return
	}
	switch sc.Backend {
	case BackendSQLite:
		if sc.Path == "" {
			v.addError(path+".path", "path is required for the sqlite backend")
		}
		v.oneOf(path+".driver", sc.Driver, DriverMattn, DriverPureGo)
	case BackendPostgres, BackendMongo:
		if sc.DSN == "" {
			v.addError(path+".dsn", "dsn is required for the "+sc.Backend+" backend")
		}
	}
}

func (v *Validator) validateExecution(config *AppConfig) {
	e := config.Execution
	if v.oneOf("execution.mode", e.Mode, ModeSimulation, ModeSocket) && e.Mode == ModeSocket {
		if e.Port <= 0 || e.Port > 65535 {
			v.addError("execution.port", fmt.Sprintf("invalid port: %d", e.Port))
		}
	}

	if v.oneOf("execution.lock.backend", e.Lock.Backend, BackendNone, BackendMemory, BackendRedis) &&
		e.Lock.Backend != "" && e.Lock.Backend != BackendNone {
		if e.Lock.Backend == BackendRedis && e.Lock.Addr == "" {
			v.addError("execution.lock.addr", "addr is required for the redis lock")
		}
		if e.Lock.TTL <= 0 {
			v.addError("execution.lock.ttl", "ttl must be positive when the lock is enabled")
		}
	}

	r := e.Resilience
	if r.Retry.Enabled {
		if r.Retry.MaxAttempts <= 0 {
			v.addError("execution.resilience.retry.max_attempts", "max_attempts must be positive when enabled")
		}
		if r.Retry.Multiplier < 1 {
			v.addError("execution.resilience.retry.multiplier", "multiplier must be >= 1")
		}
	}
	if r.CircuitBreaker.Enabled && r.CircuitBreaker.Threshold <= 0 {
		v.addError("execution.resilience.circuit_breaker.threshold", "threshold must be positive when enabled")
	}
	if r.Bulkhead.Enabled && r.Bulkhead.MaxConcurrent <= 0 {
		v.addError("execution.resilience.bulkhead.max_concurrent", "max_concurrent must be positive when enabled")
	}
}

func (v *Validator) validateArchive(config *AppConfig) {
	a := config.Archive
	if !v.oneOf("archive.backend", a.Backend, BackendNone, BackendFilesystem, BackendS3, BackendGCS, BackendAzure) {
		return
	}
	switch a.Backend {
	case BackendFilesystem:
		if a.Dir == "" {
			v.addError("archive.dir", "dir is required for the filesystem archive")
		}
	case BackendS3, BackendGCS:
		if a.Bucket == "" {
			v.addError("archive.bucket", "bucket is required")
		}
	case BackendAzure:
		if a.Bucket == "" {
			v.addError("archive.bucket", "container is required")
		}
		if a.Account == "" {
			v.addError("archive.account", "account is required for azblob")
		}
	}
}

func (v *Validator) validateNotify(config *AppConfig) {
	hook := config.Notify.DiscordWebhook
	if hook != "" && !strings.HasPrefix(hook, "https://") {
		v.addError("notify.discord_webhook", "webhook must be an https URL")
	}
}

func (v *Validator) validateLogging(config *AppConfig) {
	v.oneOf("logging.format", config.Logging.Format, "console", "json")
	v.oneOf("logging.level", strings.ToLower(config.Logging.Level), "trace", "debug", "info", "warn", "error")
	v.oneOf("telemetry.exporter", config.Telemetry.Exporter, "otlp", "stdout", BackendNone)
}
