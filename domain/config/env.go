package config

import (
	"errors"
	"fmt"
	"strconv"
)

// ApplyEnv overrides configuration values from the process environment.
// lookup is usually os.LookupEnv.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalidEnvValue, key, v))
			return
		}
		*dst = n
	}

	num("MAX_PLAN_ATTEMPTS", &c.Workflow.MaxPlanAttempts)
	if v, ok := lookup("HUMAN_REVIEW_TIMEOUT"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: HUMAN_REVIEW_TIMEOUT=%q", ErrInvalidEnvValue, v))
		} else {
			c.Workflow.ReviewTimeout = Duration(d)
		}
	}
	str("REVIEW_MODE", &c.Workflow.ReviewMode)

	str("ROBOT_EXECUTION_MODE", &c.Execution.Mode)
	str("ROBOT_SOCKET_HOST", &c.Execution.Host)
	num("ROBOT_SOCKET_PORT", &c.Execution.Port)

	if v, ok := lookup("SQLITE_STATE_DB"); ok && v != "" {
		c.State.Backend = BackendSQLite
		c.State.Path = v
	}
	if v, ok := lookup("SQLITE_HISTORY_DB"); ok && v != "" {
		c.History.Backend = BackendSQLite
		c.History.Path = v
	}

	if v, ok := lookup("NEO4J_URI"); ok && v != "" {
		c.Knowledge.Backend = BackendNeo4j
		c.Knowledge.Neo4j.URI = v
	}
	str("NEO4J_USER", &c.Knowledge.Neo4j.User)
	str("NEO4J_PASSWORD", &c.Knowledge.Neo4j.Password)

	str("MODEL_PROVIDER", &c.LLM.Provider)
	str("MODEL_NAME", &c.LLM.Model)
	str("OPENAI_API_KEY", &c.LLM.Token)
	if c.LLM.Provider == "ollama" {
		str("OLLAMA_MODEL", &c.LLM.Model)
		str("OLLAMA_URL", &c.LLM.BaseURL)
	}

	str("DISCORD_WEBHOOK_URL", &c.Notify.DiscordWebhook)
	str("TELEGRAM_BOT_TOKEN", &c.Notify.TelegramToken)
	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: TELEGRAM_CHAT_ID=%q", ErrInvalidEnvValue, v))
		} else {
			c.Notify.TelegramChatID = id
		}
	}

	str("LOG_LEVEL", &c.Logging.Level)

	return errors.Join(errs...)
}
