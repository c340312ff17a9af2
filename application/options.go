package application

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/ledger"
	"github.com/felixgeelhaar/robotflow/domain/policy"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/sequence"
	"github.com/felixgeelhaar/robotflow/infrastructure/distributed/lock"
	"github.com/felixgeelhaar/robotflow/infrastructure/llm"
	"github.com/felixgeelhaar/robotflow/infrastructure/telemetry"
)

// Option configures the engine.
type Option func(*EngineConfig)

// WithKnowledge sets the knowledge store.
func WithKnowledge(s knowledge.Store) Option {
	return func(c *EngineConfig) {
		c.Knowledge = s
	}
}

// WithStateStore sets the robot state store.
func WithStateStore(s robot.StateStore) Option {
	return func(c *EngineConfig) {
		c.State = s
	}
}

// WithHistory sets the run history store.
func WithHistory(s history.Store) Option {
	return func(c *EngineConfig) {
		c.History = s
	}
}

// WithExtractor sets the intent extractor.
func WithExtractor(x llm.Extractor) Option {
	return func(c *EngineConfig) {
		c.Extractor = x
	}
}

// WithClassifier sets the router's model classifier.
func WithClassifier(cl llm.Classifier) Option {
	return func(c *EngineConfig) {
		c.Classifier = cl
	}
}

// WithAnswerer sets the question answerer.
func WithAnswerer(a llm.Answerer) Option {
	return func(c *EngineConfig) {
		c.Answerer = a
	}
}

// WithReviewer sets the human review channel and its window.
func WithReviewer(r policy.Reviewer, timeout time.Duration) Option {
	return func(c *EngineConfig) {
		c.Reviewer = r
		c.ReviewTimeout = timeout
	}
}

// WithLink sets the robot link.
func WithLink(l robot.Link) Option {
	return func(c *EngineConfig) {
		c.Link = l
	}
}

// WithArchive sets the sequence archive.
func WithArchive(a sequence.Archive) Option {
	return func(c *EngineConfig) {
		c.Archive = a
	}
}

// WithActionsFile sets the path of the actions file.
func WithActionsFile(path string) Option {
	return func(c *EngineConfig) {
		c.ActionsFile = path
	}
}

// WithPublisher sets the run event publisher.
func WithPublisher(p ledger.EventPublisher) Option {
	return func(c *EngineConfig) {
		c.Publisher = p
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *EngineConfig) {
		c.Metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *EngineConfig) {
		c.Tracer = t
	}
}

// WithCellLock serializes execution on the named cell.
func WithCellLock(l lock.Lock, cell string, ttl time.Duration) Option {
	return func(c *EngineConfig) {
		c.CellLock = l
		c.CellName = cell
		c.CellLockTTL = ttl
	}
}

// WithMaxPlanAttempts sets the attempt budget.
func WithMaxPlanAttempts(n int) Option {
	return func(c *EngineConfig) {
		c.MaxPlanAttempts = n
	}
}

// WithMaxNodeVisits bounds the nodes one run may enter.
func WithMaxNodeVisits(n int) Option {
	return func(c *EngineConfig) {
		c.MaxNodeVisits = n
	}
}

// NewEngineWithOptions creates an engine from functional options.
func NewEngineWithOptions(opts ...Option) (*Engine, error) {
	var config EngineConfig
	for _, opt := range opts {
		opt(&config)
	}
	return NewEngine(config)
}
