// Package api assembles a workflow engine and its adapters from the
// application configuration. The CLI and the MCP server both start here.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/felixgeelhaar/robotflow/application"
	"github.com/felixgeelhaar/robotflow/domain/config"
	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/policy"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
	"github.com/felixgeelhaar/robotflow/infrastructure/mcp"
	"github.com/felixgeelhaar/robotflow/infrastructure/observability"
	"github.com/felixgeelhaar/robotflow/infrastructure/review"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/memory"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/robotflow/infrastructure/telemetry"
)

// Runtime is a configured engine together with the resources it owns.
type Runtime struct {
	Config    config.AppConfig
	Engine    *application.Engine
	Knowledge knowledge.Store
	State     robot.StateStore
	History   history.Store
	Link      robot.Link
	// Console is the terminal reviewer, when review_mode is terminal.
	Console *review.Terminal

	provider *observability.Provider
	watcher  *memory.Watcher
	pools    map[string]*pgxpool.Pool
	mongos   map[string]*mongodb.Client
	version  string

	mu      sync.Mutex
	closers []closer
	closed  bool
}

type closer struct {
	name  string
	close func(context.Context) error
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	version  string
	reviewer policy.Reviewer
	in       io.Reader
	out      io.Writer
	readers  []sdkmetric.Reader
}

// WithVersion sets the service version reported to telemetry and MCP.
func WithVersion(v string) Option {
	return func(o *buildOptions) {
		o.version = v
	}
}

// WithReviewer replaces the reviewer selected by workflow.review_mode.
func WithReviewer(r policy.Reviewer) Option {
	return func(o *buildOptions) {
		o.reviewer = r
	}
}

// WithTerminal sets the streams of the terminal reviewer.
func WithTerminal(in io.Reader, out io.Writer) Option {
	return func(o *buildOptions) {
		o.in = in
		o.out = out
	}
}

// WithMeterReader attaches an extra reader to the SDK meter provider.
func WithMeterReader(r sdkmetric.Reader) Option {
	return func(o *buildOptions) {
		o.readers = append(o.readers, r)
	}
}

// Build opens every adapter named by cfg and wires them into an engine.
// On failure the adapters opened so far are closed again.
func Build(ctx context.Context, cfg config.AppConfig, opts ...Option) (*Runtime, error) {
	o := buildOptions{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	if errs := config.NewValidator().Validate(&cfg); errs.HasErrors() {
		return nil, errs
	}

	rt := &Runtime{Config: cfg, version: o.version}
	if err := rt.build(ctx, o); err != nil {
		return nil, errors.Join(err, rt.Close(context.WithoutCancel(ctx)))
	}

	logging.Info().
		Add(logging.Component("runtime")).
		Add(logging.Str("knowledge", cfg.Knowledge.Backend)).
		Add(logging.Str("state", cfg.State.Backend)).
		Add(logging.Str("history", cfg.History.Backend)).
		Add(logging.Str("execution", rt.Link.Mode())).
		Add(logging.Str("review", cfg.Workflow.ReviewMode)).
		Msg("runtime ready")
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context, o buildOptions) error {
	cfg := rt.Config

	provider, err := observability.New(ctx, observability.FromAppConfig(cfg.Telemetry, o.version), o.readers...)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	rt.provider = provider
	rt.onClose("telemetry", provider.Shutdown)

	var metrics telemetry.Metrics = telemetry.NoopMetricsProvider{}
	if cfg.Telemetry.Metrics {
		mc := telemetry.DefaultMetricsConfig()
		mc.MeterProvider = provider.MeterProvider()
		mp, err := telemetry.NewMetricsProvider(mc)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		metrics = mp
	}

	if rt.Knowledge, err = rt.openKnowledge(ctx, cfg.Knowledge); err != nil {
		return fmt.Errorf("knowledge: %w", err)
	}
	if rt.State, err = rt.openState(ctx, cfg.State); err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	if rt.History, err = rt.openHistory(ctx, cfg.History); err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	if rt.Link, err = rt.openLink(cfg.Execution); err != nil {
		return fmt.Errorf("execution: %w", err)
	}
	cellLock, err := rt.openLock(cfg.Execution.Lock)
	if err != nil {
		return fmt.Errorf("cell lock: %w", err)
	}
	archive, err := rt.openArchive(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	models, err := openModels(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	reviewer := o.reviewer
	if reviewer == nil {
		if reviewer, err = rt.openReviewer(cfg, o.in, o.out); err != nil {
			return fmt.Errorf("review: %w", err)
		}
	}
	if term, ok := reviewer.(*review.Terminal); ok {
		rt.Console = term
	}
	publisher, err := openPublisher(cfg.Notify)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	rt.Engine, err = application.NewEngine(application.EngineConfig{
		Knowledge:       rt.Knowledge,
		State:           rt.State,
		History:         rt.History,
		Extractor:       models.extractor,
		Classifier:      models.classifier,
		Answerer:        models.answerer,
		Reviewer:        reviewer,
		ReviewTimeout:   cfg.Workflow.ReviewTimeout.Duration(),
		Link:            rt.Link,
		Archive:         archive,
		ActionsFile:     cfg.Archive.ActionsFile,
		Publisher:       publisher,
		Metrics:         metrics,
		Tracer:          provider.Tracer(),
		CellLock:        cellLock,
		CellName:        cfg.Name,
		CellLockTTL:     cfg.Execution.Lock.TTL.Duration(),
		MaxPlanAttempts: cfg.Workflow.MaxPlanAttempts,
	})
	return err
}

// Watch reloads the graph file on change until ctx is done. It returns
// at once when knowledge.watch is off.
func (rt *Runtime) Watch(ctx context.Context) error {
	if rt.watcher == nil {
		return nil
	}
	err := rt.watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// MCPServer exposes the planning tools of this runtime over MCP.
func (rt *Runtime) MCPServer() *mcp.Server {
	return mcp.NewServer(mcp.ServerConfig{
		Name:    rt.Config.Name,
		Version: rt.version,
		Instructions: "Use plan_intent to build and verify robot plans and verify_plan to check " +
			"hand written steps. Nothing here moves the robot.",
		Tools: mcp.NewTools(rt.Knowledge, rt.State),
	})
}

func (rt *Runtime) onClose(name string, fn func(context.Context) error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.closers = append(rt.closers, closer{name: name, close: fn})
}

func closeFunc(c io.Closer) func(context.Context) error {
	return func(context.Context) error {
		return c.Close()
	}
}

// Close releases every resource in reverse opening order. It is safe to
// call more than once.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	closers := rt.closers
	rt.closers = nil
	rt.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
