// Package application provides the workflow engine that takes an operator
// command from classification through planning, review, verification and
// execution.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/ledger"
	"github.com/felixgeelhaar/robotflow/domain/planning"
	"github.com/felixgeelhaar/robotflow/domain/policy"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/sequence"
	"github.com/felixgeelhaar/robotflow/domain/verification"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/distributed/lock"
	"github.com/felixgeelhaar/robotflow/infrastructure/link"
	"github.com/felixgeelhaar/robotflow/infrastructure/llm"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
	"github.com/felixgeelhaar/robotflow/infrastructure/observability"
	"github.com/felixgeelhaar/robotflow/infrastructure/statemachine"
	"github.com/felixgeelhaar/robotflow/infrastructure/telemetry"
)

// DefaultMaxNodeVisits bounds the number of workflow nodes one run may
// enter. Operator revisions do not consume plan attempts, so this is what
// ends an endless revise loop.
const DefaultMaxNodeVisits = 64

// DefaultCellLockTTL is how long an execution holds the cell without
// completing a step.
const DefaultCellLockTTL = 2 * time.Minute

var (
	// ErrNodeLimit indicates a run entered more nodes than allowed.
	ErrNodeLimit = errors.New("workflow node limit reached")
	// ErrCellBusy indicates another execution holds the cell lock.
	ErrCellBusy = errors.New("robot cell is busy")
)

// Engine is the main orchestration service for operator commands.
type Engine struct {
	knowledge   knowledge.Store
	state       robot.StateStore
	history     history.Store
	builder     *planning.Builder
	verifier    *verification.Verifier
	extractor   llm.Extractor
	classifier  llm.Classifier
	answerer    llm.Answerer
	gate        *policy.Gate
	link        robot.Link
	archive     sequence.Archive
	actionsFile string
	publisher   ledger.EventPublisher
	metrics     telemetry.Metrics
	tracer      trace.Tracer
	cellLock    lock.Lock
	cellKey     string
	cellLockTTL time.Duration
	maxAttempts int
	maxVisits   int
	newID       func() string
	now         func() time.Time
}

// EngineConfig contains configuration for the engine.
type EngineConfig struct {
	Knowledge knowledge.Store
	State     robot.StateStore
	History   history.Store

	// Extractor turns commands into intents. Defaults to
	// llm.StructuredExtractor, which only understands intent JSON.
	Extractor llm.Extractor
	// Classifier routes commands. Nil uses the keyword classifier alone.
	Classifier llm.Classifier
	// Answerer answers questions. Nil answers with the raw knowledge context.
	Answerer llm.Answerer

	Reviewer      policy.Reviewer
	ReviewTimeout time.Duration

	// Link dispatches steps. Defaults to a simulator.
	Link robot.Link

	// Archive keeps every verified sequence document, when set.
	Archive sequence.Archive
	// ActionsFile receives the latest verified sequence, when set.
	ActionsFile string

	Publisher ledger.EventPublisher
	Metrics   telemetry.Metrics
	Tracer    trace.Tracer

	// CellLock serializes execution on the cell named CellName. Nil
	// executes without locking.
	CellLock    lock.Lock
	CellName    string
	CellLockTTL time.Duration

	MaxPlanAttempts int
	MaxNodeVisits   int
}

// NewEngine creates a new engine with the given configuration.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Knowledge == nil {
		return nil, errors.New("knowledge store is required")
	}
	if config.State == nil {
		return nil, errors.New("state store is required")
	}
	if config.History == nil {
		return nil, errors.New("history store is required")
	}
	if config.Reviewer == nil {
		return nil, errors.New("reviewer is required")
	}

	e := &Engine{
		knowledge:   config.Knowledge,
		state:       config.State,
		history:     config.History,
		builder:     planning.NewBuilder(config.Knowledge),
		verifier:    verification.NewVerifier(config.Knowledge),
		extractor:   config.Extractor,
		classifier:  config.Classifier,
		answerer:    config.Answerer,
		gate:        policy.NewGate(config.Reviewer, config.ReviewTimeout),
		link:        config.Link,
		archive:     config.Archive,
		actionsFile: config.ActionsFile,
		publisher:   config.Publisher,
		metrics:     config.Metrics,
		tracer:      config.Tracer,
		cellLock:    config.CellLock,
		cellKey:     lock.CellKey(config.CellName),
		cellLockTTL: config.CellLockTTL,
		maxAttempts: config.MaxPlanAttempts,
		maxVisits:   config.MaxNodeVisits,
		newID:       uuid.NewString,
		now:         time.Now,
	}

	// Set defaults
	if e.extractor == nil {
		e.extractor = llm.StructuredExtractor{}
	}
	if e.link == nil {
		e.link = link.NewSimulator(link.DefaultStepDelay)
	}
	if e.publisher == nil {
		e.publisher = ledger.NoOpPublisher{}
	}
	if e.metrics == nil {
		e.metrics = telemetry.NoopMetricsProvider{}
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer(observability.InstrumentationName)
	}
	if e.cellLockTTL <= 0 {
		e.cellLockTTL = DefaultCellLockTTL
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = workflow.DefaultMaxAttempts
	}
	if e.maxVisits <= 0 {
		e.maxVisits = DefaultMaxNodeVisits
	}

	return e, nil
}

// scope is the per-run working set shared by the nodes.
type scope struct {
	run    *workflow.Run
	ledger *ledger.Ledger

	// feedback is the failure text of the previous attempt only.
	feedback string
}

// Run processes one operator command to a terminal state. The returned run
// always carries a response for the operator unless ctx was cancelled.
func (e *Engine) Run(ctx context.Context, input string) (*workflow.Run, error) {
	run, _, err := e.RunWithLedger(ctx, input)
	return run, err
}

// RunWithLedger is Run that also returns the audit trail of the run.
func (e *Engine) RunWithLedger(ctx context.Context, input string) (*workflow.Run, *ledger.Ledger, error) {
	runID := e.newID()
	run := workflow.NewRun(runID, input, e.maxAttempts)
	runLedger := ledger.New(runID)
	sc := &scope{run: run, ledger: runLedger}

	machine, err := statemachine.NewWorkflowMachine()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	interp := statemachine.NewInterpreter(machine, statemachine.NewContext(run, runLedger))

	ctx, span := observability.StartRun(ctx, e.tracer, run)

	logging.Info().
		Add(logging.CorrelationID(runID)).
		Add(logging.Str("command", input)).
		Msg("run started")

	interp.Start()
	defer interp.Stop()
	runLedger.RecordRunStarted(input)

	visits := policy.NewBudget(map[string]int{policy.BudgetNodeVisits: e.maxVisits})
	for !interp.IsTerminal() {
		if err := ctx.Err(); err != nil {
			run.Error = "context cancelled"
			runLedger.RecordRunFailed(run.State, run.Error)
			observability.End(span, err)
			logging.Warn().
				Add(logging.CorrelationID(runID)).
				Add(logging.State(run.State)).
				Msg("run cancelled")
			return run, runLedger, err
		}

		var ev workflow.Event
		if err := visits.Consume(policy.BudgetNodeVisits, 1); err != nil && run.State != workflow.StateFallback {
			run.Error = ErrNodeLimit.Error()
			ev = workflow.Failed(run.Error)
		} else {
			ev = e.enter(ctx, sc)
		}

		from := run.State
		if _, err := interp.Fire(ev); err != nil {
			// A node produced an event its state does not accept.
			logging.Error().
				Add(logging.CorrelationID(runID)).
				Add(logging.State(from)).
				Add(logging.ErrorField(err)).
				Msg("invalid workflow event")
			run.Error = err.Error()
			if _, err := interp.Fire(workflow.Failed(run.Error)); err != nil {
				observability.End(span, err)
				return run, runLedger, err
			}
		}
		e.metrics.RecordTransition(ctx, from, run.State)
	}

	runLedger.RecordRunCompleted(run.Response)
	e.metrics.RecordRun(ctx, run)
	observability.EndRun(span, run)

	if err := e.publisher.Publish(ledger.NewRunFinishedEvent(run)); err != nil {
		logging.Warn().
			Add(logging.CorrelationID(runID)).
			Add(logging.ErrorField(err)).
			Msg("run event not delivered")
	}

	logging.Info().
		Add(logging.CorrelationID(runID)).
		Add(logging.Intent(run.Intent)).
		Add(logging.Fallback(run.Fallback)).
		Add(logging.Attempt(run.PlanAttempt)).
		Add(logging.Duration(run.Duration())).
		Msg("run finished")

	return run, runLedger, nil
}

// enter runs the entry action of the current state inside a node span.
func (e *Engine) enter(ctx context.Context, sc *scope) workflow.Event {
	ctx, span := observability.StartNode(ctx, e.tracer, sc.run)

	var ev workflow.Event
	switch sc.run.State {
	case workflow.StateRouter:
		ev = e.route(ctx, sc)
	case workflow.StatePlanning:
		ev = e.plan(ctx, sc)
	case workflow.StateHumanReview:
		ev = e.review(ctx, sc)
	case workflow.StateVerify:
		ev = e.verify(ctx, sc)
	case workflow.StateExecute:
		ev = e.execute(ctx, sc)
	case workflow.StateQuestion:
		ev = e.answer(ctx, sc)
	case workflow.StateFallback:
		ev = e.fallback(ctx, sc)
	default:
		ev = workflow.Failed(fmt.Sprintf("no node for state %s", sc.run.State))
	}

	var err error
	if ev.Type == workflow.EventFailed {
		err = errors.New(ev.Reason)
	}
	observability.End(span, err)
	return ev
}

// fail records an unexpected collaborator error on the run.
func (e *Engine) fail(sc *scope, op string, err error) workflow.Event {
	sc.run.Error = fmt.Sprintf("%s: %v", op, err)
	logging.Error().
		Add(logging.CorrelationID(sc.run.CorrelationID)).
		Add(logging.State(sc.run.State)).
		Add(logging.Operation(op)).
		Add(logging.ErrorField(err)).
		Msg("node failed")
	return workflow.Failed(sc.run.Error)
}

// MaxPlanAttempts returns the configured attempt budget.
func (e *Engine) MaxPlanAttempts() int {
	return e.maxAttempts
}

// ReviewTimeout returns the human review window.
func (e *Engine) ReviewTimeout() time.Duration {
	return e.gate.Timeout()
}

// Knowledge returns the knowledge store.
func (e *Engine) Knowledge() knowledge.Store {
	return e.knowledge
}

// State returns the robot state store.
func (e *Engine) State() robot.StateStore {
	return e.state
}

// History returns the run history store.
func (e *Engine) History() history.Store {
	return e.history
}
