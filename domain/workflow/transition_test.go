package workflow

import (
	"errors"
	"testing"
)

func TestTransition_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		from     State
		ev       Event
		attempt  int
		want     State
		wantAtt  int
		fallback FallbackReason
	}{
		{"router action", StateRouter, Classified(IntentAction, false), 1, StatePlanning, 1, ReasonNone},
		{"router replay", StateRouter, Classified(IntentAction, true), 1, StateHumanReview, 1, ReasonNone},
		{"router question", StateRouter, Classified(IntentQuestion, false), 1, StateQuestion, 1, ReasonNone},
		{"router unknown", StateRouter, Classified(IntentUnknown, false), 1, StateFallback, 1, ReasonUnknownIntent},
		{"router replay missing", StateRouter, ReplayUnavailable("gone"), 1, StateFallback, 1, ReasonReplayUnavailable},
		{"plan built", StatePlanning, PlanBuilt(), 1, StateHumanReview, 1, ReasonNone},
		{"plan failed first", StatePlanning, PlanFailed("x"), 1, StatePlanning, 2, ReasonNone},
		{"plan failed last", StatePlanning, PlanFailed("x"), 3, StateFallback, 3, ReasonAttemptsExhausted},
		{"approved", StateHumanReview, Reviewed(DecisionApproved), 2, StateVerify, 2, ReasonNone},
		{"revision keeps attempt", StateHumanReview, Reviewed(DecisionRevision), 2, StatePlanning, 2, ReasonNone},
		{"declined", StateHumanReview, Reviewed(DecisionDeclined), 1, StateFallback, 1, ReasonDeclined},
		{"timeout", StateHumanReview, Reviewed(DecisionTimeout), 1, StateFallback, 1, ReasonTimeout},
		{"valid", StateVerify, Verified(true), 1, StateExecute, 1, ReasonNone},
		{"invalid on attempt 2", StateVerify, Verified(false), 2, StatePlanning, 3, ReasonNone},
		{"invalid on attempt 3", StateVerify, Verified(false), 3, StateFallback, 3, ReasonAttemptsExhausted},
		{"execute done", StateExecute, Completed(), 1, StateTerminal, 1, ReasonNone},
		{"question done", StateQuestion, Completed(), 1, StateTerminal, 1, ReasonNone},
		{"fallback done", StateFallback, Completed(), 1, StateTerminal, 1, ReasonNone},
		{"system error", StateVerify, Failed("boom"), 1, StateFallback, 1, ReasonSystemError},
		{"execute error", StateExecute, Failed("link down"), 1, StateFallback, 1, ReasonSystemError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Transition(tt.from, tt.ev, tt.attempt, DefaultMaxAttempts)
			if err != nil {
				t.Fatalf("Transition() error: %v", err)
			}
			if got.State != tt.want || got.Attempt != tt.wantAtt || got.Fallback != tt.fallback {
				t.Errorf("Transition() = %+v, want {%s %d %q}", got, tt.want, tt.wantAtt, tt.fallback)
			}
			if !CanTransition(tt.from, got.State) {
				t.Errorf("edge %s -> %s missing from allowed table", tt.from, got.State)
			}
		})
	}
}

func TestTransition_Rejects(t *testing.T) {
	t.Parallel()

	if _, err := Transition(StatePlanning, Reviewed(DecisionApproved), 1, 3); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("review in planning: error = %v, want ErrInvalidTransition", err)
	}
	if _, err := Transition(StateTerminal, Completed(), 1, 3); !errors.Is(err, ErrRunTerminated) {
		t.Errorf("terminal: error = %v, want ErrRunTerminated", err)
	}
	if _, err := Transition(StateHumanReview, Reviewed("maybe"), 1, 3); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("unknown decision: error = %v, want ErrInvalidTransition", err)
	}
}

func TestRun_RetryBudget(t *testing.T) {
	t.Parallel()

	r := NewRun("id", "scan station b", 3)
	mustFire := func(ev Event) {
		t.Helper()
		if _, err := r.Fire(ev); err != nil {
			t.Fatalf("Fire(%s) in %s: %v", ev.Type, r.State, err)
		}
	}

	mustFire(Classified(IntentAction, false))
	for i := 0; i < 2; i++ {
		mustFire(PlanBuilt())
		mustFire(Reviewed(DecisionApproved))
		mustFire(Verified(false))
		if r.State != StatePlanning {
			t.Fatalf("after failure %d state = %s, want planning", i+1, r.State)
		}
	}
	if r.PlanAttempt != 3 {
		t.Fatalf("PlanAttempt = %d, want 3", r.PlanAttempt)
	}

	mustFire(PlanBuilt())
	mustFire(Reviewed(DecisionRevision))
	if r.PlanAttempt != 3 {
		t.Errorf("revision consumed an attempt: %d", r.PlanAttempt)
	}
	mustFire(PlanBuilt())
	mustFire(Reviewed(DecisionApproved))
	mustFire(Verified(false))
	if r.State != StateFallback || r.Fallback != ReasonAttemptsExhausted {
		t.Fatalf("state = %s reason = %s, want fallback/attempts_exhausted", r.State, r.Fallback)
	}
	if r.PlanAttempt != r.MaxAttempts {
		t.Errorf("PlanAttempt = %d after exhaustion, want max %d", r.PlanAttempt, r.MaxAttempts)
	}
	mustFire(Completed())
	if !r.State.IsTerminal() || r.EndTime.IsZero() {
		t.Error("run should be terminal with an end time")
	}
}

func TestRun_Defaults(t *testing.T) {
	t.Parallel()

	r := NewRun("0123456789abcdef", "x", 0)
	if r.MaxAttempts != DefaultMaxAttempts || r.PlanAttempt != 1 || r.State != StateRouter {
		t.Errorf("NewRun defaults = %+v", r)
	}
	if r.ShortID() != "01234567" {
		t.Errorf("ShortID() = %q", r.ShortID())
	}
	if ShortID("abc") != "abc" {
		t.Error("ShortID should keep short ids")
	}
}

func TestState_IsValid(t *testing.T) {
	t.Parallel()

	for _, s := range AllStates() {
		if !s.IsValid() {
			t.Errorf("State(%q).IsValid() = false", s)
		}
	}
	if State("sleeping").IsValid() {
		t.Error("unknown state reported valid")
	}
}

func TestParseIntentClass(t *testing.T) {
	t.Parallel()

	tests := map[string]IntentClass{
		"action":   IntentAction,
		"question": IntentQuestion,
		"unknown":  IntentUnknown,
		"":         IntentUnknown,
		"ACTION":   IntentUnknown,
	}
	for in, want := range tests {
		if got := ParseIntentClass(in); got != want {
			t.Errorf("ParseIntentClass(%q) = %q, want %q", in, got, want)
		}
	}
}
