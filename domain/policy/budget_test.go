package policy

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBudget_Consume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		amounts   []int
		counter   string
		wantErr   bool
		remaining int
	}{
		{name: "within limit", amounts: []int{1, 2}, counter: BudgetNodeVisits, remaining: 1},
		{name: "at limit", amounts: []int{4}, counter: BudgetNodeVisits, remaining: 0},
		{name: "over limit", amounts: []int{3, 2}, counter: BudgetNodeVisits, wantErr: true, remaining: 1},
		{name: "unlimited counter", amounts: []int{100}, counter: "replans", remaining: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := NewBudget(map[string]int{BudgetNodeVisits: 4})

			var err error
			for _, n := range tt.amounts {
				if err = b.Consume(tt.counter, n); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Consume() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrBudgetExceeded) {
				t.Errorf("Consume() error = %v, want ErrBudgetExceeded", err)
			}
			if got := b.Remaining(tt.counter); got != tt.remaining {
				t.Errorf("Remaining() = %d, want %d", got, tt.remaining)
			}
		})
	}
}

func TestBudget_CanConsume(t *testing.T) {
	t.Parallel()

	b := NewBudget(map[string]int{BudgetNodeVisits: 2})
	if !b.CanConsume(BudgetNodeVisits, 2) {
		t.Error("CanConsume(2) = false at an untouched limit of 2")
	}
	_ = b.Consume(BudgetNodeVisits, 2)
	if b.CanConsume(BudgetNodeVisits, 1) {
		t.Error("CanConsume(1) = true on an exhausted counter")
	}
	if !b.CanConsume("other", 1000) {
		t.Error("counters without a limit are never exhausted")
	}
}

func TestBudget_SnapshotAndExhausted(t *testing.T) {
	t.Parallel()

	b := NewBudget(map[string]int{BudgetNodeVisits: 3, "reviews": 2})
	_ = b.Consume(BudgetNodeVisits, 1)
	_ = b.Consume("reviews", 2)
	_ = b.Consume("replans", 5)

	want := BudgetSnapshot{
		Limits:    map[string]int{BudgetNodeVisits: 3, "reviews": 2},
		Consumed:  map[string]int{BudgetNodeVisits: 1, "reviews": 2, "replans": 5},
		Remaining: map[string]int{BudgetNodeVisits: 2, "reviews": 0},
	}
	if diff := cmp.Diff(want, b.Snapshot()); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"reviews"}, b.Exhausted()); diff != "" {
		t.Errorf("Exhausted() mismatch (-want +got):\n%s", diff)
	}
}

func TestBudget_Concurrency(t *testing.T) {
	t.Parallel()

	b := NewBudget(map[string]int{BudgetNodeVisits: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = b.Consume(BudgetNodeVisits, 1)
				b.Remaining(BudgetNodeVisits)
			}
		}()
	}
	wg.Wait()

	if got := b.Remaining(BudgetNodeVisits); got != 0 {
		t.Errorf("Remaining() after 1000 consumptions = %d, want 0", got)
	}
}
