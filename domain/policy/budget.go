// Package policy provides the review gate and the run budgets of the
// workflow.
package policy

import (
	"sort"
	"sync"
)

// Budget names used by the engine.
const (
	// BudgetNodeVisits counts workflow nodes entered by one run.
	BudgetNodeVisits = "node_visits"
)

// Budget tracks consumption of named counters against limits. Counters
// without a limit are tracked but never exhausted.
type Budget struct {
	mu       sync.RWMutex
	limits   map[string]int
	consumed map[string]int
}

// BudgetSnapshot is an immutable view of budget state.
type BudgetSnapshot struct {
	Limits    map[string]int `json:"limits"`
	Consumed  map[string]int `json:"consumed"`
	Remaining map[string]int `json:"remaining"`
}

// NewBudget creates a budget with the given limits.
func NewBudget(limits map[string]int) *Budget {
	b := &Budget{
		limits:   make(map[string]int, len(limits)),
		consumed: make(map[string]int, len(limits)),
	}
	for k, v := range limits {
		b.limits[k] = v
		b.consumed[k] = 0
	}
	return b
}

// CanConsume checks if the budget allows consuming the given amount.
func (b *Budget) CanConsume(name string, amount int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit, ok := b.limits[name]
	return !ok || b.consumed[name]+amount <= limit
}

// Consume deducts from the budget if allowed.
func (b *Budget) Consume(name string, amount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit, ok := b.limits[name]; ok && b.consumed[name]+amount > limit {
		return ErrBudgetExceeded
	}
	b.consumed[name] += amount
	return nil
}

// Remaining returns what is left of name, or -1 when it has no limit.
func (b *Budget) Remaining(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit, ok := b.limits[name]
	if !ok {
		return -1
	}
	return limit - b.consumed[name]
}

// Snapshot returns an immutable view of the current budget state.
func (b *Budget) Snapshot() BudgetSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := BudgetSnapshot{
		Limits:    make(map[string]int, len(b.limits)),
		Consumed:  make(map[string]int, len(b.consumed)),
		Remaining: make(map[string]int, len(b.limits)),
	}
	for k, v := range b.consumed {
		s.Consumed[k] = v
	}
	for k, v := range b.limits {
		s.Limits[k] = v
		s.Remaining[k] = v - b.consumed[k]
	}
	return s
}

// Exhausted returns the names of the fully consumed counters, sorted.
func (b *Budget) Exhausted() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var names []string
	for name, limit := range b.limits {
		if b.consumed[name] >= limit {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
