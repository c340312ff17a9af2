package policy

import "errors"

// Domain errors for review and budgets.
var (
	// ErrInvalidDecision indicates a reviewer returned no usable decision.
	ErrInvalidDecision = errors.New("invalid review decision")

	// ErrReviewUnavailable indicates the review channel could not be reached.
	ErrReviewUnavailable = errors.New("review channel unavailable")

	// ErrBudgetExceeded indicates a budget counter reached its limit.
	ErrBudgetExceeded = errors.New("budget exceeded")
)
