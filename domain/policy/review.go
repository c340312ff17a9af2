package policy

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// ReviewRequest is the plan presented to an operator for approval.
type ReviewRequest struct {
	CorrelationID string        `json:"correlation_id"`
	Command       string        `json:"command"`
	Plan          robot.Plan    `json:"plan"`
	Attempt       int           `json:"attempt"`
	Timeout       time.Duration `json:"timeout"`
	Deadline      time.Time     `json:"deadline"`
}

// ReviewResponse is an operator's answer.
type ReviewResponse struct {
	Decision workflow.Decision `json:"decision"`
	Comments string            `json:"comments,omitempty"`
	Reviewer string            `json:"reviewer,omitempty"`
}

// Reviewer presents a plan to a human and returns their decision.
// Implementations must return when ctx is done.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error)
}

// ReviewerFunc adapts a function to the Reviewer interface.
type ReviewerFunc func(ctx context.Context, req ReviewRequest) (ReviewResponse, error)

// Review calls f.
func (f ReviewerFunc) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	return f(ctx, req)
}

// AutoReviewer approves every plan.
type AutoReviewer struct {
	name string
}

// NewAutoReviewer creates a reviewer that approves everything.
func NewAutoReviewer(name string) *AutoReviewer {
	return &AutoReviewer{name: name}
}

// Review approves the request.
func (a *AutoReviewer) Review(_ context.Context, _ ReviewRequest) (ReviewResponse, error) {
	return ReviewResponse{Decision: workflow.DecisionApproved, Reviewer: a.name}, nil
}

// DenyReviewer declines every plan.
type DenyReviewer struct {
	reason string
}

// NewDenyReviewer creates a reviewer that declines everything.
func NewDenyReviewer(reason string) *DenyReviewer {
	return &DenyReviewer{reason: reason}
}

// Review declines the request.
func (d *DenyReviewer) Review(_ context.Context, _ ReviewRequest) (ReviewResponse, error) {
	return ReviewResponse{Decision: workflow.DecisionDeclined, Comments: d.reason, Reviewer: "deny"}, nil
}

// Gate runs one blocking review per call, bounded by a deadline.
type Gate struct {
	reviewer Reviewer
	timeout  time.Duration
	now      func() time.Time
}

// NewGate creates a review gate. A non-positive timeout uses the default.
func NewGate(reviewer Reviewer, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = workflow.DefaultReviewTimeout
	}
	return &Gate{reviewer: reviewer, timeout: timeout, now: time.Now}
}

// Timeout returns the review window.
func (g *Gate) Timeout() time.Duration {
	return g.timeout
}

type reviewResult struct {
	resp ReviewResponse
	err  error
}

// Await presents req and waits for a decision or the deadline, whichever
// comes first. A request without a deadline gets now plus the gate
// timeout; a caller that records the deadline passes it in so the recorded
// and the enforced deadline are the same instant. An elapsed deadline
// yields DecisionTimeout, not an error. Cancellation of ctx returns
// ctx.Err().
func (g *Gate) Await(ctx context.Context, req ReviewRequest) (workflow.Review, error) {
	req.Timeout = g.timeout
	if req.Deadline.IsZero() {
		req.Deadline = g.now().Add(g.timeout)
	}

	rctx, cancel := context.WithDeadline(ctx, req.Deadline)
	defer cancel()

	timer := time.NewTimer(max(time.Until(req.Deadline), 0))
	defer timer.Stop()

	done := make(chan reviewResult, 1)
	go func() {
		resp, err := g.reviewer.Review(rctx, req)
		done <- reviewResult{resp: resp, err: err}
	}()

	timeout := workflow.Review{Decision: workflow.DecisionTimeout, DecidedAt: g.now()}

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
				timeout.DecidedAt = g.now()
				return timeout, nil
			}
			return workflow.Review{}, res.err
		}
		if res.resp.Decision == "" {
			return workflow.Review{}, ErrInvalidDecision
		}
		return workflow.Review{
			Decision:  res.resp.Decision,
			Comments:  res.resp.Comments,
			Reviewer:  res.resp.Reviewer,
			DecidedAt: g.now(),
		}, nil
	case <-timer.C:
		timeout.DecidedAt = g.now()
		return timeout, nil
	case <-ctx.Done():
		return workflow.Review{}, ctx.Err()
	}
}
