// internal/affordability/coordinator.go
package affordability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
)

// Notifier is told when a calculation completes after the synchronous
// window has already closed.
type Notifier interface {
	CalculationCompleted(ctx context.Context, group *models.Group, calc *models.AffordabilityCalculation)
}

// Options tunes the coordinator's waiting behavior.
type Options struct {
	// SyncWait bounds the blocking window before the caller falls back
	// to background polling.
	SyncWait time.Duration

	// BackgroundRetries bounds the polling attempts after the
	// synchronous window closes.
	BackgroundRetries int

	// RetryInterval spaces background polls.
	RetryInterval time.Duration
}

type groupState struct {
	calc   *models.AffordabilityCalculation
	group  *models.Group
	done   chan struct{}
	cancel context.CancelFunc
}

// Coordinator owns the lifecycle of group affordability calculations:
// NotStarted -> Submitted(pending) -> {WaitingSync | PollingBackground}
// -> Completed | Failed. A group gets exactly one submission per run.
type Coordinator struct {
	api      API
	opts     Options
	notifier Notifier
	log      logger.Logger

	mu     sync.Mutex
	groups map[string]*groupState
}

func NewCoordinator(api API, opts Options, notifier Notifier, log logger.Logger) *Coordinator {
	if opts.SyncWait <= 0 {
		opts.SyncWait = 5 * time.Second
	}
	if opts.BackgroundRetries <= 0 {
		opts.BackgroundRetries = 3
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 10 * time.Second
	}
	return &Coordinator{
		api:      api,
		opts:     opts,
		notifier: notifier,
		log:      log.WithFields(map[string]interface{}{"component": "affordability-coordinator"}),
		groups:   make(map[string]*groupState),
	}
}

// Ensure submits the group calculation if none exists and applies the
// waiting policy. With waitSync it blocks for the bounded window and
// attempts one fetch; if the calculation is still pending it schedules
// background polling and returns the pending snapshot. Without waitSync
// it goes straight to background polling.
func (c *Coordinator) Ensure(ctx context.Context, group *models.Group, waitSync bool) (*models.AffordabilityCalculation, error) {
	c.mu.Lock()
	if state, ok := c.groups[group.ID]; ok {
		// Completed results are reused across runs; a failed calculation
		// is resubmitted.
		if state.calc.Status != models.CalculationFailed {
			snapshot := cloneCalc(state.calc)
			c.mu.Unlock()
			return snapshot, nil
		}
		delete(c.groups, group.ID)
	}
	c.mu.Unlock()

	location := ""
	if len(group.Members) > 0 {
		location = group.Members[0].Zip
	}
	resp, err := c.api.Submit(ctx, group.ExternalID, SubmitRequest{
		EffectiveDate:      group.EffectiveDate,
		PlanYear:           group.PlanYear,
		RatingAreaLocation: location,
	})
	if err != nil {
		return nil, err
	}

	calcID := resp.CalculationID
	if calcID == "" {
		calcID = uuid.NewString()
	}
	calc := &models.AffordabilityCalculation{
		CalculationID: calcID,
		GroupID:       group.ID,
		Status:        models.CalculationPending,
		SubmittedAt:   time.Now().UTC(),
	}
	state := &groupState{calc: calc, group: group, done: make(chan struct{})}
	c.mu.Lock()
	c.groups[group.ID] = state
	c.mu.Unlock()

	c.log.Info("affordability calculation submitted", map[string]interface{}{
		"groupId":       group.ID,
		"calculationId": calc.CalculationID,
		"status":        string(resp.Status),
	})

	if resp.Status == models.CalculationCompleted {
		if err := c.fetchResults(ctx, state); err != nil {
			return nil, err
		}
		return c.snapshot(group.ID), nil
	}

	if waitSync {
		select {
		case <-time.After(c.opts.SyncWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if err := c.fetchResults(ctx, state); err != nil {
			return nil, err
		}
		if c.terminal(group.ID) {
			return c.snapshot(group.ID), nil
		}
	}

	c.startBackground(state)
	return c.snapshot(group.ID), nil
}

// Wait blocks until the group's calculation reaches a terminal state or
// ctx expires.
func (c *Coordinator) Wait(ctx context.Context, groupID string) (*models.AffordabilityCalculation, error) {
	c.mu.Lock()
	state, ok := c.groups[groupID]
	c.mu.Unlock()
	if !ok {
		return nil, errs.NewComplianceUnavailableError(groupID, "not_started")
	}
	select {
	case <-state.done:
		return c.snapshot(groupID), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops any background polling for the group.
func (c *Coordinator) Cancel(groupID string) {
	c.mu.Lock()
	state, ok := c.groups[groupID]
	c.mu.Unlock()
	if ok && state.cancel != nil {
		state.cancel()
	}
}

// Result returns the current snapshot without waiting.
func (c *Coordinator) Result(groupID string) (*models.AffordabilityCalculation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.groups[groupID]
	if !ok {
		return nil, false
	}
	return cloneCalc(state.calc), true
}

// startBackground launches the bounded, cancelable polling task. It is
// detached from the triggering request on purpose: once scheduled it
// outlives the caller.
func (c *Coordinator) startBackground(state *groupState) {
	c.mu.Lock()
	if state.cancel != nil || state.calc.Status != models.CalculationPending {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	state.cancel = cancel
	c.mu.Unlock()

	go func() {
		for attempt := 1; attempt <= c.opts.BackgroundRetries; attempt++ {
			select {
			case <-time.After(c.opts.RetryInterval):
			case <-ctx.Done():
				return
			}

			if err := c.fetchResults(ctx, state); err != nil {
				c.log.Warn("background affordability poll failed", map[string]interface{}{
					"groupId": state.group.ID,
					"attempt": attempt,
					"error":   err.Error(),
				})
				if !errs.IsRetryable(err) {
					c.fail(state, err.Error())
					return
				}
				continue
			}

			c.mu.Lock()
			terminal := state.calc.Terminal()
			c.mu.Unlock()
			if terminal {
				if c.notifier != nil && state.calc.Status == models.CalculationCompleted {
					c.notifier.CalculationCompleted(ctx, state.group, cloneCalc(state.calc))
				}
				return
			}
		}
		c.fail(state, "background polling attempts exhausted")
	}()
}

// fetchResults polls the service and merges completed results verbatim.
func (c *Coordinator) fetchResults(ctx context.Context, state *groupState) error {
	result, err := c.api.Get(ctx, state.calc.CalculationID)
	if err != nil {
		return err
	}

	switch result.Status {
	case models.CalculationCompleted:
		members, err := c.api.GetMembers(ctx, state.calc.CalculationID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		c.mu.Lock()
		if state.calc.Terminal() {
			c.mu.Unlock()
			return nil
		}
		state.calc.Status = models.CalculationCompleted
		state.calc.CompletedAt = &now
		state.calc.PerMember = members
		state.calc.Summary = result.Summary
		if state.calc.Summary.Overall == "" {
			state.calc.Summary.Overall = result.OverallAffordability
		}
		c.mu.Unlock()
		close(state.done)
		c.log.Info("affordability calculation completed", map[string]interface{}{
			"groupId":           state.group.ID,
			"calculationId":     state.calc.CalculationID,
			"affordableMembers": result.Summary.AffordableMembers,
			"totalMembers":      result.Summary.TotalMembers,
		})
	case models.CalculationFailed:
		c.fail(state, "external calculation failed")
	default:
		// still pending
	}
	return nil
}

func (c *Coordinator) fail(state *groupState, reason string) {
	c.mu.Lock()
	if state.calc.Terminal() {
		c.mu.Unlock()
		return
	}
	state.calc.Status = models.CalculationFailed
	state.calc.FailureReason = reason
	c.mu.Unlock()
	close(state.done)
	c.log.Error("affordability calculation failed", map[string]interface{}{
		"groupId": state.group.ID,
		"reason":  reason,
	})
}

func (c *Coordinator) terminal(groupID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.groups[groupID]
	return ok && state.calc.Terminal()
}

func (c *Coordinator) snapshot(groupID string) *models.AffordabilityCalculation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.groups[groupID]; ok {
		return cloneCalc(state.calc)
	}
	return nil
}

func cloneCalc(calc *models.AffordabilityCalculation) *models.AffordabilityCalculation {
	out := *calc
	if calc.PerMember != nil {
		out.PerMember = make([]models.MemberCompliance, len(calc.PerMember))
		copy(out.PerMember, calc.PerMember)
	}
	return &out
}
