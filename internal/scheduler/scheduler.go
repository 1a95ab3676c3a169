// Package scheduler gates every external call behind a reservoir-based
// rate limiter with bounded concurrency, FIFO queueing and transparent
// retry of transient transport failures.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/common/metrics"
)

// Call is a unit of external work executed under the scheduler.
type Call func(ctx context.Context) error

// Options tunes one scheduler instance.
type Options struct {
	Name          string
	ReservoirSize int

	// RefillInterval restores the budget to ReservoirSize on a timer.
	// Zero disables refill entirely: the budget becomes a lifetime quota
	// and exhausting it fails queued work with a trial-limit error.
	RefillInterval time.Duration

	MaxConcurrent int
	MinSpacing    time.Duration
	MaxRetries    int
	RetryBase     time.Duration
}

// Stats is an observability snapshot.
type Stats struct {
	Queued          int `json:"queued"`
	Running         int `json:"running"`
	Done            int `json:"done"`
	RemainingBudget int `json:"remainingBudget"`
}

type task struct {
	service   string
	fn        Call
	ctx       context.Context
	result    chan error
	attempt   int
	notBefore time.Time
	canceled  bool
}

// Scheduler is the single choke point for external I/O.
type Scheduler struct {
	opts Options
	log  logger.Logger

	mu           sync.Mutex
	queue        []*task
	budget       int
	used         int
	running      int
	done         int
	lastDispatch time.Time
	closed       bool

	wake chan struct{}
	stop chan struct{}
}

func New(opts Options, log logger.Logger) *Scheduler {
	if opts.ReservoirSize <= 0 {
		opts.ReservoirSize = 100
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	s := &Scheduler{
		opts:   opts,
		log:    log.WithFields(map[string]interface{}{"scheduler": opts.Name}),
		budget: opts.ReservoirSize,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	go s.loop()
	return s
}

// Do enqueues fn and blocks until it completes, is rejected, or ctx is
// canceled. Transient failures (429/5xx) are retried with exponential
// backoff before the error surfaces; non-retriable errors propagate
// immediately.
func (s *Scheduler) Do(ctx context.Context, service string, fn Call) error {
	t := &task{
		service: service,
		fn:      fn,
		ctx:     ctx,
		result:  make(chan error, 1),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errs.NewServiceUnavailableError(service, fmt.Errorf("scheduler %s is shut down", s.opts.Name))
	}
	if s.lifetimeExhaustedLocked() {
		used, limit := s.used, s.opts.ReservoirSize
		s.mu.Unlock()
		return errs.NewTrialLimitExceededError(used, limit)
	}
	s.queue = append(s.queue, t)
	s.updateGaugesLocked()
	s.mu.Unlock()
	s.signal()

	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		t.canceled = true
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Stats returns a point-in-time snapshot of queue and budget state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Queued:          len(s.queue),
		Running:         s.running,
		Done:            s.done,
		RemainingBudget: s.budget,
	}
}

// Clear fails every queued task without running it. In-flight work is
// unaffected.
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	cleared := s.failQueueLocked(errs.NewServiceUnavailableError(s.opts.Name, fmt.Errorf("queue cleared")))
	s.updateGaugesLocked()
	s.mu.Unlock()
	return cleared
}

// Shutdown stops accepting work. With discard=true queued tasks are
// failed immediately; otherwise the queue drains first. Blocks until
// in-flight work finishes or ctx expires.
func (s *Scheduler) Shutdown(ctx context.Context, discard bool) error {
	s.mu.Lock()
	s.closed = true
	if discard {
		s.failQueueLocked(errs.NewServiceUnavailableError(s.opts.Name, fmt.Errorf("scheduler shutting down")))
	}
	s.updateGaugesLocked()
	s.mu.Unlock()
	s.signal()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		idle := len(s.queue) == 0 && s.running == 0
		s.mu.Unlock()
		if idle {
			close(s.stop)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) lifetimeExhaustedLocked() bool {
	return s.opts.RefillInterval == 0 && s.budget <= 0
}

func (s *Scheduler) failQueueLocked(err error) int {
	n := len(s.queue)
	for _, t := range s.queue {
		t.result <- err
	}
	s.done += n
	s.queue = nil
	return n
}

func (s *Scheduler) updateGaugesLocked() {
	metrics.SchedulerQueueDepth.WithLabelValues(s.opts.Name).Set(float64(len(s.queue)))
	metrics.SchedulerBudget.WithLabelValues(s.opts.Name).Set(float64(s.budget))
}

func (s *Scheduler) loop() {
	var refillC <-chan time.Time
	if s.opts.RefillInterval > 0 {
		ticker := time.NewTicker(s.opts.RefillInterval)
		defer ticker.Stop()
		refillC = ticker.C
	}

	for {
		s.mu.Lock()
		if s.closed && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}

		wait := time.Duration(-1)
		if len(s.queue) > 0 && s.running < s.opts.MaxConcurrent {
			head := s.queue[0]
			switch {
			case head.canceled:
				s.queue = s.queue[1:]
				s.done++
				s.updateGaugesLocked()
				s.mu.Unlock()
				continue
			case s.lifetimeExhaustedLocked():
				used, limit := s.used, s.opts.ReservoirSize
				s.failQueueLocked(errs.NewTrialLimitExceededError(used, limit))
				s.updateGaugesLocked()
				s.mu.Unlock()
				continue
			case s.budget > 0:
				now := time.Now()
				gap := s.opts.MinSpacing - now.Sub(s.lastDispatch)
				if hold := head.notBefore.Sub(now); hold > gap {
					gap = hold
				}
				if gap <= 0 {
					s.dispatchLocked(head)
					s.mu.Unlock()
					continue
				}
				wait = gap
			}
			// budget == 0 with refill pending: block until the next tick
		}
		s.mu.Unlock()

		if wait >= 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.wake:
				timer.Stop()
			case <-refillC:
				timer.Stop()
				s.refill()
			case <-s.stop:
				timer.Stop()
				return
			}
			continue
		}

		select {
		case <-s.wake:
		case <-refillC:
			s.refill()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) refill() {
	s.mu.Lock()
	s.budget = s.opts.ReservoirSize
	s.updateGaugesLocked()
	s.mu.Unlock()
	s.log.Debug("reservoir refilled", map[string]interface{}{
		"budget": s.opts.ReservoirSize,
	})
}

func (s *Scheduler) dispatchLocked(t *task) {
	s.queue = s.queue[1:]
	s.budget--
	s.used++
	s.running++
	s.lastDispatch = time.Now()
	s.updateGaugesLocked()
	go s.run(t)
}

func (s *Scheduler) run(t *task) {
	err := t.fn(t.ctx)

	status := "ok"
	if err != nil {
		status = string(errs.CodeOf(err))
	}
	metrics.ExternalCalls.WithLabelValues(t.service, status).Inc()

	s.mu.Lock()
	s.running--
	if err != nil && errs.IsRetryable(err) && t.attempt < s.opts.MaxRetries && !s.closed && !t.canceled {
		backoff := s.opts.RetryBase * (1 << uint(t.attempt))
		t.attempt++
		t.notBefore = time.Now().Add(backoff)
		s.queue = append(s.queue, t)
		s.updateGaugesLocked()
		s.mu.Unlock()
		s.signal()
		s.log.Warn("retrying external call", map[string]interface{}{
			"service": t.service,
			"attempt": t.attempt,
			"backoff": backoff.String(),
			"error":   err.Error(),
		})
		return
	}
	s.done++
	s.mu.Unlock()
	s.signal()
	t.result <- err
}
