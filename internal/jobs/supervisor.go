package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/oeis/internal/oeis"
)

// ErrAborted marks a task that stopped because its supervisor was shut down.
var ErrAborted = errors.New("job aborted")

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// OutcomeKind classifies how a job ended.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Reason explains an OutcomeCancelled event.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonPanic
	ReasonAborted
)

func (r Reason) String() string {
	switch r {
	case ReasonPanic:
		return "panic"
	case ReasonAborted:
		return "aborted"
	default:
		return "none"
	}
}

// OutcomeEvent is emitted exactly once per delivered job.
type OutcomeEvent struct {
	JobID     string
	Slot      Slot
	Job       Job
	Kind      OutcomeKind
	Payload   any
	Err       error
	Reason    Reason
	StartedAt time.Time
	Elapsed   time.Duration
}

// Message returns a human-readable description of a failed or cancelled outcome.
func (e OutcomeEvent) Message() string {
	switch e.Kind {
	case OutcomeFailure:
		return e.Job.failureMessage(e.Err)
	case OutcomeCancelled:
		if e.Reason == ReasonPanic {
			return e.Job.panicMessage()
		}
		return e.Job.Describe() + " cancelled"
	default:
		return ""
	}
}

// Response returns the payload of a successful search page.
func (e OutcomeEvent) Response() (oeis.Response, bool) {
	r, ok := e.Payload.(oeis.Response)
	return r, ok
}

// Sequence returns the payload of a successful lookup or random pick.
func (e OutcomeEvent) Sequence() (*oeis.Sequence, bool) {
	s, ok := e.Payload.(*oeis.Sequence)
	return s, ok && s != nil
}

// BFile returns the payload of a successful extended fetch.
func (e OutcomeEvent) BFile() ([]oeis.BFileEntry, bool) {
	b, ok := e.Payload.([]oeis.BFileEntry)
	return b, ok
}

type task struct {
	id        string
	job       Job
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	cancelled bool

	// Written by the task goroutine before done is closed.
	payload any
	err     error
}

func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Supervisor runs at most one job per slot in the background and hands back
// their outcomes through Poll, which never blocks.
type Supervisor struct {
	ctx     context.Context
	stop    context.CancelFunc
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	slots   [numSlots]*task
	orphans []*task
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used for discarded outcomes and failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the time source used for start times and durations.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// NewSupervisor creates a Supervisor whose tasks are children of ctx.
// Cancelling ctx aborts every running task.
func NewSupervisor(ctx context.Context, f Fetcher, opts ...Option) *Supervisor {
	ctx, stop := context.WithCancel(ctx)
	s := &Supervisor{
		ctx:     ctx,
		stop:    stop,
		fetcher: f,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches job in its slot and returns the job ID. A job already
// occupying the slot is cancelled and its result will be discarded.
func (s *Supervisor) Start(job Job) string {
	slot := job.Slot()

	s.mu.Lock()
	defer s.mu.Unlock()

	if old := s.slots[slot]; old != nil {
		old.cancelled = true
		old.cancel()
		s.orphans = append(s.orphans, old)
		s.logger.Debug("job superseded", "slot", slot, "job_id", old.id, "job", old.job.Describe())
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{
		id:        uuid.New().String(),
		job:       job,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: s.now(),
	}
	s.slots[slot] = t
	recordStart(slot)

	go s.run(t)

	s.logger.Debug("job started", "slot", slot, "job_id", t.id, "job", job.Describe())
	return t.id
}

func (s *Supervisor) run(t *task) {
	defer close(t.done)
	defer t.cancel()
	defer func() {
		if r := recover(); r != nil {
			t.payload = nil
			t.err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	t.payload, t.err = t.job.run(t.ctx, s.fetcher)
}

// Cancel signals the job in slot to stop. The slot stays busy until the task
// returns; its outcome is then dropped instead of delivered.
func (s *Supervisor) Cancel(slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.slots[slot]
	if t == nil || t.cancelled {
		return
	}
	t.cancelled = true
	t.cancel()
	s.logger.Debug("job cancelled", "slot", slot, "job_id", t.id)
}

// Busy reports whether slot holds a job that has not been polled yet.
func (s *Supervisor) Busy(slot Slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[slot] != nil
}

// Active returns the number of busy slots.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.slots {
		if t != nil {
			n++
		}
	}
	return n
}

// Poll collects the outcomes of finished jobs without blocking. Each started
// job yields at most one event; cancelled and superseded jobs yield none.
func (s *Supervisor) Poll() []OutcomeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainOrphans()

	var events []OutcomeEvent
	for i, t := range s.slots {
		if t == nil || !t.finished() {
			continue
		}
		s.slots[i] = nil

		if t.cancelled {
			s.discard(t, "cancelled")
			continue
		}

		ev := s.classify(t)
		recordOutcome(ev)
		s.logOutcome(ev)
		events = append(events, ev)
	}
	return events
}

func (s *Supervisor) drainOrphans() {
	kept := s.orphans[:0]
	for _, t := range s.orphans {
		if t.finished() {
			s.discard(t, "superseded")
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(s.orphans); i++ {
		s.orphans[i] = nil
	}
	s.orphans = kept
}

func (s *Supervisor) discard(t *task, why string) {
	elapsed := s.now().Sub(t.startedAt)
	recordDiscard(t.job.Slot(), elapsed)
	s.logger.Debug("job outcome discarded",
		"slot", t.job.Slot(), "job_id", t.id, "job", t.job.Describe(),
		"why", why, "error", t.err, "elapsed", elapsed)
}

func (s *Supervisor) classify(t *task) OutcomeEvent {
	ev := OutcomeEvent{
		JobID:     t.id,
		Slot:      t.job.Slot(),
		Job:       t.job,
		StartedAt: t.startedAt,
		Elapsed:   s.now().Sub(t.startedAt),
	}

	var pe *PanicError
	switch {
	case errors.As(t.err, &pe):
		ev.Kind = OutcomeCancelled
		ev.Reason = ReasonPanic
		ev.Err = t.err
	case t.err != nil && errors.Is(t.err, context.Canceled) && s.ctx.Err() != nil:
		ev.Kind = OutcomeCancelled
		ev.Reason = ReasonAborted
		ev.Err = fmt.Errorf("%w: %v", ErrAborted, t.err)
	case t.err != nil:
		ev.Kind = OutcomeFailure
		ev.Err = t.err
	default:
		ev.Kind = OutcomeSuccess
		ev.Payload = t.payload
	}
	return ev
}

func (s *Supervisor) logOutcome(ev OutcomeEvent) {
	switch ev.Kind {
	case OutcomeSuccess:
		s.logger.Debug("job succeeded", "slot", ev.Slot, "job_id", ev.JobID, "elapsed", ev.Elapsed)
	case OutcomeFailure:
		s.logger.Warn("job failed", "slot", ev.Slot, "job_id", ev.JobID, "job", ev.Job.Describe(), "error", ev.Err)
	case OutcomeCancelled:
		attrs := []any{"slot", ev.Slot, "job_id", ev.JobID, "job", ev.Job.Describe(), "reason", ev.Reason, "error", ev.Err}
		if pe := new(PanicError); errors.As(ev.Err, &pe) {
			attrs = append(attrs, "stack", string(pe.Stack))
		}
		s.logger.Error("job terminated abnormally", attrs...)
	}
}

// Shutdown aborts every running job and waits up to timeout for the tasks to
// return. Outcomes still pending are abandoned.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	s.stop()

	s.mu.Lock()
	var pending []*task
	for _, t := range s.slots {
		if t != nil {
			pending = append(pending, t)
		}
	}
	pending = append(pending, s.orphans...)
	s.mu.Unlock()

	deadline := time.After(timeout)
	for _, t := range pending {
		select {
		case <-t.done:
		case <-deadline:
			s.logger.Warn("shutdown timed out waiting for jobs", "pending", len(pending))
			return
		}
	}
}
