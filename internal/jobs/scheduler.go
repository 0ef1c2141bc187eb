// Package jobs runs the background job pipeline: recurring triggers on
// fixed intervals, one-shot delayed execution, immediate enqueues and
// continuations linked to a parent job's terminal state. A fixed worker
// pool executes invocations; a failing job is marked Failed and never
// takes siblings or the scheduler loop down with it.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"monitord/internal/db"
	"monitord/internal/metrics"
	"monitord/internal/models"
)

// ErrInvalidSchedule is returned when a delayed fire time lies in the
// past. Nothing is enqueued in that case.
var ErrInvalidSchedule = errors.New("fire time is in the past")

// Trigger kinds recorded on job rows.
const (
	TriggerRecurring    = "Recurring"
	TriggerDelayed      = "Delayed"
	TriggerImmediate    = "Immediate"
	TriggerContinuation = "Continuation"
)

// Invocation is what a handler receives: the persisted job plus, for
// continuations, the parent's terminal status.
type Invocation struct {
	ID           string
	Kind         string
	Payload      json.RawMessage
	ParentID     string
	ParentStatus string
}

type Handler func(ctx context.Context, inv Invocation) error

type recurringSpec struct {
	kind     string
	interval time.Duration
}

type pendingCont struct {
	job models.Job
}

type Scheduler struct {
	repo *db.Repository
	log  *slog.Logger
	now  func() time.Time

	workers int

	mu        sync.Mutex
	handlers  map[string]Handler
	recurring []recurringSpec
	inflight  map[string]bool          // recurring kind -> tick queued or running
	conts     map[string][]pendingCont // parent job id -> queued continuations
	runCtx    context.Context

	queue chan Invocation
	wg    sync.WaitGroup
}

func NewScheduler(repo *db.Repository, workers int, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		repo:     repo,
		log:      logger,
		now:      time.Now,
		workers:  workers,
		handlers: map[string]Handler{},
		inflight: map[string]bool{},
		conts:    map[string][]pendingCont{},
		queue:    make(chan Invocation, 256),
	}
}

// Register binds a handler to a job kind. Must be called before Run.
func (s *Scheduler) Register(kind string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// ScheduleRecurring arranges for kind to fire on a fixed wall-clock
// interval once Run starts. A tick that arrives while the previous
// invocation of the same kind is still running is skipped and logged.
func (s *Scheduler) ScheduleRecurring(kind string, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recurring = append(s.recurring, recurringSpec{kind: kind, interval: interval})
}

// ScheduleDelayed queues a one-shot job to fire at fireAt. Fails with
// ErrInvalidSchedule if fireAt is already past.
func (s *Scheduler) ScheduleDelayed(ctx context.Context, kind string, payload any, fireAt time.Time) (string, error) {
	delay := fireAt.Sub(s.now())
	if delay < 0 {
		return "", fmt.Errorf("schedule %s: %w", kind, ErrInvalidSchedule)
	}
	job, err := s.persistJob(ctx, kind, payload, TriggerDelayed, "", models.JobScheduled)
	if err != nil {
		return "", err
	}
	time.AfterFunc(delay, func() {
		s.enqueue(job, "")
	})
	s.log.Info("job scheduled", "kind", kind, "job_id", job.ID, "fire_in", delay.Round(time.Millisecond).String())
	return job.ID, nil
}

// EnqueueImmediate pushes a one-shot job onto the worker pool right away
// and returns its id for continuation linking.
func (s *Scheduler) EnqueueImmediate(ctx context.Context, kind string, payload any) (string, error) {
	job, err := s.persistJob(ctx, kind, payload, TriggerImmediate, "", models.JobEnqueued)
	if err != nil {
		return "", err
	}
	go s.enqueue(job, "")
	return job.ID, nil
}

// ContinueWith queues a job to run once the parent reaches any terminal
// state. The continuation fires regardless of the parent's outcome; the
// handler sees the outcome in Invocation.ParentStatus.
func (s *Scheduler) ContinueWith(ctx context.Context, parentID, kind string, payload any) (string, error) {
	job, err := s.persistJob(ctx, kind, payload, TriggerContinuation, parentID, models.JobScheduled)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	parent, perr := s.repo.GetJob(ctx, parentID)
	if perr == nil && (parent.Status == models.JobSucceeded || parent.Status == models.JobFailed) {
		// Parent already finished; fire now.
		s.mu.Unlock()
		go s.enqueue(job, parent.Status)
		return job.ID, nil
	}
	s.conts[parentID] = append(s.conts[parentID], pendingCont{job: job})
	s.mu.Unlock()
	return job.ID, nil
}

// Run starts the worker pool and the recurring tickers and blocks until
// ctx is cancelled and all in-flight invocations have drained.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	recurring := make([]recurringSpec, len(s.recurring))
	copy(recurring, s.recurring)
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	var tickWG sync.WaitGroup
	for _, spec := range recurring {
		tickWG.Add(1)
		go func(spec recurringSpec) {
			defer tickWG.Done()
			s.runTicker(ctx, spec)
		}(spec)
	}

	<-ctx.Done()
	tickWG.Wait()
	s.wg.Wait()
	return nil
}

func (s *Scheduler) runTicker(ctx context.Context, spec recurringSpec) {
	ticker := time.NewTicker(spec.interval)
	defer ticker.Stop()

	// Immediate first fire so a fresh install has data before the
	// first interval elapses.
	s.fireRecurring(ctx, spec.kind)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireRecurring(ctx, spec.kind)
		}
	}
}

func (s *Scheduler) fireRecurring(ctx context.Context, kind string) {
	s.mu.Lock()
	if s.inflight[kind] {
		s.mu.Unlock()
		s.log.Warn("recurring tick skipped, previous run still in flight", "kind", kind)
		metrics.TicksSkipped.WithLabelValues(kind).Inc()
		return
	}
	s.inflight[kind] = true
	s.mu.Unlock()

	job, err := s.persistJob(ctx, kind, nil, TriggerRecurring, "", models.JobEnqueued)
	if err != nil {
		s.log.Error("persist recurring job", "kind", kind, "err", err)
		s.mu.Lock()
		s.inflight[kind] = false
		s.mu.Unlock()
		return
	}
	s.enqueue(job, "")
}

func (s *Scheduler) persistJob(ctx context.Context, kind string, payload any, trigger, parentID, status string) (models.Job, error) {
	var raw string
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return models.Job{}, fmt.Errorf("marshal payload for %s: %w", kind, err)
		}
		raw = string(b)
	}
	now := s.now().UTC()
	job := models.Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     raw,
		TriggerKind: trigger,
		ParentID:    parentID,
		Status:      status,
		ScheduledAt: now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertJob(ctx, job); err != nil {
		return models.Job{}, err
	}
	return job, nil
}

func (s *Scheduler) enqueue(job models.Job, parentStatus string) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	inv := Invocation{
		ID:           job.ID,
		Kind:         job.Kind,
		Payload:      json.RawMessage(job.Payload),
		ParentID:     job.ParentID,
		ParentStatus: parentStatus,
	}
	if ctx == nil {
		s.queue <- inv
		return
	}
	select {
	case s.queue <- inv:
	case <-ctx.Done():
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case inv := <-s.queue:
			s.execute(ctx, inv)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, inv Invocation) {
	s.mu.Lock()
	handler := s.handlers[inv.Kind]
	s.mu.Unlock()

	_ = s.repo.UpdateJobStatus(ctx, inv.ID, models.JobRunning, s.now())

	status := models.JobSucceeded
	if handler == nil {
		s.log.Error("no handler for job kind", "kind", inv.Kind, "job_id", inv.ID)
		status = models.JobFailed
	} else if err := s.invoke(ctx, handler, inv); err != nil {
		s.log.Error("job failed", "kind", inv.Kind, "job_id", inv.ID, "err", err)
		status = models.JobFailed
	}

	_ = s.repo.UpdateJobStatus(ctx, inv.ID, status, s.now())
	metrics.JobsExecuted.WithLabelValues(inv.Kind, status).Inc()

	s.mu.Lock()
	s.inflight[inv.Kind] = false
	pending := s.conts[inv.ID]
	delete(s.conts, inv.ID)
	s.mu.Unlock()

	for _, c := range pending {
		go s.enqueue(c.job, status)
	}
}

// invoke runs the handler with panic containment so a broken job body
// cannot kill the worker.
func (s *Scheduler) invoke(ctx context.Context, h Handler, inv Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, inv)
}
