package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"video-wrapper/internal/domain"
)

// ErrQueueClosed is returned when submitting to a stopped queue.
var ErrQueueClosed = errors.New("job queue is closed")

// ErrJobNotPending is returned when submitting a job that already ran.
var ErrJobNotPending = errors.New("job is not in pending state")

// CancelResult reports the outcome of a cancellation request.
type CancelResult string

const (
	// CancelResultCancelled means the job was still pending and was removed.
	CancelResultCancelled CancelResult = "cancelled"
	// CancelResultNotCancellable means the job is running or already terminal.
	// The encode process cannot be interrupted mid-write without leaving a
	// corrupt partial output, so this is a no-op rather than an error.
	CancelResultNotCancellable CancelResult = "not_cancellable"
	// CancelResultNotFound means no job with that id is known to the queue.
	CancelResultNotFound CancelResult = "not_found"
)

// Invoker executes one encode for a job. Implementations signal failure
// through the returned error; errors carrying a stable reason and captured
// diagnostics implement failureDetail.
type Invoker interface {
	Run(ctx context.Context, job domain.Job) error
}

// failureDetail is implemented by invoker errors that carry a stable
// operator-facing reason plus captured diagnostic output.
type failureDetail interface {
	FailureReason() string
	DiagnosticOutput() string
}

// Queue holds pending jobs in submission order and guarantees that at
// most one job is being encoded at any instant. A single dispatch
// goroutine owns the running slot; all other state is guarded by one
// mutex so two dispatch attempts can never race.
type Queue struct {
	invoker Invoker
	log     *slog.Logger
	events  *EventBus

	mu        sync.Mutex
	pending   []domain.Job
	running   *domain.Job
	finished  map[string]domain.Job
	order     []string
	listeners []func(Event)
	closed    bool

	wake chan struct{}
}

// NewQueue creates an idle queue dispatching to the given invoker.
func NewQueue(invoker Invoker, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		invoker:  invoker,
		log:      logger,
		events:   NewEventBus(1000),
		finished: make(map[string]domain.Job),
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the dispatch loop. It returns immediately; processing
// stops once ctx is cancelled and any in-flight encode has finished.
func (q *Queue) Start(ctx context.Context) {
	go q.loop(ctx)
}

// Submit appends a pending job at the tail and returns its id without
// waiting for dispatch.
func (q *Queue) Submit(job domain.Job) (string, error) {
	if job.ID == "" {
		return "", fmt.Errorf("job id is required")
	}
	if job.Status != domain.JobStatusPending {
		return "", ErrJobNotPending
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	q.pending = append(q.pending, job)
	q.order = append(q.order, job.ID)
	// Published before the lock is released: the dispatch loop cannot
	// claim this job until the queued event is already sequenced and
	// delivered, so observers never see started before queued.
	q.announceLocked(Event{
		JobID:   job.ID,
		Type:    EventTypeStatus,
		Status:  domain.JobStatusPending,
		Message: "Job queued",
	})
	q.mu.Unlock()

	q.signal()
	return job.ID, nil
}

// Cancel removes a still-pending job from the queue. Running and terminal
// jobs are reported as not cancellable; this is not an error condition.
func (q *Queue) Cancel(jobID string) CancelResult {
	q.mu.Lock()
	for i, job := range q.pending {
		if job.ID != jobID {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		job.Status = domain.JobStatusCancelled
		q.finished[job.ID] = job
		q.announceLocked(Event{
			JobID:   jobID,
			Type:    EventTypeStatus,
			Status:  domain.JobStatusCancelled,
			Message: "Job removed from queue",
		})
		q.mu.Unlock()
		return CancelResultCancelled
	}

	known := false
	if q.running != nil && q.running.ID == jobID {
		known = true
	}
	if _, ok := q.finished[jobID]; ok {
		known = true
	}
	q.mu.Unlock()

	if known {
		return CancelResultNotCancellable
	}
	return CancelResultNotFound
}

// Job returns a snapshot of one job by id.
func (q *Queue) Job(jobID string) (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running != nil && q.running.ID == jobID {
		return *q.running, true
	}
	if job, ok := q.finished[jobID]; ok {
		return job, true
	}
	for _, job := range q.pending {
		if job.ID == jobID {
			return job, true
		}
	}
	return domain.Job{}, false
}

// Jobs returns snapshots of every known job in submission order.
func (q *Queue) Jobs() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.Job, 0, len(q.order))
	for _, id := range q.order {
		if q.running != nil && q.running.ID == id {
			out = append(out, *q.running)
			continue
		}
		if job, ok := q.finished[id]; ok {
			out = append(out, job)
			continue
		}
		for _, job := range q.pending {
			if job.ID == id {
				out = append(out, job)
				break
			}
		}
	}
	return out
}

// Running returns the currently encoding job, if any.
func (q *Queue) Running() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running == nil {
		return domain.Job{}, false
	}
	return *q.running, true
}

// PendingCount returns the number of jobs awaiting dispatch.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Notify registers a push listener invoked for every published event.
// Listeners run on the publishing goroutine under the queue's internal
// lock; they must not block or call back into the queue.
func (q *Queue) Notify(listener func(Event)) {
	if listener == nil {
		return
	}
	q.mu.Lock()
	q.listeners = append(q.listeners, listener)
	q.mu.Unlock()
}

// EventsSince returns buffered events with sequence greater than seq.
func (q *Queue) EventsSince(seq int64) []Event {
	return q.events.Since(seq)
}

// Announce publishes an event to the buffer and all push listeners.
func (q *Queue) Announce(event Event) {
	q.mu.Lock()
	q.announceLocked(event)
	q.mu.Unlock()
}

// announceLocked assigns the sequence and delivers to listeners while the
// caller holds q.mu, so an event for a state change is always delivered
// before any later change to the same job can be observed. Listeners must
// not call back into the queue.
func (q *Queue) announceLocked(event Event) {
	published := q.events.Publish(event)
	for _, listener := range q.listeners {
		listener(published)
	}
}

// Close rejects further submissions and stops the loop from claiming
// queued jobs. In-flight work is left to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// signal wakes the dispatch loop without blocking the caller.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// loop drains the pending list one job at a time until ctx is done.
func (q *Queue) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for ctx.Err() == nil {
			job, ok := q.claimNext()
			if !ok {
				break
			}
			q.dispatch(ctx, job)
		}
	}
}

// claimNext pops the queue head and marks it running. The running slot is
// only ever written here and in finalize, both on the loop goroutine.
// After Close, pending jobs are left unclaimed; only in-flight work runs
// to completion.
func (q *Queue) claimNext() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return domain.Job{}, false
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Status = domain.JobStatusRunning
	q.running = &job
	return job, true
}

// dispatch runs one job to a terminal status. It never propagates a
// failure beyond the offending job; the loop continues with the next.
func (q *Queue) dispatch(ctx context.Context, job domain.Job) {
	q.log.Info("job started", "job", job.ID, "video", job.VideoPath)
	q.Announce(Event{
		JobID:   job.ID,
		Type:    EventTypeStatus,
		Status:  domain.JobStatusRunning,
		Message: "Encode started",
	})

	err := q.invoke(ctx, job)
	if err != nil {
		reason := err.Error()
		diagnostics := ""
		var detail failureDetail
		if errors.As(err, &detail) {
			reason = detail.FailureReason()
			diagnostics = detail.DiagnosticOutput()
		}
		q.finalize(job, domain.JobStatusFailed, reason, diagnostics)

		q.log.Warn("job failed", "job", job.ID, "reason", reason)
		q.Announce(Event{
			JobID:   job.ID,
			Type:    EventTypeError,
			Status:  domain.JobStatusFailed,
			Message: err.Error(),
			Reason:  reason,
			Stderr:  diagnostics,
		})
		q.Announce(Event{
			JobID:  job.ID,
			Type:   EventTypeStatus,
			Status: domain.JobStatusFailed,
			Reason: reason,
		})
		return
	}

	q.finalize(job, domain.JobStatusSucceeded, "", "")
	q.log.Info("job succeeded", "job", job.ID, "output", job.OutputPath)
	q.Announce(Event{
		JobID:      job.ID,
		Type:       EventTypeResult,
		Status:     domain.JobStatusSucceeded,
		Message:    "Output written",
		OutputPath: job.OutputPath,
	})
	q.Announce(Event{
		JobID:  job.ID,
		Type:   EventTypeStatus,
		Status: domain.JobStatusSucceeded,
	})
}

// invoke shields the dispatch loop from invoker panics.
func (q *Queue) invoke(ctx context.Context, job domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encode dispatch panicked: %v", r)
		}
	}()
	return q.invoker.Run(ctx, job)
}

// finalize records the terminal state and clears the running slot.
func (q *Queue) finalize(job domain.Job, status domain.JobStatus, reason, diagnostics string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.Status = status
	job.FailureReason = reason
	job.Diagnostics = diagnostics
	q.finished[job.ID] = job
	if q.running != nil && q.running.ID == job.ID {
		q.running = nil
	}
}
