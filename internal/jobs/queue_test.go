package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"video-wrapper/internal/domain"
)

// fakeInvoker simulates encode execution with injectable behavior.
type fakeInvoker struct {
	mu   sync.Mutex
	runs []string
	run  func(ctx context.Context, job domain.Job) error
}

// Run records the job order and delegates to injected behavior.
func (f *fakeInvoker) Run(ctx context.Context, job domain.Job) error {
	f.mu.Lock()
	f.runs = append(f.runs, job.ID)
	f.mu.Unlock()
	if f.run == nil {
		return nil
	}
	return f.run(ctx, job)
}

// ranJobs returns a snapshot of dispatched job ids in order.
func (f *fakeInvoker) ranJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

// detailedError carries a stable reason and diagnostics like invoker errors.
type detailedError struct {
	reason      string
	diagnostics string
}

func (e *detailedError) Error() string            { return e.reason }
func (e *detailedError) FailureReason() string    { return e.reason }
func (e *detailedError) DiagnosticOutput() string { return e.diagnostics }

// mustJob builds a valid pending job for queue tests.
func mustJob(t *testing.T, video string) domain.Job {
	t.Helper()
	job, err := domain.NewJob(domain.JobSpec{
		VideoPath:     video,
		OutputPath:    video + ".out.mp4",
		IntroImage:    "/start.png",
		IntroDuration: 2,
	})
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	return job
}

// waitForTerminal polls until the job reaches a terminal status.
func waitForTerminal(t *testing.T, q *Queue, jobID string) domain.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := q.Job(jobID); ok && job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := q.Job(jobID)
	t.Fatalf("job %s status = %s, want terminal", jobID, job.Status)
	return domain.Job{}
}

// TestQueueProcessesJobsInFIFOOrder checks dispatch and terminal ordering.
func TestQueueProcessesJobsInFIFOOrder(t *testing.T) {
	invoker := &fakeInvoker{}
	q := NewQueue(invoker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var ids []string
	for _, video := range []string{"/a.mp4", "/b.mp4", "/c.mp4"} {
		job := mustJob(t, video)
		id, err := q.Submit(job)
		if err != nil {
			t.Fatalf("submit %s: %v", video, err)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		job := waitForTerminal(t, q, id)
		if job.Status != domain.JobStatusSucceeded {
			t.Fatalf("job %s status = %s, want succeeded", id, job.Status)
		}
	}

	ran := invoker.ranJobs()
	if len(ran) != len(ids) {
		t.Fatalf("dispatched %d jobs, want %d", len(ran), len(ids))
	}
	for i, id := range ids {
		if ran[i] != id {
			t.Fatalf("dispatch order[%d] = %s, want %s", i, ran[i], id)
		}
	}
}

// TestQueueNeverRunsTwoJobsAtOnce checks the single-encode invariant.
func TestQueueNeverRunsTwoJobsAtOnce(t *testing.T) {
	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	invoker := &fakeInvoker{
		run: func(ctx context.Context, job domain.Job) error {
			n := inFlight.Add(1)
			for {
				seen := maxSeen.Load()
				if n <= seen || maxSeen.CompareAndSwap(seen, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		},
	}

	q := NewQueue(invoker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var ids []string
	for i := 0; i < 6; i++ {
		id, err := q.Submit(mustJob(t, "/clip.mp4"))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForTerminal(t, q, id)
	}

	if got := maxSeen.Load(); got != 1 {
		t.Fatalf("max concurrent encodes = %d, want 1", got)
	}
}

// TestQueueContinuesAfterFailedJob checks per-job failure isolation.
func TestQueueContinuesAfterFailedJob(t *testing.T) {
	invoker := &fakeInvoker{
		run: func(ctx context.Context, job domain.Job) error {
			if job.VideoPath == "/missing.mp4" {
				return &detailedError{reason: "missing asset", diagnostics: "no such file"}
			}
			return nil
		},
	}

	q := NewQueue(invoker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	first, err := q.Submit(mustJob(t, "/missing.mp4"))
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	second, err := q.Submit(mustJob(t, "/ok.mp4"))
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}

	failed := waitForTerminal(t, q, first)
	if failed.Status != domain.JobStatusFailed {
		t.Fatalf("first status = %s, want failed", failed.Status)
	}
	if failed.FailureReason != "missing asset" {
		t.Fatalf("failure reason = %q, want missing asset", failed.FailureReason)
	}
	if failed.Diagnostics != "no such file" {
		t.Fatalf("diagnostics = %q", failed.Diagnostics)
	}

	ok := waitForTerminal(t, q, second)
	if ok.Status != domain.JobStatusSucceeded {
		t.Fatalf("second status = %s, want succeeded", ok.Status)
	}
}

// TestQueueRecoversFromInvokerPanic checks the loop survives panics.
func TestQueueRecoversFromInvokerPanic(t *testing.T) {
	invoker := &fakeInvoker{
		run: func(ctx context.Context, job domain.Job) error {
			if job.VideoPath == "/boom.mp4" {
				panic("encoder exploded")
			}
			return nil
		},
	}

	q := NewQueue(invoker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	first, _ := q.Submit(mustJob(t, "/boom.mp4"))
	second, _ := q.Submit(mustJob(t, "/fine.mp4"))

	failed := waitForTerminal(t, q, first)
	if failed.Status != domain.JobStatusFailed {
		t.Fatalf("panicking job status = %s, want failed", failed.Status)
	}
	ok := waitForTerminal(t, q, second)
	if ok.Status != domain.JobStatusSucceeded {
		t.Fatalf("follow-up status = %s, want succeeded", ok.Status)
	}
}

// TestQueueCancelPendingRemovesWithoutDispatch checks pre-dispatch cancel.
func TestQueueCancelPendingRemovesWithoutDispatch(t *testing.T) {
	block := make(chan struct{})
	invoker := &fakeInvoker{
		run: func(ctx context.Context, job domain.Job) error {
			<-block
			return nil
		},
	}

	q := NewQueue(invoker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	running, _ := q.Submit(mustJob(t, "/running.mp4"))
	pending, _ := q.Submit(mustJob(t, "/pending.mp4"))

	// Wait until the first job occupies the running slot.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if job, ok := q.Running(); ok && job.ID == running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first job never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := q.Cancel(pending); got != CancelResultCancelled {
		t.Fatalf("cancel pending = %s, want cancelled", got)
	}
	if got := q.Cancel(running); got != CancelResultNotCancellable {
		t.Fatalf("cancel running = %s, want not cancellable", got)
	}
	if got := q.Cancel("no-such-job"); got != CancelResultNotFound {
		t.Fatalf("cancel unknown = %s, want not found", got)
	}

	close(block)
	waitForTerminal(t, q, running)

	cancelled, ok := q.Job(pending)
	if !ok || cancelled.Status != domain.JobStatusCancelled {
		t.Fatalf("pending job status = %s, want cancelled", cancelled.Status)
	}
	for _, id := range invoker.ranJobs() {
		if id == pending {
			t.Fatal("cancelled job must not be dispatched")
		}
	}

	if got := q.Cancel(running); got != CancelResultNotCancellable {
		t.Fatalf("cancel terminal = %s, want not cancellable", got)
	}
}

// TestQueueEmitsStatusEventsInOrder checks queued, started, succeeded flow.
func TestQueueEmitsStatusEventsInOrder(t *testing.T) {
	invoker := &fakeInvoker{}
	q := NewQueue(invoker, nil)

	var mu sync.Mutex
	var statuses []domain.JobStatus
	q.Notify(func(event Event) {
		if event.Type != EventTypeStatus {
			return
		}
		mu.Lock()
		statuses = append(statuses, event.Status)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	id, err := q.Submit(mustJob(t, "/in.mp4"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForTerminal(t, q, id)

	mu.Lock()
	got := append([]domain.JobStatus(nil), statuses...)
	mu.Unlock()

	want := []domain.JobStatus{
		domain.JobStatusPending,
		domain.JobStatusRunning,
		domain.JobStatusSucceeded,
	}
	if len(got) != len(want) {
		t.Fatalf("status events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// TestQueueQueuedEventNeverTrailsStarted checks that a job's queued
// event is sequenced before its running event even when the dispatch
// loop is hot and claims submissions immediately.
func TestQueueQueuedEventNeverTrailsStarted(t *testing.T) {
	invoker := &fakeInvoker{}
	q := NewQueue(invoker, nil)

	var mu sync.Mutex
	perJob := map[string][]domain.JobStatus{}
	q.Notify(func(event Event) {
		if event.Type != EventTypeStatus {
			return
		}
		mu.Lock()
		perJob[event.JobID] = append(perJob[event.JobID], event.Status)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var ids []string
	for i := 0; i < 50; i++ {
		id, err := q.Submit(mustJob(t, "/clip.mp4"))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForTerminal(t, q, id)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		statuses := perJob[id]
		if len(statuses) == 0 || statuses[0] != domain.JobStatusPending {
			t.Fatalf("job %s statuses = %v, want pending first", id, statuses)
		}
	}
}

// TestQueueCloseLeavesPendingUnclaimed checks that Close stops dispatch
// after the in-flight job while queued jobs stay pending.
func TestQueueCloseLeavesPendingUnclaimed(t *testing.T) {
	block := make(chan struct{})
	invoker := &fakeInvoker{
		run: func(ctx context.Context, job domain.Job) error {
			<-block
			return nil
		},
	}

	q := NewQueue(invoker, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	running, _ := q.Submit(mustJob(t, "/running.mp4"))
	queued, _ := q.Submit(mustJob(t, "/queued.mp4"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if job, ok := q.Running(); ok && job.ID == running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first job never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	q.Close()
	close(block)

	finished := waitForTerminal(t, q, running)
	if finished.Status != domain.JobStatusSucceeded {
		t.Fatalf("in-flight job status = %s, want succeeded", finished.Status)
	}

	// Give a stray dispatch a chance to happen before asserting.
	time.Sleep(50 * time.Millisecond)
	for _, id := range invoker.ranJobs() {
		if id == queued {
			t.Fatal("queued job must not be dispatched after Close")
		}
	}
	job, ok := q.Job(queued)
	if !ok || job.Status != domain.JobStatusPending {
		t.Fatalf("queued job status = %s, want pending", job.Status)
	}
}

// TestQueueRejectsClosedAndNonPending checks submission guards.
func TestQueueRejectsClosedAndNonPending(t *testing.T) {
	q := NewQueue(&fakeInvoker{}, nil)

	ran := mustJob(t, "/done.mp4")
	ran.Status = domain.JobStatusSucceeded
	if _, err := q.Submit(ran); !errors.Is(err, ErrJobNotPending) {
		t.Fatalf("submit terminal job error = %v, want %v", err, ErrJobNotPending)
	}

	q.Close()
	if _, err := q.Submit(mustJob(t, "/late.mp4")); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("submit after close error = %v, want %v", err, ErrQueueClosed)
	}
}

// TestQueueJobsReturnsSubmissionOrder checks snapshot ordering.
func TestQueueJobsReturnsSubmissionOrder(t *testing.T) {
	q := NewQueue(&fakeInvoker{}, nil)

	first, _ := q.Submit(mustJob(t, "/1.mp4"))
	second, _ := q.Submit(mustJob(t, "/2.mp4"))

	jobs := q.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs len = %d, want 2", len(jobs))
	}
	if jobs[0].ID != first || jobs[1].ID != second {
		t.Fatalf("snapshot order = %s,%s want %s,%s", jobs[0].ID, jobs[1].ID, first, second)
	}
}
