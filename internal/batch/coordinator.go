// Package batch fans a set of resolved video/image pairings out into
// queued jobs and tracks their aggregate outcome.
package batch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"video-wrapper/internal/domain"
	"video-wrapper/internal/jobs"
)

// Failure records why one member of a batch did not produce output.
type Failure struct {
	JobID     string `json:"jobId"`
	VideoPath string `json:"videoPath"`
	Reason    string `json:"reason"`
}

// Status is the aggregate view of one batch.
type Status struct {
	BatchID   string    `json:"batchId"`
	CreatedAt time.Time `json:"createdAt"`
	Total     int       `json:"total"`
	Pending   int       `json:"pending"`
	Running   int       `json:"running"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Cancelled int       `json:"cancelled"`
	Terminal  bool      `json:"terminal"`
	Failures  []Failure `json:"failures,omitempty"`
}

// member is one video inside a batch.
type member struct {
	jobID     string
	videoPath string
}

// state accumulates per-job outcomes pushed by the queue.
type state struct {
	id        string
	createdAt time.Time
	members   []member
	statuses  map[string]domain.JobStatus
	reasons   map[string]string
}

// Coordinator submits batches to the queue and follows their progress
// through the queue's push events.
type Coordinator struct {
	queue *jobs.Queue
	log   *slog.Logger

	mu      sync.Mutex
	batches map[string]*state
	byJob   map[string]string
}

// NewCoordinator wires a coordinator to the queue's event stream.
func NewCoordinator(queue *jobs.Queue, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		queue:   queue,
		log:     logger,
		batches: map[string]*state{},
		byJob:   map[string]string{},
	}
	queue.Notify(c.onEvent)
	return c
}

// OutputName derives the batch output filename for one source video.
func OutputName(videoPath string) string {
	base := filepath.Base(videoPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + "_with_images.mp4"
}

// Start creates one job per pairing and submits them in order. A pairing
// that fails validation or submission is tallied as failed; the rest of
// the batch still runs.
func (c *Coordinator) Start(pairings []domain.BatchPairing, settings domain.Settings) (Status, error) {
	if len(pairings) == 0 {
		return Status{}, fmt.Errorf("batch has no pairings")
	}
	outputDir := strings.TrimSpace(settings.OutputDir)
	if outputDir == "" {
		return Status{}, fmt.Errorf("output directory is required")
	}

	st := &state{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		statuses:  map[string]domain.JobStatus{},
		reasons:   map[string]string{},
	}
	c.mu.Lock()
	c.batches[st.id] = st
	c.mu.Unlock()

	for i, pairing := range pairings {
		spec := domain.JobSpec{
			VideoPath:  pairing.VideoPath,
			OutputPath: filepath.Join(outputDir, OutputName(pairing.VideoPath)),
		}
		if pairing.IntroImage != "" {
			spec.IntroImage = pairing.IntroImage
			spec.IntroDuration = settings.IntroDuration
		}
		if pairing.OutroImage != "" {
			spec.OutroImage = pairing.OutroImage
			spec.OutroDuration = settings.OutroDuration
		}

		job, err := domain.NewJob(spec)
		if err != nil {
			c.recordInvalid(st, pairing.VideoPath, err)
			continue
		}

		c.mu.Lock()
		st.members = append(st.members, member{jobID: job.ID, videoPath: pairing.VideoPath})
		st.statuses[job.ID] = domain.JobStatusPending
		c.byJob[job.ID] = st.id
		c.mu.Unlock()

		if _, err := c.queue.Submit(job); err != nil {
			c.mu.Lock()
			st.statuses[job.ID] = domain.JobStatusFailed
			st.reasons[job.ID] = err.Error()
			c.mu.Unlock()
			c.log.Warn("batch job submission failed",
				"batch", st.id, "video", pairing.VideoPath, "error", err)
			continue
		}
		c.log.Info("batch job submitted",
			"batch", st.id, "index", i, "job", job.ID, "video", pairing.VideoPath)
	}

	c.log.Info("batch started", "batch", st.id, "jobs", len(pairings))
	return c.snapshot(st), nil
}

// Status returns the aggregate view for one batch.
func (c *Coordinator) Status(batchID string) (Status, bool) {
	c.mu.Lock()
	st, ok := c.batches[batchID]
	c.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return c.snapshot(st), true
}

// recordInvalid tallies a pairing that never became a queue job.
func (c *Coordinator) recordInvalid(st *state, videoPath string, cause error) {
	id := uuid.NewString()
	c.mu.Lock()
	st.members = append(st.members, member{jobID: id, videoPath: videoPath})
	st.statuses[id] = domain.JobStatusFailed
	st.reasons[id] = cause.Error()
	c.mu.Unlock()
	c.log.Warn("batch pairing rejected", "batch", st.id, "video", videoPath, "error", cause)
}

// onEvent folds queue push events into the owning batch's tally.
func (c *Coordinator) onEvent(event jobs.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batchID, ok := c.byJob[event.JobID]
	if !ok {
		return
	}
	st := c.batches[batchID]

	switch event.Type {
	case jobs.EventTypeStatus:
		// Terminal outcomes are final; a stale earlier-state event must
		// never resurrect a finished job and wedge the batch tally.
		if current, ok := st.statuses[event.JobID]; ok && current.IsTerminal() {
			return
		}
		st.statuses[event.JobID] = event.Status
	case jobs.EventTypeError:
		if event.Reason != "" {
			st.reasons[event.JobID] = event.Reason
		}
	}
}

// snapshot computes the aggregate counts under the lock.
func (c *Coordinator) snapshot(st *state) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		BatchID:   st.id,
		CreatedAt: st.createdAt,
		Total:     len(st.members),
		Terminal:  len(st.members) > 0,
	}
	for _, m := range st.members {
		s := st.statuses[m.jobID]
		switch s {
		case domain.JobStatusRunning:
			status.Running++
		case domain.JobStatusSucceeded:
			status.Succeeded++
		case domain.JobStatusFailed:
			status.Failed++
			status.Failures = append(status.Failures, Failure{
				JobID:     m.jobID,
				VideoPath: m.videoPath,
				Reason:    st.reasons[m.jobID],
			})
		case domain.JobStatusCancelled:
			status.Cancelled++
		default:
			status.Pending++
		}
		if !s.IsTerminal() {
			status.Terminal = false
		}
	}
	return status
}
