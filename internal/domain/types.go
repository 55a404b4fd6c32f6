package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks the lifecycle of a single wrap job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions occur for this status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobSpec describes one requested encode before validation.
type JobSpec struct {
	VideoPath     string  `json:"videoPath"`
	IntroImage    string  `json:"introImage"`
	IntroDuration float64 `json:"introDuration"`
	OutroImage    string  `json:"outroImage"`
	OutroDuration float64 `json:"outroDuration"`
	OutputPath    string  `json:"outputPath"`
}

// Job is one unit of encode work: a source video wrapped with optional
// intro and outro still images, written to a single output file.
type Job struct {
	ID            string    `json:"id"`
	VideoPath     string    `json:"videoPath"`
	IntroImage    string    `json:"introImage,omitempty"`
	IntroDuration float64   `json:"introDuration,omitempty"`
	OutroImage    string    `json:"outroImage,omitempty"`
	OutroDuration float64   `json:"outroDuration,omitempty"`
	OutputPath    string    `json:"outputPath"`
	CreatedAt     time.Time `json:"createdAt"`
	Status        JobStatus `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	Diagnostics   string    `json:"diagnostics,omitempty"`
}

// HasIntro reports whether an intro segment is configured.
func (j Job) HasIntro() bool {
	return strings.TrimSpace(j.IntroImage) != ""
}

// HasOutro reports whether an outro segment is configured.
func (j Job) HasOutro() bool {
	return strings.TrimSpace(j.OutroImage) != ""
}

// NewJob validates a spec and returns a pending job with a fresh id.
// A job with neither intro nor outro would copy the source unchanged,
// so such specs are rejected here and never reach the queue.
func NewJob(spec JobSpec) (Job, error) {
	video := strings.TrimSpace(spec.VideoPath)
	if video == "" {
		return Job{}, fmt.Errorf("video path is required")
	}

	output := strings.TrimSpace(spec.OutputPath)
	if output == "" {
		return Job{}, fmt.Errorf("output path is required")
	}

	intro := strings.TrimSpace(spec.IntroImage)
	outro := strings.TrimSpace(spec.OutroImage)
	if intro == "" && outro == "" {
		return Job{}, fmt.Errorf("at least one of intro or outro image is required")
	}
	if intro != "" && spec.IntroDuration <= 0 {
		return Job{}, fmt.Errorf("intro duration must be positive, got %v", spec.IntroDuration)
	}
	if outro != "" && spec.OutroDuration <= 0 {
		return Job{}, fmt.Errorf("outro duration must be positive, got %v", spec.OutroDuration)
	}

	job := Job{
		ID:         uuid.NewString(),
		VideoPath:  video,
		OutputPath: output,
		CreatedAt:  time.Now().UTC(),
		Status:     JobStatusPending,
	}
	if intro != "" {
		job.IntroImage = intro
		job.IntroDuration = spec.IntroDuration
	}
	if outro != "" {
		job.OutroImage = outro
		job.OutroDuration = spec.OutroDuration
	}
	return job, nil
}

// BatchPairing associates one video with the images it should be wrapped
// with. Produced by directory scans and consumed immediately; never stored.
type BatchPairing struct {
	VideoPath  string `json:"videoPath"`
	IntroImage string `json:"introImage,omitempty"`
	OutroImage string `json:"outroImage,omitempty"`
}

// MatchPolicy selects how batch scans pair images with videos.
type MatchPolicy string

const (
	MatchPolicyShared MatchPolicy = "shared"
	MatchPolicyFixed  MatchPolicy = "fixed"
	MatchPolicyStem   MatchPolicy = "stem"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir       string      `json:"outputDir"`
	IntroDuration   float64     `json:"introDuration"`
	OutroDuration   float64     `json:"outroDuration"`
	SameImageForAll bool        `json:"sameImageForAll"`
	MatchPolicy     MatchPolicy `json:"matchPolicy"`
	IntroFileName   string      `json:"introFileName"`
	OutroFileName   string      `json:"outroFileName"`
}
