package model

import (
	"time"
)

// JobState is the lifecycle state of a render job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Progress checkpoints reported by the worker.
const (
	ProgressStarted  = 10
	ProgressLayout   = 30
	ProgressRender   = 50
	ProgressRendered = 70
	ProgressStored   = 90
	ProgressDone     = 100
)

// maxFailureReason bounds the stored failure text.
const maxFailureReason = 2000

// Job is the broker-side record of one render request.
//
// ResultRef is set only in the completed state and FailureReason only in the
// failed state. All transitions go through the methods below.
type Job struct {
	ID            string        `json:"jobId"`
	Payload       RenderRequest `json:"payload"`
	State         JobState      `json:"state"`
	Progress      int           `json:"progress"`
	AttemptCount  int           `json:"attemptCount"`
	MaxAttempts   int           `json:"maxAttempts"`
	ResultRef     *ArtifactRef  `json:"resultRef,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
	// LastError holds the error of the most recent failed attempt while
	// retries remain.
	LastError   string     `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewJob creates a pending job.
func NewJob(id string, req RenderRequest, maxAttempts int, now time.Time) *Job {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Job{
		ID:          id,
		Payload:     req,
		State:       JobStatePending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
	}
}

// Terminal reports whether the job reached completed or failed.
func (j *Job) Terminal() bool {
	return j.State == JobStateCompleted || j.State == JobStateFailed
}

// Start opens a new attempt. Progress restarts at ProgressStarted.
func (j *Job) Start(now time.Time) {
	j.State = JobStateRunning
	j.Progress = ProgressStarted
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
}

// Advance moves progress forward. Lower values are ignored so progress never
// decreases within an attempt.
func (j *Job) Advance(progress int) bool {
	if j.State != JobStateRunning || progress <= j.Progress {
		return false
	}
	if progress > ProgressDone {
		progress = ProgressDone
	}
	j.Progress = progress
	return true
}

// Complete records the stored artifact and finishes the job.
func (j *Job) Complete(ref ArtifactRef, now time.Time) {
	j.State = JobStateCompleted
	j.Progress = ProgressDone
	j.ResultRef = &ref
	j.FailureReason = ""
	j.LastError = ""
	j.CompletedAt = &now
}

// RecordFailure counts a failed attempt. It returns true once the attempts
// are exhausted, in which case the job is failed with reason.
func (j *Job) RecordFailure(reason string, now time.Time) bool {
	j.AttemptCount++
	if j.AttemptCount >= j.MaxAttempts {
		j.Fail(reason, now)
		return true
	}
	j.State = JobStatePending
	j.LastError = truncate(reason)
	return false
}

// Fail finishes the job as failed without further retries.
func (j *Job) Fail(reason string, now time.Time) {
	if reason == "" {
		reason = "render failed"
	}
	j.State = JobStateFailed
	j.FailureReason = truncate(reason)
	j.LastError = ""
	j.ResultRef = nil
	j.CompletedAt = &now
}

func truncate(s string) string {
	if len(s) > maxFailureReason {
		return s[:maxFailureReason]
	}
	return s
}

// JobStatusResponse is the public view of a job.
type JobStatusResponse struct {
	JobID         string       `json:"jobId"`
	State         JobState     `json:"state"`
	Progress      int          `json:"progress"`
	AttemptCount  int          `json:"attemptCount"`
	ResultRef     *ArtifactRef `json:"resultRef,omitempty"`
	FailureReason string       `json:"failureReason,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
}

func (j *Job) StatusResponse() *JobStatusResponse {
	return &JobStatusResponse{
		JobID:         j.ID,
		State:         j.State,
		Progress:      j.Progress,
		AttemptCount:  j.AttemptCount,
		ResultRef:     j.ResultRef,
		FailureReason: j.FailureReason,
		CreatedAt:     j.CreatedAt,
		CompletedAt:   j.CompletedAt,
	}
}
