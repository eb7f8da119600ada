package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/model"
	"github.com/gerrot/api/internal/notify"
	"github.com/gerrot/api/internal/queue"
	"github.com/gerrot/api/internal/service"
)

var errAlreadyTerminal = errors.New("job already finished")

// recordTimeout bounds job record writes made after the task context ended.
const recordTimeout = 5 * time.Second

// JobStore is the subset of the queue's record store the worker mutates.
type JobStore interface {
	Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error)
}

// RenderWorker processes render jobs
type RenderWorker struct {
	jobs     JobStore
	runner   service.Runner
	notifier notify.Channel
	now      func() time.Time
	log      zerolog.Logger
}

func NewRenderWorker(jobs JobStore, runner service.Runner, notifier notify.Channel, log zerolog.Logger) *RenderWorker {
	return &RenderWorker{
		jobs:     jobs,
		runner:   runner,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "render_worker").Logger(),
	}
}

// ProcessTask handles render task processing. A returned error makes asynq
// retry the task unless it wraps asynq.SkipRetry.
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := queue.ParseRenderTask(t)
	if err != nil {
		w.log.Error().Err(err).Msg("dropping undecodable task")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := w.log.With().Str("job_id", p.JobID).Str("version_id", p.Request.VersionID).Logger()

	job, err := w.jobs.Update(ctx, p.JobID, func(j *model.Job) error {
		if j.Terminal() {
			return errAlreadyTerminal
		}
		j.Start(w.now())
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyTerminal):
		log.Info().Msg("job already finished, skipping")
		return nil
	case errors.Is(err, queue.ErrJobNotFound):
		log.Warn().Msg("job record expired, dropping task")
		return fmt.Errorf("job %s: %w", p.JobID, asynq.SkipRetry)
	case err != nil:
		return fmt.Errorf("start job %s: %w", p.JobID, err)
	}

	log.Info().Int("attempt", job.AttemptCount+1).Int("max_attempts", job.MaxAttempts).Msg("render job started")
	w.publish(ctx, p, model.Notification{JobID: p.JobID, Outcome: model.OutcomeProgress, Progress: job.Progress})

	art, runErr := w.runner.Run(ctx, p.Request, func(progress int) {
		w.advance(ctx, p, progress)
	})
	if runErr != nil {
		return w.handleFailure(ctx, p, runErr)
	}

	if _, err := w.jobs.Update(ctx, p.JobID, func(j *model.Job) error {
		j.Complete(art.Ref, w.now())
		return nil
	}); err != nil {
		return fmt.Errorf("complete job %s: %w", p.JobID, err)
	}

	ref := art.Ref
	w.publish(ctx, p, model.Notification{
		JobID:     p.JobID,
		Outcome:   model.OutcomeCompleted,
		Progress:  model.ProgressDone,
		ResultRef: &ref,
	})
	log.Info().Str("key", ref.Key).Msg("render job completed")
	return nil
}

func (w *RenderWorker) advance(ctx context.Context, p *queue.TaskPayload, progress int) {
	moved := false
	if _, err := w.jobs.Update(ctx, p.JobID, func(j *model.Job) error {
		moved = j.Advance(progress)
		return nil
	}); err != nil {
		w.log.Warn().Err(err).Str("job_id", p.JobID).Int("progress", progress).Msg("failed to record progress")
		return
	}
	if moved {
		w.publish(ctx, p, model.Notification{JobID: p.JobID, Outcome: model.OutcomeProgress, Progress: progress})
	}
}

// handleFailure counts the attempt. Invalid input and exhausted attempts fail
// the job for good; anything else goes back to asynq for a delayed retry.
func (w *RenderWorker) handleFailure(ctx context.Context, p *queue.TaskPayload, runErr error) error {
	log := w.log.With().Str("job_id", p.JobID).Logger()

	// Shutdown: leave the attempt uncounted so the task is picked up again.
	if errors.Is(ctx.Err(), context.Canceled) {
		log.Warn().Err(runErr).Msg("render interrupted")
		return ctx.Err()
	}
	// A task past its deadline still spent an attempt. The task context is
	// already done, so the failure is recorded on a detached one.
	if ctx.Err() != nil {
		runErr = fmt.Errorf("render timed out: %w", ctx.Err())
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
	}

	reason := failureReason(runErr)
	final := false
	job, err := w.jobs.Update(ctx, p.JobID, func(j *model.Job) error {
		if j.Terminal() {
			return errAlreadyTerminal
		}
		if apperr.IsInvalidInput(runErr) {
			j.AttemptCount++
			j.Fail(reason, w.now())
			final = true
			return nil
		}
		final = j.RecordFailure(reason, w.now())
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		log.Info().Err(runErr).Msg("job already finished, failure ignored")
		return fmt.Errorf("%s: %w", reason, asynq.SkipRetry)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to record job failure")
		return runErr
	}

	if !final {
		log.Warn().Err(runErr).Int("attempt", job.AttemptCount).Int("max_attempts", job.MaxAttempts).Msg("render attempt failed, will retry")
		return runErr
	}

	log.Error().Err(runErr).Int("attempts", job.AttemptCount).Msg("render job failed")
	w.publish(ctx, p, model.Notification{JobID: p.JobID, Outcome: model.OutcomeFailed, Reason: job.FailureReason})
	return fmt.Errorf("%s: %w", reason, asynq.SkipRetry)
}

// HandleError is called by asynq for every failed attempt. Once the task is
// archived the job record is failed too, so a last attempt that never
// reached handleFailure (deadline hit, lease lost) does not leave the job
// pending.
func (w *RenderWorker) HandleError(ctx context.Context, task *asynq.Task, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return
	}
	if retried < maxRetry && !errors.Is(err, asynq.SkipRetry) {
		return
	}
	w.failArchived(ctx, task, err, retried+1)
}

// failArchived fails the job behind an archived task unless it already
// finished. attempts is the number of attempts asynq made.
func (w *RenderWorker) failArchived(ctx context.Context, task *asynq.Task, taskErr error, attempts int) {
	p, err := queue.ParseRenderTask(task)
	if err != nil {
		return
	}
	log := w.log.With().Str("job_id", p.JobID).Logger()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	reason := failureReason(taskErr)
	if errors.Is(taskErr, context.DeadlineExceeded) {
		reason = "render timed out"
	}
	job, err := w.jobs.Update(ctx, p.JobID, func(j *model.Job) error {
		if j.Terminal() {
			return errAlreadyTerminal
		}
		if j.AttemptCount < attempts {
			j.AttemptCount = attempts
		}
		j.Fail(reason, w.now())
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyTerminal), errors.Is(err, queue.ErrJobNotFound):
		return
	case err != nil:
		log.Error().Err(err).Msg("failed to fail archived job")
		return
	}

	log.Error().Err(taskErr).Int("attempts", job.AttemptCount).Msg("render task archived, job failed")
	w.publish(ctx, p, model.Notification{JobID: p.JobID, Outcome: model.OutcomeFailed, Reason: job.FailureReason})
}

// publish never fails the job.
func (w *RenderWorker) publish(ctx context.Context, p *queue.TaskPayload, n model.Notification) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Publish(ctx, p.Request.RequestingUserID, n); err != nil {
		w.log.Warn().Err(err).Str("job_id", p.JobID).Str("outcome", n.Outcome).Msg("notification not delivered")
	}
}

func failureReason(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
