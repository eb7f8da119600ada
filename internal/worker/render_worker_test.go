package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/model"
	"github.com/gerrot/api/internal/queue"
	"github.com/gerrot/api/internal/service"
)

var testReq = model.RenderRequest{ProjectID: "p1", VersionID: "v1", RequestingUserID: "u1"}

type memJobs struct {
	mu       sync.Mutex
	jobs     map[string]model.Job
	progress []int
}

func newMemJobs(jobs ...*model.Job) *memJobs {
	m := &memJobs{jobs: make(map[string]model.Job)}
	for _, j := range jobs {
		m.jobs[j.ID] = *j
	}
	return m
}

func (m *memJobs) Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	if err := fn(&j); err != nil {
		return nil, err
	}
	m.jobs[id] = j
	m.progress = append(m.progress, j.Progress)
	return &j, nil
}

func (m *memJobs) get(id string) model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

type fakeRunner struct {
	err   error
	calls int
}

func (r *fakeRunner) Run(_ context.Context, _ model.RenderRequest, progress service.ProgressFunc) (*service.Artifact, error) {
	r.calls++
	if r.err != nil {
		progress(model.ProgressLayout)
		return nil, r.err
	}
	for _, p := range []int{model.ProgressLayout, model.ProgressRender, model.ProgressRendered, model.ProgressStored} {
		progress(p)
	}
	return &service.Artifact{Ref: model.ArtifactRef{Key: "roteiro-v1-1.pdf", Path: "/pdfs/roteiro-v1-1.pdf"}}, nil
}

// blockingRunner holds the render until the task context ends.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ model.RenderRequest, _ service.ProgressFunc) (*service.Artifact, error) {
	<-ctx.Done()
	return nil, apperr.WrapWithCode(ctx.Err(), apperr.CodeRenderFailure, "test", "render cancelled")
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *fakeNotifier) Publish(_ context.Context, _ string, note model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func newTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	task, err := queue.NewRenderTask(jobID, testReq)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

// runUntilSettled mimics asynq: retry while the handler returns a retryable
// error and at most maxAttempts times.
func runUntilSettled(t *testing.T, w *RenderWorker, task *asynq.Task, maxAttempts int) (attempts int, last error) {
	t.Helper()
	for attempts < maxAttempts {
		attempts++
		last = w.ProcessTask(context.Background(), task)
		if last == nil || errors.Is(last, asynq.SkipRetry) {
			return attempts, last
		}
	}
	return attempts, last
}

func TestProcessTaskCompletes(t *testing.T) {
	jobs := newMemJobs(model.NewJob("j1", testReq, 3, time.Now()))
	notes := &fakeNotifier{err: errors.New("pubsub down")}
	w := NewRenderWorker(jobs, &fakeRunner{}, notes, zerolog.Nop())

	if err := w.ProcessTask(context.Background(), newTask(t, "j1")); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	job := jobs.get("j1")
	if job.State != model.JobStateCompleted || job.Progress != 100 || job.ResultRef == nil || job.ResultRef.Path == "" {
		t.Errorf("unexpected job %+v", job)
	}
	for i := 1; i < len(jobs.progress); i++ {
		if jobs.progress[i] < jobs.progress[i-1] {
			t.Fatalf("progress decreased: %v", jobs.progress)
		}
	}
	if last := jobs.progress[len(jobs.progress)-1]; last != 100 {
		t.Errorf("progress ended at %d", last)
	}

	final := notes.sent[len(notes.sent)-1]
	if final.Outcome != model.OutcomeCompleted || final.ResultRef == nil {
		t.Errorf("unexpected final notification %+v", final)
	}
}

func TestProcessTaskRetriesThenFails(t *testing.T) {
	jobs := newMemJobs(model.NewJob("j2", testReq, 3, time.Now()))
	runner := &fakeRunner{err: apperr.New(apperr.CodeRenderFailure, "test", "storage unreachable")}
	notes := &fakeNotifier{}
	w := NewRenderWorker(jobs, runner, notes, zerolog.Nop())

	attempts, err := runUntilSettled(t, w, newTask(t, "j2"), 10)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry after the last attempt, got %v", err)
	}
	if attempts != 3 || runner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d (runner %d)", attempts, runner.calls)
	}

	job := jobs.get("j2")
	if job.State != model.JobStateFailed || job.AttemptCount != 3 || job.FailureReason == "" {
		t.Errorf("unexpected job %+v", job)
	}
	if job.ResultRef != nil {
		t.Error("failed job must not carry a result")
	}
	final := notes.sent[len(notes.sent)-1]
	if final.Outcome != model.OutcomeFailed || final.Reason != "storage unreachable" {
		t.Errorf("unexpected final notification %+v", final)
	}
}

func TestProcessTaskRecoversOnRetry(t *testing.T) {
	jobs := newMemJobs(model.NewJob("j3", testReq, 3, time.Now()))
	runner := &fakeRunner{err: errors.New("transient")}
	w := NewRenderWorker(jobs, runner, nil, zerolog.Nop())

	if err := w.ProcessTask(context.Background(), newTask(t, "j3")); err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if job := jobs.get("j3"); job.State != model.JobStatePending || job.AttemptCount != 1 || job.LastError != "transient" {
		t.Errorf("unexpected job after first failure %+v", job)
	}

	runner.err = nil
	if err := w.ProcessTask(context.Background(), newTask(t, "j3")); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if job := jobs.get("j3"); job.State != model.JobStateCompleted || job.AttemptCount != 1 {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestProcessTaskInvalidInputIsNotRetried(t *testing.T) {
	jobs := newMemJobs(model.NewJob("j4", testReq, 3, time.Now()))
	runner := &fakeRunner{err: apperr.InvalidInput("test", "script content too short")}
	w := NewRenderWorker(jobs, runner, nil, zerolog.Nop())

	attempts, err := runUntilSettled(t, w, newTask(t, "j4"), 10)
	if !errors.Is(err, asynq.SkipRetry) || attempts != 1 {
		t.Fatalf("expected one attempt ending in SkipRetry, got %d %v", attempts, err)
	}
	if job := jobs.get("j4"); job.State != model.JobStateFailed || job.FailureReason != "script content too short" {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestProcessTaskSkipsFinishedJob(t *testing.T) {
	done := model.NewJob("j5", testReq, 3, time.Now())
	done.Start(time.Now())
	done.Complete(model.ArtifactRef{Key: "k"}, time.Now())
	runner := &fakeRunner{}
	w := NewRenderWorker(newMemJobs(done), runner, nil, zerolog.Nop())

	if err := w.ProcessTask(context.Background(), newTask(t, "j5")); err != nil {
		t.Fatal(err)
	}
	if runner.calls != 0 {
		t.Error("finished job must not render again")
	}
}

func TestProcessTaskDropsUnknownAndMalformed(t *testing.T) {
	w := NewRenderWorker(newMemJobs(), &fakeRunner{}, nil, zerolog.Nop())

	if err := w.ProcessTask(context.Background(), newTask(t, "gone")); !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry for missing record, got %v", err)
	}
	if err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TaskTypeRender, []byte("{"))); !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry for malformed payload, got %v", err)
	}
}

func TestProcessTaskCountsDeadlineAttempt(t *testing.T) {
	jobs := newMemJobs(model.NewJob("j6", testReq, 3, time.Now()))
	w := NewRenderWorker(jobs, blockingRunner{}, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.ProcessTask(ctx, newTask(t, "j6")); err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}

	job := jobs.get("j6")
	if job.AttemptCount != 1 || job.State != model.JobStatePending {
		t.Errorf("deadline attempt not counted: %+v", job)
	}
	if !strings.Contains(job.LastError, "timed out") {
		t.Errorf("unexpected last error %q", job.LastError)
	}
}

func TestProcessTaskDeadlineOnLastAttemptFailsJob(t *testing.T) {
	job := model.NewJob("j7", testReq, 2, time.Now())
	job.AttemptCount = 1
	jobs := newMemJobs(job)
	notes := &fakeNotifier{}
	w := NewRenderWorker(jobs, blockingRunner{}, notes, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.ProcessTask(ctx, newTask(t, "j7")); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if got := jobs.get("j7"); got.State != model.JobStateFailed || got.AttemptCount != 2 {
		t.Errorf("unexpected job %+v", got)
	}
	if final := notes.sent[len(notes.sent)-1]; final.Outcome != model.OutcomeFailed {
		t.Errorf("unexpected final notification %+v", final)
	}
}

func TestProcessTaskShutdownLeavesAttemptUncounted(t *testing.T) {
	jobs := newMemJobs(model.NewJob("j8", testReq, 3, time.Now()))
	w := NewRenderWorker(jobs, blockingRunner{}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	if err := w.ProcessTask(ctx, newTask(t, "j8")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job := jobs.get("j8"); job.AttemptCount != 0 {
		t.Errorf("shutdown must not count an attempt: %+v", job)
	}
}

func TestFailArchivedFailsPendingJob(t *testing.T) {
	job := model.NewJob("j9", testReq, 3, time.Now())
	job.AttemptCount = 2
	jobs := newMemJobs(job)
	notes := &fakeNotifier{}
	w := NewRenderWorker(jobs, &fakeRunner{}, notes, zerolog.Nop())

	// The task context is already gone when asynq archives a timed out task.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.failArchived(ctx, newTask(t, "j9"), context.DeadlineExceeded, 3)

	got := jobs.get("j9")
	if got.State != model.JobStateFailed || got.AttemptCount != 3 || got.FailureReason != "render timed out" {
		t.Errorf("unexpected job %+v", got)
	}
	if len(notes.sent) != 1 || notes.sent[0].Outcome != model.OutcomeFailed {
		t.Errorf("unexpected notifications %+v", notes.sent)
	}
}

func TestFailArchivedKeepsFinishedJob(t *testing.T) {
	done := model.NewJob("j10", testReq, 3, time.Now())
	done.Start(time.Now())
	done.Complete(model.ArtifactRef{Key: "k"}, time.Now())
	jobs := newMemJobs(done)
	notes := &fakeNotifier{}
	w := NewRenderWorker(jobs, &fakeRunner{}, notes, zerolog.Nop())

	w.failArchived(context.Background(), newTask(t, "j10"), errors.New("late"), 3)
	w.failArchived(context.Background(), newTask(t, "gone"), errors.New("late"), 3)

	if got := jobs.get("j10"); got.State != model.JobStateCompleted {
		t.Errorf("finished job changed: %+v", got)
	}
	if len(notes.sent) != 0 {
		t.Errorf("unexpected notifications %+v", notes.sent)
	}
}

func TestHandleErrorNeedsTaskMetadata(t *testing.T) {
	jobs := newMemJobs(model.NewJob("j11", testReq, 3, time.Now()))
	w := NewRenderWorker(jobs, &fakeRunner{}, nil, zerolog.Nop())

	w.HandleError(context.Background(), newTask(t, "j11"), errors.New("boom"))
	w.HandleError(context.Background(), newTask(t, "j11"), context.Canceled)

	if got := jobs.get("j11"); got.State != model.JobStatePending {
		t.Errorf("job changed without asynq retry metadata: %+v", got)
	}
}

func TestRetryDelay(t *testing.T) {
	delay := RetryDelay(2 * time.Second)
	if d := delay(0, nil, nil); d != 4*time.Second {
		t.Errorf("first retry: %s", d)
	}
	if d := delay(1, nil, nil); d != 8*time.Second {
		t.Errorf("second retry: %s", d)
	}
	if d := delay(100, nil, nil); d != 2*time.Second*(1<<maxBackoffShift) {
		t.Errorf("capped retry: %s", d)
	}
}
