package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/model"
)

// JobQueue is the broker-facing side of render requests.
type JobQueue interface {
	Probe(ctx context.Context) bool
	Enqueue(ctx context.Context, req model.RenderRequest) (string, error)
	GetStatus(ctx context.Context, jobID string) (*model.Job, error)
}

type Mode string

const (
	ModeEnqueued Mode = "enqueued"
	ModeDegraded Mode = "degraded"
)

// Outcome carries a JobID when enqueued and an Artifact when rendered in
// process.
type Outcome struct {
	Mode     Mode
	JobID    string
	Artifact *Artifact
}

// RenderService decides per request whether work goes to the queue or is
// rendered in process.
type RenderService struct {
	queue    JobQueue
	degraded *DegradedExecutor
	log      zerolog.Logger
}

func NewRenderService(queue JobQueue, degraded *DegradedExecutor, log zerolog.Logger) *RenderService {
	return &RenderService{
		queue:    queue,
		degraded: degraded,
		log:      log.With().Str("component", "render_service").Logger(),
	}
}

// Request enqueues req, falling back to an in-process render when the broker
// is unavailable. Other enqueue errors are returned as is.
func (s *RenderService) Request(ctx context.Context, req model.RenderRequest) (*Outcome, error) {
	if msg := req.Validate(); msg != "" {
		return nil, apperr.InvalidInput("render.request", msg)
	}

	if s.queue.Probe(ctx) {
		jobID, err := s.queue.Enqueue(ctx, req)
		if err == nil {
			return &Outcome{Mode: ModeEnqueued, JobID: jobID}, nil
		}
		if !apperr.IsQueueUnavailable(err) {
			return nil, err
		}
		s.log.Warn().Err(err).Msg("enqueue failed, rendering in process")
	} else {
		s.log.Warn().Str("version_id", req.VersionID).Msg("queue unavailable, rendering in process")
	}

	art, err := s.degraded.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Outcome{Mode: ModeDegraded, Artifact: art}, nil
}

// Status returns the job for jobID or JobNotFound.
func (s *RenderService) Status(ctx context.Context, jobID string) (*model.Job, error) {
	return s.queue.GetStatus(ctx, jobID)
}
