package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/model"
)

type DegradedOptions struct {
	Timeout     time.Duration
	Concurrency int
}

// DegradedExecutor renders inside the request when the queue is unavailable.
// It keeps no job record and never retries.
type DegradedExecutor struct {
	runner  Runner
	sem     *semaphore.Weighted
	timeout time.Duration
	log     zerolog.Logger
}

func NewDegradedExecutor(runner Runner, opts DegradedOptions, log zerolog.Logger) *DegradedExecutor {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 2
	}
	return &DegradedExecutor{
		runner:  runner,
		sem:     semaphore.NewWeighted(int64(opts.Concurrency)),
		timeout: opts.Timeout,
		log:     log.With().Str("component", "degraded").Logger(),
	}
}

// Execute waits for a free slot, then runs the pipeline once. Callers that
// cannot get a slot before the timeout receive Busy.
func (e *DegradedExecutor) Execute(ctx context.Context, req model.RenderRequest) (*Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.New(apperr.CodeBusy, "render.degraded", "renderer is busy, try again later")
	}
	defer e.sem.Release(1)

	start := time.Now()
	art, err := e.runner.Run(ctx, req, nil)
	if err != nil {
		e.log.Warn().Err(err).Str("version_id", req.VersionID).Msg("in-process render failed")
		return nil, err
	}

	e.log.Info().
		Str("version_id", req.VersionID).
		Dur("elapsed", time.Since(start)).
		Msg("rendered without queue")
	return art, nil
}
