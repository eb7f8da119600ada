package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/config"
	"github.com/gerrot/api/internal/model"
)

// RedisOpt converts the redis settings for asynq.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type Options struct {
	Queue          string
	MaxAttempts    int
	ProbeTimeout   time.Duration
	EnqueueTimeout time.Duration
	Retention      time.Duration
}

func OptionsFromConfig(cfg config.QueueConfig) Options {
	return Options{
		Queue:          cfg.Name,
		MaxAttempts:    cfg.MaxAttempts,
		ProbeTimeout:   cfg.ProbeTimeout,
		EnqueueTimeout: cfg.EnqueueTimeout,
		Retention:      cfg.Retention,
	}
}

func (o Options) withDefaults() Options {
	if o.Queue == "" {
		o.Queue = "pdf-generation"
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 1500 * time.Millisecond
	}
	if o.EnqueueTimeout <= 0 {
		o.EnqueueTimeout = 2 * time.Second
	}
	if o.Retention <= 0 {
		o.Retention = 24 * time.Hour
	}
	return o
}

// QueueStats is a snapshot of the render queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
}

// Client talks to the broker. It never caches availability: every enqueue
// probes first.
type Client struct {
	redis     *redis.Client
	asynq     *asynq.Client
	inspector *asynq.Inspector
	jobs      *JobStore
	opts      Options
	log       zerolog.Logger
}

func NewClient(cfg config.RedisConfig, opts Options, log zerolog.Logger) *Client {
	opts = opts.withDefaults()

	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: opts.ProbeTimeout,
		MaxRetries:  1,
	})

	return &Client{
		redis:     redisClient,
		asynq:     asynq.NewClient(RedisOpt(cfg)),
		inspector: asynq.NewInspector(RedisOpt(cfg)),
		jobs:      NewJobStore(redisClient, opts.Retention),
		opts:      opts,
		log:       log.With().Str("component", "queue").Logger(),
	}
}

// Jobs exposes the job record store used by workers.
func (c *Client) Jobs() *JobStore { return c.jobs }

// Redis exposes the underlying connection for auxiliary features that share
// the broker (rate limits, notifications).
func (c *Client) Redis() *redis.Client { return c.redis }

func (c *Client) Options() Options { return c.opts }

// Probe reports whether the broker answers within the probe timeout.
func (c *Client) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()

	if err := c.redis.Ping(ctx).Err(); err != nil {
		c.log.Debug().Err(err).Msg("broker probe failed")
		return false
	}
	return true
}

// Enqueue creates a pending job and schedules it. Any broker problem is
// reported as QueueUnavailable.
func (c *Client) Enqueue(ctx context.Context, req model.RenderRequest) (string, error) {
	if msg := req.Validate(); msg != "" {
		return "", apperr.InvalidInput("queue.enqueue", msg)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.EnqueueTimeout)
	defer cancel()

	if !c.Probe(ctx) {
		return "", apperr.QueueUnavailable("queue.enqueue", errors.New("broker did not answer ping"))
	}

	jobID := uuid.NewString()
	job := model.NewJob(jobID, req, c.opts.MaxAttempts, time.Now().UTC())
	if err := c.jobs.Save(ctx, job); err != nil {
		return "", apperr.QueueUnavailable("queue.enqueue", err)
	}

	task, err := NewRenderTask(jobID, req)
	if err != nil {
		return "", apperr.WrapWithCode(err, apperr.CodeRenderFailure, "queue.enqueue", "could not build task")
	}

	_, err = c.asynq.EnqueueContext(ctx, task,
		asynq.TaskID(jobID),
		asynq.Queue(c.opts.Queue),
		asynq.MaxRetry(c.opts.MaxAttempts-1),
		asynq.Retention(c.opts.Retention),
	)
	if err != nil {
		cleanup, cancelCleanup := context.WithTimeout(context.Background(), c.opts.ProbeTimeout)
		defer cancelCleanup()
		if derr := c.jobs.Delete(cleanup, jobID); derr != nil {
			c.log.Warn().Err(derr).Str("job_id", jobID).Msg("failed to remove orphaned job record")
		}
		return "", apperr.QueueUnavailable("queue.enqueue", err)
	}

	c.log.Info().Str("job_id", jobID).Str("version_id", req.VersionID).Msg("render job enqueued")
	return jobID, nil
}

// GetStatus returns the job record. Unknown ids and an unreachable broker
// both yield JobNotFound.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*model.Job, error) {
	if jobID == "" {
		return nil, apperr.JobNotFound(jobID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.EnqueueTimeout)
	defer cancel()

	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, ErrJobNotFound) {
			c.log.Warn().Err(err).Str("job_id", jobID).Msg("job status lookup failed")
		}
		return nil, apperr.JobNotFound(jobID)
	}
	return job, nil
}

// Stats reads queue depth through the asynq inspector.
func (c *Client) Stats(ctx context.Context) (*QueueStats, error) {
	if !c.Probe(ctx) {
		return nil, apperr.QueueUnavailable("queue.stats", errors.New("broker did not answer ping"))
	}
	info, err := c.inspector.GetQueueInfo(c.opts.Queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return &QueueStats{Queue: c.opts.Queue}, nil
		}
		return nil, err
	}
	return &QueueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Failed:    info.Archived,
	}, nil
}

func (c *Client) Close() error {
	return errors.Join(c.asynq.Close(), c.inspector.Close(), c.redis.Close())
}
