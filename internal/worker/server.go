package worker

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/config"
	"github.com/gerrot/api/internal/logger"
	"github.com/gerrot/api/internal/queue"
)

// maxBackoffShift caps the exponent so the delay cannot overflow.
const maxBackoffShift = 16

// RetryDelay returns base * 2^attempts, where attempts counts the failures
// so far (asynq's n is the number of retries already made).
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	if base <= 0 {
		base = 2 * time.Second
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		shift := n + 1
		if shift > maxBackoffShift {
			shift = maxBackoffShift
		}
		return base * time.Duration(1<<uint(shift))
	}
}

// NewServer builds the asynq server consuming the render queue. onError, when
// set, sees every failed attempt after it is logged.
func NewServer(redisOpt asynq.RedisClientOpt, cfg config.QueueConfig, logLevel string, onError asynq.ErrorHandler, log zerolog.Logger) *asynq.Server {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 2
	}
	name := cfg.Name
	if name == "" {
		name = "pdf-generation"
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         map[string]int{name: 1},
		RetryDelayFunc: RetryDelay(cfg.BackoffBase),
		// Cancelled tasks are shutdown casualties, not failures.
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Debug().Err(err).Str("task_type", task.Type()).Msg("task returned error")
			if onError != nil {
				onError.HandleError(ctx, task, err)
			}
		}),
		Logger:          logger.NewAsynq(log),
		LogLevel:        logger.AsynqLevel(logLevel),
		ShutdownTimeout: 30 * time.Second,
	})
}

// NewServeMux routes render tasks to w.
func NewServeMux(w *RenderWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeRender, w.ProcessTask)
	return mux
}
