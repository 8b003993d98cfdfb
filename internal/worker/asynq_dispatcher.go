package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stemdeck/api/internal/model"
)

const (
	conversionQueue = "conversion"
	// asynq applies a 30 minute default when no timeout is given; per-tool
	// limits are enforced by the runner instead.
	conversionTaskTimeout = 24 * time.Hour
)

// AsynqDispatcher enqueues jobs on Redis for an asynq server to pick up.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

// NewConversionTask builds the asynq task for a job.
func NewConversionTask(task model.ConversionTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal conversion task: %w", err)
	}
	return asynq.NewTask(TaskTypeConversion, payload), nil
}

// Dispatch enqueues the job without retries: a failed job is final and the
// user resubmits.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, task model.ConversionTask) error {
	t, err := NewConversionTask(task)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, t,
		asynq.Queue(conversionQueue),
		asynq.TaskID(task.JobID),
		asynq.MaxRetry(0),
		asynq.Timeout(conversionTaskTimeout),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("enqueue conversion: %w", err)
	}
	return nil
}

// NewAsynqServer builds the in-process asynq server and its handler mux.
func NewAsynqServer(redisOpt asynq.RedisClientOpt, concurrency int, logLevel string, w *ConversionWorker) (*asynq.Server, *asynq.ServeMux) {
	if concurrency <= 0 {
		concurrency = 1
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			conversionQueue: 1,
		},
		LogLevel: AsynqLogLevel(logLevel),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeConversion, w.ProcessTask)
	return srv, mux
}

// AsynqLogLevel maps the server log level onto asynq's.
func AsynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
