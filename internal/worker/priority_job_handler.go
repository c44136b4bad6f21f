package worker

import (
	"context"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/xenn00/teamchat/internal/queue"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type JobHandler func(ctx context.Context, payload jsoniter.RawMessage) error

// Register binds a job type to its handler. Call before Start.
func (wp *WorkerPool) Register(jobType string, h JobHandler) {
	wp.handlers[jobType] = h
}

func (wp *WorkerPool) HandleJob(ctx context.Context, job queue.Job) error {
	h, ok := wp.handlers[job.Type]
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	return h(ctx, job.Payload)
}

func formatScore(unix int64) string {
	return strconv.FormatInt(unix, 10)
}
