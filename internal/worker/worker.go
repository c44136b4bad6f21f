package worker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/queue"
	"github.com/xenn00/teamchat/internal/utils/types"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type Options struct {
	Workers      int
	PollInterval time.Duration
	BaseBackoff  time.Duration
	DLQ          types.DLQRetryConfig
}

type WorkerPool struct {
	Redis      *redis.Client
	Mongo      *mongo.Client
	WorkerNum  int
	JobChannel chan string
	DLQConfig  types.DLQRetryConfig

	handlers     map[string]JobHandler
	pollInterval time.Duration
	baseBackoff  time.Duration
	now          func() time.Time
	wg           sync.WaitGroup
}

func NewWorkerPool(redis *redis.Client, mongo *mongo.Client, opts Options) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 5 * time.Second
	}
	return &WorkerPool{
		Redis:        redis,
		Mongo:        mongo,
		WorkerNum:    opts.Workers,
		JobChannel:   make(chan string, 100),
		DLQConfig:    opts.DLQ.WithDefaults(),
		handlers:     make(map[string]JobHandler),
		pollInterval: opts.PollInterval,
		baseBackoff:  opts.BaseBackoff,
		now:          time.Now,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	log.Info().Msgf("Starting worker pool with %d workers", wp.WorkerNum)

	for i := 0; i < wp.WorkerNum; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer close(wp.JobChannel)
		for {
			payload, ok, err := wp.popDue(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Worker: failed to pop job")
			}
			if !ok {
				select {
				case <-ctx.Done():
					log.Info().Msg("Stopping worker pool")
					return
				case <-time.After(wp.pollInterval):
				}
				continue
			}

			select {
			case wp.JobChannel <- payload:
			case <-ctx.Done():
				// put it back for the next run
				wp.Redis.ZAdd(context.Background(), queue.QueueKey, redis.Z{Score: float64(wp.now().Unix()), Member: payload})
				return
			}
		}
	}()
}

// popDue claims the earliest due job. ZRem decides the winner when several
// pollers see the same member.
func (wp *WorkerPool) popDue(ctx context.Context) (string, bool, error) {
	result, err := wp.Redis.ZRangeByScore(ctx, queue.QueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatScore(wp.now().Unix()),
		Count: 1,
	}).Result()
	if err != nil || len(result) == 0 {
		return "", false, err
	}

	removed, err := wp.Redis.ZRem(ctx, queue.QueueKey, result[0]).Result()
	if err != nil || removed == 0 {
		return "", false, err
	}
	return result[0], true, nil
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log.Info().Msgf("Worker %d started", id)

	for payload := range wp.JobChannel {
		wp.process(ctx, payload)
	}
	log.Info().Msgf("Worker %d stopping", id)
}

// process runs one job and schedules a retry or dead-letters it on failure.
func (wp *WorkerPool) process(ctx context.Context, payload string) {
	var job queue.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		log.Warn().Err(err).Msg("Worker: failed to unmarshal job payload")
		return
	}

	err := wp.HandleJob(ctx, job)
	if err == nil {
		return
	}

	job.Retry++
	job.ErrorMsg = err.Error()

	now := wp.now()
	if job.Retry >= job.MaxRetry || now.Unix() > job.ExpireAt {
		log.Error().Str("job_id", job.ID).Str("type", job.Type).Msg("Job moved to DLQ")
		dlqBytes, _ := json.Marshal(job)
		wp.Redis.RPush(ctx, queue.DLQKey, dlqBytes)

		sendDLA(job)
		return
	}

	delay := wp.baseBackoff * time.Duration(1<<job.Retry)
	job.RunAt = now.Add(delay).Unix()

	jobBytes, _ := json.Marshal(job)
	wp.Redis.ZAdd(ctx, queue.QueueKey, redis.Z{
		Score:  float64(job.RunAt),
		Member: jobBytes,
	})
	log.Warn().Str("job_id", job.ID).Msgf("Retrying in %v (%d/%d)", delay, job.Retry, job.MaxRetry)
}

var dlaCache = make(map[string]time.Time)
var dlaMu sync.Mutex

// sendDLA logs a dead letter alert, at most once per job type every ten minutes.
func sendDLA(job queue.Job) {
	dlaMu.Lock()
	defer dlaMu.Unlock()

	now := time.Now()
	lastAlert, ok := dlaCache[job.Type]
	if ok && now.Sub(lastAlert) < 10*time.Minute {
		return
	}

	log.Error().Str("job_id", job.ID).Str("type", job.Type).Str("error", job.ErrorMsg).Msg("Dead Letter Alert: job failed permanently")

	dlaCache[job.Type] = now
}

func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
	log.Info().Msg("All workers have stopped")
}
