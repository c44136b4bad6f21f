package worker

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/entity"
	"github.com/xenn00/teamchat/internal/queue"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	dlqPending           = "pending"
	dlqProcessing        = "processing"
	dlqFailed            = "failed"
	dlqCompleted         = "completed"
	dlqPermanentlyFailed = "permanently_failed"
)

// StartDLQRetryConsumer periodically replays archived jobs that are due.
func (wp *WorkerPool) StartDLQRetryConsumer(ctx context.Context) {
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()

		log.Info().Msg("DLQ retry consumer started")
		ticker := time.NewTicker(wp.DLQConfig.RetryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("DLQ retry consumer stopping")
				return
			case <-ticker.C:
				wp.processDLQJobs(ctx)
			}
		}
	}()
}

func (wp *WorkerPool) processDLQJobs(ctx context.Context) {
	collection := wp.dlqCollection()

	filter := bson.M{
		"status":      bson.M{"$in": []string{dlqPending, dlqFailed}},
		"retry_count": bson.M{"$lt": wp.DLQConfig.MaxRetryCount},
		"$or": []bson.M{
			{"next_retry_at": bson.M{"$exists": false}},
			{"next_retry_at": bson.M{"$lte": wp.now().UTC()}},
		},
	}
	opts := options.Find().SetSort(bson.M{"created_at": 1}).SetLimit(int64(wp.DLQConfig.BatchSize))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query DLQ jobs")
		return
	}
	defer cursor.Close(ctx)

	var due []entity.DLQJob
	if err := cursor.All(ctx, &due); err != nil {
		log.Error().Err(err).Msg("Failed to decode DLQ jobs")
		return
	}
	if len(due) == 0 {
		return
	}

	log.Info().Int("count", len(due)).Msg("Processing DLQ jobs")
	for i := range due {
		wp.retryDLQJob(ctx, collection, &due[i])
	}
}

func (wp *WorkerPool) retryDLQJob(ctx context.Context, collection *mongo.Collection, dlqJob *entity.DLQJob) {
	if !wp.setDLQStatus(ctx, collection, dlqJob.ID, bson.M{"status": dlqProcessing}) {
		return
	}

	var job queue.Job
	if err := json.Unmarshal(dlqJob.Payload, &job); err != nil {
		wp.setDLQStatus(ctx, collection, dlqJob.ID, bson.M{"status": dlqPermanentlyFailed, "error_msg": "invalid payload: " + err.Error()})
		return
	}
	job.Retry = 0
	job.ErrorMsg = ""

	if err := wp.HandleJob(ctx, job); err != nil {
		wp.rescheduleDLQJob(ctx, collection, dlqJob, err.Error())
		return
	}

	wp.setDLQStatus(ctx, collection, dlqJob.ID, bson.M{"status": dlqCompleted, "completed_at": wp.now().UTC()})
	log.Info().Str("job_id", dlqJob.JobID).Str("type", dlqJob.Type).Int("dlq_retry_count", dlqJob.RetryCount).Msg("DLQ job successfully retried")
}

func (wp *WorkerPool) rescheduleDLQJob(ctx context.Context, collection *mongo.Collection, dlqJob *entity.DLQJob, errorMsg string) {
	attempt := dlqJob.RetryCount + 1
	if attempt >= wp.DLQConfig.MaxRetryCount {
		wp.setDLQStatus(ctx, collection, dlqJob.ID, bson.M{
			"status":      dlqPermanentlyFailed,
			"retry_count": attempt,
			"error_msg":   errorMsg,
			"failed_at":   wp.now().UTC(),
		})
		log.Error().Str("job_id", dlqJob.JobID).Str("type", dlqJob.Type).Int("dlq_retry_count", attempt).Msg("DLQ job permanently failed after max retries")
		return
	}

	nextRetryAt := wp.now().UTC().Add(dlqBackoff(wp.DLQConfig.RetryInterval, wp.DLQConfig.BackoffFactor, attempt))
	wp.setDLQStatus(ctx, collection, dlqJob.ID, bson.M{
		"status":        dlqFailed,
		"retry_count":   attempt,
		"error_msg":     errorMsg,
		"next_retry_at": nextRetryAt,
	})
	log.Warn().Str("job_id", dlqJob.JobID).Int("dlq_retry_count", attempt).Time("next_retry_at", nextRetryAt).Msg("DLQ job scheduled for retry")
}

func (wp *WorkerPool) setDLQStatus(ctx context.Context, collection *mongo.Collection, id bson.ObjectID, fields bson.M) bool {
	fields["updated_at"] = wp.now().UTC()
	if _, err := collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields}); err != nil {
		log.Error().Err(err).Str("id", id.Hex()).Interface("status", fields["status"]).Msg("Failed to update DLQ job")
		return false
	}
	return true
}

func dlqBackoff(interval time.Duration, factor float64, attempt int) time.Duration {
	if factor < 1 {
		factor = 1
	}
	return time.Duration(float64(interval) * math.Pow(factor, float64(attempt)))
}
