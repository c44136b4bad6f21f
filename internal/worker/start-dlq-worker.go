package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/entity"
	"github.com/xenn00/teamchat/internal/queue"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const dlqRetention = 7 * 24 * time.Hour

// StartDLQWorker moves dead-lettered jobs from Redis into the Mongo DLQ
// collection, where the retry consumer picks them up.
func (wp *WorkerPool) StartDLQWorker(ctx context.Context) {
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()

		log.Info().Msg("DLQ worker started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("DLQ worker stopping")
				return
			default:
			}

			result, err := wp.Redis.BLPop(ctx, 10*time.Second, queue.DLQKey).Result()
			if err == redis.Nil {
				continue
			} else if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Msg("DLQWorker pop failed")
				}
				continue
			}

			if !wp.archive(ctx, result[1]) {
				select {
				case <-ctx.Done():
				case <-time.After(wp.pollInterval):
				}
			}
		}
	}()
}

// archive reports false when the job went back to Redis.
func (wp *WorkerPool) archive(ctx context.Context, payload string) bool {
	var job queue.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		log.Warn().Err(err).Msg("DLQWorker invalid job payload")
		return true
	}

	now := wp.now().UTC()
	dlqDoc := entity.DLQJob{
		JobID:              job.ID,
		Type:               job.Type,
		Payload:            []byte(payload),
		Status:             dlqPending,
		OriginalRetryCount: job.Retry,
		ErrorMsg:           job.ErrorMsg,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpireAt:           now.Add(dlqRetention),
	}

	if _, err := wp.dlqCollection().InsertOne(ctx, dlqDoc); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist DLQ job to MongoDB")

		// fallback: put back to Redis DLQ
		wp.Redis.RPush(context.WithoutCancel(ctx), queue.DLQKey, payload)
		return false
	}
	log.Info().Str("job_id", job.ID).Str("type", job.Type).Msg("DLQ job persisted to MongoDB")
	return true
}

func (wp *WorkerPool) dlqCollection() *mongo.Collection {
	return wp.Mongo.Database(wp.DLQConfig.DatabaseName).Collection(wp.DLQConfig.CollectionName)
}

// GetDLQStats counts archived jobs per status.
func (wp *WorkerPool) GetDLQStats(ctx context.Context) (map[string]int64, error) {
	pipeline := bson.A{
		bson.M{"$group": bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}},
	}

	cursor, err := wp.dlqCollection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	stats := make(map[string]int64)
	for cursor.Next(ctx) {
		var result struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&result); err != nil {
			continue
		}
		stats[result.Status] = result.Count
	}

	return stats, cursor.Err()
}
