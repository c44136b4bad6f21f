package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisProducer_EnqueueScoresByRunAt(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	p := NewProducer(rdb)
	job := NewJob(JobPresenceUpdate, PresenceUpdate{UserID: "u1", Status: "away"}, 3, time.Hour)
	require.NoError(t, p.Enqueue(context.Background(), job))

	members, err := rdb.ZRangeWithScores(context.Background(), QueueKey, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, float64(job.RunAt), members[0].Score)

	var stored Job
	require.NoError(t, json.Unmarshal([]byte(members[0].Member.(string)), &stored))
	assert.Equal(t, job.ID, stored.ID)
	assert.Equal(t, 3, stored.MaxRetry)

	var payload PresenceUpdate
	require.NoError(t, json.Unmarshal(stored.Payload, &payload))
	assert.Equal(t, "u1", payload.UserID)
	assert.Nil(t, payload.LastSeen)
}
