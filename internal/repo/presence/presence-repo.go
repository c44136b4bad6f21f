package presence_repo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"github.com/xenn00/teamchat/internal/queue"
)

const (
	keyPrefix = "presence:"
	// offline snapshots linger so "last seen" survives without Postgres.
	offlineTTL = 7 * 24 * time.Hour
	jobTTL     = time.Hour
)

type Snapshot struct {
	Status    string     `json:"status"`
	UpdatedAt time.Time  `json:"updatedAt"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
}

// PresenceRepo keeps a presence:<id> hash in Redis for fast reads and
// queues a presence_update job for the durable write to Postgres.
type PresenceRepo struct {
	Redis    *redis.Client
	Producer queue.Producer
	MaxRetry int
}

func NewPresenceRepo(rdb *redis.Client, producer queue.Producer, maxRetry int) *PresenceRepo {
	return &PresenceRepo{Redis: rdb, Producer: producer, MaxRetry: maxRetry}
}

func Key(identityID string) string {
	return keyPrefix + identityID
}

func (r *PresenceRepo) MarkOnline(ctx context.Context, identityID, status string, at time.Time) error {
	pipe := r.Redis.TxPipeline()
	pipe.HSet(ctx, Key(identityID), "status", status, "updated_at", at.UTC().Format(time.RFC3339Nano))
	pipe.Persist(ctx, Key(identityID))
	if _, err := pipe.Exec(ctx); err != nil {
		return app_error.TransientStore("failed to write presence", err)
	}
	return r.enqueue(ctx, queue.PresenceUpdate{UserID: identityID, Status: status})
}

func (r *PresenceRepo) UpdateStatus(ctx context.Context, identityID, status string) error {
	if err := r.Redis.HSet(ctx, Key(identityID), "status", status, "updated_at", time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return app_error.TransientStore("failed to write presence", err)
	}
	return r.enqueue(ctx, queue.PresenceUpdate{UserID: identityID, Status: status})
}

func (r *PresenceRepo) MarkOffline(ctx context.Context, identityID string, lastSeen time.Time) error {
	seen := lastSeen.UTC().Format(time.RFC3339Nano)
	pipe := r.Redis.TxPipeline()
	pipe.HSet(ctx, Key(identityID), "status", "offline", "updated_at", seen, "last_seen", seen)
	pipe.Expire(ctx, Key(identityID), offlineTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return app_error.TransientStore("failed to write presence", err)
	}
	return r.enqueue(ctx, queue.PresenceUpdate{UserID: identityID, Status: "offline", LastSeen: &lastSeen})
}

// Get returns the cached snapshot, or NotFound if the identity never connected.
func (r *PresenceRepo) Get(ctx context.Context, identityID string) (*Snapshot, error) {
	fields, err := r.Redis.HGetAll(ctx, Key(identityID)).Result()
	if err != nil {
		return nil, app_error.TransientStore("failed to read presence", err)
	}
	if len(fields) == 0 {
		return nil, app_error.NotFound("no presence recorded", "identityId")
	}

	snap := &Snapshot{Status: fields["status"]}
	snap.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	if v, ok := fields["last_seen"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			snap.LastSeen = &t
		}
	}
	return snap, nil
}

func (r *PresenceRepo) enqueue(ctx context.Context, update queue.PresenceUpdate) error {
	if r.Producer == nil {
		return nil
	}
	job := queue.NewJob(queue.JobPresenceUpdate, update, r.MaxRetry, jobTTL)
	if err := r.Producer.Enqueue(ctx, job); err != nil {
		log.Warn().Err(err).Str("identityID", update.UserID).Msg("presence: failed to queue durable write")
		return app_error.TransientStore("failed to queue presence update", err)
	}
	return nil
}
