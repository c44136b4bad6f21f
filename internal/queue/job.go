package queue

import (
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	QueueKey = "priority_queue"
	DLQKey   = "priority_queue_dlq"
)

const JobPresenceUpdate = "presence_update"

// Job is one unit of deferred work. RunAt is the unix second it becomes
// due; it doubles as the sorted-set score.
type Job struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Payload   jsoniter.RawMessage `json:"payload"`
	Retry     int                 `json:"retry"`
	MaxRetry  int                 `json:"max_retry"`
	ErrorMsg  string              `json:"error_msg,omitempty"`
	RunAt     int64               `json:"run_at"`
	CreatedAt int64               `json:"created_at"`
	ExpireAt  int64               `json:"expired_at"`
}

func NewJob(jobType string, payload any, maxRetry int, ttl time.Duration) Job {
	now := time.Now()
	return Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   MustMarshal(payload),
		MaxRetry:  maxRetry,
		RunAt:     now.Unix(),
		CreatedAt: now.Unix(),
		ExpireAt:  now.Add(ttl).Unix(),
	}
}

func MustMarshal(payload any) jsoniter.RawMessage {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	return b
}

// PresenceUpdate is the payload of a presence_update job.
type PresenceUpdate struct {
	UserID   string     `json:"user_id"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
