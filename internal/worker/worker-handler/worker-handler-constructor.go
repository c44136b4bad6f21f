package worker_handler

import (
	"context"
	"time"
)

// PresenceWriter persists the durable side of presence.
type PresenceWriter interface {
	UpdatePresence(ctx context.Context, userID, status string, lastSeen *time.Time) error
}

type WorkerHandler struct {
	Users PresenceWriter
}

func NewWorkerHandler(users PresenceWriter) *WorkerHandler {
	return &WorkerHandler{
		Users: users,
	}
}
