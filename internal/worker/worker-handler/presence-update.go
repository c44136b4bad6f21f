package worker_handler

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/queue"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HandlePresenceUpdate writes status and last-seen to the users table.
func (wh *WorkerHandler) HandlePresenceUpdate(ctx context.Context, raw jsoniter.RawMessage) error {
	var payload queue.PresenceUpdate
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid presence payload: %w", err)
	}
	if payload.UserID == "" {
		return fmt.Errorf("invalid presence payload: missing user_id")
	}

	if err := wh.Users.UpdatePresence(ctx, payload.UserID, payload.Status, payload.LastSeen); err != nil {
		return fmt.Errorf("update presence of %s: %w", payload.UserID, err)
	}
	log.Debug().Str("userID", payload.UserID).Str("status", payload.Status).Msg("worker: presence persisted")
	return nil
}
