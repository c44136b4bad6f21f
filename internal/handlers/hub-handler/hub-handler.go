package hub_handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"github.com/xenn00/teamchat/internal/handlers"
	"github.com/xenn00/teamchat/internal/middleware"
	"github.com/xenn00/teamchat/internal/realtime"
	presence_repo "github.com/xenn00/teamchat/internal/repo/presence"
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New()
)

type PresenceReader interface {
	Get(ctx context.Context, identityID string) (*presence_repo.Snapshot, error)
}

type DLQStats interface {
	GetDLQStats(ctx context.Context) (map[string]int64, error)
}

type HubHandler struct {
	Engine   *realtime.Engine
	Presence PresenceReader
	DLQ      DLQStats
}

func NewHubHandler(engine *realtime.Engine, presence PresenceReader, dlq DLQStats) *HubHandler {
	return &HubHandler{
		Engine:   engine,
		Presence: presence,
		DLQ:      dlq,
	}
}

func (h *HubHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	handlers.Respond(w, r, "healthy", map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"service":     "teamchat-realtime",
		"connections": h.Engine.ConnectionCount(),
	})
}

func (h *HubHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	handlers.Respond(w, r, "get websocket stats", h.Engine.Registry.Stats())
	return nil
}

// Room handlers

func (h *HubHandler) HandleGetRoomStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	room, err := roomParam(r)
	if err != nil {
		return err
	}
	handlers.Respond(w, r, "get websocket room stats", h.Engine.Registry.RoomStats(room))
	return nil
}

// HandleGetRoomMembers lists the connections in a room. Only identities
// subscribed to the room may look.
func (h *HubHandler) HandleGetRoomMembers(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	room, err := roomParam(r)
	if err != nil {
		return err
	}
	caller, _ := middleware.IdentityFrom(r.Context())
	if !h.Engine.Registry.IdentityInRoom(caller.ID, room, "") {
		return app_error.Authz("join the room before listing its members", "roomId")
	}

	members := h.Engine.Registry.RoomMembers(room)
	handlers.Respond(w, r, "successfully get room members", map[string]any{
		"room":    room,
		"count":   len(members),
		"members": members,
	})
	return nil
}

// Identity handlers

func (h *HubHandler) HandleGetPresence(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	identityID := chi.URLParam(r, "identityId")

	resp := map[string]any{
		"identity_id": identityID,
		"online":      h.Engine.Registry.IsOnline(identityID),
		"status":      h.Engine.Presence.StatusOf(identityID),
	}

	snap, err := h.Presence.Get(r.Context(), identityID)
	switch {
	case err == nil:
		resp["last_seen"] = snap.LastSeen
		resp["updated_at"] = snap.UpdatedAt
	case app_error.IsKind(err, app_error.KindNotFound):
	default:
		log.Warn().Err(err).Str("identityID", identityID).Msg("presence snapshot unavailable")
	}

	handlers.Respond(w, r, "successful get presence", resp)
	return nil
}

func (h *HubHandler) HandleGetConnections(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	identityID, appErr := selfParam(r)
	if appErr != nil {
		return appErr
	}

	connections := h.Engine.Registry.ConnectionsOf(identityID)
	handlers.Respond(w, r, "successfully get identity connections", map[string]any{
		"identity_id": identityID,
		"count":       len(connections),
		"connections": connections,
	})
	return nil
}

type disconnectRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}

// HandleDisconnect closes every connection of the caller, e.g. sign out
// everywhere. Each connection gets a session-closed event first.
func (h *HubHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	identityID, appErr := selfParam(r)
	if appErr != nil {
		return appErr
	}

	var payload disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return app_error.Validation("invalid request body", "request-body-disconnect")
	}
	if err := validate.Struct(payload); err != nil {
		return app_error.Validation("reason is too long", "reason")
	}

	h.Engine.Registry.PublishIdentity(identityID, ws_dto.NewEvent(ws_dto.EvSessionClosed, map[string]string{"reason": payload.Reason}))
	disconnected := h.Engine.Registry.CloseIdentity(identityID)
	log.Info().Str("identityID", identityID).Int("connections", disconnected).Str("reason", payload.Reason).Msg("forced disconnect")

	handlers.Respond(w, r, "successfully disconnect identity", map[string]any{
		"status":               "success",
		"disconnected_clients": disconnected,
		"identity_id":          identityID,
		"reason":               payload.Reason,
	})
	return nil
}

// Jobs

func (h *HubHandler) HandleGetDLQStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	stats, err := h.DLQ.GetDLQStats(r.Context())
	if err != nil {
		return app_error.TransientStore("failed to read dead letter stats", err)
	}
	handlers.Respond(w, r, "get dead letter stats", stats)
	return nil
}

func roomParam(r *http.Request) (string, *app_error.AppError) {
	room := chi.URLParam(r, "roomId")
	if _, _, ok := realtime.ParseRoom(room); !ok {
		return "", app_error.Validation("room must look like channel:<id>, workspace:<id> or huddle:<id>", "roomId")
	}
	return room, nil
}

func selfParam(r *http.Request) (string, *app_error.AppError) {
	identityID := chi.URLParam(r, "identityId")
	caller, _ := middleware.IdentityFrom(r.Context())
	if identityID == "me" {
		identityID = caller.ID
	}
	if identityID != caller.ID {
		return "", app_error.Authz("you can only manage your own connections", "identityId")
	}
	return identityID, nil
}
