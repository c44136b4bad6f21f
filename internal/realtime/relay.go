package realtime

import (
	"context"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/xenn00/teamchat/internal/dtos/ws_dto"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalPranswer  SignalKind = "pranswer"
	SignalRollback  SignalKind = "rollback"
	SignalCandidate SignalKind = "candidate"
	SignalOpaque    SignalKind = "opaque"
)

// ClassifySignal names the WebRTC message carried by payload. It is used
// for logs only; payloads are always forwarded untouched.
func ClassifySignal(payload []byte) SignalKind {
	if !gjson.ValidBytes(payload) {
		return SignalOpaque
	}

	for _, path := range []string{"type", "sdp.type", "description.type"} {
		if v := gjson.GetBytes(payload, path); v.Type == gjson.String {
			if t := webrtc.NewSDPType(v.String()); t != webrtc.SDPTypeUnknown {
				return SignalKind(t.String())
			}
		}
	}

	for _, path := range []string{"@this", "candidate"} {
		v := gjson.GetBytes(payload, path)
		if !v.IsObject() {
			continue
		}
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(v.Raw), &init); err == nil && strings.HasPrefix(init.Candidate, "candidate:") {
			return SignalCandidate
		}
	}
	return SignalOpaque
}

// SignalRelay forwards huddle signaling between identities. Authorization
// of huddle membership belongs to the REST layer; the relay only checks
// that the huddle exists when joining.
type SignalRelay struct {
	registry *Registry
	pub      Publisher
	huddles  HuddleStore
}

func NewSignalRelay(registry *Registry, pub Publisher, huddles HuddleStore) *SignalRelay {
	return &SignalRelay{registry: registry, pub: pub, huddles: huddles}
}

func (s *SignalRelay) JoinHuddle(ctx context.Context, connID string, identity Identity, huddleID string) error {
	huddle, err := s.huddles.Get(ctx, huddleID)
	if err != nil {
		return storeError("failed to load huddle", err)
	}
	if huddle.Status == entity.HuddleEnded {
		return app_error.NotFound("huddle has ended", "huddleId")
	}

	room := HuddleRoom(huddleID)
	if !s.registry.Join(connID, room) {
		return app_error.NotFound("connection is closed", "connection")
	}

	s.pub.PublishRoom(room, ws_dto.NewEvent(ws_dto.EvParticipantJoined, ws_dto.Participant{
		HuddleID:   huddleID,
		IdentityID: identity.ID,
		Name:       identity.Name,
	}), "")
	log.Info().Str("huddleID", huddleID).Str("identityID", identity.ID).Msg("realtime: joined huddle room")
	return nil
}

func (s *SignalRelay) LeaveHuddle(connID string, identity Identity, huddleID string) error {
	room := HuddleRoom(huddleID)
	if !s.registry.Leave(connID, room) {
		return app_error.NotFound("not in huddle room", "huddleId")
	}
	if s.registry.IdentityInRoom(identity.ID, room, "") {
		log.Debug().Str("huddleID", huddleID).Str("identityID", identity.ID).Msg("realtime: connection left huddle, identity still present")
		return nil
	}

	s.pub.PublishRoom(room, ws_dto.NewEvent(ws_dto.EvParticipantLeft, ws_dto.Participant{
		HuddleID:   huddleID,
		IdentityID: identity.ID,
		Name:       identity.Name,
	}), "")
	log.Info().Str("huddleID", huddleID).Str("identityID", identity.ID).Msg("realtime: left huddle room")
	return nil
}

// Relay forwards payload to every connection of to and returns how many
// got it. Zero means the target is offline; nothing is queued or retried.
func (s *SignalRelay) Relay(from Identity, to, huddleID string, payload []byte) int {
	kind := ClassifySignal(payload)
	delivered := s.pub.PublishIdentity(to, ws_dto.NewEvent(ws_dto.EvSignal, ws_dto.SignalEvent{
		FromIdentity: from.ID,
		HuddleID:     huddleID,
		Payload:      payload,
	}))

	if delivered == 0 {
		log.Debug().Str("from", from.ID).Str("to", to).Str("huddleID", huddleID).Str("kind", string(kind)).Msg("realtime: signal target offline, dropped")
		return 0
	}
	s.registry.countSignal()
	log.Debug().Str("from", from.ID).Str("to", to).Str("huddleID", huddleID).Str("kind", string(kind)).Int("delivered", delivered).Msg("realtime: signal relayed")
	return delivered
}

// UpdateMedia persists mute, video and screen-share flags and tells the huddle room.
func (s *SignalRelay) UpdateMedia(ctx context.Context, connID string, identity Identity, huddleID string, media entity.MediaState) (*entity.HuddleParticipant, error) {
	room := HuddleRoom(huddleID)
	if !s.registry.IsSubscribed(connID, room) {
		return nil, app_error.Authz("join the huddle before updating media", "huddleId")
	}

	participant, err := s.huddles.UpdateParticipantMedia(ctx, huddleID, identity.ID, media)
	if err != nil {
		return nil, storeError("failed to update participant", err)
	}

	s.pub.PublishRoom(room, ws_dto.NewEvent(ws_dto.EvParticipantUpdated, ws_dto.Participant{
		HuddleID:    huddleID,
		IdentityID:  identity.ID,
		Name:        identity.Name,
		Participant: participant,
	}), "")
	return participant, nil
}

// Departed announces participant-left for each huddle room the closed
// connection was in where the identity has no other connection.
func (s *SignalRelay) Departed(identity Identity, connID string, rooms []string) {
	for _, room := range roomsOfKind(rooms, RoomHuddle) {
		if s.registry.IdentityInRoom(identity.ID, room, connID) {
			continue
		}
		_, huddleID, _ := ParseRoom(room)
		s.pub.PublishRoom(room, ws_dto.NewEvent(ws_dto.EvParticipantLeft, ws_dto.Participant{
			HuddleID:   huddleID,
			IdentityID: identity.ID,
			Name:       identity.Name,
		}), "")
	}
}
