package ws_dto

import (
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	app_error "github.com/xenn00/teamchat/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	CmdJoinRoom             = "join-room"
	CmdLeaveRoom            = "leave-room"
	CmdSendMessage          = "send-message"
	CmdEditMessage          = "edit-message"
	CmdDeleteMessage        = "delete-message"
	CmdReact                = "react"
	CmdUnreact              = "unreact"
	CmdPin                  = "pin"
	CmdUnpin                = "unpin"
	CmdTypingStart          = "typing-start"
	CmdTypingStop           = "typing-stop"
	CmdStatusUpdate         = "status-update"
	CmdJoinHuddle           = "join-huddle"
	CmdLeaveHuddle          = "leave-huddle"
	CmdSignal               = "signal"
	CmdHuddleMedia          = "huddle-media"
	CmdRefreshSubscriptions = "refresh-subscriptions"
)

// Command is implemented only by the client event types in this package.
type Command interface {
	CommandType() string
	sealed()
}

type JoinRoom struct {
	Room string `json:"room" validate:"required,max=128"`
}

type LeaveRoom struct {
	Room string `json:"room" validate:"required,max=128"`
}

type SendMessage struct {
	ChannelID   string              `json:"channelId" validate:"required"`
	Content     string              `json:"content" validate:"max=40000"`
	Kind        string              `json:"type" validate:"omitempty,oneof=text file image video audio code"`
	ParentID    *string             `json:"parentId,omitempty"`
	Attachments []AttachmentPayload `json:"attachments,omitempty" validate:"max=10,dive"`
	Mentions    []string            `json:"mentions,omitempty" validate:"max=100,dive,required"`
}

type AttachmentPayload struct {
	Type     string `json:"type" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty" validate:"gte=0"`
}

type EditMessage struct {
	MessageID string `json:"messageId" validate:"required"`
	Content   string `json:"content" validate:"required,max=40000"`
}

type DeleteMessage struct {
	MessageID string `json:"messageId" validate:"required"`
}

type React struct {
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,max=64"`
}

type Unreact struct {
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,max=64"`
}

type Pin struct {
	MessageID string `json:"messageId" validate:"required"`
}

type Unpin struct {
	MessageID string `json:"messageId" validate:"required"`
}

type TypingStart struct {
	Room string `json:"room" validate:"required"`
}

type TypingStop struct {
	Room string `json:"room" validate:"required"`
}

type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=active away dnd"`
}

type JoinHuddle struct {
	HuddleID string `json:"huddleId" validate:"required"`
}

type LeaveHuddle struct {
	HuddleID string `json:"huddleId" validate:"required"`
}

type Signal struct {
	To       string              `json:"to" validate:"required"`
	HuddleID string              `json:"huddleId" validate:"required"`
	Payload  jsoniter.RawMessage `json:"payload" validate:"required"`
}

type HuddleMedia struct {
	HuddleID    string `json:"huddleId" validate:"required"`
	Muted       *bool  `json:"muted,omitempty"`
	Video       *bool  `json:"video,omitempty"`
	ScreenShare *bool  `json:"screenShare,omitempty"`
}

type RefreshSubscriptions struct{}

func (JoinRoom) CommandType() string             { return CmdJoinRoom }
func (LeaveRoom) CommandType() string            { return CmdLeaveRoom }
func (SendMessage) CommandType() string          { return CmdSendMessage }
func (EditMessage) CommandType() string          { return CmdEditMessage }
func (DeleteMessage) CommandType() string        { return CmdDeleteMessage }
func (React) CommandType() string                { return CmdReact }
func (Unreact) CommandType() string              { return CmdUnreact }
func (Pin) CommandType() string                  { return CmdPin }
func (Unpin) CommandType() string                { return CmdUnpin }
func (TypingStart) CommandType() string          { return CmdTypingStart }
func (TypingStop) CommandType() string           { return CmdTypingStop }
func (StatusUpdate) CommandType() string         { return CmdStatusUpdate }
func (JoinHuddle) CommandType() string           { return CmdJoinHuddle }
func (LeaveHuddle) CommandType() string          { return CmdLeaveHuddle }
func (Signal) CommandType() string               { return CmdSignal }
func (HuddleMedia) CommandType() string          { return CmdHuddleMedia }
func (RefreshSubscriptions) CommandType() string { return CmdRefreshSubscriptions }

func (JoinRoom) sealed()             {}
func (LeaveRoom) sealed()            {}
func (SendMessage) sealed()          {}
func (EditMessage) sealed()          {}
func (DeleteMessage) sealed()        {}
func (React) sealed()                {}
func (Unreact) sealed()              {}
func (Pin) sealed()                  {}
func (Unpin) sealed()                {}
func (TypingStart) sealed()          {}
func (TypingStop) sealed()           {}
func (StatusUpdate) sealed()         {}
func (JoinHuddle) sealed()           {}
func (LeaveHuddle) sealed()          {}
func (Signal) sealed()               {}
func (HuddleMedia) sealed()          {}
func (RefreshSubscriptions) sealed() {}

var decoders = map[string]func([]byte) (Command, error){
	CmdJoinRoom:             decodeInto[JoinRoom],
	CmdLeaveRoom:            decodeInto[LeaveRoom],
	CmdSendMessage:          decodeInto[SendMessage],
	CmdEditMessage:          decodeInto[EditMessage],
	CmdDeleteMessage:        decodeInto[DeleteMessage],
	CmdReact:                decodeInto[React],
	CmdUnreact:              decodeInto[Unreact],
	CmdPin:                  decodeInto[Pin],
	CmdUnpin:                decodeInto[Unpin],
	CmdTypingStart:          decodeInto[TypingStart],
	CmdTypingStop:           decodeInto[TypingStop],
	CmdStatusUpdate:         decodeInto[StatusUpdate],
	CmdJoinHuddle:           decodeInto[JoinHuddle],
	CmdLeaveHuddle:          decodeInto[LeaveHuddle],
	CmdSignal:               decodeInto[Signal],
	CmdHuddleMedia:          decodeInto[HuddleMedia],
	CmdRefreshSubscriptions: decodeInto[RefreshSubscriptions],
}

// Frame is one decoded client frame: {"type": ..., "ref": ..., "data": {...}}.
type Frame struct {
	Type    string
	Ref     string
	Command Command
}

// DecodeFrame validates the envelope and the typed body. Ref is filled in
// whenever it could be read, so errors can still be correlated.
func DecodeFrame(raw []byte) (Frame, error) {
	if !gjson.ValidBytes(raw) {
		return Frame{}, app_error.Validation("frame is not valid json", "frame")
	}

	res := gjson.GetManyBytes(raw, "type", "ref", "data")
	frame := Frame{Type: res[0].String(), Ref: res[1].String()}

	if frame.Type == "" {
		return frame, app_error.Validation("frame type is required", "type")
	}

	decode, ok := decoders[frame.Type]
	if !ok {
		return frame, app_error.Validation("unknown event type: "+frame.Type, "type")
	}

	body := []byte(res[2].Raw)
	if !res[2].Exists() {
		body = []byte("{}")
	} else if !res[2].IsObject() {
		return frame, app_error.Validation("data must be an object", "data")
	}

	cmd, err := decode(body)
	if err != nil {
		return frame, err
	}
	frame.Command = cmd
	return frame, nil
}

func decodeInto[T Command](body []byte) (Command, error) {
	var cmd T
	if err := json.Unmarshal(body, &cmd); err != nil {
		return nil, app_error.Validation("malformed event data", "data")
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	return cmd, nil
}

func validationError(err error) *app_error.AppError {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		field := lowerFirst(fe.Field())
		return app_error.Validation(field+" failed on "+fe.Tag(), field)
	}
	return app_error.Validation(err.Error(), "data")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
