package realtime

import "strings"

type RoomKind string

const (
	RoomChannel   RoomKind = "channel"
	RoomWorkspace RoomKind = "workspace"
	RoomHuddle    RoomKind = "huddle"
)

func ChannelRoom(id string) string   { return string(RoomChannel) + ":" + id }
func WorkspaceRoom(id string) string { return string(RoomWorkspace) + ":" + id }
func HuddleRoom(id string) string    { return string(RoomHuddle) + ":" + id }

// ParseRoom splits "kind:id". Unknown kinds and empty ids are rejected.
func ParseRoom(room string) (RoomKind, string, bool) {
	kind, id, ok := strings.Cut(room, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch RoomKind(kind) {
	case RoomChannel, RoomWorkspace, RoomHuddle:
		return RoomKind(kind), id, true
	}
	return "", "", false
}

func roomsOfKind(rooms []string, kind RoomKind) []string {
	var out []string
	for _, r := range rooms {
		if k, _, ok := ParseRoom(r); ok && k == kind {
			out = append(out, r)
		}
	}
	return out
}
