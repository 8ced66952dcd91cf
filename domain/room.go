package domain

import "strings"

type RoomName string

// GlobalRoom is the well-known public room every client can join.
const GlobalRoom RoomName = "global"

const privateRoomPrefix = "private:"

// PrivateRoomKey returns the canonical room shared by two participants.
// The pair is sorted so that both sides compute the same key.
func PrivateRoomKey(a, b string) RoomName {
	if b < a {
		a, b = b, a
	}
	return RoomName(privateRoomPrefix + a + ":" + b)
}

func (r RoomName) IsPrivate() bool {
	return strings.HasPrefix(string(r), privateRoomPrefix)
}

// Admits reports whether a participant may join or post to the room.
// Public rooms admit everyone; a private room only admits the two participants of its key.
func (r RoomName) Admits(participantID string) bool {
	if !r.IsPrivate() {
		return true
	}
	if participantID == "" {
		return false
	}
	pair := strings.TrimPrefix(string(r), privateRoomPrefix)
	if other, ok := strings.CutPrefix(pair, participantID+":"); ok && PrivateRoomKey(participantID, other) == r {
		return true
	}
	if other, ok := strings.CutSuffix(pair, ":"+participantID); ok && PrivateRoomKey(other, participantID) == r {
		return true
	}
	return false
}

// Set is a set of connection handles.
type Set map[ConnectionHandle]struct{}
