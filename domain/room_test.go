package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPrivateRoomKey_Order_Independent(t *testing.T) {
	req := require.New(t)

	for i := 0; i < 50; i++ {
		a, b := uuid.NewString(), uuid.NewString()
		// When both sides compute the key
		// Then they agree
		req.Equal(PrivateRoomKey(a, b), PrivateRoomKey(b, a))
		req.True(PrivateRoomKey(a, b).IsPrivate())
	}
}

func TestPrivateRoomKey_Distinct_Pairs(t *testing.T) {
	req := require.New(t)
	req.NotEqual(PrivateRoomKey("alice", "bob"), PrivateRoomKey("alice", "clara"))
	req.Equal(RoomName("private:alice:bob"), PrivateRoomKey("bob", "alice"))
	req.False(GlobalRoom.IsPrivate())
}

func TestRoomName_Admits(t *testing.T) {
	room := PrivateRoomKey("bob", "alice")

	tests := []struct {
		name          string
		room          RoomName
		participantID string
		expected      bool
	}{
		{name: "public room admits anyone", room: GlobalRoom, participantID: "eve", expected: true},
		{name: "public room admits anonymous", room: "lobby", participantID: "", expected: true},
		{name: "first party", room: room, participantID: "alice", expected: true},
		{name: "second party", room: room, participantID: "bob", expected: true},
		{name: "third party", room: room, participantID: "eve", expected: false},
		{name: "anonymous", room: room, participantID: "", expected: false},
		{name: "whole pair as id", room: room, participantID: "alice:bob", expected: false},
		{name: "prefix of a party", room: room, participantID: "ali", expected: false},
		{name: "self conversation", room: PrivateRoomKey("alice", "alice"), participantID: "alice", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.room.Admits(tt.participantID))
		})
	}
}
