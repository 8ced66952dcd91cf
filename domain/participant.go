// Package domain contains core concepts of the chat system.
// This file defines Participant entities and their connection bindings.
// No runtime, network, or UI logic should be added here.
package domain

// ConnectionHandle identifies one live transport channel.
type ConnectionHandle string

type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
)

// Binding ties a connection to the participant identity it carried when it connected.
type Binding struct {
	Handle        ConnectionHandle
	ParticipantID string
	DisplayName   string
}

// PresenceEntry is the public view of one participant.
type PresenceEntry struct {
	DisplayName string `json:"username"`
	Status      Status `json:"status"`
}

func (p PresenceEntry) IsOnline() bool {
	return p.Status == Online
}
