// Package event holds the outbound events the relay emits to connections.
package event

import (
	"chat-relay/domain"
	"time"
)

const (
	OnlineUsers     = "onlineUsers"
	UserOnline      = "userOnline"
	UserOffline     = "userOffline"
	Message         = "message"
	PrivateMessage  = "privateMessage"
	Typing          = "typing"
	StopTyping      = "stopTyping"
	ReadReceipt     = "readReceipt"
	MessageReaction = "messageReaction"
	ResponseMessage = "response_message"
)

type OnlineUsersPayload map[string]domain.PresenceEntry

type PresencePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type MessagePayload struct {
	ID          string              `json:"id"`
	SenderID    string              `json:"senderId"`
	SenderName  string              `json:"senderName"`
	Text        string              `json:"text"`
	Room        domain.RoomName     `json:"room"`
	RecipientID string              `json:"recipientId,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	ReadBy      []string            `json:"readBy"`
	Reactions   map[string][]string `json:"reactions"`
}

type TypingPayload struct {
	UserID   string          `json:"userId"`
	Username string          `json:"username"`
	Room     domain.RoomName `json:"room"`
}

type ReadReceiptPayload struct {
	MessageID  string   `json:"messageId"`
	ReaderID   string   `json:"readerId"`
	ReaderName string   `json:"readerName"`
	ReadBy     []string `json:"readBy,omitempty"`
}

type ReactionPayload struct {
	MessageID   string              `json:"messageId"`
	Reaction    string              `json:"reaction"`
	ReactorID   string              `json:"reactorId"`
	ReactorName string              `json:"reactorName"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
}

func FromMessage(m domain.Message) MessagePayload {
	c := m.Clone()
	if c.ReadBy == nil {
		c.ReadBy = []string{}
	}
	return MessagePayload{
		ID:          c.ID,
		SenderID:    c.SenderID,
		SenderName:  c.SenderName,
		Text:        c.Content,
		Room:        c.Room,
		RecipientID: c.RecipientID,
		Timestamp:   c.CreatedAt,
		ReadBy:      c.ReadBy,
		Reactions:   c.Reactions,
	}
}
