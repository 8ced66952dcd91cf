// Package domain contains core concepts of the chat system.
// This file defines Message records and their receipt/reaction rules.
// Only the router mutates a Message, through the methods below.
package domain

import (
	"time"

	"github.com/samber/lo"
)

// Message is a routed chat message.
// ID is always server assigned.
type Message struct {
	ID          string
	SenderID    string
	SenderName  string
	Content     string
	Room        RoomName
	RecipientID string // only for private messages
	Private     bool
	Lang        string // detected language, empty when unknown
	CreatedAt   time.Time
	ReadBy      []string
	Reactions   map[string][]string
}

// MarkRead appends readerID once. It reports whether the set changed.
func (m *Message) MarkRead(readerID string) bool {
	if lo.Contains(m.ReadBy, readerID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, readerID)
	return true
}

// React records reactorName under kind once. It reports whether the set changed.
func (m *Message) React(kind, reactorName string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	if lo.Contains(m.Reactions[kind], reactorName) {
		return false
	}
	m.Reactions[kind] = append(m.Reactions[kind], reactorName)
	return true
}

// Clone returns a deep copy so callers never share the router's slices.
func (m Message) Clone() Message {
	c := m
	c.ReadBy = append([]string(nil), m.ReadBy...)
	c.Reactions = make(map[string][]string, len(m.Reactions))
	for kind, names := range m.Reactions {
		c.Reactions[kind] = append([]string(nil), names...)
	}
	return c
}
