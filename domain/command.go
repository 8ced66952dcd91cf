package domain

// Inbound event names, as sent by clients.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventJoinRoom        = "joinRoom"
	EventLeaveRoom       = "leaveRoom"
	EventSendMessage     = "sendMessage"
	EventPrivateMessage  = "privateMessage"
	EventTyping          = "typing"
	EventStopTyping      = "stopTyping"
	EventReadReceipt     = "readReceipt"
	EventMessageReaction = "messageReaction"
	EventTestMessage     = "test_message"
)

// Command is the tagged variant carried by every inbound event.
type Command interface {
	EventName() string
}

// Envelope is one inbound event on one connection.
type Envelope struct {
	Handle  ConnectionHandle
	Command Command
}

// Connect is synthesised by the transport once the handshake identity is known.
// Both fields may be empty for an anonymous connection.
type Connect struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

func (Connect) EventName() string { return EventConnect }

type Disconnect struct{}

func (Disconnect) EventName() string { return EventDisconnect }

type JoinRoom struct {
	RoomName RoomName `json:"roomName" validate:"required,max=256"`
}

func (JoinRoom) EventName() string { return EventJoinRoom }

type LeaveRoom struct {
	RoomName RoomName `json:"roomName" validate:"required,max=256"`
}

func (LeaveRoom) EventName() string { return EventLeaveRoom }

type SendMessage struct {
	SenderID   string   `json:"senderId"`
	SenderName string   `json:"senderName"`
	Text       string   `json:"text" validate:"required"`
	Room       RoomName `json:"room" validate:"max=256"`
}

func (SendMessage) EventName() string { return EventSendMessage }

type PrivateMessage struct {
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	Text        string `json:"text" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
}

func (PrivateMessage) EventName() string { return EventPrivateMessage }

// Typing carries both typing and stopTyping, Stopped tells them apart.
type Typing struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Room     RoomName `json:"room" validate:"required,max=256"`
	Stopped  bool     `json:"-"`
}

func (t Typing) EventName() string {
	if t.Stopped {
		return EventStopTyping
	}
	return EventTyping
}

type ReadReceipt struct {
	MessageID  string `json:"messageId" validate:"required"`
	ReaderID   string `json:"readerId"`
	ReaderName string `json:"readerName"`
}

func (ReadReceipt) EventName() string { return EventReadReceipt }

type MessageReaction struct {
	MessageID   string `json:"messageId" validate:"required"`
	Reaction    string `json:"reaction" validate:"required,max=64"`
	ReactorID   string `json:"reactorId"`
	ReactorName string `json:"reactorName"`
}

func (MessageReaction) EventName() string { return EventMessageReaction }

// TestMessage is the diagnostic echo request.
type TestMessage struct {
	Text string
}

func (TestMessage) EventName() string { return EventTestMessage }
