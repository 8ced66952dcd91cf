package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Reviewer moderates a message body before it is relayed.
type Reviewer interface {
	Review(text string) moderation.Review
}

// Router assigns message identifiers and fans chat traffic out to the right connections.
// It is the only owner of message records: receipts and reactions go through it.
type Router struct {
	mu         sync.RWMutex
	log        *slog.Logger
	registry   contract.IRegistry
	rooms      contract.IRoomManager
	emitter    contract.Emitter
	sink       contract.MessageSink
	reviewer   Reviewer
	messages   map[string]*domain.Message
	order      []string // insertion order, oldest first
	maxTracked int
	now        func() time.Time
	newID      func() string
}

type RouterOption func(*Router)

// WithSink hands every accepted broadcast message to a persistence sink.
func WithSink(sink contract.MessageSink) RouterOption {
	return func(r *Router) { r.sink = sink }
}

func WithReviewer(reviewer Reviewer) RouterOption {
	return func(r *Router) { r.reviewer = reviewer }
}

func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

func NewRouter(log *slog.Logger, registry contract.IRegistry, rooms contract.IRoomManager,
	emitter contract.Emitter, maxTracked int, opts ...RouterOption) *Router {
	r := &Router{
		log:        log,
		registry:   registry,
		rooms:      rooms,
		emitter:    emitter,
		messages:   make(map[string]*domain.Message),
		maxTracked: maxTracked,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendMessage stamps a broadcast message and delivers it to every member of its room,
// the sender's own connection included when it is a member.
func (r *Router) SendMessage(ctx context.Context, handle domain.ConnectionHandle, cmd domain.SendMessage) (domain.Message, error) {
	sender, err := r.sender(handle, cmd.SenderID)
	if err != nil {
		return domain.Message{}, err
	}
	room := cmd.Room
	if room == "" {
		room = domain.GlobalRoom
	}
	if !room.Admits(sender.ParticipantID) {
		return domain.Message{}, fmt.Errorf("%s posting to %s: %w", sender.ParticipantID, room, errors.ErrRoomForbidden)
	}

	msg := r.stamp(sender, cmd.Text, room)
	r.track(msg)

	payload := event.FromMessage(*msg)
	for _, member := range r.rooms.MembersOf(room) {
		r.emitter.Emit(member, event.Message, payload)
	}

	if r.sink != nil && !room.IsPrivate() {
		if err := r.sink.Consume(ctx, msg.Clone()); err != nil {
			r.log.Warn("Message not persisted", "message_id", msg.ID, "error", err)
		}
	}
	return msg.Clone(), nil
}

// PrivateMessage delivers to the canonical private room of the pair and to every bound
// connection of both participants. When the recipient has no current connection the
// sender side still gets its echo and ErrRecipientUnreachable is returned.
func (r *Router) PrivateMessage(_ context.Context, handle domain.ConnectionHandle, cmd domain.PrivateMessage) (domain.Message, error) {
	sender, err := r.sender(handle, cmd.SenderID)
	if err != nil {
		return domain.Message{}, err
	}
	room := domain.PrivateRoomKey(sender.ParticipantID, cmd.RecipientID)

	msg := r.stamp(sender, cmd.Text, room)
	msg.RecipientID = cmd.RecipientID
	msg.Private = true
	r.track(msg)

	targets := append(r.rooms.MembersOf(room), handle)
	targets = append(targets, r.registry.HandlesOf(sender.ParticipantID)...)
	targets = append(targets, r.registry.HandlesOf(cmd.RecipientID)...)
	_, reachable := r.registry.Current(cmd.RecipientID)

	payload := event.FromMessage(*msg)
	for _, target := range lo.Uniq(targets) {
		r.emitter.Emit(target, event.PrivateMessage, payload)
	}

	if !reachable {
		return msg.Clone(), fmt.Errorf("private message to %s: %w", cmd.RecipientID, errors.ErrRecipientUnreachable)
	}
	return msg.Clone(), nil
}

// Typing relays typing/stopTyping to the other members of the room.
// No connection of the sender receives it back.
func (r *Router) Typing(handle domain.ConnectionHandle, cmd domain.Typing) error {
	sender, err := r.sender(handle, cmd.UserID)
	if err != nil {
		return err
	}
	if !cmd.Room.Admits(sender.ParticipantID) {
		return fmt.Errorf("%s typing in %s: %w", sender.ParticipantID, cmd.Room, errors.ErrRoomForbidden)
	}
	own := lo.SliceToMap(r.registry.HandlesOf(sender.ParticipantID), func(h domain.ConnectionHandle) (domain.ConnectionHandle, struct{}) {
		return h, struct{}{}
	})
	own[handle] = struct{}{}

	payload := event.TypingPayload{UserID: sender.ParticipantID, Username: sender.DisplayName, Room: cmd.Room}
	for _, member := range r.rooms.MembersOf(cmd.Room) {
		if _, mine := own[member]; mine {
			continue
		}
		r.emitter.Emit(member, cmd.EventName(), payload)
	}
	return nil
}

// ReadReceipt records the reader once and relays the receipt to every connection.
// A receipt for an unknown message is still relayed.
func (r *Router) ReadReceipt(handle domain.ConnectionHandle, cmd domain.ReadReceipt) error {
	reader, err := r.sender(handle, cmd.ReaderID)
	if err != nil {
		return err
	}

	payload := event.ReadReceiptPayload{
		MessageID:  cmd.MessageID,
		ReaderID:   reader.ParticipantID,
		ReaderName: reader.DisplayName,
	}

	r.mu.Lock()
	if msg, ok := r.messages[cmd.MessageID]; ok {
		msg.MarkRead(reader.ParticipantID)
		payload.ReadBy = append([]string(nil), msg.ReadBy...)
	} else {
		r.log.Debug("Receipt for untracked message", "message_id", cmd.MessageID)
	}
	r.mu.Unlock()

	r.emitter.Broadcast(event.ReadReceipt, payload)
	return nil
}

// React adds the reactor's display name under the reaction kind once and relays it to every connection.
func (r *Router) React(handle domain.ConnectionHandle, cmd domain.MessageReaction) error {
	reactor, err := r.sender(handle, cmd.ReactorID)
	if err != nil {
		return err
	}

	payload := event.ReactionPayload{
		MessageID:   cmd.MessageID,
		Reaction:    cmd.Reaction,
		ReactorID:   reactor.ParticipantID,
		ReactorName: reactor.DisplayName,
	}

	r.mu.Lock()
	if msg, ok := r.messages[cmd.MessageID]; ok {
		msg.React(cmd.Reaction, reactor.DisplayName)
		payload.Reactions = msg.Clone().Reactions
	} else {
		r.log.Debug("Reaction for untracked message", "message_id", cmd.MessageID)
	}
	r.mu.Unlock()

	r.emitter.Broadcast(event.MessageReaction, payload)
	return nil
}

// Message returns a copy of a tracked message.
func (r *Router) Message(id string) (domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[id]
	if !ok {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	return msg.Clone(), nil
}

func (r *Router) Tracked() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

// sender resolves the identity of a connection. Identity fields in the payload never
// override the registry; a mismatch is only logged.
func (r *Router) sender(handle domain.ConnectionHandle, claimed string) (domain.Binding, error) {
	binding, err := r.registry.Lookup(handle)
	if err != nil {
		return domain.Binding{}, fmt.Errorf("connection %s: %w", handle, errors.ErrUnauthenticatedSend)
	}
	if claimed != "" && claimed != binding.ParticipantID {
		r.log.Warn("Payload identity ignored",
			"connection", handle,
			"claimed", claimed,
			"participant_id", binding.ParticipantID)
	}
	return binding, nil
}

func (r *Router) stamp(sender domain.Binding, text string, room domain.RoomName) *domain.Message {
	msg := &domain.Message{
		ID:         r.newID(),
		SenderID:   sender.ParticipantID,
		SenderName: sender.DisplayName,
		Content:    text,
		Room:       room,
		CreatedAt:  r.now(),
	}
	if r.reviewer != nil {
		review := r.reviewer.Review(text)
		msg.Content = review.Text
		msg.Lang = review.Lang
	}
	return msg
}

// track keeps at most maxTracked records, evicting the oldest first.
func (r *Router) track(msg *domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages[msg.ID] = msg
	r.order = append(r.order, msg.ID)
	if r.maxTracked <= 0 {
		return
	}
	for len(r.order) > r.maxTracked {
		delete(r.messages, r.order[0])
		r.order = r.order[1:]
	}
}
