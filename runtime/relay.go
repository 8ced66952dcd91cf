// Package runtime holds the in-memory state of the relay and the service context
// that applies inbound events to it.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/dispatcher"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Relay is the single service context of the server. It owns the registry, presence,
// rooms and router, binds them to the dispatcher's inbound events and runs the
// dispatcher loop under supervision.
type Relay struct {
	mu         sync.Mutex
	log        *slog.Logger
	dispatcher *dispatcher.Dispatcher
	supervisor contract.ISupervisor
	registry   *Registry
	presence   *Presence
	rooms      *Rooms
	router     *Router
	workers    []contract.Worker
}

func NewRelay(log *slog.Logger, d *dispatcher.Dispatcher, supervisor contract.ISupervisor,
	maxTracked int, opts ...RouterOption) *Relay {
	registry := NewRegistry()
	rooms := NewRooms()
	r := &Relay{
		log:        log,
		dispatcher: d,
		supervisor: supervisor,
		registry:   registry,
		rooms:      rooms,
		presence:   NewPresence(log, registry, d),
		router:     NewRouter(log, registry, rooms, d, maxTracked, opts...),
	}
	r.bind()
	return r
}

func (r *Relay) bind() {
	r.dispatcher.On(domain.EventConnect, r.onConnect)
	r.dispatcher.On(domain.EventDisconnect, r.onDisconnect)
	r.dispatcher.On(domain.EventJoinRoom, r.onJoinRoom)
	r.dispatcher.On(domain.EventLeaveRoom, r.onLeaveRoom)
	r.dispatcher.On(domain.EventSendMessage, r.onSendMessage)
	r.dispatcher.On(domain.EventPrivateMessage, r.onPrivateMessage)
	r.dispatcher.On(domain.EventTyping, r.onTyping)
	r.dispatcher.On(domain.EventStopTyping, r.onTyping)
	r.dispatcher.On(domain.EventReadReceipt, r.onReadReceipt)
	r.dispatcher.On(domain.EventMessageReaction, r.onMessageReaction)
	r.dispatcher.On(domain.EventTestMessage, r.onTestMessage)
}

// Add registers background workers started together with the dispatcher loop.
func (r *Relay) Add(workers ...contract.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = append(r.workers, workers...)
}

// Start runs the dispatcher loop and every added worker under the supervisor.
// It blocks until ctx is canceled or Stop is called.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	r.supervisor.Add(r.dispatcher)
	r.supervisor.Add(r.workers...)
	r.mu.Unlock()

	r.log.Info("Starting relay and all supervised workers")
	r.supervisor.Run(ctx)
}

func (r *Relay) Stop() {
	r.log.Info("Requesting relay shutdown")
	r.supervisor.Stop()
}

// onConnect registers the identity carried by the handshake and seeds the client
// with the presence table. Anonymous connections get the table but stay out of presence.
func (r *Relay) onConnect(_ context.Context, handle domain.ConnectionHandle, cmd domain.Command) error {
	connect := cmd.(domain.Connect)
	binding, err := r.registry.Register(handle, connect.ParticipantID, connect.DisplayName)
	if err == nil {
		r.presence.MarkOnline(binding.ParticipantID, binding.DisplayName)
	}
	r.dispatcher.Emit(handle, event.OnlineUsers, event.OnlineUsersPayload(r.presence.Snapshot()))
	if err != nil {
		return fmt.Errorf("anonymous connection %s: %w", handle, err)
	}
	r.log.Info("Participant connected", "participant_id", binding.ParticipantID, "connection", handle)
	return nil
}

// onDisconnect cleans up the connection. The participant only goes offline when this
// connection was still its current one.
func (r *Relay) onDisconnect(_ context.Context, handle domain.ConnectionHandle, _ domain.Command) error {
	r.rooms.Remove(handle)
	binding, err := r.registry.Unregister(handle)
	if err != nil {
		return fmt.Errorf("disconnect of %s: %w", handle, err)
	}
	r.presence.MarkOffline(binding)
	r.log.Info("Participant disconnected", "participant_id", binding.ParticipantID, "connection", handle)
	return nil
}

// onJoinRoom moves the connection into a room. A private room is only open to the
// two participants of its key.
func (r *Relay) onJoinRoom(_ context.Context, handle domain.ConnectionHandle, cmd domain.Command) error {
	room := cmd.(domain.JoinRoom).RoomName
	if room.IsPrivate() {
		binding, err := r.registry.Lookup(handle)
		if err != nil || !room.Admits(binding.ParticipantID) {
			return fmt.Errorf("connection %s joining %s: %w", handle, room, errors.ErrRoomForbidden)
		}
	}
	r.rooms.Join(handle, room)
	r.log.Debug("Room joined", "connection", handle, "room", room)
	return nil
}

func (r *Relay) onLeaveRoom(_ context.Context, handle domain.ConnectionHandle, cmd domain.Command) error {
	r.rooms.Leave(handle, cmd.(domain.LeaveRoom).RoomName)
	return nil
}

func (r *Relay) onSendMessage(ctx context.Context, handle domain.ConnectionHandle, cmd domain.Command) error {
	_, err := r.router.SendMessage(ctx, handle, cmd.(domain.SendMessage))
	return err
}

func (r *Relay) onPrivateMessage(ctx context.Context, handle domain.ConnectionHandle, cmd domain.Command) error {
	_, err := r.router.PrivateMessage(ctx, handle, cmd.(domain.PrivateMessage))
	return err
}

func (r *Relay) onTyping(_ context.Context, handle domain.ConnectionHandle, cmd domain.Command) error {
	return r.router.Typing(handle, cmd.(domain.Typing))
}

func (r *Relay) onReadReceipt(_ context.Context, handle domain.ConnectionHandle, cmd domain.Command) error {
	return r.router.ReadReceipt(handle, cmd.(domain.ReadReceipt))
}

func (r *Relay) onMessageReaction(_ context.Context, handle domain.ConnectionHandle, cmd domain.Command) error {
	return r.router.React(handle, cmd.(domain.MessageReaction))
}

func (r *Relay) onTestMessage(_ context.Context, handle domain.ConnectionHandle, cmd domain.Command) error {
	r.dispatcher.Emit(handle, event.ResponseMessage, fmt.Sprintf("Server received: %q", cmd.(domain.TestMessage).Text))
	return nil
}

// Participant returns the presence entry of one participant.
func (r *Relay) Participant(participantID string) (domain.PresenceEntry, error) {
	entry, err := r.presence.Get(participantID)
	if err != nil {
		return domain.PresenceEntry{}, fmt.Errorf("participant %s: %w", participantID, errors.ErrNotFound)
	}
	return entry, nil
}

func (r *Relay) Snapshot() map[string]domain.PresenceEntry {
	return r.presence.Snapshot()
}

func (r *Relay) Stats() domain.Stats {
	queued, capacity := r.dispatcher.Pending()
	return domain.Stats{
		Connections:     r.dispatcher.Connections(),
		Rooms:           r.rooms.Len(),
		Online:          r.presence.OnlineCount(),
		Known:           r.presence.Len(),
		TrackedMessages: r.router.Tracked(),
		Queued:          queued,
		QueueCapacity:   capacity,
	}
}
