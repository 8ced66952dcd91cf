//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Emitter is the outbound half of the event dispatcher.
// Both methods are fire-and-forget.
type Emitter interface {
	Emit(handle domain.ConnectionHandle, eventName string, payload any)
	Broadcast(eventName string, payload any)
}

// Outbox is the per-connection send queue owned by the transport.
// Send must never block.
type Outbox interface {
	Send(frame []byte) error
	Close()
}

// MessageSink receives accepted broadcast messages for persistence.
type MessageSink interface {
	Consume(ctx context.Context, message domain.Message) error
}

type IRegistry interface {
	Register(handle domain.ConnectionHandle, participantID, displayName string) (domain.Binding, error)
	Unregister(handle domain.ConnectionHandle) (domain.Binding, error)
	Lookup(handle domain.ConnectionHandle) (domain.Binding, error)
	Current(participantID string) (domain.ConnectionHandle, bool)
	HandlesOf(participantID string) []domain.ConnectionHandle
	Len() int
}

type IRoomManager interface {
	Join(handle domain.ConnectionHandle, room domain.RoomName)
	Leave(handle domain.ConnectionHandle, room domain.RoomName)
	MembersOf(room domain.RoomName) []domain.ConnectionHandle
	RoomOf(handle domain.ConnectionHandle) (domain.RoomName, bool)
	Remove(handle domain.ConnectionHandle)
	Len() int
}

// StatsProvider exposes a point-in-time view of the relay for observers.
type StatsProvider interface {
	Stats() domain.Stats
}

// PresenceReader is the read-only view of presence served to administrators.
type PresenceReader interface {
	Participant(participantID string) (domain.PresenceEntry, error)
	Snapshot() map[string]domain.PresenceEntry
	Stats() domain.Stats
}
