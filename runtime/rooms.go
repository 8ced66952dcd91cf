package runtime

import (
	"chat-relay/domain"
	"sync"

	"github.com/samber/lo"
)

// Rooms is the room manager.
// A connection belongs to at most one room at a time, and a room with no
// members is dropped immediately.
type Rooms struct {
	mu      sync.RWMutex
	members map[domain.RoomName]domain.Set              // map room -> connections
	roomOf  map[domain.ConnectionHandle]domain.RoomName // map connection -> room
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[domain.RoomName]domain.Set),
		roomOf:  make(map[domain.ConnectionHandle]domain.RoomName),
	}
}

// Join moves the connection into room, leaving its previous room first.
func (r *Rooms) Join(handle domain.ConnectionHandle, room domain.RoomName) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.roomOf[handle]; ok {
		if previous == room {
			return
		}
		r.removeLocked(handle, previous)
	}
	if _, ok := r.members[room]; !ok {
		r.members[room] = make(domain.Set)
	}
	r.members[room][handle] = struct{}{}
	r.roomOf[handle] = room
}

// Leave is a no-op when the connection is not in room.
func (r *Rooms) Leave(handle domain.ConnectionHandle, room domain.RoomName) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.roomOf[handle]; !ok || current != room {
		return
	}
	r.removeLocked(handle, room)
}

// Remove drops the connection from whatever room it is in.
func (r *Rooms) Remove(handle domain.ConnectionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.roomOf[handle]; ok {
		r.removeLocked(handle, room)
	}
}

func (r *Rooms) removeLocked(handle domain.ConnectionHandle, room domain.RoomName) {
	delete(r.roomOf, handle)
	if members, ok := r.members[room]; ok {
		delete(members, handle)

		// If no one is left in the room, remove the room entry entirely
		if len(members) == 0 {
			delete(r.members, room)
		}
	}
}

// MembersOf returns the connections of a room, nil when the room doesn't exist.
func (r *Rooms) MembersOf(room domain.RoomName) []domain.ConnectionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.members[room]
	if !ok {
		return nil
	}
	return lo.Keys(members)
}

func (r *Rooms) RoomOf(handle domain.ConnectionHandle) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.roomOf[handle]
	return room, ok
}

func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
