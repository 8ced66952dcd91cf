package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"sync"
)

// Registry is the connection registry.
// It owns every connection -> participant binding and remembers which
// connection is the current one for each participant.
type Registry struct {
	mu       sync.RWMutex
	bindings map[domain.ConnectionHandle]domain.Binding // map connection -> identity
	current  map[string]domain.ConnectionHandle         // map participant -> newest connection
}

func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[domain.ConnectionHandle]domain.Binding),
		current:  make(map[string]domain.ConnectionHandle),
	}
}

// Register binds a connection to a participant and makes it the current connection.
// A prior connection of the same participant is superseded silently: its binding is kept
// until it disconnects, but it is no longer current.
func (r *Registry) Register(handle domain.ConnectionHandle, participantID, displayName string) (domain.Binding, error) {
	if participantID == "" || displayName == "" {
		return domain.Binding{}, errors.ErrIdentityMissing
	}
	binding := domain.Binding{Handle: handle, ParticipantID: participantID, DisplayName: displayName}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings[handle] = binding
	r.current[participantID] = handle
	return binding, nil
}

// Unregister removes the binding of a connection.
// The participant's current pointer is only cleared when it still points at this
// connection, so a late disconnect of a superseded connection leaves the newer one alone.
func (r *Registry) Unregister(handle domain.ConnectionHandle) (domain.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	binding, ok := r.bindings[handle]
	if !ok {
		return domain.Binding{}, errors.ErrNotFound
	}
	delete(r.bindings, handle)
	if r.current[binding.ParticipantID] == handle {
		delete(r.current, binding.ParticipantID)
	}
	return binding, nil
}

func (r *Registry) Lookup(handle domain.ConnectionHandle) (domain.Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding, ok := r.bindings[handle]
	if !ok {
		return domain.Binding{}, errors.ErrNotFound
	}
	return binding, nil
}

// Current returns the newest live connection of a participant.
func (r *Registry) Current(participantID string) (domain.ConnectionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.current[participantID]
	return handle, ok
}

func (r *Registry) IsCurrent(binding domain.Binding) bool {
	handle, ok := r.Current(binding.ParticipantID)
	return ok && handle == binding.Handle
}

// HandlesOf returns every connection still bound to the participant,
// superseded ones included.
func (r *Registry) HandlesOf(participantID string) []domain.ConnectionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var handles []domain.ConnectionHandle
	for handle, binding := range r.bindings {
		if binding.ParticipantID == participantID {
			handles = append(handles, handle)
		}
	}
	return handles
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
