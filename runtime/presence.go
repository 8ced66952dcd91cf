package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// Presence derives the online/offline table from registry changes.
// Entries are never deleted: a participant that left stays known as offline.
type Presence struct {
	mu       sync.RWMutex
	log      *slog.Logger
	registry contract.IRegistry
	emitter  contract.Emitter
	entries  map[string]domain.PresenceEntry
}

func NewPresence(log *slog.Logger, registry contract.IRegistry, emitter contract.Emitter) *Presence {
	return &Presence{
		log:      log,
		registry: registry,
		emitter:  emitter,
		entries:  make(map[string]domain.PresenceEntry),
	}
}

// MarkOnline sets the participant online and announces it to every connection,
// only on an offline/absent -> online transition. A reconnect that supersedes a live
// connection is therefore silent.
func (p *Presence) MarkOnline(participantID, displayName string) bool {
	p.mu.Lock()
	previous, known := p.entries[participantID]
	p.entries[participantID] = domain.PresenceEntry{DisplayName: displayName, Status: domain.Online}
	p.mu.Unlock()

	if known && previous.IsOnline() {
		return false
	}
	p.log.Debug("Participant online", "participant_id", participantID, "username", displayName)
	p.emitter.Broadcast(event.UserOnline, event.PresencePayload{UserID: participantID, Username: displayName})
	return true
}

// MarkOffline is called with the binding of a connection that just went away.
// Nothing happens when the registry already holds a newer connection for the participant.
func (p *Presence) MarkOffline(binding domain.Binding) bool {
	if handle, ok := p.registry.Current(binding.ParticipantID); ok {
		p.log.Debug("Stale disconnect ignored",
			"participant_id", binding.ParticipantID,
			"closed", binding.Handle,
			"current", handle)
		return false
	}

	p.mu.Lock()
	previous, known := p.entries[binding.ParticipantID]
	if !known || !previous.IsOnline() {
		p.mu.Unlock()
		return false
	}
	p.entries[binding.ParticipantID] = domain.PresenceEntry{DisplayName: previous.DisplayName, Status: domain.Offline}
	p.mu.Unlock()

	p.log.Debug("Participant offline", "participant_id", binding.ParticipantID)
	p.emitter.Broadcast(event.UserOffline, event.PresencePayload{
		UserID:   binding.ParticipantID,
		Username: previous.DisplayName,
	})
	return true
}

// Snapshot returns a copy of the whole presence table.
func (p *Presence) Snapshot() map[string]domain.PresenceEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Assign(p.entries)
}

func (p *Presence) Get(participantID string) (domain.PresenceEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.entries[participantID]
	if !ok {
		return domain.PresenceEntry{}, errors.ErrNotFound
	}
	return entry, nil
}

func (p *Presence) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.CountBy(lo.Values(p.entries), domain.PresenceEntry.IsOnline)
}

func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
