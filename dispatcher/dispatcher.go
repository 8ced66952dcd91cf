// Package dispatcher is the seam between the transport and the relay.
// Inbound events are queued and applied one at a time by Run, in arrival order;
// outbound events are pushed to per-connection outboxes without blocking.
package dispatcher

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// HandlerFunc handles one inbound event of one connection.
type HandlerFunc func(ctx context.Context, handle domain.ConnectionHandle, cmd domain.Command) error

type Dispatcher struct {
	log      *slog.Logger
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	outboxes map[domain.ConnectionHandle]contract.Outbox
	pending  map[domain.ConnectionHandle]contract.Outbox // attached, connect not handled yet
	inbound  chan domain.Envelope
}

func New(log *slog.Logger, bufferSize int) *Dispatcher {
	return &Dispatcher{
		log:      log,
		handlers: make(map[string]HandlerFunc),
		outboxes: make(map[domain.ConnectionHandle]contract.Outbox),
		pending:  make(map[domain.ConnectionHandle]contract.Outbox),
		inbound:  make(chan domain.Envelope, bufferSize),
	}
}

// On registers the handler of an inbound event name, replacing any previous one.
func (d *Dispatcher) On(eventName string, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventName] = handler
}

// Attach registers the outbox of a new connection. Until its connect event has been
// handled it only receives events emitted to it directly, so the connect handler's
// reply is the first frame it sees. It is detached once its disconnect event has been handled.
func (d *Dispatcher) Attach(handle domain.ConnectionHandle, outbox contract.Outbox) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[handle] = outbox
}

// Detach forgets a connection and closes its outbox. It is a no-op for unknown handles.
func (d *Dispatcher) Detach(handle domain.ConnectionHandle) {
	d.mu.Lock()
	outbox, ok := d.outboxes[handle]
	if !ok {
		outbox, ok = d.pending[handle]
	}
	delete(d.outboxes, handle)
	delete(d.pending, handle)
	d.mu.Unlock()

	if ok {
		outbox.Close()
	}
}

// activate makes a pending connection reachable by Broadcast.
func (d *Dispatcher) activate(handle domain.ConnectionHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if outbox, ok := d.pending[handle]; ok {
		d.outboxes[handle] = outbox
		delete(d.pending, handle)
	}
}

// Emit sends one event to one connection. Failures stay local to that connection.
func (d *Dispatcher) Emit(handle domain.ConnectionHandle, eventName string, payload any) {
	d.mu.RLock()
	outbox, ok := d.outboxes[handle]
	if !ok {
		outbox, ok = d.pending[handle]
	}
	d.mu.RUnlock()
	if !ok {
		d.log.Debug("Emit to detached connection", "connection", handle, "event", eventName)
		return
	}

	frame, err := Encode(eventName, payload)
	if err != nil {
		d.log.Error("Failed to encode event", "event", eventName, "error", err)
		return
	}
	d.send(handle, outbox, eventName, frame)
}

// Broadcast sends one event to every connection whose connect has been handled.
func (d *Dispatcher) Broadcast(eventName string, payload any) {
	frame, err := Encode(eventName, payload)
	if err != nil {
		d.log.Error("Failed to encode event", "event", eventName, "error", err)
		return
	}

	d.mu.RLock()
	targets := lo.Entries(d.outboxes)
	d.mu.RUnlock()

	for _, target := range targets {
		d.send(target.Key, target.Value, eventName, frame)
	}
}

func (d *Dispatcher) send(handle domain.ConnectionHandle, outbox contract.Outbox, eventName string, frame []byte) {
	if err := outbox.Send(frame); err != nil {
		d.log.Warn("Event dropped", "connection", handle, "event", eventName, "error", err)
	}
}

// Dispatch decodes a raw inbound frame and queues it.
func (d *Dispatcher) Dispatch(ctx context.Context, handle domain.ConnectionHandle, raw []byte) error {
	cmd, err := Decode(raw)
	if err != nil {
		return err
	}
	return d.Submit(ctx, domain.Envelope{Handle: handle, Command: cmd})
}

// Submit queues an envelope, blocking while the queue is full so that a
// connection's events keep their order.
func (d *Dispatcher) Submit(ctx context.Context, envelope domain.Envelope) error {
	select {
	case d.inbound <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the single processing loop of the relay.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.log.Debug("Context done, stopping dispatcher")
			return nil
		case envelope := <-d.inbound:
			d.Process(ctx, envelope)
		}
	}
}

// Process applies one envelope. A failing or panicking handler only affects its own event.
func (d *Dispatcher) Process(ctx context.Context, envelope domain.Envelope) {
	name := envelope.Command.EventName()
	switch name {
	case domain.EventConnect:
		defer d.activate(envelope.Handle)
	case domain.EventDisconnect:
		defer d.Detach(envelope.Handle)
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Handler panic recovered",
				"connection", envelope.Handle,
				"event", name,
				"error", fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r))
		}
	}()

	d.mu.RLock()
	handler, ok := d.handlers[name]
	d.mu.RUnlock()
	if !ok {
		d.log.Debug("No handler registered", "event", name)
		return
	}

	if err := handler(ctx, envelope.Handle, envelope.Command); err != nil {
		logAttrs := []any{"connection", envelope.Handle, "event", name, "error", err}
		if errors.IsBenign(err) {
			d.log.Debug("Event rejected", logAttrs...)
			return
		}
		d.log.Warn("Event rejected", logAttrs...)
	}
}

// Connections returns the number of connections whose connect has been handled.
func (d *Dispatcher) Connections() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.outboxes)
}

// Pending returns how many inbound events wait in the queue and its capacity.
// Both reads are non-blocking so observers can sample them at any time.
func (d *Dispatcher) Pending() (int, int) {
	return len(d.inbound), cap(d.inbound)
}
