// Package websocket is the client-facing transport of the relay: one gorilla
// websocket per connection, frames encoded as {"event","data"} JSON.
package websocket

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	relayerrors "chat-relay/errors"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const HealthMessage = "Chat relay server is running!"

// Inbound is the part of the dispatcher the transport feeds.
type Inbound interface {
	Attach(handle domain.ConnectionHandle, outbox contract.Outbox)
	Detach(handle domain.ConnectionHandle)
	Dispatch(ctx context.Context, handle domain.ConnectionHandle, raw []byte) error
	Submit(ctx context.Context, envelope domain.Envelope) error
}

type IdentityResolver interface {
	Resolve(req *http.Request) (auth.Identity, error)
}

type Options struct {
	MaxMessageSize int64
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	OutboxSize     int
	AllowedOrigins []string
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongTimeout * 9) / 10
}

type Server struct {
	log      *slog.Logger
	inbound  Inbound
	resolver IdentityResolver
	options  Options
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu    sync.Mutex
	conns map[domain.ConnectionHandle]*Conn
}

func NewServer(log *slog.Logger, inbound Inbound, resolver IdentityResolver, options Options) *Server {
	s := &Server{
		log:      log,
		inbound:  inbound,
		resolver: resolver,
		options:  options,
		mux:      http.NewServeMux(),
		conns:    make(map[domain.ConnectionHandle]*Conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.mux.HandleFunc("GET /{$}", s.health)
	s.mux.HandleFunc("GET /ws", s.serveWS)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(HealthMessage))
}

// checkOrigin accepts any origin when none is configured. Requests without an
// Origin header are not browsers and are always accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(s.options.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	return lo.Contains(s.options.AllowedOrigins, origin)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.resolver.Resolve(r)
	switch {
	case errors.Is(err, relayerrors.ErrInvalidToken):
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	case err != nil:
		http.Error(w, "invalid identity", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied to the client.
		s.log.Debug("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	handle := domain.ConnectionHandle(uuid.NewString())
	conn := newConn(handle, ws, s.log, s.options)
	s.track(conn)
	defer s.untrack(handle)

	s.inbound.Attach(handle, conn)
	connect := domain.Envelope{
		Handle:  handle,
		Command: domain.Connect{ParticipantID: identity.ParticipantID, DisplayName: identity.DisplayName},
	}
	if err := s.inbound.Submit(r.Context(), connect); err != nil {
		s.log.Warn("Connect lost", "connection", handle, "error", err)
		s.inbound.Detach(handle)
		_ = ws.Close()
		return
	}
	s.log.Debug("Connection opened", "connection", handle, "participant_id", identity.ParticipantID)

	go conn.writePump()
	conn.readPump(r.Context(), s.inbound)
}

// Close drops every live socket. Each read pump then reports its disconnect.
func (s *Server) Close() {
	s.mu.Lock()
	conns := lo.Values(s.conns)
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.ws.Close()
	}
}

// Len returns the number of live sockets.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.handle] = conn
}

func (s *Server) untrack(handle domain.ConnectionHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, handle)
}
