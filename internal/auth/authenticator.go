package auth

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/N1K0LAAAA/ImsBridgeServer/internal/registry"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/telemetry"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/protocol"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/transport"
)

// pending tracks a connection that has not yet authenticated.
type pending struct {
	conn  *transport.Connection
	timer *time.Timer
}

// Authenticator runs the handshake state machine. A connection is
// either pending here or registered in the registry, never both; the
// only transitions are pending→registered (success) and
// pending→closed (failure or timeout).
type Authenticator struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*pending

	keys     *KeyStore
	registry *registry.Registry
	timeout  time.Duration
	logger   *slog.Logger
}

func New(logger *slog.Logger, keys *KeyStore, reg *registry.Registry, timeout time.Duration) *Authenticator {
	return &Authenticator{
		pending:  make(map[uuid.UUID]*pending),
		keys:     keys,
		registry: reg,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "auth")),
	}
}

// Begin arms the handshake timer for a freshly accepted connection.
// If no valid handshake arrives before it fires, the connection is
// closed with the timeout code.
func (a *Authenticator) Begin(conn *transport.Connection) {
	p := &pending{conn: conn}
	p.timer = time.AfterFunc(a.timeout, func() {
		if !a.take(conn.ID()) {
			return // authenticated or cancelled in the meantime
		}
		a.logger.Info("Client authentication timeout", slog.String("connID", conn.ID().String()))
		telemetry.CountAuthFailure("timeout")
		conn.CloseWithStatus(protocol.CloseAuthTimeout, protocol.CloseReason(protocol.CloseAuthTimeout))
	})

	a.mu.Lock()
	a.pending[conn.ID()] = p
	a.mu.Unlock()
}

// Cancel forgets a pending connection and stops its timer, typically
// because the transport closed on its own. Idempotent.
func (a *Authenticator) Cancel(connID uuid.UUID) {
	a.take(connID)
}

// take removes the pending entry and stops its timer, reporting
// whether this call won the removal. At most one caller wins, which
// makes the timer cancellable exactly once.
func (a *Authenticator) take(connID uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[connID]
	if !ok {
		return false
	}
	delete(a.pending, connID)
	p.timer.Stop()
	return true
}

// HandleFrame processes the first frame from an unauthenticated
// connection. Success registers the connection with its resolved
// identity and sends the acknowledgment; any failure closes the
// connection with a distinct code. No retry is offered.
func (a *Authenticator) HandleFrame(connID uuid.UUID, raw []byte) {
	a.mu.Lock()
	p, ok := a.pending[connID]
	a.mu.Unlock()
	if !ok {
		return // already timed out or closed
	}
	conn := p.conn

	frame, err := protocol.DecodeClientFrame(raw)
	if err != nil {
		if !a.take(connID) {
			return
		}
		code := protocol.CloseInvalidFormat
		reason := "invalid-format"
		if errors.Is(err, protocol.ErrInvalidJSON) {
			code = protocol.CloseInvalidJSON
			reason = "invalid-json"
		}
		a.logger.Info("Invalid authentication payload",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		telemetry.CountAuthFailure(reason)
		conn.CloseWithStatus(code, protocol.CloseReason(code))
		return
	}

	hs, ok := frame.(protocol.HandshakeFrame)
	if !ok {
		if !a.take(connID) {
			return
		}
		a.logger.Info("First frame was not a handshake", slog.String("connID", connID.String()))
		telemetry.CountAuthFailure("invalid-format")
		conn.CloseWithStatus(protocol.CloseInvalidFormat, protocol.CloseReason(protocol.CloseInvalidFormat))
		return
	}

	identity, found := a.keys.Resolve(hs.Key)
	if !found {
		if !a.take(connID) {
			return
		}
		a.logger.Info("Invalid bridge key attempted", slog.String("connID", connID.String()))
		telemetry.CountAuthFailure("invalid-key")
		if ack, err := protocol.Marshal(protocol.AuthFailed("Invalid bridge key")); err == nil {
			conn.TrySend(ack)
		}
		conn.CloseWithStatus(protocol.CloseInvalidKey, protocol.CloseReason(protocol.CloseInvalidKey))
		return
	}

	if !a.take(connID) {
		return // timer fired while we were resolving
	}
	a.registry.Put(conn, identity)
	telemetry.SetActiveConnections(a.registry.Count())
	telemetry.Inc(telemetry.AuthSuccesses)

	a.logger.Info("Client authenticated",
		slog.String("player", identity.PlayerName),
		slog.String("guild", identity.Guild),
	)
	if ack, err := protocol.Marshal(protocol.AuthSuccess()); err == nil {
		conn.Send(ack)
	}
}
