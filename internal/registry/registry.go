// Package registry owns the set of authenticated relay connections.
// All cross-goroutine reads of the connection set go through its
// accessor methods; the raw map is never shared.
package registry

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/member"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/transport"
)

// Entry is one authenticated connection with its bound identity.
type Entry struct {
	Conn        *transport.Connection
	Identity    member.Identity
	ConnectedAt time.Time
}

// Registry tracks authenticated connections. Entries appear only
// after a successful handshake; an unauthenticated socket is never
// visible here.
type Registry struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*Entry
	guilds []string
	logger *slog.Logger
}

func New(logger *slog.Logger, guilds []string) *Registry {
	return &Registry{
		conns:  make(map[uuid.UUID]*Entry),
		guilds: guilds,
		logger: logger.With(slog.String("component", "registry")),
	}
}

// Put binds an identity to a connection. Registering the same
// connection twice replaces the entry, which cannot happen in
// practice because re-authentication is not offered.
func (r *Registry) Put(conn *transport.Connection, id member.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID()] = &Entry{
		Conn:        conn,
		Identity:    id,
		ConnectedAt: time.Now(),
	}
	r.logger.Debug("Connection registered",
		slog.String("connID", conn.ID().String()),
		slog.String("player", id.PlayerName),
		slog.String("guild", id.Guild),
	)
}

// Remove drops a connection from the set. Removing an unknown or
// already-removed connection is a no-op.
func (r *Registry) Remove(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return
	}
	delete(r.conns, connID)
	r.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
}

// Get returns the entry for a connection, if authenticated.
func (r *Registry) Get(connID uuid.UUID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	return e, ok
}

// Snapshot returns the current entries. The slice is a copy; callers
// can iterate it without holding any lock.
func (r *Registry) Snapshot() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.conns))
	for _, e := range r.conns {
		entries = append(entries, e)
	}
	return entries
}

// Count returns the total number of authenticated connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CountByGuild returns, per configured guild, the number of distinct
// authenticated players. A player with several simultaneous
// connections counts once.
func (r *Registry) CountByGuild() map[string]int {
	players := r.PlayersByGuild()
	counts := make(map[string]int, len(players))
	for guild, names := range players {
		counts[guild] = len(names)
	}
	return counts
}

// PlayersByGuild returns the distinct player names connected per
// configured guild, sorted for stable output. Identities carrying a
// guild outside the configured set are ignored.
func (r *Registry) PlayersByGuild() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]map[string]struct{}, len(r.guilds))
	for _, g := range r.guilds {
		seen[g] = make(map[string]struct{})
	}
	for _, e := range r.conns {
		set, ok := seen[e.Identity.Guild]
		if !ok {
			continue
		}
		set[e.Identity.PlayerName] = struct{}{}
	}

	players := make(map[string][]string, len(seen))
	for guild, set := range seen {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		players[guild] = names
	}
	return players
}

// DisconnectPlayer force-closes every connection bound to the given
// player name and reports whether any was connected. Closing races
// benignly with the connection's own shutdown; both paths are
// idempotent.
func (r *Registry) DisconnectPlayer(player string, code websocket.StatusCode, reason string) bool {
	disconnected := false
	for _, e := range r.Snapshot() {
		if !strings.EqualFold(e.Identity.PlayerName, player) {
			continue
		}
		e.Conn.CloseWithStatus(code, reason)
		r.Remove(e.Conn.ID())
		disconnected = true
		r.logger.Info("Force-disconnected player",
			slog.String("player", e.Identity.PlayerName),
			slog.String("reason", reason),
		)
	}
	return disconnected
}
