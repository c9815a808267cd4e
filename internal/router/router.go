// Package router fans inbound relay frames out to the connections
// whose bound identity matches the target filters, and raises adapter
// events for the human-chat side.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/N1K0LAAAA/ImsBridgeServer/internal/auth"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/registry"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/telemetry"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/dedup"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/protocol"
)

const queryOnlinePlayers = "getOnlinePlayers"

type Router struct {
	logger        *slog.Logger
	registry      *registry.Registry
	authenticator *auth.Authenticator
	dedup         *dedup.Deduplicator
	events        Events
}

func New(logger *slog.Logger, reg *registry.Registry, authenticator *auth.Authenticator, deduplicator *dedup.Deduplicator, events Events) *Router {
	if events == nil {
		events = LogEvents{Logger: logger}
	}
	return &Router{
		logger:        logger.With(slog.String("component", "router")),
		registry:      reg,
		authenticator: authenticator,
		dedup:         deduplicator,
		events:        events,
	}
}

// SetEvents replaces the adapter boundary. Call before the server
// starts accepting connections.
func (r *Router) SetEvents(events Events) {
	r.events = events
}

// HandleMessage is the single inbound entry point, invoked serially
// per connection by its read pump. An unauthenticated connection's
// frame goes to the authenticator; everything else is decoded and
// routed.
func (r *Router) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	entry, ok := r.registry.Get(connID)
	if !ok {
		r.authenticator.HandleFrame(connID, msg)
		return
	}

	frame, err := protocol.DecodeClientFrame(msg)
	if err != nil {
		// Post-auth garbage is logged and dropped; the connection
		// itself stays up.
		r.logger.Warn("Discarding unparseable frame",
			slog.String("player", entry.Identity.PlayerName),
			slog.Any("error", err),
		)
		return
	}

	switch f := frame.(type) {
	case protocol.QueryFrame:
		r.handleQuery(entry, f)
	case protocol.ChatFrame:
		if f.Combined {
			r.handleCombined(entry, f)
		} else {
			r.handleGuildChat(entry, f)
		}
	case protocol.HandshakeFrame:
		// Re-authentication on a live connection is not supported; a
		// changed identity requires a new connection.
		r.logger.Warn("Ignoring handshake on authenticated connection",
			slog.String("player", entry.Identity.PlayerName),
		)
	}
}

// handleGuildChat deduplicates a guild chat line and hands it to the
// adapter scoped to the sender's guild.
func (r *Router) handleGuildChat(entry *registry.Entry, f protocol.ChatFrame) {
	if !r.dedup.IsUnique(f.Message) {
		telemetry.Inc(telemetry.DuplicateLines)
		r.logger.Debug("Dropped duplicate line", slog.String("player", entry.Identity.PlayerName))
		return
	}
	cleaned := dedup.Clean(f.Message)
	r.events.MemberMessage(cleaned, entry.Identity.PlayerName, entry.Identity.Guild, false)
}

// handleCombined broadcasts a combined-channel line to every
// authenticated connection except the originating socket, then echoes
// it to the adapter as a bounce so the chat side can mirror it.
// Another connection held by the same player still receives the
// frame; only the sending socket is skipped.
func (r *Router) handleCombined(entry *registry.Entry, f protocol.ChatFrame) {
	id := entry.Identity
	out := protocol.OutboundChat{
		From:       protocol.SenderClient,
		Message:    fmt.Sprintf("%s: %s", id.PlayerName, f.Message),
		Combined:   true,
		Guild:      id.Guild,
		FromPlayer: id.PlayerName,
	}
	data, err := protocol.Marshal(out)
	if err != nil {
		r.logger.Error("Failed to encode combined frame", slog.Any("error", err))
		return
	}
	r.fanOut(data, "", "", entry.Conn.ID())

	r.events.BounceMessage(f.Message, id.PlayerName, id.Guild)
	r.events.MemberMessage(f.Message, id.PlayerName, id.Guild, true)
}

// handleQuery answers a synchronous client request, unicast to the
// requesting player.
func (r *Router) handleQuery(entry *registry.Entry, f protocol.QueryFrame) {
	switch f.Request {
	case queryOnlinePlayers:
		resp := protocol.QueryResponse{
			Request:  f.Request,
			Response: r.registry.PlayersByGuild(),
		}
		if err := r.Publish(resp, "", entry.Identity.PlayerName); err != nil {
			r.logger.Error("Failed to answer query", slog.Any("error", err))
		}
	default:
		r.logger.Warn("Unknown client request",
			slog.String("request", f.Request),
			slog.String("player", entry.Identity.PlayerName),
		)
	}
}

// Publish fans a payload out to every authenticated connection whose
// identity matches the filters. An empty filter matches everything.
// Delivery is best-effort: a connection that is not writable right
// now is skipped, never queued or retried.
func (r *Router) Publish(payload any, targetGuild, targetPlayer string) error {
	data, err := protocol.Marshal(payload)
	if err != nil {
		return err
	}
	r.fanOut(data, targetGuild, targetPlayer, uuid.Nil)
	return nil
}

func (r *Router) fanOut(data []byte, targetGuild, targetPlayer string, skip uuid.UUID) {
	for _, e := range r.registry.Snapshot() {
		if e.Conn.ID() == skip {
			continue
		}
		if targetGuild != "" && e.Identity.Guild != targetGuild {
			continue
		}
		if targetPlayer != "" && !strings.EqualFold(e.Identity.PlayerName, targetPlayer) {
			continue
		}
		if e.Conn.TrySend(data) {
			telemetry.Inc(telemetry.FramesPublished)
		} else {
			telemetry.Inc(telemetry.FramesDropped)
		}
	}
}

// Count returns the number of authenticated connections.
func (r *Router) Count() int {
	return r.registry.Count()
}

// CountByGuild returns distinct authenticated players per guild.
func (r *Router) CountByGuild() map[string]int {
	return r.registry.CountByGuild()
}

// DisconnectPlayer force-closes a player's connections, reporting
// whether any was live. Used by revocation enforcement.
func (r *Router) DisconnectPlayer(player string) bool {
	ok := r.registry.DisconnectPlayer(player, protocol.CloseRevoked, protocol.CloseReason(protocol.CloseRevoked))
	telemetry.SetActiveConnections(r.registry.Count())
	return ok
}
