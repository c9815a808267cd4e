package router

import "log/slog"

// Events is the outbound boundary to the human-chat adapter. The
// router raises these instead of talking to any chat platform
// directly; the adapter decides how to render and where to post.
type Events interface {
	// MemberMessage reports an accepted chat line from a relay client.
	MemberMessage(message, player, guild string, combined bool)

	// BounceMessage echoes a combined-channel line back so the
	// adapter can mirror it without re-deriving the combined-delivery
	// decision. The router has already fanned the line out to relay
	// connections; the adapter must not publish it again.
	BounceMessage(message, player, guild string)
}

// LogEvents is the default adapter: it only logs. Used until a real
// chat adapter is wired in by the embedding process.
type LogEvents struct {
	Logger *slog.Logger
}

func (e LogEvents) MemberMessage(message, player, guild string, combined bool) {
	e.Logger.Info("member message",
		slog.String("player", player),
		slog.String("guild", guild),
		slog.Bool("combined", combined),
		slog.String("message", message),
	)
}

func (e LogEvents) BounceMessage(message, player, guild string) {
	e.Logger.Info("bounce message",
		slog.String("player", player),
		slog.String("guild", guild),
		slog.String("message", message),
	)
}
