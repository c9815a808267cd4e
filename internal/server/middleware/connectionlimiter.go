package middleware

import (
	"log/slog"
	"net/http"
)

type ConnectionCounter func() int

// NewConnectionLimiter rejects websocket upgrades once the server
// holds max concurrent connections. A limit of zero disables the
// guard. Rejection happens at the HTTP layer, before any socket state
// is allocated.
func NewConnectionLimiter(logger *slog.Logger, counter ConnectionCounter, max int) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if max <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			count := counter()
			if count < max {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("Server connection limit reached", slog.Int("count", count), slog.Int("max", max))
			http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
		})
	}
}
