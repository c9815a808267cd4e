package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims defines the JWT claims accepted on the admin API.
type AdminClaims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// NewAdminAuthMiddleware guards the administrative HTTP endpoints
// with an HMAC-signed bearer token carrying the admin claim. Relay
// sockets are unaffected; they authenticate in-band with bridge keys.
func NewAdminAuthMiddleware(logger *slog.Logger, jwtSecret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if jwtSecret == "" {
				logger.Error("Admin API requested but no JWT secret is configured")
				http.Error(w, "Admin API disabled", http.StatusForbidden)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				logger.Warn("Admin request without bearer token", slog.String("ip", reqMeta.IP))
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("Invalid admin token presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(*AdminClaims)
			if !ok || claims.Subject == "" {
				logger.Warn("Valid token missing 'sub' claim", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !claims.Admin {
				logger.Warn("Token lacks admin claim",
					slog.String("ip", reqMeta.IP),
					slog.String("sub", claims.Subject),
				)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			reqMeta.AdminUser = claims.Subject
			next.ServeHTTP(w, r)
		})
	}
}
