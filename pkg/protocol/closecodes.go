package protocol

import "github.com/coder/websocket"

// Application close codes. Each rejection path gets its own code so a
// client can tell a malformed handshake from withdrawn credentials.
// None of them are retryable on the same connection.
const (
	CloseInvalidJSON   websocket.StatusCode = 4000
	CloseInvalidFormat websocket.StatusCode = 4001
	CloseInvalidKey    websocket.StatusCode = 4002
	CloseAuthTimeout   websocket.StatusCode = 4003
	CloseRevoked       websocket.StatusCode = 4004
)

// CloseReason returns the human-readable reason sent with a close code.
func CloseReason(code websocket.StatusCode) string {
	switch code {
	case CloseInvalidJSON:
		return "Invalid JSON"
	case CloseInvalidFormat:
		return "Invalid authentication format"
	case CloseInvalidKey:
		return "Invalid bridge key"
	case CloseAuthTimeout:
		return "Authentication timeout"
	case CloseRevoked:
		return "Access revoked by administrator"
	}
	return ""
}
