// Package protocol defines the JSON wire frames exchanged with relay
// clients and the close codes used when a connection is rejected.
//
// Inbound payloads are decoded exactly once, at this boundary, into a
// tagged union (HandshakeFrame | ChatFrame | QueryFrame). Everything
// past the decoder works with typed frames, never raw JSON shapes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Client frames always carry from:"mc".
const SenderClient = "mc"

// Server-originated control frames carry from:"server".
const SenderServer = "server"

var (
	ErrInvalidJSON   = errors.New("protocol: payload is not valid JSON")
	ErrInvalidFormat = errors.New("protocol: payload does not match any known frame")
)

// ClientFrame is one of HandshakeFrame, ChatFrame or QueryFrame.
type ClientFrame interface {
	clientFrame()
}

// HandshakeFrame is the first frame on a new connection: {from:"mc", key:...}.
type HandshakeFrame struct {
	From string `json:"from"`
	Key  string `json:"key"`
}

// ChatFrame is a post-auth chat line. Combined marks a cross-guild
// broadcast ({..., combinedbridge:true}).
type ChatFrame struct {
	From     string `json:"from"`
	Message  string `json:"msg"`
	Combined bool   `json:"combinedbridge,omitempty"`
}

// QueryFrame is a synchronous client request, e.g. {request:"getOnlinePlayers"}.
type QueryFrame struct {
	Request string `json:"request"`
}

func (HandshakeFrame) clientFrame() {}
func (ChatFrame) clientFrame()      {}
func (QueryFrame) clientFrame()     {}

// DecodeClientFrame sniffs the discriminating keys with gjson, then
// performs one strict decode into the matching frame type.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}

	switch {
	case gjson.GetBytes(data, "request").Exists():
		var f QueryFrame
		if err := json.Unmarshal(data, &f); err != nil || f.Request == "" {
			return nil, ErrInvalidFormat
		}
		return f, nil

	case gjson.GetBytes(data, "key").Exists():
		var f HandshakeFrame
		if err := json.Unmarshal(data, &f); err != nil || f.From != SenderClient || f.Key == "" {
			return nil, ErrInvalidFormat
		}
		return f, nil

	case gjson.GetBytes(data, "msg").Exists():
		var f ChatFrame
		if err := json.Unmarshal(data, &f); err != nil || f.From != SenderClient || f.Message == "" {
			return nil, ErrInvalidFormat
		}
		return f, nil
	}
	return nil, ErrInvalidFormat
}

// AuthResult is the server's reply to a handshake attempt.
type AuthResult struct {
	From    string `json:"from"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

func AuthSuccess() AuthResult {
	return AuthResult{From: SenderServer, Type: "auth_success", Message: "Authentication successful"}
}

func AuthFailed(reason string) AuthResult {
	return AuthResult{From: SenderServer, Type: "auth_failed", Message: reason}
}

// OutboundChat is the fan-out payload delivered to relay clients.
// Guild and FromPlayer are informational; routing is decided by the
// router, not by clients re-reading these fields.
type OutboundChat struct {
	From       string `json:"from"`
	Message    string `json:"msg"`
	Combined   bool   `json:"combinedbridge,omitempty"`
	Guild      string `json:"guild,omitempty"`
	FromPlayer string `json:"fromplayer,omitempty"`
	Show       string `json:"show,omitempty"`
	JSONStack  string `json:"jsonStack,omitempty"`
}

// QueryResponse answers a QueryFrame, unicast to the requester.
type QueryResponse struct {
	Request  string `json:"request"`
	Response any    `json:"response"`
}

// Marshal encodes an outbound frame. Frames are built from our own
// types, so a marshal failure is a programming error worth surfacing.
func Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal outbound frame: %w", err)
	}
	return b, nil
}
