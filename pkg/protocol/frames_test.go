package protocol_test

import (
	"errors"
	"testing"

	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/protocol"
)

func TestDecodeHandshake(t *testing.T) {
	frame, err := protocol.DecodeClientFrame([]byte(`{"from":"mc","key":"abc-123"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	hs, ok := frame.(protocol.HandshakeFrame)
	if !ok {
		t.Fatalf("expected HandshakeFrame, got %T", frame)
	}
	if hs.Key != "abc-123" {
		t.Errorf("key = %q", hs.Key)
	}
}

func TestDecodeChat(t *testing.T) {
	frame, err := protocol.DecodeClientFrame([]byte(`{"from":"mc","msg":"hello"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	chat, ok := frame.(protocol.ChatFrame)
	if !ok {
		t.Fatalf("expected ChatFrame, got %T", frame)
	}
	if chat.Message != "hello" || chat.Combined {
		t.Errorf("chat = %+v", chat)
	}
}

func TestDecodeCombinedChat(t *testing.T) {
	frame, err := protocol.DecodeClientFrame([]byte(`{"from":"mc","msg":"hi all","combinedbridge":true}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	chat, ok := frame.(protocol.ChatFrame)
	if !ok {
		t.Fatalf("expected ChatFrame, got %T", frame)
	}
	if !chat.Combined {
		t.Error("combinedbridge flag lost")
	}
}

func TestDecodeQuery(t *testing.T) {
	frame, err := protocol.DecodeClientFrame([]byte(`{"request":"getOnlinePlayers"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	q, ok := frame.(protocol.QueryFrame)
	if !ok {
		t.Fatalf("expected QueryFrame, got %T", frame)
	}
	if q.Request != "getOnlinePlayers" {
		t.Errorf("request = %q", q.Request)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := protocol.DecodeClientFrame([]byte(`{not json`))
	if !errors.Is(err, protocol.ErrInvalidJSON) {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestDecodeInvalidFormat(t *testing.T) {
	cases := []string{
		`{"from":"discord","msg":"spoofed sender"}`,
		`{"from":"mc"}`,
		`{"from":"mc","key":""}`,
		`{"hello":"world"}`,
		`42`,
	}
	for _, raw := range cases {
		if _, err := protocol.DecodeClientFrame([]byte(raw)); !errors.Is(err, protocol.ErrInvalidFormat) {
			t.Errorf("DecodeClientFrame(%s): expected ErrInvalidFormat, got %v", raw, err)
		}
	}
}
