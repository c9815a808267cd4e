package auth_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/N1K0LAAAA/ImsBridgeServer/internal/auth"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/registry"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/member"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/protocol"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/transport"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fixture struct {
	keys     *auth.KeyStore
	registry *registry.Registry
	auth     *auth.Authenticator
}

func newFixture(t *testing.T, timeout time.Duration, records []member.Record) *fixture {
	t.Helper()
	logger := newTestLogger()
	keys := auth.NewKeyStore()
	keys.Reload(records)
	reg := registry.New(logger, []string{"Ironman Sweats", "Ironman Casuals"})
	return &fixture{
		keys:     keys,
		registry: reg,
		auth:     auth.New(logger, keys, reg, timeout),
	}
}

// dial connects a client through an httptest server whose inbound
// frames are fed to the authenticator, mirroring the live wiring for
// unauthenticated connections.
func (f *fixture) dial(t *testing.T) (*transport.Connection, *websocket.Conn) {
	t.Helper()

	var wg sync.WaitGroup
	connCh := make(chan *transport.Connection, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		conn := transport.NewConnection(context.Background(), &wg, wsConn,
			transport.ConnectionConfig{ReadTimeout: 5 * time.Second},
			func(_ context.Context, id uuid.UUID, raw []byte) {
				f.auth.HandleFrame(id, raw)
			}, nil, newTestLogger())
		conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
			f.auth.Cancel(id)
			f.registry.Remove(id)
		})
		f.auth.Begin(conn)
		conn.Run()
		connCh <- conn
		<-conn.Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { client.CloseNow() })

	conn := <-connCh
	t.Cleanup(func() { conn.Close(nil) })
	return conn, client
}

func send(t *testing.T, client *websocket.Conn, payload string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
}

func readFrame(t *testing.T, client *websocket.Conn) ([]byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := client.Read(ctx)
	return data, err
}

func waitForCloseStatus(t *testing.T, client *websocket.Conn) websocket.StatusCode {
	t.Helper()
	for {
		if _, err := readFrame(t, client); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func TestHandshakeWithValidKey(t *testing.T) {
	f := newFixture(t, 5*time.Second, []member.Record{
		{PlayerName: "PlayerX", PlayerID: "id-1", BridgeKey: "key-x", Guild: "Ironman Sweats"},
	})
	conn, client := f.dial(t)

	send(t, client, `{"from":"mc","key":"key-x"}`)

	data, err := readFrame(t, client)
	if err != nil {
		t.Fatalf("expected auth ack, got error: %v", err)
	}
	var ack protocol.AuthResult
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("bad ack payload: %v", err)
	}
	if ack.Type != "auth_success" || ack.From != protocol.SenderServer {
		t.Errorf("ack = %+v", ack)
	}

	entry, ok := f.registry.Get(conn.ID())
	if !ok {
		t.Fatal("connection not registered after successful handshake")
	}
	if entry.Identity.PlayerName != "PlayerX" || entry.Identity.Guild != "Ironman Sweats" {
		t.Errorf("bound identity = %+v", entry.Identity)
	}
}

func TestHandshakeWithInvalidKey(t *testing.T) {
	f := newFixture(t, 5*time.Second, nil)
	conn, client := f.dial(t)

	send(t, client, `{"from":"mc","key":"no-such-key"}`)

	// The server sends auth_failed before closing; tolerate either
	// the frame arriving or the close racing ahead of it.
	data, err := readFrame(t, client)
	if err == nil {
		var ack protocol.AuthResult
		if jerr := json.Unmarshal(data, &ack); jerr != nil || ack.Type != "auth_failed" {
			t.Errorf("expected auth_failed frame, got %s", data)
		}
		if got := waitForCloseStatus(t, client); got != protocol.CloseInvalidKey {
			t.Errorf("close status = %v, want %v", got, protocol.CloseInvalidKey)
		}
	} else if got := websocket.CloseStatus(err); got != protocol.CloseInvalidKey {
		t.Errorf("close status = %v, want %v", got, protocol.CloseInvalidKey)
	}

	if _, ok := f.registry.Get(conn.ID()); ok {
		t.Error("rejected connection must not appear authenticated")
	}
}

func TestHandshakeWithInvalidJSON(t *testing.T) {
	f := newFixture(t, 5*time.Second, nil)
	_, client := f.dial(t)

	send(t, client, `{broken`)
	if got := waitForCloseStatus(t, client); got != protocol.CloseInvalidJSON {
		t.Errorf("close status = %v, want %v", got, protocol.CloseInvalidJSON)
	}
}

func TestHandshakeWithWrongShape(t *testing.T) {
	f := newFixture(t, 5*time.Second, nil)
	_, client := f.dial(t)

	send(t, client, `{"from":"mc","msg":"not a handshake"}`)
	if got := waitForCloseStatus(t, client); got != protocol.CloseInvalidFormat {
		t.Errorf("close status = %v, want %v", got, protocol.CloseInvalidFormat)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, nil)
	conn, client := f.dial(t)

	// Send nothing; the timer must fire and close the connection.
	if got := waitForCloseStatus(t, client); got != protocol.CloseAuthTimeout {
		t.Errorf("close status = %v, want %v", got, protocol.CloseAuthTimeout)
	}
	if _, ok := f.registry.Get(conn.ID()); ok {
		t.Error("timed-out connection must not appear authenticated")
	}
}

func TestKeyStoreWholesaleSwap(t *testing.T) {
	keys := auth.NewKeyStore()
	if _, ok := keys.Resolve("key-x"); ok {
		t.Fatal("empty store resolved a key")
	}

	keys.Reload([]member.Record{
		{PlayerName: "PlayerX", PlayerID: "id-1", BridgeKey: "key-x", Guild: "Ironman Sweats"},
	})
	id, ok := keys.Resolve("key-x")
	if !ok || id.PlayerName != "PlayerX" {
		t.Fatalf("Resolve after reload = %+v, %v", id, ok)
	}

	// Reload without the member: the key disappears atomically.
	keys.Reload(nil)
	if _, ok := keys.Resolve("key-x"); ok {
		t.Error("revoked key still resolves after reload")
	}
	if keys.Len() != 0 {
		t.Errorf("Len = %d, want 0", keys.Len())
	}
}
