package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	// ReadTimeout bounds each inbound read when positive. Zero or
	// negative means reads wait indefinitely; an idle connection is
	// never closed for being quiet.
	ReadTimeout time.Duration
	SendBuffer  int
}

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	closeStatus websocket.StatusCode
	closeReason string

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	return &Connection{
		id:          id,
		conn:        conn,
		logger:      connLogger,
		config:      config,
		onMessage:   onMessage,
		send:        make(chan []byte, config.SendBuffer),
		done:        make(chan struct{}),
		ctx:         connCtx,
		cancel:      cancel,
		onClose:     onClose,
		wg:          wg,
		closeStatus: websocket.StatusNormalClosure,
	}
}

func (c *Connection) Run() {
	c.wg.Add(1)
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
// Frames are handed over one at a time, so routing for a frame always
// completes before the next frame from this connection is processed.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx := c.ctx
		cancelRead := func() {}
		if c.config.ReadTimeout > 0 {
			readCtx, cancelRead = context.WithTimeout(c.ctx, c.config.ReadTimeout)
		}
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			readErr = err
			cancelRead()
			return
		}
		// Ensure we are only handling text or binary messages.
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			c.logger.Error("reading frame body failed", slog.Any("error", err))
			readErr = err
			return
		}
		c.onMessage(c.ctx, c.id, message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error

	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues a message for delivery. It is safe for concurrent use.
func (c *Connection) Send(message []byte) {
	select {
	case c.send <- message:
	case <-c.ctx.Done():
		c.logger.Warn("Attempted to send on a closed connection")
	}
}

// TrySend queues a message only if the connection is writable right
// now. A closed connection or a full send buffer drops the frame and
// returns false; the caller is never blocked by a slow consumer.
func (c *Connection) TrySend(message []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// CloseWithStatus terminates the connection with an application close
// code. Safe to call concurrently with Close; the first caller wins.
func (c *Connection) CloseWithStatus(code websocket.StatusCode, reason string) {
	c.doClose(nil, code, reason)
}

// Close gracefully shuts down the connection and its resources.
// Closing an already-closed connection is a no-op.
func (c *Connection) Close(err error) {
	c.doClose(err, websocket.StatusNormalClosure, "")
}

func (c *Connection) doClose(err error, code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.closeStatus = code
		c.closeReason = reason
		c.logger.Info("Transport connection closing",
			slog.Any("reason", err),
			slog.String("status", code.String()),
		)

		c.cancel() // Signal goroutines to stop.
		c.conn.Close(code, reason)
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// CloseStatus reports the close code recorded when the connection shut
// down, valid after Done is closed.
func (c *Connection) CloseStatus() websocket.StatusCode {
	return c.closeStatus
}

// CloseReason reports the reason string sent with the close code,
// valid after Done is closed.
func (c *Connection) CloseReason() string {
	return c.closeReason
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
