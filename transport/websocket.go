package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LukaHietala/live/relay"
)

const (
	// pongWait is how long we wait for a pong before the peer is
	// considered gone.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps a single websocket message from the peer. The
	// relay's own buffer ceiling still applies on top of this.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Editors and local tooling connect from any origin
		return true
	},
}

// ServeWebsocket upgrades the request and bridges the socket onto the
// relay. Message bytes feed the same framing buffer as the TCP
// transport, so a message may carry a partial line, one line or many,
// as long as every line ends in a newline.
func ServeWebsocket(server *relay.Server, sendQueueLength int, log *zap.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Failed to upgrade websocket", zap.Error(err))
		return
	}

	if sendQueueLength < 1 {
		sendQueueLength = DefaultSendQueueLength
	}

	ws := NewWebsocketConn(r.Context(), conn, server, sendQueueLength, log.Named("ws"))
	ws.Start()
}

// WebsocketConn is the websocket twin of TCPConn. Lines travel one per
// text message on the way out.
type WebsocketConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	conn   *websocket.Conn
	server *relay.Server

	clientID int

	sendQueue chan []byte

	log *zap.Logger
}

func NewWebsocketConn(
	parentCtx context.Context,
	conn *websocket.Conn,
	server *relay.Server,
	sendQueueLength int,
	log *zap.Logger,
) *WebsocketConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &WebsocketConn{
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		server:    server,
		sendQueue: make(chan []byte, sendQueueLength),
		log:       log,
	}
}

// Start attaches to the relay and blocks until both pumps have exited,
// then reports the disconnect.
func (c *WebsocketConn) Start() {
	defer c.conn.Close()

	id, ok := c.server.Attach(c)
	if !ok {
		return
	}

	c.clientID = id
	c.log = c.log.With(zap.Int("client", id))

	c.loopWaiter.Add(2)

	go func() {
		defer c.loopWaiter.Done()
		c.ReadPump()
	}()

	go func() {
		defer c.loopWaiter.Done()
		c.WritePump()
	}()

	// Unblock the read when anything cancels the connection
	go func() {
		<-c.ctx.Done()
		c.conn.Close()
	}()

	c.loopWaiter.Wait()
	c.server.Detach(id)

	c.log.Info("Websocket closed")
}

func (c *WebsocketConn) ReadPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.isRunning() {
				c.log.Warn("Failed to read from websocket", zap.Error(err))
			}

			c.cancel()
			return
		}

		c.server.Ingest(c.clientID, message)
	}
}

func (c *WebsocketConn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case line := <-c.sendQueue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
				c.cancel()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// Send queues one line for the write pump, dropping it when the queue
// is full.
func (c *WebsocketConn) Send(line []byte) {
	if !c.isRunning() {
		return
	}

	select {
	case c.sendQueue <- line:
	default:
		c.log.Warn("Send queue full, dropping message", zap.Int("bytes", len(line)))
	}
}

// Kick force-closes the websocket. Cleanup runs through the normal
// detach path once the pumps unwind.
func (c *WebsocketConn) Kick() {
	c.cancel()
}

func (c *WebsocketConn) isRunning() bool {
	select {
	case <-c.ctx.Done():
		return false

	default:
		return true
	}
}
