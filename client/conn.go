package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/LukaHietala/live/protocol"
)

var (
	// ErrNotConnected is returned when an operation runs before Connect.
	ErrNotConnected = errors.New("The client is not connected")

	// ErrAwaitPending rejects overlapping handshakes and requests. The
	// wire protocol has no client-chosen correlation token, answers are
	// matched to whatever is waiting, so only one thing may wait at a
	// time.
	ErrAwaitPending = errors.New("Another exchange is already waiting for an answer")
)

// ServerError carries an error event sent by the server. Typed errors
// keep their type, flat ones have an empty Type.
type ServerError struct {
	Type    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Type != "" {
		return e.Type + ": " + e.Message
	}

	return e.Message
}

// Session describes what the server assigned during a handshake.
type Session struct {
	ID     int
	Name   string
	IsHost bool
}

const (
	awaitNothing = iota
	awaitHandshake
	awaitRequest
)

// Conn is a relay client. Announcements and relayed traffic stream out
// of Events, while Handshake and Request block until the server answers
// them.
type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn net.Conn

	events chan protocol.Message

	awaitMu   sync.Mutex
	await     chan protocol.Message
	awaitKind int

	writeMu sync.Mutex

	log *zap.Logger
}

func New(log *zap.Logger) *Conn {
	return &Conn{
		events: make(chan protocol.Message, 255),
		log:    log,
	}
}

func (c *Conn) Connect(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	c.cancel = cancel

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		cancel()
		return err
	}

	c.conn = conn

	go c.readLoop()

	return nil
}

// Disconnect closes the connection. The read loop fails any waiting
// exchange and closes the event stream on it's way out.
func (c *Conn) Disconnect() error {
	if c.conn == nil {
		return nil
	}

	c.cancel()

	return c.conn.Close()
}

// Events streams everything the server pushes that no exchange is
// waiting for, joins, renames, departures, host changes, relayed
// broadcasts and, when we are the host, forwarded requests. The channel
// closes when the connection goes away.
func (c *Conn) Events() <-chan protocol.Message {
	return c.events
}

// Handshake introduces us to the room, or renames us when called again.
func (c *Conn) Handshake(ctx context.Context, name string) (Session, error) {
	if c.conn == nil {
		return Session{}, ErrNotConnected
	}

	slot, err := c.arm(awaitHandshake)
	if err != nil {
		return Session{}, err
	}
	defer c.disarm()

	doc, err := sjson.SetBytes([]byte("{}"), "event", protocol.EventHandshake)
	if err != nil {
		return Session{}, err
	}

	doc, err = sjson.SetBytes(doc, "name", name)
	if err != nil {
		return Session{}, err
	}

	if err := c.write(doc); err != nil {
		return Session{}, err
	}

	msg, err := c.wait(ctx, slot)
	if err != nil {
		return Session{}, err
	}

	session := Session{IsHost: msg.IsHost()}
	session.ID, _ = msg.ID()
	session.Name, _ = msg.Name()

	return session, nil
}

// Broadcast sends an event for the server to fan out, cursor moves and
// content updates reach the whole room, anything else reaches the room
// only while we are the host.
func (c *Conn) Broadcast(event string, fields map[string]interface{}) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	doc, err := sjson.SetBytes([]byte("{}"), "event", event)
	if err != nil {
		return err
	}

	doc, err = appendFields(doc, fields)
	if err != nil {
		return err
	}

	return c.write(doc)
}

// Request sends an event to the host and blocks until the answer, a
// server error or the context arrives. The server assigns the
// correlation id, we just take the next response-shaped document.
func (c *Conn) Request(ctx context.Context, event string, fields map[string]interface{}) (protocol.Message, error) {
	if c.conn == nil {
		return protocol.Message{}, ErrNotConnected
	}

	slot, err := c.arm(awaitRequest)
	if err != nil {
		return protocol.Message{}, err
	}
	defer c.disarm()

	doc, err := sjson.SetBytes([]byte("{}"), "event", event)
	if err != nil {
		return protocol.Message{}, err
	}

	doc, err = appendFields(doc, fields)
	if err != nil {
		return protocol.Message{}, err
	}

	if err := c.write(doc); err != nil {
		return protocol.Message{}, err
	}

	return c.wait(ctx, slot)
}

// Reply answers a request that was forwarded to us as the host. The
// requestID must be the one stamped on the forwarded message.
func (c *Conn) Reply(requestID int, fields map[string]interface{}) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	doc, err := sjson.SetBytes([]byte("{}"), "request_id", requestID)
	if err != nil {
		return err
	}

	doc, err = appendFields(doc, fields)
	if err != nil {
		return err
	}

	return c.write(doc)
}

func (c *Conn) readLoop() {
	log := c.log.Named("readLoop")

	defer func() {
		c.failAwait()
		close(c.events)
	}()

	reader := bufio.NewReader(c.conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if c.isRunning() && !errors.Is(err, io.EOF) {
				log.Warn("Failed to read server frame", zap.Error(err))
			}

			return
		}

		msg, err := protocol.Decode(strings.TrimSuffix(line, "\n"))
		if err != nil {
			log.Warn("Skipping malformed server frame", zap.Error(err))
			continue
		}

		c.dispatch(msg)
	}
}

// dispatch hands the message to the waiting exchange when it looks like
// an answer, and to the event stream otherwise.
func (c *Conn) dispatch(msg protocol.Message) {
	c.awaitMu.Lock()
	slot := c.await
	kind := c.awaitKind
	c.awaitMu.Unlock()

	if slot != nil && resolves(kind, msg) {
		select {
		case slot <- msg:
		default:
			// The waiting side already took an answer
		}

		return
	}

	select {
	case c.events <- msg:
	default:
		c.log.Warn("Event queue full, dropping message")
	}
}

// resolves decides whether msg answers the waiting exchange. An error
// event always does, the protocol is sequential so an error arriving
// mid-exchange is about that exchange.
func resolves(kind int, msg protocol.Message) bool {
	if msg.Event() == protocol.EventError {
		return true
	}

	switch kind {
	case awaitHandshake:
		return msg.Event() == protocol.EventHandshakeResponse

	case awaitRequest:
		if _, ok := msg.RequestID(); !ok {
			return false
		}

		// A from_id stamp means the server forwarded someone else's
		// request to us, not an answer to ours
		_, forwarded := msg.FromID()

		return !forwarded
	}

	return false
}

func (c *Conn) arm(kind int) (chan protocol.Message, error) {
	c.awaitMu.Lock()
	defer c.awaitMu.Unlock()

	if c.await != nil {
		return nil, ErrAwaitPending
	}

	slot := make(chan protocol.Message, 1)
	c.await = slot
	c.awaitKind = kind

	return slot, nil
}

func (c *Conn) disarm() {
	c.awaitMu.Lock()
	c.await = nil
	c.awaitKind = awaitNothing
	c.awaitMu.Unlock()
}

// failAwait wakes a waiting exchange after the connection died. Only the
// read loop calls this, on it's way out.
func (c *Conn) failAwait() {
	c.awaitMu.Lock()
	slot := c.await
	c.await = nil
	c.awaitKind = awaitNothing
	c.awaitMu.Unlock()

	if slot != nil {
		close(slot)
	}
}

func (c *Conn) wait(ctx context.Context, slot chan protocol.Message) (protocol.Message, error) {
	select {
	case msg, ok := <-slot:
		if !ok {
			return protocol.Message{}, ErrNotConnected
		}

		if msg.Event() == protocol.EventError {
			errType, errMessage := msg.ErrorInfo()
			return protocol.Message{}, &ServerError{Type: errType, Message: errMessage}
		}

		return msg, nil

	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()

	case <-c.ctx.Done():
		return protocol.Message{}, ErrNotConnected
	}
}

func (c *Conn) write(doc []byte) error {
	line := append(doc, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.conn.Write(line)

	return err
}

func appendFields(doc []byte, fields map[string]interface{}) ([]byte, error) {
	for key, value := range fields {
		var err error

		doc, err = sjson.SetBytes(doc, key, value)
		if err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// isRunning returns true until Disconnect or a read failure tears the
// connection down.
func (c *Conn) isRunning() bool {
	select {
	case <-c.ctx.Done():
		return false

	default:
		return true
	}
}
