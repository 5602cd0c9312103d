package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/LukaHietala/live/relay"
)

const (
	// DefaultSendQueueLength bounds a connection's outbound queue when
	// the options leave it unset.
	DefaultSendQueueLength = 64

	// readChunkSize is how much we pull off a socket per read. Frames
	// larger than this arrive over several reads and reassemble in the
	// relay's framing buffer.
	readChunkSize = 4096

	// writeWait is how long a single write may block before the
	// connection is treated as dead.
	writeWait = 10 * time.Second
)

type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr string

	numListeners int
	listeners    []*TCPListener

	sendQueueLength int
	acceptBacklog   int

	server *relay.Server

	log *zap.Logger
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners
	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	sendQueueLength := options.SendQueueLength
	if sendQueueLength < 1 {
		sendQueueLength = DefaultSendQueueLength
	}

	return &TCP{
		addr:            net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		numListeners:    numListeners,
		listeners:       make([]*TCPListener, 0, numListeners),
		sendQueueLength: sendQueueLength,
		acceptBacklog:   options.AcceptBacklog,
		server:          options.Server,
		log:             options.Log,
	}
}

// Start binds every listener before returning, so a nil error means the
// port is open and Addr is valid.
func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners",
		zap.String("addr", w.addr),
		zap.Int("count", w.numListeners))

	if w.acceptBacklog > 0 {
		// The net package sizes the kernel backlog itself
		w.log.Info("Accept backlog is advisory only", zap.Int("backlog", w.acceptBacklog))
	}

	addr := w.addr

	for i := 0; i < w.numListeners; i++ {
		listener, err := NewTCPListener(
			ctx,
			addr,
			w.server,
			w.sendQueueLength,
			w.log.Named("listener").With(zap.Int("listener", i)),
		)
		if err != nil {
			w.Close()
			return err
		}

		// Rebind later listeners to whatever the first one resolved,
		// so an ephemeral port request still lands them all on one port
		addr = listener.Addr().String()

		w.listeners = append(w.listeners, listener)

		w.stopWaiter.Add(1)

		go func() {
			defer w.stopWaiter.Done()

			if err := listener.Serve(); err != nil {
				w.log.Error("Listener failed", zap.Error(err))
			}
		}()
	}

	return nil
}

// Addr reports the bound address. Only valid after a successful Start.
func (w *TCP) Addr() net.Addr {
	if len(w.listeners) == 0 {
		return nil
	}

	return w.listeners[0].Addr()
}

// Close stops accepting, force-closes the active connections and waits
// for their loops to drain.
func (w *TCP) Close() error {
	w.log.Info("Stopping TCP server")
	w.cancel()

	var err error
	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.Close())
	}

	w.stopWaiter.Wait()
	w.log.Info("Listeners stopped")

	return err
}

type TCPListener struct {
	ctx context.Context

	listener net.Listener
	log      *zap.Logger

	server          *relay.Server
	sendQueueLength int
}

// NewTCPListener binds immediately. The accept loop only runs once Serve
// is called.
func NewTCPListener(
	ctx context.Context,
	addr string,
	server *relay.Server,
	sendQueueLength int,
	log *zap.Logger,
) (*TCPListener, error) {
	listener, err := reuseport.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &TCPListener{
		ctx:             ctx,
		listener:        listener,
		server:          server,
		sendQueueLength: sendQueueLength,
		log:             log,
	}, nil
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

func (t *TCPListener) Close() error {
	err := t.listener.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

func (t *TCPListener) Serve() error {
	var loopWaiter sync.WaitGroup

	go func() {
		<-t.ctx.Done()

		t.log.Info("Closing listener")
		if err := t.Close(); err != nil {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	for {
		select {
		case <-t.ctx.Done():
			t.log.Info("Stopped accepting new connections")
			loopWaiter.Wait()

			t.log.Info("Listener stopped")
			return nil

		default:
			conn, err := t.listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					// The listener was closed while we were waiting for
					// new connections, that's fine
					loopWaiter.Wait()
					return nil
				}

				return err
			}

			tcpConn := NewTCPConn(t.ctx, conn.(*net.TCPConn), t.server, t.sendQueueLength, t.log.Named("conn"))

			loopWaiter.Add(1)

			go func() {
				defer loopWaiter.Done()
				tcpConn.Start()
			}()
		}
	}
}

// TCPConn pumps one socket in and out of the relay. The read loop feeds
// raw chunks into the relay's framing buffer and the write loop drains
// the bounded send queue, so neither side can stall the relay loop.
type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	conn   *net.TCPConn
	server *relay.Server

	clientID int

	sendQueue chan []byte

	log *zap.Logger
}

func NewTCPConn(
	parentCtx context.Context,
	conn *net.TCPConn,
	server *relay.Server,
	sendQueueLength int,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		server:    server,
		sendQueue: make(chan []byte, sendQueueLength),
		log:       log,
	}
}

// Start attaches to the relay and blocks until both loops have exited,
// then reports the disconnect. Every exit path funnels through here, a
// kick and a client hangup clean up the same way.
func (t *TCPConn) Start() {
	defer t.conn.Close()

	id, ok := t.server.Attach(t)
	if !ok {
		return
	}

	t.clientID = id
	t.log = t.log.With(zap.Int("client", id))

	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	// Unblock the read when anything cancels the connection
	go func() {
		<-t.ctx.Done()
		t.conn.Close()
	}()

	t.loopWaiter.Wait()
	t.server.Detach(id)

	t.log.Info("Connection closed")
}

func (t *TCPConn) ReadLoop() {
	defer func() {
		// Stop reading, but allow writes to drain
		err := t.conn.CloseRead()
		if err != nil && t.isRunning() && !strings.Contains(err.Error(), "transport endpoint is not connected") {
			t.log.Warn("Failed to close reads on connection cleanly", zap.Error(err))
		}
	}()

	// Ingest copies what it needs, the chunk buffer is reused
	chunk := make([]byte, readChunkSize)

	for {
		select {
		case <-t.ctx.Done():
			return

		default:
			n, err := t.conn.Read(chunk)
			if n > 0 {
				t.server.Ingest(t.clientID, chunk[:n])
			}

			if err != nil {
				if !errors.Is(err, io.EOF) && t.isRunning() {
					t.log.Warn("Failed to read from connection", zap.Error(err))
				}

				t.cancel()
				return
			}
		}
	}
}

func (t *TCPConn) WriteLoop() {
	for {
		select {
		case <-t.ctx.Done():
			return

		case line := <-t.sendQueue:
			if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				t.cancel()
				return
			}

			if _, err := t.conn.Write(line); err != nil {
				if t.isRunning() {
					t.log.Warn("Failed to write to connection", zap.Error(err))
				}

				t.cancel()
				return
			}
		}
	}
}

// Send queues one line for the write loop. A full queue drops the line,
// slow readers miss traffic instead of stalling the relay.
func (t *TCPConn) Send(line []byte) {
	if !t.isRunning() {
		return
	}

	select {
	case t.sendQueue <- line:
	default:
		t.log.Warn("Send queue full, dropping message", zap.Int("bytes", len(line)))
	}
}

// Kick force-closes the connection. Cleanup runs through the normal
// detach path once the loops unwind.
func (t *TCPConn) Kick() {
	t.cancel()
}

// isRunning returns true if the connection has not been cancelled
func (t *TCPConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		// if we can read on this channel then it's been closed
		return false

	default:
		return true
	}
}
