package relay

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LukaHietala/live/protocol"
)

const (
	DefaultRequestTimeout     = 5000 * time.Millisecond
	DefaultMaxBufferBytes     = 10 * 1024 * 1024
	DefaultInitialBufferBytes = 1024
)

// Peer is the transport side of one attached connection.
//
// Both methods are called from the server's action loop and must not
// block; transports queue writes and drop when the queue is full.
type Peer interface {
	// Send queues one already framed line for delivery.
	Send(line []byte)

	// Kick makes the transport close the connection. Cleanup arrives
	// later through Detach like any other disconnect.
	Kick()
}

type Options struct {
	// RequestTimeout is how long the host gets to answer a forwarded
	// request. Defaults to 5 seconds.
	RequestTimeout time.Duration

	// MaxBufferBytes caps unread bytes per connection. Defaults to 10 MiB.
	MaxBufferBytes int

	// InitialBufferBytes is the starting frame buffer capacity per
	// connection. Defaults to 1 KiB.
	InitialBufferBytes int

	Log *zap.Logger

	// Registerer receives the server's metrics. Leave nil to keep them
	// off the default registry, which is what tests want.
	Registerer prometheus.Registerer
}

// Server is the relay core: the client registry, the pending request
// table, and the message router, all mutated from a single action loop.
//
// Transports feed it through Attach, Ingest and Detach from whatever
// goroutines they like; each call becomes an action on the loop, so the
// state behind it needs no locks at all.
type Server struct {
	registry *Registry
	pending  *PendingTable
	metrics  *Metrics

	actions chan func()
	closed  chan struct{}
	once    sync.Once

	initialBuffer int
	maxBuffer     int

	log *zap.Logger
}

func NewServer(options Options) *Server {
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	maxBuffer := options.MaxBufferBytes
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBufferBytes
	}

	initialBuffer := options.InitialBufferBytes
	if initialBuffer <= 0 {
		initialBuffer = DefaultInitialBufferBytes
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	registerer := options.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	return &Server{
		registry:      NewRegistry(),
		pending:       NewPendingTable(timeout),
		metrics:       NewMetrics(registerer),
		actions:       make(chan func()),
		closed:        make(chan struct{}),
		initialBuffer: initialBuffer,
		maxBuffer:     maxBuffer,
		log:           log,
	}
}

// Run processes actions until Close is called. Run this on its own
// goroutine; everything the server owns is mutated from here.
func (s *Server) Run() {
	for {
		select {
		case action := <-s.actions:
			action()

		case <-s.closed:
			return
		}
	}
}

// Close stops the action loop. Safe to call more than once. Calls into
// a closed server become no-ops, so transports can drain out in any
// order during shutdown.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.closed)
	})
}

// Attach registers a connection and returns it's assigned id, which
// names the connection to Ingest and Detach. Reports false when the
// server is shut down, in which case the caller should just close the
// connection.
func (s *Server) Attach(peer Peer) (int, bool) {
	ids := make(chan int, 1)

	if !s.dispatch(func() { ids <- s.attach(peer) }) {
		return 0, false
	}

	select {
	case id := <-ids:
		return id, true

	case <-s.closed:
		return 0, false
	}
}

// Ingest hands the server bytes read from connection id. The slice is
// copied before the call returns, so callers may reuse their read
// buffers immediately.
func (s *Server) Ingest(id int, data []byte) {
	owned := make([]byte, len(data))
	copy(owned, data)

	s.dispatch(func() { s.ingest(id, owned) })
}

// Detach removes a connection after its transport saw EOF or an error.
// Detaching an unknown id is a no-op; disconnects race with everything.
func (s *Server) Detach(id int) {
	s.dispatch(func() { s.detach(id) })
}

// Stats is a point in time snapshot for operators.
type Stats struct {
	Clients         int    `json:"clients"`
	PendingRequests int    `json:"pending_requests"`
	HostID          int    `json:"host_id"`
	HostName        string `json:"host_name"`
}

// Snapshot reports the server's current state. Reports false when the
// server is shut down.
func (s *Server) Snapshot() (Stats, bool) {
	out := make(chan Stats, 1)

	ok := s.dispatch(func() {
		stats := Stats{
			Clients:         s.registry.Len(),
			PendingRequests: s.pending.Len(),
			HostID:          -1,
		}

		if host := s.registry.Host(); host != nil {
			stats.HostID = host.ID
			stats.HostName = host.Name
		}

		out <- stats
	})

	if !ok {
		return Stats{}, false
	}

	select {
	case stats := <-out:
		return stats, true

	case <-s.closed:
		return Stats{}, false
	}
}

// dispatch queues an action for the loop, reporting false once the
// server is closed.
func (s *Server) dispatch(action func()) bool {
	select {
	case s.actions <- action:
		return true

	case <-s.closed:
		return false
	}
}

func (s *Server) attach(peer Peer) int {
	client := &Client{
		peer:   peer,
		buffer: NewBuffer(s.initialBuffer, s.maxBuffer),
	}

	id := s.registry.Add(client)
	s.metrics.ConnectedClients.Inc()

	s.log.Info("Client attached",
		zap.Int("id", id),
		zap.Bool("is_host", client.IsHost))

	return id
}

func (s *Server) ingest(id int, data []byte) {
	client := s.registry.ByID(id)
	if client == nil || client.closing {
		// Detach or a kick raced ahead of this read
		return
	}

	if err := client.buffer.Push(data); err != nil {
		s.log.Warn("Kicking client over it's buffer limit",
			zap.Int("id", id),
			zap.Int("buffered", client.buffer.Len()),
			zap.Int("incoming", len(data)))

		s.metrics.KickedClients.Inc()
		client.closing = true
		client.peer.Kick()

		return
	}

	for {
		frame, ok := client.buffer.NextFrame()
		if !ok {
			return
		}

		s.metrics.FramesTotal.Inc()
		s.route(client, frame)
	}
}

func (s *Server) detach(id int) {
	client := s.registry.ByID(id)
	if client == nil {
		return
	}

	client.closing = true

	s.broadcast(client, protocol.UserLeft(client.ID, client.Name))

	s.pending.PurgeClient(id)
	s.metrics.PendingRequests.Set(float64(s.pending.Len()))

	newHost := s.registry.Remove(id)
	s.metrics.ConnectedClients.Dec()

	if newHost != nil {
		s.log.Info("Host re-elected",
			zap.Int("id", newHost.ID),
			zap.String("name", newHost.Name))

		s.broadcast(nil, protocol.NewHost(newHost.Name))
	}

	s.log.Info("Client detached",
		zap.Int("id", id),
		zap.String("name", client.Name))
}

// send queues a line for one client. Unknown and mid close connections
// are skipped silently.
func (s *Server) send(client *Client, line []byte) {
	if client == nil || client.closing {
		return
	}

	client.peer.Send(line)
}

// broadcast queues a line for every client except sender; a nil sender
// reaches the whole room.
func (s *Server) broadcast(sender *Client, line []byte) {
	s.registry.Each(func(c *Client) {
		if sender != nil && c.ID == sender.ID {
			return
		}

		s.send(c, line)
	})
}

// expire is armed for every pending request; it fires on a timer
// goroutine and hops back onto the action loop before touching state.
func (s *Server) expire(requestID int, clientID int) {
	s.dispatch(func() {
		if _, ok := s.pending.Complete(requestID); !ok {
			// Answered in the gap between the timer firing and this
			// action running
			return
		}

		s.metrics.PendingRequests.Set(float64(s.pending.Len()))
		s.metrics.RequestTimeouts.Inc()

		s.log.Warn("Request timed out",
			zap.Int("request_id", requestID),
			zap.Int("client_id", clientID))

		s.send(s.registry.ByID(clientID),
			protocol.TypedError(protocol.ErrTypeTimeout, protocol.MsgTimeout))
	})
}
