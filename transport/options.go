package transport

import (
	"go.uber.org/zap"

	"github.com/LukaHietala/live/relay"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on. Zero picks an ephemeral port, every listener
	// then shares whichever port the first one got.
	Port int

	// NumListeners is how many SO_REUSEPORT listeners share the port.
	// Defaults to the CPU count.
	NumListeners int

	// SendQueueLength bounds each connection's outbound queue. The
	// relay drops lines once a queue is full rather than stall on a
	// slow reader.
	SendQueueLength int

	// AcceptBacklog is recorded and logged only. The net package sizes
	// the kernel backlog on its own.
	AcceptBacklog int

	Server *relay.Server

	Log *zap.Logger
}
