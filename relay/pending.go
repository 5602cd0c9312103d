package relay

import (
	"time"
)

type pendingRequest struct {
	clientID int
	timer    *time.Timer
}

// PendingTable correlates requests forwarded to the host with the
// clients that sent them, and arms the answer deadline for each one.
//
// Request ids are server wide and monotonic, never reused. The table is
// not safe for concurrent use; deadline callbacks fire on timer
// goroutines and are expected to re-enter through the server's action
// loop instead of touching the table directly.
type PendingTable struct {
	entries map[int]*pendingRequest
	timeout time.Duration
	nextID  int
}

func NewPendingTable(timeout time.Duration) *PendingTable {
	return &PendingTable{
		entries: make(map[int]*pendingRequest),
		timeout: timeout,
	}
}

// Create registers a request originated by clientID and arms it's
// deadline. onTimeout receives the allocated id and the originator; it
// may still fire after losing a race with Complete, so callers must
// treat an unknown id as already settled.
func (t *PendingTable) Create(clientID int, onTimeout func(requestID int, clientID int)) int {
	id := t.nextID
	t.nextID++

	entry := &pendingRequest{clientID: clientID}
	entry.timer = time.AfterFunc(t.timeout, func() {
		onTimeout(id, clientID)
	})

	t.entries[id] = entry

	return id
}

// Complete settles a request: the deadline is disarmed, the entry
// forgotten, and the originator returned. Settling an unknown or already
// settled id reports false and changes nothing, which keeps late host
// replies and lost timer races harmless.
func (t *PendingTable) Complete(requestID int) (int, bool) {
	entry, ok := t.entries[requestID]
	if !ok {
		return 0, false
	}

	entry.timer.Stop()
	delete(t.entries, requestID)

	return entry.clientID, true
}

// PurgeClient settles every request the given client originated. Called
// on it's disconnect. Requests other clients have in flight are not
// touched, even when the departing client was the host they are waiting
// on; those run out their deadlines normally.
func (t *PendingTable) PurgeClient(clientID int) {
	for id, entry := range t.entries {
		if entry.clientID == clientID {
			entry.timer.Stop()
			delete(t.entries, id)
		}
	}
}

// Len returns the number of requests still awaiting an answer.
func (t *PendingTable) Len() int {
	return len(t.entries)
}
