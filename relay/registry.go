package relay

// Client is one attached connection as the relay sees it.
type Client struct {
	ID     int
	Name   string
	IsHost bool

	peer    Peer
	buffer  *Buffer
	closing bool
}

// Named reports whether a handshake has given the client a name yet.
// Unnamed clients may do nothing but handshake.
func (c *Client) Named() bool {
	return c.Name != ""
}

// Registry tracks attached clients in join order and knows which of them
// holds the host role.
//
// Invariants: ids are assigned monotonically and never reused, and a
// non-empty registry has exactly one host. Not safe for concurrent use;
// the server's action loop is the only caller.
type Registry struct {
	clients map[int]*Client
	order   []int // ids in join order
	hostID  int   // -1 while empty
	nextID  int
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[int]*Client),
		hostID:  -1,
	}
}

// Add assigns the next id, links the client, and hands it the host role
// when the room was empty.
func (r *Registry) Add(c *Client) int {
	c.ID = r.nextID
	r.nextID++

	if len(r.order) == 0 {
		c.IsHost = true
		r.hostID = c.ID
	}

	r.clients[c.ID] = c
	r.order = append(r.order, c.ID)

	return c.ID
}

// Remove unlinks the client. A departing host is succeeded by the
// adjacent older survivor, else the adjacent newer one; the successor is
// returned so the caller can announce it, nil when no re-election
// happened or the room emptied.
func (r *Registry) Remove(id int) *Client {
	if _, ok := r.clients[id]; !ok {
		return nil
	}

	idx := 0
	for i, cid := range r.order {
		if cid == id {
			idx = i
			break
		}
	}

	r.order = append(r.order[:idx], r.order[idx+1:]...)
	delete(r.clients, id)

	if r.hostID != id {
		return nil
	}

	r.hostID = -1
	if len(r.order) == 0 {
		return nil
	}

	succ := idx - 1
	if succ < 0 {
		// The adjacent newer client slid into the vacated slot
		succ = 0
	}

	host := r.clients[r.order[succ]]
	host.IsHost = true
	r.hostID = host.ID

	return host
}

// ByID returns the client or nil. Lookups race with disconnects by
// design, so a miss is routine and not an error.
func (r *Registry) ByID(id int) *Client {
	return r.clients[id]
}

// Host returns the current host or nil.
func (r *Registry) Host() *Client {
	if r.hostID < 0 {
		return nil
	}

	return r.clients[r.hostID]
}

// Len returns the number of attached clients.
func (r *Registry) Len() int {
	return len(r.order)
}

// Each visits every client in join order.
func (r *Registry) Each(fn func(*Client)) {
	for _, id := range r.order {
		fn(r.clients[id])
	}
}
