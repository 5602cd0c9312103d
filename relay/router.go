package relay

import (
	"go.uber.org/zap"

	"github.com/LukaHietala/live/protocol"
)

// route classifies one frame and carries out its routing. First match
// wins, and every branch stops the message; a frame never handshakes and
// does something else too.
func (s *Server) route(client *Client, frame string) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		s.metrics.MalformedFrames.Inc()
		s.log.Warn("Dropping malformed frame",
			zap.Int("id", client.ID),
			zap.Int("bytes", len(frame)))

		return
	}

	// 1. Handshakes, including renames
	if msg.Event() == protocol.EventHandshake {
		s.handshake(client, msg)
		return
	}

	// 2. Everything past this point needs a named sender
	if !client.Named() {
		s.metrics.RoutedMessages.WithLabelValues("rejected").Inc()
		s.send(client, protocol.FlatError(protocol.MsgSetNameFirst))

		return
	}

	// 3. Room broadcasts
	if protocol.IsRelayed(msg.Event()) {
		stamped, err := msg.StampOrigin(client.ID, client.Name)
		if err != nil {
			s.log.Warn("Dropping unstampable frame",
				zap.Int("id", client.ID),
				zap.Error(err))

			return
		}

		s.metrics.RoutedMessages.WithLabelValues("relay").Inc()
		s.broadcast(client, stamped.Line())

		return
	}

	// 4. Answers to forwarded requests
	if requestID, ok := msg.RequestID(); ok {
		s.respond(client, msg, requestID)
		return
	}

	// 5. The host pushing unsolicited state to the room
	if client.IsHost {
		s.metrics.RoutedMessages.WithLabelValues("host_broadcast").Inc()
		s.broadcast(client, msg.Line())

		return
	}

	// 6. Anything else is a request for the host
	s.request(client, msg)
}

func (s *Server) handshake(client *Client, msg protocol.Message) {
	name, ok := msg.Name()
	if !ok {
		s.send(client, protocol.TypedError(protocol.ErrTypeInvalidName, protocol.MsgInvalidName))
		return
	}

	if msg.WantsHost() && !client.IsHost {
		// An occupied room always has a host already, so a claim can
		// only be noted and refused
		s.log.Info("Ignoring host claim",
			zap.Int("id", client.ID),
			zap.String("name", name))
	}

	firstName := !client.Named()
	client.Name = name

	s.send(client, protocol.HandshakeResponse(client.ID, name, client.IsHost))

	if firstName {
		s.metrics.RoutedMessages.WithLabelValues("handshake").Inc()
		s.broadcast(client, protocol.UserJoined(client.ID, name, client.IsHost))

		return
	}

	s.metrics.RoutedMessages.WithLabelValues("rename").Inc()
	s.broadcast(client, protocol.NameChanged(client.ID, name))
}

func (s *Server) respond(client *Client, msg protocol.Message, requestID int) {
	originID, ok := s.pending.Complete(requestID)
	if !ok {
		s.log.Warn("Reply to an expired or unknown request",
			zap.Int("id", client.ID),
			zap.Int("request_id", requestID))

		return
	}

	s.metrics.PendingRequests.Set(float64(s.pending.Len()))
	s.metrics.RoutedMessages.WithLabelValues("response").Inc()

	// Forwarded verbatim; the requester correlates by request_id
	s.send(s.registry.ByID(originID), msg.Line())
}

func (s *Server) request(client *Client, msg protocol.Message) {
	requestID := s.pending.Create(client.ID, s.expire)
	s.metrics.PendingRequests.Set(float64(s.pending.Len()))

	host := s.registry.Host()
	if host == nil {
		// Settle the entry we just made, then tell the sender. The id
		// is spent either way
		s.pending.Complete(requestID)
		s.metrics.PendingRequests.Set(float64(s.pending.Len()))

		s.metrics.RoutedMessages.WithLabelValues("rejected").Inc()
		s.send(client, protocol.FlatError(protocol.MsgNoHost))

		return
	}

	stamped, err := msg.StampRequest(requestID, client.ID)
	if err != nil {
		s.pending.Complete(requestID)
		s.metrics.PendingRequests.Set(float64(s.pending.Len()))

		s.log.Warn("Dropping unstampable request",
			zap.Int("id", client.ID),
			zap.Error(err))

		return
	}

	s.metrics.RoutedMessages.WithLabelValues("request").Inc()
	s.send(host, stamped.Line())
}
