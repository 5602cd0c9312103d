package protocol

import (
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrMalformedFrame = errors.New("Frame is not a JSON object")
)

// Inbound event names the router matches on.
const (
	EventHandshake = "handshake"

	EventCursorMove    = "cursor_move"
	EventUpdateContent = "update_content"
	EventCursorLeave   = "cursor_leave"
)

// Event names the server emits.
const (
	EventHandshakeResponse = "handshake_response"
	EventUserJoined        = "user_joined"
	EventNameChanged       = "name_changed"
	EventUserLeft          = "user_left"
	EventNewHost           = "new_host"
	EventError             = "error"
)

// IsRelayed reports whether event belongs to the fixed set that is
// relayed to the whole room instead of being treated as a request.
func IsRelayed(event string) bool {
	switch event {
	case EventCursorMove, EventUpdateContent, EventCursorLeave:
		return true
	}

	return false
}

// Message is a single decoded frame.
//
// It keeps the raw JSON and reads fields lazily so pass-through payloads
// are forwarded byte for byte rather than decoded and re-encoded. The
// server never needs to understand a payload, only the routing fields.
type Message struct {
	raw []byte
}

// Decode checks that the frame is a JSON object and wraps it. Anything
// else (arrays, bare scalars, truncated documents, an empty frame) gets
// ErrMalformedFrame so the caller can drop it.
//
// The returned Message owns it's own copy of the bytes and is safe to
// hold after the framing buffer moves on.
func Decode(frame string) (Message, error) {
	if !gjson.Valid(frame) {
		return Message{}, ErrMalformedFrame
	}

	if !gjson.Parse(frame).IsObject() {
		return Message{}, ErrMalformedFrame
	}

	return Message{raw: []byte(frame)}, nil
}

// Event returns the event field, or "" when it is absent or not a string.
func (m Message) Event() string {
	event := gjson.GetBytes(m.raw, "event")
	if event.Type != gjson.String {
		return ""
	}

	return event.Str
}

// Name returns the name field when it is present as a non-empty string.
func (m Message) Name() (string, bool) {
	name := gjson.GetBytes(m.raw, "name")
	if name.Type != gjson.String || name.Str == "" {
		return "", false
	}

	return name.Str, true
}

// WantsHost reports whether a handshake asked for the host role.
func (m Message) WantsHost() bool {
	return gjson.GetBytes(m.raw, "host").Type == gjson.True
}

// RequestID returns the request_id field when it is numeric. Responses
// from the host are recognised by exactly this test, so a payload field
// named request_id on anything but a response will be misrouted. Known
// fragility, same as the delimiter.
func (m Message) RequestID() (int, bool) {
	id := gjson.GetBytes(m.raw, "request_id")
	if id.Type != gjson.Number {
		return 0, false
	}

	return int(id.Int()), true
}

// ID returns the id field when it is numeric. Server announcements carry
// the subject's client id here.
func (m Message) ID() (int, bool) {
	id := gjson.GetBytes(m.raw, "id")
	if id.Type != gjson.Number {
		return 0, false
	}

	return int(id.Int()), true
}

// FromID returns the from_id stamp a relayed or forwarded message
// carries. Its absence is what tells a response apart from a request the
// server forwarded to us.
func (m Message) FromID() (int, bool) {
	id := gjson.GetBytes(m.raw, "from_id")
	if id.Type != gjson.Number {
		return 0, false
	}

	return int(id.Int()), true
}

// IsHost reports the is_host flag on a server announcement.
func (m Message) IsHost() bool {
	return gjson.GetBytes(m.raw, "is_host").Type == gjson.True
}

// ErrorInfo pulls the type and message out of an error event. Flat
// errors come back with an empty type.
func (m Message) ErrorInfo() (string, string) {
	if data := gjson.GetBytes(m.raw, "data"); data.IsObject() {
		return data.Get("type").Str, data.Get("message").Str
	}

	return "", gjson.GetBytes(m.raw, "message").Str
}

// StampOrigin labels the message with the sender's identity before it is
// relayed, so receivers know who it came from.
func (m Message) StampOrigin(id int, name string) (Message, error) {
	raw, err := sjson.SetBytes(m.raw, "from_id", id)
	if err != nil {
		return Message{}, err
	}

	raw, err = sjson.SetBytes(raw, "name", name)
	if err != nil {
		return Message{}, err
	}

	return Message{raw: raw}, nil
}

// StampRequest labels a request with it's correlation id and the
// requester's id before it is forwarded to the host.
func (m Message) StampRequest(requestID int, fromID int) (Message, error) {
	raw, err := sjson.SetBytes(m.raw, "request_id", requestID)
	if err != nil {
		return Message{}, err
	}

	raw, err = sjson.SetBytes(raw, "from_id", fromID)
	if err != nil {
		return Message{}, err
	}

	return Message{raw: raw}, nil
}

// Raw returns the message bytes without the frame delimiter.
func (m Message) Raw() []byte {
	return m.raw
}

// Line returns a fresh copy of the message bytes with the trailing
// delimiter, ready to hand to a transport.
func (m Message) Line() []byte {
	line := make([]byte, 0, len(m.raw)+1)
	line = append(line, m.raw...)

	return append(line, '\n')
}
