package protocol_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/LukaHietala/live/protocol"
)

var _ = Describe("Message", func() {
	Describe("Decode()", func() {
		It("returns an error if the frame is not valid JSON", func() {
			_, err := protocol.Decode(`{"event": "hand`)
			Expect(err).To(MatchError(protocol.ErrMalformedFrame))
		})

		It("returns an error for an empty frame", func() {
			_, err := protocol.Decode("")
			Expect(err).To(MatchError(protocol.ErrMalformedFrame))
		})

		It("returns an error if the frame is not an object", func() {
			_, err := protocol.Decode(`[1, 2, 3]`)
			Expect(err).To(MatchError(protocol.ErrMalformedFrame))

			_, err = protocol.Decode(`"handshake"`)
			Expect(err).To(MatchError(protocol.ErrMalformedFrame))

			_, err = protocol.Decode(`42`)
			Expect(err).To(MatchError(protocol.ErrMalformedFrame))
		})

		It("decodes a valid object", func() {
			msg, err := protocol.Decode(`{"event": "handshake", "name": "pomeranian"}`)
			Expect(err).To(Succeed())
			Expect(msg.Event()).To(Equal("handshake"))
		})
	})

	Describe("Event()", func() {
		It("returns the event field", func() {
			msg, err := protocol.Decode(`{"event": "cursor_move"}`)
			Expect(err).To(Succeed())
			Expect(msg.Event()).To(Equal("cursor_move"))
		})

		It("returns an empty string if the field is missing", func() {
			msg, err := protocol.Decode(`{"position": [10, 10]}`)
			Expect(err).To(Succeed())
			Expect(msg.Event()).To(Equal(""))
		})

		It("returns an empty string if the field is not a string", func() {
			msg, err := protocol.Decode(`{"event": 5}`)
			Expect(err).To(Succeed())
			Expect(msg.Event()).To(Equal(""))
		})
	})

	Describe("Name()", func() {
		It("returns the name field", func() {
			msg, err := protocol.Decode(`{"event": "handshake", "name": "pomeranian"}`)
			Expect(err).To(Succeed())

			name, ok := msg.Name()
			Expect(ok).To(BeTrue())
			Expect(name).To(Equal("pomeranian"))
		})

		It("rejects a missing name", func() {
			msg, err := protocol.Decode(`{"event": "handshake"}`)
			Expect(err).To(Succeed())

			_, ok := msg.Name()
			Expect(ok).To(BeFalse())
		})

		It("rejects an empty name", func() {
			msg, err := protocol.Decode(`{"event": "handshake", "name": ""}`)
			Expect(err).To(Succeed())

			_, ok := msg.Name()
			Expect(ok).To(BeFalse())
		})

		It("rejects a name that is not a string", func() {
			msg, err := protocol.Decode(`{"event": "handshake", "name": 42}`)
			Expect(err).To(Succeed())

			_, ok := msg.Name()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("WantsHost()", func() {
		It("is true for a literal true", func() {
			msg, err := protocol.Decode(`{"event": "handshake", "name": "h", "host": true}`)
			Expect(err).To(Succeed())
			Expect(msg.WantsHost()).To(BeTrue())
		})

		It("is false when the field is missing, false, or not a bool", func() {
			msg, err := protocol.Decode(`{"event": "handshake", "name": "h"}`)
			Expect(err).To(Succeed())
			Expect(msg.WantsHost()).To(BeFalse())

			msg, err = protocol.Decode(`{"event": "handshake", "name": "h", "host": false}`)
			Expect(err).To(Succeed())
			Expect(msg.WantsHost()).To(BeFalse())

			msg, err = protocol.Decode(`{"event": "handshake", "name": "h", "host": "true"}`)
			Expect(err).To(Succeed())
			Expect(msg.WantsHost()).To(BeFalse())
		})
	})

	Describe("RequestID()", func() {
		It("returns a numeric request_id", func() {
			msg, err := protocol.Decode(`{"request_id": 7, "files": []}`)
			Expect(err).To(Succeed())

			id, ok := msg.RequestID()
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(7))
		})

		It("accepts id zero", func() {
			msg, err := protocol.Decode(`{"request_id": 0}`)
			Expect(err).To(Succeed())

			id, ok := msg.RequestID()
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(0))
		})

		It("rejects a missing or non-numeric request_id", func() {
			msg, err := protocol.Decode(`{"event": "request_files"}`)
			Expect(err).To(Succeed())

			_, ok := msg.RequestID()
			Expect(ok).To(BeFalse())

			msg, err = protocol.Decode(`{"request_id": "7"}`)
			Expect(err).To(Succeed())

			_, ok = msg.RequestID()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ID() and FromID()", func() {
		It("reads both ids off an announcement", func() {
			msg, err := protocol.Decode(`{"event": "user_joined", "id": 3, "name": "h"}`)
			Expect(err).To(Succeed())

			id, ok := msg.ID()
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(3))

			_, ok = msg.FromID()
			Expect(ok).To(BeFalse())
		})

		It("tells a forwarded request apart from a response by from_id", func() {
			msg, err := protocol.Decode(`{"event": "request_files", "request_id": 0, "from_id": 2}`)
			Expect(err).To(Succeed())

			from, ok := msg.FromID()
			Expect(ok).To(BeTrue())
			Expect(from).To(Equal(2))

			msg, err = protocol.Decode(`{"request_id": 0, "files": []}`)
			Expect(err).To(Succeed())

			_, ok = msg.FromID()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("IsHost()", func() {
		It("mirrors the is_host flag", func() {
			msg, err := protocol.Decode(`{"event": "handshake_response", "id": 0, "name": "h", "is_host": true}`)
			Expect(err).To(Succeed())
			Expect(msg.IsHost()).To(BeTrue())

			msg, err = protocol.Decode(`{"event": "user_joined", "id": 1, "name": "h", "is_host": false}`)
			Expect(err).To(Succeed())
			Expect(msg.IsHost()).To(BeFalse())
		})
	})

	Describe("ErrorInfo()", func() {
		It("unpacks a typed error", func() {
			msg, err := protocol.Decode(`{"event": "error", "data": {"type": "timeout", "message": "too slow"}}`)
			Expect(err).To(Succeed())

			errType, errMessage := msg.ErrorInfo()
			Expect(errType).To(Equal("timeout"))
			Expect(errMessage).To(Equal("too slow"))
		})

		It("unpacks a flat error with an empty type", func() {
			msg, err := protocol.Decode(`{"event": "error", "message": "Set name first!"}`)
			Expect(err).To(Succeed())

			errType, errMessage := msg.ErrorInfo()
			Expect(errType).To(Equal(""))
			Expect(errMessage).To(Equal("Set name first!"))
		})
	})

	Describe("StampOrigin()", func() {
		It("adds from_id and name without touching the payload", func() {
			msg, err := protocol.Decode(`{"event": "cursor_move", "position": [10, 10]}`)
			Expect(err).To(Succeed())

			stamped, err := msg.StampOrigin(3, "pomeranian")
			Expect(err).To(Succeed())

			raw := stamped.Raw()
			Expect(gjson.GetBytes(raw, "from_id").Int()).To(Equal(int64(3)))
			Expect(gjson.GetBytes(raw, "name").Str).To(Equal("pomeranian"))
			Expect(gjson.GetBytes(raw, "position").Raw).To(Equal("[10, 10]"))
			Expect(gjson.GetBytes(raw, "event").Str).To(Equal("cursor_move"))
		})

		It("overwrites a name the sender forged", func() {
			msg, err := protocol.Decode(`{"event": "cursor_move", "name": "impostor"}`)
			Expect(err).To(Succeed())

			stamped, err := msg.StampOrigin(3, "pomeranian")
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(stamped.Raw(), "name").Str).To(Equal("pomeranian"))
		})

		It("leaves the original message alone", func() {
			msg, err := protocol.Decode(`{"event": "cursor_move"}`)
			Expect(err).To(Succeed())

			_, err = msg.StampOrigin(3, "pomeranian")
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(msg.Raw(), "from_id").Exists()).To(BeFalse())
		})
	})

	Describe("StampRequest()", func() {
		It("adds request_id and from_id", func() {
			msg, err := protocol.Decode(`{"event": "request_files"}`)
			Expect(err).To(Succeed())

			stamped, err := msg.StampRequest(0, 2)
			Expect(err).To(Succeed())

			raw := stamped.Raw()
			Expect(gjson.GetBytes(raw, "request_id").Int()).To(Equal(int64(0)))
			Expect(gjson.GetBytes(raw, "from_id").Int()).To(Equal(int64(2)))

			id, ok := stamped.RequestID()
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(0))
		})
	})

	Describe("Line()", func() {
		It("appends the frame delimiter", func() {
			msg, err := protocol.Decode(`{"event": "cursor_leave"}`)
			Expect(err).To(Succeed())
			Expect(string(msg.Line())).To(Equal(`{"event": "cursor_leave"}` + "\n"))
		})

		It("returns a copy the caller may scribble on", func() {
			msg, err := protocol.Decode(`{"event": "cursor_leave"}`)
			Expect(err).To(Succeed())

			line := msg.Line()
			line[0] = 'X'
			Expect(msg.Line()[0]).To(Equal(byte('{')))
		})
	})

	Describe("IsRelayed()", func() {
		It("covers exactly the relayed events", func() {
			Expect(protocol.IsRelayed("cursor_move")).To(BeTrue())
			Expect(protocol.IsRelayed("update_content")).To(BeTrue())
			Expect(protocol.IsRelayed("cursor_leave")).To(BeTrue())

			Expect(protocol.IsRelayed("handshake")).To(BeFalse())
			Expect(protocol.IsRelayed("request_files")).To(BeFalse())
			Expect(protocol.IsRelayed("")).To(BeFalse())
		})
	})
})
