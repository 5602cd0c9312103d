package protocol

// This package implements the parsing and serialising of payloads for
// the protocol that live uses to communicate with it's clients.
//
// This protocol aims to be
//
// - trivial to implement from any language with a JSON library
// - cheap to route (the server reads a couple of fields, never the payload)
// - human readable on the wire
//
// === General Syntax
//
// - frames are `\n` delimited
// - every frame is a single JSON object
// - the server routes on a handful of top-level fields (`event`, `name`,
//   `request_id`, `host`, `from_id`) and forwards everything else untouched
//
// Because the delimiter is a bare newline, payloads must keep `\n` out of
// the encoded frame. JSON string escaping does this for free, so in
// practice it only bites hand-rolled clients.
//
// === Handshake
//
// A client must introduce itself before it may do anything else
//
//   ```
//     > {"event":"handshake","name":"pomeranian"}
//     < {"event":"handshake_response","id":2,"name":"pomeranian","is_host":false}
//   ```
//
// Everyone else is told about the arrival with a `user_joined` event. A
// later handshake from the same connection is a rename and produces a
// `name_changed` event instead. The handshake may carry `"host":true` to
// ask for the host role, which is only granted while no host exists.
//
// Any frame sent before a successful handshake is answered with an error
// and dropped.
//
// === Broadcasts
//
// A fixed set of events (`cursor_move`, `update_content`, `cursor_leave`)
// is relayed to every other client as-is. The server stamps `from_id` and
// `name` onto the frame so receivers know who sent it
//
//   ```
//     > {"event":"cursor_move","position":[10,10]}
//     * {"event":"cursor_move","position":[10,10],"from_id":2,"name":"pomeranian"}
//   ```
//
// The host broadcasts the same way, except nothing is stamped and any
// event name is allowed. That is how the host pushes unsolicited state to
// the room.
//
// === Requests and responses
//
// Exactly one connected client is the host. Anything a non-host client
// sends that is not a handshake or a broadcast is a request for the host.
// The server assigns a `request_id`, stamps it and `from_id` onto the
// frame, and forwards it to the host
//
//   ```
//     > {"event":"request_files"}
//     h {"event":"request_files","request_id":0,"from_id":2}
//   ```
//
// The host answers by echoing the `request_id`; the response payload is
// otherwise entirely up to the host. The server forwards it verbatim to
// the requester and forgets the id
//
//   ```
//     h {"request_id":0,"files":["main.c"]}
//     < {"request_id":0,"files":["main.c"]}
//   ```
//
// A request the host does not answer within the deadline produces a
// single timeout error on the requester and the id is retired. Late
// answers to a retired id are dropped.
//
// === Errors
//
// Simple protocol violations are flat
//
//   ```
//     {"event":"error","message":"Set name first!"}
//   ```
//
// Errors a client is expected to branch on carry a type
//
//   ```
//     {"event":"error","data":{"type":"timeout","message":"..."}}
//   ```
