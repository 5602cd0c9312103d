package protocol

import (
	"encoding/json"
)

// Exact error strings clients match on.
const (
	MsgInvalidName  = "Invalid name"
	MsgSetNameFirst = "Set name first!"
	MsgNoHost       = "No host available"
	MsgTimeout      = "Timeout! Host is too incompetent to handle this request on time"
)

// Error types carried by typed errors, for clients that branch on them.
const (
	ErrTypeInvalidName = "invalid_name"
	ErrTypeTimeout     = "timeout"
)

type handshakeResponse struct {
	Event  string `json:"event"`
	ID     int    `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`
}

type userJoined struct {
	Event  string `json:"event"`
	ID     int    `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`
}

type nameChanged struct {
	Event   string `json:"event"`
	ID      int    `json:"id"`
	NewName string `json:"new_name"`
}

type userLeft struct {
	Event string `json:"event"`
	ID    int    `json:"id"`
	Name  string `json:"name"`
}

type newHost struct {
	Event string `json:"event"`
	Name  string `json:"name"`
}

type flatError struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type typedError struct {
	Event string    `json:"event"`
	Data  errorBody `json:"data"`
}

// HandshakeResponse acknowledges a successful handshake to the sender.
func HandshakeResponse(id int, name string, isHost bool) []byte {
	return marshalLine(handshakeResponse{
		Event:  EventHandshakeResponse,
		ID:     id,
		Name:   name,
		IsHost: isHost,
	})
}

// UserJoined announces a freshly named connection to the room.
func UserJoined(id int, name string, isHost bool) []byte {
	return marshalLine(userJoined{
		Event:  EventUserJoined,
		ID:     id,
		Name:   name,
		IsHost: isHost,
	})
}

// NameChanged announces a rename to the room.
func NameChanged(id int, newName string) []byte {
	return marshalLine(nameChanged{
		Event:   EventNameChanged,
		ID:      id,
		NewName: newName,
	})
}

// UserLeft announces a departed connection to the room.
func UserLeft(id int, name string) []byte {
	return marshalLine(userLeft{
		Event: EventUserLeft,
		ID:    id,
		Name:  name,
	})
}

// NewHost announces the winner of a host re-election to the room.
func NewHost(name string) []byte {
	return marshalLine(newHost{
		Event: EventNewHost,
		Name:  name,
	})
}

// FlatError builds the plain error shape.
func FlatError(message string) []byte {
	return marshalLine(flatError{
		Event:   EventError,
		Message: message,
	})
}

// TypedError builds the error shape that carries a machine readable type.
func TypedError(errType string, message string) []byte {
	return marshalLine(typedError{
		Event: EventError,
		Data: errorBody{
			Type:    errType,
			Message: message,
		},
	})
}

func marshalLine(v interface{}) []byte {
	line, err := json.Marshal(v)
	if err != nil {
		// Every shape above is marshallable
		panic(err)
	}

	return append(line, '\n')
}
