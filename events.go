package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Inbound event types.
const (
	typeAuth          = "auth"
	typeJoinRoom      = "join_room"
	typeRoomMessage   = "room_message"
	typeCollaboration = "collaboration_event"
)

// Outbound event types. room_message and collaboration_event are reused.
const (
	typeAuthSuccess  = "auth_success"
	typeAuthError    = "auth_error"
	typeRoomJoined   = "room_joined"
	typeError        = "error"
	typeNotification = "notification"
)

var errNotAnObject = errors.New("frame is not a JSON object")

// timestampLayout matches the millisecond UTC form browsers produce.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type inboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type authPayload struct {
	Token string `json:"token"`
}

type joinPayload struct {
	RoomID string `json:"roomId"`
}

type messagePayload struct {
	Message string `json:"message"`
}

func errorEvent(typ, message string) outboundEvent {
	return outboundEvent{Type: typ, Payload: messagePayload{Message: message}}
}

// decodeEvent accepts only a JSON object frame.
func decodeEvent(raw []byte) (inboundEvent, error) {
	var ev inboundEvent
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return ev, newClientError(errMalformedInput, msgInvalidFormat, errNotAnObject)
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, newClientError(errMalformedInput, msgInvalidFormat, err)
	}
	return ev, nil
}

// decodePayload unmarshals an event payload into v. A missing or null
// payload leaves v at its zero value.
func decodePayload(raw json.RawMessage, v any) error {
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return newClientError(errMalformedInput, msgInvalidFormat, err)
	}
	return nil
}

// enrich returns the payload object with the sender and a server timestamp
// added. Keys set by the client under the same names are overwritten.
func enrich(raw json.RawMessage, identity string, now time.Time) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if !isNull(raw) {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, newClientError(errMalformedInput, msgInvalidFormat, err)
		}
	}
	user, _ := json.Marshal(identity)
	ts, _ := json.Marshal(now.UTC().Format(timestampLayout))
	fields["userId"] = user
	fields["timestamp"] = ts
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
