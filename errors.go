package main

import (
	"errors"
	"fmt"
)

var (
	errAuthentication   = errors.New("authentication failed")
	errAuthorization    = errors.New("action not allowed in current state")
	errMalformedInput   = errors.New("malformed input")
	errStoreUnavailable = errors.New("shared store unavailable")
	errUnknownEvent     = errors.New("unknown event type")
)

// Messages sent back to clients. They must never carry store keys or causes.
const (
	msgInvalidToken    = "Invalid token"
	msgNotAuthed       = "Not authenticated"
	msgNotInRoom       = "Not authenticated or not in a room"
	msgNoRoom          = "Not in a room"
	msgRoomRequired    = "Room id is required"
	msgJoinFailed      = "Unable to join room"
	msgUnknownType     = "Unknown message type"
	msgInvalidFormat   = "Invalid message format"
	msgTooManyRequests = "Too many requests"
	msgRateExceeded    = "Rate limit exceeded. Please try again later."
)

// clientError is returned by event handlers. kind is one of the sentinel
// errors above, message is what the client sees.
type clientError struct {
	kind    error
	message string
	cause   error
}

func newClientError(kind error, message string, cause error) *clientError {
	return &clientError{kind: kind, message: message, cause: cause}
}

func (e *clientError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%v: %s", e.kind, e.message)
}

func (e *clientError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// replyType picks the outbound event type used to report err.
func replyType(err error) string {
	if errors.Is(err, errAuthentication) {
		return typeAuthError
	}
	return typeError
}

// replyMessage extracts the client-safe text from err.
func replyMessage(err error) string {
	var ce *clientError
	if errors.As(err, &ce) {
		return ce.message
	}
	return msgInvalidFormat
}
