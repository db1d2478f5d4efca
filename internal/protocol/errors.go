package protocol

import "fmt"

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Engine operations.
	ErrBadRequest         = "E_BAD_REQUEST"
	ErrActorNotFound      = "E_ACTOR_NOT_FOUND"
	ErrEntityNotFound     = "E_ENTITY_NOT_FOUND"
	ErrEntityExists       = "E_ENTITY_EXISTS"
	ErrInvalidCoordinates = "E_INVALID_COORDINATES"

	// Conversation protocol.
	ErrRequestNotFound   = "E_REQUEST_NOT_FOUND"
	ErrRequestExpired    = "E_REQUEST_EXPIRED"
	ErrTargetBusy        = "E_TARGET_BUSY"
	ErrOutOfRange        = "E_OUT_OF_RANGE"
	ErrOnCooldown        = "E_ON_COOLDOWN"
	ErrNotInConversation = "E_NOT_IN_CONVERSATION"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrBadRequest:         {},
	ErrActorNotFound:      {},
	ErrEntityNotFound:     {},
	ErrEntityExists:       {},
	ErrInvalidCoordinates: {},
	ErrRequestNotFound:    {},
	ErrRequestExpired:     {},
	ErrTargetBusy:         {},
	ErrOutOfRange:         {},
	ErrOnCooldown:         {},
	ErrNotInConversation:  {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeError is the result value every engine operation returns on an expected
// failure. Callers surface Code verbatim to the originating client.
type CodeError struct {
	Code    string
	Message string
}

func (e *CodeError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func Errf(code, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code from an engine error, or E_BAD_REQUEST when
// the error carries no code.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*CodeError); ok {
		return ce.Code
	}
	return ErrBadRequest
}
