package chat

import "errors"

// Error kinds. Concrete errors wrap one of these so callers can use errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not authorized")
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrStore          = errors.New("store failure")
)

// Client-facing errors.
var (
	ErrAuthRequired       = NewError(ErrAuthentication, "Authentication required.")
	ErrInvalidToken       = NewError(ErrAuthentication, "Invalid token")
	ErrAttachmentTooLarge = NewError(ErrValidation, "File size exceeds 5MB limit.")
	ErrContentTooLong     = NewError(ErrValidation, "Message content exceeds 2000 characters.")
	ErrNotSender          = NewError(ErrAuthorization, "Only the sender can modify this message.")
	ErrMessageNotFound    = NewError(ErrNotFound, "Message not found.")
	ErrChannelNotFound    = NewError(ErrNotFound, "Channel not found.")
	ErrChannelForbidden   = NewError(ErrAuthorization, "Cannot join private channel.")
	ErrMessageDeleted     = NewError(ErrValidation, "Cannot edit a deleted message.")
)

// Error is a categorized error whose message is safe to show to clients.
type Error struct {
	Kind    error
	Message string
}

// NewError creates an Error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Is matches another *Error with the same kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// Error codes used when errors cross a request-reply boundary.
const (
	CodeAuthentication = "authentication"
	CodeAuthorization  = "authorization"
	CodeValidation     = "validation"
	CodeNotFound       = "not_found"
	CodeStore          = "store"
)

// Code returns the wire code for err's kind. Unknown errors map to CodeStore.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case errors.Is(err, ErrAuthorization):
		return CodeAuthorization
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeStore
	}
}

// ErrorFromCode rebuilds a categorized error from its wire form.
func ErrorFromCode(code, message string) error {
	if code == "" && message == "" {
		return nil
	}
	var kind error
	switch code {
	case CodeAuthentication:
		kind = ErrAuthentication
	case CodeAuthorization:
		kind = ErrAuthorization
	case CodeValidation:
		kind = ErrValidation
	case CodeNotFound:
		kind = ErrNotFound
	default:
		kind = ErrStore
	}
	return NewError(kind, message)
}

// ClientMessage returns the text reported to a client for err.
// Store failures and uncategorized errors are reported as fallback.
func ClientMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != ErrStore {
		return e.Message
	}
	switch {
	case errors.Is(err, ErrAuthentication):
		return "Authentication required."
	case errors.Is(err, ErrAuthorization):
		return "Not authorized."
	case errors.Is(err, ErrNotFound):
		return "Not found."
	case errors.Is(err, ErrValidation):
		return "Invalid request."
	default:
		return fallback
	}
}

// Status carries a categorized error across a request-reply boundary.
// It is embedded in service responses.
type Status struct {
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StatusOf encodes err for a response. A nil error yields the zero Status.
func StatusOf(err error) Status {
	if err == nil {
		return Status{}
	}
	return Status{ErrorCode: Code(err), Error: err.Error()}
}

// Err rebuilds the error carried by the status.
func (s Status) Err() error {
	return ErrorFromCode(s.ErrorCode, s.Error)
}
