package convert

import "net/http"

// Category is a coarse, user-facing failure class. Each category maps to one
// HTTP status and a message safe to expose to callers.
type Category string

// Failure categories.
const (
	CategoryInvalidInput      Category = "invalid_input"
	CategoryUnavailable       Category = "unavailable"
	CategoryAuthRequired      Category = "auth_required"
	CategoryFormatUnavailable Category = "format_unavailable"
	CategorySizeExceeded      Category = "size_exceeded"
	CategoryDurationExceeded  Category = "duration_exceeded"
	CategoryBotDetection      Category = "bot_detection"
	CategoryNetwork           Category = "network_error"
	CategoryTimedOut          Category = "timed_out"
	CategoryStalled           Category = "stalled"
	CategoryOutputMissing     Category = "output_missing"
	CategoryOutputEmpty       Category = "output_empty"
	CategoryWorkspace         Category = "workspace_error"
	CategoryUnknown           Category = "unknown"
)

// Error is a classified conversion failure. Message is user-facing; the
// wrapped cause stays internal.
type Error struct {
	Category Category
	Message  string
	cause    error
}

// NewError builds a classified error with a user-facing message.
func NewError(category Category, message string) *Error {
	return &Error{Category: category, Message: message}
}

// WrapError builds a classified error retaining an internal cause.
func WrapError(category Category, message string, cause error) *Error {
	return &Error{Category: category, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the internal cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus maps the category to the single response status for it.
func (e *Error) HTTPStatus() int {
	switch e.Category {
	case CategoryInvalidInput, CategoryUnavailable, CategoryFormatUnavailable,
		CategorySizeExceeded, CategoryDurationExceeded, CategoryBotDetection:
		return http.StatusBadRequest
	case CategoryAuthRequired:
		return http.StatusForbidden
	case CategoryTimedOut, CategoryStalled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
