// Package telegram is a minimal typed client for the Telegram Bot API.
// This file classifies Bot API failures into a small error-kind enum so
// callers branch on kinds instead of sniffing description strings.
package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind buckets Bot API failures by how callers should react.
type ErrorKind int

const (
	// KindOther covers anything the classifier does not recognize.
	KindOther ErrorKind = iota
	// KindUnavailable marks transport failures, timeouts, 5xx and 429
	// responses. Retrying later may succeed.
	KindUnavailable
	// KindForbidden marks 403 responses: the bot is blocked by the user or
	// was kicked from the chat.
	KindForbidden
	// KindNotFound marks "chat not found" / "user not found" responses.
	KindNotFound
	// KindMemberListInaccessible marks getChatMember failing because the
	// bot is not an administrator of the gate channel. Distinct so the
	// subscription check can log it as a setup problem, not user state.
	KindMemberListInaccessible
	// KindNotModified marks edits that would leave a message unchanged.
	// Harmless on repeated menu presses; callers usually ignore it.
	KindNotModified
	// KindBadRequest marks any other 400: malformed payloads, bad chat ids.
	KindBadRequest
)

// String implements fmt.Stringer for log fields.
func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindMemberListInaccessible:
		return "member_list_inaccessible"
	case KindNotModified:
		return "not_modified"
	case KindBadRequest:
		return "bad_request"
	default:
		return "other"
	}
}

// APIError is a non-OK Bot API response or a transport failure, classified.
type APIError struct {
	Method      string
	Code        int // Telegram error_code, 0 for transport failures
	Description string
	Kind        ErrorKind
	RetryAfter  int // seconds, from 429 parameters; 0 otherwise
	wrapped     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("telegram %s: %v", e.Method, e.wrapped)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Unwrap exposes the underlying transport error, if any.
func (e *APIError) Unwrap() error { return e.wrapped }

// KindOf extracts the classified kind from err, or KindOther when err is not
// an APIError.
func KindOf(err error) ErrorKind {
	var api *APIError
	if errors.As(err, &api) {
		return api.Kind
	}
	return KindOther
}

// classify maps a Bot API error response onto an ErrorKind.
func classify(code int, description string) ErrorKind {
	low := strings.ToLower(description)
	switch {
	case code == 429 || code >= 500:
		return KindUnavailable
	case code == 403:
		return KindForbidden
	case strings.Contains(low, "member list is inaccessible"):
		return KindMemberListInaccessible
	case strings.Contains(low, "message is not modified"):
		return KindNotModified
	case strings.Contains(low, "chat not found"),
		strings.Contains(low, "user not found"),
		strings.Contains(low, "message to edit not found"):
		return KindNotFound
	case code == 400:
		return KindBadRequest
	default:
		return KindOther
	}
}

// transportError wraps a network/timeout failure as KindUnavailable.
func transportError(method string, err error) *APIError {
	return &APIError{Method: method, Kind: KindUnavailable, wrapped: err}
}
