package weatherapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindTimeout        ErrorKind = "timeout"
	KindUnauthorized   ErrorKind = "unauthorized"
	KindNotFound       ErrorKind = "not_found"
	KindUpstream       ErrorKind = "upstream"
	KindDecode         ErrorKind = "decode"
	KindInvalidRequest ErrorKind = "invalid_request"
)

// weatherapi.com error codes, see https://www.weatherapi.com/docs/#intro-error-codes
const (
	codeKeyMissing       = 1002
	codeNoLocation       = 1006
	codeKeyInvalid       = 2006
	codeQuotaExceeded    = 2007
	codeKeyDisabled      = 2008
	codeParameterMissing = 1003
)

// Error is returned by every Client method that fails. Kind is what callers
// branch on; Status and Code carry the upstream details when there are any.
type Error struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("weatherapi %s: %s (status %d, code %d): %s", e.Op, e.Kind, e.Status, e.Code, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("weatherapi %s: %s (status %d)", e.Op, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("weatherapi %s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("weatherapi %s: %s: %s", e.Op, e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a weatherapi error, or "" for nil and foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func transportError(op string, err error) *Error {
	kind := KindNetwork
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func statusError(op string, status int, body apiErrorBody) *Error {
	e := &Error{Kind: KindUpstream, Op: op, Status: status, Code: body.Error.Code, Message: body.Error.Message}
	switch {
	case body.Error.Code == codeNoLocation:
		e.Kind = KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden,
		body.Error.Code == codeKeyMissing, body.Error.Code == codeKeyInvalid,
		body.Error.Code == codeQuotaExceeded, body.Error.Code == codeKeyDisabled:
		e.Kind = KindUnauthorized
	case body.Error.Code == codeParameterMissing:
		e.Kind = KindInvalidRequest
	}
	return e
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
