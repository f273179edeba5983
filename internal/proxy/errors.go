package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies proxy failures.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid-input"
	KindBlocked             ErrorKind = "blocked"
	KindUpstreamUnreachable ErrorKind = "upstream-unreachable"
	KindUpstreamRejected    ErrorKind = "upstream-rejected"
	KindUnexpectedContent   ErrorKind = "unexpected-content"
)

// Error is a proxy failure that has not yet been written to the client.
type Error struct {
	Status  int
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(status int, kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Status: status, Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// errClientGone means the client disconnected; nothing more can be written.
var errClientGone = errors.New("client disconnected")

type errorBody struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind"`
}

// WriteError writes err as a JSON body. Errors that are not *Error are
// reported as 502 upstream failures.
func WriteError(w http.ResponseWriter, err error) {
	var pe *Error
	if !errors.As(err, &pe) {
		pe = newError(http.StatusBadGateway, KindUpstreamUnreachable, err, "upstream request failed")
	}
	h := w.Header()
	h.Del("Content-Length")
	h.Del("Content-Range")
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(pe.Status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: pe.Message, Kind: pe.Kind})
}
