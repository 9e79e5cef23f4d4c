package domain

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ResultKind is the final outcome of a whole dispatch.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultTerminal
	ResultExhausted
	ResultRejected
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultTerminal:
		return "terminal"
	case ResultExhausted:
		return "exhausted"
	default:
		return "rejected"
	}
}

// Result is what the dispatcher hands back to its caller. It is always well
// formed: every dispatch ends in exactly one of the four kinds.
type Result struct {
	// ID correlates the log lines of one dispatch.
	ID string

	Kind ResultKind

	// Instance and Body are set for success and terminal results.
	Instance string
	Body     json.RawMessage

	// LastFailure is set for exhausted results (nil only if no instance was tried).
	LastFailure *Failure

	// Reason is set for rejected results.
	Reason error

	// Attempts lists every instance contacted, in order.
	Attempts []Attempt
}

// HTTPStatus maps the result to the status code returned to the caller.
// Terminal errors go out as 200, like the upstream convention expects.
func (r Result) HTTPStatus() int {
	switch r.Kind {
	case ResultSuccess, ResultTerminal:
		return http.StatusOK
	case ResultExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// Code returns the machine-readable error code of a non-success result.
func (r Result) Code() string {
	switch r.Kind {
	case ResultTerminal:
		return ErrorCodeOf(r.Body)
	case ResultExhausted:
		return CodeAllInstancesFailed
	case ResultRejected:
		switch {
		case errors.Is(r.Reason, ErrInvalidURL):
			return CodeLinkInvalid
		case errors.Is(r.Reason, ErrInvalidRequest):
			return CodeRequestInvalid
		default:
			return CodeLinkMissing
		}
	default:
		return ""
	}
}

// Payload renders the response body for the caller.
func (r Result) Payload() ([]byte, error) {
	switch r.Kind {
	case ResultSuccess, ResultTerminal:
		return r.Body, nil
	case ResultExhausted:
		env := NewErrorEnvelope(CodeAllInstancesFailed)
		env.Details = r.LastFailure
		return json.Marshal(env)
	default:
		return json.Marshal(NewErrorEnvelope(r.Code()))
	}
}

// ErrorEnvelope is the upstream error shape, reused for errors this service produces.
type ErrorEnvelope struct {
	Status  string    `json:"status"`
	Error   ErrorBody `json:"error"`
	Details *Failure  `json:"details,omitempty"`
}

// ErrorBody carries the machine-readable code.
type ErrorBody struct {
	Code string `json:"code"`
}

// NewErrorEnvelope builds {"status":"error","error":{"code":code}}.
func NewErrorEnvelope(code string) ErrorEnvelope {
	return ErrorEnvelope{Status: StatusError, Error: ErrorBody{Code: code}}
}

// ErrorCodeOf extracts error.code from an upstream error body, or "".
func ErrorCodeOf(body json.RawMessage) string {
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Error.Code
}
