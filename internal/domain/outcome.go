package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrMalformedBody marks an upstream body that does not parse as JSON.
var ErrMalformedBody = errors.New("malformed upstream response body")

// OutcomeKind is the classification of one upstream attempt.
type OutcomeKind int

const (
	// OutcomeRetryable means this instance failed; another one may succeed.
	OutcomeRetryable OutcomeKind = iota
	// OutcomeSuccess means the instance resolved the request.
	OutcomeSuccess
	// OutcomeTerminal means the instance understood the request but the
	// content cannot be served. Every instance would say the same.
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "retryable"
	}
}

// Outcome is the classified result of a single attempt against one instance.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int             // upstream HTTP status, 0 when no response was received
	Body       json.RawMessage // upstream JSON value, nil when it could not be parsed
	Err        error           // transport or parse error, set only for retryable outcomes
}

// Classify applies the three-way rule to a raw upstream exchange.
//
//   - transport error, or a body that is not JSON: retryable
//   - object body {"status":"error","error":<truthy>}: terminal, whatever the HTTP status
//   - 2xx with any JSON body: success
//   - anything else: retryable, body kept
func Classify(statusCode int, body []byte, transportErr error) Outcome {
	if transportErr != nil {
		return Outcome{Kind: OutcomeRetryable, StatusCode: statusCode, Err: transportErr}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return Outcome{
			Kind:       OutcomeRetryable,
			StatusCode: statusCode,
			Err:        fmt.Errorf("%w (http %d)", ErrMalformedBody, statusCode),
		}
	}

	raw := json.RawMessage(body)
	if isStructuredError(trimmed) {
		return Outcome{Kind: OutcomeTerminal, StatusCode: statusCode, Body: raw}
	}
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return Outcome{Kind: OutcomeSuccess, StatusCode: statusCode, Body: raw}
	}
	return Outcome{Kind: OutcomeRetryable, StatusCode: statusCode, Body: raw}
}

// isStructuredError reports whether the body follows the upstream error convention.
// Only objects can.
func isStructuredError(body []byte) bool {
	if body[0] != '{' {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	var status string
	if err := json.Unmarshal(fields["status"], &status); err != nil || status != StatusError {
		return false
	}
	return isTruthy(fields["error"])
}

// isTruthy treats absent, null, false, "" and any numeric zero as empty.
func isTruthy(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	switch string(v) {
	case "", "null", "false", `""`:
		return false
	}
	if c := v[0]; c == '-' || (c >= '0' && c <= '9') {
		f, err := strconv.ParseFloat(string(v), 64)
		return err != nil || f != 0
	}
	return true
}

// Failure converts a retryable outcome into the diagnostic record kept by the dispatcher.
// Transport and parse failures are reported as status 500 with a message.
func (o Outcome) Failure(instance string) *Failure {
	if o.Err != nil {
		return &Failure{
			Status:   http.StatusInternalServerError,
			Message:  o.Err.Error(),
			Instance: instance,
		}
	}
	return &Failure{
		Status:   o.StatusCode,
		Data:     o.Body,
		Instance: instance,
	}
}

// Failure is the last-seen failure attached to an exhaustion result.
type Failure struct {
	Status   int             `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
	Instance string          `json:"instance,omitempty"` // empty when no instance was contacted
}

// Attempt traces one instance contact. It feeds logs and statistics only.
type Attempt struct {
	Instance   string
	Kind       OutcomeKind
	StatusCode int
	Duration   time.Duration
	Err        string
}
