// Package httpx carries the JSON wire helpers shared by every HTTP surface:
// request ids, body decoding, and the error envelope the compliance error
// taxonomy is rendered through.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

// DomainError is satisfied by typed errors that know how they appear on the
// wire: an HTTP status plus a kind/message/details envelope body.
type DomainError interface {
	error
	HTTPStatus() int
	Envelope() (kind, message string, details any)
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     errorBody `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// WriteError emits the standard error envelope. details is optional and
// carries machine-readable context, e.g. the current CLA digest on a
// version mismatch.
func WriteError(w http.ResponseWriter, status int, kind, message string, details any) {
	WriteJSON(w, status, errorEnvelope{
		RequestID: NewRequestID(),
		Error:     errorBody{Kind: kind, Message: message, Details: details},
	})
}

// WriteDomainError renders a typed domain error through its own wire
// mapping. Anything untyped is an internal failure and never leaks as-is
// into a 4xx.
func WriteDomainError(w http.ResponseWriter, err error) {
	var de DomainError
	if errors.As(err, &de) {
		kind, message, details := de.Envelope()
		WriteError(w, de.HTTPStatus(), kind, message, details)
		return
	}
	WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}
