package httpx

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

type staleDigestError struct{ current string }

func (e *staleDigestError) Error() string { return "VERSION_MISMATCH: accepted digest is stale" }

func (e *staleDigestError) HTTPStatus() int { return 409 }

func (e *staleDigestError) Envelope() (string, string, any) {
	return "VERSION_MISMATCH", "accepted digest is stale", map[string]any{"current_digest": e.current}
}

func decodeEnvelope(t *testing.T, body []byte) (requestID, kind, message string, details map[string]any) {
	t.Helper()
	var out struct {
		RequestID string `json:"request_id"`
		Error     struct {
			Kind    string         `json:"kind"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return out.RequestID, out.Error.Kind, out.Error.Message, out.Error.Details
}

func TestWriteDomainErrorTyped(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, &staleDigestError{current: "abc123"})

	if rec.Code != 409 {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	reqID, kind, message, details := decodeEnvelope(t, rec.Body.Bytes())
	if !strings.HasPrefix(reqID, "req_") {
		t.Fatalf("request id = %q, want req_ prefix", reqID)
	}
	if kind != "VERSION_MISMATCH" || message != "accepted digest is stale" {
		t.Fatalf("envelope = %q / %q", kind, message)
	}
	if details["current_digest"] != "abc123" {
		t.Fatalf("details = %v, want current_digest", details)
	}
}

func TestWriteDomainErrorUntypedIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, errors.New("connection refused"))

	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	_, kind, _, _ := decodeEnvelope(t, rec.Body.Bytes())
	if kind != "INTERNAL" {
		t.Fatalf("kind = %q, want INTERNAL", kind)
	}
}

func TestWriteErrorOmitsEmptyDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 404, "NOT_FOUND", "organization not found", nil)

	if strings.Contains(rec.Body.String(), "details") {
		t.Fatalf("nil details must be omitted: %s", rec.Body.String())
	}
}
