package cla

import (
	"fmt"

	"github.com/514-labs/cla-bot/internal/store"
)

type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindInvalidRequest  Kind = "INVALID_REQUEST"
	KindVersionMismatch Kind = "VERSION_MISMATCH"
	KindAlreadySigned   Kind = "ALREADY_SIGNED"
	KindUnauthorized    Kind = "UNAUTHORIZED"
)

// Error is the typed failure crossing the core's boundary. CurrentDigest is
// set on VersionMismatch so the caller can retry against fresh text;
// Existing is set on AlreadySigned.
type Error struct {
	Kind    Kind
	Message string

	CurrentDigest string
	Existing      *store.ClaSignature
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus implements httpx.DomainError.
func (e *Error) HTTPStatus() int { return e.Kind.HTTPStatus() }

// Envelope renders the wire body: the kind, the human message, and any
// machine-readable context the kind carries.
func (e *Error) Envelope() (string, string, any) {
	var details any
	switch {
	case e.CurrentDigest != "":
		details = map[string]any{"current_digest": e.CurrentDigest}
	case e.Existing != nil:
		details = map[string]any{
			"signature_id":  e.Existing.ID,
			"signed_digest": e.Existing.SignedDigest,
			"signed_at":     e.Existing.SignedAt,
		}
	}
	return string(e.Kind), e.Message, details
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps an error kind to its HTTP equivalent.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return 404
	case KindForbidden:
		return 403
	case KindInvalidRequest:
		return 400
	case KindVersionMismatch, KindAlreadySigned:
		return 409
	case KindUnauthorized:
		return 401
	}
	return 500
}
