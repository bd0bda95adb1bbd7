package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/514-labs/cla-bot/internal/webhook"
	"github.com/514-labs/cla-bot/pkg/httpx"
)

const maxWebhookBodyBytes = 5 << 20 // 5MB

// handleWebhookIngress verifies the HMAC signature before the payload gets
// anywhere near the state machine, then hands off. Processing failures for
// a single delivery are reported in the response; they never crash the
// ingress.
func (s *Server) handleWebhookIngress(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, 413, "PAYLOAD_TOO_LARGE", "payload exceeds 5MB limit", nil)
			return
		}
		httpx.WriteError(w, 400, "BAD_BODY", err.Error(), nil)
		return
	}

	if !webhook.VerifySignature(s.webhookSecret, rawBody, r.Header.Get(webhook.SignatureHeader)) {
		httpx.WriteError(w, 401, "BAD_SIGNATURE", "webhook signature verification failed", nil)
		return
	}

	deliveryID := r.Header.Get("X-GitHub-Delivery")
	eventType := r.Header.Get("X-GitHub-Event")

	result, err := s.webhooks.Handle(r.Context(), deliveryID, eventType, rawBody)
	if err != nil {
		s.logger.Errorw("webhook processing failed",
			"delivery_id", deliveryID, "event", eventType, "error", err)
		httpx.WriteDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, 200, result)
}
