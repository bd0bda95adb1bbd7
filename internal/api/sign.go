package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/514-labs/cla-bot/internal/cla"
	"github.com/514-labs/cla-bot/internal/convergence"
	"github.com/514-labs/cla-bot/internal/store"
	"github.com/514-labs/cla-bot/pkg/contenthash"
	"github.com/514-labs/cla-bot/pkg/httpx"
)

func signatureJSON(sig store.ClaSignature) map[string]any {
	return map[string]any{
		"signature_id":    sig.ID,
		"org_id":          sig.OrganizationID,
		"user_id":         sig.UserID,
		"signed_digest":   sig.SignedDigest,
		"signed_label":    contenthash.Label(sig.SignedDigest),
		"consent_version": sig.ConsentVersion,
		"signed_at":       sig.SignedAt,
	}
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	actor, sessionID, ok := actorFromRequest(r)

	var req struct {
		AcceptedDigest string `json:"accepted_digest"`
		ConsentVersion string `json:"consent_version"`
		Email          string `json:"email"`
		EmailVerified  bool   `json:"email_verified"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}

	sig, err := s.signing.Sign(r.Context(), cla.SignRequest{
		OrgSlug:        chi.URLParam(r, "slug"),
		Actor:          actor,
		AcceptedDigest: req.AcceptedDigest,
		ConsentVersion: req.ConsentVersion,
		SessionValid:   ok,
		Evidence: store.SignatureEvidence{
			Email:         req.Email,
			EmailVerified: req.EmailVerified,
			SessionID:     sessionID,
			IPHash:        contenthash.Sum(r.RemoteAddr),
			UserAgent:     r.UserAgent(),
		},
	})
	if err != nil {
		httpx.WriteDomainError(w, err)
		return
	}

	// The signature is on record regardless of what convergence does next.
	runID := s.scheduler.Schedule(convergence.Trigger{
		OrgID:      sig.OrganizationID,
		Reason:     "signature_created",
		ActorID:    actor.ID,
		ActorLogin: actor.Login,
	})

	httpx.WriteJSON(w, 201, map[string]any{
		"signature":          signatureJSON(sig),
		"convergence_run_id": runID,
	})
}

func (s *Server) handleGetSignature(w http.ResponseWriter, r *http.Request) {
	org, err := s.store.GetOrgBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeOrgLookupError(w, err)
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.WriteError(w, 400, "INVALID_REQUEST", "user id must be numeric", nil)
		return
	}
	login := r.URL.Query().Get("login")

	resp := map[string]any{"org_id": org.ID, "user_id": userID}

	sig, err := s.store.LatestSignature(r.Context(), org.ID, userID)
	switch {
	case err == nil:
		resp["signature"] = signatureJSON(sig)
	case errors.Is(err, store.ErrSignatureNotFound):
	default:
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}

	actor := cla.Actor{ID: userID, Login: login, AccountType: "User"}
	gh := s.github.Installation(org.InstallationID)
	outcome, err := s.resolver.ResolveCompliance(r.Context(), gh, org, actor)
	if err != nil {
		httpx.WriteError(w, 502, "GITHUB_ERROR", err.Error(), nil)
		return
	}
	resp["state"] = outcome.State
	if outcome.ExemptReason != "" {
		resp["exempt_reason"] = outcome.ExemptReason
	}
	httpx.WriteJSON(w, 200, resp)
}
