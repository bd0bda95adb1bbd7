package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/514-labs/cla-bot/internal/convergence"
	"github.com/514-labs/cla-bot/internal/store"
	"github.com/514-labs/cla-bot/pkg/httpx"
)

func (s *Server) handleListBypass(w http.ResponseWriter, r *http.Request) {
	org, err := s.store.GetOrgBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeOrgLookupError(w, err)
		return
	}
	entries, err := s.store.ListBypassEntries(r.Context(), org.ID)
	if err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		m := map[string]any{
			"kind":        e.Kind,
			"actor_login": e.ActorLogin,
			"created_by":  e.CreatedBy,
			"created_at":  e.CreatedAt,
		}
		if e.Kind == store.BypassUser {
			m["actor_id"] = e.ActorID
		} else {
			m["actor_slug"] = e.ActorSlug
		}
		out = append(out, m)
	}
	httpx.WriteJSON(w, 200, map[string]any{"org_id": org.ID, "entries": out})
}

// handleAddBypass adds a bypass entry. The two kinds are deliberately a
// tagged union: users are keyed by stable numeric id, automation accounts
// by normalized slug (the "[bot]" suffix is stripped before storage).
func (s *Server) handleAddBypass(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := actorFromRequest(r)
	if !ok {
		httpx.WriteError(w, 401, "UNAUTHORIZED", "an authenticated actor is required", nil)
		return
	}

	var req struct {
		Kind       string `json:"kind"`
		ActorID    int64  `json:"actor_id"`
		ActorSlug  string `json:"actor_slug"`
		ActorLogin string `json:"actor_login"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}

	org, err := s.store.GetOrgBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeOrgLookupError(w, err)
		return
	}

	entry := store.BypassEntry{
		OrganizationID: org.ID,
		ActorLogin:     req.ActorLogin,
		CreatedBy:      actor.Login,
	}
	switch store.BypassKind(req.Kind) {
	case store.BypassUser:
		if req.ActorID == 0 {
			httpx.WriteError(w, 400, "INVALID_REQUEST", "kind=user requires actor_id", nil)
			return
		}
		entry.Kind = store.BypassUser
		entry.ActorID = req.ActorID
	case store.BypassAppBot:
		if strings.TrimSpace(req.ActorSlug) == "" {
			httpx.WriteError(w, 400, "INVALID_REQUEST", "kind=app_bot requires actor_slug", nil)
			return
		}
		entry.Kind = store.BypassAppBot
		entry.ActorSlug = normalizeSlug(req.ActorSlug)
	default:
		httpx.WriteError(w, 400, "INVALID_REQUEST", "kind must be user or app_bot", nil)
		return
	}

	if err := s.store.AddBypassEntry(r.Context(), entry); err != nil {
		if errors.Is(err, store.ErrBypassLimit) {
			httpx.WriteError(w, 400, "INVALID_REQUEST", "bypass list capacity reached", nil)
			return
		}
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}

	s.audit(r.Context(), "bypass.added", org.ID, actor, map[string]any{
		"kind": entry.Kind, "actor_id": entry.ActorID, "actor_slug": entry.ActorSlug,
	})
	runID := s.scheduler.Schedule(convergence.Trigger{OrgID: org.ID, Reason: "bypass_changed"})

	httpx.WriteJSON(w, 201, map[string]any{"added": true, "convergence_run_id": runID})
}

func (s *Server) handleRemoveBypass(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := actorFromRequest(r)
	if !ok {
		httpx.WriteError(w, 401, "UNAUTHORIZED", "an authenticated actor is required", nil)
		return
	}

	org, err := s.store.GetOrgBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeOrgLookupError(w, err)
		return
	}

	kind := store.BypassKind(chi.URLParam(r, "kind"))
	key := chi.URLParam(r, "key")
	var actorID int64
	var actorSlug string
	switch kind {
	case store.BypassUser:
		actorID, err = strconv.ParseInt(key, 10, 64)
		if err != nil {
			httpx.WriteError(w, 400, "INVALID_REQUEST", "user bypass key must be a numeric id", nil)
			return
		}
	case store.BypassAppBot:
		actorSlug = normalizeSlug(key)
	default:
		httpx.WriteError(w, 400, "INVALID_REQUEST", "kind must be user or app_bot", nil)
		return
	}

	removed, err := s.store.RemoveBypassEntry(r.Context(), org.ID, kind, actorID, actorSlug)
	if err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	if !removed {
		httpx.WriteError(w, 404, "NOT_FOUND", "bypass entry not found", nil)
		return
	}

	s.audit(r.Context(), "bypass.removed", org.ID, actor, map[string]any{
		"kind": kind, "actor_id": actorID, "actor_slug": actorSlug,
	})
	runID := s.scheduler.Schedule(convergence.Trigger{OrgID: org.ID, Reason: "bypass_changed"})

	httpx.WriteJSON(w, 200, map[string]any{"removed": true, "convergence_run_id": runID})
}

func normalizeSlug(slug string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(slug)), "[bot]")
}
