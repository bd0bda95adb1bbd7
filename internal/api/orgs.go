package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/514-labs/cla-bot/internal/convergence"
	"github.com/514-labs/cla-bot/internal/store"
	"github.com/514-labs/cla-bot/pkg/contenthash"
	"github.com/514-labs/cla-bot/pkg/httpx"
)

func (s *Server) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	org, err := s.store.GetOrgBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeOrgLookupError(w, err)
		return
	}
	resp := map[string]any{
		"org_id":       org.ID,
		"slug":         org.Slug,
		"account_type": org.AccountType,
		"is_active":    org.IsActive,
	}
	if org.ClaDigest != nil {
		resp["cla_digest"] = *org.ClaDigest
		resp["cla_label"] = contenthash.Label(*org.ClaDigest)
	}
	// Archives only exist for versions somebody actually signed; the count
	// does not move on back-to-back CLA edits.
	n, err := s.store.CountArchives(r.Context(), org.ID)
	if err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	resp["archived_versions"] = n
	httpx.WriteJSON(w, 200, resp)
}

// handleGetArchive returns the immutable text snapshot for a signed CLA
// version, so a past signature can always be traced to the exact wording
// it covered.
func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	org, err := s.store.GetOrgBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeOrgLookupError(w, err)
		return
	}
	archive, err := s.store.GetArchive(r.Context(), org.ID, chi.URLParam(r, "digest"))
	if err != nil {
		if errors.Is(err, store.ErrArchiveNotFound) {
			httpx.WriteError(w, 404, "NOT_FOUND", "no archive for that digest", nil)
			return
		}
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"org_id":     archive.OrganizationID,
		"digest":     archive.Digest,
		"label":      contenthash.Label(archive.Digest),
		"cla_text":   archive.ClaText,
		"created_at": archive.CreatedAt,
	})
}

// handleUpdateCla swaps the CLA text, recomputes the digest and kicks off
// an org-wide convergence run. No archive is written here: archives are
// created lazily on first signature, so back-to-back edits with no signing
// in between leave the archive count untouched.
func (s *Server) handleUpdateCla(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := actorFromRequest(r)
	if !ok {
		httpx.WriteError(w, 401, "UNAUTHORIZED", "an authenticated actor is required", nil)
		return
	}

	var req struct {
		ClaText string `json:"cla_text"`
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

	digest := contenthash.Sum(req.ClaText)
	org, err = s.store.UpdateOrgCla(r.Context(), org.ID, req.ClaText, digest)
	if err != nil {
		httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
		return
	}

	s.audit(r.Context(), "cla.updated", org.ID, actor, map[string]any{"cla_digest": digest})

	// The edit is already persisted; convergence is propagation, not part
	// of the write.
	runID := s.scheduler.Schedule(convergence.Trigger{
		OrgID:  org.ID,
		Reason: "cla_updated",
	})

	httpx.WriteJSON(w, 200, map[string]any{
		"org_id":             org.ID,
		"cla_digest":         digest,
		"cla_label":          contenthash.Label(digest),
		"convergence_run_id": runID,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.scheduler.GetRun(chi.URLParam(r, "runID"))
	if !ok {
		httpx.WriteError(w, 404, "NOT_FOUND", "convergence run not found", nil)
		return
	}
	httpx.WriteJSON(w, 200, run)
}

func writeOrgLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrOrgNotFound) {
		httpx.WriteError(w, 404, "NOT_FOUND", "organization not found", nil)
		return
	}
	httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
}
