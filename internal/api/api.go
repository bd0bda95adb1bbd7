// Package api exposes the compliance core over HTTP: webhook ingress for
// GitHub, and the admin/contributor routes callers drive signing and CLA
// configuration through. Session issuance happens upstream; this layer
// consumes an already-authenticated actor identity from headers.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/514-labs/cla-bot/internal/cla"
	"github.com/514-labs/cla-bot/internal/convergence"
	"github.com/514-labs/cla-bot/internal/githubapi"
	"github.com/514-labs/cla-bot/internal/store"
	"github.com/514-labs/cla-bot/internal/webhook"
)

type WebhookProcessor interface {
	Handle(ctx context.Context, deliveryID, eventType string, payload []byte) (webhook.Result, error)
}

// Store is the slice of the compliance store the HTTP surface touches
// directly; the signing service and resolver carry their own views.
type Store interface {
	GetOrgBySlug(ctx context.Context, slug string) (store.Organization, error)
	UpdateOrgCla(ctx context.Context, orgID, claText, claDigest string) (store.Organization, error)
	LatestSignature(ctx context.Context, orgID string, userID int64) (store.ClaSignature, error)
	GetArchive(ctx context.Context, orgID, digest string) (store.ClaArchive, error)
	CountArchives(ctx context.Context, orgID string) (int, error)
	ListBypassEntries(ctx context.Context, orgID string) ([]store.BypassEntry, error)
	AddBypassEntry(ctx context.Context, e store.BypassEntry) error
	RemoveBypassEntry(ctx context.Context, orgID string, kind store.BypassKind, actorID int64, actorSlug string) (bool, error)
	AppendAudit(ctx context.Context, e store.AuditEvent) error
}

type Server struct {
	store         Store
	signing       *cla.SigningService
	resolver      *cla.Resolver
	scheduler     *convergence.Scheduler
	webhooks      WebhookProcessor
	github        githubapi.Factory
	webhookSecret string
	logger        *zap.SugaredLogger
}

func NewServer(st Store, signing *cla.SigningService, resolver *cla.Resolver,
	scheduler *convergence.Scheduler, webhooks WebhookProcessor, factory githubapi.Factory,
	webhookSecret string, logger *zap.SugaredLogger) *Server {
	return &Server{
		store:         st,
		signing:       signing,
		resolver:      resolver,
		scheduler:     scheduler,
		webhooks:      webhooks,
		github:        factory,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Post("/webhooks/github", s.handleWebhookIngress)

	r.Route("/api", func(api chi.Router) {
		api.Get("/orgs/{slug}", s.handleGetOrg)
		api.Put("/orgs/{slug}/cla", s.handleUpdateCla)
		api.Get("/orgs/{slug}/cla/archives/{digest}", s.handleGetArchive)
		api.Post("/orgs/{slug}/sign", s.handleSign)
		api.Get("/orgs/{slug}/signatures/{userID}", s.handleGetSignature)
		api.Get("/orgs/{slug}/bypass", s.handleListBypass)
		api.Post("/orgs/{slug}/bypass", s.handleAddBypass)
		api.Delete("/orgs/{slug}/bypass/{kind}/{key}", s.handleRemoveBypass)
		api.Get("/convergence/{runID}", s.handleGetRun)
	})

	return r
}

func (s *Server) audit(ctx context.Context, eventType, orgID string, actor cla.Actor, payload map[string]any) {
	err := s.store.AppendAudit(ctx, store.AuditEvent{
		EventType:      eventType,
		OrganizationID: &orgID,
		ActorID:        &actor.ID,
		ActorLogin:     &actor.Login,
		Payload:        payload,
	})
	if err != nil {
		s.logger.Errorw("audit append failed", "event", eventType, "org_id", orgID, "error", err)
	}
}

// actorFromRequest reads the authenticated identity the session
// collaborator attached upstream.
func actorFromRequest(r *http.Request) (cla.Actor, string, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-Id"), 10, 64)
	login := r.Header.Get("X-Actor-Login")
	session := r.Header.Get("X-Session-Id")
	if err != nil || id == 0 || login == "" || session == "" {
		return cla.Actor{}, "", false
	}
	actorType := r.Header.Get("X-Actor-Type")
	if actorType == "" {
		actorType = "User"
	}
	return cla.Actor{ID: id, Login: login, AccountType: actorType}, session, true
}
