package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/514-labs/cla-bot/internal/cla"
	"github.com/514-labs/cla-bot/internal/githubapi"
	"github.com/514-labs/cla-bot/internal/store"
)

type HandlerStore interface {
	ReserveDelivery(ctx context.Context, deliveryID, event string) (bool, error)
	GetOrgByInstallationID(ctx context.Context, installationID int64) (store.Organization, error)
	UpsertOrg(ctx context.Context, slug string, accountType store.AccountType, accountID, installationID int64) (store.Organization, error)
	SetOrgActive(ctx context.Context, orgID string, active bool) error
	AppendAudit(ctx context.Context, e store.AuditEvent) error
}

// Result reports what a delivery amounted to. Duplicate deliveries and
// irrelevant actions are successes, not errors.
type Result struct {
	Status  string      `json:"status"` // processed | duplicate | ignored | acknowledged
	Outcome cla.Outcome `json:"outcome,omitzero"`
}

var (
	resultDuplicate    = Result{Status: "duplicate"}
	resultIgnored      = Result{Status: "ignored"}
	resultAcknowledged = Result{Status: "acknowledged"}
)

// Handler is the webhook state machine. No state is stored between
// deliveries; each one is processed against current facts, with the
// delivery ledger providing at-least-once dedup and the reconciler
// providing GitHub-side idempotency.
type Handler struct {
	store  HandlerStore
	github githubapi.Factory
	recon  *Reconciler
	logger *zap.SugaredLogger
}

func NewHandler(st HandlerStore, factory githubapi.Factory, recon *Reconciler, logger *zap.SugaredLogger) *Handler {
	return &Handler{store: st, github: factory, recon: recon, logger: logger}
}

// Handle processes one delivery. The deliveryID reservation is the sole
// synchronization point: a duplicate id returns immediately with no side
// effects.
func (h *Handler) Handle(ctx context.Context, deliveryID, eventType string, rawPayload []byte) (Result, error) {
	if deliveryID == "" {
		return Result{}, &cla.Error{Kind: cla.KindInvalidRequest, Message: "missing delivery id"}
	}
	reserved, err := h.store.ReserveDelivery(ctx, deliveryID, eventType)
	if err != nil {
		return Result{}, err
	}
	if !reserved {
		h.logger.Infow("duplicate delivery ignored", "delivery_id", deliveryID, "event", eventType)
		return resultDuplicate, nil
	}

	var payload eventPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return Result{}, &cla.Error{Kind: cla.KindInvalidRequest, Message: "malformed payload: " + err.Error()}
	}

	switch eventType {
	case "pull_request":
		return h.handlePullRequest(ctx, payload)
	case "issue_comment":
		return h.handleIssueComment(ctx, payload)
	case "merge_group":
		return h.handleMergeGroup(ctx, payload)
	case "installation":
		return h.handleInstallation(ctx, payload)
	case "ping":
		return resultAcknowledged, nil
	default:
		return resultIgnored, nil
	}
}

func (h *Handler) orgForPayload(ctx context.Context, payload eventPayload) (store.Organization, error) {
	if payload.Installation.ID == 0 {
		return store.Organization{}, &cla.Error{Kind: cla.KindInvalidRequest, Message: "payload missing installation id"}
	}
	org, err := h.store.GetOrgByInstallationID(ctx, payload.Installation.ID)
	if err != nil {
		if errors.Is(err, store.ErrOrgNotFound) {
			return store.Organization{}, &cla.Error{Kind: cla.KindNotFound, Message: "organization not registered for this installation"}
		}
		return store.Organization{}, err
	}
	return org, nil
}

func (h *Handler) handlePullRequest(ctx context.Context, payload eventPayload) (Result, error) {
	switch payload.Action {
	case "opened", "reopened", "synchronize":
	default:
		return resultIgnored, nil
	}
	if payload.PullRequest.Head.SHA == "" || payload.PullRequest.User.Login == "" || payload.Repository.Name == "" {
		return Result{}, &cla.Error{Kind: cla.KindInvalidRequest, Message: "pull_request payload missing head sha, author or repository"}
	}

	org, err := h.orgForPayload(ctx, payload)
	if err != nil {
		return Result{}, err
	}
	gh := h.github.Installation(org.InstallationID)
	pr := githubapi.PullRequest{
		Owner:       payload.Repository.Owner.Login,
		Repo:        payload.Repository.Name,
		Number:      payload.PullRequest.Number,
		HeadSHA:     payload.PullRequest.Head.SHA,
		AuthorID:    payload.PullRequest.User.ID,
		AuthorLogin: payload.PullRequest.User.Login,
		AuthorType:  payload.PullRequest.User.Type,
	}
	outcome, err := h.recon.ReconcilePR(ctx, gh, org, pr)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: "processed", Outcome: outcome}, nil
}

func (h *Handler) handleIssueComment(ctx context.Context, payload eventPayload) (Result, error) {
	if payload.Action != "created" {
		return resultIgnored, nil
	}
	if strings.TrimSpace(payload.Comment.Body) != "/recheck" {
		return resultIgnored, nil
	}
	if payload.Issue.PullRequest == nil {
		return resultIgnored, nil
	}

	org, err := h.orgForPayload(ctx, payload)
	if err != nil {
		return Result{}, err
	}
	gh := h.github.Installation(org.InstallationID)

	requester := payload.Comment.User
	if err := h.authorizeRecheck(ctx, gh, org, requester, payload.Issue.User.ID); err != nil {
		return Result{}, err
	}

	pr, err := gh.GetPullRequest(ctx, payload.Repository.Owner.Login, payload.Repository.Name, payload.Issue.Number)
	if err != nil {
		return Result{}, err
	}
	outcome, err := h.recon.ReconcilePR(ctx, gh, org, pr)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: "processed", Outcome: outcome}, nil
}

// authorizeRecheck rejects /recheck from anyone who is not the PR author,
// an org member, or the account owner, before any re-evaluation happens.
func (h *Handler) authorizeRecheck(ctx context.Context, gh githubapi.Client, org store.Organization, requester account, prAuthorID int64) error {
	if requester.ID != 0 && requester.ID == prAuthorID {
		return nil
	}
	if requester.ID == org.AccountID {
		return nil
	}
	if org.AccountType == store.AccountOrg {
		member, err := gh.IsOrgMember(ctx, org.Slug, requester.Login)
		if err != nil {
			return err
		}
		if member {
			return nil
		}
	}
	return &cla.Error{Kind: cla.KindForbidden, Message: "/recheck requires the PR author, an organization member, or the account owner"}
}

// handleMergeGroup always reports success for checks_requested: compliance
// was already enforced on the originating PR, and the merge queue must
// never be blocked by this check.
func (h *Handler) handleMergeGroup(ctx context.Context, payload eventPayload) (Result, error) {
	if payload.Action != "checks_requested" {
		return resultIgnored, nil
	}
	if payload.MergeGroup.HeadSHA == "" || payload.Repository.Name == "" {
		return Result{}, &cla.Error{Kind: cla.KindInvalidRequest, Message: "merge_group payload missing head sha or repository"}
	}
	org, err := h.orgForPayload(ctx, payload)
	if err != nil {
		return Result{}, err
	}
	gh := h.github.Installation(org.InstallationID)
	err = PutCheckRun(ctx, gh, payload.Repository.Owner.Login, payload.Repository.Name, githubapi.CheckRun{
		Name:       h.recon.CheckName(),
		HeadSHA:    payload.MergeGroup.HeadSHA,
		Conclusion: githubapi.ConclusionSuccess,
		Title:      "CLA compliance",
		Summary:    "Compliance was enforced on the originating pull request.",
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Status: "processed"}, nil
}

func (h *Handler) handleInstallation(ctx context.Context, payload eventPayload) (Result, error) {
	acct := payload.Installation.Account
	switch payload.Action {
	case "created":
		accountType := store.AccountUser
		if strings.EqualFold(acct.Type, "Organization") {
			accountType = store.AccountOrg
		}
		if acct.Login == "" || acct.ID == 0 {
			return Result{}, &cla.Error{Kind: cla.KindInvalidRequest, Message: "installation payload missing account"}
		}
		org, err := h.store.UpsertOrg(ctx, acct.Login, accountType, acct.ID, payload.Installation.ID)
		if err != nil {
			return Result{}, err
		}
		h.auditInstallation(ctx, "installation.created", org, acct)
		return Result{Status: "processed"}, nil
	case "deleted", "suspend", "unsuspend":
		org, err := h.orgForPayload(ctx, payload)
		if err != nil {
			return Result{}, err
		}
		active := payload.Action == "unsuspend"
		if err := h.store.SetOrgActive(ctx, org.ID, active); err != nil {
			return Result{}, err
		}
		event := map[string]string{
			"deleted":   "installation.deleted",
			"suspend":   "installation.suspended",
			"unsuspend": "installation.unsuspended",
		}[payload.Action]
		h.auditInstallation(ctx, event, org, acct)
		return Result{Status: "processed"}, nil
	default:
		return resultIgnored, nil
	}
}

func (h *Handler) auditInstallation(ctx context.Context, eventType string, org store.Organization, acct account) {
	err := h.store.AppendAudit(ctx, store.AuditEvent{
		EventType:      eventType,
		OrganizationID: &org.ID,
		ActorID:        &acct.ID,
		ActorLogin:     &acct.Login,
		Payload:        map[string]any{"installation_id": org.InstallationID},
	})
	if err != nil {
		h.logger.Errorw("audit append failed", "event", eventType, "org_id", org.ID, "error", err)
	}
}
