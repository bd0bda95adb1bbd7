package cla

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/514-labs/cla-bot/internal/store"
)

type SigningStore interface {
	GetOrgBySlug(ctx context.Context, slug string) (store.Organization, error)
	GetSignatureByDigest(ctx context.Context, orgID string, userID int64, digest string) (store.ClaSignature, error)
	InsertSignature(ctx context.Context, sig store.ClaSignature) (bool, store.ClaSignature, error)
	EnsureArchive(ctx context.Context, orgID, digest, claText string) error
	AppendAudit(ctx context.Context, e store.AuditEvent) error
}

type SignRequest struct {
	OrgSlug string
	Actor   Actor
	// AcceptedDigest is optional; empty means "the current digest". When
	// set it must match the organization's live digest.
	AcceptedDigest string
	ConsentVersion string
	Evidence       store.SignatureEvidence
	// SessionValid is the upstream session collaborator's verdict on the
	// actor's identity context.
	SessionValid bool
}

type SigningService struct {
	store  SigningStore
	logger *zap.SugaredLogger
}

func NewSigningService(st SigningStore, logger *zap.SugaredLogger) *SigningService {
	return &SigningService{store: st, logger: logger}
}

// Sign validates and records a signature. Safe to retry: the second
// identical attempt surfaces AlreadySigned, backed by the storage unique
// constraint rather than a check-then-insert race.
func (s *SigningService) Sign(ctx context.Context, req SignRequest) (store.ClaSignature, error) {
	org, err := s.store.GetOrgBySlug(ctx, req.OrgSlug)
	if err != nil {
		if errors.Is(err, store.ErrOrgNotFound) {
			return store.ClaSignature{}, errf(KindNotFound, "organization %q not found", req.OrgSlug)
		}
		return store.ClaSignature{}, err
	}
	if !org.IsActive {
		return store.ClaSignature{}, errf(KindForbidden, "organization %q is not active", req.OrgSlug)
	}
	if org.ClaDigest == nil {
		return store.ClaSignature{}, errf(KindInvalidRequest, "organization %q has no CLA configured", req.OrgSlug)
	}
	current := *org.ClaDigest

	if req.AcceptedDigest != "" && req.AcceptedDigest != current {
		e := errf(KindVersionMismatch, "accepted digest is stale; the CLA has changed")
		e.CurrentDigest = current
		return store.ClaSignature{}, e
	}

	existing, err := s.store.GetSignatureByDigest(ctx, org.ID, req.Actor.ID, current)
	switch {
	case err == nil:
		e := errf(KindAlreadySigned, "current CLA version already signed")
		e.Existing = &existing
		return store.ClaSignature{}, e
	case errors.Is(err, store.ErrSignatureNotFound):
	default:
		return store.ClaSignature{}, err
	}

	if !req.SessionValid || req.Actor.ID == 0 || req.Actor.Login == "" {
		return store.ClaSignature{}, errf(KindUnauthorized, "a valid session is required to sign")
	}

	if err := s.store.EnsureArchive(ctx, org.ID, current, *org.ClaText); err != nil {
		return store.ClaSignature{}, err
	}

	inserted, sig, err := s.store.InsertSignature(ctx, store.ClaSignature{
		OrganizationID:        org.ID,
		UserID:                req.Actor.ID,
		SignedDigest:          current,
		AcceptedDigest:        current,
		ConsentVersion:        req.ConsentVersion,
		ActorIDAtSignature:    req.Actor.ID,
		ActorLoginAtSignature: req.Actor.Login,
		Evidence:              req.Evidence,
	})
	if err != nil {
		return store.ClaSignature{}, err
	}
	if !inserted {
		// Lost a race with a concurrent identical attempt; surface the
		// winner's row.
		existing, err := s.store.GetSignatureByDigest(ctx, org.ID, req.Actor.ID, current)
		if err != nil {
			return store.ClaSignature{}, err
		}
		e := errf(KindAlreadySigned, "current CLA version already signed")
		e.Existing = &existing
		return store.ClaSignature{}, e
	}

	if err := s.store.AppendAudit(ctx, store.AuditEvent{
		EventType:      "signature.created",
		OrganizationID: &org.ID,
		UserID:         &req.Actor.ID,
		ActorID:        &req.Actor.ID,
		ActorLogin:     &req.Actor.Login,
		Payload: map[string]any{
			"signed_digest":   sig.SignedDigest,
			"consent_version": sig.ConsentVersion,
		},
	}); err != nil {
		// The signature is the authoritative fact; a failed audit write
		// must not unwind it.
		s.logger.Errorw("audit append failed", "event", "signature.created", "org_id", org.ID, "error", err)
	}

	s.logger.Infow("signature recorded", "org", req.OrgSlug, "user_id", req.Actor.ID, "digest", sig.SignedDigest)
	return sig, nil
}
