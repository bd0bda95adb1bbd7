package cla

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/514-labs/cla-bot/internal/githubapi"
	"github.com/514-labs/cla-bot/internal/store"
)

type ResolverStore interface {
	BypassStore
	LatestSignature(ctx context.Context, orgID string, userID int64) (store.ClaSignature, error)
}

// Resolver gathers the facts Resolve needs: membership from GitHub, bypass
// and signature state from the store.
type Resolver struct {
	store  ResolverStore
	logger *zap.SugaredLogger
}

func NewResolver(st ResolverStore, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{store: st, logger: logger}
}

func (r *Resolver) ResolveCompliance(ctx context.Context, gh githubapi.Client, org store.Organization, actor Actor) (Outcome, error) {
	isMember := false
	// Inactive orgs short-circuit before any lookup; membership only
	// exists for organization accounts, and only a known login can be
	// looked up.
	if org.IsActive && org.AccountType == store.AccountOrg && actor.ID != org.AccountID && actor.Login != "" {
		m, err := gh.IsOrgMember(ctx, org.Slug, actor.Login)
		if err != nil {
			return Outcome{}, err
		}
		isMember = m
	}

	bypassed := IsBypassed(ctx, r.store, r.logger, org.ID, actor)

	var sig *store.ClaSignature
	latest, err := r.store.LatestSignature(ctx, org.ID, actor.ID)
	switch {
	case err == nil:
		sig = &latest
	case errors.Is(err, store.ErrSignatureNotFound):
	default:
		return Outcome{}, err
	}

	return Resolve(org, actor, isMember, bypassed, sig), nil
}
