package cla

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const botLoginSuffix = "[bot]"

type BypassStore interface {
	HasUserBypass(ctx context.Context, orgID string, actorID int64) (bool, error)
	HasAppBotBypass(ctx context.Context, orgID string, slugCandidates []string) (bool, error)
}

// LooksLikeAppBot reports whether the actor is an automation identity:
// either GitHub says so, or the login carries the bot suffix.
func LooksLikeAppBot(actor Actor) bool {
	return strings.EqualFold(actor.AccountType, "Bot") ||
		strings.HasSuffix(strings.ToLower(actor.Login), botLoginSuffix)
}

// SlugCandidates returns the login forms to match against stored app_bot
// slugs. GitHub shows the same automation identity with and without the
// "[bot]" suffix depending on context, so both forms are tried.
func SlugCandidates(login string) []string {
	bare := strings.TrimSuffix(strings.ToLower(login), botLoginSuffix)
	return []string{bare, bare + botLoginSuffix}
}

// IsBypassed decides whether the actor is exempt from signing for the
// organization, independent of signature state. It never errors: a store
// failure is logged and treated as "not bypassed".
func IsBypassed(ctx context.Context, st BypassStore, logger *zap.SugaredLogger, orgID string, actor Actor) bool {
	ok, err := st.HasUserBypass(ctx, orgID, actor.ID)
	if err != nil {
		logger.Errorw("bypass lookup failed", "org_id", orgID, "actor_id", actor.ID, "error", err)
		return false
	}
	if ok {
		return true
	}
	if !LooksLikeAppBot(actor) {
		return false
	}
	ok, err = st.HasAppBotBypass(ctx, orgID, SlugCandidates(actor.Login))
	if err != nil {
		logger.Errorw("bypass lookup failed", "org_id", orgID, "actor_login", actor.Login, "error", err)
		return false
	}
	return ok
}
