package store

import (
	"context"
	"strings"
)

// MaxBypassEntries is an operational cap per organization, not a
// correctness invariant.
const MaxBypassEntries = 100

// AddBypassEntry inserts an entry unless the organization is at capacity.
// Re-adding an identical entry is a silent no-op. Slugs and logins are
// stored lowercased so lookups can be exact-match.
func (s *Store) AddBypassEntry(ctx context.Context, e BypassEntry) error {
	n, err := s.countBypassEntries(ctx, e.OrganizationID)
	if err != nil {
		return err
	}
	if n >= MaxBypassEntries {
		return ErrBypassLimit
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO bypass_entries(org_id, kind, actor_id, actor_slug, actor_login, created_by)
VALUES($1::uuid,$2,$3,$4,$5,$6)
ON CONFLICT (org_id, kind, actor_id, actor_slug) DO NOTHING
`, e.OrganizationID, e.Kind, e.ActorID, strings.ToLower(e.ActorSlug),
		strings.ToLower(e.ActorLogin), e.CreatedBy)
	return err
}

func (s *Store) RemoveBypassEntry(ctx context.Context, orgID string, kind BypassKind, actorID int64, actorSlug string) (removed bool, err error) {
	tag, err := s.DB.Exec(ctx, `
DELETE FROM bypass_entries
WHERE org_id=$1::uuid AND kind=$2 AND actor_id=$3 AND actor_slug=$4
`, orgID, kind, actorID, strings.ToLower(actorSlug))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListBypassEntries(ctx context.Context, orgID string) ([]BypassEntry, error) {
	rows, err := s.DB.Query(ctx, `
SELECT org_id::text, kind, actor_id, actor_slug, actor_login, created_by, created_at
FROM bypass_entries
WHERE org_id=$1::uuid
ORDER BY created_at
`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BypassEntry
	for rows.Next() {
		var e BypassEntry
		if err := rows.Scan(&e.OrganizationID, &e.Kind, &e.ActorID, &e.ActorSlug,
			&e.ActorLogin, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HasUserBypass checks for an exact (org, user id) entry.
func (s *Store) HasUserBypass(ctx context.Context, orgID string, actorID int64) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `
SELECT EXISTS(
  SELECT 1 FROM bypass_entries
  WHERE org_id=$1::uuid AND kind='user' AND actor_id=$2
)
`, orgID, actorID).Scan(&exists)
	return exists, err
}

// HasAppBotBypass checks whether any of the given slug candidates match an
// app_bot entry. Candidates should already cover both the bare and the
// "[bot]"-suffixed login forms.
func (s *Store) HasAppBotBypass(ctx context.Context, orgID string, slugCandidates []string) (bool, error) {
	lowered := make([]string, 0, len(slugCandidates))
	for _, c := range slugCandidates {
		lowered = append(lowered, strings.ToLower(c))
	}
	var exists bool
	err := s.DB.QueryRow(ctx, `
SELECT EXISTS(
  SELECT 1 FROM bypass_entries
  WHERE org_id=$1::uuid AND kind='app_bot' AND actor_slug = ANY($2)
)
`, orgID, lowered).Scan(&exists)
	return exists, err
}

func (s *Store) countBypassEntries(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `
SELECT count(*) FROM bypass_entries WHERE org_id=$1::uuid
`, orgID).Scan(&n)
	return n, err
}
