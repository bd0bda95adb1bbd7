package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const orgColumns = `
org_id::text, slug, account_type, account_id, installation_id, is_active,
cla_text, cla_digest, created_at, updated_at`

func scanOrg(row pgx.Row) (Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Slug, &o.AccountType, &o.AccountID, &o.InstallationID,
		&o.IsActive, &o.ClaText, &o.ClaDigest, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrOrgNotFound
		}
		return Organization{}, err
	}
	return o, nil
}

func (s *Store) GetOrgBySlug(ctx context.Context, slug string) (Organization, error) {
	return scanOrg(s.DB.QueryRow(ctx, `
SELECT `+orgColumns+`
FROM organizations
WHERE slug=$1
`, slug))
}

func (s *Store) GetOrgByID(ctx context.Context, orgID string) (Organization, error) {
	return scanOrg(s.DB.QueryRow(ctx, `
SELECT `+orgColumns+`
FROM organizations
WHERE org_id=$1::uuid
`, orgID))
}

func (s *Store) GetOrgByInstallationID(ctx context.Context, installationID int64) (Organization, error) {
	return scanOrg(s.DB.QueryRow(ctx, `
SELECT `+orgColumns+`
FROM organizations
WHERE installation_id=$1
`, installationID))
}

// UpsertOrg registers an organization at install time or reactivates an
// existing row for the same account, refreshing slug and installation id.
// CLA text is never touched here; it is configured separately.
func (s *Store) UpsertOrg(ctx context.Context, slug string, accountType AccountType, accountID, installationID int64) (Organization, error) {
	return scanOrg(s.DB.QueryRow(ctx, `
INSERT INTO organizations(slug, account_type, account_id, installation_id, is_active)
VALUES($1,$2,$3,$4,TRUE)
ON CONFLICT (account_id)
DO UPDATE SET slug=EXCLUDED.slug,
              installation_id=EXCLUDED.installation_id,
              is_active=TRUE,
              updated_at=now()
RETURNING `+orgColumns+`
`, slug, accountType, accountID, installationID))
}

func (s *Store) SetOrgActive(ctx context.Context, orgID string, active bool) error {
	tag, err := s.DB.Exec(ctx, `
UPDATE organizations SET is_active=$2, updated_at=now()
WHERE org_id=$1::uuid
`, orgID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrgNotFound
	}
	return nil
}

// UpdateOrgCla swaps the organization's CLA text and digest together so the
// digest invariant cannot be broken by a partial write. It does not create
// an archive row; archives are created lazily on first signature.
func (s *Store) UpdateOrgCla(ctx context.Context, orgID, claText, claDigest string) (Organization, error) {
	return scanOrg(s.DB.QueryRow(ctx, `
UPDATE organizations
SET cla_text=$2, cla_digest=$3, updated_at=now()
WHERE org_id=$1::uuid
RETURNING `+orgColumns+`
`, orgID, claText, claDigest))
}
