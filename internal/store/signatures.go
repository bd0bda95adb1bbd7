package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const signatureColumns = `
signature_id::text, org_id::text, user_id, signed_digest, accepted_digest,
consent_version, signed_at, actor_id_at_signature, actor_login_at_signature,
evidence_email, evidence_email_verified, evidence_session_id, evidence_ip_hash,
evidence_user_agent`

func scanSignature(row pgx.Row) (ClaSignature, error) {
	var sig ClaSignature
	err := row.Scan(&sig.ID, &sig.OrganizationID, &sig.UserID, &sig.SignedDigest,
		&sig.AcceptedDigest, &sig.ConsentVersion, &sig.SignedAt,
		&sig.ActorIDAtSignature, &sig.ActorLoginAtSignature,
		&sig.Evidence.Email, &sig.Evidence.EmailVerified, &sig.Evidence.SessionID,
		&sig.Evidence.IPHash, &sig.Evidence.UserAgent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClaSignature{}, ErrSignatureNotFound
		}
		return ClaSignature{}, err
	}
	return sig, nil
}

// InsertSignature appends a signature row. The unique constraint on
// (org_id, user_id, signed_digest) makes concurrent duplicate attempts
// converge to one row: the loser gets inserted=false and must re-read.
func (s *Store) InsertSignature(ctx context.Context, sig ClaSignature) (inserted bool, out ClaSignature, err error) {
	out, err = scanSignature(s.DB.QueryRow(ctx, `
INSERT INTO cla_signatures(
  org_id, user_id, signed_digest, accepted_digest, consent_version,
  actor_id_at_signature, actor_login_at_signature,
  evidence_email, evidence_email_verified, evidence_session_id,
  evidence_ip_hash, evidence_user_agent
)
VALUES($1::uuid,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (org_id, user_id, signed_digest) DO NOTHING
RETURNING `+signatureColumns+`
`, sig.OrganizationID, sig.UserID, sig.SignedDigest, sig.AcceptedDigest,
		sig.ConsentVersion, sig.ActorIDAtSignature, sig.ActorLoginAtSignature,
		sig.Evidence.Email, sig.Evidence.EmailVerified, sig.Evidence.SessionID,
		sig.Evidence.IPHash, sig.Evidence.UserAgent))
	if err != nil {
		if errors.Is(err, ErrSignatureNotFound) {
			return false, ClaSignature{}, nil
		}
		return false, ClaSignature{}, err
	}
	return true, out, nil
}

// GetSignatureByDigest fetches the row for an exact (org, user, digest)
// triple, used to surface the existing row on an AlreadySigned conflict.
func (s *Store) GetSignatureByDigest(ctx context.Context, orgID string, userID int64, digest string) (ClaSignature, error) {
	return scanSignature(s.DB.QueryRow(ctx, `
SELECT `+signatureColumns+`
FROM cla_signatures
WHERE org_id=$1::uuid AND user_id=$2 AND signed_digest=$3
`, orgID, userID, digest))
}

// LatestSignature returns the most recent signature a user holds for an
// organization, across all digests. Compliance is derived by comparing its
// signed digest against the organization's live digest at read time.
func (s *Store) LatestSignature(ctx context.Context, orgID string, userID int64) (ClaSignature, error) {
	return scanSignature(s.DB.QueryRow(ctx, `
SELECT `+signatureColumns+`
FROM cla_signatures
WHERE org_id=$1::uuid AND user_id=$2
ORDER BY signed_at DESC
LIMIT 1
`, orgID, userID))
}

// EnsureArchive snapshots the CLA text for a digest the first time any
// signature references it. Later calls for the same (org, digest) are
// no-ops; the snapshot is immutable.
func (s *Store) EnsureArchive(ctx context.Context, orgID, digest, claText string) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO cla_archives(org_id, digest, cla_text)
VALUES($1::uuid,$2,$3)
ON CONFLICT (org_id, digest) DO NOTHING
`, orgID, digest, claText)
	return err
}

func (s *Store) GetArchive(ctx context.Context, orgID, digest string) (ClaArchive, error) {
	var a ClaArchive
	err := s.DB.QueryRow(ctx, `
SELECT org_id::text, digest, cla_text, created_at
FROM cla_archives
WHERE org_id=$1::uuid AND digest=$2
`, orgID, digest).Scan(&a.OrganizationID, &a.Digest, &a.ClaText, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClaArchive{}, ErrArchiveNotFound
		}
		return ClaArchive{}, err
	}
	return a, nil
}

func (s *Store) CountArchives(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `
SELECT count(*) FROM cla_archives WHERE org_id=$1::uuid
`, orgID).Scan(&n)
	return n, err
}
