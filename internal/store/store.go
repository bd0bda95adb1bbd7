// Package store is the compliance store: organizations, signatures, CLA
// archives, bypass lists, the webhook delivery ledger and the audit log,
// backed by Postgres.
package store

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOrgNotFound       = errors.New("organization not found")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrArchiveNotFound   = errors.New("cla archive not found")
	ErrBypassLimit       = errors.New("bypass list capacity reached")
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

type AccountType string

const (
	AccountOrg  AccountType = "org"
	AccountUser AccountType = "user"
)

type Organization struct {
	ID             string
	Slug           string
	AccountType    AccountType
	AccountID      int64
	InstallationID int64
	IsActive       bool
	// ClaText and ClaDigest are both nil until a CLA is configured.
	// ClaDigest is always contenthash.Sum(*ClaText) when present.
	ClaText   *string
	ClaDigest *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ClaArchive struct {
	OrganizationID string
	Digest         string
	ClaText        string
	CreatedAt      time.Time
}

type SignatureEvidence struct {
	Email         string
	EmailVerified bool
	SessionID     string
	IPHash        string
	UserAgent     string
}

type ClaSignature struct {
	ID                    string
	OrganizationID        string
	UserID                int64
	SignedDigest          string
	AcceptedDigest        string
	ConsentVersion        string
	SignedAt              time.Time
	ActorIDAtSignature    int64
	ActorLoginAtSignature string
	Evidence              SignatureEvidence
}

type BypassKind string

const (
	BypassUser   BypassKind = "user"
	BypassAppBot BypassKind = "app_bot"
)

type BypassEntry struct {
	OrganizationID string
	Kind           BypassKind
	// ActorID is set for kind=user, ActorSlug for kind=app_bot.
	ActorID    int64
	ActorSlug  string
	ActorLogin string
	CreatedBy  string
	CreatedAt  time.Time
}

type AuditEvent struct {
	EventType      string
	OrganizationID *string
	UserID         *int64
	ActorID        *int64
	ActorLogin     *string
	Payload        map[string]any
	CreatedAt      time.Time
}
