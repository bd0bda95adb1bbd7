package cla

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/514-labs/cla-bot/internal/store"
	"github.com/514-labs/cla-bot/pkg/contenthash"
)

type fakeSigningStore struct {
	orgs       map[string]store.Organization
	signatures map[string]store.ClaSignature // key org|user|digest
	archives   map[string]string             // key org|digest -> text
	audits     []store.AuditEvent

	// insertRace simulates losing the unique-constraint race: the insert
	// reports not-inserted even though no row was visible beforehand.
	insertRace bool
	orgErr     error // injected org lookup failure when set
	sigErr     error // injected signature lookup failure when set
}

func newFakeSigningStore(orgs ...store.Organization) *fakeSigningStore {
	f := &fakeSigningStore{
		orgs:       map[string]store.Organization{},
		signatures: map[string]store.ClaSignature{},
		archives:   map[string]string{},
	}
	for _, o := range orgs {
		f.orgs[o.Slug] = o
	}
	return f
}

func sigKey(orgID string, userID int64, digest string) string {
	return fmt.Sprintf("%s|%d|%s", orgID, userID, digest)
}

func (f *fakeSigningStore) GetOrgBySlug(ctx context.Context, slug string) (store.Organization, error) {
	if f.orgErr != nil {
		return store.Organization{}, f.orgErr
	}
	org, ok := f.orgs[slug]
	if !ok {
		return store.Organization{}, store.ErrOrgNotFound
	}
	return org, nil
}

func (f *fakeSigningStore) GetSignatureByDigest(ctx context.Context, orgID string, userID int64, digest string) (store.ClaSignature, error) {
	if f.sigErr != nil {
		return store.ClaSignature{}, f.sigErr
	}
	sig, ok := f.signatures[sigKey(orgID, userID, digest)]
	if !ok {
		return store.ClaSignature{}, store.ErrSignatureNotFound
	}
	return sig, nil
}

func (f *fakeSigningStore) InsertSignature(ctx context.Context, sig store.ClaSignature) (bool, store.ClaSignature, error) {
	key := sigKey(sig.OrganizationID, sig.UserID, sig.SignedDigest)
	if f.insertRace {
		f.insertRace = false
		f.signatures[key] = sig
		return false, store.ClaSignature{}, nil
	}
	if _, ok := f.signatures[key]; ok {
		return false, store.ClaSignature{}, nil
	}
	sig.ID = "sig-1"
	f.signatures[key] = sig
	return true, sig, nil
}

func (f *fakeSigningStore) EnsureArchive(ctx context.Context, orgID, digest, claText string) error {
	key := orgID + "|" + digest
	if _, ok := f.archives[key]; !ok {
		f.archives[key] = claText
	}
	return nil
}

func (f *fakeSigningStore) AppendAudit(ctx context.Context, e store.AuditEvent) error {
	f.audits = append(f.audits, e)
	return nil
}

func validRequest() SignRequest {
	return SignRequest{
		OrgSlug:      "acme",
		Actor:        Actor{ID: 42, Login: "someone", AccountType: "User"},
		SessionValid: true,
	}
}

func TestSignHappyPath(t *testing.T) {
	org := orgWithCla("cla v1")
	st := newFakeSigningStore(org)
	svc := NewSigningService(st, zap.NewNop().Sugar())

	sig, err := svc.Sign(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if sig.SignedDigest != *org.ClaDigest || sig.AcceptedDigest != *org.ClaDigest {
		t.Fatalf("unexpected digests: %#v", sig)
	}

	// The archive must exist by the time the signature does.
	if got := st.archives[org.ID+"|"+*org.ClaDigest]; got != "cla v1" {
		t.Fatalf("archive text = %q, want cla v1", got)
	}
	if len(st.audits) != 1 || st.audits[0].EventType != "signature.created" {
		t.Fatalf("expected one signature.created audit event, got %#v", st.audits)
	}
}

func TestSignIdempotent(t *testing.T) {
	st := newFakeSigningStore(orgWithCla("cla v1"))
	svc := NewSigningService(st, zap.NewNop().Sugar())

	first, err := svc.Sign(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("first Sign error: %v", err)
	}

	_, err = svc.Sign(context.Background(), validRequest())
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindAlreadySigned {
		t.Fatalf("second Sign = %v, want AlreadySigned", err)
	}
	if de.Existing == nil || de.Existing.SignedDigest != first.SignedDigest {
		t.Fatalf("AlreadySigned must carry the existing signature, got %#v", de.Existing)
	}
	if len(st.signatures) != 1 {
		t.Fatalf("expected exactly one stored signature, got %d", len(st.signatures))
	}
}

func TestSignConstraintRaceSurfacesAlreadySigned(t *testing.T) {
	st := newFakeSigningStore(orgWithCla("cla v1"))
	st.insertRace = true
	svc := NewSigningService(st, zap.NewNop().Sugar())

	_, err := svc.Sign(context.Background(), validRequest())
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindAlreadySigned {
		t.Fatalf("race loser = %v, want AlreadySigned", err)
	}
	if len(st.signatures) != 1 {
		t.Fatalf("expected exactly one stored signature after race, got %d", len(st.signatures))
	}
}

func TestSignPreconditions(t *testing.T) {
	active := orgWithCla("cla v1")

	inactive := active
	inactive.IsActive = false
	inactive.Slug = "dormant"

	noCla := active
	noCla.Slug = "bare"
	noCla.ClaText = nil
	noCla.ClaDigest = nil

	st := newFakeSigningStore(active, inactive, noCla)
	svc := NewSigningService(st, zap.NewNop().Sugar())

	tests := []struct {
		name     string
		mutate   func(*SignRequest)
		wantKind Kind
	}{
		{"unknown org", func(r *SignRequest) { r.OrgSlug = "ghost" }, KindNotFound},
		{"inactive org", func(r *SignRequest) { r.OrgSlug = "dormant" }, KindForbidden},
		{"no cla configured", func(r *SignRequest) { r.OrgSlug = "bare" }, KindInvalidRequest},
		{"stale accepted digest", func(r *SignRequest) { r.AcceptedDigest = contenthash.Sum("old text") }, KindVersionMismatch},
		{"missing session", func(r *SignRequest) { r.SessionValid = false }, KindUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := svc.Sign(context.Background(), req)
			var de *Error
			if !errors.As(err, &de) || de.Kind != tt.wantKind {
				t.Fatalf("Sign = %v, want kind %s", err, tt.wantKind)
			}
		})
	}
}

func TestSignStoreFailuresPropagate(t *testing.T) {
	t.Run("org lookup", func(t *testing.T) {
		st := newFakeSigningStore(orgWithCla("cla v1"))
		st.orgErr = errors.New("connection refused")
		svc := NewSigningService(st, zap.NewNop().Sugar())

		_, err := svc.Sign(context.Background(), validRequest())
		var de *Error
		if errors.As(err, &de) {
			t.Fatalf("transient store failure must not become a domain error, got %v", de)
		}
		if !errors.Is(err, st.orgErr) {
			t.Fatalf("err = %v, want the injected store failure", err)
		}
	})

	t.Run("signature lookup", func(t *testing.T) {
		st := newFakeSigningStore(orgWithCla("cla v1"))
		st.sigErr = errors.New("connection refused")
		svc := NewSigningService(st, zap.NewNop().Sugar())

		_, err := svc.Sign(context.Background(), validRequest())
		if !errors.Is(err, st.sigErr) {
			t.Fatalf("err = %v, want the injected store failure", err)
		}
		// An outage must never be read as "no signature yet".
		if len(st.signatures) != 0 {
			t.Fatalf("no signature may be inserted when the lookup failed")
		}
	})
}

func TestSignVersionMismatchCarriesCurrentDigest(t *testing.T) {
	org := orgWithCla("cla v2")
	st := newFakeSigningStore(org)
	svc := NewSigningService(st, zap.NewNop().Sugar())

	req := validRequest()
	req.AcceptedDigest = contenthash.Sum("cla v1")
	_, err := svc.Sign(context.Background(), req)
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindVersionMismatch {
		t.Fatalf("Sign = %v, want VersionMismatch", err)
	}
	if de.CurrentDigest != *org.ClaDigest {
		t.Fatalf("CurrentDigest = %q, want %q", de.CurrentDigest, *org.ClaDigest)
	}
}

// Signing against a fresh digest after a CLA edit creates a second row and
// a second archive while leaving the old archive untouched.
func TestSignAfterClaEdit(t *testing.T) {
	org := orgWithCla("cla v1")
	st := newFakeSigningStore(org)
	svc := NewSigningService(st, zap.NewNop().Sugar())

	if _, err := svc.Sign(context.Background(), validRequest()); err != nil {
		t.Fatalf("Sign v1 error: %v", err)
	}

	v1Digest := *org.ClaDigest
	newText := "cla v2"
	newDigest := contenthash.Sum(newText)
	org.ClaText = &newText
	org.ClaDigest = &newDigest
	st.orgs[org.Slug] = org

	if _, err := svc.Sign(context.Background(), validRequest()); err != nil {
		t.Fatalf("Sign v2 error: %v", err)
	}

	if len(st.signatures) != 2 {
		t.Fatalf("expected two signature rows, got %d", len(st.signatures))
	}
	if st.archives[org.ID+"|"+v1Digest] != "cla v1" {
		t.Fatalf("v1 archive must be unchanged")
	}
	if st.archives[org.ID+"|"+newDigest] != "cla v2" {
		t.Fatalf("v2 archive missing")
	}
}
