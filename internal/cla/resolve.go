package cla

import (
	"github.com/514-labs/cla-bot/internal/store"
	"github.com/514-labs/cla-bot/pkg/contenthash"
)

// Actor is an authenticated GitHub identity as seen on a PR or a signing
// request. AccountType is GitHub's account type string ("User", "Bot",
// "Organization").
type Actor struct {
	ID          int64
	Login       string
	AccountType string
}

type State string

const (
	StateExempt         State = "exempt"
	StateCompliant      State = "compliant"
	StateNeedsResign    State = "needs_resign"
	StateNeverSigned    State = "never_signed"
	StateConfigRequired State = "config_required"
)

// Outcome is the resolved compliance verdict for one actor in one
// organization.
type Outcome struct {
	State State `json:"state"`
	// ExemptReason is set only for StateExempt: "inactive", "membership"
	// or "bypass".
	ExemptReason string `json:"exempt_reason,omitempty"`
	// SignedLabel is the short label of the stale digest, set only for
	// StateNeedsResign.
	SignedLabel string `json:"signed_label,omitempty"`
}

// Passing reports whether the outcome maps to a successful check run.
func (o Outcome) Passing() bool {
	return o.State == StateExempt || o.State == StateCompliant
}

// Resolve maps current facts to a compliance outcome. It is a pure
// function; callers gather the facts. The precedence order is load-bearing:
// an inactive org must never produce a failing check, and membership or
// bypass must short-circuit even when no CLA is configured.
func Resolve(org store.Organization, actor Actor, isMember, bypassed bool, sig *store.ClaSignature) Outcome {
	if !org.IsActive {
		return Outcome{State: StateExempt, ExemptReason: "inactive"}
	}
	// Personal-account installs have no member list; the account owner is
	// the sole insider.
	if actor.ID == org.AccountID || isMember {
		return Outcome{State: StateExempt, ExemptReason: "membership"}
	}
	if bypassed {
		return Outcome{State: StateExempt, ExemptReason: "bypass"}
	}
	if org.ClaDigest == nil {
		return Outcome{State: StateConfigRequired}
	}
	if sig == nil {
		return Outcome{State: StateNeverSigned}
	}
	if sig.SignedDigest != *org.ClaDigest {
		return Outcome{State: StateNeedsResign, SignedLabel: contenthash.Label(sig.SignedDigest)}
	}
	return Outcome{State: StateCompliant}
}
