package webhook

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/514-labs/cla-bot/internal/cla"
	"github.com/514-labs/cla-bot/internal/githubapi"
	"github.com/514-labs/cla-bot/internal/store"
	"github.com/514-labs/cla-bot/pkg/contenthash"
)

// CommentMarker is embedded in every bot-authored comment body so the bot
// can recognize and mutate or delete only its own comments. Matching by
// author account is not enough: the same app identity may post other
// comments in the future.
const CommentMarker = "<!-- cla-bot:managed -->"

// Reconciler drives GitHub-side check runs and comments to match a
// resolved compliance outcome. Every pass is idempotent against current
// facts: existing runs and comments are updated in place, never duplicated.
type Reconciler struct {
	resolver  *cla.Resolver
	checkName string
	logger    *zap.SugaredLogger
}

func NewReconciler(resolver *cla.Resolver, checkName string, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{resolver: resolver, checkName: checkName, logger: logger}
}

func (r *Reconciler) CheckName() string { return r.checkName }

// ReconcilePR resolves compliance for the PR's author and converges the
// check run and bot comment to the outcome.
func (r *Reconciler) ReconcilePR(ctx context.Context, gh githubapi.Client, org store.Organization, pr githubapi.PullRequest) (cla.Outcome, error) {
	actor := cla.Actor{ID: pr.AuthorID, Login: pr.AuthorLogin, AccountType: pr.AuthorType}
	outcome, err := r.resolver.ResolveCompliance(ctx, gh, org, actor)
	if err != nil {
		return cla.Outcome{}, err
	}

	if err := r.reconcileCheckRun(ctx, gh, org, pr, outcome); err != nil {
		return outcome, err
	}
	if err := r.reconcileComment(ctx, gh, org, pr, outcome); err != nil {
		return outcome, err
	}

	r.logger.Infow("pull request reconciled",
		"org", org.Slug, "repo", pr.Repo, "pr", pr.Number,
		"author", pr.AuthorLogin, "state", outcome.State)
	return outcome, nil
}

func (r *Reconciler) reconcileCheckRun(ctx context.Context, gh githubapi.Client, org store.Organization, pr githubapi.PullRequest, outcome cla.Outcome) error {
	run := githubapi.CheckRun{
		Name:    r.checkName,
		HeadSHA: pr.HeadSHA,
		Title:   checkTitle(outcome),
		Summary: checkSummary(org, pr, outcome),
	}
	if outcome.Passing() {
		run.Conclusion = githubapi.ConclusionSuccess
	} else {
		run.Conclusion = githubapi.ConclusionFailure
	}
	return PutCheckRun(ctx, gh, pr.Owner, pr.Repo, run)
}

// PutCheckRun updates the existing run for (repo, head sha, check name) in
// place, creating one only when none exists.
func PutCheckRun(ctx context.Context, gh githubapi.Client, owner, repo string, run githubapi.CheckRun) error {
	existing, found, err := gh.FindCheckRun(ctx, owner, repo, run.HeadSHA, run.Name)
	if err != nil {
		return err
	}
	if found {
		return gh.UpdateCheckRun(ctx, owner, repo, existing.ID, run)
	}
	return gh.CreateCheckRun(ctx, owner, repo, run)
}

func (r *Reconciler) reconcileComment(ctx context.Context, gh githubapi.Client, org store.Organization, pr githubapi.PullRequest, outcome cla.Outcome) error {
	existing, found, err := findMarkedComment(ctx, gh, pr)
	if err != nil {
		return err
	}

	if outcome.Passing() {
		if found {
			return gh.DeleteComment(ctx, pr.Owner, pr.Repo, existing.ID)
		}
		return nil
	}

	body := commentBody(org, pr, outcome)
	if found {
		if existing.Body == body {
			return nil
		}
		return gh.UpdateComment(ctx, pr.Owner, pr.Repo, existing.ID, body)
	}
	return gh.CreateComment(ctx, pr.Owner, pr.Repo, pr.Number, body)
}

func findMarkedComment(ctx context.Context, gh githubapi.Client, pr githubapi.PullRequest) (githubapi.IssueComment, bool, error) {
	comments, err := gh.ListPRComments(ctx, pr.Owner, pr.Repo, pr.Number)
	if err != nil {
		return githubapi.IssueComment{}, false, err
	}
	for _, c := range comments {
		if strings.Contains(c.Body, CommentMarker) {
			return c, true, nil
		}
	}
	return githubapi.IssueComment{}, false, nil
}

func checkTitle(outcome cla.Outcome) string {
	switch outcome.State {
	case cla.StateExempt:
		return "CLA not required (" + outcome.ExemptReason + ")"
	case cla.StateCompliant:
		return "CLA signed"
	case cla.StateNeedsResign:
		return "CLA re-signing required"
	case cla.StateConfigRequired:
		return "CLA not published"
	default:
		return "CLA signature required"
	}
}

func checkSummary(org store.Organization, pr githubapi.PullRequest, outcome cla.Outcome) string {
	switch outcome.State {
	case cla.StateExempt:
		return fmt.Sprintf("@%s is exempt from signing (%s).", pr.AuthorLogin, outcome.ExemptReason)
	case cla.StateCompliant:
		return fmt.Sprintf("@%s has signed the current CLA (version %s).",
			pr.AuthorLogin, contenthash.Label(*org.ClaDigest))
	case cla.StateNeedsResign:
		return fmt.Sprintf("The CLA has changed since @%s signed version %s; version %s must be signed.",
			pr.AuthorLogin, outcome.SignedLabel, contenthash.Label(*org.ClaDigest))
	case cla.StateConfigRequired:
		return "A CLA has not been published for this repository yet."
	default:
		return fmt.Sprintf("@%s has not signed the Contributor License Agreement.", pr.AuthorLogin)
	}
}

func commentBody(org store.Organization, pr githubapi.PullRequest, outcome cla.Outcome) string {
	var b strings.Builder
	switch outcome.State {
	case cla.StateNeedsResign:
		fmt.Fprintf(&b, "## CLA Re-signing Required\n\n")
		fmt.Fprintf(&b, "Hi @%s! The Contributor License Agreement for **%s** has been updated to version `%s` since you signed version `%s`. Please sign the current version to keep this pull request mergeable.\n",
			pr.AuthorLogin, org.Slug, contenthash.Label(*org.ClaDigest), outcome.SignedLabel)
	case cla.StateConfigRequired:
		fmt.Fprintf(&b, "## Contributor License Agreement Required\n\n")
		fmt.Fprintf(&b, "A CLA is required for **%s**, but one has not been published for this repository yet. A maintainer must publish the CLA text before contributions can be accepted.\n", org.Slug)
	default:
		fmt.Fprintf(&b, "## Contributor License Agreement Required\n\n")
		fmt.Fprintf(&b, "Hi @%s! Before this pull request can be merged, you need to sign the Contributor License Agreement for **%s**.\n",
			pr.AuthorLogin, org.Slug)
	}
	b.WriteString("\nAfter signing, comment `/recheck` on this pull request to re-run the check.\n")
	b.WriteString("\n" + CommentMarker + "\n")
	return b.String()
}
