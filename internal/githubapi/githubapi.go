// Package githubapi is the typed surface the compliance core consumes from
// GitHub. The core never touches transport details; it sees pull requests,
// check runs, comments and membership through this interface, scoped to one
// app installation.
package githubapi

import "context"

type PullRequest struct {
	Owner       string
	Repo        string
	Number      int
	HeadSHA     string
	AuthorID    int64
	AuthorLogin string
	// AuthorType is GitHub's account type string, "User" or "Bot".
	AuthorType string
}

type CheckConclusion string

const (
	ConclusionSuccess CheckConclusion = "success"
	ConclusionFailure CheckConclusion = "failure"
)

type CheckRun struct {
	ID         int64
	Name       string
	HeadSHA    string
	Conclusion CheckConclusion
	Title      string
	Summary    string
}

type IssueComment struct {
	ID   int64
	Body string
}

// Client is the per-installation capability set. Implementations own their
// HTTP timeout and retry policy; every call here is bounded.
type Client interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error)
	// ListOpenPullRequests enumerates open PRs across every repository the
	// installation can see for the given account.
	ListOpenPullRequests(ctx context.Context, owner string) ([]PullRequest, error)

	// FindCheckRun looks up an existing run for (repo, head sha, check
	// name); found=false is not an error.
	FindCheckRun(ctx context.Context, owner, repo, headSHA, checkName string) (run CheckRun, found bool, err error)
	CreateCheckRun(ctx context.Context, owner, repo string, run CheckRun) error
	UpdateCheckRun(ctx context.Context, owner, repo string, runID int64, run CheckRun) error

	ListPRComments(ctx context.Context, owner, repo string, number int) ([]IssueComment, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
	UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error
	DeleteComment(ctx context.Context, owner, repo string, commentID int64) error

	IsOrgMember(ctx context.Context, org, userLogin string) (bool, error)
}

// Factory hands out a Client bound to one installation's credentials.
type Factory interface {
	Installation(installationID int64) Client
}
