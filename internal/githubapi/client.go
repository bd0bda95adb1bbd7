package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"
)

const requestTimeout = 30 * time.Second

// AppFactory builds per-installation clients from the GitHub App's
// credentials.
type AppFactory struct {
	apps *ghinstallation.AppsTransport
}

func NewAppFactory(appID int64, privateKeyPath string) (*AppFactory, error) {
	tr, err := ghinstallation.NewAppsTransportKeyFromFile(http.DefaultTransport, appID, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load github app key: %w", err)
	}
	return &AppFactory{apps: tr}, nil
}

func (f *AppFactory) Installation(installationID int64) Client {
	itr := ghinstallation.NewFromAppsTransport(f.apps, installationID)
	gh := github.NewClient(&http.Client{Transport: itr, Timeout: requestTimeout})
	return &installationClient{gh: gh}
}

type installationClient struct {
	gh *github.Client
}

func toPullRequest(owner, repo string, pr *github.PullRequest) PullRequest {
	out := PullRequest{
		Owner:   owner,
		Repo:    repo,
		Number:  pr.GetNumber(),
		HeadSHA: pr.GetHead().GetSHA(),
	}
	if u := pr.GetUser(); u != nil {
		out.AuthorID = u.GetID()
		out.AuthorLogin = u.GetLogin()
		out.AuthorType = u.GetType()
	}
	return out
}

func (c *installationClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return PullRequest{}, err
	}
	return toPullRequest(owner, repo, pr), nil
}

func (c *installationClient) ListOpenPullRequests(ctx context.Context, owner string) ([]PullRequest, error) {
	var out []PullRequest
	repoOpts := &github.ListOptions{PerPage: 100}
	for {
		repos, resp, err := c.gh.Apps.ListRepos(ctx, repoOpts)
		if err != nil {
			return nil, err
		}
		for _, repo := range repos.Repositories {
			if repo.GetOwner().GetLogin() != owner {
				continue
			}
			prs, err := c.listOpenPRsForRepo(ctx, owner, repo.GetName())
			if err != nil {
				return nil, err
			}
			out = append(out, prs...)
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		repoOpts.Page = resp.NextPage
	}
}

func (c *installationClient) listOpenPRsForRepo(ctx context.Context, owner, repo string) ([]PullRequest, error) {
	var out []PullRequest
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, err
		}
		for _, pr := range prs {
			out = append(out, toPullRequest(owner, repo, pr))
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *installationClient) FindCheckRun(ctx context.Context, owner, repo, headSHA, checkName string) (CheckRun, bool, error) {
	res, _, err := c.gh.Checks.ListCheckRunsForRef(ctx, owner, repo, headSHA, &github.ListCheckRunsOptions{
		CheckName: github.String(checkName),
		Filter:    github.String("all"),
	})
	if err != nil {
		return CheckRun{}, false, err
	}
	if len(res.CheckRuns) == 0 {
		return CheckRun{}, false, nil
	}
	run := res.CheckRuns[0]
	return CheckRun{
		ID:         run.GetID(),
		Name:       run.GetName(),
		HeadSHA:    run.GetHeadSHA(),
		Conclusion: CheckConclusion(run.GetConclusion()),
	}, true, nil
}

func (c *installationClient) CreateCheckRun(ctx context.Context, owner, repo string, run CheckRun) error {
	_, _, err := c.gh.Checks.CreateCheckRun(ctx, owner, repo, github.CreateCheckRunOptions{
		Name:       run.Name,
		HeadSHA:    run.HeadSHA,
		Status:     github.String("completed"),
		Conclusion: github.String(string(run.Conclusion)),
		Output: &github.CheckRunOutput{
			Title:   github.String(run.Title),
			Summary: github.String(run.Summary),
		},
	})
	return err
}

func (c *installationClient) UpdateCheckRun(ctx context.Context, owner, repo string, runID int64, run CheckRun) error {
	_, _, err := c.gh.Checks.UpdateCheckRun(ctx, owner, repo, runID, github.UpdateCheckRunOptions{
		Name:       run.Name,
		Status:     github.String("completed"),
		Conclusion: github.String(string(run.Conclusion)),
		Output: &github.CheckRunOutput{
			Title:   github.String(run.Title),
			Summary: github.String(run.Summary),
		},
	})
	return err
}

func (c *installationClient) ListPRComments(ctx context.Context, owner, repo string, number int) ([]IssueComment, error) {
	var out []IssueComment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, err
		}
		for _, cm := range comments {
			out = append(out, IssueComment{ID: cm.GetID(), Body: cm.GetBody()})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *installationClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.String(body)})
	return err
}

func (c *installationClient) UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	_, _, err := c.gh.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{Body: github.String(body)})
	return err
}

func (c *installationClient) DeleteComment(ctx context.Context, owner, repo string, commentID int64) error {
	_, err := c.gh.Issues.DeleteComment(ctx, owner, repo, commentID)
	return err
}

func (c *installationClient) IsOrgMember(ctx context.Context, org, userLogin string) (bool, error) {
	member, _, err := c.gh.Organizations.IsMember(ctx, org, userLogin)
	if err != nil {
		return false, err
	}
	return member, nil
}
