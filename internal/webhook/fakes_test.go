package webhook

import (
	"context"
	"fmt"

	"github.com/514-labs/cla-bot/internal/githubapi"
	"github.com/514-labs/cla-bot/internal/store"
)

type fakeGH struct {
	pr      githubapi.PullRequest
	openPRs []githubapi.PullRequest
	members map[string]bool

	checkRuns     map[string]githubapi.CheckRun // key sha|name
	nextRunID     int64
	createdChecks int
	updatedChecks int

	comments        map[int][]githubapi.IssueComment // key PR number
	nextCommentID   int64
	createdComments int
	updatedComments int
	deletedComments int

	err error // injected failure for every call when set
}

func newFakeGH() *fakeGH {
	return &fakeGH{
		members:   map[string]bool{},
		checkRuns: map[string]githubapi.CheckRun{},
		comments:  map[int][]githubapi.IssueComment{},
	}
}

func runKey(sha, name string) string { return sha + "|" + name }

func (f *fakeGH) GetPullRequest(ctx context.Context, owner, repo string, number int) (githubapi.PullRequest, error) {
	if f.err != nil {
		return githubapi.PullRequest{}, f.err
	}
	return f.pr, nil
}

func (f *fakeGH) ListOpenPullRequests(ctx context.Context, owner string) ([]githubapi.PullRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.openPRs, nil
}

func (f *fakeGH) FindCheckRun(ctx context.Context, owner, repo, headSHA, checkName string) (githubapi.CheckRun, bool, error) {
	if f.err != nil {
		return githubapi.CheckRun{}, false, f.err
	}
	run, ok := f.checkRuns[runKey(headSHA, checkName)]
	return run, ok, nil
}

func (f *fakeGH) CreateCheckRun(ctx context.Context, owner, repo string, run githubapi.CheckRun) error {
	if f.err != nil {
		return f.err
	}
	f.createdChecks++
	f.nextRunID++
	run.ID = f.nextRunID
	f.checkRuns[runKey(run.HeadSHA, run.Name)] = run
	return nil
}

func (f *fakeGH) UpdateCheckRun(ctx context.Context, owner, repo string, runID int64, run githubapi.CheckRun) error {
	if f.err != nil {
		return f.err
	}
	f.updatedChecks++
	run.ID = runID
	f.checkRuns[runKey(run.HeadSHA, run.Name)] = run
	return nil
}

func (f *fakeGH) ListPRComments(ctx context.Context, owner, repo string, number int) ([]githubapi.IssueComment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.comments[number], nil
}

func (f *fakeGH) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	if f.err != nil {
		return f.err
	}
	f.createdComments++
	f.nextCommentID++
	f.comments[number] = append(f.comments[number], githubapi.IssueComment{ID: f.nextCommentID, Body: body})
	return nil
}

func (f *fakeGH) UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	if f.err != nil {
		return f.err
	}
	f.updatedComments++
	for number, list := range f.comments {
		for i, c := range list {
			if c.ID == commentID {
				f.comments[number][i].Body = body
				return nil
			}
		}
	}
	return fmt.Errorf("comment %d not found", commentID)
}

func (f *fakeGH) DeleteComment(ctx context.Context, owner, repo string, commentID int64) error {
	if f.err != nil {
		return f.err
	}
	f.deletedComments++
	for number, list := range f.comments {
		for i, c := range list {
			if c.ID == commentID {
				f.comments[number] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("comment %d not found", commentID)
}

func (f *fakeGH) IsOrgMember(ctx context.Context, org, userLogin string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[userLogin], nil
}

type fakeFactory struct{ gh *fakeGH }

func (f *fakeFactory) Installation(installationID int64) githubapi.Client { return f.gh }

// fakeStore backs both the handler (delivery ledger, org registry) and the
// resolver (bypass, signatures).
type fakeStore struct {
	orgsByInstallation map[int64]store.Organization
	orgErr             error // injected lookup failure when set
	deliveries         map[string]bool
	bypassUserIDs      map[int64]bool
	bypassAppSlugs     map[string]bool
	latest             map[int64]store.ClaSignature
	audits             []store.AuditEvent

	upserted  []store.Organization
	activeSet map[string]bool
}

func newFakeStore(orgs ...store.Organization) *fakeStore {
	f := &fakeStore{
		orgsByInstallation: map[int64]store.Organization{},
		deliveries:         map[string]bool{},
		bypassUserIDs:      map[int64]bool{},
		bypassAppSlugs:     map[string]bool{},
		latest:             map[int64]store.ClaSignature{},
		activeSet:          map[string]bool{},
	}
	for _, o := range orgs {
		f.orgsByInstallation[o.InstallationID] = o
	}
	return f
}

func (f *fakeStore) ReserveDelivery(ctx context.Context, deliveryID, event string) (bool, error) {
	if f.deliveries[deliveryID] {
		return false, nil
	}
	f.deliveries[deliveryID] = true
	return true, nil
}

func (f *fakeStore) GetOrgByInstallationID(ctx context.Context, installationID int64) (store.Organization, error) {
	if f.orgErr != nil {
		return store.Organization{}, f.orgErr
	}
	org, ok := f.orgsByInstallation[installationID]
	if !ok {
		return store.Organization{}, store.ErrOrgNotFound
	}
	return org, nil
}

func (f *fakeStore) UpsertOrg(ctx context.Context, slug string, accountType store.AccountType, accountID, installationID int64) (store.Organization, error) {
	org := store.Organization{
		ID:             fmt.Sprintf("org-%d", accountID),
		Slug:           slug,
		AccountType:    accountType,
		AccountID:      accountID,
		InstallationID: installationID,
		IsActive:       true,
	}
	f.orgsByInstallation[installationID] = org
	f.upserted = append(f.upserted, org)
	return org, nil
}

func (f *fakeStore) SetOrgActive(ctx context.Context, orgID string, active bool) error {
	f.activeSet[orgID] = active
	return nil
}

func (f *fakeStore) AppendAudit(ctx context.Context, e store.AuditEvent) error {
	f.audits = append(f.audits, e)
	return nil
}

func (f *fakeStore) HasUserBypass(ctx context.Context, orgID string, actorID int64) (bool, error) {
	return f.bypassUserIDs[actorID], nil
}

func (f *fakeStore) HasAppBotBypass(ctx context.Context, orgID string, slugCandidates []string) (bool, error) {
	for _, c := range slugCandidates {
		if f.bypassAppSlugs[c] {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) LatestSignature(ctx context.Context, orgID string, userID int64) (store.ClaSignature, error) {
	sig, ok := f.latest[userID]
	if !ok {
		return store.ClaSignature{}, store.ErrSignatureNotFound
	}
	return sig, nil
}
