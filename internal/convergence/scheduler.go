// Package convergence replays PR reconciliation in the background whenever
// the facts change: a CLA edit, a bypass-list change, or a successful sign.
package convergence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/514-labs/cla-bot/internal/githubapi"
	"github.com/514-labs/cla-bot/internal/store"
	"github.com/514-labs/cla-bot/internal/webhook"
)

type Trigger struct {
	OrgID  string
	Reason string // cla_updated | bypass_changed | signature_created
	// ActorID/ActorLogin narrow the run to one author's PRs. ActorID 0
	// means every open PR in the organization is affected.
	ActorID    int64
	ActorLogin string
}

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the observable record of one convergence pass. Callers get the ID
// back synchronously and can poll for completion.
type Run struct {
	ID         string     `json:"run_id"`
	OrgID      string     `json:"org_id"`
	Reason     string     `json:"reason"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	TotalPRs   int        `json:"total_prs"`
	FailedPRs  int        `json:"failed_prs"`
	Error      string     `json:"error,omitempty"`
}

type SchedulerStore interface {
	GetOrgByID(ctx context.Context, orgID string) (store.Organization, error)
}

type Scheduler struct {
	store         SchedulerStore
	github        githubapi.Factory
	recon         *webhook.Reconciler
	logger        *zap.SugaredLogger
	maxConcurrent int
	timeout       time.Duration
	retention     time.Duration

	mu   sync.Mutex
	runs map[string]*Run
	wg   sync.WaitGroup
}

func NewScheduler(st SchedulerStore, factory githubapi.Factory, recon *webhook.Reconciler, maxConcurrent int, logger *zap.SugaredLogger) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Scheduler{
		store:         st,
		github:        factory,
		recon:         recon,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		timeout:       10 * time.Minute,
		retention:     time.Hour,
		runs:          make(map[string]*Run),
	}
}

// Schedule starts a convergence pass and returns its run id without
// waiting. The triggering fact is already persisted; a failure here is
// eventually-consistent propagation left for the next trigger, never a
// rollback.
func (s *Scheduler) Schedule(trigger Trigger) string {
	run := &Run{
		ID:        "run_" + uuid.NewString(),
		OrgID:     trigger.OrgID,
		Reason:    trigger.Reason,
		Status:    RunPending,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.pruneLocked(run.StartedAt)
	s.runs[run.ID] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the triggering request on purpose.
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.execute(ctx, run, trigger)
	}()
	return run.ID
}

// GetRun returns a snapshot of a run's state.
func (s *Scheduler) GetRun(runID string) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// Wait blocks until in-flight runs finish; used at shutdown.
func (s *Scheduler) Wait() { s.wg.Wait() }

// pruneLocked drops runs that finished more than the retention window ago
// so the registry cannot grow without bound. Callers hold s.mu.
func (s *Scheduler) pruneLocked(now time.Time) {
	for id, run := range s.runs {
		if run.FinishedAt != nil && now.Sub(*run.FinishedAt) > s.retention {
			delete(s.runs, id)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, run *Run, trigger Trigger) {
	finish := func(total, failed int, err error) {
		now := time.Now().UTC()
		s.mu.Lock()
		defer s.mu.Unlock()
		run.TotalPRs = total
		run.FailedPRs = failed
		run.FinishedAt = &now
		switch {
		case err != nil:
			run.Status = RunFailed
			run.Error = err.Error()
		case failed > 0:
			run.Status = RunFailed
		default:
			run.Status = RunSucceeded
		}
	}

	org, err := s.store.GetOrgByID(ctx, trigger.OrgID)
	if err != nil {
		s.logger.Errorw("convergence aborted", "run_id", run.ID, "org_id", trigger.OrgID, "error", err)
		finish(0, 0, err)
		return
	}
	gh := s.github.Installation(org.InstallationID)

	prs, err := gh.ListOpenPullRequests(ctx, org.Slug)
	if err != nil {
		s.logger.Errorw("convergence aborted", "run_id", run.ID, "org", org.Slug, "error", err)
		finish(0, 0, err)
		return
	}
	if trigger.ActorID != 0 {
		filtered := prs[:0]
		for _, pr := range prs {
			if pr.AuthorID == trigger.ActorID {
				filtered = append(filtered, pr)
			}
		}
		prs = filtered
	}

	// One PR's GitHub failure must not abort the rest of the batch, so
	// the closures never return an error; failures are counted and the
	// next trigger picks the stragglers up. No retry inside the run.
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for _, pr := range prs {
		g.Go(func() error {
			if _, err := s.recon.ReconcilePR(gctx, gh, org, pr); err != nil {
				failed.Add(1)
				s.logger.Errorw("convergence pass failed for pull request",
					"run_id", run.ID, "org", org.Slug, "repo", pr.Repo, "pr", pr.Number, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	finish(len(prs), int(failed.Load()), nil)
	s.logger.Infow("convergence run finished",
		"run_id", run.ID, "org", org.Slug, "reason", trigger.Reason,
		"total_prs", len(prs), "failed_prs", failed.Load())
}
