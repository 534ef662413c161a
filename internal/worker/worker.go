// Package worker runs one Repository Worker per configured repository:
// the clone-or-open / scan-branches / pull state machine of spec §4.5.
// It is grounded on the "thread_loop"/"thread_poll" shape of the original
// polling daemon, re-expressed as a single goroutine driven by a Go
// state machine instead of a native OS thread.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/autobuildd/internal/config"
	"git.home.luguber.info/inful/autobuildd/internal/git"
	"git.home.luguber.info/inful/autobuildd/internal/logfields"
	"git.home.luguber.info/inful/autobuildd/internal/metrics"
	"git.home.luguber.info/inful/autobuildd/internal/model"
	"git.home.luguber.info/inful/autobuildd/internal/registry"
	"git.home.luguber.info/inful/autobuildd/internal/retry"
	"git.home.luguber.info/inful/autobuildd/internal/util/sets"
)

// CommitRegistry is the subset of *registry.Registry a Worker needs,
// narrowed for test substitution.
type CommitRegistry interface {
	GetOrCreate(ctx context.Context, repo *model.RepoNode, fields registry.CommitFields) *model.CommitNode
}

// Worker drives one RepoNode's lifecycle for as long as the process runs;
// it never returns except when ctx is cancelled.
type Worker struct {
	repo     *model.RepoNode
	client   *git.Client
	registry CommitRegistry
	policy   retry.Policy
	recorder metrics.Recorder
	log      *slog.Logger

	monitored sets.Set[string]
}

// New constructs a Worker for repo, backed by client for git operations
// and reg for commit registration.
func New(repo *model.RepoNode, client *git.Client, reg CommitRegistry, policy retry.Policy, recorder metrics.Recorder, log *slog.Logger) *Worker {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Worker{
		repo:      repo,
		client:    client,
		registry:  reg,
		policy:    policy,
		recorder:  recorder,
		log:       log,
		monitored: sets.New(repo.Config.Branches...),
	}
}

// Run drives the worker's state machine until ctx is cancelled. It never
// returns on its own otherwise: any poll-cycle failure tears down the
// checkout and restarts from Opening (spec §4.5).
func (w *Worker) Run(ctx context.Context) {
	url := w.repo.Config.URL
	log := w.log.With(logfields.Worker(url))

	for {
		if ctx.Err() != nil {
			return
		}

		repoHandle, err := w.openOrClone(ctx)
		if err != nil {
			log.Warn("open/clone failed, retrying", logfields.Tag("ERROR"), logfields.Error(err))
			w.recorder.IncPollResult(url, metrics.ResultFailed)
			_ = w.client.Teardown()
			if !w.sleepOrDone(ctx, w.policy.Delay(1)) {
				return
			}
			continue
		}

		if err := w.pollCycle(ctx, repoHandle); err != nil {
			log.Warn("poll cycle failed, tearing down", logfields.Tag("ERROR"), logfields.Error(err))
			w.recorder.IncPollResult(url, metrics.ResultFailed)
			_ = w.client.Teardown()
			continue
		}
	}
}

// openOrClone opens the existing checkout if valid, or clones fresh,
// ensures the remote is configured, and returns the repository handle.
func (w *Worker) openOrClone(ctx context.Context) (*gogit.Repository, error) {
	w.repo.SetStatus(model.RepoOpening)
	if handle, err := w.client.Open(); err == nil {
		if remoteErr := w.client.EnsureRemote(handle, cloneURLFor(w.repo.Config)); remoteErr != nil {
			return nil, remoteErr
		}
		return handle, nil
	}

	w.repo.SetStatus(model.RepoCloning)
	start := time.Now()
	handle, err := w.client.Clone(ctx, cloneURLFor(w.repo.Config))
	w.recorder.ObserveCloneDuration(w.repo.Config.URL, time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("worker: clone: %w", err)
	}
	return handle, nil
}

// pollCycle runs one pass of scan_branches, then loops sleep/pull; when a
// pull observes a change it re-runs scan_branches in place and keeps
// looping (spec §4.5's "changed -> poll_cycle" edge). It returns only on
// an error or when ctx is cancelled.
func (w *Worker) pollCycle(ctx context.Context, repoHandle *gogit.Repository) error {
	w.repo.SetStatus(model.RepoPolling)
	w.log.Info("scanning branches", logfields.Tag("POLL"), logfields.Repository(w.repo.Config.URL))
	if err := w.scanBranches(ctx, repoHandle); err != nil {
		return fmt.Errorf("scan branches: %w", err)
	}

	for {
		w.repo.SetStatus(model.RepoIdle)
		if !w.sleepOrDone(ctx, w.pollInterval()) {
			return nil
		}

		w.log.Info("polling", logfields.Tag("POLL"), logfields.Repository(w.repo.Config.URL))
		w.repo.SetStatus(model.RepoPulling)
		before := git.SnapshotRefs(repoHandle, w.monitored)
		w.log.Info("fetching remote refs", logfields.Tag("PULL"), logfields.Repository(w.repo.Config.URL))
		if err := w.client.Fetch(ctx, repoHandle, cloneURLFor(w.repo.Config), w.monitored); err != nil {
			w.recorder.IncRepoRetry(w.repo.Config.URL)
			return fmt.Errorf("pull: %w", err)
		}
		after := git.SnapshotRefs(repoHandle, w.monitored)

		if git.RefsDiffer(before, after) {
			w.repo.SetStatus(model.RepoPolling)
			if err := w.scanBranches(ctx, repoHandle); err != nil {
				return fmt.Errorf("scan branches: %w", err)
			}
		}
	}
}

// scanBranches lists monitored branches' tips, walks each tip's ancestry
// to depth D-1, registers every commit seen, and stores the resulting
// hash sequence (spec §4.5's scan_branches).
func (w *Worker) scanBranches(ctx context.Context, repoHandle *gogit.Repository) error {
	tips, err := git.ScanBranches(repoHandle, w.monitored)
	if err != nil {
		return err
	}

	depth := int(w.repo.Config.BuildDepth)
	for branch := range w.monitored {
		tip, ok := tips[branch]
		if !ok {
			continue
		}

		fields, err := git.WalkParents(repoHandle, tip, depth)
		if err != nil {
			return fmt.Errorf("walk parents for %s: %w", branch, err)
		}

		hashes := make([]string, 0, len(fields))
		for _, f := range fields {
			w.registry.GetOrCreate(ctx, w.repo, registry.CommitFields{
				Hash:      f.Hash,
				Message:   f.Message,
				Timestamp: f.Timestamp,
			})
			hashes = append(hashes, f.Hash)
		}
		w.repo.SetBranchHashes(branch, hashes)
	}
	return nil
}

func (w *Worker) pollInterval() time.Duration {
	sec := w.repo.Config.PollIntervalSec
	if sec == 0 {
		sec = 60
	}
	return time.Duration(sec) * time.Second
}

// sleepOrDone sleeps for d, returning false if ctx is cancelled first.
func (w *Worker) sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func cloneURLFor(cfg config.RepoConfig) string {
	return git.CloneURL(cfg.URL, cfg.ReadCredentials)
}

// CheckoutName derives the repos/ subdirectory name for a repo URL
// (spec §6: "/" and ":" replaced with "_").
func CheckoutName(url string) string {
	r := strings.NewReplacer("/", "_", ":", "_")
	return r.Replace(url)
}
